package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/clock/system"
	"github.com/JakeFAU/gallery-scraper/internal/discovery"
	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/id/uuid"
	"github.com/JakeFAU/gallery-scraper/internal/netcache"
	"github.com/JakeFAU/gallery-scraper/internal/progress"
	"github.com/JakeFAU/gallery-scraper/internal/storage/memory"
)

const listingURL = "https://gallery.example/search?q=paris"

// fakeSession is a static listing whose detail pages fail.
type fakeSession struct {
	mu          sync.Mutex
	hints       []gallery.ItemHint
	cache       *netcache.Cache
	navErr      error
	detail      func(url string) (gallery.DetailPage, error)
	detailCalls []string
	closed      bool
}

func newFakeSession(items int) *fakeSession {
	s := &fakeSession{cache: netcache.New(0)}
	for i := range items {
		s.hints = append(s.hints, gallery.ItemHint{
			Source: gallery.HintAnchor,
			Href:   fmt.Sprintf("/detail/item-%d", i),
		})
	}
	s.detail = func(string) (gallery.DetailPage, error) {
		return gallery.DetailPage{}, &gallery.NavigationError{URL: "detail", Attempts: 3, Err: errors.New("http 404")}
	}
	return s
}

func (s *fakeSession) Location(context.Context) (string, error) { return listingURL, nil }

func (s *fakeSession) ItemHints(context.Context) ([]gallery.ItemHint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gallery.ItemHint(nil), s.hints...), nil
}

func (s *fakeSession) DocumentHeight(context.Context) (int, error) { return 2000, nil }

func (s *fakeSession) ScrollToBottom(context.Context) error { return nil }

func (s *fakeSession) ControlCandidates(context.Context) ([]gallery.ControlCandidate, error) {
	return nil, nil
}

func (s *fakeSession) ClickControl(context.Context, string) error { return nil }

func (s *fakeSession) LoadDetail(_ context.Context, url string) (gallery.DetailPage, error) {
	s.mu.Lock()
	s.detailCalls = append(s.detailCalls, url)
	s.mu.Unlock()
	return s.detail(url)
}

func (s *fakeSession) Navigate(context.Context, string, gallery.Profile) error { return s.navErr }

func (s *fakeSession) Metadata() *netcache.Cache { return s.cache }

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

type harness struct {
	store   *memory.JobStore
	orch    *Orchestrator
	emitter *recordingEmitter
	sleeps  []time.Duration
}

func newHarness(t *testing.T, sess *fakeSession, sleep func(context.Context, time.Duration) error) *harness {
	t.Helper()
	h := &harness{
		store:   memory.NewJobStore(uuid.New(), system.New()),
		emitter: &recordingEmitter{},
	}
	engine, err := discovery.New(discovery.DefaultConfig(), zap.NewNop(),
		discovery.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	require.NoError(t, err)
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return ctx.Err()
		}
	}
	open := func(context.Context, string) (Session, error) { return sess, nil }
	h.orch = New(Config{}, h.store, open, engine, zap.NewNop(),
		WithEmitter(h.emitter),
		WithSleep(sleep),
	)
	return h
}

func (h *harness) create(t *testing.T, cfg gallery.JobConfig) gallery.Job {
	t.Helper()
	job, err := h.store.Create(context.Background(), cfg)
	require.NoError(t, err)
	return job
}

func TestRunCapsItemsAndKeepsPartialRecords(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(5)
	h := newHarness(t, sess, nil)
	job := h.create(t, gallery.JobConfig{
		URL:            listingURL,
		MaxItems:       2,
		ExtractDetails: true,
		AutoScroll:     true,
		ScrollDelayMs:  500,
	})

	final, err := h.orch.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, gallery.JobStatusCompleted, final.Status)
	require.Equal(t, 100.0, final.Progress)
	require.NotNil(t, final.CompletedAt)
	require.Nil(t, final.Error)
	require.Len(t, final.Records, 2)
	for i, rec := range final.Records {
		require.Equal(t, fmt.Sprintf("item-%d", i), rec.ItemID)
		require.Equal(t, fmt.Sprintf("https://gallery.example/detail/item-%d", i), rec.URL)
		require.Zero(t, rec.FieldCount())
	}
	require.Equal(t, gallery.JobCounters{ItemsDiscovered: 2, ItemsTarget: 2, ItemsScraped: 2}, final.Counters)
	require.Len(t, sess.detailCalls, 2)
	require.True(t, sess.closed)

	require.Len(t, h.sleeps, 1)
	require.GreaterOrEqual(t, h.sleeps[0], DefaultMinItemDelay)
	require.LessOrEqual(t, h.sleeps[0], DefaultMaxItemDelay)

	stages := h.emitter.stages()
	require.Equal(t, progress.StageJobStart, stages[0])
	require.Equal(t, progress.StageJobDone, stages[len(stages)-1])
	require.Contains(t, stages, progress.StageItemDone)
}

func TestRunWithoutDetailsUsesListingData(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(3)
	sess.hints[1].Thumbnail = "https://cdn.gallery.example/t/item-1.jpg"
	require.True(t, sess.cache.Put("item-0", []byte(`{"id":"item-0","credit":"Jane Roe"}`)))
	h := newHarness(t, sess, nil)
	job := h.create(t, gallery.JobConfig{URL: listingURL, AutoScroll: true, ScrollDelayMs: 500})

	final, err := h.orch.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, gallery.JobStatusCompleted, final.Status)
	require.Len(t, final.Records, 3)
	require.NotNil(t, final.Records[0].Credit)
	require.Equal(t, "Jane Roe", *final.Records[0].Credit)
	require.NotNil(t, final.Records[1].ThumbnailURL)
	require.Equal(t, "https://cdn.gallery.example/t/item-1.jpg", *final.Records[1].ThumbnailURL)
	require.Empty(t, sess.detailCalls)
	require.Len(t, h.sleeps, 2)
}

func TestRunListingFailureMarksJobError(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(5)
	sess.navErr = &gallery.NavigationError{URL: listingURL, Attempts: 3, Err: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	h := newHarness(t, sess, nil)
	job := h.create(t, gallery.JobConfig{URL: listingURL, ScrollDelayMs: 500})

	final, err := h.orch.Run(context.Background(), job)
	require.ErrorIs(t, err, gallery.ErrNavigation)
	require.Equal(t, gallery.JobStatusError, final.Status)
	require.NotNil(t, final.Error)
	require.Contains(t, *final.Error, "load listing")
	require.NotNil(t, final.CompletedAt)
	require.True(t, sess.closed)

	stages := h.emitter.stages()
	require.Equal(t, progress.StageJobError, stages[len(stages)-1])
}

func TestRunRecoversItemPanics(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(3)
	sess.detail = func(url string) (gallery.DetailPage, error) {
		if url == "https://gallery.example/detail/item-1" {
			panic("boom")
		}
		return gallery.DetailPage{URL: url, HTML: "<html><h1>Harbour at dusk</h1></html>"}, nil
	}
	h := newHarness(t, sess, nil)
	job := h.create(t, gallery.JobConfig{URL: listingURL, ExtractDetails: true, ScrollDelayMs: 500})

	final, err := h.orch.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, gallery.JobStatusCompleted, final.Status)
	require.Equal(t, 2, final.Counters.ItemsScraped)
	require.Equal(t, 1, final.Counters.ItemsFailed)
	require.Len(t, final.Records, 2)
	require.Equal(t, "item-2", final.Records[1].ItemID)
	require.Contains(t, h.emitter.stages(), progress.StageItemFailed)
}

func TestRunCancellationMarksJobError(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleep := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	h := newHarness(t, sess, sleep)
	job := h.create(t, gallery.JobConfig{URL: listingURL, ScrollDelayMs: 500})

	final, err := h.orch.Run(ctx, job)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, gallery.JobStatusError, final.Status)
	require.Len(t, final.Records, 1)
	require.True(t, sess.closed)
}

func TestRunRejectsTerminalJob(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(1)
	h := newHarness(t, sess, nil)
	job := h.create(t, gallery.JobConfig{URL: listingURL, ScrollDelayMs: 500})
	_, err := h.orch.Run(context.Background(), job)
	require.NoError(t, err)

	_, err = h.orch.Run(context.Background(), job)
	require.ErrorIs(t, err, gallery.ErrJobTerminal)
}

func TestRunOpenFailure(t *testing.T) {
	t.Parallel()

	store := memory.NewJobStore(uuid.New(), system.New())
	engine, err := discovery.New(discovery.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	open := func(context.Context, string) (Session, error) { return nil, errors.New("chrome exited") }
	orch := New(Config{}, store, open, engine, nil)

	job, err := store.Create(context.Background(), gallery.JobConfig{URL: listingURL, ScrollDelayMs: 500})
	require.NoError(t, err)
	final, err := orch.Run(context.Background(), job)
	require.ErrorContains(t, err, "chrome exited")
	require.Equal(t, gallery.JobStatusError, final.Status)
	require.Equal(t, "open session: chrome exited", *final.Error)
}

type recordingLimiter struct {
	urls []string
}

func (l *recordingLimiter) Wait(_ context.Context, rawURL string) error {
	l.urls = append(l.urls, rawURL)
	return nil
}

func TestRunWaitsForSiteLimiter(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(1)
	store := memory.NewJobStore(uuid.New(), system.New())
	engine, err := discovery.New(discovery.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	limiter := &recordingLimiter{}
	open := func(context.Context, string) (Session, error) { return sess, nil }
	orch := New(Config{}, store, open, engine, zap.NewNop(), WithSiteLimiter(limiter))

	job, err := store.Create(context.Background(), gallery.JobConfig{URL: listingURL, ScrollDelayMs: 500})
	require.NoError(t, err)
	final, err := orch.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, gallery.JobStatusCompleted, final.Status)
	require.Equal(t, []string{listingURL}, limiter.urls)
}
