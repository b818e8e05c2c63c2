package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/config"
	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/netcache"
	"github.com/JakeFAU/gallery-scraper/internal/progress"
	"github.com/JakeFAU/gallery-scraper/internal/scrape"
)

const listingURL = "https://gallery.example/search?q=lyon"

// staticSession serves a fixed listing without a browser.
type staticSession struct {
	items int
	cache *netcache.Cache
}

func (s *staticSession) Location(context.Context) (string, error) { return listingURL, nil }

func (s *staticSession) ItemHints(context.Context) ([]gallery.ItemHint, error) {
	hints := make([]gallery.ItemHint, 0, s.items)
	for i := range s.items {
		hints = append(hints, gallery.ItemHint{Source: gallery.HintAnchor, Href: fmt.Sprintf("/detail/photo-%d", i)})
	}
	return hints, nil
}

func (s *staticSession) DocumentHeight(context.Context) (int, error) { return 1000, nil }

func (s *staticSession) ScrollToBottom(context.Context) error { return nil }

func (s *staticSession) ControlCandidates(context.Context) ([]gallery.ControlCandidate, error) {
	return nil, nil
}

func (s *staticSession) ClickControl(context.Context, string) error { return nil }

func (s *staticSession) LoadDetail(context.Context, string) (gallery.DetailPage, error) {
	return gallery.DetailPage{}, errors.New("no detail pages")
}

func (s *staticSession) Navigate(context.Context, string, gallery.Profile) error { return nil }

func (s *staticSession) Metadata() *netcache.Cache { return s.cache }

func (s *staticSession) Close() {}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Scraper.Concurrency = 1
	cfg.Scraper.MinItemDelayMs = 1
	cfg.Scraper.MaxItemDelayMs = 2
	cfg.RateLimit.SiteRPS = 0
	return cfg
}

func buildApp(t *testing.T, items int) *App {
	t.Helper()
	open := func(context.Context, string) (scrape.Session, error) {
		return &staticSession{items: items, cache: netcache.New(0)}, nil
	}
	app, err := Build(testConfig(t),
		WithLogger(zap.NewNop()),
		WithOpener(open),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	return app
}

func TestAppScrapeRecordsTimeline(t *testing.T) {
	t.Parallel()

	app := buildApp(t, 3)
	job, err := app.Scrape(context.Background(), gallery.JobConfig{URL: listingURL, ScrollDelayMs: 500})
	require.NoError(t, err)
	require.Equal(t, gallery.JobStatusCompleted, job.Status)
	require.Len(t, job.Records, 3)
	require.Equal(t, "photo-0", job.Records[0].ItemID)

	require.NoError(t, app.Close(context.Background()))
	events, err := app.timeline.Events(context.Background(), job.ID, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	require.Equal(t, progress.StageJobStart, events[0].Stage)
	require.Equal(t, progress.StageJobDone, events[len(events)-1].Stage)
}

func TestAppScrapeRejectsInvalidJob(t *testing.T) {
	t.Parallel()

	app := buildApp(t, 1)
	defer func() { _ = app.Close(context.Background()) }()

	_, err := app.Scrape(context.Background(), gallery.JobConfig{URL: "not a url", ScrollDelayMs: 500})
	require.ErrorIs(t, err, gallery.ErrInvalidConfiguration)
}

func TestAppServesQueuedJobs(t *testing.T) {
	t.Parallel()

	app := buildApp(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go app.dispatch.Run(ctx)

	body := []byte(`{"url":"` + listingURL + `","extractDetails":false,"autoScroll":false}`)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	require.Eventually(t, func() bool {
		job, err := app.jobStore.Get(context.Background(), created.JobID)
		return err == nil && job.Status == gallery.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	export := httptest.NewRecorder()
	app.Handler().ServeHTTP(export, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+created.JobID+"/export", nil))
	require.Equal(t, http.StatusOK, export.Code)
	var envelope struct {
		TotalImages int `json:"totalImages"`
	}
	require.NoError(t, json.Unmarshal(export.Body.Bytes(), &envelope))
	require.Equal(t, 2, envelope.TotalImages)

	ready := httptest.NewRecorder()
	app.Handler().ServeHTTP(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, ready.Code)

	require.NoError(t, app.Close(context.Background()))
}

func TestBuildRejectsBadDiscoveryPattern(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Site.ItemPattern = `/detail/[a-z]+`
	open := func(context.Context, string) (scrape.Session, error) { return nil, errors.New("unused") }
	_, err := Build(cfg, WithLogger(zap.NewNop()), WithOpener(open), WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
	require.Contains(t, err.Error(), "discovery init failed")
}
