// Package discovery walks a gallery listing page, following pagination and
// infinite scroll, and collects item references until the page stops
// producing new content.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/hash/sha256"
	"github.com/JakeFAU/gallery-scraper/internal/metrics"
)

// Page is the subset of a browser session the engine drives.
type Page interface {
	Location(ctx context.Context) (string, error)
	ItemHints(ctx context.Context) ([]gallery.ItemHint, error)
	DocumentHeight(ctx context.Context) (int, error)
	ScrollToBottom(ctx context.Context) error
	ControlCandidates(ctx context.Context) ([]gallery.ControlCandidate, error)
	ClickControl(ctx context.Context, id string) error
}

// State is a discovery state machine state.
type State string

// Discovery states.
const (
	StateScanning       State = "SCANNING"
	StateAwaitingGrowth State = "AWAITING_GROWTH"
	StateDone           State = "DONE"
)

// Reasons reported in Result.StopReason.
const (
	StopLimitReached  = "limit reached"
	StopLoopDetected  = "loop detected"
	StopRevisitLimit  = "revisit limit"
	StopIterations    = "iteration limit"
	StopGrowthTimeout = "no growth"
)

// Config tunes pacing and termination guards.
type Config struct {
	ScrollDelay      time.Duration
	SettleBuffer     time.Duration
	PatienceRounds   int
	MaxRevisits      int
	MaxIterations    int
	ItemPattern      string
	DetailTemplate   string
	LoadMorePattern  string
	NamespaceHashLen int
}

// DefaultItemPattern captures the last path segment under a detail-like
// prefix. The id must contain a digit so section links such as
// /photos/trending are not taken for items.
const DefaultItemPattern = `/(?:detail|photos?|images?|items?|assets?)(?:/[^/]+)*/(?P<id>[A-Za-z0-9_-]*[0-9][A-Za-z0-9_-]*)/?$`

// DefaultConfig returns the standard discovery settings.
func DefaultConfig() Config {
	return Config{
		ScrollDelay:      1500 * time.Millisecond,
		SettleBuffer:     time.Second,
		PatienceRounds:   5,
		MaxRevisits:      3,
		MaxIterations:    500,
		ItemPattern:      DefaultItemPattern,
		DetailTemplate:   "/detail/{id}",
		LoadMorePattern:  DefaultLoadMorePattern,
		NamespaceHashLen: 12,
	}
}

// ProgressFunc receives the running reference count and the cap (0 = unlimited).
type ProgressFunc func(found, limit int)

// Result summarises one discovery run.
type Result struct {
	Iterations int
	StopReason string
}

// Engine runs the discovery state machine. It is safe to share between jobs;
// all run state lives in Run.
type Engine struct {
	cfg         Config
	logger      *zap.Logger
	hasher      gallery.Hasher
	itemPattern *regexp.Regexp
	matchers    []Matcher
	sleep       func(context.Context, time.Duration) error
}

// Option customises an Engine.
type Option func(*Engine)

// WithSleep replaces the delay function (tests use an instant sleeper).
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithHasher replaces the namespace hasher.
func WithHasher(h gallery.Hasher) Option {
	return func(e *Engine) { e.hasher = h }
}

// WithMatchers replaces the pagination matchers.
func WithMatchers(m ...Matcher) Option {
	return func(e *Engine) { e.matchers = m }
}

// New validates cfg and builds an Engine.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.ScrollDelay <= 0 {
		cfg.ScrollDelay = def.ScrollDelay
	}
	if cfg.SettleBuffer < 0 {
		cfg.SettleBuffer = 0
	}
	if cfg.PatienceRounds <= 0 {
		cfg.PatienceRounds = def.PatienceRounds
	}
	if cfg.MaxRevisits <= 0 {
		cfg.MaxRevisits = def.MaxRevisits
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.ItemPattern == "" {
		cfg.ItemPattern = def.ItemPattern
	}
	if cfg.DetailTemplate == "" {
		cfg.DetailTemplate = def.DetailTemplate
	}
	if cfg.LoadMorePattern == "" {
		cfg.LoadMorePattern = def.LoadMorePattern
	}
	if cfg.NamespaceHashLen <= 0 {
		cfg.NamespaceHashLen = def.NamespaceHashLen
	}

	itemPattern, err := regexp.Compile(cfg.ItemPattern)
	if err != nil {
		return nil, fmt.Errorf("compile item pattern: %w", err)
	}
	if itemPattern.NumSubexp() == 0 {
		return nil, errors.New("item pattern must capture the item id")
	}
	loadMore, err := regexp.Compile(cfg.LoadMorePattern)
	if err != nil {
		return nil, fmt.Errorf("compile load-more pattern: %w", err)
	}

	e := &Engine{
		cfg:         cfg,
		logger:      logger.Named("discovery"),
		hasher:      sha256.NewTruncated(cfg.NamespaceHashLen),
		itemPattern: itemPattern,
		matchers:    DefaultMatchers(loadMore),
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// WithScrollDelay returns a copy of the engine paced by delay. Jobs carry
// their own scroll delay.
func (e *Engine) WithScrollDelay(delay time.Duration) *Engine {
	if delay <= 0 {
		return e
	}
	cp := *e
	cp.cfg.ScrollDelay = delay
	return &cp
}

// Sweep performs one collection pass and returns how many new references were
// added.
func (e *Engine) Sweep(ctx context.Context, page Page, col *Collector) (int, error) {
	seen, _, err := e.observe(ctx, page, col)
	if err != nil {
		return 0, err
	}
	return col.merge(seen), nil
}

// sighting is one reference resolved from the page, with its listing thumbnail.
type sighting struct {
	ref       gallery.ItemReference
	thumbnail string
}

// observe resolves the references currently rendered on the page and returns
// them with the number of distinct item ids among them.
func (e *Engine) observe(ctx context.Context, page Page, col *Collector) ([]sighting, int, error) {
	hints, err := page.ItemHints(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("sweep: %w", err)
	}
	base, _ := url.Parse(col.Base)
	if loc, err := page.Location(ctx); err == nil && loc != "" {
		if u, perr := url.Parse(loc); perr == nil && u.IsAbs() {
			base = u
		}
	}
	seen := make([]sighting, 0, len(hints))
	ids := make(map[string]struct{}, len(hints))
	for _, h := range hints {
		ref, ok := e.refFromHint(base, h)
		if !ok {
			continue
		}
		ids[ref.ItemID] = struct{}{}
		seen = append(seen, sighting{ref: ref, thumbnail: h.Thumbnail})
	}
	return seen, len(ids), nil
}

// visitKey identifies a page snapshot for loop detection. The document height
// is part of the key so a page that grew without rendering new items yet is
// not mistaken for a revisit.
type visitKey struct {
	url     string
	visible int
	height  int
}

// Run drives the state machine until DONE, the collector is full, or ctx ends.
// Exhaustion is not an error; only cancellation is returned.
func (e *Engine) Run(ctx context.Context, page Page, col *Collector, onProgress ProgressFunc) (Result, error) {
	var (
		res           Result
		state         = StateScanning
		visited       = make(map[visitKey]int)
		justPaginated bool
		height        int
	)
	report := func() {
		if onProgress != nil {
			onProgress(col.Len(), col.Limit)
		}
	}
	stop := func(reason string) {
		res.StopReason = reason
		state = StateDone
	}

	for state != StateDone {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("discovery canceled: %w", err)
		}
		if col.Full() {
			stop(StopLimitReached)
			break
		}

		switch state {
		case StateScanning:
			if res.Iterations >= e.cfg.MaxIterations {
				stop(StopIterations)
				continue
			}
			res.Iterations++

			loc := e.location(ctx, page)
			if h, err := page.DocumentHeight(ctx); err == nil {
				height = h
			}
			seen, visible, err := e.observe(ctx, page, col)
			if err != nil {
				e.logger.Debug("sweep failed", zap.Error(err))
			}
			key := visitKey{url: loc, visible: visible, height: height}
			visited[key]++
			if visited[key] > 1 && !justPaginated {
				stop(StopLoopDetected)
				continue
			}
			if visited[key] > e.cfg.MaxRevisits {
				stop(StopRevisitLimit)
				continue
			}
			justPaginated = false

			col.merge(seen)
			report()
			if col.Full() {
				continue
			}

			if e.paginate(ctx, page, col, loc) {
				justPaginated = true
				report()
				continue
			}

			var grew bool
			grew, height = e.scroll(ctx, page)
			if !grew {
				state = StateAwaitingGrowth
			}

		case StateAwaitingGrowth:
			if e.awaitGrowth(ctx, page, height) {
				state = StateScanning
				continue
			}
			stop(StopGrowthTimeout)
		}
	}

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("discovery canceled: %w", err)
	}
	e.logger.Debug("discovery finished",
		zap.Int("references", col.Len()),
		zap.Int("iterations", res.Iterations),
		zap.String("reason", res.StopReason),
	)
	return res, nil
}

// paginate clicks the best pagination control and reports whether the page
// changed as a result.
func (e *Engine) paginate(ctx context.Context, page Page, col *Collector, loc string) bool {
	candidates, err := page.ControlCandidates(ctx)
	if err != nil {
		e.logger.Debug("control search failed", zap.Error(err))
		return false
	}
	ctl, matcher, ok := findControl(e.matchers, candidates)
	if !ok {
		return false
	}

	before := col.Len()
	if err := page.ClickControl(ctx, ctl.ID); err != nil {
		e.logger.Debug("pagination click failed", zap.String("matcher", matcher), zap.Error(err))
		return false
	}
	if err := e.sleep(ctx, e.cfg.ScrollDelay+e.cfg.SettleBuffer); err != nil {
		return false
	}
	if _, err := e.Sweep(ctx, page, col); err != nil {
		e.logger.Debug("sweep after click failed", zap.Error(err))
	}
	changed := e.location(ctx, page) != loc || col.Len() > before
	metrics.ObservePaginationClick(matcher, changed)
	return changed
}

// scroll moves to the bottom and reports whether the document grew.
func (e *Engine) scroll(ctx context.Context, page Page) (bool, int) {
	before, err := page.DocumentHeight(ctx)
	if err != nil {
		e.logger.Debug("height read failed", zap.Error(err))
	}
	if err := page.ScrollToBottom(ctx); err != nil {
		e.logger.Debug("scroll failed", zap.Error(err))
	}
	if err := e.sleep(ctx, e.cfg.ScrollDelay); err != nil {
		return false, before
	}
	after, err := page.DocumentHeight(ctx)
	if err != nil {
		return false, before
	}
	return after > before, after
}

// awaitGrowth waits PatienceRounds × 2 × ScrollDelay for the document to grow
// past height.
func (e *Engine) awaitGrowth(ctx context.Context, page Page, height int) bool {
	for round := 1; round <= e.cfg.PatienceRounds; round++ {
		if err := e.sleep(ctx, 2*e.cfg.ScrollDelay); err != nil {
			return false
		}
		if err := page.ScrollToBottom(ctx); err != nil {
			e.logger.Debug("scroll failed", zap.Error(err))
		}
		h, err := page.DocumentHeight(ctx)
		if err == nil && h > height {
			e.logger.Debug("document grew", zap.Int("round", round), zap.Int("height", h))
			return true
		}
	}
	return false
}

func (e *Engine) location(ctx context.Context, page Page) string {
	loc, err := page.Location(ctx)
	if err != nil {
		e.logger.Debug("location read failed", zap.Error(err))
		return ""
	}
	return loc
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
