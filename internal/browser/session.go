package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/metrics"
	"github.com/JakeFAU/gallery-scraper/internal/netcache"
)

// Session is one browser tab bound to a single job.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobID  string
	cfg    Config
	logger *zap.Logger

	cache     *netcache.Cache
	lifecycle *lifecycleFeed
	icpt      *interceptor
	fetchBody func(network.RequestID) ([]byte, error)
	sleep     func(context.Context, time.Duration) error

	closeOnce sync.Once
}

func newSession(tabCtx context.Context, cancel context.CancelFunc, jobID string, cfg Config, logger *zap.Logger) *Session {
	logger = logger.With(zap.String("job_id", jobID))
	s := &Session{
		ctx:       tabCtx,
		cancel:    cancel,
		jobID:     jobID,
		cfg:       cfg,
		logger:    logger,
		cache:     netcache.New(cfg.CacheMaxEntries),
		lifecycle: newLifecycleFeed(),
		sleep:     sleepContext,
	}
	s.icpt = newInterceptor(logger, func(id network.RequestID) ([]byte, error) {
		if s.fetchBody == nil {
			return nil, errNoFetcher
		}
		return s.fetchBody(id)
	})
	return s
}

func (s *Session) setup(ctx context.Context) error {
	opCtx, release := s.opContext(ctx, s.cfg.ActionTimeout)
	defer release()
	if err := chromedp.Run(opCtx,
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		chromedp.EmulateViewport(int64(s.cfg.WindowWidth), int64(s.cfg.WindowHeight)),
	); err != nil {
		return fmt.Errorf("session setup: %w", err)
	}
	return s.ApplyStealth(ctx)
}

// ApplyStealth masks the common automation fingerprints on every new document
// and pins the Accept-Language header. No other headers are added.
func (s *Session) ApplyStealth(ctx context.Context) error {
	opCtx, release := s.opContext(ctx, s.cfg.ActionTimeout)
	defer release()
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
			return fmt.Errorf("add stealth script: %w", err)
		}
		if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).
			WithAcceptLanguage(s.cfg.AcceptLanguage).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		headers := network.Headers{"Accept-Language": s.cfg.AcceptLanguage}
		if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("apply stealth: %w", err)
	}
	return nil
}

// InterceptResponses replaces the response handler: bodies of responses whose
// URL satisfies match are fetched off the event loop and passed to onMatch.
func (s *Session) InterceptResponses(match func(url string) bool, onMatch func(url string, body []byte)) {
	s.icpt.set(match, onMatch)
}

// Metadata returns the job-scoped cache fed by the default interceptor.
func (s *Session) Metadata() *netcache.Cache {
	return s.cache
}

// Close closes the tab. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.icpt.wait(s.cfg.ActionTimeout)
		s.cancel()
		s.logger.Debug("session closed", zap.Int("cached_payloads", s.cache.Len()))
	})
}

// Navigate loads rawURL, retrying with linear backoff, and waits according to
// profile. Exhausted retries return a *gallery.NavigationError.
func (s *Session) Navigate(ctx context.Context, rawURL string, profile gallery.Profile) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		err := s.navigateOnce(ctx, rawURL, profile)
		metrics.ObserveNavigation(rawURL, profile.String(), err, time.Since(start))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("navigate %s: %w", rawURL, ctx.Err())
		}
		lastErr = err
		s.logger.Warn("navigation attempt failed",
			zap.String("url", rawURL),
			zap.Stringer("profile", profile),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < s.cfg.MaxAttempts {
			if err := s.sleep(ctx, s.cfg.RetryBaseDelay*time.Duration(attempt)); err != nil {
				return fmt.Errorf("navigate %s: %w", rawURL, err)
			}
		}
	}
	return &gallery.NavigationError{URL: rawURL, Profile: profile, Attempts: s.cfg.MaxAttempts, Err: lastErr}
}

func (s *Session) navigateOnce(ctx context.Context, rawURL string, profile gallery.Profile) error {
	timeout, target := s.cfg.ListingTimeout, lifecycleNetworkIdle
	if profile == gallery.ProfileDetail {
		timeout, target = s.cfg.DetailTimeout, lifecycleDOMContentLoaded
	}
	opCtx, release := s.opContext(ctx, timeout)
	defer release()

	events, unsubscribe := s.lifecycle.subscribe()
	defer unsubscribe()

	navCtx, cancelNav := context.WithCancel(opCtx)
	defer cancelNav()
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(navCtx, chromedp.Navigate(rawURL)) }()

	var (
		loader string
		loaded bool
		idle   <-chan time.Time
	)
	for {
		select {
		case ev := <-events:
			if ev.Name == lifecycleInit {
				if loader == "" {
					loader = ev.LoaderID
				}
				continue
			}
			if loader != "" && ev.LoaderID == loader && ev.Name == target {
				return nil
			}
		case err := <-done:
			done = nil
			if err != nil {
				return fmt.Errorf("load %s: %w", rawURL, err)
			}
			if profile == gallery.ProfileDetail {
				return nil
			}
			loaded = true
			idle = time.After(s.cfg.IdleGrace)
		case <-idle:
			s.logger.Debug("network idle not reached, continuing after load", zap.String("url", rawURL))
			return nil
		case <-opCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if loaded {
				return nil
			}
			return fmt.Errorf("wait for %s: %w", target, opCtx.Err())
		}
	}
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// ItemHints reports every possible item reference visible in the DOM.
func (s *Session) ItemHints(ctx context.Context) ([]gallery.ItemHint, error) {
	var hints []gallery.ItemHint
	if err := s.run(ctx, chromedp.Evaluate(hintsScript(s.cfg.Selectors), &hints)); err != nil {
		return nil, fmt.Errorf("collect item hints: %w", err)
	}
	return hints, nil
}

// DocumentHeight returns the scrollable height of the document in pixels.
func (s *Session) DocumentHeight(ctx context.Context) (int, error) {
	var height float64
	if err := s.run(ctx, chromedp.Evaluate(heightScript, &height)); err != nil {
		return 0, fmt.Errorf("read document height: %w", err)
	}
	return int(height), nil
}

// ScrollToBottom scrolls the window to the end of the document.
func (s *Session) ScrollToBottom(ctx context.Context) error {
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(scrollScript, &ok)); err != nil {
		return fmt.Errorf("scroll to bottom: %w", err)
	}
	return nil
}

// ControlCandidates lists clickable elements that may advance pagination. Each
// candidate is tagged in the DOM so ClickControl can address it by ID.
func (s *Session) ControlCandidates(ctx context.Context) ([]gallery.ControlCandidate, error) {
	var candidates []gallery.ControlCandidate
	if err := s.run(ctx, chromedp.Evaluate(controlsScript(s.cfg.Selectors), &candidates)); err != nil {
		return nil, fmt.Errorf("collect controls: %w", err)
	}
	return candidates, nil
}

// ClickControl scrolls the tagged candidate into view and clicks it.
func (s *Session) ClickControl(ctx context.Context, id string) error {
	sel := controlSelector(id)
	if err := s.run(ctx,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible),
	); err != nil {
		return fmt.Errorf("click control %s: %w", id, err)
	}
	return nil
}

// LoadDetail navigates to an item detail page, waits a bounded time for the
// label markers and returns the rendered HTML.
func (s *Session) LoadDetail(ctx context.Context, rawURL string) (gallery.DetailPage, error) {
	if err := s.Navigate(ctx, rawURL, gallery.ProfileDetail); err != nil {
		return gallery.DetailPage{}, err
	}
	detail := gallery.DetailPage{URL: rawURL}

	waitCtx, release := s.opContext(ctx, s.cfg.MarkerWait)
	err := chromedp.Run(waitCtx, chromedp.WaitVisible(s.cfg.Selectors.LabelMarker, chromedp.ByQuery))
	release()
	switch {
	case err == nil:
		detail.MarkersSet = true
	case ctx.Err() != nil:
		return gallery.DetailPage{}, ctx.Err()
	default:
		s.logger.Debug("label markers not rendered", zap.String("url", rawURL), zap.Error(err))
	}

	var final string
	if err := s.run(ctx,
		chromedp.Location(&final),
		chromedp.OuterHTML("html", &detail.HTML, chromedp.ByQuery),
	); err != nil {
		return gallery.DetailPage{}, fmt.Errorf("snapshot %s: %w", rawURL, err)
	}
	if final != "" {
		detail.URL = final
	}
	return detail, nil
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, release := s.opContext(ctx, s.cfg.ActionTimeout)
	defer release()
	return chromedp.Run(opCtx, actions...)
}

// opContext derives a bounded context from the tab that is also cancelled
// when ctx ends.
func (s *Session) opContext(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	opCtx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := forwardCancel(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) responseBody(id network.RequestID) ([]byte, error) {
	var body []byte
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ActionTimeout)
	defer cancel()
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get response body: %w", err)
	}
	return body, nil
}

func (s *Session) storePayload(rawURL string, body []byte) {
	n := s.cache.Ingest(body)
	metrics.ObserveInterceptedPayloads(rawURL, n)
	if n > 0 {
		s.logger.Debug("cached metadata payloads", zap.String("url", rawURL), zap.Int("count", n))
	}
}

func (s *Session) onEvent(ev any) {
	if lc, ok := ev.(*page.EventLifecycleEvent); ok {
		s.lifecycle.publish(lifecycleEvent{Name: lc.Name, LoaderID: string(lc.LoaderID)})
		return
	}
	s.icpt.handle(ev)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
