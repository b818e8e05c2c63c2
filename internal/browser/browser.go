// Package browser drives headless Chrome through chromedp. A Browser owns one
// Chrome process; each scrape job gets its own Session (tab).
package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrBrowserClosed is returned when a session is requested after Close.
var ErrBrowserClosed = errors.New("browser closed")

// Config controls the Chrome process and per-session behavior.
type Config struct {
	Headless           bool
	ExecPath           string
	UserAgent          string
	AcceptLanguage     string
	WindowWidth        int
	WindowHeight       int
	IsolateSessions    bool
	ListingTimeout     time.Duration
	DetailTimeout      time.Duration
	IdleGrace          time.Duration
	RetryBaseDelay     time.Duration
	MaxAttempts        int
	MarkerWait         time.Duration
	ActionTimeout      time.Duration
	CacheMaxEntries    int
	MetadataAPIPattern string
	Selectors          Selectors
}

// Selectors locate items and metadata markers in the rendered DOM.
type Selectors struct {
	// Component matches embedded item components; ComponentIDAttr and
	// ComponentNamespaceAttr are read from each match.
	Component              string
	ComponentIDAttr        string
	ComponentNamespaceAttr string
	// DataAttr is an explicit item id attribute on item containers.
	DataAttr string
	// Controls matches elements considered as pagination candidates.
	Controls string
	// LabelMarker is awaited on detail pages before the snapshot is taken.
	LabelMarker string
	// BandPx extends the viewport when deciding whether a control is visible.
	BandPx int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Headless:           true,
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		AcceptLanguage:     "en-US,en;q=0.9",
		WindowWidth:        1920,
		WindowHeight:       1080,
		IsolateSessions:    true,
		ListingTimeout:     45 * time.Second,
		DetailTimeout:      60 * time.Second,
		IdleGrace:          10 * time.Second,
		RetryBaseDelay:     2 * time.Second,
		MaxAttempts:        3,
		MarkerWait:         15 * time.Second,
		ActionTimeout:      10 * time.Second,
		CacheMaxEntries:    5000,
		MetadataAPIPattern: `/api/.*(asset|item|image|media)`,
		Selectors: Selectors{
			Component:              "[data-component='gallery-item']",
			ComponentIDAttr:        "data-item-id",
			ComponentNamespaceAttr: "data-namespace",
			DataAttr:               "data-asset-id",
			Controls:               "button, a, [role='button']",
			LabelMarker:            "dt, [data-label]",
			BandPx:                 800,
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = def.AcceptLanguage
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		c.WindowWidth, c.WindowHeight = def.WindowWidth, def.WindowHeight
	}
	if c.ListingTimeout <= 0 {
		c.ListingTimeout = def.ListingTimeout
	}
	if c.DetailTimeout <= 0 {
		c.DetailTimeout = def.DetailTimeout
	}
	if c.IdleGrace <= 0 {
		c.IdleGrace = def.IdleGrace
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.MarkerWait <= 0 {
		c.MarkerWait = def.MarkerWait
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = def.ActionTimeout
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = def.CacheMaxEntries
	}
	if c.MetadataAPIPattern == "" {
		c.MetadataAPIPattern = def.MetadataAPIPattern
	}
	s, d := &c.Selectors, def.Selectors
	if s.Component == "" {
		s.Component = d.Component
	}
	if s.ComponentIDAttr == "" {
		s.ComponentIDAttr = d.ComponentIDAttr
	}
	if s.ComponentNamespaceAttr == "" {
		s.ComponentNamespaceAttr = d.ComponentNamespaceAttr
	}
	if s.DataAttr == "" {
		s.DataAttr = d.DataAttr
	}
	if s.Controls == "" {
		s.Controls = d.Controls
	}
	if s.LabelMarker == "" {
		s.LabelMarker = d.LabelMarker
	}
	if s.BandPx <= 0 {
		s.BandPx = d.BandPx
	}
	return c
}

// Browser owns the shared Chrome process.
type Browser struct {
	cfg             Config
	logger          *zap.Logger
	metadataAPI     *regexp.Regexp
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
}

// New starts Chrome and waits until the browser target is ready.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	metadataAPI, err := regexp.Compile(cfg.MetadataAPIPattern)
	if err != nil {
		return nil, fmt.Errorf("compile metadata api pattern: %w", err)
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Browser{
		cfg:             cfg,
		logger:          logger.Named("browser"),
		metadataAPI:     metadataAPI,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// NewSession opens a tab for jobID with stealth, network interception and a
// fresh metadata cache installed.
func (b *Browser) NewSession(ctx context.Context, jobID string) (*Session, error) {
	if b == nil || b.browserCtx.Err() != nil {
		return nil, ErrBrowserClosed
	}
	var opts []chromedp.ContextOption
	if b.cfg.IsolateSessions {
		opts = append(opts, chromedp.WithNewBrowserContext())
	}
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx, opts...)

	stopForward := forwardCancel(ctx, cancelTab)
	err := chromedp.Run(tabCtx)
	stopForward()
	if err != nil {
		cancelTab()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	s := newSession(tabCtx, cancelTab, jobID, b.cfg, b.logger)
	s.fetchBody = s.responseBody
	chromedp.ListenTarget(tabCtx, s.onEvent)
	s.InterceptResponses(b.metadataAPI.MatchString, s.storePayload)

	if err := s.setup(ctx); err != nil {
		s.Close()
		return nil, err
	}
	b.logger.Debug("session opened", zap.String("job_id", jobID))
	return s, nil
}

// Ready reports ErrBrowserClosed once the Chrome process is gone.
func (b *Browser) Ready(context.Context) error {
	if b == nil || b.browserCtx.Err() != nil {
		return ErrBrowserClosed
	}
	return nil
}

// Close tears down the chromedp allocator and browser contexts.
func (b *Browser) Close(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.browserCancel()
	b.allocatorCancel()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}

// forwardCancel cancels the chromedp operation context when the caller's
// context ends. The returned func stops forwarding.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
