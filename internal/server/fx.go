// Package server builds the scraper service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/api"
	"github.com/JakeFAU/gallery-scraper/internal/browser"
	"github.com/JakeFAU/gallery-scraper/internal/clock/system"
	"github.com/JakeFAU/gallery-scraper/internal/config"
	"github.com/JakeFAU/gallery-scraper/internal/discovery"
	"github.com/JakeFAU/gallery-scraper/internal/dispatcher"
	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/id/uuid"
	"github.com/JakeFAU/gallery-scraper/internal/logging"
	"github.com/JakeFAU/gallery-scraper/internal/metrics"
	"github.com/JakeFAU/gallery-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/gallery-scraper/internal/progress"
	progresssinks "github.com/JakeFAU/gallery-scraper/internal/progress/sinks"
	queueMemory "github.com/JakeFAU/gallery-scraper/internal/queue/memory"
	"github.com/JakeFAU/gallery-scraper/internal/scrape"
	"github.com/JakeFAU/gallery-scraper/internal/storage/memory"
	"github.com/JakeFAU/gallery-scraper/internal/worker"
)

var errShuttingDown = errors.New("service shutting down")

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	browser      *browser.Browser
	open         scrape.Opener
	registerer   prometheus.Registerer
	jobStore     *memory.JobStore
	timeline     *memory.TimelineStore
	progressHub  *progress.Hub
	queue        *queueMemory.Queue
	cancels      *worker.Registry
	orchestrator *scrape.Orchestrator
	dispatch     *dispatcher.Dispatcher
	apiServer    *api.Server

	closeOnce sync.Once
}

// Option customizes Build.
type Option func(*App)

// WithLogger skips logger construction.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithOpener replaces the Chrome-backed session opener; no browser is started.
func WithOpener(open scrape.Opener) Option {
	return func(a *App) { a.open = open }
}

// WithRegisterer registers progress collectors on reg instead of the default
// Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// Build creates the application's dependencies.
func Build(cfg config.Config, opts ...Option) (*App, error) {
	app := &App{cfg: cfg, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
		app.logger = logger
	}
	metrics.Init()
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Int("concurrency", cfg.Scraper.Concurrency),
		zap.Bool("auth", cfg.Auth.Enabled),
	)

	clock := system.New()
	app.jobStore = memory.NewJobStore(uuid.New(), clock)
	app.timeline = memory.NewTimelineStore(cfg.Scraper.TimelineCapacity)

	if err := app.setupBrowser(); err != nil {
		return nil, err
	}
	if err := app.setupProgress(); err != nil {
		app.closeBrowser(context.Background())
		return nil, err
	}
	if err := app.setupOrchestrator(clock); err != nil {
		app.closeInfrastructure(context.Background())
		return nil, err
	}
	app.setupDispatcher()

	app.apiServer = api.NewServer(
		app.jobStore,
		app.dispatch,
		clock,
		cfg,
		app.logger,
		api.WithRateLimiter(ratelimit.New(cfg.ClientLimits())),
		api.WithTimeline(app.timeline),
		api.WithReadiness(app.ready),
	)
	return app, nil
}

func (a *App) setupBrowser() error {
	if a.open != nil {
		a.logger.Info("using injected session opener")
		return nil
	}
	b, err := browser.New(a.cfg.BrowserOptions(), a.logger)
	if err != nil {
		return fmt.Errorf("browser init failed: %w", err)
	}
	a.browser = b
	a.open = func(ctx context.Context, jobID string) (scrape.Session, error) {
		s, err := b.NewSession(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	a.logger.Info("headless browser started",
		zap.Bool("headless", a.cfg.Browser.Headless),
		zap.Bool("isolate_sessions", a.cfg.Browser.IsolateSessions),
	)
	return nil
}

func (a *App) setupProgress() error {
	promSink, err := progresssinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewTimelineSink(a.timeline, a.logger.Named("progress_timeline")),
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	}
	a.progressHub = progress.NewHub(progress.Config{
		BufferSize: a.cfg.Scraper.ProgressBuffer,
		Logger:     a.logger,
	}, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("buffer_size", a.cfg.Scraper.ProgressBuffer),
		zap.Int("sinks", len(sinkList)),
	)
	return nil
}

func (a *App) setupOrchestrator(clock gallery.Clock) error {
	engine, err := discovery.New(a.cfg.DiscoveryOptions(), a.logger)
	if err != nil {
		return fmt.Errorf("discovery init failed: %w", err)
	}
	siteLimits := a.cfg.SiteLimits()
	a.orchestrator = scrape.New(
		a.cfg.ScrapeOptions(),
		a.jobStore,
		a.open,
		engine,
		a.logger,
		scrape.WithEmitter(a.progressHub),
		scrape.WithSiteLimiter(ratelimit.New(siteLimits)),
		scrape.WithClock(clock),
		scrape.WithSanitizer(a.cfg.Sanitizer()),
	)
	a.logger.Info("scrape orchestrator configured",
		zap.Float64("site_rps", siteLimits.DefaultRPS),
		zap.Int("site_burst", siteLimits.DefaultBurst),
		zap.Int("min_item_delay_ms", a.cfg.Scraper.MinItemDelayMs),
		zap.Int("max_item_delay_ms", a.cfg.Scraper.MaxItemDelayMs),
	)
	return nil
}

func (a *App) setupDispatcher() {
	a.queue = queueMemory.NewQueue(a.cfg.Scraper.QueueDepth)
	a.cancels = worker.NewRegistry()
	workerCfg := worker.Config{JobTimeout: a.cfg.JobTimeout()}
	workers := make([]*worker.Worker, 0, a.cfg.Scraper.Concurrency)
	for i := 0; i < a.cfg.Scraper.Concurrency; i++ {
		workers = append(workers, worker.New(
			i,
			a.queue,
			a.jobStore,
			a.orchestrator,
			a.cancels,
			workerCfg,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	a.dispatch = dispatcher.New(a.queue, a.jobStore, workers, a.cancels)
	a.logger.Info("worker pool configured",
		zap.Int("workers", len(workers)),
		zap.Int("queue_depth", a.cfg.Scraper.QueueDepth),
		zap.Duration("job_timeout", workerCfg.JobTimeout),
	)
}

func (a *App) ready(ctx context.Context) error {
	if a.browser != nil {
		if err := a.browser.Ready(ctx); err != nil {
			return fmt.Errorf("browser: %w", err)
		}
	}
	return nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Scrape runs one job in the calling goroutine, bypassing the queue.
func (a *App) Scrape(ctx context.Context, jobCfg gallery.JobConfig) (gallery.Job, error) {
	job, err := a.jobStore.Create(ctx, jobCfg)
	if err != nil {
		return gallery.Job{}, fmt.Errorf("create job: %w", err)
	}
	if timeout := a.cfg.JobTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	a.logger.Info("scrape started", zap.String("job_id", job.ID), zap.String("url", job.URL))
	return a.orchestrator.Run(ctx, job)
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close cancels running jobs and shuts down the application. Calls after the
// first are no-ops.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() { a.shutdown(ctx) })
	return nil
}

func (a *App) shutdown(ctx context.Context) {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.cancels != nil {
		if n := a.cancels.CancelAll(errShuttingDown); n > 0 {
			a.logger.Warn("canceled running jobs", zap.Int("jobs", n))
		}
	}
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	a.closeBrowser(ctx)
}

func (a *App) closeBrowser(ctx context.Context) {
	if a.browser == nil {
		return
	}
	if err := a.browser.Close(ctx); err != nil {
		a.logger.Warn("browser close failed", zap.Error(err))
	}
}
