// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/gallery-scraper/internal/browser"
	"github.com/JakeFAU/gallery-scraper/internal/discovery"
	"github.com/JakeFAU/gallery-scraper/internal/extract"
	"github.com/JakeFAU/gallery-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/gallery-scraper/internal/progress"
	"github.com/JakeFAU/gallery-scraper/internal/sanitize"
	"github.com/JakeFAU/gallery-scraper/internal/scrape"
)

// EnvPrefix namespaces environment overrides, e.g. SCRAPER_SERVER_PORT.
const EnvPrefix = "SCRAPER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Site      SiteConfig      `mapstructure:"site"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScraperConfig governs the worker pool and job pacing.
type ScraperConfig struct {
	Concurrency       int `mapstructure:"concurrency"`
	QueueDepth        int `mapstructure:"queue_depth"`
	JobTimeoutSeconds int `mapstructure:"job_timeout_seconds"`
	MinItemDelayMs    int `mapstructure:"min_item_delay_ms"`
	MaxItemDelayMs    int `mapstructure:"max_item_delay_ms"`
	TimelineCapacity  int `mapstructure:"timeline_capacity"`
	ProgressBuffer    int `mapstructure:"progress_buffer"`
}

// BrowserConfig configures the shared Chrome process and its tabs.
type BrowserConfig struct {
	Headless              bool   `mapstructure:"headless"`
	ExecPath              string `mapstructure:"exec_path"`
	UserAgent             string `mapstructure:"user_agent"`
	AcceptLanguage        string `mapstructure:"accept_language"`
	WindowWidth           int    `mapstructure:"window_width"`
	WindowHeight          int    `mapstructure:"window_height"`
	IsolateSessions       bool   `mapstructure:"isolate_sessions"`
	ListingTimeoutSeconds int    `mapstructure:"listing_timeout_seconds"`
	DetailTimeoutSeconds  int    `mapstructure:"detail_timeout_seconds"`
	IdleGraceSeconds      int    `mapstructure:"idle_grace_seconds"`
	RetryBaseDelayMs      int    `mapstructure:"retry_base_delay_ms"`
	MaxAttempts           int    `mapstructure:"max_attempts"`
	MarkerWaitSeconds     int    `mapstructure:"marker_wait_seconds"`
	CacheMaxEntries       int    `mapstructure:"cache_max_entries"`
}

// SiteConfig holds the markup-specific selectors and patterns of the target
// gallery. Empty values fall back to the component defaults.
type SiteConfig struct {
	MetadataAPIPattern     string   `mapstructure:"metadata_api_pattern"`
	ComponentSelector      string   `mapstructure:"component_selector"`
	ComponentIDAttr        string   `mapstructure:"component_id_attr"`
	ComponentNamespaceAttr string   `mapstructure:"component_namespace_attr"`
	DataAttr               string   `mapstructure:"data_attr"`
	ControlSelector        string   `mapstructure:"control_selector"`
	LabelMarker            string   `mapstructure:"label_marker"`
	ItemPattern            string   `mapstructure:"item_pattern"`
	DetailTemplate         string   `mapstructure:"detail_template"`
	LoadMorePattern        string   `mapstructure:"load_more_pattern"`
	EntrySelector          string   `mapstructure:"entry_selector"`
	LabelSelector          string   `mapstructure:"label_selector"`
	ValueSelector          string   `mapstructure:"value_selector"`
	TitleSelector          string   `mapstructure:"title_selector"`
	CaptionSelector        string   `mapstructure:"caption_selector"`
	HydrationSelector      string   `mapstructure:"hydration_selector"`
	HydrationPaths         []string `mapstructure:"hydration_paths"`
	Blocklist              []string `mapstructure:"blocklist"`
	MaxFieldLength         int      `mapstructure:"max_field_length"`
}

// DiscoveryConfig tunes the listing state machine.
type DiscoveryConfig struct {
	SettleBufferMs   int `mapstructure:"settle_buffer_ms"`
	PatienceRounds   int `mapstructure:"patience_rounds"`
	MaxRevisits      int `mapstructure:"max_revisits"`
	MaxIterations    int `mapstructure:"max_iterations"`
	NamespaceHashLen int `mapstructure:"namespace_hash_len"`
}

// RateLimitConfig sets the API client and per-site token buckets.
type RateLimitConfig struct {
	ClientRPS   float64 `mapstructure:"client_rps"`
	ClientBurst int     `mapstructure:"client_burst"`
	SiteRPS     float64 `mapstructure:"site_rps"`
	SiteBurst   int     `mapstructure:"site_burst"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	b := browser.DefaultConfig()
	d := discovery.DefaultConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("scraper.concurrency", 2)
	v.SetDefault("scraper.queue_depth", 64)
	v.SetDefault("scraper.job_timeout_seconds", 0)
	v.SetDefault("scraper.min_item_delay_ms", scrape.DefaultMinItemDelay.Milliseconds())
	v.SetDefault("scraper.max_item_delay_ms", scrape.DefaultMaxItemDelay.Milliseconds())
	v.SetDefault("scraper.timeline_capacity", 500)
	v.SetDefault("scraper.progress_buffer", progress.DefaultBufferSize)

	v.SetDefault("browser.headless", b.Headless)
	v.SetDefault("browser.user_agent", b.UserAgent)
	v.SetDefault("browser.accept_language", b.AcceptLanguage)
	v.SetDefault("browser.window_width", b.WindowWidth)
	v.SetDefault("browser.window_height", b.WindowHeight)
	v.SetDefault("browser.isolate_sessions", b.IsolateSessions)
	v.SetDefault("browser.listing_timeout_seconds", int(b.ListingTimeout/time.Second))
	v.SetDefault("browser.detail_timeout_seconds", int(b.DetailTimeout/time.Second))
	v.SetDefault("browser.idle_grace_seconds", int(b.IdleGrace/time.Second))
	v.SetDefault("browser.retry_base_delay_ms", b.RetryBaseDelay.Milliseconds())
	v.SetDefault("browser.max_attempts", b.MaxAttempts)
	v.SetDefault("browser.marker_wait_seconds", int(b.MarkerWait/time.Second))
	v.SetDefault("browser.cache_max_entries", b.CacheMaxEntries)

	v.SetDefault("site.metadata_api_pattern", b.MetadataAPIPattern)
	v.SetDefault("site.item_pattern", d.ItemPattern)
	v.SetDefault("site.detail_template", d.DetailTemplate)
	v.SetDefault("site.load_more_pattern", d.LoadMorePattern)

	v.SetDefault("discovery.settle_buffer_ms", d.SettleBuffer.Milliseconds())
	v.SetDefault("discovery.patience_rounds", d.PatienceRounds)
	v.SetDefault("discovery.max_revisits", d.MaxRevisits)
	v.SetDefault("discovery.max_iterations", d.MaxIterations)
	v.SetDefault("discovery.namespace_hash_len", d.NamespaceHashLen)

	v.SetDefault("ratelimit.client_rps", 0.2)
	v.SetDefault("ratelimit.client_burst", 5)
	v.SetDefault("ratelimit.site_rps", 0.5)
	v.SetDefault("ratelimit.site_burst", 1)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Scraper.Concurrency <= 0 {
		return errors.New("scraper.concurrency must be > 0")
	}
	if c.Scraper.QueueDepth < 0 {
		return errors.New("scraper.queue_depth must be >= 0")
	}
	if c.Scraper.JobTimeoutSeconds < 0 {
		return errors.New("scraper.job_timeout_seconds must be >= 0")
	}
	if c.Scraper.MaxItemDelayMs < c.Scraper.MinItemDelayMs {
		return errors.New("scraper.max_item_delay_ms must be >= scraper.min_item_delay_ms")
	}
	if c.Browser.MaxAttempts <= 0 {
		return errors.New("browser.max_attempts must be > 0")
	}
	if c.Browser.CacheMaxEntries <= 0 {
		return errors.New("browser.cache_max_entries must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	for key, pattern := range map[string]string{
		"site.metadata_api_pattern": c.Site.MetadataAPIPattern,
		"site.item_pattern":         c.Site.ItemPattern,
		"site.load_more_pattern":    c.Site.LoadMorePattern,
	} {
		if pattern == "" {
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// JobTimeout returns the per-job limit; zero means none.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Scraper.JobTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// BrowserOptions maps the browser and site sections onto browser.Config.
func (c Config) BrowserOptions() browser.Config {
	b := c.Browser
	return browser.Config{
		Headless:           b.Headless,
		ExecPath:           b.ExecPath,
		UserAgent:          b.UserAgent,
		AcceptLanguage:     b.AcceptLanguage,
		WindowWidth:        b.WindowWidth,
		WindowHeight:       b.WindowHeight,
		IsolateSessions:    b.IsolateSessions,
		ListingTimeout:     time.Duration(b.ListingTimeoutSeconds) * time.Second,
		DetailTimeout:      time.Duration(b.DetailTimeoutSeconds) * time.Second,
		IdleGrace:          time.Duration(b.IdleGraceSeconds) * time.Second,
		RetryBaseDelay:     time.Duration(b.RetryBaseDelayMs) * time.Millisecond,
		MaxAttempts:        b.MaxAttempts,
		MarkerWait:         time.Duration(b.MarkerWaitSeconds) * time.Second,
		CacheMaxEntries:    b.CacheMaxEntries,
		MetadataAPIPattern: c.Site.MetadataAPIPattern,
		Selectors: browser.Selectors{
			Component:              c.Site.ComponentSelector,
			ComponentIDAttr:        c.Site.ComponentIDAttr,
			ComponentNamespaceAttr: c.Site.ComponentNamespaceAttr,
			DataAttr:               c.Site.DataAttr,
			Controls:               c.Site.ControlSelector,
			LabelMarker:            c.Site.LabelMarker,
		},
	}
}

// DiscoveryOptions maps the discovery and site sections onto discovery.Config.
// The scroll delay is per job and set by the orchestrator.
func (c Config) DiscoveryOptions() discovery.Config {
	cfg := discovery.DefaultConfig()
	d := c.Discovery
	cfg.SettleBuffer = time.Duration(d.SettleBufferMs) * time.Millisecond
	cfg.PatienceRounds = d.PatienceRounds
	cfg.MaxRevisits = d.MaxRevisits
	cfg.MaxIterations = d.MaxIterations
	cfg.NamespaceHashLen = d.NamespaceHashLen
	if c.Site.ItemPattern != "" {
		cfg.ItemPattern = c.Site.ItemPattern
	}
	if c.Site.DetailTemplate != "" {
		cfg.DetailTemplate = c.Site.DetailTemplate
	}
	if c.Site.LoadMorePattern != "" {
		cfg.LoadMorePattern = c.Site.LoadMorePattern
	}
	return cfg
}

// ScrapeOptions maps the scraper and site sections onto scrape.Config.
func (c Config) ScrapeOptions() scrape.Config {
	return scrape.Config{
		MinItemDelay: time.Duration(c.Scraper.MinItemDelayMs) * time.Millisecond,
		MaxItemDelay: time.Duration(c.Scraper.MaxItemDelayMs) * time.Millisecond,
		Extract: extract.Config{
			EntrySelector:     c.Site.EntrySelector,
			LabelSelector:     c.Site.LabelSelector,
			ValueSelector:     c.Site.ValueSelector,
			TitleSelector:     c.Site.TitleSelector,
			CaptionSelector:   c.Site.CaptionSelector,
			HydrationSelector: c.Site.HydrationSelector,
			HydrationPaths:    c.Site.HydrationPaths,
		},
	}
}

// Sanitizer builds the field sanitizer from the site section.
func (c Config) Sanitizer() *sanitize.Sanitizer {
	return sanitize.New(c.Site.MaxFieldLength, 0, c.Site.Blocklist)
}

// ClientLimits returns the API client token bucket settings.
func (c Config) ClientLimits() ratelimit.Config {
	return ratelimit.Config{DefaultRPS: c.RateLimit.ClientRPS, DefaultBurst: c.RateLimit.ClientBurst}
}

// SiteLimits returns the per-site token bucket settings.
func (c Config) SiteLimits() ratelimit.Config {
	return ratelimit.Config{DefaultRPS: c.RateLimit.SiteRPS, DefaultBurst: c.RateLimit.SiteBurst}
}
