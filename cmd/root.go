// Package cmd defines the gallery-scraper CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/config"
	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the slice of server.App the commands use.
type App interface {
	Run(ctx context.Context) error
	Scrape(ctx context.Context, cfg gallery.JobConfig) (gallery.Job, error)
	Close(ctx context.Context) error
	Logger() *zap.Logger
}

// newApp is the application factory; tests replace it.
var newApp = func(cfg config.Config) (App, error) {
	return server.Build(cfg)
}

type rootOptions struct {
	cfgFile  string
	logLevel string
	headful  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "gallery-scraper",
		Short: "Headless-browser scraper for media gallery metadata.",
		Long: `gallery-scraper drives a headless Chrome through a gallery listing,
discovers every item across infinite scroll and "load more" pagination, and
extracts normalized metadata for each item.

Run "serve" for the HTTP job API or "scrape" for a single listing.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			if opts.headful {
				cfg.Browser.Headless = false
			}
			appInstance, err := newApp(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")
	cmd.PersistentFlags().BoolVar(&opts.headful, "headful", false, "show the browser window")

	cmd.AddCommand(newServeCmd(), newScrapeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	if ctx == nil {
		return nil, errors.New("application services not initialized")
	}
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp runs fn with the App built by the root command and closes it
// afterwards, including when fn fails.
func withApp(cmd *cobra.Command, fn func(App) error) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := appInstance.Close(context.Background()); cerr != nil {
			appInstance.Logger().Warn("close failed", zap.Error(cerr))
		}
	}()
	return fn(appInstance)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
