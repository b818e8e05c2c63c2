package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/export"
	"github.com/JakeFAU/gallery-scraper/internal/gallery"
)

type scrapeOptions struct {
	maxItems      int
	noDetails     bool
	noScroll      bool
	scrollDelayMs int
	format        string
	output        string
}

func newScrapeCmd() *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape <listing-url>",
		Short: "Scrape one gallery listing and print the records",
		Long: `Runs a single job in the foreground and writes the extracted records as
JSON, CSV or a text table. A job that fails after extracting some items still
writes what it has before returning the error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, args[0], opts)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&opts.maxItems, "max-items", 0, "stop after this many items (0 = all)")
	flags.BoolVar(&opts.noDetails, "no-details", false, "skip item detail pages")
	flags.BoolVar(&opts.noScroll, "no-scroll", false, "only read the initially rendered listing")
	flags.IntVar(&opts.scrollDelayMs, "scroll-delay", 1500, "milliseconds to wait after each scroll (500-5000)")
	flags.StringVarP(&opts.format, "format", "f", "json", "output format: json, csv or table")
	flags.StringVarP(&opts.output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func runScrape(cmd *cobra.Command, listingURL string, opts *scrapeOptions) error {
	return withApp(cmd, func(appInstance App) error {
		format, err := export.ParseFormat(opts.format)
		if err != nil {
			return err
		}
		return scrapeOnce(cmd, appInstance, listingURL, opts, format)
	})
}

func scrapeOnce(cmd *cobra.Command, appInstance App, listingURL string, opts *scrapeOptions, format export.Format) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job, runErr := appInstance.Scrape(ctx, gallery.JobConfig{
		URL:            listingURL,
		MaxItems:       opts.maxItems,
		ExtractDetails: !opts.noDetails,
		AutoScroll:     !opts.noScroll,
		ScrollDelayMs:  opts.scrollDelayMs,
	})
	if job.ID == "" {
		return fmt.Errorf("scrape: %w", runErr)
	}
	appInstance.Logger().Info("scrape finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int("records", len(job.Records)),
		zap.Int("failed", job.Counters.ItemsFailed),
	)

	if err := writeOutput(cmd.OutOrStdout(), opts.output, job, format); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("scrape: %w", runErr)
	}
	return nil
}

func writeOutput(stdout io.Writer, path string, job gallery.Job, format export.Format) (err error) {
	w := stdout
	if path != "" {
		f, ferr := os.Create(path)
		if ferr != nil {
			return fmt.Errorf("create output: %w", ferr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close output: %w", cerr)
			}
		}()
		w = f
	}
	if err := export.Write(w, job, format); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

