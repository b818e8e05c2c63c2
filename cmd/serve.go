package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job API and worker pool",
		Long: `Starts the job API, the worker pool and the shared headless browser.
Jobs are submitted with POST /v1/jobs and polled with GET /v1/jobs/{id}.
SIGINT or SIGTERM drains the server and cancels running jobs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(appInstance App) error {
				if err := appInstance.Run(cmd.Context()); err != nil {
					return fmt.Errorf("run server: %w", err)
				}
				return nil
			})
		},
	}
}
