package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/timmy/pagepipe/internal/app"
	"github.com/timmy/pagepipe/internal/domain"
)

var (
	statusJobID   string
	statusSummary bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the derived status of a job",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusJobID, "job", "j", "", "job ID (required)")
	statusCmd.Flags().BoolVar(&statusSummary, "summary", false, "also print the latest summary")
	statusCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		report, err := a.Jobs.Status(ctx, statusJobID)
		if err != nil {
			return err
		}
		if !statusSummary {
			return printJSON(report)
		}

		out := map[string]any{"status": report}
		summary, err := a.Jobs.LatestSummary(ctx, statusJobID)
		switch {
		case errors.Is(err, domain.ErrNoSummary):
		case err != nil:
			return err
		default:
			out["summary"] = summary
		}
		return printJSON(out)
	})
}
