package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/timmy/pagepipe/internal/app"
)

var rerunJobID string

var rerunCmd = &cobra.Command{
	Use:   "rerun",
	Short: "Re-process the failed and cancelled pages of a job",
	RunE:  runRerun,
}

func init() {
	rerunCmd.Flags().StringVarP(&rerunJobID, "job", "j", "", "job ID (required)")
	rerunCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(rerunCmd)
}

func runRerun(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		res, err := a.Jobs.Rerun(ctx, rerunJobID, runOptions())
		if perr := printResult(res); perr != nil {
			return perr
		}
		if err != nil {
			return fmt.Errorf("rerun %s: %w", rerunJobID, err)
		}
		return nil
	})
}
