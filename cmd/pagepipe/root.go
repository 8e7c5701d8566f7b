package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/pagepipe/internal/app"
	"github.com/timmy/pagepipe/internal/config"
	"github.com/timmy/pagepipe/internal/logger"
	"github.com/timmy/pagepipe/internal/pipeline"
)

var (
	cfgFile     string
	concurrency int
	deadline    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "pagepipe",
	Short: "Batch page-processing pipeline for scanned medical documents",
	Long: `pagepipe splits a document into pages, extracts and classifies every page
in bounded parallel batches, and writes a document-level summary once every
page has finished.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "pages processed in parallel (0 uses the config value)")
	rootCmd.PersistentFlags().DurationVar(&deadline, "deadline", 0, "cancel pages still running after this long (0 uses the config value)")
}

// runOptions returns the per-run overrides given on the command line.
func runOptions() pipeline.RunOptions {
	return pipeline.RunOptions{Concurrency: concurrency, Deadline: deadline}
}

// withApp loads configuration, builds the application and runs fn with a
// context that SIGINT and SIGTERM cancel.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app.NewLogger("pagepipe-cli", cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult writes the outcome of a run: the status report and the
// summary narrative when one was produced.
func printResult(res *pipeline.RunResult) error {
	if res == nil {
		return nil
	}
	out := map[string]any{
		"job_id":    res.Outcome.JobID,
		"succeeded": res.Outcome.Succeeded,
		"failed":    res.Outcome.Failed,
		"cancelled": res.Outcome.Cancelled,
	}
	if res.Report != nil {
		out["status"] = res.Report.Status
		out["progress"] = res.Report.Progress
	}
	if res.Summary != nil {
		out["summary_version"] = res.Summary.Version
		out["narrative"] = res.Summary.Narrative
		out["degraded"] = res.Summary.Degraded
	}
	return printJSON(out)
}
