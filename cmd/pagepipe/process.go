package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/timmy/pagepipe/internal/app"
	"github.com/timmy/pagepipe/internal/service"
)

var (
	processFile string
	processDir  string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process a PDF or a directory of page images as a new job",
	Long: `Process renders the document into pages, records a new job and processes
every page. Interrupting the command cancels pages that are still running;
they can be picked up later with "pagepipe rerun".`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processFile, "file", "f", "", "path to a PDF document")
	processCmd.Flags().StringVarP(&processDir, "dir", "d", "", "path to a directory of page images")
	processCmd.MarkFlagsMutuallyExclusive("file", "dir")
	processCmd.MarkFlagsOneRequired("file", "dir")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	src := service.Source{Kind: service.SourcePDF, Path: processFile}
	if processDir != "" {
		src = service.Source{Kind: service.SourceImageDir, Path: processDir}
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		res, err := a.Jobs.Process(ctx, src, runOptions())
		if perr := printResult(res); perr != nil {
			return perr
		}
		if err != nil {
			return fmt.Errorf("process %s: %w", src.Path, err)
		}
		return nil
	})
}
