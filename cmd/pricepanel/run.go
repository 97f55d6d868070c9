package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/pricepanel/internal/exitcode"
	"github.com/gyeh/pricepanel/internal/model"
)

var source string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract then build in one invocation",
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&source, "source", "lake", "Extraction source: lake or remote")
	addLakeFlags(f)
	addRemoteFlags(f)
	addBuildFlags(f)
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if source != "lake" && source != "remote" {
		return fmt.Errorf("--source must be lake or remote, got %q", source)
	}
	cfg, log := setup(cmd)
	ctx, stop := signalContext()
	defer stop()

	r := newRunner(cfg, log)
	var summary *model.ExtractSummary
	var err error
	if source == "lake" {
		summary, err = r.ExtractLake(ctx)
	} else {
		summary, err = r.ExtractRemote(ctx)
	}
	r.Progress.Wait()
	if summary != nil {
		printExtract(summary)
	}
	if err != nil {
		r.PushMetrics(context.Background(), "pricepanel_run")
		fail(log, "extraction failed", err)
	}

	err = buildAndPublish(ctx, r)
	r.PushMetrics(context.Background(), "pricepanel_run")
	if err != nil {
		fail(log, "build failed", err)
	}
	if summary.UnitsFailed > 0 {
		os.Exit(exitcode.PartialSuccess)
	}
	return nil
}
