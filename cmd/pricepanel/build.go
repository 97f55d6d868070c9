package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Unpivot, clean, classify and assemble the work dir extracts into the panel",
	RunE:  runBuild,
}

func init() {
	addBuildFlags(buildCmd.Flags())
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, log := setup(cmd)
	ctx, stop := signalContext()
	defer stop()

	r := newRunner(cfg, log)
	err := buildAndPublish(ctx, r)
	r.PushMetrics(context.Background(), "pricepanel_build")
	if err != nil {
		fail(log, "build failed", err)
	}
	return nil
}

func buildAndPublish(ctx context.Context, r *pipeline.Runner) error {
	res, err := r.Build(ctx)
	if err != nil {
		return err
	}
	if err := r.Publish(ctx, res); err != nil {
		return err
	}
	printBuild(res.Summary)
	return nil
}

func printBuild(s *model.BuildSummary) {
	fmt.Printf("Build complete: %d raw rows, %d observations, %d clean rates, %d panel rows (%.1fs)\n",
		s.RawRows, s.Observations, s.CleanRows, s.PanelRows, s.DurationTotal.Seconds())
	fmt.Printf("  dropped: %d no code, %d not a target, %d invalid charge, %d without hospital; %d ambiguous resolved as DRG\n",
		s.DroppedNoCode, s.DroppedNotTarget, s.DroppedCharge, s.PanelDropped, s.Ambiguous)
	fmt.Printf("  hospitals: %d (%d with rate data)\n", s.Hospitals, s.HospitalsWithData)
	fmt.Printf("  target codes: %d covered, %d without rates\n", s.CodesCovered, len(s.CodesUncovered))
	for _, k := range s.CodesUncovered {
		fmt.Printf("    %s %s\n", k.CodeType, k.Code)
	}
	for _, f := range s.OutputFiles {
		fmt.Printf("  wrote %s\n", f)
	}
}
