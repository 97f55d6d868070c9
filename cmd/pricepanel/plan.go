package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/pricepanel/internal/exitcode"
	"github.com/gyeh/pricepanel/internal/lake"
	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/normalize"
	"github.com/gyeh/pricepanel/internal/registry"
	"github.com/gyeh/pricepanel/internal/remote"
)

var sampleRows int

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run: validate inputs and estimate matches (no writes)",
	RunE:  runPlan,
}

func init() {
	f := planCmd.Flags()
	f.IntVar(&sampleRows, "sample-rows", 1000, "Rows sampled per lake file")
	addLakeFlags(f)
	f.String("state-dir", "state", "Remote extraction state directory to report on")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, log := setup(cmd)
	ctx := context.Background()

	reg, err := registry.Load(cfg.TargetsFile)
	if err != nil {
		fatal(log, "target code list invalid", err, exitcode.PreconditionError)
	}

	fmt.Println("=== pricepanel plan ===")
	fmt.Printf("Target codes: %d (%d DRG, %d procedure)\n", reg.Len(),
		len(reg.Codes(model.CodeTypeDRG)), len(reg.Codes(model.CodeTypeProcedure)))

	if cfg.LakeDir != "" {
		if err := cfg.ValidateLake(); err != nil {
			fatal(log, "lake validation failed", err, exitcode.PreconditionError)
		}
		partitions, err := lake.ListPartitions(cfg.LakeDir)
		if err != nil {
			fatal(log, "listing partitions failed", err, exitcode.PreconditionError)
		}
		plans, err := lake.Plan(ctx, cfg.LakeDir, partitions, reg.Filter(), sampleRows)
		if err != nil {
			fatal(log, "plan interrupted", err, exitcode.ExtractError)
		}

		fmt.Printf("\nLake:       %s\n", cfg.LakeDir)
		if sha, err := normalize.FileHash(cfg.HospitalsPath()); err != nil {
			fmt.Printf("Hospitals:  %s (unreadable: %v)\n", cfg.HospitalsPath(), err)
		} else {
			fmt.Printf("Hospitals:  %s\nSHA-256:    %s\n", cfg.HospitalsPath(), sha)
		}
		fmt.Printf("Partitions: %d\n\n", len(plans))

		var rows, est int64
		bad := 0
		for i := range plans {
			p := &plans[i]
			if p.Err != nil {
				bad++
				fmt.Printf("  %-24s FAILED: %v\n", p.Partition, p.Err)
				continue
			}
			rows += p.Rows
			est += p.EstimatedMatches()
			fmt.Printf("  %-24s %3d files %12d rows  %6d/%-6d sampled match → ~%d rows\n",
				p.Partition, p.Files, p.Rows, p.Matched, p.Sampled, p.EstimatedMatches())
		}
		fmt.Printf("\nTotal rows: %d, estimated matches: ~%d, unreadable partitions: %d\n", rows, est, bad)
	}

	if _, err := os.Stat(cfg.StateDir); err == nil {
		store, err := remote.OpenStore(cfg.StateDir)
		if err != nil {
			fatal(log, "opening state dir failed", err, exitcode.PreconditionError)
		}
		defer store.Close()
		hospitals, cached, err := store.LoadHospitals()
		if err != nil {
			log.Warn().Err(err).Msg("hospital cache unreadable")
		}
		fmt.Printf("\nRemote state: %s\n", cfg.StateDir)
		fmt.Printf("  entities done: %d\n", len(store.Done()))
		if cached {
			fmt.Printf("  hospitals cached: %d (%d remaining)\n", len(hospitals), remaining(store, hospitals))
		}
	}
	return nil
}

func remaining(store *remote.ProgressStore, hospitals []model.Hospital) int {
	n := 0
	for _, h := range hospitals {
		if !store.IsDone(h.EntityID) {
			n++
		}
	}
	return n
}
