package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/gyeh/pricepanel/internal/db"
	"github.com/gyeh/pricepanel/internal/lake"
	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/output"
	"github.com/gyeh/pricepanel/internal/registry"
	"github.com/gyeh/pricepanel/internal/remote"
)

// ExtractLake scans every lake partition and writes the DRG, procedure and
// hospital extracts to the work dir. Failed partitions are reported in the
// summary, not as an error.
func (r *Runner) ExtractLake(ctx context.Context) (*model.ExtractSummary, error) {
	start := time.Now()
	defer r.observe("extract_lake", start)
	cfg := r.Cfg

	reg, err := registry.Load(cfg.TargetsFile)
	if err != nil {
		return nil, &PipelineError{Phase: PhasePrecondition, Err: err}
	}
	if err := cfg.ValidateLake(); err != nil {
		return nil, &PipelineError{Phase: PhasePrecondition, Err: fmt.Errorf("%w: %v", model.ErrMissingPrerequisite, err)}
	}
	partitions, err := lake.ListPartitions(cfg.LakeDir)
	if err != nil {
		return nil, phaseErr(PhaseExtract, err)
	}
	if len(partitions) == 0 {
		return nil, &PipelineError{Phase: PhasePrecondition, Err: fmt.Errorf("%w: no partitions under %s", model.ErrMissingPrerequisite, cfg.LakeDir)}
	}
	hospitals, err := lake.LoadHospitals(cfg.HospitalsPath())
	if err != nil {
		return nil, phaseErr(PhaseExtract, err)
	}

	r.Log.Info().
		Int("partitions", len(partitions)).
		Int("hospitals", len(hospitals)).
		Int("target_codes", reg.Len()).
		Int("workers", cfg.ScanWorkers).
		Msg("starting lake extraction")

	ex := &lake.Extractor{
		Dir:      cfg.LakeDir,
		Filter:   reg.Filter(),
		Workers:  cfg.ScanWorkers,
		Log:      r.Log,
		Metrics:  r.Metrics,
		Progress: r.Progress,
	}
	report, err := ex.Extract(ctx, partitions)
	if err != nil {
		return nil, &PipelineError{Phase: PhaseExtract, Err: err}
	}

	drg, proc := report.DRG(), report.Procedure()
	if err := r.writeExtract(drg, proc, hospitals); err != nil {
		return nil, &PipelineError{Phase: PhaseExtract, Err: err}
	}

	summary := &model.ExtractSummary{
		RunID:         r.RunID.String(),
		Source:        "lake",
		Units:         len(partitions),
		UnitsOK:       report.Count(model.StatusOK),
		UnitsEmpty:    report.Count(model.StatusEmpty),
		UnitsFailed:   report.Count(model.StatusFailed),
		RowsDRG:       int64(len(drg)),
		RowsProcedure: int64(len(proc)),
		Hospitals:     len(hospitals),
		DurationTotal: time.Since(start),
	}
	for _, f := range report.Failed() {
		r.Log.Warn().Str("partition", f.Partition).Err(f.Err).Msg("partition excluded from extract")
	}
	r.logExtract(summary)
	return summary, nil
}

// ExtractRemote runs the paginated remote extraction against the configured
// HTTP API or Postgres source, then reassembles every completed entity's
// partial file into the work dir extracts. An interrupted run still
// reassembles what completed and returns a PipelineError.
func (r *Runner) ExtractRemote(ctx context.Context) (*model.ExtractSummary, error) {
	start := time.Now()
	defer r.observe("extract_remote", start)
	cfg := r.Cfg

	reg, err := registry.Load(cfg.TargetsFile)
	if err != nil {
		return nil, &PipelineError{Phase: PhasePrecondition, Err: err}
	}
	if err := cfg.ValidateRemote(); err != nil {
		return nil, &PipelineError{Phase: PhasePrecondition, Err: err}
	}

	var src remote.Source
	if cfg.RemoteDSN != "" {
		pool, err := db.NewPool(ctx, cfg.RemoteDSN, "")
		if err != nil {
			return nil, &PipelineError{Phase: PhaseConnect, Err: err}
		}
		defer pool.Close()
		src = remote.NewPGSource(pool)
	} else {
		src = remote.NewHTTPSource(cfg.RemoteURL, cfg.RemoteToken, cfg.PageSize, cfg.RequestTimeout)
	}
	src = remote.NewResilient(src, remote.ResilienceConfig{
		MaxRetries:      cfg.MaxRetries,
		BaseDelay:       cfg.RetryBaseDelay,
		RequestTimeout:  cfg.RequestTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
	}, r.Log, r.Metrics)

	store, err := remote.OpenStore(cfg.StateDir)
	if err != nil {
		return nil, &PipelineError{Phase: PhasePrecondition, Err: err}
	}
	defer store.Close()

	r.Log.Info().
		Str("state_dir", cfg.StateDir).
		Int("already_done", len(store.Done())).
		Int("target_codes", reg.Len()).
		Int("page_size", cfg.PageSize).
		Msg("starting remote extraction")

	ex := &remote.Extractor{
		Source:           src,
		Store:            store,
		Filter:           reg.Filter(),
		PageSize:         cfg.PageSize,
		EntityDelay:      cfg.EntityDelay,
		EmptyEntityDelay: cfg.EmptyEntityDelay,
		ErrorCooldown:    cfg.ErrorCooldown,
		Log:              r.Log,
		Metrics:          r.Metrics,
		Progress:         r.Progress,
	}
	report, err := ex.Run(ctx)
	if err != nil {
		return nil, &PipelineError{Phase: PhaseExtract, Err: err}
	}

	combined, err := remote.Reassemble(store, r.Log)
	if err != nil {
		return nil, &PipelineError{Phase: PhaseExtract, Err: err}
	}
	if err := r.writeExtract(combined.DRG, combined.Procedure, report.Hospitals); err != nil {
		return nil, &PipelineError{Phase: PhaseExtract, Err: err}
	}

	summary := &model.ExtractSummary{
		RunID:         r.RunID.String(),
		Source:        "remote",
		Units:         len(report.Hospitals),
		UnitsOK:       report.Count(model.StatusOK),
		UnitsEmpty:    report.Count(model.StatusEmpty),
		UnitsFailed:   report.Count(model.StatusFailed),
		UnitsSkipped:  report.Count(model.StatusSkipped),
		RowsDRG:       int64(len(combined.DRG)),
		RowsProcedure: int64(len(combined.Procedure)),
		RowsInvalid:   combined.Invalid,
		Hospitals:     len(report.Hospitals),
		DurationTotal: time.Since(start),
	}
	r.logExtract(summary)
	if report.Interrupted {
		return summary, &PipelineError{Phase: PhaseExtract, Err: fmt.Errorf("interrupted after %d of %d entities: %w",
			len(report.Entities), len(report.Hospitals), context.Cause(ctx))}
	}
	return summary, nil
}

func (r *Runner) writeExtract(drg, proc []model.RawChargeRow, hospitals []model.Hospital) error {
	files := []struct {
		name  string
		write func(string) error
	}{
		{DRGRawFile, func(p string) error { return output.WriteParquet(p, drg) }},
		{ProcedureRawFile, func(p string) error { return output.WriteParquet(p, proc) }},
		{HospitalsFile, func(p string) error { return output.WriteParquet(p, hospitals) }},
	}
	for _, f := range files {
		if err := f.write(r.workPath(f.name)); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

func (r *Runner) logExtract(s *model.ExtractSummary) {
	r.Log.Info().
		Str("source", s.Source).
		Int("units", s.Units).
		Int("ok", s.UnitsOK).
		Int("empty", s.UnitsEmpty).
		Int("skipped", s.UnitsSkipped).
		Int("failed", s.UnitsFailed).
		Int64("rows_drg", s.RowsDRG).
		Int64("rows_procedure", s.RowsProcedure).
		Int64("rows_invalid", s.RowsInvalid).
		Int("hospitals", s.Hospitals).
		Str("total_duration", s.DurationTotal.String()).
		Msg("extraction complete")
}
