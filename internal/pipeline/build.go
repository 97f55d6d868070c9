package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gyeh/pricepanel/internal/clean"
	"github.com/gyeh/pricepanel/internal/db"
	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/output"
	"github.com/gyeh/pricepanel/internal/panel"
	"github.com/gyeh/pricepanel/internal/parquetread"
	"github.com/gyeh/pricepanel/internal/payer"
	"github.com/gyeh/pricepanel/internal/registry"
	"github.com/gyeh/pricepanel/internal/unpivot"
)

// CSV outputs in the out dir.
const (
	HospitalsCSV       = "hospitals.csv"
	RatesCleanCSV      = "rates_clean.csv"
	RatesClassifiedCSV = "rates_classified.csv"
	PanelCSV           = "panel.csv"
)

// BuildResult is the assembled panel plus its summary.
type BuildResult struct {
	Summary   *model.BuildSummary
	Panel     []model.PanelRow
	Hospitals []model.Hospital
}

// Build reads the work dir extracts and runs unpivot → clean → classify →
// assemble, writing the CSV outputs.
func (r *Runner) Build(ctx context.Context) (*BuildResult, error) {
	start := time.Now()
	defer r.observe("build", start)
	cfg := r.Cfg

	reg, err := registry.Load(cfg.TargetsFile)
	if err != nil {
		return nil, &PipelineError{Phase: PhasePrecondition, Err: err}
	}
	if err := cfg.ValidateBuild(); err != nil {
		return nil, &PipelineError{Phase: PhasePrecondition, Err: err}
	}

	drgRaw, err := readExtract[model.RawChargeRow](r.workPath(DRGRawFile))
	if err != nil {
		return nil, phaseErr(PhaseBuild, err)
	}
	procRaw, err := readExtract[model.RawChargeRow](r.workPath(ProcedureRawFile))
	if err != nil {
		return nil, phaseErr(PhaseBuild, err)
	}
	hospitals, err := readExtract[model.Hospital](r.workPath(HospitalsFile))
	if err != nil {
		return nil, phaseErr(PhaseBuild, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, &PipelineError{Phase: PhaseBuild, Err: err}
	}

	drgObs := unpivot.Unpivot(drgRaw)
	procObs := unpivot.Unpivot(procRaw)
	r.Log.Info().
		Int("raw_drg", len(drgRaw)).
		Int("raw_procedure", len(procRaw)).
		Int("observations_drg", len(drgObs)).
		Int("observations_procedure", len(procObs)).
		Msg("unpivot complete")

	cleaned := clean.Clean(r.Log, drgObs, procObs, reg)
	rates := cleaned.Rates
	summary := &model.BuildSummary{
		RunID:            r.RunID.String(),
		RawRows:          int64(len(drgRaw) + len(procRaw)),
		Observations:     int64(len(drgObs) + len(procObs)),
		CleanRows:        int64(len(rates)),
		DroppedNoCode:    cleaned.DroppedNoCode,
		DroppedNotTarget: cleaned.DroppedNotTarget,
		DroppedCharge:    cleaned.DroppedCharge,
		Ambiguous:        cleaned.Ambiguous,
		CodesCovered:     reg.Len() - len(cleaned.Uncovered),
	}
	for _, u := range cleaned.Uncovered {
		summary.CodesUncovered = append(summary.CodesUncovered, u.Key())
	}

	if err := writeCSV(r, summary, RatesCleanCSV, model.CleanRateColumns(), rates); err != nil {
		return nil, &PipelineError{Phase: PhaseBuild, Err: err}
	}

	byCategory := payer.ClassifyRates(rates)
	ev := r.Log.Info()
	for cat, n := range byCategory {
		ev = ev.Int64(cat, n)
	}
	ev.Msg("payers classified")
	if err := writeCSV(r, summary, RatesClassifiedCSV, model.CleanRateColumns(), rates); err != nil {
		return nil, &PipelineError{Phase: PhaseBuild, Err: err}
	}

	if cfg.CrosswalkFile != "" {
		entries, err := panel.LoadCrosswalk(cfg.CrosswalkFile)
		if err != nil {
			return nil, &PipelineError{Phase: PhaseBuild, Err: err}
		}
		m := panel.NewCrosswalk(entries).Enrich(hospitals)
		r.Log.Info().
			Int("entries", len(entries)).
			Int("by_entity", m.ByEntity).
			Int("by_tax_id", m.ByTaxID).
			Int("unmatched", m.Unmatched).
			Msg("crosswalk applied")
	}
	summary.Hospitals = len(hospitals)
	summary.HospitalsWithData = panel.FlagRateData(hospitals, rates)
	if err := writeCSV(r, summary, HospitalsCSV, model.HospitalColumns(), hospitals); err != nil {
		return nil, &PipelineError{Phase: PhaseBuild, Err: err}
	}

	assembled := panel.Assemble(rates, hospitals)
	summary.PanelRows = int64(len(assembled.Rows))
	summary.PanelDropped = assembled.Dropped
	if assembled.Dropped > 0 {
		r.Log.Warn().Int64("rows", assembled.Dropped).Msg("rates without a hospital record dropped from panel")
	}
	if err := writeCSV(r, summary, PanelCSV, model.PanelColumns(), assembled.Rows); err != nil {
		return nil, &PipelineError{Phase: PhaseBuild, Err: err}
	}

	r.Metrics.CleanRows.Set(float64(summary.CleanRows))
	r.Metrics.PanelRows.Set(float64(summary.PanelRows))
	r.Metrics.Dropped.WithLabelValues("no_code").Add(float64(summary.DroppedNoCode))
	r.Metrics.Dropped.WithLabelValues("not_target").Add(float64(summary.DroppedNotTarget))
	r.Metrics.Dropped.WithLabelValues("charge").Add(float64(summary.DroppedCharge))
	r.Metrics.Dropped.WithLabelValues("no_hospital").Add(float64(summary.PanelDropped))

	summary.DurationTotal = time.Since(start)
	r.Log.Info().
		Int64("raw_rows", summary.RawRows).
		Int64("observations", summary.Observations).
		Int64("clean_rows", summary.CleanRows).
		Int64("panel_rows", summary.PanelRows).
		Int("hospitals", summary.Hospitals).
		Int("hospitals_with_data", summary.HospitalsWithData).
		Int("codes_covered", summary.CodesCovered).
		Int("codes_uncovered", len(summary.CodesUncovered)).
		Str("total_duration", summary.DurationTotal.String()).
		Msg("build complete")

	return &BuildResult{Summary: summary, Panel: assembled.Rows, Hospitals: hospitals}, nil
}

// Publish uploads the CSV outputs to S3 and loads the panel into Postgres,
// each only when configured.
func (r *Runner) Publish(ctx context.Context, res *BuildResult) error {
	start := time.Now()
	defer r.observe("publish", start)
	cfg := r.Cfg

	if cfg.S3Bucket != "" {
		pub, err := output.NewPublisher(ctx, r.Log, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
		if err != nil {
			return &PipelineError{Phase: PhasePublish, Err: err}
		}
		if _, err := pub.Publish(ctx, res.Summary.OutputFiles); err != nil {
			return &PipelineError{Phase: PhasePublish, Err: err}
		}
	}

	if cfg.PanelDSN != "" {
		pool, err := db.NewPool(ctx, cfg.PanelDSN, "0")
		if err != nil {
			return &PipelineError{Phase: PhasePublish, Err: err}
		}
		defer pool.Close()
		if _, err := db.ApplyMigrations(ctx, pool, r.Log); err != nil {
			return &PipelineError{Phase: PhasePublish, Err: err}
		}
		if _, err := db.LoadPanel(ctx, pool, r.Log, r.RunID, res.Panel, res.Summary.Hospitals, res.Summary.CodesCovered); err != nil {
			return &PipelineError{Phase: PhasePublish, Err: err}
		}
	}
	return nil
}

// PushMetrics sends the run's metrics to the configured Pushgateway. Failure
// is logged, never fatal.
func (r *Runner) PushMetrics(ctx context.Context, job string) {
	if err := r.Metrics.Push(ctx, r.Cfg.PushgatewayURL, job); err != nil {
		r.Log.Warn().Err(err).Msg("metrics push failed")
	}
}

// readExtract reads a work dir file; absence is a missing prerequisite.
func readExtract[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found (run extract first)", model.ErrMissingPrerequisite, path)
	}
	return parquetread.ReadAll[T](path)
}

// writeCSV writes one CSV output and records it in the summary.
func writeCSV[T any, P interface {
	*T
	output.Record
}](r *Runner, summary *model.BuildSummary, name string, header []string, rows []T) error {
	path := r.outPath(name)
	n, err := output.WriteCSV[T, P](path, header, rows)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	r.Log.Debug().Str("path", path).Int64("rows", n).Msg("wrote csv")
	summary.OutputFiles = append(summary.OutputFiles, path)
	return nil
}
