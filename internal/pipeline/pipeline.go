// Package pipeline orchestrates the extract and build phases and writes
// their outputs.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gyeh/pricepanel/internal/config"
	"github.com/gyeh/pricepanel/internal/metrics"
	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/progress"
)

// Phases name where a PipelineError occurred; the CLI maps them to exit codes.
const (
	PhasePrecondition = "precondition"
	PhaseConnect      = "connect"
	PhaseExtract      = "extract"
	PhaseBuild        = "build"
	PhasePublish      = "publish"
)

// Extract outputs in the work dir, read back by Build.
const (
	DRGRawFile       = "drg_raw.parquet"
	ProcedureRawFile = "procedure_raw.parquet"
	HospitalsFile    = "hospitals.parquet"
)

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// phaseErr wraps err, promoting missing prerequisites to the precondition phase.
func phaseErr(phase string, err error) error {
	if errors.Is(err, model.ErrMissingPrerequisite) {
		phase = PhasePrecondition
	}
	return &PipelineError{Phase: phase, Err: err}
}

// Runner carries the per-run dependencies shared by every phase.
type Runner struct {
	Log      zerolog.Logger
	Cfg      *config.Config
	Metrics  *metrics.Metrics
	Progress progress.Manager
	RunID    uuid.UUID
}

// NewRunner assigns a run id and attaches it to the logger.
func NewRunner(log zerolog.Logger, cfg *config.Config, pm progress.Manager) *Runner {
	id := uuid.New()
	if pm == nil {
		pm = progress.NoopManager{}
	}
	return &Runner{
		Log:      log.With().Str("run_id", id.String()).Logger(),
		Cfg:      cfg,
		Metrics:  metrics.New(),
		Progress: pm,
		RunID:    id,
	}
}

func (r *Runner) workPath(name string) string {
	return filepath.Join(r.Cfg.WorkDir, name)
}

// outPath names a CSV output, adding .gz when compression is on.
func (r *Runner) outPath(name string) string {
	if r.Cfg.Compress {
		name += ".gz"
	}
	return filepath.Join(r.Cfg.OutDir, name)
}

func (r *Runner) observe(phase string, start time.Time) {
	r.Metrics.PhaseDuration.WithLabelValues(phase).Set(time.Since(start).Seconds())
}
