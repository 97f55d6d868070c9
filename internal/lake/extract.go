package lake

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/pricepanel/internal/metrics"
	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/parquetread"
	"github.com/gyeh/pricepanel/internal/progress"
	"github.com/gyeh/pricepanel/internal/registry"
)

const readBatchSize = 1024

// PartitionResult is the outcome of scanning one partition. A failed
// partition contributes no rows.
type PartitionResult struct {
	Partition   string
	Status      model.UnitStatus
	Files       int
	RowsScanned int64
	DRG         []model.RawChargeRow
	Procedure   []model.RawChargeRow
	Err         error
	Duration    time.Duration
}

// ScanReport collects the partition results of one extraction in partition order.
type ScanReport struct {
	Partitions []PartitionResult
	Duration   time.Duration
}

// DRG concatenates the DRG rows of every successful partition.
func (r *ScanReport) DRG() []model.RawChargeRow {
	var out []model.RawChargeRow
	for i := range r.Partitions {
		out = append(out, r.Partitions[i].DRG...)
	}
	return out
}

// Procedure concatenates the procedure rows of every successful partition.
func (r *ScanReport) Procedure() []model.RawChargeRow {
	var out []model.RawChargeRow
	for i := range r.Partitions {
		out = append(out, r.Partitions[i].Procedure...)
	}
	return out
}

// Count returns the number of partitions with the given status.
func (r *ScanReport) Count(status model.UnitStatus) int {
	n := 0
	for i := range r.Partitions {
		if r.Partitions[i].Status == status {
			n++
		}
	}
	return n
}

// Failed returns the failed partitions.
func (r *ScanReport) Failed() []PartitionResult {
	var out []PartitionResult
	for _, p := range r.Partitions {
		if p.Status == model.StatusFailed {
			out = append(out, p)
		}
	}
	return out
}

// Extractor scans lake partitions and keeps rows whose codes are targets.
type Extractor struct {
	Dir      string
	Filter   *registry.CodeFilter
	Workers  int
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
	Progress progress.Manager
}

// Extract scans the given partitions. A partition that fails to read is
// recorded as failed and the scan continues; only context cancellation
// returns an error.
func (e *Extractor) Extract(ctx context.Context, partitions []string) (*ScanReport, error) {
	start := time.Now()
	results := make([]PartitionResult, len(partitions))

	pm := e.Progress
	if pm == nil {
		pm = progress.NoopManager{}
	}
	tracker := pm.NewTracker("partitions", len(partitions))
	tracker.SetStage("scan")
	defer tracker.Done()

	workers := e.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, p := range partitions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := e.scanPartition(gctx, p)
			if res.Err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = res
			e.record(&res)
			tracker.Increment(string(res.Status))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("lake scan interrupted: %w", err)
	}

	report := &ScanReport{Partitions: results, Duration: time.Since(start)}
	e.Log.Info().
		Int("partitions", len(partitions)).
		Int("ok", report.Count(model.StatusOK)).
		Int("empty", report.Count(model.StatusEmpty)).
		Int("failed", report.Count(model.StatusFailed)).
		Str("duration", report.Duration.String()).
		Msg("lake scan complete")
	return report, nil
}

func (e *Extractor) record(res *PartitionResult) {
	log := e.Log.With().Str("partition", res.Partition).Logger()
	if res.Status == model.StatusFailed {
		log.Warn().Err(res.Err).Msg("partition failed, skipping")
	} else {
		log.Debug().
			Str("status", string(res.Status)).
			Int64("rows_scanned", res.RowsScanned).
			Int("rows_drg", len(res.DRG)).
			Int("rows_procedure", len(res.Procedure)).
			Str("duration", res.Duration.String()).
			Msg("partition scanned")
	}
	if e.Metrics != nil {
		e.Metrics.Partitions.WithLabelValues(string(res.Status)).Inc()
		e.Metrics.RowsExtracted.WithLabelValues("drg").Add(float64(len(res.DRG)))
		e.Metrics.RowsExtracted.WithLabelValues("procedure").Add(float64(len(res.Procedure)))
	}
}

// scanPartition reads every file of one partition. Any error discards the
// rows gathered so far.
func (e *Extractor) scanPartition(ctx context.Context, partition string) PartitionResult {
	start := time.Now()
	res := PartitionResult{Partition: partition}

	fail := func(err error) PartitionResult {
		res.Status = model.StatusFailed
		res.Err = err
		res.DRG, res.Procedure = nil, nil
		res.Duration = time.Since(start)
		return res
	}

	files, err := PartitionFiles(e.Dir, partition)
	if err != nil {
		return fail(fmt.Errorf("list files: %w", err))
	}
	res.Files = len(files)

	for _, path := range files {
		if err := e.scanFile(ctx, path, &res); err != nil {
			return fail(err)
		}
	}

	res.Status = model.StatusOK
	if len(res.DRG)+len(res.Procedure) == 0 {
		res.Status = model.StatusEmpty
	}
	res.Duration = time.Since(start)
	return res
}

func (e *Extractor) scanFile(ctx context.Context, path string, res *PartitionResult) error {
	reader, err := parquetread.Open[model.RawChargeRow](path)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := parquetread.ValidateSchema(reader.Schema()); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	buf := make([]model.RawChargeRow, readBatchSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Cleared so the reader allocates fresh pointer fields instead of
		// writing through pointers already copied into res.
		clear(buf)
		n, readErr := reader.Read(buf)
		for i := 0; i < n; i++ {
			res.RowsScanned++
			drg, proc := e.Filter.Split(buf[i])
			if drg != nil {
				res.DRG = append(res.DRG, *drg)
			}
			if proc != nil {
				res.Procedure = append(res.Procedure, *proc)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("%s at row %d: %w", path, res.RowsScanned, readErr)
		}
	}
}
