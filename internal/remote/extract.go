package remote

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/pricepanel/internal/metrics"
	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/progress"
	"github.com/gyeh/pricepanel/internal/registry"
)

// EntityResult is the outcome of one entity.
type EntityResult struct {
	EntityID      string
	Status        model.UnitStatus
	Pages         int
	RowsFetched   int64
	RowsDRG       int64
	RowsProcedure int64
	Err           error
	Duration      time.Duration
}

// Report collects the entity results of one run.
type Report struct {
	Hospitals   []model.Hospital
	Entities    []EntityResult
	Interrupted bool
	Duration    time.Duration
}

// Count returns the number of entities with the given status.
func (r *Report) Count(status model.UnitStatus) int {
	n := 0
	for i := range r.Entities {
		if r.Entities[i].Status == status {
			n++
		}
	}
	return n
}

// Failed returns the entities that were not completed this run.
func (r *Report) Failed() []EntityResult {
	var out []EntityResult
	for _, e := range r.Entities {
		if e.Status == model.StatusFailed {
			out = append(out, e)
		}
	}
	return out
}

// Extractor walks the hospital list entity by entity, paginating each
// entity's target-code rows and recording completion in a ProgressStore.
type Extractor struct {
	Source           Source
	Store            *ProgressStore
	Filter           *registry.CodeFilter
	PageSize         int
	EntityDelay      time.Duration
	EmptyEntityDelay time.Duration
	ErrorCooldown    time.Duration
	Log              zerolog.Logger
	Metrics          *metrics.Metrics
	Progress         progress.Manager

	// Sleep defaults to the context-aware Sleep.
	Sleep func(context.Context, time.Duration) error
}

// Run processes every entity not yet recorded as done. Entity failures are
// logged and left for the next run; only failing to obtain the hospital list
// returns an error. Cancellation stops the loop between entities and sets
// Report.Interrupted.
func (e *Extractor) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	sleep := e.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	hospitals, err := e.hospitals(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Hospitals: hospitals}

	pm := e.Progress
	if pm == nil {
		pm = progress.NoopManager{}
	}
	tracker := pm.NewTracker("entities", len(hospitals))
	tracker.SetStage("fetch")
	defer tracker.Done()

	for i, h := range hospitals {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		id := h.EntityID
		if e.Store.IsDone(id) {
			report.Entities = append(report.Entities, EntityResult{EntityID: id, Status: model.StatusSkipped})
			e.countEntity(model.StatusSkipped)
			tracker.Increment(string(model.StatusSkipped))
			continue
		}

		res := e.extractEntity(ctx, id)
		report.Entities = append(report.Entities, res)
		e.countEntity(res.Status)
		tracker.Increment(string(res.Status))

		log := e.Log.With().Str("entity_id", id).Logger()
		var pause time.Duration
		switch res.Status {
		case model.StatusFailed:
			if ctx.Err() != nil {
				report.Interrupted = true
				continue
			}
			log.Warn().Err(res.Err).Int("pages", res.Pages).Dur("cooldown", e.ErrorCooldown).Msg("entity failed, will retry next run")
			pause = e.ErrorCooldown
		case model.StatusEmpty:
			log.Debug().Int("pages", res.Pages).Msg("entity has no target rows")
			pause = e.EmptyEntityDelay
		default:
			log.Info().
				Int("pages", res.Pages).
				Int64("rows_drg", res.RowsDRG).
				Int64("rows_procedure", res.RowsProcedure).
				Str("duration", res.Duration.String()).
				Msg("entity complete")
			pause = e.EntityDelay
		}
		if i < len(hospitals)-1 {
			if err := sleep(ctx, pause); err != nil {
				report.Interrupted = true
				break
			}
		}
	}

	report.Duration = time.Since(start)
	e.Log.Info().
		Int("entities", len(hospitals)).
		Int("ok", report.Count(model.StatusOK)).
		Int("empty", report.Count(model.StatusEmpty)).
		Int("skipped", report.Count(model.StatusSkipped)).
		Int("failed", report.Count(model.StatusFailed)).
		Bool("interrupted", report.Interrupted).
		Str("duration", report.Duration.String()).
		Msg("remote extraction finished")
	return report, nil
}

// hospitals returns the cached hospital list or fetches and caches it.
func (e *Extractor) hospitals(ctx context.Context) ([]model.Hospital, error) {
	cached, ok, err := e.Store.LoadHospitals()
	if err != nil {
		return nil, err
	}
	if ok {
		e.Log.Info().Int("hospitals", len(cached)).Msg("using cached hospital list")
		return cached, nil
	}
	hospitals, err := e.Source.ListHospitals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hospitals: %w", err)
	}
	if err := e.Store.SaveHospitals(hospitals); err != nil {
		return nil, fmt.Errorf("cache hospitals: %w", err)
	}
	e.Log.Info().Int("hospitals", len(hospitals)).Msg("fetched hospital list")
	return hospitals, nil
}

// extractEntity paginates one entity, persists its rows, then marks it done.
func (e *Extractor) extractEntity(ctx context.Context, id string) EntityResult {
	start := time.Now()
	res := EntityResult{EntityID: id}
	fail := func(err error) EntityResult {
		res.Status = model.StatusFailed
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}

	var drg, proc []model.RawChargeRow
	after := int64(math.MinInt64)
	for {
		page, err := e.Source.FetchPage(ctx, PageRequest{
			EntityID:       id,
			AfterKey:       after,
			Limit:          e.PageSize,
			DRGCodes:       e.Filter.DRGCodes(),
			ProcedureCodes: e.Filter.ProcedureCodes(),
		})
		if err != nil {
			return fail(err)
		}
		res.Pages++
		for _, row := range page {
			res.RowsFetched++
			d, p := e.Filter.Split(row)
			if d != nil {
				drg = append(drg, *d)
			}
			if p != nil {
				proc = append(proc, *p)
			}
		}
		if len(page) < e.PageSize {
			break
		}
		last := page[len(page)-1].RowKey
		if last <= after {
			return fail(fmt.Errorf("keyset did not advance past row_key %d", after))
		}
		after = last
	}

	res.RowsDRG = int64(len(drg))
	res.RowsProcedure = int64(len(proc))
	if rows := append(drg, proc...); len(rows) > 0 {
		if err := e.Store.WritePartial(id, rows); err != nil {
			return fail(err)
		}
	} else if err := e.Store.RemovePartial(id); err != nil {
		return fail(err)
	}
	if err := e.Store.MarkDone(id); err != nil {
		return fail(err)
	}

	if e.Metrics != nil {
		e.Metrics.RowsExtracted.WithLabelValues("drg").Add(float64(res.RowsDRG))
		e.Metrics.RowsExtracted.WithLabelValues("procedure").Add(float64(res.RowsProcedure))
	}
	res.Status = model.StatusOK
	if res.RowsDRG+res.RowsProcedure == 0 {
		res.Status = model.StatusEmpty
	}
	res.Duration = time.Since(start)
	return res
}

func (e *Extractor) countEntity(status model.UnitStatus) {
	if e.Metrics != nil {
		e.Metrics.Entities.WithLabelValues(string(status)).Inc()
	}
}

// ReassembleResult is the combined extract built from partial files.
type ReassembleResult struct {
	DRG       []model.RawChargeRow
	Procedure []model.RawChargeRow
	Entities  int
	Invalid   int64
}

// Reassemble concatenates the partial files of every completed entity and
// splits rows by populated code field. Rows populating both code families,
// or neither, are counted as invalid and left out.
func Reassemble(store *ProgressStore, log zerolog.Logger) (*ReassembleResult, error) {
	res := &ReassembleResult{}
	for _, id := range store.Done() {
		rows, err := store.ReadPartial(id)
		if err != nil {
			return nil, err
		}
		res.Entities++
		for _, r := range rows {
			switch {
			case r.HasDRG() && !r.HasProcedure():
				res.DRG = append(res.DRG, r)
			case r.HasProcedure() && !r.HasDRG():
				res.Procedure = append(res.Procedure, r)
			default:
				res.Invalid++
			}
		}
	}
	ev := log.Info()
	if res.Invalid > 0 {
		ev = log.Warn()
	}
	ev.Int("entities", res.Entities).
		Int("rows_drg", len(res.DRG)).
		Int("rows_procedure", len(res.Procedure)).
		Int64("rows_invalid", res.Invalid).
		Msg("partials reassembled")
	return res, nil
}
