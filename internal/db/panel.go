package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/pricepanel/internal/model"
	embedsql "github.com/gyeh/pricepanel/internal/sql"
)

// LoadPanelResult holds metrics from a panel load.
type LoadPanelResult struct {
	RowsLoaded int64
	Duration   time.Duration
}

// LoadPanel replaces the rows of runID in panel.rows with rows and records
// the run in panel.runs, in one transaction.
func LoadPanel(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, runID uuid.UUID, rows []model.PanelRow, hospitals, codesCovered int) (*LoadPanelResult, error) {
	start := time.Now()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, embedsql.DeletePanelRun, runID); err != nil {
		return nil, fmt.Errorf("clear run rows: %w", err)
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"panel", "rows"},
		PanelCopyColumns(),
		NewPanelSource(runID, rows),
	)
	if err != nil {
		return nil, fmt.Errorf("copy panel rows: %w", err)
	}

	if _, err := tx.Exec(ctx, embedsql.InsertPanelRun, runID, hospitals, codesCovered, n); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	dur := time.Since(start)
	log.Info().
		Str("run_id", runID.String()).
		Int64("rows", n).
		Str("duration", dur.String()).
		Msg("panel loaded")

	return &LoadPanelResult{RowsLoaded: n, Duration: dur}, nil
}
