package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	embedsql "github.com/gyeh/pricepanel/internal/sql"
)

// MigrateResult lists the panel migrations applied by this call and those
// already recorded in panel.schema_migrations.
type MigrateResult struct {
	Applied []string
	Skipped []string
}

// ApplyMigrations brings the panel schema up to date. Each pending migration
// runs in its own transaction together with its ledger row, so a failed
// migration leaves no partial record. A recorded migration whose embedded
// file has since changed is an error.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) (*MigrateResult, error) {
	if _, err := pool.Exec(ctx, embedsql.CreateMigrationLedger); err != nil {
		return nil, fmt.Errorf("create migration ledger: %w", err)
	}

	rows, err := pool.Query(ctx, embedsql.AppliedMigrations)
	if err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	recorded := make(map[string]string)
	var name, sum string
	_, err = pgx.ForEachRow(rows, []any{&name, &sum}, func() error {
		recorded[name] = sum
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}

	entries, err := fs.ReadDir(embedsql.Migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	res := &MigrateResult{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		data, err := fs.ReadFile(embedsql.Migrations, "migrations/"+name)
		if err != nil {
			return res, fmt.Errorf("read migration %s: %w", name, err)
		}
		digest := sha256.Sum256(data)
		checksum := hex.EncodeToString(digest[:])

		if prev, ok := recorded[name]; ok {
			if prev != checksum {
				return res, fmt.Errorf("migration %s changed after it was applied (recorded %s, embedded %s)", name, prev, checksum)
			}
			res.Skipped = append(res.Skipped, name)
			continue
		}

		log.Debug().Str("migration", name).Msg("applying migration")
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, embedsql.RecordMigration, name, checksum)
			return err
		})
		if err != nil {
			return res, fmt.Errorf("execute migration %s: %w", name, err)
		}
		res.Applied = append(res.Applied, name)
	}

	log.Info().
		Int("applied", len(res.Applied)).
		Int("already_applied", len(res.Skipped)).
		Msg("panel migrations up to date")
	return res, nil
}
