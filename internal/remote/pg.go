package remote

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gyeh/pricepanel/internal/model"
	embedsql "github.com/gyeh/pricepanel/internal/sql"
)

// PGSource reads from a Postgres-compatible hosted database. The charges
// table is expected to be clustered on (entity_id, row_key).
type PGSource struct {
	pool *pgxpool.Pool
}

// NewPGSource wraps an open pool.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

// FetchPage runs the embedded keyset page query.
func (s *PGSource) FetchPage(ctx context.Context, req PageRequest) ([]model.RawChargeRow, error) {
	drg := req.DRGCodes
	if drg == nil {
		drg = []string{}
	}
	proc := req.ProcedureCodes
	if proc == nil {
		proc = []string{}
	}
	rows, err := s.pool.Query(ctx, embedsql.FetchChargePage, req.EntityID, req.AfterKey, drg, proc, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RawChargeRow, error) {
		var r model.RawChargeRow
		err := row.Scan(
			&r.EntityID, &r.RowKey, &r.Description, &r.Setting, &r.BillingClass,
			&r.MSDRGCode, &r.CPTCode, &r.HCPCSCode, &r.PayerName, &r.PlanName,
			&r.NegotiatedDollar, &r.GrossCharge, &r.DiscountedCash, &r.MinCharge, &r.MaxCharge,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan page: %w", err)
	}
	return out, nil
}

// ListHospitals returns every hospital ordered by entity_id.
func (s *PGSource) ListHospitals(ctx context.Context) ([]model.Hospital, error) {
	rows, err := s.pool.Query(ctx, embedsql.ListHospitals)
	if err != nil {
		return nil, fmt.Errorf("list hospitals: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Hospital, error) {
		var h model.Hospital
		err := row.Scan(&h.EntityID, &h.Name, &h.Address, &h.City, &h.State, &h.TaxID, &h.CCN, &h.AHAID, &h.SystemID)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan hospitals: %w", err)
	}
	return out, nil
}
