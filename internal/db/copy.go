package db

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gyeh/pricepanel/internal/model"
)

// PanelSource implements pgx.CopyFromSource over an in-memory panel, tagging
// every row with the run id.
type PanelSource struct {
	runID uuid.UUID
	rows  []model.PanelRow
	idx   int
}

// NewPanelSource creates a CopyFromSource positioned before the first row.
func NewPanelSource(runID uuid.UUID, rows []model.PanelRow) *PanelSource {
	return &PanelSource{runID: runID, rows: rows, idx: -1}
}

// Next advances to the next row.
func (s *PanelSource) Next() bool {
	s.idx++
	return s.idx < len(s.rows)
}

// Values returns the current row in PanelCopyColumns order.
func (s *PanelSource) Values() ([]any, error) {
	return append([]any{s.runID}, s.rows[s.idx].CopyValues()...), nil
}

// Err never fails; rows are already in memory.
func (s *PanelSource) Err() error {
	return nil
}

// PanelCopyColumns is the COPY column list for panel.rows.
func PanelCopyColumns() []string {
	return append([]string{"run_id"}, model.PanelColumns()...)
}

var _ pgx.CopyFromSource = (*PanelSource)(nil)
