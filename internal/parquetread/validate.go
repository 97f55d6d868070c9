package parquetread

import (
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/pricepanel/internal/model"
)

// ValidateSchema checks that a lake file carries the identifying columns and
// at least one code column.
func ValidateSchema(schema *parquet.Schema) error {
	columns := make(map[string]bool)
	for _, field := range schema.Fields() {
		columns[strings.ToLower(field.Name())] = true
	}

	// Required columns
	required := []string{"entity_id", "description"}
	for _, col := range required {
		if !columns[col] {
			return fmt.Errorf("missing required column: %s", col)
		}
	}

	// At least one code column must be present
	codeCols := append([]string{model.DRGColumn}, model.ProcedureColumns...)
	for _, col := range codeCols {
		if columns[col] {
			return nil
		}
	}
	return fmt.Errorf("no code columns found; need at least one of: %s",
		strings.Join(codeCols, ", "))
}
