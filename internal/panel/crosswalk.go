package panel

import (
	"fmt"
	"io"
	"strings"

	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/normalize"
	"github.com/gyeh/pricepanel/internal/output"
)

// LoadCrosswalk reads a CSV (optionally .gz) with a header naming any of
// entity_id, tax_id, ccn, aha_id, system_id. Column order is free; at least
// one of entity_id and tax_id must be present.
func LoadCrosswalk(path string) ([]model.CrosswalkEntry, error) {
	r, closer, err := output.OpenCSV(path)
	if err != nil {
		return nil, fmt.Errorf("open crosswalk: %w", err)
	}
	defer closer.Close()

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read crosswalk header: %w", err)
	}
	col := make(map[string]int)
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	_, hasEntity := col["entity_id"]
	_, hasTax := col["tax_id"]
	if !hasEntity && !hasTax {
		return nil, fmt.Errorf("crosswalk %s: need an entity_id or tax_id column", path)
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var entries []model.CrosswalkEntry
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("crosswalk line %d: %w", line, err)
		}
		e := model.CrosswalkEntry{
			EntityID: field(rec, "entity_id"),
			TaxID:    normalize.TaxID(normalize.OptString(field(rec, "tax_id"))),
			CCN:      normalize.OptString(field(rec, "ccn")),
			AHAID:    normalize.OptString(field(rec, "aha_id")),
			SystemID: normalize.OptString(field(rec, "system_id")),
		}
		if e.EntityID == "" && e.TaxID == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Crosswalk maps entity and tax identifiers to canonical hospital ids.
type Crosswalk struct {
	byEntity map[string]model.CrosswalkEntry
	byTaxID  map[string]model.CrosswalkEntry
}

// NewCrosswalk indexes entries; the first entry for a key wins.
func NewCrosswalk(entries []model.CrosswalkEntry) *Crosswalk {
	c := &Crosswalk{
		byEntity: make(map[string]model.CrosswalkEntry),
		byTaxID:  make(map[string]model.CrosswalkEntry),
	}
	for _, e := range entries {
		if e.EntityID != "" {
			if _, ok := c.byEntity[e.EntityID]; !ok {
				c.byEntity[e.EntityID] = e
			}
		}
		if e.TaxID != "" {
			if _, ok := c.byTaxID[e.TaxID]; !ok {
				c.byTaxID[e.TaxID] = e
			}
		}
	}
	return c
}

// EnrichResult reports how hospitals matched the crosswalk.
type EnrichResult struct {
	ByEntity  int
	ByTaxID   int
	Unmatched int
}

// Enrich fills missing ccn, aha_id and system_id in place, matching on
// entity id first and then on normalized tax id. Values already present
// are never overwritten.
func (c *Crosswalk) Enrich(hospitals []model.Hospital) EnrichResult {
	var res EnrichResult
	for i := range hospitals {
		h := &hospitals[i]
		e, ok := c.byEntity[h.EntityID]
		if ok {
			res.ByEntity++
		} else if tax := normalize.TaxID(h.TaxID); tax != "" {
			if e, ok = c.byTaxID[tax]; ok {
				res.ByTaxID++
			}
		}
		if !ok {
			res.Unmatched++
			continue
		}
		if h.CCN == nil {
			h.CCN = e.CCN
		}
		if h.AHAID == nil {
			h.AHAID = e.AHAID
		}
		if h.SystemID == nil {
			h.SystemID = e.SystemID
		}
	}
	return res
}
