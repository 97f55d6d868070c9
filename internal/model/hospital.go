package model

// Hospital is one entity of the hospital attribute table. HasRateData is
// derived per build and never read from source files.
type Hospital struct {
	EntityID    string  `parquet:"entity_id" json:"entity_id"`
	Name        string  `parquet:"name" json:"name"`
	Address     string  `parquet:"address,optional" json:"address"`
	City        string  `parquet:"city,optional" json:"city"`
	State       string  `parquet:"state,optional" json:"state"`
	TaxID       *string `parquet:"tax_id,optional" json:"tax_id"`
	CCN         *string `parquet:"ccn,optional" json:"ccn"`
	AHAID       *string `parquet:"aha_id,optional" json:"aha_id"`
	SystemID    *string `parquet:"system_id,optional" json:"system_id"`
	HasRateData bool    `parquet:"-" json:"-"`
}

// CrosswalkEntry maps an entity or tax identifier to canonical hospital ids.
type CrosswalkEntry struct {
	EntityID string
	TaxID    string
	CCN      *string
	AHAID    *string
	SystemID *string
}

// HospitalColumns returns the CSV header for the hospital attribute table.
func HospitalColumns() []string {
	return []string{
		"entity_id",
		"name",
		"address",
		"city",
		"state",
		"tax_id",
		"ccn",
		"aha_id",
		"system_id",
		"has_rate_data",
	}
}

// CSVValues returns the row in HospitalColumns order.
func (h *Hospital) CSVValues() []string {
	has := "false"
	if h.HasRateData {
		has = "true"
	}
	return []string{
		h.EntityID,
		h.Name,
		h.Address,
		h.City,
		h.State,
		deref(h.TaxID),
		deref(h.CCN),
		deref(h.AHAID),
		deref(h.SystemID),
		has,
	}
}
