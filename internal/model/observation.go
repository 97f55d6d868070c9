package model

import "strconv"

// RateCategory is the pricing basis of a charge observation.
type RateCategory string

const (
	RateNegotiated RateCategory = "negotiated"
	RateGross      RateCategory = "gross"
	RateCash       RateCategory = "cash"
	RateMin        RateCategory = "min"
	RateMax        RateCategory = "max"
)

// AllRateCategories lists the categories in unpivot order.
var AllRateCategories = []RateCategory{RateNegotiated, RateGross, RateCash, RateMin, RateMax}

// RateObservation is the canonical long-format unit: one charge amount for
// one entity/service under one rate category. PayerName and PlanName are
// only set for negotiated rows.
type RateObservation struct {
	EntityID      string
	Description   string
	DRGCode       *string
	ProcedureCode *string
	PayerName     *string
	PlanName      *string
	ChargeAmount  float64
	RateCategory  RateCategory
	Setting       *string
	BillingClass  *string
}

// CleanRate is a RateObservation that survived the registry join. PayerCategory
// stays nil until classification and for non-negotiated rows.
type CleanRate struct {
	RateObservation
	Code          string
	CodeType      CodeType
	Label         string
	PayerCategory *string
}

// CleanRateColumns returns the CSV header for cleaned rate tables.
func CleanRateColumns() []string {
	return []string{
		"entity_id",
		"code",
		"code_type",
		"label",
		"description",
		"drg_code",
		"procedure_code",
		"setting",
		"billing_class",
		"rate_category",
		"charge_amount",
		"payer_name",
		"plan_name",
		"payer_category",
	}
}

// CSVValues returns the row in CleanRateColumns order.
func (r *CleanRate) CSVValues() []string {
	return []string{
		r.EntityID,
		r.Code,
		string(r.CodeType),
		r.Label,
		r.Description,
		deref(r.DRGCode),
		deref(r.ProcedureCode),
		deref(r.Setting),
		deref(r.BillingClass),
		string(r.RateCategory),
		FormatAmount(r.ChargeAmount),
		deref(r.PayerName),
		deref(r.PlanName),
		deref(r.PayerCategory),
	}
}

// PanelRow is one row of the final hospital × service × payer panel.
type PanelRow struct {
	EntityID      string
	HospitalName  string
	City          string
	State         string
	CCN           *string
	AHAID         *string
	SystemID      *string
	Code          string
	CodeType      CodeType
	Label         string
	Description   string
	Setting       *string
	BillingClass  *string
	RateCategory  RateCategory
	ChargeAmount  float64
	PayerName     *string
	PlanName      *string
	PayerCategory *string
}

// PanelColumns returns the ordered panel column names, shared by the CSV
// header and the Postgres COPY target.
func PanelColumns() []string {
	return []string{
		"entity_id",
		"hospital_name",
		"city",
		"state",
		"ccn",
		"aha_id",
		"system_id",
		"code",
		"code_type",
		"label",
		"description",
		"setting",
		"billing_class",
		"rate_category",
		"charge_amount",
		"payer_name",
		"plan_name",
		"payer_category",
	}
}

// CSVValues returns the row in PanelColumns order.
func (r *PanelRow) CSVValues() []string {
	return []string{
		r.EntityID,
		r.HospitalName,
		r.City,
		r.State,
		deref(r.CCN),
		deref(r.AHAID),
		deref(r.SystemID),
		r.Code,
		string(r.CodeType),
		r.Label,
		r.Description,
		deref(r.Setting),
		deref(r.BillingClass),
		string(r.RateCategory),
		FormatAmount(r.ChargeAmount),
		deref(r.PayerName),
		deref(r.PlanName),
		deref(r.PayerCategory),
	}
}

// CopyValues returns the row in PanelColumns order, suitable for pgx CopyFromSource.
func (r *PanelRow) CopyValues() []any {
	return []any{
		r.EntityID,
		r.HospitalName,
		r.City,
		r.State,
		r.CCN,
		r.AHAID,
		r.SystemID,
		r.Code,
		string(r.CodeType),
		r.Label,
		r.Description,
		r.Setting,
		r.BillingClass,
		string(r.RateCategory),
		r.ChargeAmount,
		r.PayerName,
		r.PlanName,
		r.PayerCategory,
	}
}

// FormatAmount renders a charge with the shortest exact representation.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
