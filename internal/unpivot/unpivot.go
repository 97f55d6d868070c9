// Package unpivot turns wide charge rows (one row, five charge columns) into
// long-format rate observations (one row per populated charge column).
package unpivot

import (
	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/normalize"
)

// projection selects one charge column and its rate category.
type projection struct {
	category model.RateCategory
	amount   func(*model.RawChargeRow) *float64
}

var projections = []projection{
	{model.RateNegotiated, func(r *model.RawChargeRow) *float64 { return r.NegotiatedDollar }},
	{model.RateGross, func(r *model.RawChargeRow) *float64 { return r.GrossCharge }},
	{model.RateCash, func(r *model.RawChargeRow) *float64 { return r.DiscountedCash }},
	{model.RateMin, func(r *model.RawChargeRow) *float64 { return r.MinCharge }},
	{model.RateMax, func(r *model.RawChargeRow) *float64 { return r.MaxCharge }},
}

// serviceKey identifies an entity/service pair. Non-negotiated charges hold
// one value per key no matter how many payer rows repeat it upstream.
type serviceKey struct {
	entityID    string
	description string
	drg         string
	cpt         string
	hcpcs       string
}

func keyOf(r *model.RawChargeRow) serviceKey {
	return serviceKey{
		entityID:    r.EntityID,
		description: r.Description,
		drg:         normalize.Deref(r.MSDRGCode),
		cpt:         normalize.Deref(r.CPTCode),
		hcpcs:       normalize.Deref(r.HCPCSCode),
	}
}

// Unpivot emits, for each charge column, the rows where that amount is
// present and > 0. Negotiated rows keep payer and plan and are never
// deduplicated; gross, cash, min and max rows drop payer and plan and keep
// the first row per service key. Output is grouped by category in
// model.AllRateCategories order, input order within a category.
func Unpivot(rows []model.RawChargeRow) []model.RateObservation {
	var out []model.RateObservation
	for _, p := range projections {
		var seen map[serviceKey]struct{}
		if p.category != model.RateNegotiated {
			seen = make(map[serviceKey]struct{})
		}
		for i := range rows {
			r := &rows[i]
			amt := p.amount(r)
			if amt == nil || !(*amt > 0) {
				continue
			}
			if seen != nil {
				k := keyOf(r)
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
			}
			out = append(out, observe(r, p.category, *amt))
		}
	}
	return out
}

func observe(r *model.RawChargeRow, cat model.RateCategory, amount float64) model.RateObservation {
	o := model.RateObservation{
		EntityID:      r.EntityID,
		Description:   r.Description,
		DRGCode:       nonEmpty(r.MSDRGCode),
		ProcedureCode: r.ProcedureCode(),
		ChargeAmount:  amount,
		RateCategory:  cat,
		Setting:       r.Setting,
		BillingClass:  r.BillingClass,
	}
	if cat == model.RateNegotiated {
		o.PayerName = r.PayerName
		o.PlanName = r.PlanName
	}
	return o
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
