// Package panel turns hospital metadata and classified rates into the final
// hospital × service × payer panel.
package panel

import (
	"github.com/gyeh/pricepanel/internal/model"
)

// FlagRateData sets HasRateData on every hospital with at least one rate and
// returns how many were flagged.
func FlagRateData(hospitals []model.Hospital, rates []model.CleanRate) int {
	with := make(map[string]struct{})
	for i := range rates {
		with[rates[i].EntityID] = struct{}{}
	}
	n := 0
	for i := range hospitals {
		_, ok := with[hospitals[i].EntityID]
		hospitals[i].HasRateData = ok
		if ok {
			n++
		}
	}
	return n
}

// AssembleResult is the joined panel.
type AssembleResult struct {
	Rows     []model.PanelRow
	Dropped  int64 // rates whose entity has no hospital record
	Entities int   // hospitals contributing at least one row
}

// Assemble inner-joins rates to hospitals on entity id and projects panel rows.
// When hospital ids repeat, the first record wins.
func Assemble(rates []model.CleanRate, hospitals []model.Hospital) *AssembleResult {
	byID := make(map[string]*model.Hospital, len(hospitals))
	for i := range hospitals {
		if _, ok := byID[hospitals[i].EntityID]; !ok {
			byID[hospitals[i].EntityID] = &hospitals[i]
		}
	}

	res := &AssembleResult{Rows: make([]model.PanelRow, 0, len(rates))}
	seen := make(map[string]struct{})
	for i := range rates {
		r := &rates[i]
		h, ok := byID[r.EntityID]
		if !ok {
			res.Dropped++
			continue
		}
		seen[r.EntityID] = struct{}{}
		res.Rows = append(res.Rows, model.PanelRow{
			EntityID:      h.EntityID,
			HospitalName:  h.Name,
			City:          h.City,
			State:         h.State,
			CCN:           h.CCN,
			AHAID:         h.AHAID,
			SystemID:      h.SystemID,
			Code:          r.Code,
			CodeType:      r.CodeType,
			Label:         r.Label,
			Description:   r.Description,
			Setting:       r.Setting,
			BillingClass:  r.BillingClass,
			RateCategory:  r.RateCategory,
			ChargeAmount:  r.ChargeAmount,
			PayerName:     r.PayerName,
			PlanName:      r.PlanName,
			PayerCategory: r.PayerCategory,
		})
	}
	res.Entities = len(seen)
	return res
}
