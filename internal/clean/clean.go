// Package clean unions the DRG- and procedure-sourced observations, joins
// them to the Target Code Registry and drops unusable charges.
package clean

import (
	"github.com/rs/zerolog"

	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/normalize"
	"github.com/gyeh/pricepanel/internal/registry"
)

// Result holds the cleaned rates plus the filtering and coverage diagnostics.
type Result struct {
	Rates []model.CleanRate

	Input            int64
	DroppedNoCode    int64 // neither DRG nor procedure code populated
	DroppedNotTarget int64 // code absent from the registry
	DroppedCharge    int64 // missing, non-finite or non-positive charge
	Ambiguous        int64 // both code families populated; resolved as DRG

	// Covered counts surviving rows per registry entry; Uncovered lists the
	// entries with none, in registry order.
	Covered   map[model.CodeKey]int64
	Uncovered []model.TargetCode
}

// DroppedChargePct is the share of registry-matched rows dropped for their charge.
func (r *Result) DroppedChargePct() float64 {
	matched := r.Input - r.DroppedNoCode - r.DroppedNotTarget
	if matched <= 0 {
		return 0
	}
	return float64(r.DroppedCharge) / float64(matched) * 100
}

// Clean unions drg and proc, derives (code, code_type) with DRG taking
// precedence, inner-joins on the registry and keeps only positive finite
// charges. Rows whose code is not a target are dropped silently; that is
// the filtering mechanism, not an error.
func Clean(log zerolog.Logger, drg, proc []model.RateObservation, reg *registry.Registry) *Result {
	res := &Result{
		Rates:   make([]model.CleanRate, 0, len(drg)+len(proc)),
		Covered: make(map[model.CodeKey]int64),
	}

	for _, set := range [][]model.RateObservation{drg, proc} {
		for i := range set {
			res.Input++
			o := set[i]

			code, codeType, ok := deriveCode(&o)
			if !ok {
				res.DroppedNoCode++
				continue
			}
			if codeType == model.CodeTypeDRG && o.ProcedureCode != nil && normalize.Code(*o.ProcedureCode) != "" {
				res.Ambiguous++
			}

			target, ok := reg.Lookup(code, codeType)
			if !ok {
				res.DroppedNotTarget++
				continue
			}
			if !normalize.PositiveFinite(o.ChargeAmount) {
				res.DroppedCharge++
				continue
			}

			res.Covered[target.Key()]++
			res.Rates = append(res.Rates, model.CleanRate{
				RateObservation: o,
				Code:            target.Code,
				CodeType:        target.CodeType,
				Label:           target.Label,
			})
		}
	}

	for _, e := range reg.Entries() {
		if res.Covered[e.Key()] == 0 {
			res.Uncovered = append(res.Uncovered, e)
		}
	}

	if res.Ambiguous > 0 {
		log.Warn().
			Int64("rows", res.Ambiguous).
			Msg("rows carry both a DRG and a procedure code; classified as DRG")
	}
	log.Info().
		Int64("input", res.Input).
		Int64("kept", int64(len(res.Rates))).
		Int64("dropped_no_code", res.DroppedNoCode).
		Int64("dropped_not_target", res.DroppedNotTarget).
		Int64("dropped_charge", res.DroppedCharge).
		Float64("dropped_charge_pct", res.DroppedChargePct()).
		Msg("rate cleaning complete")
	for _, e := range res.Uncovered {
		log.Warn().
			Str("code", e.Code).
			Str("code_type", string(e.CodeType)).
			Str("label", e.Label).
			Msg("target code has no surviving rates")
	}
	return res
}

// deriveCode picks the observation's target key: the DRG code when present,
// else the procedure code.
func deriveCode(o *model.RateObservation) (string, model.CodeType, bool) {
	if o.DRGCode != nil {
		if c := normalize.Code(*o.DRGCode); c != "" {
			return c, model.CodeTypeDRG, true
		}
	}
	if o.ProcedureCode != nil {
		if c := normalize.Code(*o.ProcedureCode); c != "" {
			return c, model.CodeTypeProcedure, true
		}
	}
	return "", "", false
}
