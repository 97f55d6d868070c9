package registry

import (
	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/normalize"
)

// CodeFilter is the "code ∈ target set" predicate shared by the lake and
// remote extractors.
type CodeFilter struct {
	drg      map[string]struct{}
	proc     map[string]struct{}
	drgList  []string
	procList []string
}

// DRGCodes returns the sorted DRG target codes.
func (f *CodeFilter) DRGCodes() []string { return f.drgList }

// ProcedureCodes returns the sorted procedure target codes.
func (f *CodeFilter) ProcedureCodes() []string { return f.procList }

// MatchDRG reports whether v normalizes to a DRG target.
func (f *CodeFilter) MatchDRG(v *string) bool {
	if v == nil {
		return false
	}
	_, ok := f.drg[normalize.Code(*v)]
	return ok
}

// MatchProcedure reports whether v normalizes to a procedure target.
func (f *CodeFilter) MatchProcedure(v *string) bool {
	if v == nil {
		return false
	}
	_, ok := f.proc[normalize.Code(*v)]
	return ok
}

// Matches reports whether any code column of row is a target.
func (f *CodeFilter) Matches(row *model.RawChargeRow) bool {
	if f.MatchDRG(row.MSDRGCode) {
		return true
	}
	for _, v := range row.ProcedureValues() {
		if f.MatchProcedure(v) {
			return true
		}
	}
	return false
}

// Split turns one matching upstream row into its DRG-sourced and
// procedure-sourced copies. Each copy populates exactly one code family:
// the DRG copy has no procedure codes, and the procedure copy keeps only the
// procedure columns that are targets (so coalescing picks a target code).
// Codes are stored normalized. Either return value may be nil.
func (f *CodeFilter) Split(row model.RawChargeRow) (drg, proc *model.RawChargeRow) {
	if f.MatchDRG(row.MSDRGCode) {
		d := row
		d.MSDRGCode = normalize.NormalizeCode(row.MSDRGCode)
		d.CPTCode = nil
		d.HCPCSCode = nil
		drg = &d
	}
	var cpt, hcpcs *string
	if f.MatchProcedure(row.CPTCode) {
		cpt = normalize.NormalizeCode(row.CPTCode)
	}
	if f.MatchProcedure(row.HCPCSCode) {
		hcpcs = normalize.NormalizeCode(row.HCPCSCode)
	}
	if cpt != nil || hcpcs != nil {
		p := row
		p.MSDRGCode = nil
		p.CPTCode = cpt
		p.HCPCSCode = hcpcs
		proc = &p
	}
	return drg, proc
}
