package model

import "fmt"

// CodeType is the billing code family a target code belongs to.
type CodeType string

const (
	CodeTypeDRG       CodeType = "DRG"
	CodeTypeProcedure CodeType = "ProcedureCode"
)

// AllCodeTypes lists the supported code families in canonical order.
var AllCodeTypes = []CodeType{CodeTypeDRG, CodeTypeProcedure}

// ParseCodeType accepts the canonical names plus a few common spellings
// found in reference tables ("MS-DRG", "CPT", "HCPCS").
func ParseCodeType(s string) (CodeType, error) {
	switch s {
	case "DRG", "MS-DRG", "drg":
		return CodeTypeDRG, nil
	case "ProcedureCode", "procedure", "CPT", "HCPCS", "CPT/HCPCS":
		return CodeTypeProcedure, nil
	}
	return "", fmt.Errorf("unknown code type %q", s)
}

// TargetCode is one row of the target code reference table.
type TargetCode struct {
	Code     string   `yaml:"code"`
	CodeType CodeType `yaml:"code_type"`
	Label    string   `yaml:"label"`
}

// CodeKey identifies a target code; unique within a registry.
type CodeKey struct {
	Code     string
	CodeType CodeType
}

// Key returns the registry key for t.
func (t TargetCode) Key() CodeKey {
	return CodeKey{Code: t.Code, CodeType: t.CodeType}
}

// ProcedureColumns are the alternative procedure-code source columns, in the
// order they are coalesced into a single procedure code.
var ProcedureColumns = []string{"cpt_code", "hcpcs_code"}

// DRGColumn is the source column holding the DRG code.
const DRGColumn = "ms_drg_code"
