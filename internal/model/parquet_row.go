package model

// RawChargeRow mirrors one upstream charge line: an entity/service pair with
// its identifying codes, payer context and up to five charge columns. The
// same struct is the lake projection, the remote page row, and the on-disk
// schema of extract outputs and per-entity partial files.
type RawChargeRow struct {
	EntityID     string  `parquet:"entity_id" json:"entity_id"`
	RowKey       int64   `parquet:"row_key,optional" json:"row_key"`
	Description  string  `parquet:"description" json:"description"`
	Setting      *string `parquet:"setting,optional" json:"setting"`
	BillingClass *string `parquet:"billing_class,optional" json:"billing_class"`

	MSDRGCode *string `parquet:"ms_drg_code,optional" json:"ms_drg_code"`
	CPTCode   *string `parquet:"cpt_code,optional" json:"cpt_code"`
	HCPCSCode *string `parquet:"hcpcs_code,optional" json:"hcpcs_code"`

	PayerName *string `parquet:"payer_name,optional" json:"payer_name"`
	PlanName  *string `parquet:"plan_name,optional" json:"plan_name"`

	NegotiatedDollar *float64 `parquet:"negotiated_dollar,optional" json:"negotiated_dollar"`
	GrossCharge      *float64 `parquet:"gross_charge,optional" json:"gross_charge"`
	DiscountedCash   *float64 `parquet:"discounted_cash,optional" json:"discounted_cash"`
	MinCharge        *float64 `parquet:"min_charge,optional" json:"min_charge"`
	MaxCharge        *float64 `parquet:"max_charge,optional" json:"max_charge"`
}

// ProcedureValues returns the procedure source columns in coalesce order.
func (r *RawChargeRow) ProcedureValues() []*string {
	return []*string{r.CPTCode, r.HCPCSCode}
}

// ProcedureCode returns the first non-empty procedure source column.
func (r *RawChargeRow) ProcedureCode() *string {
	for _, v := range r.ProcedureValues() {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

// HasDRG reports whether the DRG column is populated.
func (r *RawChargeRow) HasDRG() bool {
	return r.MSDRGCode != nil && *r.MSDRGCode != ""
}

// HasProcedure reports whether any procedure column is populated.
func (r *RawChargeRow) HasProcedure() bool {
	return r.ProcedureCode() != nil
}

// RawColumns lists the projected columns in RawChargeRow order.
func RawColumns() []string {
	return []string{
		"entity_id",
		"row_key",
		"description",
		"setting",
		"billing_class",
		"ms_drg_code",
		"cpt_code",
		"hcpcs_code",
		"payer_name",
		"plan_name",
		"negotiated_dollar",
		"gross_charge",
		"discounted_cash",
		"min_charge",
		"max_charge",
	}
}
