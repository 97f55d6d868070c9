package panel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gyeh/pricepanel/internal/model"
)

func strPtr(s string) *string { return &s }

func rate(entity string, amount float64) model.CleanRate {
	return model.CleanRate{
		RateObservation: model.RateObservation{EntityID: entity, Description: "joint", ChargeAmount: amount, RateCategory: model.RateGross},
		Code:            "470",
		CodeType:        model.CodeTypeDRG,
		Label:           "Joint",
	}
}

func TestAssemble_InnerJoin(t *testing.T) {
	hospitals := []model.Hospital{
		{EntityID: "H1", Name: "General", City: "Albany", State: "NY", CCN: strPtr("330001")},
		{EntityID: "H2", Name: "Mercy"},
		{EntityID: "H1", Name: "Duplicate"},
	}
	rates := []model.CleanRate{rate("H1", 100), rate("H9", 50), rate("H1", 200)}

	res := Assemble(rates, hospitals)
	if len(res.Rows) != 2 || res.Dropped != 1 || res.Entities != 1 {
		t.Fatalf("rows=%d dropped=%d entities=%d", len(res.Rows), res.Dropped, res.Entities)
	}
	r := res.Rows[0]
	if r.HospitalName != "General" || r.CCN == nil || *r.CCN != "330001" || r.Label != "Joint" || r.ChargeAmount != 100 {
		t.Errorf("row: %+v", r)
	}
}

func TestFlagRateData(t *testing.T) {
	hospitals := []model.Hospital{{EntityID: "H1"}, {EntityID: "H2", HasRateData: true}}
	n := FlagRateData(hospitals, []model.CleanRate{rate("H1", 1)})
	if n != 1 || !hospitals[0].HasRateData || hospitals[1].HasRateData {
		t.Errorf("flagged=%d hospitals=%+v", n, hospitals)
	}
}

func TestCrosswalk_Enrich(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crosswalk.csv")
	os.WriteFile(path, []byte("\ufeffTax_ID,entity_id,ccn,aha_id,system_id\n"+
		"12-3456789,,330002,6210001,SYS1\n"+
		",H1,330001,,\n"+
		",,,,\n"+
		"98-7654321,H3,999999,,SYS9\n"), 0o644)

	entries, err := LoadCrosswalk(path)
	if err != nil {
		t.Fatalf("LoadCrosswalk: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	hospitals := []model.Hospital{
		{EntityID: "H1"},
		{EntityID: "H2", TaxID: strPtr("123456789")},
		{EntityID: "H3", CCN: strPtr("kept")},
		{EntityID: "H4", TaxID: strPtr("000000000")},
	}
	res := NewCrosswalk(entries).Enrich(hospitals)
	if res.ByEntity != 2 || res.ByTaxID != 1 || res.Unmatched != 1 {
		t.Errorf("match counts: %+v", res)
	}
	if hospitals[0].CCN == nil || *hospitals[0].CCN != "330001" || hospitals[0].AHAID != nil {
		t.Errorf("H1: %+v", hospitals[0])
	}
	if hospitals[1].AHAID == nil || *hospitals[1].AHAID != "6210001" || *hospitals[1].SystemID != "SYS1" {
		t.Errorf("H2 should match by normalized tax id: %+v", hospitals[1])
	}
	if *hospitals[2].CCN != "kept" || *hospitals[2].SystemID != "SYS9" {
		t.Errorf("H3 existing ccn must not be overwritten: %+v", hospitals[2])
	}
	if hospitals[3].CCN != nil {
		t.Errorf("H4 should stay unmatched: %+v", hospitals[3])
	}
}

func TestLoadCrosswalk_NoKeyColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crosswalk.csv")
	os.WriteFile(path, []byte("ccn,aha_id\n1,2\n"), 0o644)
	if _, err := LoadCrosswalk(path); err == nil {
		t.Fatal("expected error without entity_id or tax_id")
	}
}
