// Package payer maps free-text payer names to a fixed category taxonomy.
package payer

import (
	"regexp"
	"strings"

	"github.com/gyeh/pricepanel/internal/model"
)

// Category labels. Other is the guaranteed fallback for any non-blank name.
const (
	UnitedHealthcare  = "UnitedHealthcare"
	Aetna             = "Aetna"
	Cigna             = "Cigna"
	Humana            = "Humana"
	BCBS              = "BCBS"
	MedicareAdvantage = "Medicare Advantage"
	MedicaidMCO       = "Medicaid MCO"
	Medicare          = "Medicare"
	Tricare           = "Tricare"
	Other             = "Other"
)

// Rule pairs a case-insensitive pattern with the category it assigns.
type Rule struct {
	Category string
	Pattern  *regexp.Regexp
}

// Rules is evaluated top to bottom and the first match wins, so the order is
// part of the contract: named national payers before program types, and
// Medicare Advantage before plain Medicare.
var Rules = []Rule{
	{UnitedHealthcare, regexp.MustCompile(`(?i)united\s*health|\buhc\b|optum|\bumr\b|golden rule`)},
	{Aetna, regexp.MustCompile(`(?i)aetna`)},
	{Cigna, regexp.MustCompile(`(?i)cigna`)},
	{Humana, regexp.MustCompile(`(?i)humana`)},
	{BCBS, regexp.MustCompile(`(?i)blue\s*cross|blue\s*shield|\bbcbs|anthem|highmark|premera|regence|carefirst|wellmark|horizon\s+bc|florida\s+blue|excellus`)},
	{MedicareAdvantage, regexp.MustCompile(`(?i)medicare\s*advantage|\bmapd\b|\bma[\s-]*(hmo|ppo|pffs)\b|medicare\s+ma\b|medicare\s*(hmo|ppo|replacement)|wellcare|\bsnp\b|dual\s+(complete|eligible)`)},
	{MedicaidMCO, regexp.MustCompile(`(?i)medicaid|medi-cal|\bchip\b|molina|caresource|amerigroup|centene|ambetter|\bmco\b|sunshine\s+health|superior\s+health`)},
	{Medicare, regexp.MustCompile(`(?i)medicare`)},
	{Tricare, regexp.MustCompile(`(?i)tricare|champus|champva`)},
}

// Classify returns the first matching category for name, Other when nothing
// matches, and nil for a nil or blank name.
func Classify(name *string) *string {
	if name == nil {
		return nil
	}
	s := strings.TrimSpace(*name)
	if s == "" {
		return nil
	}
	for _, r := range Rules {
		if r.Pattern.MatchString(s) {
			c := r.Category
			return &c
		}
	}
	c := Other
	return &c
}

// ClassifyRates sets PayerCategory on negotiated rows and clears it on all
// others. It returns the number of rows per category.
func ClassifyRates(rates []model.CleanRate) map[string]int64 {
	counts := make(map[string]int64)
	for i := range rates {
		r := &rates[i]
		if r.RateCategory != model.RateNegotiated {
			r.PayerCategory = nil
			continue
		}
		r.PayerCategory = Classify(r.PayerName)
		if r.PayerCategory != nil {
			counts[*r.PayerCategory]++
		}
	}
	return counts
}
