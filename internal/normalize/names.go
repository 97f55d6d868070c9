package normalize

import "regexp"

var nonDigit = regexp.MustCompile(`[^0-9]`)

// TaxID reduces an EIN to its digits so "12-3456789" and "123456789" match.
func TaxID(v *string) string {
	if v == nil {
		return ""
	}
	return nonDigit.ReplaceAllString(*v, "")
}
