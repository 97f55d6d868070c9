package normalize

import "math"

// PositiveFinite reports whether f is a usable charge amount: finite and > 0.
func PositiveFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0
}
