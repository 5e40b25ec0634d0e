package core

import "math"

// Finite returns a pointer to f, or nil when f is NaN or infinite. Used where
// values cross JSON or SQL boundaries that cannot carry non-finite numbers.
func Finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// FromFinite reverses Finite, mapping nil back to NaN
func FromFinite(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
