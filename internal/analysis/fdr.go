package analysis

import (
	"math"
	"sort"
)

// AdjustFDR stores Benjamini-Hochberg q-values in every result of the set.
// The family is the set's finite p-values; NaN p-values keep a NaN q-value
// and do not count toward the number of comparisons.
func AdjustFDR(set *ResultSet) {
	if set == nil {
		return
	}
	type entry struct {
		key string
		p   float64
	}
	var family []entry
	for _, d := range set.Dimensions {
		key := d.Key()
		r := set.Results[key]
		r.QValue = math.NaN()
		set.Results[key] = r
		if !math.IsNaN(r.PValue) {
			family = append(family, entry{key, r.PValue})
		}
	}
	m := len(family)
	if m == 0 {
		return
	}

	sort.SliceStable(family, func(i, j int) bool { return family[i].p < family[j].p })

	// step-up: q_(i) = min over j >= i of p_(j) * m / j
	running := 1.0
	for i := m - 1; i >= 0; i-- {
		q := family[i].p * float64(m) / float64(i+1)
		if q < running {
			running = q
		}
		r := set.Results[family[i].key]
		r.QValue = running
		set.Results[family[i].key] = r
	}
}
