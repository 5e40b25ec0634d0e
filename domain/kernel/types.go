package kernel

import (
	"math"
	"strings"

	"palin/domain/core"
	"palin/domain/observation"
)

// Value columns a kernel table exposes to significance tests
const (
	FieldKernelValue = "kernel_value"
	FieldNormValue   = "norm_value"
)

// Form tells which kind of kernel a table holds
type Form string

const (
	FormDifference Form = "difference"
	FormPositives  Form = "positives"
	FormNegatives  Form = "negatives"
)

// TrialKey is the ordered tuple of trial field values identifying one
// independent kernel-estimation unit
type TrialKey []observation.Value

// String joins the key's values with "/", e.g. "jj/pitch/3/1"
func (k TrialKey) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = v.String()
	}
	return strings.Join(parts, "/")
}

// ID returns a collision-free map key for the tuple
func (k TrialKey) ID() string {
	var b strings.Builder
	for _, v := range k {
		b.WriteString(v.Key())
		b.WriteByte('\x1e')
	}
	return b.String()
}

// Compare orders keys field by field
func (k TrialKey) Compare(other TrialKey) int {
	for i := 0; i < len(k) && i < len(other); i++ {
		if c := k[i].Compare(other[i]); c != 0 {
			return c
		}
	}
	return len(k) - len(other)
}

// Row is one (trial key, dimension) entry of a kernel table
type Row struct {
	Trial     TrialKey          `json:"trial"`
	Dimension observation.Value `json:"dimension"`

	// KernelValue is the positive minus negative mean in difference form,
	// or the subset's raw mean in split form
	KernelValue float64 `json:"kernel_value"`
	// NormValue is KernelValue / sqrt(Energy); NaN when the group's energy is zero
	NormValue float64 `json:"norm_value"`
	// Energy is the mean of squared KernelValue over the trial group's dimensions
	Energy float64 `json:"energy"`

	PositiveMean float64 `json:"positive_mean,omitempty"`
	NegativeMean float64 `json:"negative_mean,omitempty"`
	Count        int     `json:"count"`
}

// Table is a kernel table in difference or split form
type Table struct {
	Form           Form     `json:"form"`
	TrialFields    []string `json:"trial_fields"`
	DimensionField string   `json:"dimension_field"`
	ValueField     string   `json:"value_field"`
	Normalized     bool     `json:"normalized"`
	Rows           []Row    `json:"rows"`
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// HasField reports whether the value column can be read from this table
func (t *Table) HasField(field string) bool {
	switch field {
	case FieldKernelValue:
		return true
	case FieldNormValue:
		return t.Normalized
	}
	return false
}

// Value reads one value column from a row
func (t *Table) Value(r Row, field string) (float64, error) {
	if !t.HasField(field) {
		return math.NaN(), core.NewMissingColumnError(field)
	}
	if field == FieldNormValue {
		return r.NormValue, nil
	}
	return r.KernelValue, nil
}

// Values returns one value column for every row
func (t *Table) Values(field string) ([]float64, error) {
	if !t.HasField(field) {
		return nil, core.NewMissingColumnError(field)
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i], _ = t.Value(r, field)
	}
	return out, nil
}

// Dimensions lists distinct dimension values in order of first appearance
func (t *Table) Dimensions() []observation.Value {
	var out []observation.Value
	seen := make(map[string]bool)
	for _, r := range t.Rows {
		if id := r.Dimension.Key(); !seen[id] {
			seen[id] = true
			out = append(out, r.Dimension)
		}
	}
	return out
}

// Groups lists distinct trial keys in order of first appearance
func (t *Table) Groups() []TrialKey {
	var out []TrialKey
	seen := make(map[string]bool)
	for _, r := range t.Rows {
		if id := r.Trial.ID(); !seen[id] {
			seen[id] = true
			out = append(out, r.Trial)
		}
	}
	return out
}

// AtDimension returns the rows for one dimension value, in table order
func (t *Table) AtDimension(d observation.Value) []Row {
	var out []Row
	for _, r := range t.Rows {
		if r.Dimension.Equal(d) {
			out = append(out, r)
		}
	}
	return out
}

// ZeroEnergyGroups lists trial groups whose normalization energy is zero.
// Their NormValue entries are NaN.
func (t *Table) ZeroEnergyGroups() []TrialKey {
	if !t.Normalized {
		return nil
	}
	var out []TrialKey
	seen := make(map[string]bool)
	for _, r := range t.Rows {
		id := r.Trial.ID()
		if r.Energy == 0 && !seen[id] {
			seen[id] = true
			out = append(out, r.Trial)
		}
	}
	return out
}
