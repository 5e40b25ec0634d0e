package analysis

import (
	"palin/adapters/stats/ttest"
	"palin/domain/core"
	"palin/domain/kernel"
	"palin/domain/observation"
)

// TestConfig selects the columns a significance test reads from kernel tables
type TestConfig struct {
	// DimensionField must match the tables' dimension field; empty means "use theirs"
	DimensionField string `json:"dimension_field" yaml:"dimension_field"`
	// ValueField is kernel.FieldKernelValue or kernel.FieldNormValue
	ValueField string `json:"value_field" yaml:"value_field"`
}

// DefaultTestConfig tests raw kernel values on the tables' own dimension
func DefaultTestConfig() TestConfig {
	return TestConfig{ValueField: kernel.FieldKernelValue}
}

// Labels name the two response classes in one-sample results
type Labels struct {
	Positives string `json:"positives" yaml:"positives"`
	Negatives string `json:"negatives" yaml:"negatives"`
}

// DefaultLabels returns the "positives" / "negatives" labels
func DefaultLabels() Labels {
	return Labels{Positives: "positives", Negatives: "negatives"}
}

// ResultSet holds one test result per dimension value. Results are keyed
// by observation.Value.Key.
type ResultSet struct {
	Dimensions []observation.Value     `json:"dimensions"`
	Results    map[string]ttest.Result `json:"results"`
}

func newResultSet() *ResultSet {
	return &ResultSet{Results: make(map[string]ttest.Result)}
}

func (s *ResultSet) put(d observation.Value, r ttest.Result) {
	s.Dimensions = append(s.Dimensions, d)
	s.Results[d.Key()] = r
}

// Get returns the result for one dimension value
func (s *ResultSet) Get(d observation.Value) (ttest.Result, bool) {
	r, ok := s.Results[d.Key()]
	return r, ok
}

// Degenerate lists the dimensions whose result is undefined or infinite
func (s *ResultSet) Degenerate() []observation.Value {
	var out []observation.Value
	for _, d := range s.Dimensions {
		if s.Results[d.Key()].Degenerate() {
			out = append(out, d)
		}
	}
	return out
}

// resolve validates the configuration against both tables
func (c TestConfig) resolve(pos, neg *kernel.Table) (TestConfig, error) {
	if pos == nil || neg == nil {
		return c, core.ErrEmptyInput
	}
	if c.ValueField == "" {
		c.ValueField = kernel.FieldKernelValue
	}
	if c.DimensionField == "" {
		c.DimensionField = pos.DimensionField
	}
	for _, t := range []*kernel.Table{pos, neg} {
		if t.DimensionField != c.DimensionField {
			return c, core.NewMissingColumnError(c.DimensionField)
		}
		if !t.HasField(c.ValueField) {
			return c, core.NewMissingColumnError(c.ValueField)
		}
	}
	return c, nil
}

// values reads one value column from rows. zeroEnergy reports a norm value
// taken from a trial group whose energy is zero, which is NaN.
func values(t *kernel.Table, rows []kernel.Row, field string) (out []float64, zeroEnergy bool) {
	out = make([]float64, len(rows))
	for i, r := range rows {
		out[i], _ = t.Value(r, field)
		if field == kernel.FieldNormValue && r.Energy == 0 {
			zeroEnergy = true
		}
	}
	return out, zeroEnergy
}

func oneSample(t *kernel.Table, d observation.Value, field string, mu float64) ttest.Result {
	x, zeroEnergy := values(t, t.AtDimension(d), field)
	if zeroEnergy {
		return ttest.ZeroEnergy(len(x), 0)
	}
	return ttest.OneSample(x, mu)
}

// OneSampleTest compares, for every dimension of the positives table, the
// positives and the negatives values against mu. Dimensions present only in
// the negatives table are skipped. Results are keyed by the class labels.
// A dimension reading a zero-energy norm value is a NaN zero-energy result.
func OneSampleTest(pos, neg *kernel.Table, cfg TestConfig, labels Labels, mu float64) (map[string]*ResultSet, error) {
	cfg, err := cfg.resolve(pos, neg)
	if err != nil {
		return nil, err
	}
	if labels.Positives == "" || labels.Negatives == "" {
		return nil, core.NewConfigError("labels", "class labels must not be empty")
	}
	if labels.Positives == labels.Negatives {
		return nil, core.NewConfigError("labels", "positive and negative labels collide")
	}

	posSet, negSet := newResultSet(), newResultSet()
	for _, d := range pos.Dimensions() {
		negSet.put(d, oneSample(neg, d, cfg.ValueField, mu))
		posSet.put(d, oneSample(pos, d, cfg.ValueField, mu))
	}
	return map[string]*ResultSet{
		labels.Negatives: negSet,
		labels.Positives: posSet,
	}, nil
}

// TwoSampleTest runs a Welch test of positives against negatives for every
// dimension of the positives table
func TwoSampleTest(pos, neg *kernel.Table, cfg TestConfig) (*ResultSet, error) {
	cfg, err := cfg.resolve(pos, neg)
	if err != nil {
		return nil, err
	}

	set := newResultSet()
	for _, d := range pos.Dimensions() {
		x, zx := values(pos, pos.AtDimension(d), cfg.ValueField)
		y, zy := values(neg, neg.AtDimension(d), cfg.ValueField)
		if zx || zy {
			set.put(d, ttest.ZeroEnergy(len(x), len(y)))
			continue
		}
		set.put(d, ttest.Welch(x, y))
	}
	return set, nil
}

// PairedSampleTest runs a paired test of positives against negatives for
// every dimension of the positives table. Rows are paired by trial key, in
// positives order. When the two tables do not hold the same trial keys at a
// dimension, that dimension's result is a NaN length mismatch.
func PairedSampleTest(pos, neg *kernel.Table, cfg TestConfig) (*ResultSet, error) {
	cfg, err := cfg.resolve(pos, neg)
	if err != nil {
		return nil, err
	}

	set := newResultSet()
	for _, d := range pos.Dimensions() {
		x, y, zeroEnergy, ok := pairByTrial(pos, neg, d, cfg.ValueField)
		switch {
		case !ok:
			set.put(d, ttest.Mismatch(len(x), len(neg.AtDimension(d))))
		case zeroEnergy:
			set.put(d, ttest.ZeroEnergy(len(x), len(y)))
		default:
			set.put(d, ttest.Paired(x, y))
		}
	}
	return set, nil
}

// pairByTrial aligns the two tables' rows at dimension d on trial key. It
// reports false unless both sides hold exactly the same keys once each.
func pairByTrial(pos, neg *kernel.Table, d observation.Value, field string) (x, y []float64, zeroEnergy, ok bool) {
	posRows := pos.AtDimension(d)
	negRows := neg.AtDimension(d)
	x, zeroEnergy = values(pos, posRows, field)

	byTrial := make(map[string]kernel.Row, len(negRows))
	for _, r := range negRows {
		if _, dup := byTrial[r.Trial.ID()]; dup {
			return x, nil, false, false
		}
		byTrial[r.Trial.ID()] = r
	}
	if len(posRows) != len(negRows) {
		return x, nil, false, false
	}

	y = make([]float64, 0, len(posRows))
	for _, r := range posRows {
		match, found := byTrial[r.Trial.ID()]
		if !found {
			return x, nil, false, false
		}
		v, _ := neg.Value(match, field)
		y = append(y, v)
		if field == kernel.FieldNormValue && match.Energy == 0 {
			zeroEnergy = true
		}
	}
	return x, y, zeroEnergy, true
}
