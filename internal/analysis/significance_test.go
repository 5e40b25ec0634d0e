package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palin/adapters/stats/ttest"
	"palin/domain/core"
	"palin/domain/kernel"
	"palin/domain/observation"
	"palin/internal/kernels"
)

func num(f float64) observation.Value {
	return observation.NewNumericValue(f)
}

func trial(subject string) kernel.TrialKey {
	return kernel.TrialKey{observation.NewStringValue(subject)}
}

// splitTable builds a split-form table from subject -> segment -> value
func splitTable(form kernel.Form, rows ...kernel.Row) *kernel.Table {
	return &kernel.Table{
		Form:           form,
		TrialFields:    []string{"subject"},
		DimensionField: "segment",
		ValueField:     "pitch",
		Rows:           rows,
	}
}

func row(subject string, segment, value float64) kernel.Row {
	return kernel.Row{Trial: trial(subject), Dimension: num(segment), KernelValue: value, NormValue: math.NaN(), Count: 1}
}

func fixture() (*kernel.Table, *kernel.Table) {
	pos := splitTable(kernel.FormPositives,
		row("s1", 1, 1), row("s2", 1, 2), row("s3", 1, 3), row("s4", 1, 4), row("s5", 1, 5),
		row("s1", 2, 5), row("s2", 2, 5), row("s3", 2, 5),
	)
	neg := splitTable(kernel.FormNegatives,
		row("s1", 1, 2), row("s2", 1, 2), row("s3", 1, 5), row("s4", 1, 3), row("s5", 1, 7),
		row("s1", 2, 1), row("s2", 2, 2),
		row("s1", 9, 4), row("s2", 9, 4),
	)
	return pos, neg
}

func TestOneSampleTest(t *testing.T) {
	pos, neg := fixture()

	out, err := OneSampleTest(pos, neg, DefaultTestConfig(), DefaultLabels(), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)

	p := out["positives"]
	require.NotNil(t, p)
	assert.Len(t, p.Dimensions, 2, "iteration is driven by positives' dimensions only")

	r, ok := p.Get(num(1))
	require.True(t, ok)
	assert.InDelta(t, 1.4142135623, r.Statistic, 1e-9)

	// identical positives [5,5,5] against mu=2: zero variance, no panic
	r, _ = p.Get(num(2))
	assert.Equal(t, ttest.ReasonZeroVariance, r.Reason)
	assert.True(t, math.IsInf(r.Statistic, 1))

	n := out["negatives"]
	_, ok = n.Get(num(9))
	assert.False(t, ok, "dimension only present in negatives is skipped")
	r, _ = n.Get(num(2))
	assert.Equal(t, 2, r.N1)
}

func TestOneSampleTest_CustomLabels(t *testing.T) {
	pos, neg := fixture()

	out, err := OneSampleTest(pos, neg, DefaultTestConfig(), Labels{Positives: "pull", Negatives: "poule"}, 0)
	require.NoError(t, err)
	assert.Contains(t, out, "pull")
	assert.Contains(t, out, "poule")

	_, err = OneSampleTest(pos, neg, DefaultTestConfig(), Labels{Positives: "x", Negatives: "x"}, 0)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestOneSampleTest_InsufficientData(t *testing.T) {
	pos := splitTable(kernel.FormPositives, row("s1", 1, 3))
	neg := splitTable(kernel.FormNegatives, row("s1", 1, 4))

	out, err := OneSampleTest(pos, neg, DefaultTestConfig(), DefaultLabels(), 0)
	require.NoError(t, err)
	r, _ := out["positives"].Get(num(1))
	assert.True(t, math.IsNaN(r.Statistic))
	assert.Equal(t, ttest.ReasonInsufficientData, r.Reason)
	assert.Len(t, out["positives"].Degenerate(), 1)
}

func TestTwoSampleTest_SwapSymmetry(t *testing.T) {
	pos, neg := fixture()

	ab, err := TwoSampleTest(pos, neg, DefaultTestConfig())
	require.NoError(t, err)
	ba, err := TwoSampleTest(neg, pos, DefaultTestConfig())
	require.NoError(t, err)

	r1, _ := ab.Get(num(1))
	r2, _ := ba.Get(num(1))
	assert.InDelta(t, r1.Statistic, -r2.Statistic, 1e-12)
	assert.InDelta(t, r1.PValue, r2.PValue, 1e-12)

	// swapped run iterates over negatives' dimensions, including segment 9
	_, ok := ba.Get(num(9))
	assert.True(t, ok)
	r9, _ := ba.Get(num(9))
	assert.Equal(t, ttest.ReasonInsufficientData, r9.Reason)
}

func TestPairedSampleTest(t *testing.T) {
	pos, neg := fixture()

	set, err := PairedSampleTest(pos, neg, DefaultTestConfig())
	require.NoError(t, err)

	r, _ := set.Get(num(1))
	assert.InDelta(t, -1.3719886811, r.Statistic, 1e-9)
	assert.InDelta(t, 0.2419815306, r.PValue, 1e-6)

	// 3 positives vs 2 negatives at segment 2: flagged, not truncated
	r, _ = set.Get(num(2))
	assert.Equal(t, ttest.ReasonLengthMismatch, r.Reason)
	assert.True(t, errors.Is(r.Err(), core.ErrLengthMismatch))
	assert.True(t, math.IsNaN(r.PValue))
	assert.Equal(t, 3, r.N1)
	assert.Equal(t, 2, r.N2)
}

func TestPairedSampleTest_PairsByTrialNotPosition(t *testing.T) {
	pos := splitTable(kernel.FormPositives, row("a", 1, 1), row("b", 1, 2), row("c", 1, 3), row("d", 1, 4), row("e", 1, 5))
	// same rows as fixture segment 1, shuffled
	neg := splitTable(kernel.FormNegatives, row("e", 1, 7), row("c", 1, 5), row("a", 1, 2), row("d", 1, 3), row("b", 1, 2))

	set, err := PairedSampleTest(pos, neg, DefaultTestConfig())
	require.NoError(t, err)
	r, _ := set.Get(num(1))
	assert.InDelta(t, -1.3719886811, r.Statistic, 1e-9)
}

func TestPairedSampleTest_SameCountDifferentTrials(t *testing.T) {
	pos := splitTable(kernel.FormPositives, row("a", 1, 1), row("b", 1, 2))
	neg := splitTable(kernel.FormNegatives, row("a", 1, 1), row("z", 1, 2))

	set, err := PairedSampleTest(pos, neg, DefaultTestConfig())
	require.NoError(t, err)
	r, _ := set.Get(num(1))
	assert.Equal(t, ttest.ReasonLengthMismatch, r.Reason)
}

func TestSignificance_SchemaErrors(t *testing.T) {
	pos, neg := fixture()

	_, err := TwoSampleTest(pos, neg, TestConfig{ValueField: kernel.FieldNormValue})
	assert.True(t, errors.Is(err, core.ErrMissingColumn), "unnormalized tables have no norm_value")

	_, err = PairedSampleTest(pos, neg, TestConfig{DimensionField: "trial", ValueField: kernel.FieldKernelValue})
	assert.True(t, errors.Is(err, core.ErrMissingColumn))

	_, err = OneSampleTest(pos, nil, DefaultTestConfig(), DefaultLabels(), 0)
	assert.True(t, errors.Is(err, core.ErrEmptyInput))
}

func TestAdjustFDR(t *testing.T) {
	set := newResultSet()
	for i, p := range []float64{0.01, 0.04, 0.03, math.NaN(), 0.5} {
		set.put(num(float64(i)), ttest.Result{PValue: p})
	}
	AdjustFDR(set)

	q := func(i int) float64 { r, _ := set.Get(num(float64(i))); return r.QValue }
	// m = 4 finite p-values: sorted 0.01, 0.03, 0.04, 0.5
	assert.InDelta(t, 0.04, q(0), 1e-12)
	assert.InDelta(t, 0.0533333333, q(1), 1e-9)
	assert.InDelta(t, 0.0533333333, q(2), 1e-9)
	assert.True(t, math.IsNaN(q(3)))
	assert.InDelta(t, 0.5, q(4), 1e-12)
}

func TestResultSet_DimensionsDifferingInType(t *testing.T) {
	str := observation.NewStringValue("1")
	at := func(r kernel.Row, d observation.Value) kernel.Row {
		r.Dimension = d
		return r
	}
	pos := splitTable(kernel.FormPositives,
		row("s1", 1, 1), row("s2", 1, 2), row("s3", 1, 4),
		at(row("s1", 0, 10), str), at(row("s2", 0, 20), str), at(row("s3", 0, 40), str),
	)
	neg := splitTable(kernel.FormNegatives,
		row("s1", 1, 0), row("s2", 1, 0), row("s3", 1, 1),
		at(row("s1", 0, 1), str), at(row("s2", 0, 2), str), at(row("s3", 0, 3), str),
	)

	set, err := TwoSampleTest(pos, neg, DefaultTestConfig())
	require.NoError(t, err)
	require.Len(t, set.Dimensions, 2)
	assert.Len(t, set.Results, 2)

	numeric, ok := set.Get(num(1))
	require.True(t, ok)
	text, ok := set.Get(str)
	require.True(t, ok)
	assert.InDelta(t, 2.0, numeric.Difference, 1e-12)
	assert.InDelta(t, 64.0/3, text.Difference, 1e-12)
}

// zeroEnergyTable has subjects a, b and c plus subject z whose positive
// responses all have pitch 0, so z's positives kernel has zero energy
func zeroEnergyTable(t *testing.T) *observation.Table {
	t.Helper()
	tbl := observation.NewTable("experimenter", "type", "subject", "session", "segment", "response", "pitch")
	add := func(subject string, segment float64, response bool, pitch float64) {
		require.NoError(t, tbl.Append(
			observation.NewStringValue("jj"),
			observation.NewStringValue("p"),
			observation.NewStringValue(subject),
			num(1),
			num(segment),
			observation.NewBooleanValue(response),
			num(pitch),
		))
	}
	for i, s := range []string{"a", "b", "c"} {
		v := float64(i + 2)
		add(s, 1, true, v)
		add(s, 1, false, 1)
		add(s, 2, true, 2*v)
		add(s, 2, false, v+1)
	}
	add("z", 1, true, 0)
	add("z", 1, false, 1)
	add("z", 2, true, 0)
	add("z", 2, false, 2)
	return tbl
}

func TestSignificance_ZeroEnergyGroup(t *testing.T) {
	pos, neg, err := kernels.ComputeKernel(zeroEnergyTable(t), kernel.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, pos.ZeroEnergyGroups(), 1)
	assert.Equal(t, "jj/p/z/1", pos.ZeroEnergyGroups()[0].String())
	assert.Empty(t, neg.ZeroEnergyGroups())

	cfg := TestConfig{ValueField: kernel.FieldNormValue}
	one, err := OneSampleTest(pos, neg, cfg, DefaultLabels(), 0)
	require.NoError(t, err)
	two, err := TwoSampleTest(pos, neg, cfg)
	require.NoError(t, err)
	paired, err := PairedSampleTest(pos, neg, cfg)
	require.NoError(t, err)

	for _, d := range []observation.Value{num(1), num(2)} {
		r, ok := one["positives"].Get(d)
		require.True(t, ok)
		assert.Equal(t, ttest.ReasonZeroEnergy, r.Reason)
		assert.True(t, errors.Is(r.Err(), core.ErrZeroEnergy))
		assert.True(t, math.IsNaN(r.Statistic))
		assert.Equal(t, 4, r.N1)

		r, _ = one["negatives"].Get(d)
		assert.Equal(t, ttest.ReasonNone, r.Reason)

		r, _ = two.Get(d)
		assert.Equal(t, ttest.ReasonZeroEnergy, r.Reason)
		assert.Equal(t, 4, r.N2)

		r, _ = paired.Get(d)
		assert.Equal(t, ttest.ReasonZeroEnergy, r.Reason)
	}
	assert.Len(t, one["positives"].Degenerate(), 2)
	assert.Empty(t, one["negatives"].Degenerate())
	assert.Len(t, two.Degenerate(), 2)
	assert.Len(t, paired.Degenerate(), 2)

	// raw kernel values stay testable
	one, err = OneSampleTest(pos, neg, DefaultTestConfig(), DefaultLabels(), 0)
	require.NoError(t, err)
	assert.Empty(t, one["positives"].Degenerate())
}
