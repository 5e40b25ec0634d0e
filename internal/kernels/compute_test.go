package kernels

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palin/domain/core"
	"palin/domain/kernel"
	"palin/domain/observation"
)

type obs struct {
	subject  string
	session  float64
	segment  float64
	response bool
	pitch    float64
}

func buildTable(t *testing.T, rows []obs) *observation.Table {
	t.Helper()
	tbl := observation.NewTable("experimenter", "type", "subject", "session", "segment", "response", "pitch")
	for _, r := range rows {
		require.NoError(t, tbl.Append(
			observation.NewStringValue("jj"),
			observation.NewStringValue("pitch"),
			observation.NewStringValue(r.subject),
			observation.NewNumericValue(r.session),
			observation.NewNumericValue(r.segment),
			observation.NewBooleanValue(r.response),
			observation.NewNumericValue(r.pitch),
		))
	}
	return tbl
}

// twoSubjects has subjA and subjB, session 1, segments 1..3, one positive
// observation of 10 and one negative of 4 per segment
func twoSubjects(t *testing.T) *observation.Table {
	var rows []obs
	for _, s := range []string{"subjA", "subjB"} {
		for seg := 1.0; seg <= 3; seg++ {
			rows = append(rows, obs{s, 1, seg, true, 10}, obs{s, 1, seg, false, 4})
		}
	}
	return buildTable(t, rows)
}

func randomTable(t *testing.T, seed int64) *observation.Table {
	rng := rand.New(rand.NewSource(seed))
	var rows []obs
	for _, s := range []string{"s1", "s2", "s3"} {
		for trial := 0; trial < 20; trial++ {
			for seg := 1.0; seg <= 5; seg++ {
				rows = append(rows,
					obs{s, 1, seg, true, 200 + rng.NormFloat64()*10},
					obs{s, 1, seg, false, 200 + rng.NormFloat64()*10},
				)
			}
		}
	}
	return buildTable(t, rows)
}

func TestComputeKernelDiff_ConstantScenario(t *testing.T) {
	tbl := twoSubjects(t)

	cfg := kernel.DefaultConfig()
	cfg.Normalize = false
	raw, err := ComputeKernelDiff(tbl, cfg)
	require.NoError(t, err)
	require.Equal(t, 6, raw.Len())
	for _, r := range raw.Rows {
		assert.Equal(t, 6.0, r.KernelValue)
		assert.Equal(t, 10.0, r.PositiveMean)
		assert.Equal(t, 4.0, r.NegativeMean)
		assert.Equal(t, 2, r.Count)
		assert.True(t, math.IsNaN(r.NormValue))
	}

	// energy = mean(6², 6², 6²) = 36, so every norm value is 6/6
	norm, err := ComputeKernelDiff(tbl, kernel.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 6, norm.Len())
	for _, r := range norm.Rows {
		assert.Equal(t, 36.0, r.Energy)
		assert.InDelta(t, 1.0, r.NormValue, 1e-12)
	}
	assert.Len(t, norm.Groups(), 2)
	assert.Equal(t, "jj/pitch/subjA/1", norm.Rows[0].Trial.String())
}

func TestComputeKernelDiff_AveragesWithinGroup(t *testing.T) {
	tbl := buildTable(t, []obs{
		{"s1", 1, 1, true, 10},
		{"s1", 1, 1, true, 20},
		{"s1", 1, 1, false, 3},
		{"s1", 1, 1, false, 5},
		{"s1", 1, 1, false, 7},
	})
	cfg := kernel.DefaultConfig()
	cfg.Normalize = false

	out, err := ComputeKernelDiff(tbl, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, 10.0, out.Rows[0].KernelValue)
	assert.Equal(t, 5, out.Rows[0].Count)
}

func TestComputeKernelDiff_DropsIncompletePairs(t *testing.T) {
	tbl := buildTable(t, []obs{
		{"s1", 1, 1, true, 10},
		{"s1", 1, 1, false, 4},
		{"s1", 1, 2, true, 10}, // no negative
		{"s1", 1, 3, false, 4}, // no positive
		{"s2", 1, 1, true, 1},  // subject without any negative
	})

	out, err := ComputeKernelDiff(tbl, kernel.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "1", out.Rows[0].Dimension.String())
}

func TestComputeKernelDiff_NoCompletePairIsEmpty(t *testing.T) {
	tbl := buildTable(t, []obs{{"s1", 1, 1, true, 10}, {"s1", 1, 2, false, 4}})

	out, err := ComputeKernelDiff(tbl, kernel.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestComputeKernelDiff_RowCountMatchesCompletePairs(t *testing.T) {
	tbl := randomTable(t, 7)
	// knock out every negative observation of s2 at segment 4
	subj, _ := tbl.Index("subject")
	seg, _ := tbl.Index("segment")
	resp, _ := tbl.Index("response")
	filtered := observation.NewTable(tbl.Columns...)
	for _, row := range tbl.Rows {
		s, _ := row[seg].Float()
		r, _ := row[resp].Bool()
		if row[subj].String() == "s2" && s == 4 && !r {
			continue
		}
		require.NoError(t, filtered.Append(row...))
	}

	out, err := ComputeKernelDiff(filtered, kernel.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 3*5-1, out.Len())
}

func TestComputeKernelDiff_Idempotent(t *testing.T) {
	tbl := randomTable(t, 11)
	a, err := ComputeKernelDiff(tbl, kernel.DefaultConfig())
	require.NoError(t, err)
	b, err := ComputeKernelDiff(tbl, kernel.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeKernelDiff_NormalizedMeanSquareIsOne(t *testing.T) {
	out, err := ComputeKernelDiff(randomTable(t, 3), kernel.DefaultConfig())
	require.NoError(t, err)

	sums := map[string]float64{}
	counts := map[string]int{}
	for _, r := range out.Rows {
		sums[r.Trial.ID()] += r.NormValue * r.NormValue
		counts[r.Trial.ID()]++
	}
	require.Len(t, sums, 3)
	for id, s := range sums {
		assert.InDelta(t, 1.0, s/float64(counts[id]), 1e-9)
	}
}

func TestComputeKernelDiff_ZeroEnergyIsNaN(t *testing.T) {
	tbl := buildTable(t, []obs{
		{"flat", 1, 1, true, 5}, {"flat", 1, 1, false, 5},
		{"flat", 1, 2, true, 7}, {"flat", 1, 2, false, 7},
		{"live", 1, 1, true, 9}, {"live", 1, 1, false, 5},
	})

	out, err := ComputeKernelDiff(tbl, kernel.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	for _, r := range out.Rows {
		if r.Trial.String() == "jj/pitch/flat/1" {
			assert.True(t, math.IsNaN(r.NormValue))
			assert.Equal(t, 0.0, r.Energy)
		} else {
			assert.InDelta(t, 1.0, r.NormValue, 1e-12)
		}
	}
	zero := out.ZeroEnergyGroups()
	require.Len(t, zero, 1)
	assert.Equal(t, "jj/pitch/flat/1", zero[0].String())
}

func TestComputeKernelDiff_SortsNumericDimensions(t *testing.T) {
	tbl := buildTable(t, []obs{
		{"s1", 1, 10, true, 1}, {"s1", 1, 10, false, 0},
		{"s1", 1, 2, true, 1}, {"s1", 1, 2, false, 0},
	})
	out, err := ComputeKernelDiff(tbl, kernel.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "2", out.Rows[0].Dimension.String())
	assert.Equal(t, "10", out.Rows[1].Dimension.String())
}

func TestComputeKernelDiff_SkipsMissingCells(t *testing.T) {
	tbl := twoSubjects(t)
	require.NoError(t, tbl.Append(
		observation.NewStringValue("jj"),
		observation.NewStringValue("pitch"),
		observation.NewStringValue("subjA"),
		observation.NewNumericValue(1),
		observation.NewNumericValue(1),
		observation.NewMissingValue(),
		observation.NewNumericValue(1000),
	))
	cfg := kernel.DefaultConfig()
	cfg.Normalize = false

	out, err := ComputeKernelDiff(tbl, cfg)
	require.NoError(t, err)
	for _, r := range out.Rows {
		assert.Equal(t, 6.0, r.KernelValue)
	}
}

func TestComputeKernelDiff_SchemaErrors(t *testing.T) {
	tbl := twoSubjects(t)

	cfg := kernel.DefaultConfig()
	cfg.ValueField = "tilt"
	_, err := ComputeKernelDiff(tbl, cfg)
	assert.True(t, errors.Is(err, core.ErrMissingColumn))

	cfg = kernel.DefaultConfig()
	cfg.TrialFields = []string{"experimentor"}
	_, _, err = ComputeKernel(tbl, cfg)
	assert.True(t, errors.Is(err, core.ErrMissingColumn))
}

func TestComputeKernelDiff_DoesNotMutateInput(t *testing.T) {
	tbl := randomTable(t, 5)
	before := tbl.Fingerprint()

	out, err := ComputeKernelDiff(tbl, kernel.DefaultConfig())
	require.NoError(t, err)
	out.Rows[0].Trial[0] = observation.NewStringValue("changed")

	assert.Equal(t, before, tbl.Fingerprint())
}

func TestComputeKernel_SplitReproducesDifference(t *testing.T) {
	tbl := randomTable(t, 19)
	cfg := kernel.DefaultConfig()
	cfg.Normalize = false

	pos, neg, err := ComputeKernel(tbl, cfg)
	require.NoError(t, err)
	diff, err := ComputeKernelDiff(tbl, cfg)
	require.NoError(t, err)
	assert.Equal(t, kernel.FormPositives, pos.Form)
	assert.Equal(t, kernel.FormNegatives, neg.Form)

	key := func(r kernel.Row) string { return r.Trial.ID() + r.Dimension.String() }
	negByKey := map[string]float64{}
	for _, r := range neg.Rows {
		negByKey[key(r)] = r.KernelValue
	}
	require.Equal(t, diff.Len(), pos.Len())
	for i, r := range pos.Rows {
		n, ok := negByKey[key(r)]
		require.True(t, ok)
		assert.InDelta(t, diff.Rows[i].KernelValue, r.KernelValue-n, 1e-9)
	}
}

func TestComputeKernel_NormalizesEachSubsetIndependently(t *testing.T) {
	tbl := twoSubjects(t)

	pos, neg, err := ComputeKernel(tbl, kernel.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 6, pos.Len())
	require.Equal(t, 6, neg.Len())
	for _, r := range pos.Rows {
		assert.Equal(t, 10.0, r.KernelValue)
		assert.Equal(t, 100.0, r.Energy)
		assert.InDelta(t, 1.0, r.NormValue, 1e-12)
	}
	for _, r := range neg.Rows {
		assert.Equal(t, 4.0, r.KernelValue)
		assert.Equal(t, 16.0, r.Energy)
		assert.InDelta(t, 1.0, r.NormValue, 1e-12)
	}
}

func TestComputeKernelDiff_NegativeZeroJoinsZero(t *testing.T) {
	tbl := buildTable(t, []obs{
		{"s1", 1, 0, true, 10}, {"s1", 1, 0, false, 4},
		{"s1", 1, 1, true, 6}, {"s1", 1, 1, false, 2},
	})
	tbl.Rows[0][4] = observation.Value{Type: observation.ValueTypeNumeric, NumericVal: math.Copysign(0, -1)}

	out, err := ComputeKernelDiff(tbl, kernel.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)
	assert.Len(t, out.Dimensions(), 2)
	assert.Equal(t, 6.0, out.Rows[0].KernelValue)
	assert.Equal(t, 2, out.Rows[0].Count)
}
