package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"palin/domain/kernel"
	"palin/internal/kernels"
)

func TestRevcorGeneratorDeterministic(t *testing.T) {
	cfg := DefaultRevcorConfig()
	cfg.Trials = 20

	a, err := NewRevcorGenerator(cfg).Generate()
	require.NoError(t, err)
	b, err := NewRevcorGenerator(cfg).Generate()
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, cfg.Subjects*cfg.Trials*2*len(cfg.Weights), a.Len())

	cfg.Seed++
	c, err := NewRevcorGenerator(cfg).Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestRevcorGeneratorRejectsEmptyDesign(t *testing.T) {
	cfg := DefaultRevcorConfig()
	cfg.Weights = nil
	_, err := NewRevcorGenerator(cfg).Generate()
	assert.Error(t, err)

	cfg = DefaultRevcorConfig()
	cfg.Trials = 0
	_, err = NewRevcorGenerator(cfg).Generate()
	assert.Error(t, err)
}

func TestRecoveredKernelTracksObserverTemplate(t *testing.T) {
	cfg := DefaultRevcorConfig()
	cfg.Trials = 500
	tbl, err := NewRevcorGenerator(cfg).Generate()
	require.NoError(t, err)

	out, err := kernels.ComputeKernelDiff(tbl, kernel.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, cfg.Subjects*len(cfg.Weights), out.Len())

	for _, g := range out.Groups() {
		var k []float64
		for _, r := range out.Rows {
			if r.Trial.ID() == g.ID() {
				k = append(k, r.KernelValue)
			}
		}
		require.Len(t, k, len(cfg.Weights))
		assert.Greater(t, stat.Correlation(k, cfg.Weights, nil), 0.9, "group %s", g)
		assert.Greater(t, k[5], k[0])
	}
}
