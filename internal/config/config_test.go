package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palin/adapters/excel"
	"palin/domain/kernel"
	"palin/domain/observation"
	"palin/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PALIN_TRIAL_FIELDS", "PALIN_DIMENSION_FIELD", "PALIN_VALUE_FIELD", "PALIN_NORMALIZE", "PALIN_DB_DSN", "PALIN_TEST_FIELD"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, kernel.DefaultConfig(), cfg.Analysis.Kernel)
	assert.Equal(t, "file:palin.db", cfg.Database.DSN)
	assert.Equal(t, "positives", cfg.Analysis.Labels.Positives)
	assert.Equal(t, observation.ValueTypeBoolean, cfg.Reader.ColumnTypes["response"])
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PALIN_TRIAL_FIELDS", "subj, condition,,session")
	t.Setenv("PALIN_DIMENSION_FIELD", "segment")
	t.Setenv("PALIN_VALUE_FIELD", "tilt")
	t.Setenv("PALIN_NORMALIZE", "false")
	t.Setenv("PALIN_REFERENCE_MEAN", "1.5")
	t.Setenv("PALIN_TEST_FIELD", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"subj", "condition", "session"}, cfg.Analysis.Kernel.TrialFields)
	assert.Equal(t, "tilt", cfg.Analysis.Kernel.ValueField)
	assert.False(t, cfg.Analysis.Kernel.Normalize)
	assert.Equal(t, 1.5, cfg.Analysis.ReferenceMean)
}

func TestLoadRejectsNormFieldWithoutNormalize(t *testing.T) {
	t.Setenv("PALIN_NORMALIZE", "false")
	t.Setenv("PALIN_TEST_FIELD", kernel.FieldNormValue)

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestLoadAnalysisFile(t *testing.T) {
	t.Setenv("PALIN_NORMALIZE", "")
	t.Setenv("PALIN_TEST_FIELD", "")
	cfg, err := Load()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kernel:
  trial_fields: [subject, condition]
  value_field: stretch
test:
  value_field: norm_value
labels:
  positives: pull
  negatives: poule
reference_mean: 0.5
fdr: true
rename:
  subj: subject
column_types:
  block: string
`), 0o644))

	require.NoError(t, LoadAnalysisFile(cfg, path))
	k := cfg.Analysis.Kernel
	assert.Equal(t, []string{"subject", "condition"}, k.TrialFields)
	assert.Equal(t, "segment", k.DimensionField, "unset fields keep their value")
	assert.Equal(t, "stretch", k.ValueField)
	assert.True(t, k.Normalize)
	assert.Equal(t, kernel.FieldNormValue, cfg.Analysis.Test.ValueField)
	assert.Equal(t, "poule", cfg.Analysis.Labels.Negatives)
	assert.Equal(t, 0.5, cfg.Analysis.ReferenceMean)
	assert.True(t, cfg.Analysis.FDR)
	assert.Equal(t, "subject", cfg.Rename["subj"])
	assert.Equal(t, observation.ValueTypeString, cfg.Reader.ColumnTypes["block"])
}

func TestLoadAnalysisFileErrors(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("kernels:\n  value_field: pitch\n"), 0o644))
	err = LoadAnalysisFile(cfg, unknown)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	labels := filepath.Join(dir, "labels.yaml")
	require.NoError(t, os.WriteFile(labels, []byte("labels:\n  positives: x\n  negatives: x\n"), 0o644))
	err = LoadAnalysisFile(cfg, labels)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	assert.Error(t, LoadAnalysisFile(cfg, filepath.Join(dir, "absent.yaml")))
}

func TestResponseFieldIsPinnedBoolean(t *testing.T) {
	t.Setenv("PALIN_RESPONSE_FIELD", "chosen")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, observation.ValueTypeBoolean, cfg.Reader.ColumnTypes["chosen"])

	dir := t.TempDir()
	path := filepath.Join(dir, "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kernel:
  response_field: picked
rename:
  answer: picked
column_types:
  chosen: numeric
`), 0o644))
	require.NoError(t, LoadAnalysisFile(cfg, path))
	assert.Equal(t, observation.ValueTypeBoolean, cfg.Reader.ColumnTypes["picked"])
	assert.Equal(t, observation.ValueTypeBoolean, cfg.Reader.ColumnTypes["answer"])
	assert.Equal(t, observation.ValueTypeNumeric, cfg.Reader.ColumnTypes["chosen"], "explicit types win")

	data := filepath.Join(dir, "session.csv")
	require.NoError(t, os.WriteFile(data, []byte(
		"experimenter,type,subject,session,segment,answer,pitch\n"+
			"jj,pitch,1,1,1,1,210\n"+
			"jj,pitch,1,1,1,0,190\n"), 0o644))
	tbl, err := excel.NewDataReader(cfg.Reader, nil).Read(data)
	require.NoError(t, err)
	tbl = tbl.Rename(cfg.Rename)

	kind, err := tbl.ColumnType("picked")
	require.NoError(t, err)
	assert.Equal(t, observation.ValueTypeBoolean, kind)

	k := kernel.DefaultConfig()
	k.ResponseField = "picked"
	assert.NoError(t, k.Validate(tbl))
}
