package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"palin/adapters/excel"
	"palin/domain/kernel"
	"palin/domain/observation"
	"palin/internal/analysis"
	"palin/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	LogLevel string
	Database DatabaseConfig
	Reader   excel.ReaderConfig
	Analysis analysis.RunConfig
	// Rename maps result-file column names to the names the analysis uses
	Rename map[string]string
}

// DatabaseConfig holds the results store connection
type DatabaseConfig struct {
	// DSN is a sqlite file DSN ("file:palin.db") or a postgres URL
	DSN string
}

// AnalysisFile is the YAML document accepted by LoadAnalysisFile. Every
// field is optional and overrides the environment.
type AnalysisFile struct {
	Kernel        *KernelFile                      `yaml:"kernel"`
	Test          *analysis.TestConfig             `yaml:"test"`
	Labels        *analysis.Labels                 `yaml:"labels"`
	ReferenceMean *float64                         `yaml:"reference_mean"`
	FDR           *bool                            `yaml:"fdr"`
	Rename        map[string]string                `yaml:"rename"`
	ColumnTypes   map[string]observation.ValueType `yaml:"column_types"`
	Sheet         string                           `yaml:"sheet"`
}

// KernelFile is the kernel section of an analysis file. Unset fields keep
// their current value.
type KernelFile struct {
	TrialFields    []string `yaml:"trial_fields"`
	DimensionField string   `yaml:"dimension_field"`
	ResponseField  string   `yaml:"response_field"`
	ValueField     string   `yaml:"value_field"`
	Normalize      *bool    `yaml:"normalize"`
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
		Database: DatabaseConfig{DSN: getEnvOrDefault("PALIN_DB_DSN", "file:palin.db")},
		Reader:   excel.DefaultReaderConfig(),
		Analysis: analysis.DefaultRunConfig(),
		Rename:   map[string]string{},
	}

	k := &cfg.Analysis.Kernel
	if fields := getEnvListOrDefault("PALIN_TRIAL_FIELDS", nil); fields != nil {
		k.TrialFields = fields
	}
	k.DimensionField = getEnvOrDefault("PALIN_DIMENSION_FIELD", k.DimensionField)
	k.ResponseField = getEnvOrDefault("PALIN_RESPONSE_FIELD", k.ResponseField)
	k.ValueField = getEnvOrDefault("PALIN_VALUE_FIELD", k.ValueField)
	k.Normalize = getEnvBoolOrDefault("PALIN_NORMALIZE", k.Normalize)
	cfg.Analysis.Test.ValueField = getEnvOrDefault("PALIN_TEST_FIELD", cfg.Analysis.Test.ValueField)
	cfg.Analysis.ReferenceMean = getEnvFloatOrDefault("PALIN_REFERENCE_MEAN", 0)
	cfg.Analysis.FDR = getEnvBoolOrDefault("PALIN_FDR", false)
	cfg.Reader.MaxConcurrency = getEnvIntOrDefault("PALIN_READ_CONCURRENCY", cfg.Reader.MaxConcurrency)
	pinResponseField(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// LoadAnalysisFile applies a YAML analysis file on top of cfg
func LoadAnalysisFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read analysis file %s", path)
	}

	var file AnalysisFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("analysis file %s: %w", path, err))
	}
	file.apply(cfg)
	pinResponseField(cfg)

	if err := validateConfig(cfg); err != nil {
		return errors.Wrapf(err, "analysis file %s", path)
	}
	return nil
}

func (f *AnalysisFile) apply(cfg *Config) {
	if f.Kernel != nil {
		k := &cfg.Analysis.Kernel
		if len(f.Kernel.TrialFields) > 0 {
			k.TrialFields = f.Kernel.TrialFields
		}
		if f.Kernel.DimensionField != "" {
			k.DimensionField = f.Kernel.DimensionField
		}
		if f.Kernel.ResponseField != "" {
			k.ResponseField = f.Kernel.ResponseField
		}
		if f.Kernel.ValueField != "" {
			k.ValueField = f.Kernel.ValueField
		}
		if f.Kernel.Normalize != nil {
			k.Normalize = *f.Kernel.Normalize
		}
	}
	if f.Test != nil {
		cfg.Analysis.Test = *f.Test
	}
	if f.Labels != nil {
		cfg.Analysis.Labels = *f.Labels
	}
	if f.ReferenceMean != nil {
		cfg.Analysis.ReferenceMean = *f.ReferenceMean
	}
	if f.FDR != nil {
		cfg.Analysis.FDR = *f.FDR
	}
	if cfg.Rename == nil {
		cfg.Rename = map[string]string{}
	}
	for from, to := range f.Rename {
		cfg.Rename[from] = to
	}
	if cfg.Reader.ColumnTypes == nil {
		cfg.Reader.ColumnTypes = map[string]observation.ValueType{}
	}
	for col, kind := range f.ColumnTypes {
		cfg.Reader.ColumnTypes[col] = kind
	}
	if f.Sheet != "" {
		cfg.Reader.Sheet = f.Sheet
	}
}

// pinResponseField reads the response column as boolean, both under its
// configured name and under any file header renamed to it, so 0/1 answers
// are not inferred as numbers. Explicit column types are kept.
func pinResponseField(cfg *Config) {
	if cfg.Reader.ColumnTypes == nil {
		cfg.Reader.ColumnTypes = map[string]observation.ValueType{}
	}
	response := cfg.Analysis.Kernel.ResponseField
	pin := func(column string) {
		if _, ok := cfg.Reader.ColumnTypes[column]; !ok && column != "" {
			cfg.Reader.ColumnTypes[column] = observation.ValueTypeBoolean
		}
	}
	pin(response)
	for from, to := range cfg.Rename {
		if to == response {
			pin(from)
		}
	}
}

func validateConfig(cfg *Config) error {
	k := cfg.Analysis.Kernel
	if len(k.TrialFields) == 0 {
		return errors.ConfigInvalid("at least one trial field is required")
	}
	if k.DimensionField == "" || k.ResponseField == "" || k.ValueField == "" {
		return errors.ConfigInvalid("dimension, response and value fields are required")
	}
	switch cfg.Analysis.Test.ValueField {
	case "", kernel.FieldKernelValue:
	case kernel.FieldNormValue:
		if !k.Normalize {
			return errors.ConfigInvalid("testing norm_value requires normalize")
		}
	default:
		return errors.ConfigInvalid(fmt.Sprintf("test value field must be %s or %s, got %q",
			kernel.FieldKernelValue, kernel.FieldNormValue, cfg.Analysis.Test.ValueField))
	}
	l := cfg.Analysis.Labels
	if l.Positives == "" || l.Negatives == "" || l.Positives == l.Negatives {
		return errors.ConfigInvalid("labels must be two distinct non-empty names")
	}
	for col, kind := range cfg.Reader.ColumnTypes {
		switch kind {
		case observation.ValueTypeString, observation.ValueTypeNumeric, observation.ValueTypeBoolean:
		default:
			return errors.ConfigInvalid(fmt.Sprintf("column %s: unknown type %q", col, kind))
		}
	}
	if cfg.Database.DSN == "" {
		return errors.ConfigInvalid("database DSN is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvListOrDefault splits a comma-separated variable, dropping blanks
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
