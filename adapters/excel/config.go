package excel

import (
	"palin/adapters/datareadiness/coercer"
	"palin/domain/observation"
)

// ReaderConfig holds configuration for reading experiment result files
type ReaderConfig struct {
	CoercionConfig coercer.CoercionConfig `json:"coercion_config" yaml:"coercion_config"`
	// ColumnTypes pins the type of named columns; other columns are inferred
	ColumnTypes map[string]observation.ValueType `json:"column_types" yaml:"column_types"`
	// Sheet is the xlsx sheet to read; empty means the first sheet
	Sheet string `json:"sheet" yaml:"sheet"`
	// MaxConcurrency bounds parallel file reads in ReadAll
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`
}

// DefaultReaderConfig pins the response column to boolean and the subject
// columns to strings, so that 0/1 responses and numeric subject numbers are
// not read as measurements
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		CoercionConfig: coercer.DefaultCoercionConfig(),
		ColumnTypes: map[string]observation.ValueType{
			"response": observation.ValueTypeBoolean,
			"subj":     observation.ValueTypeString,
			"subject":  observation.ValueTypeString,
		},
		MaxConcurrency: 4,
	}
}
