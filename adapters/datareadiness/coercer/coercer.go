package coercer

import (
	"math"
	"strconv"
	"strings"

	"palin/domain/observation"
)

// TypeCoercer turns raw result-file cells into typed observation values
type TypeCoercer struct {
	config CoercionConfig
}

// CoercionConfig defines the thresholds used when a column's type is inferred
type CoercionConfig struct {
	NumericThreshold float64 `json:"numeric_threshold" yaml:"numeric_threshold"` // share of cells that must parse as numbers
	BooleanThreshold float64 `json:"boolean_threshold" yaml:"boolean_threshold"` // share of cells that must parse as booleans
	TrimStrings      bool    `json:"trim_strings" yaml:"trim_strings"`
}

// DefaultCoercionConfig returns sensible defaults
func DefaultCoercionConfig() CoercionConfig {
	return CoercionConfig{
		NumericThreshold: 1.0,
		BooleanThreshold: 1.0,
		TrimStrings:      true,
	}
}

// NewTypeCoercer creates a coercer with the given config
func NewTypeCoercer(config CoercionConfig) *TypeCoercer {
	return &TypeCoercer{config: config}
}

// CoerceValue converts one cell, trying numeric first, then boolean, then
// falling back to a string. Blank cells are missing.
func (c *TypeCoercer) CoerceValue(raw string) observation.Value {
	if v, ok := c.tryParseNumeric(raw); ok {
		return v
	}
	if v, ok := c.tryParseBoolean(raw); ok {
		return v
	}
	return c.coerceToString(raw)
}

// CoerceAs converts one cell to a fixed type. A cell that does not parse as
// that type is missing.
func (c *TypeCoercer) CoerceAs(raw string, kind observation.ValueType) observation.Value {
	switch kind {
	case observation.ValueTypeNumeric:
		if v, ok := c.tryParseNumeric(raw); ok {
			return v
		}
		return observation.NewMissingValue()
	case observation.ValueTypeBoolean:
		if v, ok := c.tryParseBoolean(raw); ok {
			return v
		}
		return observation.NewMissingValue()
	case observation.ValueTypeString:
		return c.coerceToString(raw)
	}
	return c.CoerceValue(raw)
}

// AnalyzeTypeDistribution counts how many cells of a column parse as each
// type and recommends one. Blank cells are not counted.
func (c *TypeCoercer) AnalyzeTypeDistribution(values []string) TypeAnalysis {
	analysis := TypeAnalysis{TotalCount: len(values)}

	for _, raw := range values {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		analysis.ValidCount++
		if _, ok := c.tryParseNumeric(raw); ok {
			analysis.NumericCount++
		}
		if _, ok := c.tryParseBoolean(raw); ok {
			analysis.BooleanCount++
		}
	}

	if analysis.ValidCount > 0 {
		analysis.NumericRatio = float64(analysis.NumericCount) / float64(analysis.ValidCount)
		analysis.BooleanRatio = float64(analysis.BooleanCount) / float64(analysis.ValidCount)
	}
	analysis.RecommendedType = c.determineRecommendedType(analysis)
	return analysis
}

// coerceToString converts to a string value, trimming if configured
func (c *TypeCoercer) coerceToString(raw string) observation.Value {
	if c.config.TrimStrings {
		raw = strings.TrimSpace(raw)
	}
	return observation.NewStringValue(raw)
}

// tryParseNumeric parses plain and scientific notation. A lone comma is read
// as a decimal separator, which is how French-locale sessions write pitch
// values.
func (c *TypeCoercer) tryParseNumeric(raw string) (observation.Value, bool) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return observation.Value{}, false
	}
	if strings.Count(clean, ",") == 1 && !strings.Contains(clean, ".") {
		clean = strings.Replace(clean, ",", ".", 1)
	}

	val, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) {
		return observation.Value{}, false
	}
	return observation.NewNumericValue(val), true
}

// tryParseBoolean accepts the spellings result files use for responses
func (c *TypeCoercer) tryParseBoolean(raw string) (observation.Value, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "1.0", "yes", "y", "on":
		return observation.NewBooleanValue(true), true
	case "false", "0", "0.0", "no", "n", "off":
		return observation.NewBooleanValue(false), true
	}
	return observation.Value{}, false
}

// determineRecommendedType chooses the best type based on analysis. A
// column of only 0/1 parses both ways and is reported numeric; pin it with
// CoerceAs when it holds responses.
func (c *TypeCoercer) determineRecommendedType(analysis TypeAnalysis) observation.ValueType {
	if analysis.ValidCount == 0 {
		return observation.ValueTypeMissing
	}
	if analysis.NumericRatio >= c.config.NumericThreshold {
		return observation.ValueTypeNumeric
	}
	if analysis.BooleanRatio >= c.config.BooleanThreshold {
		return observation.ValueTypeBoolean
	}
	return observation.ValueTypeString
}

// TypeAnalysis contains the results of type distribution analysis
type TypeAnalysis struct {
	TotalCount      int                   `json:"total_count"`
	ValidCount      int                   `json:"valid_count"`
	NumericCount    int                   `json:"numeric_count"`
	BooleanCount    int                   `json:"boolean_count"`
	NumericRatio    float64               `json:"numeric_ratio"`
	BooleanRatio    float64               `json:"boolean_ratio"`
	RecommendedType observation.ValueType `json:"recommended_type"`
}
