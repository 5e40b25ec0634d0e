package core

import (
	"errors"
	"fmt"
)

// Schema errors abort the whole call
var (
	ErrMissingColumn = errors.New("missing column")
	ErrColumnType    = errors.New("column has wrong type")
	ErrInvalidConfig = errors.New("invalid analysis configuration")
	ErrEmptyInput    = errors.New("empty input")
)

// Degenerate statistics. These are attached to individual results and
// never returned from a call.
var (
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrZeroVariance     = errors.New("zero variance")
	ErrZeroEnergy       = errors.New("zero normalization energy")
	ErrLengthMismatch   = errors.New("paired samples differ in length")
	ErrNonFinite        = errors.New("sample holds a non-finite value")
)

// Error constructors with context
func NewMissingColumnError(column string) error {
	return fmt.Errorf("%w: %q", ErrMissingColumn, column)
}

func NewColumnTypeError(column, want, got string) error {
	return fmt.Errorf("%w: %q is %s, want %s", ErrColumnType, column, got, want)
}

func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, reason)
}

// IsSchemaError reports whether err aborts a computation
func IsSchemaError(err error) bool {
	return errors.Is(err, ErrMissingColumn) ||
		errors.Is(err, ErrColumnType) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrEmptyInput)
}

// IsDegenerateError reports whether err marks a statistically undefined result
func IsDegenerateError(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrZeroVariance) ||
		errors.Is(err, ErrZeroEnergy) ||
		errors.Is(err, ErrLengthMismatch) ||
		errors.Is(err, ErrNonFinite)
}
