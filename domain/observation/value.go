package observation

import (
	"math"
	"strconv"
	"strings"
)

// ValueType defines the storage type for values
type ValueType string

const (
	ValueTypeString  ValueType = "string"
	ValueTypeNumeric ValueType = "numeric"
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeMissing ValueType = "missing"
)

// Value is one typed cell of an observation table
type Value struct {
	Type       ValueType `json:"type"`
	StringVal  string    `json:"string_val,omitempty"`
	NumericVal float64   `json:"numeric_val,omitempty"`
	BooleanVal bool      `json:"boolean_val,omitempty"`
}

// NewStringValue creates a string value. The empty string is missing.
func NewStringValue(s string) Value {
	if s == "" {
		return NewMissingValue()
	}
	return Value{Type: ValueTypeString, StringVal: s}
}

// NewNumericValue creates a numeric value. NaN is missing and -0 is 0.
func NewNumericValue(n float64) Value {
	if math.IsNaN(n) {
		return NewMissingValue()
	}
	if n == 0 {
		n = 0
	}
	return Value{Type: ValueTypeNumeric, NumericVal: n}
}

// NewBooleanValue creates a boolean value
func NewBooleanValue(b bool) Value {
	return Value{Type: ValueTypeBoolean, BooleanVal: b}
}

// NewMissingValue creates a missing value
func NewMissingValue() Value {
	return Value{Type: ValueTypeMissing}
}

// IsMissing reports whether the cell holds no value
func (v Value) IsMissing() bool {
	return v.Type == ValueTypeMissing || v.Type == ""
}

// Float returns the numeric content and whether the cell is numeric
func (v Value) Float() (float64, bool) {
	if v.Type != ValueTypeNumeric {
		return 0, false
	}
	return v.NumericVal, true
}

// Bool returns the boolean content and whether the cell is boolean
func (v Value) Bool() (bool, bool) {
	if v.Type != ValueTypeBoolean {
		return false, false
	}
	return v.BooleanVal, true
}

// String returns the canonical text of the value. Numbers use the shortest
// representation that round-trips, so 3.0 prints as "3".
func (v Value) String() string {
	switch v.Type {
	case ValueTypeString:
		return v.StringVal
	case ValueTypeNumeric:
		return strconv.FormatFloat(v.NumericVal, 'f', -1, 64)
	case ValueTypeBoolean:
		return strconv.FormatBool(v.BooleanVal)
	}
	return ""
}

// Key identifies the value by type and content. Values that are Equal have
// the same key, so a numeric 1 and the string "1" never collide.
func (v Value) Key() string {
	if v.IsMissing() {
		return string(ValueTypeMissing)
	}
	if v.Type == ValueTypeNumeric && v.NumericVal == 0 {
		return string(ValueTypeNumeric) + ":0"
	}
	return string(v.Type) + ":" + v.String()
}

// Equal reports whether two values have the same type and content
func (v Value) Equal(other Value) bool {
	if v.IsMissing() || other.IsMissing() {
		return v.IsMissing() && other.IsMissing()
	}
	return v.Compare(other) == 0
}

func typeRank(t ValueType) int {
	switch t {
	case ValueTypeNumeric:
		return 0
	case ValueTypeBoolean:
		return 1
	case ValueTypeString:
		return 2
	}
	return 3
}

// Compare orders values: numbers numerically, then booleans (false first),
// then strings lexically, then missing cells.
func (v Value) Compare(other Value) int {
	ra, rb := typeRank(v.Type), typeRank(other.Type)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch v.Type {
	case ValueTypeNumeric:
		switch {
		case v.NumericVal < other.NumericVal:
			return -1
		case v.NumericVal > other.NumericVal:
			return 1
		}
		return 0
	case ValueTypeBoolean:
		switch {
		case v.BooleanVal == other.BooleanVal:
			return 0
		case !v.BooleanVal:
			return -1
		}
		return 1
	case ValueTypeString:
		return strings.Compare(v.StringVal, other.StringVal)
	}
	return 0
}
