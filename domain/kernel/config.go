package kernel

import (
	"palin/domain/core"
	"palin/domain/observation"
)

// Config names the observation columns that drive kernel estimation
type Config struct {
	TrialFields    []string `json:"trial_fields" yaml:"trial_fields"`
	DimensionField string   `json:"dimension_field" yaml:"dimension_field"`
	ResponseField  string   `json:"response_field" yaml:"response_field"`
	ValueField     string   `json:"value_field" yaml:"value_field"`
	Normalize      bool     `json:"normalize" yaml:"normalize"`
}

// DefaultConfig returns the toolbox defaults: one kernel per
// experimenter/type/subject/session, computed over segments of mean pitch.
func DefaultConfig() Config {
	return Config{
		TrialFields:    []string{"experimenter", "type", "subject", "session"},
		DimensionField: "segment",
		ResponseField:  "response",
		ValueField:     "pitch",
		Normalize:      true,
	}
}

// Validate checks the configuration on its own and against the table schema.
// The response column must be boolean and the value column numeric; columns
// that hold only missing cells pass the type check.
func (c Config) Validate(t *observation.Table) error {
	if len(c.TrialFields) == 0 {
		return core.NewConfigError("trial_fields", "at least one field is required")
	}
	named := map[string]string{}
	check := func(role, name string) error {
		if name == "" {
			return core.NewConfigError(role, "field name is empty")
		}
		if prev, dup := named[name]; dup {
			return core.NewConfigError(role, "field "+name+" already used as "+prev)
		}
		named[name] = role
		return nil
	}
	for _, f := range c.TrialFields {
		if err := check("trial_fields", f); err != nil {
			return err
		}
	}
	for _, f := range [][2]string{
		{"dimension_field", c.DimensionField},
		{"response_field", c.ResponseField},
		{"value_field", c.ValueField},
	} {
		if err := check(f[0], f[1]); err != nil {
			return err
		}
	}

	if t == nil {
		return core.ErrEmptyInput
	}
	if err := t.Require(c.Fields()...); err != nil {
		return err
	}
	if err := requireType(t, c.ResponseField, observation.ValueTypeBoolean); err != nil {
		return err
	}
	return requireType(t, c.ValueField, observation.ValueTypeNumeric)
}

// Fields lists every column the configuration reads, trial fields first
func (c Config) Fields() []string {
	out := append([]string(nil), c.TrialFields...)
	return append(out, c.DimensionField, c.ResponseField, c.ValueField)
}

func requireType(t *observation.Table, column string, want observation.ValueType) error {
	got, err := t.ColumnType(column)
	if err != nil {
		return err
	}
	if got != want && got != observation.ValueTypeMissing {
		return core.NewColumnTypeError(column, string(want), string(got))
	}
	return nil
}
