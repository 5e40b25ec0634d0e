package testkit

import (
	"fmt"
	"math/rand"

	"palin/domain/observation"
)

// RevcorConfig configures a simulated two-interval forced-choice
// reverse-correlation experiment
type RevcorConfig struct {
	Experimenter string    `json:"experimenter" yaml:"experimenter"`
	Type         string    `json:"type" yaml:"type"`
	Subjects     int       `json:"subjects" yaml:"subjects"`
	Sessions     int       `json:"sessions" yaml:"sessions"`
	Trials       int       `json:"trials" yaml:"trials"` // per session
	BasePitch    float64   `json:"base_pitch" yaml:"base_pitch"`
	PitchSD      float64   `json:"pitch_sd" yaml:"pitch_sd"`
	Weights      []float64 `json:"weights" yaml:"weights"` // observer template, one per segment
	InternalSD   float64   `json:"internal_sd" yaml:"internal_sd"`
	Seed         int64     `json:"seed" yaml:"seed"`
}

// DefaultRevcorConfig simulates observers who listen for a rising pitch
// at the end of a six-segment word
func DefaultRevcorConfig() RevcorConfig {
	return RevcorConfig{
		Experimenter: "sim",
		Type:         "pitch",
		Subjects:     4,
		Sessions:     1,
		Trials:       200,
		BasePitch:    200,
		PitchSD:      20,
		Weights:      []float64{0, 0, 0, 0.2, 0.6, 1},
		InternalSD:   10,
		Seed:         42,
	}
}

// RevcorColumns is the schema of generated tables
var RevcorColumns = []string{"experimenter", "type", "subject", "session", "trial", "stim", "segment", "response", "pitch"}

// RevcorGenerator produces synthetic observation tables
type RevcorGenerator struct {
	config RevcorConfig
	rng    *rand.Rand
}

// NewRevcorGenerator creates a generator; equal seeds give equal tables
func NewRevcorGenerator(config RevcorConfig) *RevcorGenerator {
	return &RevcorGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate runs every subject through every session. On each trial two
// stimuli get independent Gaussian pitch noise per segment; the observer
// weights the deviations with its template, adds internal noise and picks
// the stimulus with the larger decision variable. The picked stimulus has
// response true on all its segments, the other false.
func (g *RevcorGenerator) Generate() (*observation.Table, error) {
	cfg := g.config
	segments := len(cfg.Weights)
	if segments == 0 {
		return nil, fmt.Errorf("observer template has no segments")
	}
	if cfg.Subjects <= 0 || cfg.Sessions <= 0 || cfg.Trials <= 0 {
		return nil, fmt.Errorf("subjects, sessions and trials must be positive")
	}

	table := observation.NewTable(RevcorColumns...)
	table.Rows = make([][]observation.Value, 0, cfg.Subjects*cfg.Sessions*cfg.Trials*2*segments)

	for subj := 1; subj <= cfg.Subjects; subj++ {
		subject := observation.NewStringValue(fmt.Sprintf("s%02d", subj))
		for sess := 1; sess <= cfg.Sessions; sess++ {
			for trial := 1; trial <= cfg.Trials; trial++ {
				var pitch [2][]float64
				var dv [2]float64
				for stim := 0; stim < 2; stim++ {
					pitch[stim] = make([]float64, segments)
					for s := 0; s < segments; s++ {
						dev := g.rng.NormFloat64() * cfg.PitchSD
						pitch[stim][s] = cfg.BasePitch + dev
						dv[stim] += cfg.Weights[s] * dev
					}
					dv[stim] += g.rng.NormFloat64() * cfg.InternalSD
				}
				chosen := 0
				if dv[1] > dv[0] {
					chosen = 1
				}

				for stim := 0; stim < 2; stim++ {
					for s := 0; s < segments; s++ {
						table.Rows = append(table.Rows, []observation.Value{
							observation.NewStringValue(cfg.Experimenter),
							observation.NewStringValue(cfg.Type),
							subject,
							observation.NewNumericValue(float64(sess)),
							observation.NewNumericValue(float64(trial)),
							observation.NewNumericValue(float64(stim + 1)),
							observation.NewNumericValue(float64(s + 1)),
							observation.NewBooleanValue(stim == chosen),
							observation.NewNumericValue(pitch[stim][s]),
						})
					}
				}
			}
		}
	}
	return table, nil
}
