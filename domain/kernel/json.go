package kernel

import (
	"encoding/json"

	"palin/domain/core"
	"palin/domain/observation"
)

type rowJSON struct {
	Trial        TrialKey          `json:"trial"`
	Dimension    observation.Value `json:"dimension"`
	KernelValue  *float64          `json:"kernel_value"`
	NormValue    *float64          `json:"norm_value,omitempty"`
	Energy       *float64          `json:"energy,omitempty"`
	PositiveMean *float64          `json:"positive_mean,omitempty"`
	NegativeMean *float64          `json:"negative_mean,omitempty"`
	Count        int               `json:"count"`
}

// MarshalJSON writes non-finite numbers as null
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(rowJSON{
		Trial:        r.Trial,
		Dimension:    r.Dimension,
		KernelValue:  core.Finite(r.KernelValue),
		NormValue:    core.Finite(r.NormValue),
		Energy:       core.Finite(r.Energy),
		PositiveMean: core.Finite(r.PositiveMean),
		NegativeMean: core.Finite(r.NegativeMean),
		Count:        r.Count,
	})
}

// UnmarshalJSON maps null numbers back to NaN
func (r *Row) UnmarshalJSON(data []byte) error {
	var aux rowJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Row{
		Trial:        aux.Trial,
		Dimension:    aux.Dimension,
		KernelValue:  core.FromFinite(aux.KernelValue),
		NormValue:    core.FromFinite(aux.NormValue),
		Energy:       core.FromFinite(aux.Energy),
		PositiveMean: core.FromFinite(aux.PositiveMean),
		NegativeMean: core.FromFinite(aux.NegativeMean),
		Count:        aux.Count,
	}
	return nil
}
