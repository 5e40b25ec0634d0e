// Package ttest implements Student t-tests for one sample, two independent
// samples with unequal variances (Welch) and paired samples.
//
// Degenerate inputs never fail: they produce a Result with NaN or infinite
// statistics and a Reason. Fewer than two values give NaN; a zero standard
// error gives NaN for a zero difference and a signed infinity with p = 0
// otherwise.
package ttest

import (
	"encoding/json"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"palin/domain/core"
)

// Reason explains why a result is not an ordinary finite test
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonInsufficientData Reason = "insufficient_data"
	ReasonZeroVariance     Reason = "zero_variance"
	ReasonLengthMismatch   Reason = "length_mismatch"
	ReasonZeroEnergy       Reason = "zero_energy"
	ReasonNonFinite        Reason = "non_finite"
)

// Result is one test statistic with its two-sided p-value
type Result struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	DF        float64 `json:"df"`
	// Difference is mean(x) - mu, mean(x) - mean(y) or the mean paired difference
	Difference float64 `json:"difference"`
	// QValue is the FDR-adjusted p-value, NaN until adjusted
	QValue float64 `json:"q_value"`
	N1     int     `json:"n1"`
	N2     int     `json:"n2,omitempty"`
	Reason Reason  `json:"reason,omitempty"`
}

// Err maps Reason to the matching core sentinel, nil for an ordinary result
func (r Result) Err() error {
	switch r.Reason {
	case ReasonInsufficientData:
		return core.ErrInsufficientData
	case ReasonZeroVariance:
		return core.ErrZeroVariance
	case ReasonLengthMismatch:
		return core.ErrLengthMismatch
	case ReasonZeroEnergy:
		return core.ErrZeroEnergy
	case ReasonNonFinite:
		return core.ErrNonFinite
	}
	return nil
}

// Degenerate reports whether the statistic is undefined or infinite
func (r Result) Degenerate() bool {
	return core.IsDegenerateError(r.Err())
}

// Significant reports p < alpha; degenerate NaN results are never significant
func (r Result) Significant(alpha float64) bool {
	return !math.IsNaN(r.PValue) && r.PValue < alpha
}

type resultJSON struct {
	Statistic  *float64 `json:"statistic"`
	PValue     *float64 `json:"p_value"`
	DF         *float64 `json:"df"`
	Difference *float64 `json:"difference"`
	QValue     *float64 `json:"q_value,omitempty"`
	N1         int      `json:"n1"`
	N2         int      `json:"n2,omitempty"`
	Reason     Reason   `json:"reason,omitempty"`
	Infinite   int      `json:"infinite,omitempty"`
}

// MarshalJSON writes NaN as null. An infinite statistic is written as null
// with "infinite" set to its sign.
func (r Result) MarshalJSON() ([]byte, error) {
	aux := resultJSON{
		Statistic:  core.Finite(r.Statistic),
		PValue:     core.Finite(r.PValue),
		DF:         core.Finite(r.DF),
		Difference: core.Finite(r.Difference),
		QValue:     core.Finite(r.QValue),
		N1:         r.N1,
		N2:         r.N2,
		Reason:     r.Reason,
	}
	if math.IsInf(r.Statistic, 1) {
		aux.Infinite = 1
	} else if math.IsInf(r.Statistic, -1) {
		aux.Infinite = -1
	}
	return json.Marshal(aux)
}

// UnmarshalJSON restores NaN and infinite statistics
func (r *Result) UnmarshalJSON(data []byte) error {
	var aux resultJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Result{
		Statistic:  core.FromFinite(aux.Statistic),
		PValue:     core.FromFinite(aux.PValue),
		DF:         core.FromFinite(aux.DF),
		Difference: core.FromFinite(aux.Difference),
		QValue:     core.FromFinite(aux.QValue),
		N1:         aux.N1,
		N2:         aux.N2,
		Reason:     aux.Reason,
	}
	if aux.Infinite != 0 {
		r.Statistic = math.Inf(aux.Infinite)
	}
	return nil
}

func undefined(reason Reason, n1, n2 int) Result {
	return Result{
		Statistic:  math.NaN(),
		PValue:     math.NaN(),
		DF:         math.NaN(),
		Difference: math.NaN(),
		QValue:     math.NaN(),
		N1:         n1,
		N2:         n2,
		Reason:     reason,
	}
}

// OneSample tests whether the mean of x differs from mu
func OneSample(x []float64, mu float64) Result {
	n := len(x)
	if n < 2 {
		return undefined(ReasonInsufficientData, n, 0)
	}
	if !finite(x) {
		return undefined(ReasonNonFinite, n, 0)
	}
	mean, _ := stats.Mean(x)
	variance, _ := stats.SampleVariance(x)

	df := float64(n - 1)
	se := math.Sqrt(variance / float64(n))
	return studentT(mean-mu, se, df, n, 0)
}

// Welch tests whether two independent samples have different means without
// assuming equal variances
func Welch(x, y []float64) Result {
	n1, n2 := len(x), len(y)
	if n1 < 2 || n2 < 2 {
		return undefined(ReasonInsufficientData, n1, n2)
	}
	if !finite(x) || !finite(y) {
		return undefined(ReasonNonFinite, n1, n2)
	}
	mean1, _ := stats.Mean(x)
	mean2, _ := stats.Mean(y)
	var1, _ := stats.SampleVariance(x)
	var2, _ := stats.SampleVariance(y)

	v1 := var1 / float64(n1)
	v2 := var2 / float64(n2)
	se := math.Sqrt(v1 + v2)

	// Welch-Satterthwaite
	df := (v1 + v2) * (v1 + v2) / (v1*v1/float64(n1-1) + v2*v2/float64(n2-1))
	return studentT(mean1-mean2, se, df, n1, n2)
}

// Paired tests whether the mean of x[i]-y[i] differs from zero. Samples of
// different length are a mismatch, never truncated.
func Paired(x, y []float64) Result {
	if len(x) != len(y) {
		return Mismatch(len(x), len(y))
	}
	diffs := make([]float64, len(x))
	for i := range x {
		diffs[i] = x[i] - y[i]
	}
	r := OneSample(diffs, 0)
	r.N2 = len(y)
	return r
}

// Mismatch is the result of a paired test whose samples cannot be aligned
func Mismatch(n1, n2 int) Result {
	return undefined(ReasonLengthMismatch, n1, n2)
}

// ZeroEnergy is the result of a test over normalized kernel values when a
// trial group has zero energy
func ZeroEnergy(n1, n2 int) Result {
	return undefined(ReasonZeroEnergy, n1, n2)
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// studentT turns a mean difference and its standard error into a two-sided
// t-test. A zero standard error yields NaN when the difference is zero and
// an infinite statistic with p = 0 otherwise.
func studentT(diff, se, df float64, n1, n2 int) Result {
	r := Result{Difference: diff, DF: df, QValue: math.NaN(), N1: n1, N2: n2}
	if se == 0 {
		r.Reason = ReasonZeroVariance
		if diff == 0 {
			r.Statistic, r.PValue = math.NaN(), math.NaN()
			return r
		}
		r.Statistic = math.Copysign(math.Inf(1), diff)
		r.PValue = 0
		return r
	}

	r.Statistic = diff / se
	r.PValue = twoSidedP(r.Statistic, df)
	return r
}

func twoSidedP(t, df float64) float64 {
	if math.IsNaN(t) || math.IsNaN(df) || df <= 0 {
		return math.NaN()
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(t))
	if p > 1 {
		return 1
	}
	return p
}
