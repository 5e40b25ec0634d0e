package analysis

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"palin/domain/core"
	"palin/domain/kernel"
	"palin/domain/observation"
	"palin/internal"
	"palin/internal/kernels"
)

// RunConfig is everything one analysis invocation needs
type RunConfig struct {
	Kernel        kernel.Config `json:"kernel" yaml:"kernel"`
	Test          TestConfig    `json:"test" yaml:"test"`
	Labels        Labels        `json:"labels" yaml:"labels"`
	ReferenceMean float64       `json:"reference_mean" yaml:"reference_mean"`
	FDR           bool          `json:"fdr" yaml:"fdr"`
}

// DefaultRunConfig combines the kernel, test and label defaults
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Kernel: kernel.DefaultConfig(),
		Test:   DefaultTestConfig(),
		Labels: DefaultLabels(),
	}
}

// Analysis is the immutable outcome of one run
type Analysis struct {
	RunID        core.RunID    `json:"run_id"`
	Fingerprint  core.Hash     `json:"fingerprint"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Config       RunConfig     `json:"config"`
	Observations int           `json:"observations"`
	Kernels      *kernel.Table `json:"kernels"`
	Positives    *kernel.Table `json:"positives"`
	Negatives    *kernel.Table `json:"negatives"`

	OneSample map[string]*ResultSet `json:"one_sample"`
	TwoSample *ResultSet            `json:"two_sample"`
	Paired    *ResultSet            `json:"paired"`
}

// Analyzer runs the kernel engine and all three test designs
type Analyzer struct {
	logger *internal.Logger
	now    func() time.Time
}

// NewAnalyzer creates an analyzer; a nil logger uses internal.DefaultLogger
func NewAnalyzer(logger *internal.Logger) *Analyzer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Analyzer{logger: logger.With("analysis"), now: time.Now}
}

// Run computes difference and split kernels, then the one-sample,
// two-sample and paired designs concurrently. Schema errors abort the run;
// degenerate per-dimension results are logged and kept.
func (a *Analyzer) Run(ctx context.Context, t *observation.Table, cfg RunConfig) (*Analysis, error) {
	if t == nil {
		return nil, core.ErrEmptyInput
	}
	out := &Analysis{
		RunID:        core.NewRunID(),
		Fingerprint:  t.Fingerprint(),
		StartedAt:    a.now(),
		Config:       cfg,
		Observations: t.Len(),
	}
	a.logger.Info("run %s: %d observations (dataset %s)", out.RunID, out.Observations, out.Fingerprint.Short())

	diff, err := kernels.ComputeKernelDiff(t, cfg.Kernel)
	if err != nil {
		return nil, err
	}
	pos, neg, err := kernels.ComputeKernel(t, cfg.Kernel)
	if err != nil {
		return nil, err
	}
	out.Kernels, out.Positives, out.Negatives = diff, pos, neg
	a.logger.Debug("run %s: %d kernel rows over %d groups", out.RunID, diff.Len(), len(diff.Groups()))
	for _, k := range []*kernel.Table{diff, pos, neg} {
		for _, g := range k.ZeroEnergyGroups() {
			a.logger.Warn("run %s: %s kernel of %s has zero energy, norm values are NaN", out.RunID, k.Form, g)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := OneSampleTest(pos, neg, cfg.Test, cfg.Labels, cfg.ReferenceMean)
		if err != nil {
			return err
		}
		out.OneSample = res
		return ctx.Err()
	})
	g.Go(func() error {
		res, err := TwoSampleTest(pos, neg, cfg.Test)
		if err != nil {
			return err
		}
		out.TwoSample = res
		return ctx.Err()
	})
	g.Go(func() error {
		res, err := PairedSampleTest(pos, neg, cfg.Test)
		if err != nil {
			return err
		}
		out.Paired = res
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if cfg.FDR {
		for _, set := range out.OneSample {
			AdjustFDR(set)
		}
		AdjustFDR(out.TwoSample)
		AdjustFDR(out.Paired)
	}

	for _, label := range []string{cfg.Labels.Positives, cfg.Labels.Negatives} {
		a.logDegenerate(out.RunID, "one-sample "+label, out.OneSample[label])
	}
	a.logDegenerate(out.RunID, "two-sample", out.TwoSample)
	a.logDegenerate(out.RunID, "paired", out.Paired)
	out.FinishedAt = a.now()
	a.logger.Info("run %s: finished in %s", out.RunID, out.FinishedAt.Sub(out.StartedAt))
	return out, nil
}

func (a *Analyzer) logDegenerate(id core.RunID, design string, set *ResultSet) {
	for _, d := range set.Degenerate() {
		r, _ := set.Get(d)
		a.logger.Debug("run %s: %s test at %s is degenerate: %v", id, design, d.String(), r.Err())
	}
}
