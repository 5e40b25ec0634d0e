package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"palin/internal/analysis"
	"palin/internal/errors"
	"palin/internal/kernels"
	"palin/internal/report"
)

// Test designs accepted by the test command.
const (
	DesignOne    = "one"
	DesignTwo    = "two"
	DesignPaired = "paired"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	ValueField string
	Mu         float64
	FDR        bool
}

// TestResult is the JSON payload of the test command.
type TestResult struct {
	Design  string                         `json:"design"`
	Results map[string]*analysis.ResultSet `json:"results"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{}

	cmd := &cobra.Command{
		Use:   "test <one|two|paired> <result-file>...",
		Short: "Test split kernels for significance per dimension",
		Long: `Compute positive and negative kernels and test them at every dimension.

  one     one-sample t-test of each class against --mu
  two     Welch t-test of positives against negatives
  paired  paired t-test, pairing the classes by trial group

Degenerate dimensions (fewer than two values, zero variance, unpaired
groups) are reported with NaN statistics instead of failing the run.

Example: palin test paired results/*.csv --value-field norm_value --fdr`,
		Args:      cobra.MinimumNArgs(2),
		ValidArgs: []string{DesignOne, DesignTwo, DesignPaired},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(rootOpts, opts, cmd, args[0], args[1:])
		},
	}

	cmd.Flags().StringVar(&opts.ValueField, "value-field", "", "kernel column to test (kernel_value|norm_value)")
	cmd.Flags().Float64Var(&opts.Mu, "mu", 0, "reference mean of the one-sample test")
	cmd.Flags().BoolVar(&opts.FDR, "fdr", false, "add Benjamini-Hochberg q-values")

	return cmd
}

func runTest(rootOpts *RootOptions, opts *TestOptions, cmd *cobra.Command, design string, files []string) error {
	switch design {
	case DesignOne, DesignTwo, DesignPaired:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown design %q: must be one, two or paired", design))
	}

	e, err := newEnv(rootOpts, cmd)
	if err != nil {
		return err
	}
	table, err := e.load(cmd.Context(), files)
	if err != nil {
		return err
	}

	run := e.cfg.Analysis
	if opts.ValueField != "" {
		run.Test.ValueField = opts.ValueField
	}
	if cmd.Flags().Changed("mu") {
		run.ReferenceMean = opts.Mu
	}
	fdr := run.FDR || opts.FDR

	pos, neg, err := kernels.ComputeKernel(table, run.Kernel)
	if err != nil {
		return e.out.Fail("kernel computation failed", err)
	}
	e.warnZeroEnergy(pos, neg)

	results := map[string]*analysis.ResultSet{}
	switch design {
	case DesignOne:
		results, err = analysis.OneSampleTest(pos, neg, run.Test, run.Labels, run.ReferenceMean)
	case DesignTwo:
		var set *analysis.ResultSet
		set, err = analysis.TwoSampleTest(pos, neg, run.Test)
		results[design] = set
	case DesignPaired:
		var set *analysis.ResultSet
		set, err = analysis.PairedSampleTest(pos, neg, run.Test)
		results[design] = set
	}
	if err != nil {
		return e.out.Fail("significance test failed", errors.Wrap(err, design+"-sample test"))
	}

	labels := make([]string, 0, len(results))
	for l, set := range results {
		labels = append(labels, l)
		if fdr {
			analysis.AdjustFDR(set)
		}
		for _, d := range set.Degenerate() {
			r, _ := set.Get(d)
			e.out.VerboseLog("%s at %s: %s", l, d, r.Reason)
		}
	}
	sort.Strings(labels)

	return e.out.Success(TestResult{Design: design, Results: results}, func(w io.Writer) error {
		return report.WriteResultsCSV(w, labels, results)
	})
}
