package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"palin/domain/kernel"
	"palin/internal/errors"
	"palin/internal/kernels"
	"palin/internal/report"
)

// KernelsOptions holds flags for the kernels command.
type KernelsOptions struct {
	Split     bool
	Normalize bool
	Output    string
}

// KernelsResult is the JSON payload of the kernels command.
type KernelsResult struct {
	Kernels   *kernel.Table `json:"kernels,omitempty"`
	Positives *kernel.Table `json:"positives,omitempty"`
	Negatives *kernel.Table `json:"negatives,omitempty"`
	Files     []string      `json:"files,omitempty"`
}

// NewKernelsCommand creates the kernels command.
func NewKernelsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KernelsOptions{}

	cmd := &cobra.Command{
		Use:   "kernels <result-file>...",
		Short: "Compute classification-image kernels",
		Long: `Compute one kernel per trial group: for every dimension, the mean value on
positive responses minus the mean value on negative responses.

With --split the positive and negative means are written as two tables,
each normalized with its own energy.

Example: palin kernels results/*.csv --out kernels.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKernels(rootOpts, opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Split, "split", false, "write positive and negative kernels separately")
	cmd.Flags().BoolVar(&opts.Normalize, "normalize", true, "energy-normalize kernels per trial group")
	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "write kernels as CSV to this path")

	return cmd
}

func runKernels(rootOpts *RootOptions, opts *KernelsOptions, cmd *cobra.Command, args []string) error {
	e, err := newEnv(rootOpts, cmd)
	if err != nil {
		return err
	}
	table, err := e.load(cmd.Context(), args)
	if err != nil {
		return err
	}

	cfg := e.cfg.Analysis.Kernel
	if cmd.Flags().Changed("normalize") {
		cfg.Normalize = opts.Normalize
	}

	result := &KernelsResult{}
	var tables []*kernel.Table
	if opts.Split {
		pos, neg, err := kernels.ComputeKernel(table, cfg)
		if err != nil {
			return e.out.Fail("kernel computation failed", err)
		}
		result.Positives, result.Negatives = pos, neg
		tables = []*kernel.Table{pos, neg}
	} else {
		diff, err := kernels.ComputeKernelDiff(table, cfg)
		if err != nil {
			return e.out.Fail("kernel computation failed", err)
		}
		result.Kernels = diff
		tables = []*kernel.Table{diff}
		if diff.Len() == 0 {
			e.logger.Warn("no trial group has both responses at any %s", cfg.DimensionField)
		}
	}
	e.warnZeroEnergy(tables...)

	if opts.Output != "" {
		for _, t := range tables {
			path := opts.Output
			if opts.Split {
				path = suffixed(opts.Output, string(t.Form))
			}
			if err := writeKernelFile(path, t); err != nil {
				return e.out.Fail("failed to write kernels", err)
			}
			result.Files = append(result.Files, path)
		}
	}

	return e.out.Success(result, func(w io.Writer) error {
		if opts.Output != "" {
			for _, f := range result.Files {
				fmt.Fprintf(w, "wrote %s\n", f)
			}
			return nil
		}
		for i, t := range tables {
			if opts.Split {
				if i > 0 {
					fmt.Fprintln(w)
				}
				fmt.Fprintf(w, "# %s\n", t.Form)
			}
			if err := report.WriteKernelsCSV(w, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// suffixed turns kernels.csv into kernels_positives.csv
func suffixed(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + suffix + ext
}

func writeKernelFile(path string, t *kernel.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithCode(errors.CodeInvalidInput, err)
	}
	defer f.Close()
	if err := report.WriteKernelsCSV(f, t); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return f.Close()
}
