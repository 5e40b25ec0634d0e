package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"palin/adapters/store"
	"palin/internal/analysis"
	"palin/internal/errors"
	"palin/internal/report"
)

// AnalyzeOptions holds flags for the analyze command.
type AnalyzeOptions struct {
	Save   bool
	DSN    string
	Report string // "", "md" or "html"
	Output string
	FDR    bool
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <result-file>...",
		Short: "Compute kernels and run all three test designs",
		Long: `Run a full analysis: difference kernels, split kernels, and the one-sample,
two-sample and paired tests over the split kernels.

With --save the run is stored in the results database (PALIN_DB_DSN or --db).
With --report a Markdown or HTML report is printed or written to --out.

Example: palin analyze results/*.csv --save --report html --out report.html`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(rootOpts, opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Save, "save", false, "store the run in the results database")
	cmd.Flags().StringVar(&opts.DSN, "db", "", "results database DSN (overrides PALIN_DB_DSN)")
	cmd.Flags().StringVar(&opts.Report, "report", "", "report format (md|html)")
	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "write the report to this path")
	cmd.Flags().BoolVar(&opts.FDR, "fdr", false, "add Benjamini-Hochberg q-values")

	return cmd
}

func runAnalyze(rootOpts *RootOptions, opts *AnalyzeOptions, cmd *cobra.Command, args []string) error {
	switch opts.Report {
	case "", "md", "html":
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid report format %q: must be md or html", opts.Report))
	}

	e, err := newEnv(rootOpts, cmd)
	if err != nil {
		return err
	}
	table, err := e.load(cmd.Context(), args)
	if err != nil {
		return err
	}

	run := e.cfg.Analysis
	run.FDR = run.FDR || opts.FDR
	a, err := analysis.NewAnalyzer(e.logger).Run(cmd.Context(), table, run)
	if err != nil {
		return e.out.Fail("analysis failed", err)
	}

	if opts.Save {
		dsn := e.cfg.Database.DSN
		if opts.DSN != "" {
			dsn = opts.DSN
		}
		if err := save(cmd, e, dsn, a); err != nil {
			return e.out.Fail("failed to save run", err)
		}
	}

	var rendered []byte
	if opts.Report != "" {
		rendered = report.Markdown(a)
		if opts.Report == "html" {
			rendered = report.HTML(rendered, "Classification images "+a.RunID.String())
		}
		if opts.Output != "" {
			if err := os.WriteFile(opts.Output, rendered, 0o644); err != nil {
				return e.out.Fail("failed to write report", errors.WithCode(errors.CodeInvalidInput, err))
			}
			e.out.VerboseLog("wrote %s", opts.Output)
		}
	}

	return e.out.Success(a, func(w io.Writer) error {
		if rendered != nil && opts.Output == "" {
			_, err := w.Write(rendered)
			return err
		}
		return summarize(w, a)
	})
}

func save(cmd *cobra.Command, e *env, dsn string, a *analysis.Analysis) error {
	repo, err := store.Open(cmd.Context(), dsn, e.logger)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.Migrate(cmd.Context()); err != nil {
		return errors.DatabaseError("migration failed", err)
	}
	return repo.SaveAnalysis(cmd.Context(), a)
}

// summarize prints one line per design and dimension
func summarize(w io.Writer, a *analysis.Analysis) error {
	fmt.Fprintf(w, "run %s: %d observations, %d kernel rows in %d groups\n",
		a.RunID, a.Observations, a.Kernels.Len(), len(a.Kernels.Groups()))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "design\tdimension\tt\tp\tnote")
	line := func(name string, set *analysis.ResultSet) {
		if set == nil {
			return
		}
		for _, d := range set.Dimensions {
			r, _ := set.Get(d)
			note := string(r.Reason)
			if note == "" && r.Significant(report.Alpha) {
				note = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%.4g\t%.4g\t%s\n", name, d, r.Statistic, r.PValue, note)
		}
	}
	for _, label := range []string{a.Config.Labels.Positives, a.Config.Labels.Negatives} {
		line("one-sample/"+label, a.OneSample[label])
	}
	line("two-sample", a.TwoSample)
	line("paired", a.Paired)
	return tw.Flush()
}
