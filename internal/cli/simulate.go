package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"palin/adapters/excel"
	"palin/internal/testkit"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	Subjects int
	Trials   int
	Seed     int64
	Weights  []float64
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{}
	defaults := testkit.DefaultRevcorConfig()

	cmd := &cobra.Command{
		Use:   "simulate <output-file>",
		Short: "Write a synthetic reverse-correlation result file",
		Long: `Simulate observers in a two-interval forced-choice pitch experiment and
write their responses as a CSV or XLSX result file.

Each observer compares the two stimuli of a trial through a weight
template over segments; the recovered kernel should follow the template.

Example: palin simulate sim.csv --subjects 8 --weights 0,0,0.5,1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(rootOpts, opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Subjects, "subjects", defaults.Subjects, "number of simulated subjects")
	cmd.Flags().IntVar(&opts.Trials, "trials", defaults.Trials, "trials per subject")
	cmd.Flags().Int64Var(&opts.Seed, "seed", defaults.Seed, "random seed")
	cmd.Flags().Float64SliceVar(&opts.Weights, "weights", defaults.Weights, "observer template, one weight per segment")

	return cmd
}

func runSimulate(rootOpts *RootOptions, opts *SimulateOptions, cmd *cobra.Command, path string) error {
	out := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	cfg := testkit.DefaultRevcorConfig()
	cfg.Subjects = opts.Subjects
	cfg.Trials = opts.Trials
	cfg.Seed = opts.Seed
	cfg.Weights = opts.Weights

	table, err := testkit.NewRevcorGenerator(cfg).Generate()
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}
	if err := excel.WriteTable(path, table); err != nil {
		return out.Fail("failed to write simulation", err)
	}

	summary := map[string]interface{}{"path": path, "rows": table.Len(), "fingerprint": table.Fingerprint().String()}
	return out.Success(summary, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "wrote %d rows to %s\n", table.Len(), path)
		return err
	})
}
