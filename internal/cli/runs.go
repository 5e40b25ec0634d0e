package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"palin/adapters/store"
	"palin/domain/core"
	"palin/internal/errors"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	DSN   string
	Limit int
}

// RunDetail is the JSON payload of "runs show".
type RunDetail struct {
	Run     *store.RunSummary    `json:"run"`
	Results []store.StoredResult `json:"results"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored analysis runs, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(rootOpts, opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.DSN, "db", "", "results database DSN (overrides PALIN_DB_DSN)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list")

	return cmd
}

func runRuns(rootOpts *RootOptions, opts *RunsOptions, cmd *cobra.Command, args []string) error {
	e, err := newEnv(rootOpts, cmd)
	if err != nil {
		return err
	}
	dsn := e.cfg.Database.DSN
	if opts.DSN != "" {
		dsn = opts.DSN
	}

	repo, err := store.Open(cmd.Context(), dsn, e.logger)
	if err != nil {
		return e.out.Fail("failed to open results database", err)
	}
	defer repo.Close()
	if err := repo.Migrate(cmd.Context()); err != nil {
		return e.out.Fail("failed to open results database", errors.DatabaseError("migration failed", err))
	}

	if len(args) == 1 {
		id, err := core.ParseRunID(args[0])
		if err != nil {
			return e.out.Fail("invalid run ID", errors.WithCode(errors.CodeInvalidInput, err))
		}
		return showRun(e, repo, cmd, id)
	}

	runs, err := repo.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return e.out.Fail("failed to list runs", err)
	}
	return e.out.Success(runs, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "id\tstarted\tobservations\tdataset")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.StartedAt.Format(time.RFC3339), r.Observations, core.Hash(r.Fingerprint).Short())
		}
		return tw.Flush()
	})
}

func showRun(e *env, repo *store.ResultRepository, cmd *cobra.Command, id core.RunID) error {
	run, err := repo.GetRun(cmd.Context(), id)
	if err != nil {
		return e.out.Fail("failed to load run", err)
	}
	results, err := repo.LoadTestResults(cmd.Context(), id)
	if err != nil {
		return e.out.Fail("failed to load run", err)
	}

	return e.out.Success(RunDetail{Run: run, Results: results}, func(w io.Writer) error {
		fmt.Fprintf(w, "run %s (%d observations, dataset %s)\n", run.ID, run.Observations, core.Hash(run.Fingerprint).Short())
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "design\tlabel\tdimension\tt\tp\tnote")
		for _, r := range results {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.4g\t%.4g\t%s\n", r.Design, r.Label, r.Dimension, r.Result.Statistic, r.Result.PValue, r.Result.Reason)
		}
		return tw.Flush()
	})
}
