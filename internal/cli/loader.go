package cli

import (
	"context"

	"github.com/spf13/cobra"

	"palin/adapters/excel"
	"palin/domain/kernel"
	"palin/domain/observation"
	"palin/internal"
	"palin/internal/config"
)

// env is what every command needs: resolved configuration, a logger and
// an output formatter bound to the command's writers
type env struct {
	cfg    *config.Config
	logger *internal.Logger
	out    *OutputFormatter
}

func newEnv(opts *RootOptions, cmd *cobra.Command) (*env, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, out.Fail("invalid configuration", err)
	}
	if opts.ConfigPath != "" {
		if err := config.LoadAnalysisFile(cfg, opts.ConfigPath); err != nil {
			return nil, out.Fail("invalid analysis file", err)
		}
	}

	level := internal.ParseLogLevel(cfg.LogLevel)
	if opts.Verbose && level < internal.LogLevelDebug {
		level = internal.LogLevelDebug
	}
	return &env{
		cfg:    cfg,
		logger: internal.NewLogger(level, cmd.ErrOrStderr()),
		out:    out,
	}, nil
}

// load reads result files and applies the configured column renames
func (e *env) load(ctx context.Context, paths []string) (*observation.Table, error) {
	reader := excel.NewDataReader(e.cfg.Reader, e.logger)
	table, err := reader.ReadAll(ctx, paths)
	if err != nil {
		return nil, e.out.Fail("failed to read result files", err)
	}
	if len(e.cfg.Rename) > 0 {
		table = table.Rename(e.cfg.Rename)
	}
	e.out.VerboseLog("loaded %d observations from %d files", table.Len(), len(paths))
	return table, nil
}

// warnZeroEnergy reports trial groups whose norm values are NaN
func (e *env) warnZeroEnergy(tables ...*kernel.Table) {
	for _, t := range tables {
		for _, g := range t.ZeroEnergyGroups() {
			e.logger.Warn("%s kernel of %s has zero energy; norm values are NaN", t.Form, g)
		}
	}
}
