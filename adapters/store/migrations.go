package store

import (
	"context"
	"fmt"
)

// migration is one versioned schema step. Statements are portable between
// sqlite and postgres.
type migration struct {
	Version    string
	Statements []string
}

var migrations = []migration{
	{
		Version: "001_analysis_runs",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS analysis_runs (
				id TEXT PRIMARY KEY,
				fingerprint TEXT NOT NULL,
				started_at TIMESTAMP NOT NULL,
				finished_at TIMESTAMP NOT NULL,
				observations INTEGER NOT NULL,
				config TEXT NOT NULL
			)`,
		},
	},
	{
		Version: "002_kernel_rows",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS kernel_rows (
				run_id TEXT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
				form TEXT NOT NULL,
				position INTEGER NOT NULL,
				trial TEXT NOT NULL,
				trial_label TEXT NOT NULL,
				dimension TEXT NOT NULL,
				kernel_value DOUBLE PRECISION,
				norm_value DOUBLE PRECISION,
				energy DOUBLE PRECISION,
				positive_mean DOUBLE PRECISION,
				negative_mean DOUBLE PRECISION,
				n_obs INTEGER NOT NULL,
				PRIMARY KEY (run_id, form, position)
			)`,
		},
	},
	{
		Version: "003_test_results",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS test_results (
				run_id TEXT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
				design TEXT NOT NULL,
				label TEXT NOT NULL,
				position INTEGER NOT NULL,
				dimension TEXT NOT NULL,
				statistic DOUBLE PRECISION,
				infinite INTEGER NOT NULL DEFAULT 0,
				p_value DOUBLE PRECISION,
				df DOUBLE PRECISION,
				difference DOUBLE PRECISION,
				q_value DOUBLE PRECISION,
				n1 INTEGER NOT NULL,
				n2 INTEGER NOT NULL,
				reason TEXT NOT NULL,
				PRIMARY KEY (run_id, design, label, position)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_test_results_design ON test_results (run_id, design)`,
		},
	},
}

// Migrate applies every migration not yet recorded in schema_migrations
func (r *ResultRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var applied []string
	if err := r.db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", m.Version, err)
		}
		for _, stmt := range m.Statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, r.db.Rebind(`INSERT INTO schema_migrations (version) VALUES (?)`), m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
		r.logger.Info("applied migration %s", m.Version)
	}
	return nil
}
