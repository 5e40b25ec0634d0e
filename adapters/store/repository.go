// Package store persists analysis runs, kernel tables and test results in
// sqlite (default) or postgres through sqlx.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"palin/adapters/stats/ttest"
	"palin/domain/core"
	"palin/domain/kernel"
	"palin/domain/observation"
	"palin/internal"
	"palin/internal/analysis"
	"palin/internal/errors"
)

// Design names stored in test_results.design
const (
	DesignOneSample = "one_sample"
	DesignTwoSample = "two_sample"
	DesignPaired    = "paired"
)

// ResultRepository stores analyses
type ResultRepository struct {
	db     *sqlx.DB
	logger *internal.Logger
}

// DriverFor picks the database driver from the DSN scheme
func DriverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return "sqlite3"
}

// Open connects to dsn and returns a repository. Call Migrate before use.
func Open(ctx context.Context, dsn string, logger *internal.Logger) (*ResultRepository, error) {
	driver := DriverFor(dsn)
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.DatabaseError(fmt.Sprintf("failed to connect to %s store", driver), err)
	}
	if driver == "sqlite3" {
		// a single connection keeps in-memory databases and foreign keys consistent
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, errors.DatabaseError("failed to enable foreign keys", err)
		}
	}
	return NewResultRepository(db, logger), nil
}

// NewResultRepository wraps an existing connection
func NewResultRepository(db *sqlx.DB, logger *internal.Logger) *ResultRepository {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ResultRepository{db: db, logger: logger.With("store")}
}

// Close closes the underlying connection
func (r *ResultRepository) Close() error {
	return r.db.Close()
}

// RunSummary is one row of analysis_runs
type RunSummary struct {
	ID           string    `db:"id" json:"id"`
	Fingerprint  string    `db:"fingerprint" json:"fingerprint"`
	StartedAt    time.Time `db:"started_at" json:"started_at"`
	FinishedAt   time.Time `db:"finished_at" json:"finished_at"`
	Observations int       `db:"observations" json:"observations"`
	Config       string    `db:"config" json:"config"`
}

// StoredResult is one row of test_results
type StoredResult struct {
	Design    string            `json:"design"`
	Label     string            `json:"label,omitempty"`
	Dimension observation.Value `json:"dimension"`
	Result    ttest.Result      `json:"result"`
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: !math.IsNaN(f) && !math.IsInf(f, 0)}
}

func fromNull(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}

// SaveAnalysis writes a run with its three kernel tables and all test
// results in one transaction
func (r *ResultRepository) SaveAnalysis(ctx context.Context, a *analysis.Analysis) error {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return errors.Wrap(err, "failed to encode run configuration")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO analysis_runs (id, fingerprint, started_at, finished_at, observations, config)
		VALUES (?, ?, ?, ?, ?, ?)
	`), a.RunID.String(), a.Fingerprint.String(), a.StartedAt.UTC(), a.FinishedAt.UTC(), a.Observations, string(cfg))
	if err != nil {
		return errors.DatabaseError("failed to insert run "+a.RunID.String(), err)
	}

	for _, t := range []*kernel.Table{a.Kernels, a.Positives, a.Negatives} {
		if err := insertKernel(ctx, tx, a.RunID, t); err != nil {
			return err
		}
	}

	for _, label := range sortedLabels(a.OneSample) {
		if err := insertResults(ctx, tx, a.RunID, DesignOneSample, label, a.OneSample[label]); err != nil {
			return err
		}
	}
	if err := insertResults(ctx, tx, a.RunID, DesignTwoSample, "", a.TwoSample); err != nil {
		return err
	}
	if err := insertResults(ctx, tx, a.RunID, DesignPaired, "", a.Paired); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit run "+a.RunID.String(), err)
	}
	r.logger.Info("saved run %s", a.RunID)
	return nil
}

func insertKernel(ctx context.Context, tx *sqlx.Tx, id core.RunID, t *kernel.Table) error {
	if t == nil {
		return nil
	}
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO kernel_rows (run_id, form, position, trial, trial_label, dimension,
			kernel_value, norm_value, energy, positive_mean, negative_mean, n_obs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return errors.DatabaseError("failed to prepare kernel insert", err)
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		trial, err := json.Marshal(row.Trial)
		if err != nil {
			return errors.Wrap(err, "failed to encode trial key")
		}
		dim, err := json.Marshal(row.Dimension)
		if err != nil {
			return errors.Wrap(err, "failed to encode dimension")
		}
		_, err = stmt.ExecContext(ctx, id.String(), string(t.Form), i, string(trial), row.Trial.String(), string(dim),
			nullFloat(row.KernelValue), nullFloat(row.NormValue), nullFloat(row.Energy),
			nullFloat(row.PositiveMean), nullFloat(row.NegativeMean), row.Count)
		if err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to insert %s kernel row %d", t.Form, i), err)
		}
	}
	return nil
}

func insertResults(ctx context.Context, tx *sqlx.Tx, id core.RunID, design, label string, set *analysis.ResultSet) error {
	if set == nil {
		return nil
	}
	for i, d := range set.Dimensions {
		res, _ := set.Get(d)
		dim, err := json.Marshal(d)
		if err != nil {
			return errors.Wrap(err, "failed to encode dimension")
		}
		infinite := 0
		if math.IsInf(res.Statistic, 1) {
			infinite = 1
		} else if math.IsInf(res.Statistic, -1) {
			infinite = -1
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO test_results (run_id, design, label, position, dimension, statistic, infinite,
				p_value, df, difference, q_value, n1, n2, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), id.String(), design, label, i, string(dim), nullFloat(res.Statistic), infinite,
			nullFloat(res.PValue), nullFloat(res.DF), nullFloat(res.Difference), nullFloat(res.QValue),
			res.N1, res.N2, string(res.Reason))
		if err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to insert %s result %d", design, i), err)
		}
	}
	return nil
}

func sortedLabels(m map[string]*analysis.ResultSet) []string {
	labels := make([]string, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// ListRuns returns stored runs, newest first, optionally limited
func (r *ResultRepository) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
		SELECT id, fingerprint, started_at, finished_at, observations, config
		FROM analysis_runs
		ORDER BY started_at DESC, id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var runs []RunSummary
	if err := r.db.SelectContext(ctx, &runs, r.db.Rebind(query), args...); err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}
	return runs, nil
}

// GetRun returns one stored run
func (r *ResultRepository) GetRun(ctx context.Context, id core.RunID) (*RunSummary, error) {
	var run RunSummary
	err := r.db.GetContext(ctx, &run, r.db.Rebind(`
		SELECT id, fingerprint, started_at, finished_at, observations, config
		FROM analysis_runs WHERE id = ?
	`), id.String())
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("run " + id.String())
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to load run "+id.String(), err)
	}
	return &run, nil
}

type kernelRecord struct {
	Trial        string          `db:"trial"`
	Dimension    string          `db:"dimension"`
	KernelValue  sql.NullFloat64 `db:"kernel_value"`
	NormValue    sql.NullFloat64 `db:"norm_value"`
	Energy       sql.NullFloat64 `db:"energy"`
	PositiveMean sql.NullFloat64 `db:"positive_mean"`
	NegativeMean sql.NullFloat64 `db:"negative_mean"`
	Count        int             `db:"n_obs"`
}

// LoadKernelRows returns one stored kernel table's rows in their original order
func (r *ResultRepository) LoadKernelRows(ctx context.Context, id core.RunID, form kernel.Form) ([]kernel.Row, error) {
	var records []kernelRecord
	err := r.db.SelectContext(ctx, &records, r.db.Rebind(`
		SELECT trial, dimension, kernel_value, norm_value, energy, positive_mean, negative_mean, n_obs
		FROM kernel_rows
		WHERE run_id = ? AND form = ?
		ORDER BY position
	`), id.String(), string(form))
	if err != nil {
		return nil, errors.DatabaseError("failed to load kernel rows", err)
	}

	rows := make([]kernel.Row, len(records))
	for i, rec := range records {
		row := kernel.Row{
			KernelValue:  fromNull(rec.KernelValue),
			NormValue:    fromNull(rec.NormValue),
			Energy:       fromNull(rec.Energy),
			PositiveMean: fromNull(rec.PositiveMean),
			NegativeMean: fromNull(rec.NegativeMean),
			Count:        rec.Count,
		}
		if err := json.Unmarshal([]byte(rec.Trial), &row.Trial); err != nil {
			return nil, errors.Wrap(err, "corrupt trial key")
		}
		if err := json.Unmarshal([]byte(rec.Dimension), &row.Dimension); err != nil {
			return nil, errors.Wrap(err, "corrupt dimension")
		}
		rows[i] = row
	}
	return rows, nil
}

type resultRecord struct {
	Design     string          `db:"design"`
	Label      string          `db:"label"`
	Dimension  string          `db:"dimension"`
	Statistic  sql.NullFloat64 `db:"statistic"`
	Infinite   int             `db:"infinite"`
	PValue     sql.NullFloat64 `db:"p_value"`
	DF         sql.NullFloat64 `db:"df"`
	Difference sql.NullFloat64 `db:"difference"`
	QValue     sql.NullFloat64 `db:"q_value"`
	N1         int             `db:"n1"`
	N2         int             `db:"n2"`
	Reason     string          `db:"reason"`
}

// LoadTestResults returns every stored test result of a run, grouped by
// design and label in insertion order
func (r *ResultRepository) LoadTestResults(ctx context.Context, id core.RunID) ([]StoredResult, error) {
	var records []resultRecord
	err := r.db.SelectContext(ctx, &records, r.db.Rebind(`
		SELECT design, label, dimension, statistic, infinite, p_value, df, difference, q_value, n1, n2, reason
		FROM test_results
		WHERE run_id = ?
		ORDER BY design, label, position
	`), id.String())
	if err != nil {
		return nil, errors.DatabaseError("failed to load test results", err)
	}

	out := make([]StoredResult, len(records))
	for i, rec := range records {
		res := ttest.Result{
			Statistic:  fromNull(rec.Statistic),
			PValue:     fromNull(rec.PValue),
			DF:         fromNull(rec.DF),
			Difference: fromNull(rec.Difference),
			QValue:     fromNull(rec.QValue),
			N1:         rec.N1,
			N2:         rec.N2,
			Reason:     ttest.Reason(rec.Reason),
		}
		if rec.Infinite != 0 {
			res.Statistic = math.Inf(rec.Infinite)
		}
		out[i] = StoredResult{Design: rec.Design, Label: rec.Label, Result: res}
		if err := json.Unmarshal([]byte(rec.Dimension), &out[i].Dimension); err != nil {
			return nil, errors.Wrap(err, "corrupt dimension")
		}
	}
	return out, nil
}
