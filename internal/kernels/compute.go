package kernels

import (
	"math"

	"palin/domain/kernel"
	"palin/domain/observation"
)

// ComputeKernelDiff returns one row per (trial key, dimension) pair that has
// both positive and negative observations, holding the difference of the
// two response means. Pairs lacking either response are dropped without
// error; an input with no complete pair yields an empty table.
//
// Schema problems (missing columns, wrongly typed response or value
// columns, bad configuration) abort the call.
func ComputeKernelDiff(t *observation.Table, cfg kernel.Config) (*kernel.Table, error) {
	if err := cfg.Validate(t); err != nil {
		return nil, err
	}

	positives, negatives := split(aggregate(t, cfg))
	byPair := make(map[string]*cell, len(negatives))
	for _, n := range negatives {
		byPair[n.joinID()] = n
	}

	rows := make([]kernel.Row, 0, len(positives))
	for _, p := range positives {
		n, ok := byPair[p.joinID()]
		if !ok {
			continue
		}
		rows = append(rows, kernel.Row{
			Trial:        p.trial,
			Dimension:    p.dimension,
			KernelValue:  p.mean() - n.mean(),
			PositiveMean: p.mean(),
			NegativeMean: n.mean(),
			Count:        p.n + n.n,
		})
	}

	if cfg.Normalize {
		normalize(rows)
	} else {
		unnormalized(rows)
	}

	return newTable(kernel.FormDifference, cfg, rows), nil
}

// ComputeKernel returns the positive and negative response means as two
// separate kernel tables. Each table is normalized with its own energy.
func ComputeKernel(t *observation.Table, cfg kernel.Config) (positives, negatives *kernel.Table, err error) {
	if err := cfg.Validate(t); err != nil {
		return nil, nil, err
	}

	pos, neg := split(aggregate(t, cfg))
	return splitTable(kernel.FormPositives, cfg, pos), splitTable(kernel.FormNegatives, cfg, neg), nil
}

func splitTable(form kernel.Form, cfg kernel.Config, cells []*cell) *kernel.Table {
	rows := make([]kernel.Row, len(cells))
	for i, c := range cells {
		rows[i] = kernel.Row{
			Trial:        c.trial,
			Dimension:    c.dimension,
			KernelValue:  c.mean(),
			PositiveMean: math.NaN(),
			NegativeMean: math.NaN(),
			Count:        c.n,
		}
	}
	if cfg.Normalize {
		normalize(rows)
	} else {
		unnormalized(rows)
	}
	return newTable(form, cfg, rows)
}

func newTable(form kernel.Form, cfg kernel.Config, rows []kernel.Row) *kernel.Table {
	return &kernel.Table{
		Form:           form,
		TrialFields:    append([]string(nil), cfg.TrialFields...),
		DimensionField: cfg.DimensionField,
		ValueField:     cfg.ValueField,
		Normalized:     cfg.Normalize,
		Rows:           rows,
	}
}
