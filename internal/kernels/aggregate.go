package kernels

import (
	"sort"

	"palin/domain/kernel"
	"palin/domain/observation"
)

// cell is the mean of the value column over one
// (trial key, dimension, response) group
type cell struct {
	trial     kernel.TrialKey
	dimension observation.Value
	response  bool
	sum       float64
	n         int
}

func (c *cell) mean() float64 {
	return c.sum / float64(c.n)
}

// joinID identifies the (trial key, dimension) pair a cell belongs to
func (c *cell) joinID() string {
	return c.trial.ID() + "\x1d" + c.dimension.Key()
}

// aggregate groups observations by trial fields, dimension and response and
// sums the value column. Rows with a missing cell in any of those columns are
// skipped. Groups without rows do not exist. The result is sorted by trial
// key, then dimension, then response.
func aggregate(t *observation.Table, cfg kernel.Config) []*cell {
	trialCols := make([]int, len(cfg.TrialFields))
	for i, f := range cfg.TrialFields {
		trialCols[i], _ = t.Index(f)
	}
	dimCol, _ := t.Index(cfg.DimensionField)
	respCol, _ := t.Index(cfg.ResponseField)
	valCol, _ := t.Index(cfg.ValueField)

	groups := make(map[string]*cell)
	var order []*cell

rows:
	for _, row := range t.Rows {
		value, ok := row[valCol].Float()
		if !ok {
			continue
		}
		response, ok := row[respCol].Bool()
		if !ok {
			continue
		}
		dim := row[dimCol]
		if dim.IsMissing() {
			continue
		}
		trial := make(kernel.TrialKey, len(trialCols))
		for i, c := range trialCols {
			if row[c].IsMissing() {
				continue rows
			}
			trial[i] = row[c]
		}

		probe := &cell{trial: trial, dimension: dim, response: response}
		id := probe.joinID()
		if response {
			id += "\x1c1"
		} else {
			id += "\x1c0"
		}
		g, ok := groups[id]
		if !ok {
			g = probe
			groups[id] = g
			order = append(order, g)
		}
		g.sum += value
		g.n++
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if c := a.trial.Compare(b.trial); c != 0 {
			return c < 0
		}
		if c := a.dimension.Compare(b.dimension); c != 0 {
			return c < 0
		}
		return !a.response && b.response
	})
	return order
}

// split partitions cells by response, preserving order
func split(cells []*cell) (positives, negatives []*cell) {
	for _, c := range cells {
		if c.response {
			positives = append(positives, c)
		} else {
			negatives = append(negatives, c)
		}
	}
	return positives, negatives
}
