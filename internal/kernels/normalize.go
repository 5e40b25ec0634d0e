package kernels

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"palin/domain/kernel"
)

// normalize divides every kernel value by the square root of its trial
// group's energy, the mean of squared kernel values across the group's
// dimensions. A group with zero energy gets NaN norm values.
func normalize(rows []kernel.Row) {
	squares := make(map[string][]float64)
	for _, r := range rows {
		id := r.Trial.ID()
		squares[id] = append(squares[id], r.KernelValue*r.KernelValue)
	}

	energy := make(map[string]float64, len(squares))
	for id, sq := range squares {
		energy[id] = stat.Mean(sq, nil)
	}

	for i := range rows {
		e := energy[rows[i].Trial.ID()]
		rows[i].Energy = e
		if e == 0 {
			rows[i].NormValue = math.NaN()
			continue
		}
		rows[i].NormValue = rows[i].KernelValue / math.Sqrt(e)
	}
}

// unnormalized marks the normalization columns as absent
func unnormalized(rows []kernel.Row) {
	for i := range rows {
		rows[i].NormValue = math.NaN()
		rows[i].Energy = math.NaN()
	}
}
