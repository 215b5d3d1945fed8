package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates one generation's scores.
type Summary struct {
	AvgFitness float64
	StdFitness float64
	MinFitness float64
	MaxFitness float64
	AvgSize    float64
	Finite     int
}

// Summarize averages the finite fitness values and all program sizes.
// Fitness statistics are NaN when no score is finite.
func Summarize(fitness []float64, sizes []int) Summary {
	finite := make([]float64, 0, len(fitness))
	for _, f := range fitness {
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			finite = append(finite, f)
		}
	}

	out := Summary{
		AvgFitness: math.NaN(),
		StdFitness: math.NaN(),
		MinFitness: math.NaN(),
		MaxFitness: math.NaN(),
		Finite:     len(finite),
	}
	if len(finite) > 0 {
		out.AvgFitness = stat.Mean(finite, nil)
		out.MinFitness = floats.Min(finite)
		out.MaxFitness = floats.Max(finite)
		out.StdFitness = 0
		if len(finite) > 1 {
			out.StdFitness = stat.StdDev(finite, nil)
		}
	}

	if len(sizes) > 0 {
		fs := make([]float64, len(sizes))
		for i, s := range sizes {
			fs[i] = float64(s)
		}
		out.AvgSize = stat.Mean(fs, nil)
	}
	return out
}
