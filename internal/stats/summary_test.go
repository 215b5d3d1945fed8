package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeSkipsNonFinite(t *testing.T) {
	s := Summarize([]float64{1, 3, math.NaN(), math.Inf(1)}, []int{2, 4, 6, 8})
	assert.Equal(t, 2, s.Finite)
	assert.InDelta(t, 2.0, s.AvgFitness, 1e-12)
	assert.Equal(t, 1.0, s.MinFitness)
	assert.Equal(t, 3.0, s.MaxFitness)
	assert.InDelta(t, 5.0, s.AvgSize, 1e-12)
}

func TestSummarizeNoFiniteScores(t *testing.T) {
	s := Summarize([]float64{math.NaN()}, []int{3})
	assert.True(t, math.IsNaN(s.AvgFitness))
	assert.Equal(t, 0, s.Finite)
	assert.Equal(t, 3.0, s.AvgSize)

	empty := Summarize(nil, nil)
	assert.Equal(t, 0.0, empty.AvgSize)
}

func TestSummarizeSingleScoreHasZeroSpread(t *testing.T) {
	s := Summarize([]float64{4}, []int{1})
	assert.Equal(t, 0.0, s.StdFitness)
}
