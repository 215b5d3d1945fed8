package evo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gasm/internal/model"
	"gasm/internal/vm"
)

func mustAssemble(t *testing.T, src string) vm.Program {
	t.Helper()
	prog, err := vm.Assemble(src)
	require.NoError(t, err)
	return prog
}

func fitnessConfig(kind model.FitnessKind) model.Config {
	cfg := model.DefaultConfig()
	cfg.RegisterLength = 4
	cfg.MaxProcessTime = 50
	cfg.NaNPenalty = 1000
	cfg.Fitness = model.FitnessSpec{Kind: kind}
	return cfg
}

func TestAbsoluteFitnessSumsRowErrors(t *testing.T) {
	ev, err := NewEvaluator(fitnessConfig(model.FitnessAbsolute))
	require.NoError(t, err)

	// The empty program leaves the inputs in place.
	data := model.Dataset{
		Inputs:  [][]float64{{1, 2}, {3}},
		Targets: [][]float64{{0, 2}, {5, 1}},
	}
	fitness, steps, err := ev.Evaluate(vm.Program{}, data)
	require.NoError(t, err)
	assert.Equal(t, 1.0+0+2+1, fitness)
	assert.Equal(t, 0.0, steps)
}

func TestNaNRowCostsExactlyThePenalty(t *testing.T) {
	cfg := fitnessConfig(model.FitnessAbsolute)
	ev, err := NewEvaluator(cfg)
	require.NoError(t, err)

	// A = 0, then I[0] = A / I[1] = 0/0 for the first row.
	prog := mustAssemble(t, "RES\nSET 0\nMOV P,A\nINC\nDIV I\nRES\nMOV I,A")
	data := model.Dataset{
		Inputs:  [][]float64{{7, 0}, {7, 2}},
		Targets: [][]float64{{0}, {0}},
	}
	fitness, _, err := ev.Evaluate(prog, data)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(fitness))
	assert.Equal(t, cfg.NaNPenalty, fitness)
}

func TestEvaluatorRejectsOversizeProgram(t *testing.T) {
	cfg := fitnessConfig(model.FitnessAbsolute)
	cfg.IndividualMaxSize = 2
	ev, err := NewEvaluator(cfg)
	require.NoError(t, err)

	_, _, err = ev.Evaluate(make(vm.Program, 3), model.Dataset{Inputs: [][]float64{{1}}, Targets: [][]float64{{1}}})
	require.ErrorIs(t, err, model.ErrInvariant)
}

func TestAnyPositionError(t *testing.T) {
	assert.Equal(t, 0.0, anyPositionError([]float64{9, 4.6, 1}, 5, 100))
	assert.Equal(t, 1.0, anyPositionError([]float64{9, 3.5, -1}, 5, 100))
	assert.Equal(t, 5.0, anyPositionError([]float64{math.NaN(), math.Inf(1)}, 5, 100))
	assert.Equal(t, 3.0, anyPositionError([]float64{-2.5}, 0, 100))
}

func TestIntegerWriteError(t *testing.T) {
	before := []float64{1, 2, 3}
	assert.Equal(t, 0.0, integerWriteError([]float64{5.9, 2, 3}, 5.2, before, 100))
	assert.Equal(t, 1.0+extraWriteWeight*0.5, integerWriteError([]float64{4, 2.5, 3}, 5, before, 100))
	assert.Equal(t, 100.0+extraWriteWeight, integerWriteError([]float64{math.NaN(), 2, math.NaN()}, 5, before, 100))
}

func TestRoundingHelpers(t *testing.T) {
	assert.Equal(t, 3.0, roundToInt(2.5))
	assert.Equal(t, -3.0, roundToInt(-2.5))
	assert.Equal(t, 0.0, roundToInt(math.NaN()))
	assert.Equal(t, integerClamp, roundToInt(1e300))
	assert.Equal(t, -2.0, truncToInt(-2.9))
}
