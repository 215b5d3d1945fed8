package evo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gasm/internal/logging"
	"gasm/internal/model"
	"gasm/internal/vm"
)

const sentinel = 1234567.89

func testConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.PopulationSize = 40
	cfg.IndividualMaxSize = 12
	cfg.MaxGenerations = 4
	cfg.MaxProcessTime = 200
	cfg.Workers = 2
	cfg.GoalFitness = -1
	cfg.Seed = 7
	return cfg
}

func sumDataset() model.Dataset {
	return model.Dataset{
		Inputs:  [][]float64{{1, 2}, {2, 3}, {4, -1}},
		Targets: [][]float64{{3}, {5}, {3}},
	}
}

func quietOptions() Options {
	return Options{Logger: logging.Discard()}
}

func historyJSON(t *testing.T, history []model.GenerationEntry) string {
	t.Helper()
	data, err := json.Marshal(history)
	require.NoError(t, err)
	return string(data)
}

func TestEvolveRecordsGenerationZeroAndBreeds(t *testing.T) {
	cfg := testConfig()
	var seen []int
	opts := quietOptions()
	opts.OnGeneration = func(e model.GenerationEntry) { seen = append(seen, e.Generation) }

	state, err := Evolve(context.Background(), cfg, sumDataset(), State{}, opts)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
	require.Len(t, state.History, 5)
	assert.Equal(t, 4, state.Generation)
	assert.Len(t, state.Population, cfg.PopulationSize)
	assert.NotEmpty(t, state.RunID)
	assert.NotEmpty(t, state.Random)
	for i, ind := range state.Population {
		require.True(t, ind.Evaluated(), "individual %d", i)
		assert.LessOrEqual(t, ind.Size(), cfg.IndividualMaxSize)
	}
}

func TestEvolveIsDeterministicAcrossWorkerCounts(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	a, err := Evolve(context.Background(), cfg, sumDataset(), State{}, quietOptions())
	require.NoError(t, err)

	cfg.Workers = 8
	b, err := Evolve(context.Background(), cfg, sumDataset(), State{}, quietOptions())
	require.NoError(t, err)

	assert.Equal(t, historyJSON(t, a.History), historyJSON(t, b.History))
}

func TestEvolveBestIsMonotonicWhenMinimizing(t *testing.T) {
	cfg := testConfig()
	cfg.MaxGenerations = 10
	cfg.Selection = model.SelectionSpec{Kind: model.SelectionRoulette}
	cfg.Crossover = model.CrossoverSpec{Kind: model.CrossoverUniform}

	state, err := Evolve(context.Background(), cfg, sumDataset(), State{}, quietOptions())
	require.NoError(t, err)
	for i := 1; i < len(state.History); i++ {
		prev, cur := state.History[i-1].BestFitness, state.History[i].BestFitness
		assert.LessOrEqual(t, float64(cur), float64(prev), "generation %d", i)
	}
}

func TestEvolveResumeMatchesUninterruptedRun(t *testing.T) {
	cfg := testConfig()
	full, err := Evolve(context.Background(), cfg, sumDataset(), State{}, quietOptions())
	require.NoError(t, err)

	cfg.MaxGenerations = 2
	first, err := Evolve(context.Background(), cfg, sumDataset(), State{}, quietOptions())
	require.NoError(t, err)

	data, err := json.Marshal(first.Snapshot(cfg))
	require.NoError(t, err)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	restored, err := StateFromSnapshot(snap)
	require.NoError(t, err)

	resumed, err := Evolve(context.Background(), cfg, sumDataset(), restored, quietOptions())
	require.NoError(t, err)

	assert.Equal(t, 3, resumed.History[3].Generation)
	assert.Equal(t, historyJSON(t, full.History), historyJSON(t, resumed.History))
}

func TestEvolveRejectsPopulationMismatchBeforeRunning(t *testing.T) {
	cfg := testConfig()
	cfg.PopulationSize = 100
	cfg.MaxGenerations = 0
	saved, err := Evolve(context.Background(), cfg, sumDataset(), State{}, quietOptions())
	require.NoError(t, err)
	require.Len(t, saved.Population, 100)

	cfg.PopulationSize = 50
	called := false
	opts := quietOptions()
	opts.OnGeneration = func(model.GenerationEntry) { called = true }
	out, err := Evolve(context.Background(), cfg, sumDataset(), saved, opts)
	require.ErrorIs(t, err, model.ErrInvariant)
	assert.False(t, called)
	assert.Len(t, out.History, len(saved.History))
}

func TestEvolveRejectsOversizeProgram(t *testing.T) {
	cfg := testConfig()
	cfg.PopulationSize = 2
	cfg.EliteCount = 1
	long := make(vm.Program, cfg.IndividualMaxSize+1)
	state := State{Population: []Individual{NewIndividual(vm.Program{}), NewIndividual(long)}}

	_, err := Evolve(context.Background(), cfg, sumDataset(), state, quietOptions())
	require.ErrorIs(t, err, model.ErrInvariant)
}

func TestEvolveValidatesInputsFirst(t *testing.T) {
	cfg := testConfig()
	cfg.PopulationSize = 0
	_, err := Evolve(context.Background(), cfg, sumDataset(), State{}, quietOptions())
	require.ErrorIs(t, err, model.ErrConfiguration)

	cfg = testConfig()
	bad := model.Dataset{Inputs: [][]float64{{1}}, Targets: [][]float64{}}
	_, err = Evolve(context.Background(), cfg, bad, State{}, quietOptions())
	require.ErrorIs(t, err, model.ErrShape)
}

func TestEvolveStopsWhenGoalReached(t *testing.T) {
	cfg := testConfig()
	cfg.GoalFitness = 1e12
	state, err := Evolve(context.Background(), cfg, sumDataset(), State{}, quietOptions())
	require.NoError(t, err)
	assert.Len(t, state.History, 1)
	assert.Equal(t, 0, state.Generation)
}

func TestEvolveHonoursCancellationAtGenerationBoundary(t *testing.T) {
	cfg := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := quietOptions()
	opts.OnGeneration = func(e model.GenerationEntry) {
		if e.Generation == 1 {
			cancel()
		}
	}
	state, err := Evolve(ctx, cfg, sumDataset(), State{}, opts)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, state.History, 2)
	assert.Equal(t, 1, state.Generation)
}

func TestEvolveWritesPeriodicCheckpoints(t *testing.T) {
	cfg := testConfig()
	cfg.CheckpointInterval = 2
	cfg.OutputFolder = t.TempDir()

	var mu sync.Mutex
	var generations []int
	opts := quietOptions()
	opts.Checkpointer = CheckpointFunc(func(_ context.Context, snap model.Snapshot) error {
		mu.Lock()
		defer mu.Unlock()
		generations = append(generations, snap.Generation)
		if len(snap.History) != snap.Generation+1 {
			return errors.New("history out of step with generation")
		}
		return nil
	})

	_, err := Evolve(context.Background(), cfg, sumDataset(), State{}, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4}, generations)
}

func TestEvolveReportsCheckpointFailure(t *testing.T) {
	cfg := testConfig()
	cfg.CheckpointInterval = 1
	cfg.OutputFolder = t.TempDir()

	opts := quietOptions()
	opts.Checkpointer = CheckpointFunc(func(context.Context, model.Snapshot) error {
		return errors.New("disk full")
	})

	state, err := Evolve(context.Background(), cfg, sumDataset(), State{}, opts)
	require.ErrorIs(t, err, model.ErrSnapshotIO)
	assert.Len(t, state.History, cfg.MaxGenerations+1)
}

func TestEvolveReevaluatesWhenDatasetChanges(t *testing.T) {
	cfg := testConfig()
	cfg.MaxGenerations = 1
	state, err := Evolve(context.Background(), cfg, sumDataset(), State{}, quietOptions())
	require.NoError(t, err)

	other := model.Dataset{Inputs: [][]float64{{10, 20}}, Targets: [][]float64{{30}}}
	cfg.MaxGenerations = 0
	next, err := Evolve(context.Background(), cfg, other, state, quietOptions())
	require.NoError(t, err)
	assert.Equal(t, other.Digest(), next.DatasetDigest)

	evaluator, err := NewEvaluator(cfg)
	require.NoError(t, err)
	for i, ind := range next.Population {
		want, _, err := evaluator.Evaluate(ind.Program, other)
		require.NoError(t, err)
		assert.Equal(t, want, *ind.Fitness, "individual %d", i)
	}
}

func TestEvolveReevaluatesWhenScoringConfigChanges(t *testing.T) {
	cfg := testConfig()
	cfg.MaxGenerations = 0
	state, err := Evolve(context.Background(), cfg, sumDataset(), State{}, quietOptions())
	require.NoError(t, err)
	assert.Equal(t, cfg.ScoringDigest(), state.ScoringDigest)

	changed := cfg
	changed.NaNPenalty = 7
	changed.Fitness = model.FitnessSpec{Kind: model.FitnessAnyPosition}
	next, err := Evolve(context.Background(), changed, sumDataset(), state, quietOptions())
	require.NoError(t, err)
	assert.Equal(t, changed.ScoringDigest(), next.ScoringDigest)

	evaluator, err := NewEvaluator(changed)
	require.NoError(t, err)
	for i, ind := range next.Population {
		require.NotNil(t, ind.Fitness, "individual %d", i)
		want, _, err := evaluator.Evaluate(ind.Program, sumDataset())
		require.NoError(t, err)
		assert.Equal(t, want, *ind.Fitness, "individual %d", i)
	}

	snap := next.Snapshot(changed)
	restored, err := StateFromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, next.ScoringDigest, restored.ScoringDigest)
}

func TestEvolveDefaultOperatorsProduceControlFlow(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.PopulationSize = 100
	cfg.IndividualMaxSize = 12
	cfg.MaxGenerations = 5
	cfg.MutationProbability = 0.3
	cfg.MaxProcessTime = 200
	cfg.GoalFitness = -1
	cfg.Seed = 5

	state, err := Evolve(context.Background(), cfg, sumDataset(), State{}, quietOptions())
	require.NoError(t, err)

	openers, ends := 0, 0
	for _, ind := range state.Population {
		for _, in := range ind.Program {
			switch {
			case in.Op.Info().Opener:
				openers++
			case in.Op == vm.OpEnd:
				ends++
			}
		}
	}
	assert.Positive(t, openers, "no block openers in an evolved population")
	assert.Positive(t, ends, "no END in an evolved population")
}

func TestEvolveSumScenario(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.PopulationSize = 200
	cfg.IndividualMaxSize = 12
	cfg.MaxGenerations = 30
	cfg.GoalFitness = 0
	cfg.Minimize = true
	cfg.RegisterLength = 10
	cfg.Seed = 3

	input := []float64{2, 3}
	for len(input) < cfg.RegisterLength {
		input = append(input, sentinel)
	}
	data := model.Dataset{Inputs: [][]float64{input}, Targets: [][]float64{{5}}}

	state, err := Evolve(context.Background(), cfg, data, State{}, quietOptions())
	require.NoError(t, err)

	last := state.History[len(state.History)-1]
	ranked, err := Rank(state.Population, cfg.Minimize)
	require.NoError(t, err)
	best := state.Population[ranked[0].Index]

	evaluator, err := NewEvaluator(cfg)
	require.NoError(t, err)
	fitness, _, err := evaluator.Evaluate(best.Program, data)
	require.NoError(t, err)
	assert.Equal(t, fitness, float64(last.BestFitness))

	if float64(last.BestFitness) == 0 {
		res, err := evaluator.Machine().Run(best.Program, input)
		require.NoError(t, err)
		assert.InDelta(t, 5.0, res.Registers[0], 1e-6)
		return
	}
	assert.Equal(t, cfg.MaxGenerations, last.Generation)
}
