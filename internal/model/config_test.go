package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.PopulationSize)
	assert.Equal(t, 30, cfg.IndividualMaxSize)
	assert.Equal(t, "Tournament(2)", cfg.Selection.String())
	assert.True(t, cfg.Minimize)
}

func TestConfigValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"zero population":        func(c *Config) { c.PopulationSize = 0 },
		"negative max size":      func(c *Config) { c.IndividualMaxSize = -1 },
		"mutation above one":     func(c *Config) { c.MutationProbability = 1.5 },
		"negative crossover":     func(c *Config) { c.CrossoverProbability = -0.1 },
		"zero register length":   func(c *Config) { c.RegisterLength = 0 },
		"zero process time":      func(c *Config) { c.MaxProcessTime = 0 },
		"NaN goal":               func(c *Config) { c.GoalFitness = math.NaN() },
		"infinite penalty":       func(c *Config) { c.NaNPenalty = math.Inf(1) },
		"elite above population": func(c *Config) { c.PopulationSize = 2; c.EliteCount = 3 },
		"zero elite":             func(c *Config) { c.EliteCount = 0 },
		"checkpoint without dir": func(c *Config) { c.CheckpointInterval = 5 },
		"random cng":             func(c *Config) { c.CNG = GeneratorSpec{Kind: GeneratorRandom} },
		"bad tournament":         func(c *Config) { c.Selection = SelectionSpec{Kind: SelectionTournament, Param: 1.5} },
		"unknown fitness":        func(c *Config) { c.Fitness = FitnessSpec{Kind: "Squared"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrConfiguration)
		})
	}
}

func TestConfigBuildersReturnCopies(t *testing.T) {
	base := DefaultConfig()

	next, err := base.WithSelection("truncation", 0.25)
	require.NoError(t, err)
	assert.Equal(t, SelectionSpec{Kind: SelectionTruncation, Param: 0.25}, next.Selection)
	assert.Equal(t, SelectionTournament, base.Selection.Kind)

	next, err = next.WithGrow("tree")
	require.NoError(t, err)
	assert.Equal(t, GrowSpec{Kind: GrowTree, Param: 3}, next.Grow)

	next, err = next.WithRNG("random", 42)
	require.NoError(t, err)
	assert.Equal(t, 42.0, next.RNG.Param)

	next, err = next.WithFitness("anyposition")
	require.NoError(t, err)
	assert.Equal(t, FitnessAnyPosition, next.Fitness.Kind)
	require.NoError(t, next.Validate())

	same, err := next.WithCrossover("bogus")
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, next, same)
}

func TestScoringDigestTracksFitnessFields(t *testing.T) {
	base := DefaultConfig()
	changes := map[string]func(*Config){
		"fitness":      func(c *Config) { c.Fitness = FitnessSpec{Kind: FitnessAnyPosition} },
		"nan penalty":  func(c *Config) { c.NaNPenalty = 7 },
		"process time": func(c *Config) { c.MaxProcessTime = 50 },
		"registers":    func(c *Config) { c.RegisterLength = 4 },
	}
	for name, change := range changes {
		cfg := base
		change(&cfg)
		assert.NotEqual(t, base.ScoringDigest(), cfg.ScoringDigest(), name)
	}

	same := base
	same.UseCompile = !base.UseCompile
	same.Workers = 3
	same.Seed = 99
	same.MaxGenerations = 1
	assert.Equal(t, base.ScoringDigest(), same.ScoringDigest())
}
