package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

var configValidate = validator.New()

// Config holds the hyperparameters of one evolve call. It is a value: the
// With* builders return modified copies.
type Config struct {
	PopulationSize       int     `json:"populationSize" yaml:"populationSize" toml:"populationSize" validate:"gt=0"`
	IndividualMaxSize    int     `json:"individualMaxSize" yaml:"individualMaxSize" toml:"individualMaxSize" validate:"gt=0"`
	MutationProbability  float64 `json:"mutationProbability" yaml:"mutationProbability" toml:"mutationProbability" validate:"gte=0,lte=1"`
	CrossoverProbability float64 `json:"crossoverProbability" yaml:"crossoverProbability" toml:"crossoverProbability" validate:"gte=0,lte=1"`
	MaxGenerations       int     `json:"maxGenerations" yaml:"maxGenerations" toml:"maxGenerations" validate:"gte=0"`
	GoalFitness          float64 `json:"goalFitness" yaml:"goalFitness" toml:"goalFitness"`
	Minimize             bool    `json:"minimize" yaml:"minimize" toml:"minimize"`
	RegisterLength       int     `json:"registerLength" yaml:"registerLength" toml:"registerLength" validate:"gt=0"`
	MaxProcessTime       int     `json:"maxProcessTime" yaml:"maxProcessTime" toml:"maxProcessTime" validate:"gt=0"`
	NaNPenalty           float64 `json:"nanPenalty" yaml:"nanPenalty" toml:"nanPenalty"`
	CheckpointInterval   int     `json:"checkPointInterval" yaml:"checkPointInterval" toml:"checkPointInterval" validate:"gte=0"`
	OutputFolder         string  `json:"outputFolder" yaml:"outputFolder" toml:"outputFolder"`
	EliteCount           int     `json:"eliteCount" yaml:"eliteCount" toml:"eliteCount" validate:"gte=1"`
	Workers              int     `json:"workers" yaml:"workers" toml:"workers" validate:"gte=0"`
	Seed                 uint64  `json:"seed" yaml:"seed" toml:"seed"`
	UseCompile           bool    `json:"useCompile" yaml:"useCompile" toml:"useCompile"`

	Selection SelectionSpec `json:"selection" yaml:"selection" toml:"selection"`
	Grow      GrowSpec      `json:"grow" yaml:"grow" toml:"grow"`
	Mutation  MutationSpec  `json:"mutation" yaml:"mutation" toml:"mutation"`
	Crossover CrossoverSpec `json:"crossover" yaml:"crossover" toml:"crossover"`
	Fitness   FitnessSpec   `json:"fitness" yaml:"fitness" toml:"fitness"`
	CNG       GeneratorSpec `json:"cng" yaml:"cng" toml:"cng"`
	RNG       GeneratorSpec `json:"rng" yaml:"rng" toml:"rng"`
}

func DefaultConfig() Config {
	return Config{
		PopulationSize:       1000,
		IndividualMaxSize:    30,
		MutationProbability:  0.05,
		CrossoverProbability: 0.9,
		MaxGenerations:       5,
		GoalFitness:          0,
		Minimize:             true,
		RegisterLength:       10,
		MaxProcessTime:       1000,
		NaNPenalty:           1e6,
		EliteCount:           1,
		Seed:                 1,
		UseCompile:           true,
		Selection:            SelectionSpec{Kind: SelectionTournament, Param: 2},
		Grow:                 GrowSpec{Kind: GrowFull},
		Mutation:             MutationSpec{Kind: MutationHard},
		Crossover:            CrossoverSpec{Kind: CrossoverOnePoint},
		Fitness:              FitnessSpec{Kind: FitnessAbsolute},
		CNG:                  GeneratorSpec{Kind: GeneratorIncrement},
		RNG:                  GeneratorSpec{Kind: GeneratorRandom},
	}
}

// ScoringDigest fingerprints the fields that change what a fitness value
// means. Cached fitness is only valid for the digest it was computed under.
// UseCompile is left out: both execution paths produce identical results.
func (c Config) ScoringDigest() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	_, _ = h.Write([]byte(c.Fitness.Kind))
	put(math.Float64bits(c.NaNPenalty))
	put(uint64(c.MaxProcessTime))
	put(uint64(c.RegisterLength))
	return h.Sum64()
}

// Validate reports the first problem found as an ErrConfiguration.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, describeValidation(err))
	}
	finite := []struct {
		name  string
		value float64
	}{
		{"goalFitness", c.GoalFitness},
		{"nanPenalty", c.NaNPenalty},
	}
	for _, f := range finite {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrConfiguration, f.name, f.value)
		}
	}
	if c.EliteCount > c.PopulationSize {
		return fmt.Errorf("%w: eliteCount %d exceeds populationSize %d", ErrConfiguration, c.EliteCount, c.PopulationSize)
	}
	if c.CheckpointInterval > 0 && strings.TrimSpace(c.OutputFolder) == "" {
		return fmt.Errorf("%w: outputFolder is required when checkPointInterval > 0", ErrConfiguration)
	}

	checks := []func() error{
		c.Selection.Validate,
		c.Grow.Validate,
		c.Mutation.Validate,
		c.Crossover.Validate,
		c.Fitness.Validate,
		c.CNG.Validate,
		c.RNG.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	if c.CNG.Kind == GeneratorRandom {
		return fmt.Errorf("%w: cng does not support %q", ErrConfiguration, c.CNG.Kind)
	}
	return nil
}

func (c Config) WithSelection(name string, param ...float64) (Config, error) {
	spec, err := ParseSelection(name, param...)
	if err != nil {
		return c, err
	}
	c.Selection = spec
	return c, nil
}

func (c Config) WithGrow(name string, param ...float64) (Config, error) {
	spec, err := ParseGrow(name, param...)
	if err != nil {
		return c, err
	}
	c.Grow = spec
	return c, nil
}

func (c Config) WithMutation(name string, param ...float64) (Config, error) {
	spec, err := ParseMutation(name, param...)
	if err != nil {
		return c, err
	}
	c.Mutation = spec
	return c, nil
}

func (c Config) WithCrossover(name string, param ...float64) (Config, error) {
	spec, err := ParseCrossover(name, param...)
	if err != nil {
		return c, err
	}
	c.Crossover = spec
	return c, nil
}

func (c Config) WithFitness(name string) (Config, error) {
	spec, err := ParseFitness(name)
	if err != nil {
		return c, err
	}
	c.Fitness = spec
	return c, nil
}

func (c Config) WithCNG(name string, param ...float64) (Config, error) {
	spec, err := ParseCNG(name, param...)
	if err != nil {
		return c, err
	}
	c.CNG = spec
	return c, nil
}

func (c Config) WithRNG(name string, param ...float64) (Config, error) {
	spec, err := ParseRNG(name, param...)
	if err != nil {
		return c, err
	}
	c.RNG = spec
	return c, nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
