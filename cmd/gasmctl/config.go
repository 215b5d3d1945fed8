package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gasm/internal/model"
)

type strategyConfig struct {
	Name  string   `json:"name" yaml:"name" toml:"name"`
	Param *float64 `json:"param,omitempty" yaml:"param,omitempty" toml:"param,omitempty"`
}

func (s *strategyConfig) params() []float64 {
	if s.Param == nil {
		return nil
	}
	return []float64{*s.Param}
}

// fileConfig is the on-disk run configuration. Absent keys keep the
// defaults.
type fileConfig struct {
	PopulationSize       *int     `json:"population_size" yaml:"population_size" toml:"population_size"`
	IndividualMaxSize    *int     `json:"individual_max_size" yaml:"individual_max_size" toml:"individual_max_size"`
	MutationProbability  *float64 `json:"mutation_probability" yaml:"mutation_probability" toml:"mutation_probability"`
	CrossoverProbability *float64 `json:"crossover_probability" yaml:"crossover_probability" toml:"crossover_probability"`
	MaxGenerations       *int     `json:"max_generations" yaml:"max_generations" toml:"max_generations"`
	GoalFitness          *float64 `json:"goal_fitness" yaml:"goal_fitness" toml:"goal_fitness"`
	Minimize             *bool    `json:"minimize" yaml:"minimize" toml:"minimize"`
	RegisterLength       *int     `json:"register_length" yaml:"register_length" toml:"register_length"`
	MaxProcessTime       *int     `json:"max_process_time" yaml:"max_process_time" toml:"max_process_time"`
	NaNPenalty           *float64 `json:"nan_penalty" yaml:"nan_penalty" toml:"nan_penalty"`
	CheckpointInterval   *int     `json:"checkpoint_interval" yaml:"checkpoint_interval" toml:"checkpoint_interval"`
	OutputFolder         *string  `json:"output_folder" yaml:"output_folder" toml:"output_folder"`
	EliteCount           *int     `json:"elite_count" yaml:"elite_count" toml:"elite_count"`
	Workers              *int     `json:"workers" yaml:"workers" toml:"workers"`
	Seed                 *uint64  `json:"seed" yaml:"seed" toml:"seed"`
	UseCompile           *bool    `json:"use_compile" yaml:"use_compile" toml:"use_compile"`

	Selection *strategyConfig `json:"selection" yaml:"selection" toml:"selection"`
	Grow      *strategyConfig `json:"grow" yaml:"grow" toml:"grow"`
	Mutation  *strategyConfig `json:"mutation" yaml:"mutation" toml:"mutation"`
	Crossover *strategyConfig `json:"crossover" yaml:"crossover" toml:"crossover"`
	Fitness   *strategyConfig `json:"fitness" yaml:"fitness" toml:"fitness"`
	CNG       *strategyConfig `json:"cng" yaml:"cng" toml:"cng"`
	RNG       *strategyConfig `json:"rng" yaml:"rng" toml:"rng"`
}

// loadConfigFile decodes path by extension: .json, .yaml/.yml or .toml.
// Unknown keys are rejected.
func loadConfigFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, err
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&fc); err != nil {
			return fileConfig{}, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil {
			return fileConfig{}, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return fileConfig{}, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fileConfig{}, fmt.Errorf("decode %s: unknown key %s", path, undecoded[0])
		}
	default:
		return fileConfig{}, fmt.Errorf("unsupported config format %q", ext)
	}
	return fc, nil
}

func (fc fileConfig) apply(cfg model.Config) (model.Config, error) {
	setInt(&cfg.PopulationSize, fc.PopulationSize)
	setInt(&cfg.IndividualMaxSize, fc.IndividualMaxSize)
	setFloat(&cfg.MutationProbability, fc.MutationProbability)
	setFloat(&cfg.CrossoverProbability, fc.CrossoverProbability)
	setInt(&cfg.MaxGenerations, fc.MaxGenerations)
	setFloat(&cfg.GoalFitness, fc.GoalFitness)
	if fc.Minimize != nil {
		cfg.Minimize = *fc.Minimize
	}
	setInt(&cfg.RegisterLength, fc.RegisterLength)
	setInt(&cfg.MaxProcessTime, fc.MaxProcessTime)
	setFloat(&cfg.NaNPenalty, fc.NaNPenalty)
	setInt(&cfg.CheckpointInterval, fc.CheckpointInterval)
	if fc.OutputFolder != nil {
		cfg.OutputFolder = *fc.OutputFolder
	}
	setInt(&cfg.EliteCount, fc.EliteCount)
	setInt(&cfg.Workers, fc.Workers)
	if fc.Seed != nil {
		cfg.Seed = *fc.Seed
	}
	if fc.UseCompile != nil {
		cfg.UseCompile = *fc.UseCompile
	}

	var err error
	if s := fc.Selection; s != nil {
		if cfg, err = cfg.WithSelection(s.Name, s.params()...); err != nil {
			return cfg, err
		}
	}
	if s := fc.Grow; s != nil {
		if cfg, err = cfg.WithGrow(s.Name, s.params()...); err != nil {
			return cfg, err
		}
	}
	if s := fc.Mutation; s != nil {
		if cfg, err = cfg.WithMutation(s.Name, s.params()...); err != nil {
			return cfg, err
		}
	}
	if s := fc.Crossover; s != nil {
		if cfg, err = cfg.WithCrossover(s.Name, s.params()...); err != nil {
			return cfg, err
		}
	}
	if s := fc.Fitness; s != nil {
		if s.Param != nil {
			return cfg, fmt.Errorf("%w: fitness %q takes no parameter", model.ErrConfiguration, s.Name)
		}
		if cfg, err = cfg.WithFitness(s.Name); err != nil {
			return cfg, err
		}
	}
	if s := fc.CNG; s != nil {
		if cfg, err = cfg.WithCNG(s.Name, s.params()...); err != nil {
			return cfg, err
		}
	}
	if s := fc.RNG; s != nil {
		if cfg, err = cfg.WithRNG(s.Name, s.params()...); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func loadOrDefaultConfig(path string) (model.Config, error) {
	cfg := model.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	fc, err := loadConfigFile(path)
	if err != nil {
		return model.Config{}, err
	}
	return fc.apply(cfg)
}

// overrideFromFlags applies the run flags the user set explicitly.
func overrideFromFlags(cmd *cobra.Command, cfg model.Config) (model.Config, error) {
	flags := cmd.Flags()
	ints := map[string]*int{
		"population":          &cfg.PopulationSize,
		"max-size":            &cfg.IndividualMaxSize,
		"generations":         &cfg.MaxGenerations,
		"workers":             &cfg.Workers,
		"elite":               &cfg.EliteCount,
		"checkpoint-interval": &cfg.CheckpointInterval,
	}
	for name, dst := range ints {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		v, err := flags.GetInt(name)
		if err != nil {
			return cfg, err
		}
		*dst = v
	}
	if f := flags.Lookup("seed"); f != nil && flags.Changed("seed") {
		v, err := flags.GetUint64("seed")
		if err != nil {
			return cfg, err
		}
		cfg.Seed = v
	}
	if f := flags.Lookup("goal"); f != nil && flags.Changed("goal") {
		v, err := flags.GetFloat64("goal")
		if err != nil {
			return cfg, err
		}
		cfg.GoalFitness = v
	}
	if f := flags.Lookup("output"); f != nil && flags.Changed("output") {
		v, err := flags.GetString("output")
		if err != nil {
			return cfg, err
		}
		cfg.OutputFolder = v
	}
	if f := flags.Lookup("selection"); f != nil && flags.Changed("selection") {
		name, param, err := parseStrategyFlag(f.Value.String())
		if err != nil {
			return cfg, err
		}
		if cfg, err = cfg.WithSelection(name, param...); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// parseStrategyFlag splits "Name" or "Name:param".
func parseStrategyFlag(raw string) (string, []float64, error) {
	name, paramText, ok := strings.Cut(raw, ":")
	if !ok {
		return name, nil, nil
	}
	param, err := strconv.ParseFloat(strings.TrimSpace(paramText), 64)
	if err != nil {
		return "", nil, fmt.Errorf("%w: bad strategy parameter %q", model.ErrConfiguration, paramText)
	}
	return name, []float64{param}, nil
}
