package model

import (
	"fmt"
	"math"
	"strings"
)

type SelectionKind string

const (
	SelectionTournament SelectionKind = "Tournament"
	SelectionTruncation SelectionKind = "Truncation"
	SelectionBoltzmann  SelectionKind = "Boltzmann"
	SelectionRank       SelectionKind = "Rank"
	SelectionRoulette   SelectionKind = "Roulette"
)

type GrowKind string

const (
	GrowSize GrowKind = "Size"
	GrowFull GrowKind = "Full"
	GrowTree GrowKind = "Tree"
)

type MutationKind string

const (
	MutationHard MutationKind = "Hard"
	MutationSoft MutationKind = "Soft"
)

type CrossoverKind string

const (
	CrossoverOnePoint     CrossoverKind = "OnePoint"
	CrossoverTwoPoint     CrossoverKind = "TwoPoint"
	CrossoverTwoPointSize CrossoverKind = "TwoPointSize"
	CrossoverUniform      CrossoverKind = "Uniform"
)

type FitnessKind string

const (
	FitnessAbsolute     FitnessKind = "Absolute"
	FitnessAnyPosition  FitnessKind = "AnyPosition"
	FitnessIntegerWrite FitnessKind = "IntegerWrite"
)

type GeneratorKind string

const (
	GeneratorIncrement GeneratorKind = "increment"
	GeneratorConstant  GeneratorKind = "constant"
	GeneratorRandom    GeneratorKind = "random"
)

const maxGrowDepth = 16

// SelectionSpec is a validated selection variant and its parameter.
type SelectionSpec struct {
	Kind  SelectionKind `json:"kind" yaml:"kind" toml:"kind"`
	Param float64       `json:"param,omitempty" yaml:"param,omitempty" toml:"param,omitempty"`
}

type GrowSpec struct {
	Kind  GrowKind `json:"kind" yaml:"kind" toml:"kind"`
	Param int      `json:"param,omitempty" yaml:"param,omitempty" toml:"param,omitempty"`
}

type MutationSpec struct {
	Kind MutationKind `json:"kind" yaml:"kind" toml:"kind"`
}

type CrossoverSpec struct {
	Kind CrossoverKind `json:"kind" yaml:"kind" toml:"kind"`
}

type FitnessSpec struct {
	Kind FitnessKind `json:"kind" yaml:"kind" toml:"kind"`
}

// GeneratorSpec configures a literal source. Param is the start value for
// increment/constant and the seed for random.
type GeneratorSpec struct {
	Kind  GeneratorKind `json:"kind" yaml:"kind" toml:"kind"`
	Param float64       `json:"param" yaml:"param" toml:"param"`
}

func ParseSelection(name string, param ...float64) (SelectionSpec, error) {
	kind, err := matchName("selection", name, SelectionTournament, SelectionTruncation, SelectionBoltzmann, SelectionRank, SelectionRoulette)
	if err != nil {
		return SelectionSpec{}, err
	}
	p, err := optionalParam("selection", name, param)
	if err != nil {
		return SelectionSpec{}, err
	}
	spec := SelectionSpec{Kind: kind}
	switch kind {
	case SelectionTournament:
		spec.Param = orDefault(p, 2)
	case SelectionTruncation:
		spec.Param = orDefault(p, 0.5)
	case SelectionBoltzmann:
		spec.Param = orDefault(p, 1)
	case SelectionRank, SelectionRoulette:
		if p != nil {
			return SelectionSpec{}, fmt.Errorf("%w: selection %q takes no parameter", ErrConfiguration, name)
		}
	}
	return spec, spec.Validate()
}

func (s SelectionSpec) Validate() error {
	switch s.Kind {
	case SelectionTournament:
		if s.Param < 1 || !isInteger(s.Param) {
			return fmt.Errorf("%w: tournament size must be a positive integer, got %v", ErrConfiguration, s.Param)
		}
	case SelectionTruncation:
		if !(s.Param > 0) || math.IsInf(s.Param, 0) || (s.Param > 1 && !isInteger(s.Param)) {
			return fmt.Errorf("%w: truncation needs a fraction in (0,1] or an integer count, got %v", ErrConfiguration, s.Param)
		}
	case SelectionBoltzmann:
		if !(s.Param > 0) || math.IsInf(s.Param, 0) {
			return fmt.Errorf("%w: boltzmann temperature must be positive, got %v", ErrConfiguration, s.Param)
		}
	case SelectionRank, SelectionRoulette:
		if s.Param != 0 {
			return fmt.Errorf("%w: selection %q takes no parameter, got %v", ErrConfiguration, s.Kind, s.Param)
		}
	default:
		return unknownStrategy("selection", string(s.Kind))
	}
	return nil
}

func ParseGrow(name string, param ...float64) (GrowSpec, error) {
	kind, err := matchName("grow", name, GrowSize, GrowFull, GrowTree)
	if err != nil {
		return GrowSpec{}, err
	}
	p, err := optionalParam("grow", name, param)
	if err != nil {
		return GrowSpec{}, err
	}
	value := orDefault(p, 0)
	if kind == GrowTree && p == nil {
		value = 3
	}
	if !isInteger(value) || value < 0 || value > math.MaxInt32 {
		return GrowSpec{}, fmt.Errorf("%w: grow %s parameter must be a non-negative integer, got %v", ErrConfiguration, kind, value)
	}
	spec := GrowSpec{Kind: kind, Param: int(value)}
	return spec, spec.Validate()
}

// Validate checks the grow parameter. Size(0) means "the whole budget".
func (s GrowSpec) Validate() error {
	switch s.Kind {
	case GrowSize:
		if s.Param < 0 {
			return fmt.Errorf("%w: grow size limit must be non-negative, got %d", ErrConfiguration, s.Param)
		}
	case GrowFull, GrowTree:
		if s.Param < 0 || s.Param > maxGrowDepth {
			return fmt.Errorf("%w: grow depth must be in [0,%d], got %d", ErrConfiguration, maxGrowDepth, s.Param)
		}
	default:
		return unknownStrategy("grow", string(s.Kind))
	}
	return nil
}

func ParseMutation(name string, param ...float64) (MutationSpec, error) {
	kind, err := matchName("mutation", name, MutationHard, MutationSoft)
	if err != nil {
		return MutationSpec{}, err
	}
	if _, err := optionalParam("mutation", name, param); err != nil {
		return MutationSpec{}, err
	}
	return MutationSpec{Kind: kind}, nil
}

func (s MutationSpec) Validate() error {
	switch s.Kind {
	case MutationHard, MutationSoft:
		return nil
	}
	return unknownStrategy("mutation", string(s.Kind))
}

func ParseCrossover(name string, param ...float64) (CrossoverSpec, error) {
	kind, err := matchName("crossover", name, CrossoverOnePoint, CrossoverTwoPoint, CrossoverTwoPointSize, CrossoverUniform)
	if err != nil {
		return CrossoverSpec{}, err
	}
	if _, err := optionalParam("crossover", name, param); err != nil {
		return CrossoverSpec{}, err
	}
	return CrossoverSpec{Kind: kind}, nil
}

func (s CrossoverSpec) Validate() error {
	switch s.Kind {
	case CrossoverOnePoint, CrossoverTwoPoint, CrossoverTwoPointSize, CrossoverUniform:
		return nil
	}
	return unknownStrategy("crossover", string(s.Kind))
}

func ParseFitness(name string) (FitnessSpec, error) {
	kind, err := matchName("fitness", name, FitnessAbsolute, FitnessAnyPosition, FitnessIntegerWrite)
	if err != nil {
		return FitnessSpec{}, err
	}
	return FitnessSpec{Kind: kind}, nil
}

func (s FitnessSpec) Validate() error {
	switch s.Kind {
	case FitnessAbsolute, FitnessAnyPosition, FitnessIntegerWrite:
		return nil
	}
	return unknownStrategy("fitness", string(s.Kind))
}

// ParseCNG accepts the constant-number-generator variants.
func ParseCNG(name string, param ...float64) (GeneratorSpec, error) {
	kind, err := matchName("cng", name, GeneratorIncrement, GeneratorConstant)
	if err != nil {
		return GeneratorSpec{}, err
	}
	return newGeneratorSpec("cng", name, kind, param)
}

// ParseRNG accepts the random-number-generator variants.
func ParseRNG(name string, param ...float64) (GeneratorSpec, error) {
	kind, err := matchName("rng", name, GeneratorRandom, GeneratorConstant, GeneratorIncrement)
	if err != nil {
		return GeneratorSpec{}, err
	}
	return newGeneratorSpec("rng", name, kind, param)
}

func newGeneratorSpec(family, name string, kind GeneratorKind, param []float64) (GeneratorSpec, error) {
	p, err := optionalParam(family, name, param)
	if err != nil {
		return GeneratorSpec{}, err
	}
	spec := GeneratorSpec{Kind: kind, Param: orDefault(p, 0)}
	return spec, spec.Validate()
}

func (s GeneratorSpec) Validate() error {
	if math.IsNaN(s.Param) || math.IsInf(s.Param, 0) {
		return fmt.Errorf("%w: generator parameter must be finite, got %v", ErrConfiguration, s.Param)
	}
	switch s.Kind {
	case GeneratorIncrement, GeneratorConstant:
		return nil
	case GeneratorRandom:
		if s.Param < 0 || !isInteger(s.Param) || s.Param > 1<<53 {
			return fmt.Errorf("%w: random generator seed must be a non-negative integer, got %v", ErrConfiguration, s.Param)
		}
		return nil
	}
	return unknownStrategy("generator", string(s.Kind))
}

func (s SelectionSpec) String() string {
	switch s.Kind {
	case SelectionRank, SelectionRoulette:
		return string(s.Kind)
	}
	return fmt.Sprintf("%s(%g)", s.Kind, s.Param)
}

func (s GrowSpec) String() string { return fmt.Sprintf("%s(%d)", s.Kind, s.Param) }

func (s GeneratorSpec) String() string { return fmt.Sprintf("%s(%g)", s.Kind, s.Param) }

func matchName[K ~string](family, name string, kinds ...K) (K, error) {
	normalized := strings.TrimSpace(name)
	for _, kind := range kinds {
		if strings.EqualFold(normalized, string(kind)) {
			return kind, nil
		}
	}
	var zero K
	return zero, unknownStrategy(family, name)
}

func optionalParam(family, name string, param []float64) (*float64, error) {
	switch len(param) {
	case 0:
		return nil, nil
	case 1:
		if math.IsNaN(param[0]) {
			return nil, fmt.Errorf("%w: %s %s parameter is NaN", ErrConfiguration, family, name)
		}
		return &param[0], nil
	default:
		return nil, fmt.Errorf("%w: %s %s takes at most one parameter, got %d", ErrConfiguration, family, name, len(param))
	}
}

func unknownStrategy(family, name string) error {
	return fmt.Errorf("%w: unknown %s strategy %q", ErrConfiguration, family, name)
}

func orDefault(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

func isInteger(v float64) bool {
	return !math.IsInf(v, 0) && v == math.Trunc(v)
}
