package evo

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gasm/internal/model"
)

// Picker draws one parent and returns its population index.
type Picker func(rng *rand.Rand) int

// Selector chooses parents from a ranked population. Prepare is called once
// per generation with the population ranked best first.
type Selector interface {
	Name() string
	Prepare(ranked []Scored, minimize bool) (Picker, error)
}

// NewSelector resolves a validated selection spec.
func NewSelector(spec model.SelectionSpec) (Selector, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case model.SelectionTournament:
		return TournamentSelector{Size: int(spec.Param)}, nil
	case model.SelectionTruncation:
		return TruncationSelector{Portion: spec.Param}, nil
	case model.SelectionBoltzmann:
		return BoltzmannSelector{Temperature: spec.Param}, nil
	case model.SelectionRank:
		return RankSelector{}, nil
	case model.SelectionRoulette:
		return RouletteSelector{}, nil
	}
	return nil, fmt.Errorf("%w: unknown selection %q", model.ErrConfiguration, spec.Kind)
}

// TournamentSelector samples Size individuals with replacement and keeps the
// fittest.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string { return string(model.SelectionTournament) }

func (s TournamentSelector) Prepare(ranked []Scored, _ bool) (Picker, error) {
	if err := requireRanked(ranked); err != nil {
		return nil, err
	}
	if s.Size < 1 {
		return nil, fmt.Errorf("%w: tournament size must be >= 1, got %d", model.ErrConfiguration, s.Size)
	}
	n := len(ranked)
	return func(rng *rand.Rand) int {
		// ranked is sorted, so the lowest sampled position is the winner
		best := rng.IntN(n)
		for i := 1; i < s.Size; i++ {
			if pos := rng.IntN(n); pos < best {
				best = pos
			}
		}
		return ranked[best].Index
	}, nil
}

// TruncationSelector samples uniformly from the best Portion of the
// population. Portion <= 1 is a fraction, larger values an absolute count.
type TruncationSelector struct {
	Portion float64
}

func (TruncationSelector) Name() string { return string(model.SelectionTruncation) }

func (s TruncationSelector) Prepare(ranked []Scored, _ bool) (Picker, error) {
	if err := requireRanked(ranked); err != nil {
		return nil, err
	}
	pool := TruncationPool(len(ranked), s.Portion)
	return func(rng *rand.Rand) int {
		return ranked[rng.IntN(pool)].Index
	}, nil
}

// TruncationPool is the candidate count kept by truncation selection.
func TruncationPool(n int, portion float64) int {
	var pool int
	if portion <= 1 {
		pool = int(float64(n) * portion)
	} else {
		pool = int(portion)
	}
	return max(1, min(pool, n))
}

// BoltzmannSelector weights each individual by exp(-d/T), where d is its
// fitness distance from the best.
type BoltzmannSelector struct {
	Temperature float64
}

func (BoltzmannSelector) Name() string { return string(model.SelectionBoltzmann) }

func (s BoltzmannSelector) Prepare(ranked []Scored, _ bool) (Picker, error) {
	if err := requireRanked(ranked); err != nil {
		return nil, err
	}
	if !(s.Temperature > 0) {
		return nil, fmt.Errorf("%w: boltzmann temperature must be > 0, got %v", model.ErrConfiguration, s.Temperature)
	}
	best := ranked[0].Fitness
	weights := make([]float64, len(ranked))
	for i, r := range ranked {
		weights[i] = math.Exp(-math.Abs(r.Fitness-best) / s.Temperature)
	}
	return weightedPicker(ranked, weights), nil
}

// RankSelector weights by rank position: best gets n, worst gets 1.
type RankSelector struct{}

func (RankSelector) Name() string { return string(model.SelectionRank) }

func (RankSelector) Prepare(ranked []Scored, _ bool) (Picker, error) {
	if err := requireRanked(ranked); err != nil {
		return nil, err
	}
	weights := make([]float64, len(ranked))
	for i := range ranked {
		weights[i] = float64(len(ranked) - i)
	}
	return weightedPicker(ranked, weights), nil
}

// RouletteSelector weights by fitness shifted to be non-negative, inverted
// when minimizing. Non-finite fitness gets no weight.
type RouletteSelector struct{}

func (RouletteSelector) Name() string { return string(model.SelectionRoulette) }

const rouletteEpsilon = 1e-12

func (RouletteSelector) Prepare(ranked []Scored, minimize bool) (Picker, error) {
	if err := requireRanked(ranked); err != nil {
		return nil, err
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range ranked {
		if isFinite(r.Fitness) {
			lo = math.Min(lo, r.Fitness)
			hi = math.Max(hi, r.Fitness)
		}
	}
	weights := make([]float64, len(ranked))
	for i, r := range ranked {
		if !isFinite(r.Fitness) {
			continue
		}
		if minimize {
			weights[i] = hi - r.Fitness + rouletteEpsilon
		} else {
			weights[i] = r.Fitness - lo + rouletteEpsilon
		}
	}
	return weightedPicker(ranked, weights), nil
}

// weightedPicker samples proportionally to weights, falling back to uniform
// when no weight is usable.
func weightedPicker(ranked []Scored, weights []float64) Picker {
	cumulative := make([]float64, len(weights))
	total := 0.0
	for i, w := range weights {
		if w > 0 && !math.IsInf(w, 0) {
			total += w
		}
		cumulative[i] = total
	}
	if !(total > 0) || math.IsInf(total, 0) {
		return func(rng *rand.Rand) int {
			return ranked[rng.IntN(len(ranked))].Index
		}
	}
	return func(rng *rand.Rand) int {
		x := rng.Float64() * total
		i := sort.Search(len(cumulative), func(i int) bool { return cumulative[i] > x })
		if i == len(cumulative) {
			i--
		}
		return ranked[i].Index
	}
}

func requireRanked(ranked []Scored) error {
	if len(ranked) == 0 {
		return fmt.Errorf("%w: cannot select from an empty population", model.ErrInvariant)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
