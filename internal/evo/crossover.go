package evo

import (
	"fmt"
	"math/rand/v2"

	"gasm/internal/model"
	"gasm/internal/vm"
)

// Crossover combines two parents into one offspring no longer than maxSize,
// given parents that already fit. Parents are never modified.
type Crossover interface {
	Name() string
	Cross(rng *rand.Rand, a, b vm.Program, maxSize int) vm.Program
}

func NewCrossover(spec model.CrossoverSpec) (Crossover, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case model.CrossoverOnePoint:
		return OnePointCrossover{}, nil
	case model.CrossoverTwoPoint:
		return TwoPointCrossover{}, nil
	case model.CrossoverTwoPointSize:
		return TwoPointSizeCrossover{}, nil
	case model.CrossoverUniform:
		return UniformCrossover{}, nil
	}
	return nil, fmt.Errorf("%w: unknown crossover %q", model.ErrConfiguration, spec.Kind)
}

// OnePointCrossover joins a's head to b's tail at a shared cut point.
type OnePointCrossover struct{}

func (OnePointCrossover) Name() string { return string(model.CrossoverOnePoint) }

func (OnePointCrossover) Cross(rng *rand.Rand, a, b vm.Program, _ int) vm.Program {
	shared := min(len(a), len(b))
	if shared == 0 {
		return a.Clone()
	}
	cut := rng.IntN(shared + 1)
	return concat(a[:cut], b[cut:])
}

// TwoPointCrossover swaps the segment between two shared cut points into a.
type TwoPointCrossover struct{}

func (TwoPointCrossover) Name() string { return string(model.CrossoverTwoPoint) }

func (TwoPointCrossover) Cross(rng *rand.Rand, a, b vm.Program, _ int) vm.Program {
	shared := min(len(a), len(b))
	if shared == 0 {
		return a.Clone()
	}
	lo, hi := rng.IntN(shared+1), rng.IntN(shared+1)
	if lo > hi {
		lo, hi = hi, lo
	}
	return concat(a[:lo], b[lo:hi], a[hi:])
}

// TwoPointSizeCrossover replaces a segment of a with a segment of b of a
// possibly different length. The donor segment length is drawn from a range
// already capped by maxSize.
type TwoPointSizeCrossover struct{}

func (TwoPointSizeCrossover) Name() string { return string(model.CrossoverTwoPointSize) }

func (TwoPointSizeCrossover) Cross(rng *rand.Rand, a, b vm.Program, maxSize int) vm.Program {
	if len(a) == 0 || len(b) == 0 {
		return a.Clone()
	}
	cutStart := rng.IntN(len(a) + 1)
	cutEnd := cutStart + rng.IntN(len(a)-cutStart+1)
	kept := len(a) - (cutEnd - cutStart)

	donorStart := rng.IntN(len(b) + 1)
	longest := max(0, min(len(b)-donorStart, maxSize-kept))
	donorEnd := donorStart + rng.IntN(longest+1)

	return concat(a[:cutStart], b[donorStart:donorEnd], a[cutEnd:])
}

// UniformCrossover picks each overlapping position from either parent; the
// longer parent supplies the tail, a on ties.
type UniformCrossover struct{}

func (UniformCrossover) Name() string { return string(model.CrossoverUniform) }

func (UniformCrossover) Cross(rng *rand.Rand, a, b vm.Program, _ int) vm.Program {
	shared := min(len(a), len(b))
	if shared == 0 {
		return a.Clone()
	}
	out := make(vm.Program, 0, max(len(a), len(b)))
	for i := 0; i < shared; i++ {
		if rng.IntN(2) == 0 {
			out = append(out, a[i])
		} else {
			out = append(out, b[i])
		}
	}
	longer := a
	if len(b) > len(a) {
		longer = b
	}
	return append(out, longer[shared:]...)
}

func concat(parts ...vm.Program) vm.Program {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make(vm.Program, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
