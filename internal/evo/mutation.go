package evo

import (
	"fmt"
	"math/rand/v2"

	"gasm/internal/model"
	"gasm/internal/vm"
)

// Mutator perturbs a program. Each position is considered independently with
// probability p; the input program is never modified and the result never
// exceeds maxSize.
type Mutator interface {
	Name() string
	Mutate(rng *rand.Rand, lits Literals, prog vm.Program, p float64, maxSize int) vm.Program
}

func NewMutator(spec model.MutationSpec, grower Grower) (Mutator, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case model.MutationHard:
		if grower == nil {
			return nil, fmt.Errorf("%w: hard mutation requires a grower", model.ErrConfiguration)
		}
		return HardMutation{Grower: grower}, nil
	case model.MutationSoft:
		return SoftMutation{}, nil
	}
	return nil, fmt.Errorf("%w: unknown mutation %q", model.ErrConfiguration, spec.Kind)
}

const (
	maxHardRegion = 4
	hardGrowth    = 2
)

// HardMutation replaces short regions with freshly grown fragments, so it
// can change both control flow and length.
type HardMutation struct {
	Grower Grower
}

func (HardMutation) Name() string { return string(model.MutationHard) }

func (m HardMutation) Mutate(rng *rand.Rand, lits Literals, prog vm.Program, p float64, maxSize int) vm.Program {
	out := make(vm.Program, 0, max(len(prog), 1))
	for i := 0; i < len(prog); {
		if rng.Float64() >= p {
			out = append(out, prog[i])
			i++
			continue
		}
		region := 1 + rng.IntN(min(maxHardRegion, len(prog)-i))
		tail := len(prog) - i - region
		room := maxSize - len(out) - tail
		fragment := m.Grower.Grow(rng, lits, min(region+hardGrowth, room))
		out = append(out, fragment...)
		i += region
	}
	return out
}

// SoftMutation keeps the instruction count. Literal-bearing instructions get
// a new literal; others switch to a sibling opcode of the same group and
// structural role.
type SoftMutation struct{}

func (SoftMutation) Name() string { return string(model.MutationSoft) }

func (SoftMutation) Mutate(rng *rand.Rand, lits Literals, prog vm.Program, p float64, _ int) vm.Program {
	out := prog.Clone()
	for i, in := range out {
		if rng.Float64() >= p {
			continue
		}
		if in.Op.Info().Literal {
			out[i] = lits.Instruction(in.Op)
			continue
		}
		siblings := softSiblings[in.Op]
		if len(siblings) == 0 {
			continue
		}
		out[i] = lits.Instruction(siblings[rng.IntN(len(siblings))])
	}
	return out
}

// softSiblings maps each opcode to the group members sharing its role.
var softSiblings = func() map[vm.Opcode][]vm.Opcode {
	role := func(op vm.Opcode) int {
		switch {
		case op == vm.OpEnd:
			return 2
		case op.Info().Opener:
			return 1
		}
		return 0
	}
	out := make(map[vm.Opcode][]vm.Opcode)
	for _, op := range vm.Opcodes() {
		for _, sib := range op.Siblings() {
			if role(sib) == role(op) {
				out[op] = append(out[op], sib)
			}
		}
	}
	return out
}()
