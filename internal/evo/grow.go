package evo

import (
	"fmt"
	"math/rand/v2"

	"gasm/internal/model"
	"gasm/internal/numgen"
	"gasm/internal/vm"
)

// Literals supplies values for literal-bearing instructions: SET draws from
// CNG, RNG from RNG.
type Literals struct {
	CNG numgen.Generator
	RNG numgen.Generator
}

// Instruction builds op with a freshly drawn literal when it carries one.
func (l Literals) Instruction(op vm.Opcode) vm.Instruction {
	in := vm.Instruction{Op: op}
	switch op {
	case vm.OpSet:
		in.Literal = l.CNG.Next()
	case vm.OpRng:
		in.Literal = l.RNG.Next()
	}
	return in
}

var (
	allOps    = vm.Opcodes()
	openerOps = vm.Openers()
	plainOps  = vm.Plain()
)

// Grower synthesizes new instruction sequences of at most budget
// instructions.
type Grower interface {
	Name() string
	Grow(rng *rand.Rand, lits Literals, budget int) vm.Program
}

func NewGrower(spec model.GrowSpec) (Grower, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case model.GrowSize:
		return SizeGrower{Limit: spec.Param}, nil
	case model.GrowFull:
		return TreeGrower{Depth: spec.Param, Full: true}, nil
	case model.GrowTree:
		return TreeGrower{Depth: spec.Param}, nil
	}
	return nil, fmt.Errorf("%w: unknown grow %q", model.ErrConfiguration, spec.Kind)
}

// SizeGrower emits exactly min(Limit, budget) uniformly random instructions.
// A zero Limit uses the whole budget.
type SizeGrower struct {
	Limit int
}

func (SizeGrower) Name() string { return string(model.GrowSize) }

func (g SizeGrower) Grow(rng *rand.Rand, lits Literals, budget int) vm.Program {
	n := budget
	if g.Limit > 0 && g.Limit < n {
		n = g.Limit
	}
	if n <= 0 {
		return vm.Program{}
	}
	prog := make(vm.Program, n)
	for i := range prog {
		prog[i] = lits.Instruction(allOps[rng.IntN(len(allOps))])
	}
	return prog
}

// TreeGrower builds nested blocks up to Depth levels. Full forces every node
// above depth zero to be a block and keeps adding trees until the budget is
// used; otherwise a single tree is grown and inner nodes become blocks with
// probability 1/4. Full at depth zero is a flat fill over every opcode, so
// openers and END can still appear unbalanced.
type TreeGrower struct {
	Depth int
	Full  bool
}

func (g TreeGrower) Name() string {
	if g.Full {
		return string(model.GrowFull)
	}
	return string(model.GrowTree)
}

func (g TreeGrower) Grow(rng *rand.Rand, lits Literals, budget int) vm.Program {
	if g.Full && g.Depth == 0 {
		return SizeGrower{}.Grow(rng, lits, budget)
	}
	b := &treeBuilder{rng: rng, lits: lits, budget: budget, full: g.Full}
	if g.Full {
		for b.room() > 0 {
			b.node(g.Depth, true)
		}
	} else {
		b.node(g.Depth, true)
	}
	if b.prog == nil {
		return vm.Program{}
	}
	return b.prog
}

type treeBuilder struct {
	rng     *rand.Rand
	lits    Literals
	prog    vm.Program
	budget  int
	pending int // ENDs still owed by open blocks
	full    bool
}

func (b *treeBuilder) room() int { return b.budget - len(b.prog) - b.pending }

func (b *treeBuilder) node(depth int, root bool) {
	block := depth > 0 && (b.full || root || b.rng.IntN(4) == 0)
	if block && b.room() >= 2 {
		b.prog = append(b.prog, vm.Instruction{Op: openerOps[b.rng.IntN(len(openerOps))]})
		b.pending++
		children := 1 + b.rng.IntN(4)
		for c := 0; c < children && b.room() > 0; c++ {
			b.node(depth-1, false)
		}
		b.pending--
		b.prog = append(b.prog, vm.Instruction{Op: vm.OpEnd})
	}
	if b.room() > 0 {
		b.leaf()
	}
}

func (b *treeBuilder) leaf() {
	b.prog = append(b.prog, b.lits.Instruction(plainOps[b.rng.IntN(len(plainOps))]))
}
