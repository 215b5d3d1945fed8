package evo

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gasm/internal/model"
	"gasm/internal/numgen"
	"gasm/internal/vm"
)

func testLiterals(t *testing.T) Literals {
	t.Helper()
	cng, err := numgen.New(model.GeneratorSpec{Kind: model.GeneratorIncrement})
	require.NoError(t, err)
	rng, err := numgen.New(model.GeneratorSpec{Kind: model.GeneratorRandom, Param: 9})
	require.NoError(t, err)
	return Literals{CNG: cng, RNG: rng}
}

func allGrowers() []Grower {
	return []Grower{
		SizeGrower{},
		SizeGrower{Limit: 3},
		TreeGrower{Depth: 0, Full: true},
		TreeGrower{Depth: 3, Full: true},
		TreeGrower{Depth: 4},
	}
}

func TestGrowersRespectBudget(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	lits := testLiterals(t)
	for _, g := range allGrowers() {
		for budget := 0; budget <= 20; budget++ {
			for trial := 0; trial < 20; trial++ {
				prog := g.Grow(rng, lits, budget)
				require.LessOrEqual(t, len(prog), budget, "%s budget=%d", g.Name(), budget)
				require.NoError(t, prog.Validate(budget))
			}
		}
	}
}

func TestFullGrowFillsBudget(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	lits := testLiterals(t)
	for budget := 1; budget <= 15; budget++ {
		prog := TreeGrower{Depth: 2, Full: true}.Grow(rng, lits, budget)
		assert.Len(t, prog, budget)
	}
	assert.Len(t, SizeGrower{Limit: 4}.Grow(rng, lits, 10), 4)
}

func TestFlatFullGrowAndHardMutationEmitControlFlow(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	lits := testLiterals(t)
	flat := TreeGrower{Depth: 0, Full: true}
	hard := HardMutation{Grower: flat}

	structural := func(prog vm.Program) int {
		n := 0
		for _, in := range prog {
			if in.Op == vm.OpEnd || in.Op.Info().Opener {
				n++
			}
		}
		return n
	}
	grown, mutated := 0, 0
	plain := make(vm.Program, 10)
	for i := range plain {
		plain[i] = vm.Instruction{Op: vm.OpInc}
	}
	for trial := 0; trial < 50; trial++ {
		prog := flat.Grow(rng, lits, 10)
		assert.Len(t, prog, 10)
		grown += structural(prog)
		mutated += structural(hard.Mutate(rng, lits, plain, 1, 12))
	}
	assert.Positive(t, grown)
	assert.Positive(t, mutated)
}

func TestTreeGrowClosesEveryBlock(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	lits := testLiterals(t)
	for trial := 0; trial < 200; trial++ {
		prog := TreeGrower{Depth: 3, Full: true}.Grow(rng, lits, 30)
		depth := 0
		for _, in := range prog {
			switch {
			case in.Op.Info().Opener:
				depth++
			case in.Op == vm.OpEnd:
				depth--
			}
			require.GreaterOrEqual(t, depth, 0)
		}
		require.Zero(t, depth)
	}
}

func TestGrowDrawsLiterals(t *testing.T) {
	lits := testLiterals(t)
	set := lits.Instruction(vm.OpSet)
	next := lits.Instruction(vm.OpSet)
	assert.Equal(t, 0.0, set.Literal)
	assert.Equal(t, 1.0, next.Literal)

	r := lits.Instruction(vm.OpRng)
	assert.GreaterOrEqual(t, r.Literal, 0.0)
	assert.Less(t, r.Literal, 1.0)
	assert.Zero(t, lits.Instruction(vm.OpEnd).Literal)
}

func TestMutatorsRespectMaxSize(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	lits := testLiterals(t)
	const maxSize = 10
	for _, g := range allGrowers() {
		mutators := []Mutator{HardMutation{Grower: g}, SoftMutation{}}
		for _, mut := range mutators {
			for trial := 0; trial < 200; trial++ {
				parent := SizeGrower{}.Grow(rng, lits, rng.IntN(maxSize+1))
				before := parent.Clone()
				child := mut.Mutate(rng, lits, parent, 0.5, maxSize)
				require.LessOrEqual(t, len(child), maxSize, "%s/%s", mut.Name(), g.Name())
				require.Equal(t, before, parent, "parent modified")
			}
		}
	}
}

func TestMutationWithZeroProbabilityIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	lits := testLiterals(t)
	parent := SizeGrower{}.Grow(rng, lits, 8)
	assert.Equal(t, parent, HardMutation{Grower: SizeGrower{}}.Mutate(rng, lits, parent, 0, 8))
	assert.Equal(t, parent, SoftMutation{}.Mutate(rng, lits, parent, 0, 8))
}

func TestSoftMutationKeepsStructure(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	lits := testLiterals(t)
	for trial := 0; trial < 100; trial++ {
		parent := TreeGrower{Depth: 3, Full: true}.Grow(rng, lits, 20)
		child := SoftMutation{}.Mutate(rng, lits, parent, 1, 20)
		require.Len(t, child, len(parent))
		for i := range parent {
			assert.Equal(t, parent[i].Op == vm.OpEnd, child[i].Op == vm.OpEnd)
			assert.Equal(t, parent[i].Op.Info().Opener, child[i].Op.Info().Opener)
			assert.Equal(t, parent[i].Op.Group(), child[i].Op.Group())
		}
	}
}

func TestCrossoversRespectMaxSize(t *testing.T) {
	rng := rand.New(rand.NewPCG(13, 14))
	lits := testLiterals(t)
	const maxSize = 12
	crossovers := []Crossover{OnePointCrossover{}, TwoPointCrossover{}, TwoPointSizeCrossover{}, UniformCrossover{}}
	for _, c := range crossovers {
		for trial := 0; trial < 300; trial++ {
			a := SizeGrower{}.Grow(rng, lits, rng.IntN(maxSize+1))
			b := SizeGrower{}.Grow(rng, lits, rng.IntN(maxSize+1))
			aBefore, bBefore := a.Clone(), b.Clone()
			child := c.Cross(rng, a, b, maxSize)
			require.LessOrEqual(t, len(child), maxSize, c.Name())
			require.Equal(t, aBefore, a)
			require.Equal(t, bBefore, b)
		}
	}
}

func TestOnePointCrossoverSplicesParents(t *testing.T) {
	a := vm.Program{{Op: vm.OpInc}, {Op: vm.OpInc}, {Op: vm.OpInc}}
	b := vm.Program{{Op: vm.OpDec}, {Op: vm.OpDec}, {Op: vm.OpDec}, {Op: vm.OpDec}}
	rng := rand.New(rand.NewPCG(15, 16))
	for trial := 0; trial < 50; trial++ {
		child := OnePointCrossover{}.Cross(rng, a, b, 10)
		require.Len(t, child, 4)
		seenDec := false
		for _, in := range child {
			if in.Op == vm.OpDec {
				seenDec = true
			} else {
				require.False(t, seenDec, "head must come from a")
			}
		}
	}
}

func TestOperatorFactories(t *testing.T) {
	_, err := NewMutator(model.MutationSpec{Kind: model.MutationHard}, nil)
	require.ErrorIs(t, err, model.ErrConfiguration)

	_, err = NewCrossover(model.CrossoverSpec{Kind: "bogus"})
	require.ErrorIs(t, err, model.ErrConfiguration)

	g, err := NewGrower(model.GrowSpec{Kind: model.GrowTree, Param: 3})
	require.NoError(t, err)
	assert.Equal(t, "Tree", g.Name())
}
