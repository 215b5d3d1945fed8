package evo

import (
	"fmt"
	"math"
	"sort"

	"gasm/internal/model"
	"gasm/internal/vm"
)

// Individual is one candidate program. A nil Fitness means the program has
// not been scored since it was last changed.
type Individual struct {
	Program vm.Program
	Fitness *float64
	Steps   float64
}

func NewIndividual(prog vm.Program) Individual {
	return Individual{Program: prog}
}

func (ind Individual) Size() int { return len(ind.Program) }

func (ind Individual) Evaluated() bool { return ind.Fitness != nil }

// Clone deep-copies the program and keeps the cached score.
func (ind Individual) Clone() Individual {
	out := Individual{Program: ind.Program.Clone(), Steps: ind.Steps}
	if ind.Fitness != nil {
		f := *ind.Fitness
		out.Fitness = &f
	}
	return out
}

// withFitness returns a copy carrying a fresh score.
func (ind Individual) withFitness(fitness, steps float64) Individual {
	ind.Fitness = &fitness
	ind.Steps = steps
	return ind
}

func (ind Individual) Record() model.IndividualRecord {
	code, literals := vm.EncodeASCII(ind.Program)
	rec := model.IndividualRecord{
		Code:  code,
		Size:  ind.Size(),
		Steps: ind.Steps,
		Text:  ind.Program.Disassemble(),
	}
	if len(literals) > 0 {
		rec.Literals = make([]model.Float, len(literals))
		for i, v := range literals {
			rec.Literals[i] = model.Float(v)
		}
	}
	if ind.Fitness != nil {
		f := model.Float(*ind.Fitness)
		rec.Fitness = &f
	}
	return rec
}

func IndividualFromRecord(rec model.IndividualRecord) (Individual, error) {
	literals := make([]float64, len(rec.Literals))
	for i, v := range rec.Literals {
		literals[i] = float64(v)
	}
	prog, err := vm.DecodeASCII(rec.Code, literals)
	if err != nil {
		return Individual{}, err
	}
	if rec.Size != 0 && rec.Size != len(prog) {
		return Individual{}, fmt.Errorf("%w: record size %d does not match program length %d", model.ErrInvariant, rec.Size, len(prog))
	}
	ind := Individual{Program: prog, Steps: rec.Steps}
	if rec.Fitness != nil {
		f := float64(*rec.Fitness)
		ind.Fitness = &f
	}
	return ind, nil
}

// Scored is a population slot with its fitness, used for ranking.
type Scored struct {
	Index   int
	Fitness float64
}

// Better reports whether a beats b under the optimization direction. NaN
// loses to everything.
func Better(a, b float64, minimize bool) bool {
	switch {
	case math.IsNaN(a):
		return false
	case math.IsNaN(b):
		return true
	case minimize:
		return a < b
	default:
		return a > b
	}
}

// GoalReached applies the goal comparison for the optimization direction.
func GoalReached(best, goal float64, minimize bool) bool {
	if minimize {
		return best <= goal
	}
	return best >= goal
}

// Rank orders an evaluated population best first. Ties keep index order so
// ranking is deterministic.
func Rank(pop []Individual, minimize bool) ([]Scored, error) {
	ranked := make([]Scored, len(pop))
	for i, ind := range pop {
		if ind.Fitness == nil {
			return nil, fmt.Errorf("%w: individual %d has no fitness", model.ErrInvariant, i)
		}
		ranked[i] = Scored{Index: i, Fitness: *ind.Fitness}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return Better(ranked[i].Fitness, ranked[j].Fitness, minimize)
	})
	return ranked, nil
}
