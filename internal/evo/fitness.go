package evo

import (
	"fmt"
	"math"

	"gasm/internal/model"
	"gasm/internal/vm"
)

const (
	integerClamp     = 1e9
	extraWriteWeight = 5.0
	unchangedEpsilon = 1e-12
)

// Evaluator scores programs against a dataset. It holds no per-call state
// and is safe for concurrent use.
type Evaluator struct {
	machine    *vm.Machine
	kind       model.FitnessKind
	nanPenalty float64
	maxSize    int
}

func NewEvaluator(cfg model.Config) (*Evaluator, error) {
	if err := cfg.Fitness.Validate(); err != nil {
		return nil, err
	}
	machine, err := vm.NewMachine(cfg.RegisterLength, cfg.MaxProcessTime, cfg.UseCompile)
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		machine:    machine,
		kind:       cfg.Fitness.Kind,
		nanPenalty: cfg.NaNPenalty,
		maxSize:    cfg.IndividualMaxSize,
	}, nil
}

// Machine exposes the VM the evaluator runs programs on.
func (e *Evaluator) Machine() *vm.Machine { return e.machine }

// Evaluate returns the summed row error and the mean step count. Rows whose
// output is not finite contribute exactly the NaN penalty.
func (e *Evaluator) Evaluate(prog vm.Program, data model.Dataset) (fitness, meanSteps float64, err error) {
	if len(prog) > e.maxSize {
		return 0, 0, fmt.Errorf("%w: program has %d instructions, limit is %d", model.ErrInvariant, len(prog), e.maxSize)
	}
	runner, err := e.machine.Runner(prog)
	if err != nil {
		return 0, 0, err
	}

	var before []float64
	if e.kind == model.FitnessIntegerWrite {
		before = make([]float64, e.machine.RegisterLength)
	}

	totalSteps := 0
	for i, input := range data.Inputs {
		if before != nil {
			n := copy(before, input)
			clear(before[n:])
		}
		res, err := runner.Run(input)
		if err != nil {
			return 0, 0, fmt.Errorf("row %d: %w", i, err)
		}
		totalSteps += res.Steps
		fitness += e.rowError(res.Registers, data.Targets[i], before)
	}
	if n := len(data.Inputs); n > 0 {
		meanSteps = float64(totalSteps) / float64(n)
	}
	return fitness, meanSteps, nil
}

func (e *Evaluator) rowError(out, target, before []float64) float64 {
	switch e.kind {
	case model.FitnessAnyPosition:
		return anyPositionError(out, target[0], e.nanPenalty)
	case model.FitnessIntegerWrite:
		return integerWriteError(out, target[0], before, e.nanPenalty)
	default:
		return absoluteError(out, target, e.nanPenalty)
	}
}

// absoluteError sums |out[j]-target[j]| over the target registers.
func absoluteError(out, target []float64, penalty float64) float64 {
	sum := 0.0
	for j, want := range target {
		diff := out[j] - want
		if !isFinite(out[j]) || !isFinite(diff) {
			return penalty
		}
		sum += math.Abs(diff)
	}
	return sum
}

// anyPositionError is the smallest rounded distance from any register to
// the target constant.
func anyPositionError(out []float64, want, penalty float64) float64 {
	best := penalty
	for _, v := range out {
		best = math.Min(best, math.Abs(roundToInt(v)-want))
	}
	return best
}

// integerWriteError compares truncated integers on register 0 and charges
// for every other register the program changed.
func integerWriteError(out []float64, want float64, before []float64, penalty float64) float64 {
	var score float64
	if isFinite(out[0]) {
		score = math.Abs(truncToInt(out[0]) - truncToInt(want))
	} else {
		score = penalty
	}
	for i := 1; i < len(out) && i < len(before); i++ {
		b, a := before[i], out[i]
		switch {
		case !isFinite(b) || !isFinite(a):
			if !(math.IsNaN(b) && math.IsNaN(a)) {
				score += extraWriteWeight
			}
		case math.Abs(b-a) > unchangedEpsilon:
			score += extraWriteWeight * math.Min(1, math.Abs(a-b))
		}
	}
	return score
}

// roundToInt rounds half away from zero and clamps; non-finite values map
// to zero.
func roundToInt(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return clampInt(math.Round(v))
}

func truncToInt(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return clampInt(math.Trunc(v))
}

func clampInt(v float64) float64 {
	return math.Max(-integerClamp, math.Min(integerClamp, v))
}
