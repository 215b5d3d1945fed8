package vm

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"gasm/internal/model"
)

// maxPointer bounds P when it is loaded from the accumulator.
const maxPointer = 1 << 53

// ExecutionResult is the outcome of one run. Exhausted is set when the step
// budget ended the run.
type ExecutionResult struct {
	Registers []float64
	Steps     int
	Halted    bool
	Exhausted bool
}

// Machine holds the execution limits shared by every run.
type Machine struct {
	RegisterLength int
	MaxProcessTime int
	UseCompile     bool
	// Workers bounds RunAll parallelism; 0 means GOMAXPROCS.
	Workers int
}

func NewMachine(registerLength, maxProcessTime int, useCompile bool) (*Machine, error) {
	if registerLength <= 0 {
		return nil, fmt.Errorf("%w: register length must be positive, got %d", model.ErrConfiguration, registerLength)
	}
	if maxProcessTime <= 0 {
		return nil, fmt.Errorf("%w: max process time must be positive, got %d", model.ErrConfiguration, maxProcessTime)
	}
	return &Machine{RegisterLength: registerLength, MaxProcessTime: maxProcessTime, UseCompile: useCompile}, nil
}

type executable interface {
	execute(io, scratch []float64, fuel int) (steps int, halted, exhausted bool)
}

// Runner executes one program repeatedly with reused register banks. A
// Runner is not safe for concurrent use; create one per goroutine.
type Runner struct {
	machine *Machine
	exe     executable
	io      []float64
	scratch []float64
}

// Runner prepares prog for execution, compiling it when UseCompile is set.
func (m *Machine) Runner(prog Program) (*Runner, error) {
	if err := prog.Validate(0); err != nil {
		return nil, err
	}
	var exe executable = interpreted(prog)
	if m.UseCompile {
		exe = Compile(prog)
	}
	return &Runner{
		machine: m,
		exe:     exe,
		io:      make([]float64, m.RegisterLength),
		scratch: make([]float64, m.RegisterLength),
	}, nil
}

// Run executes against input. The returned Registers alias the runner's io
// bank and stay valid until the next call.
func (r *Runner) Run(input []float64) (ExecutionResult, error) {
	if len(input) > len(r.io) {
		return ExecutionResult{}, fmt.Errorf("%w: input has %d values, register length is %d", model.ErrShape, len(input), len(r.io))
	}
	n := copy(r.io, input)
	clear(r.io[n:])
	clear(r.scratch)

	steps, halted, exhausted := r.exe.execute(r.io, r.scratch, r.machine.MaxProcessTime)
	return ExecutionResult{Registers: r.io, Steps: steps, Halted: halted, Exhausted: exhausted}, nil
}

// Run executes prog once against input.
func (m *Machine) Run(prog Program, input []float64) (ExecutionResult, error) {
	runner, err := m.Runner(prog)
	if err != nil {
		return ExecutionResult{}, err
	}
	return runner.Run(input)
}

// RunAll executes prog against every row of batch independently and returns
// the results in row order.
func (m *Machine) RunAll(ctx context.Context, prog Program, batch [][]float64) ([]ExecutionResult, error) {
	if err := prog.Validate(0); err != nil {
		return nil, err
	}
	for i, row := range batch {
		if len(row) > m.RegisterLength {
			return nil, fmt.Errorf("%w: row %d has %d values, register length is %d", model.ErrShape, i, len(row), m.RegisterLength)
		}
	}

	type job struct {
		idx int
		row []float64
	}
	type result struct {
		idx int
		res ExecutionResult
		err error
	}

	jobs := make(chan job)
	results := make(chan result, len(batch))

	workerCount := m.Workers
	if workerCount <= 0 {
		workerCount = runtime.GOMAXPROCS(0)
	}
	if workerCount > len(batch) {
		workerCount = len(batch)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			runner, err := m.Runner(prog)
			for j := range jobs {
				if err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					results <- result{idx: j.idx, err: ctxErr}
					continue
				}
				res, runErr := runner.Run(j.row)
				if runErr == nil {
					res.Registers = append([]float64(nil), res.Registers...)
				}
				results <- result{idx: j.idx, res: res, err: runErr}
			}
		}()
	}

	for i := range batch {
		jobs <- job{idx: i, row: batch[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := make([]ExecutionResult, len(batch))
	for res := range results {
		if res.err != nil {
			return nil, fmt.Errorf("row %d: %w", res.idx, res.err)
		}
		out[res.idx] = res.res
	}
	return out, nil
}

// interpreted walks the program directly, scanning for block ends at run
// time and tracking open blocks on a frame stack.
type interpreted Program

type frame struct {
	op      Opcode
	pc      int
	counter int64
}

func (prog interpreted) execute(io, scratch []float64, fuel int) (steps int, halted, exhausted bool) {
	n := int64(len(io))
	var a float64
	var p int64
	frames := make([]frame, 0, 8)

	for pc := 0; pc < len(prog); pc++ {
		if steps >= fuel {
			return steps, false, true
		}
		steps++

		in := prog[pc]
		switch in.Op {
		case OpMovPA:
			p = pointerFrom(a)
		case OpMovAP:
			a = float64(p)
		case OpMovAR:
			a = scratch[wrap(p, n)]
		case OpMovAI:
			a = io[wrap(p, n)]
		case OpMovRA:
			scratch[wrap(p, n)] = a
		case OpMovIA:
			io[wrap(p, n)] = a

		case OpAddR:
			a += scratch[wrap(p, n)]
		case OpSubR:
			a -= scratch[wrap(p, n)]
		case OpDivR:
			a /= scratch[wrap(p, n)]
		case OpMulR:
			a *= scratch[wrap(p, n)]
		case OpSinR:
			a = math.Sin(scratch[wrap(p, n)])
		case OpCosR:
			a = math.Cos(scratch[wrap(p, n)])
		case OpExpR:
			a = math.Exp(scratch[wrap(p, n)])

		case OpAddI:
			a += io[wrap(p, n)]
		case OpSubI:
			a -= io[wrap(p, n)]
		case OpDivI:
			a /= io[wrap(p, n)]
		case OpMulI:
			a *= io[wrap(p, n)]
		case OpSinI:
			a = math.Sin(io[wrap(p, n)])
		case OpCosI:
			a = math.Cos(io[wrap(p, n)])
		case OpExpI:
			a = math.Exp(io[wrap(p, n)])

		case OpInc:
			p++
		case OpDec:
			p--
		case OpRes:
			p = 0
		case OpSet, OpRng:
			a = in.Literal

		case OpFor:
			p = 0
			frames = append(frames, frame{op: OpFor, pc: pc})
		case OpLopA:
			if a < io[wrap(p, n)] {
				frames = append(frames, frame{op: OpLopA, pc: pc})
			} else {
				pc = Program(prog).blockEnd(pc)
			}
		case OpLopP:
			if p < n {
				frames = append(frames, frame{op: OpLopP, pc: pc})
			} else {
				pc = Program(prog).blockEnd(pc)
			}
		case OpJmpI:
			if a >= io[wrap(p, n)] {
				pc = Program(prog).blockEnd(pc)
			} else {
				frames = append(frames, frame{op: OpJmpI, pc: pc})
			}
		case OpJmpR:
			if a >= scratch[wrap(p, n)] {
				pc = Program(prog).blockEnd(pc)
			} else {
				frames = append(frames, frame{op: OpJmpR, pc: pc})
			}
		case OpJmpP:
			if float64(p) >= a {
				pc = Program(prog).blockEnd(pc)
			} else {
				frames = append(frames, frame{op: OpJmpP, pc: pc})
			}

		case OpEnd:
			if len(frames) == 0 {
				return steps, true, false
			}
			top := &frames[len(frames)-1]
			switch top.op {
			case OpFor:
				top.counter++
				p = top.counter
				if p < n {
					pc = top.pc
					continue
				}
			case OpLopA:
				if a < io[wrap(p, n)] {
					pc = top.pc
					continue
				}
			case OpLopP:
				if p < n {
					pc = top.pc
					continue
				}
			}
			frames = frames[:len(frames)-1]
		}
	}
	return steps, false, false
}

// blockEnd returns the index of the END closing the block opened at pc, or
// len(p) when the block is never closed.
func (p Program) blockEnd(pc int) int {
	depth := 0
	for j := pc + 1; j < len(p); j++ {
		switch {
		case p[j].Op.Info().Opener:
			depth++
		case p[j].Op == OpEnd:
			if depth == 0 {
				return j
			}
			depth--
		}
	}
	return len(p)
}

// wrap maps P onto [0, n).
func wrap(p, n int64) int64 {
	i := p % n
	if i < 0 {
		i += n
	}
	return i
}

func pointerFrom(a float64) int64 {
	switch {
	case math.IsNaN(a):
		return 0
	case a > maxPointer:
		return maxPointer
	case a < -maxPointer:
		return -maxPointer
	}
	return int64(a)
}
