package vm

import "math"

// state is the register context seen by compiled instructions.
type state struct {
	a        float64
	p        int64
	n        int64
	io       []float64
	scratch  []float64
	counters []int64
}

// step executes one instruction and returns the next pc, or haltPC.
type step func(s *state) int

const haltPC = -1

// Compiled is a program translated into a closure per instruction with all
// block targets resolved ahead of time. It is immutable and safe to share.
type Compiled struct {
	code  []step
	loops int
}

// Compile translates prog. Opcodes unknown to the table compile to no-ops.
func Compile(prog Program) *Compiled {
	match := matchBlocks(prog)
	slots := make(map[int]int)
	for i, in := range prog {
		if in.Op == OpFor {
			slots[i] = len(slots)
		}
	}

	c := &Compiled{code: make([]step, len(prog)), loops: len(slots)}
	for i, in := range prog {
		c.code[i] = compileStep(prog, i, in, match, slots)
	}
	return c
}

// Len is the number of compiled instructions.
func (c *Compiled) Len() int { return len(c.code) }

func (c *Compiled) execute(io, scratch []float64, fuel int) (steps int, halted, exhausted bool) {
	s := state{n: int64(len(io)), io: io, scratch: scratch}
	if c.loops > 0 {
		s.counters = make([]int64, c.loops)
	}
	for pc := 0; pc < len(c.code); {
		if steps >= fuel {
			return steps, false, true
		}
		steps++
		pc = c.code[pc](&s)
		if pc == haltPC {
			return steps, true, false
		}
	}
	return steps, false, false
}

// matchBlocks pairs openers with their END. For an opener the entry is the
// END index (len(prog) when unclosed); for an END it is the opener index, or
// haltPC when no block is open.
func matchBlocks(prog Program) []int {
	match := make([]int, len(prog))
	var open []int
	for i, in := range prog {
		switch {
		case in.Op.Info().Opener:
			open = append(open, i)
		case in.Op == OpEnd:
			if len(open) == 0 {
				match[i] = haltPC
				continue
			}
			o := open[len(open)-1]
			open = open[:len(open)-1]
			match[o] = i
			match[i] = o
		}
	}
	for _, o := range open {
		match[o] = len(prog)
	}
	return match
}

func compileStep(prog Program, i int, in Instruction, match []int, slots map[int]int) step {
	next := i + 1
	// past is where a skipped block resumes.
	past := func(end int) int {
		if end >= len(prog) {
			return len(prog)
		}
		return end + 1
	}

	switch in.Op {
	case OpMovPA:
		return func(s *state) int { s.p = pointerFrom(s.a); return next }
	case OpMovAP:
		return func(s *state) int { s.a = float64(s.p); return next }
	case OpMovAR:
		return func(s *state) int { s.a = s.scratch[wrap(s.p, s.n)]; return next }
	case OpMovAI:
		return func(s *state) int { s.a = s.io[wrap(s.p, s.n)]; return next }
	case OpMovRA:
		return func(s *state) int { s.scratch[wrap(s.p, s.n)] = s.a; return next }
	case OpMovIA:
		return func(s *state) int { s.io[wrap(s.p, s.n)] = s.a; return next }

	case OpAddR:
		return func(s *state) int { s.a += s.scratch[wrap(s.p, s.n)]; return next }
	case OpSubR:
		return func(s *state) int { s.a -= s.scratch[wrap(s.p, s.n)]; return next }
	case OpDivR:
		return func(s *state) int { s.a /= s.scratch[wrap(s.p, s.n)]; return next }
	case OpMulR:
		return func(s *state) int { s.a *= s.scratch[wrap(s.p, s.n)]; return next }
	case OpSinR:
		return func(s *state) int { s.a = math.Sin(s.scratch[wrap(s.p, s.n)]); return next }
	case OpCosR:
		return func(s *state) int { s.a = math.Cos(s.scratch[wrap(s.p, s.n)]); return next }
	case OpExpR:
		return func(s *state) int { s.a = math.Exp(s.scratch[wrap(s.p, s.n)]); return next }

	case OpAddI:
		return func(s *state) int { s.a += s.io[wrap(s.p, s.n)]; return next }
	case OpSubI:
		return func(s *state) int { s.a -= s.io[wrap(s.p, s.n)]; return next }
	case OpDivI:
		return func(s *state) int { s.a /= s.io[wrap(s.p, s.n)]; return next }
	case OpMulI:
		return func(s *state) int { s.a *= s.io[wrap(s.p, s.n)]; return next }
	case OpSinI:
		return func(s *state) int { s.a = math.Sin(s.io[wrap(s.p, s.n)]); return next }
	case OpCosI:
		return func(s *state) int { s.a = math.Cos(s.io[wrap(s.p, s.n)]); return next }
	case OpExpI:
		return func(s *state) int { s.a = math.Exp(s.io[wrap(s.p, s.n)]); return next }

	case OpInc:
		return func(s *state) int { s.p++; return next }
	case OpDec:
		return func(s *state) int { s.p--; return next }
	case OpRes:
		return func(s *state) int { s.p = 0; return next }
	case OpSet, OpRng:
		literal := in.Literal
		return func(s *state) int { s.a = literal; return next }

	case OpFor:
		slot := slots[i]
		return func(s *state) int { s.p = 0; s.counters[slot] = 0; return next }
	case OpLopA:
		skip := past(match[i])
		return func(s *state) int {
			if s.a < s.io[wrap(s.p, s.n)] {
				return next
			}
			return skip
		}
	case OpLopP:
		skip := past(match[i])
		return func(s *state) int {
			if s.p < s.n {
				return next
			}
			return skip
		}
	case OpJmpI:
		skip := past(match[i])
		return func(s *state) int {
			if s.a >= s.io[wrap(s.p, s.n)] {
				return skip
			}
			return next
		}
	case OpJmpR:
		skip := past(match[i])
		return func(s *state) int {
			if s.a >= s.scratch[wrap(s.p, s.n)] {
				return skip
			}
			return next
		}
	case OpJmpP:
		skip := past(match[i])
		return func(s *state) int {
			if float64(s.p) >= s.a {
				return skip
			}
			return next
		}

	case OpEnd:
		return compileEnd(prog, i, match[i], slots)
	}
	return func(*state) int { return next }
}

func compileEnd(prog Program, i, opener int, slots map[int]int) step {
	next := i + 1
	if opener == haltPC {
		return func(*state) int { return haltPC }
	}
	body := opener + 1
	switch prog[opener].Op {
	case OpFor:
		slot := slots[opener]
		return func(s *state) int {
			s.counters[slot]++
			s.p = s.counters[slot]
			if s.p < s.n {
				return body
			}
			return next
		}
	case OpLopA:
		return func(s *state) int {
			if s.a < s.io[wrap(s.p, s.n)] {
				return body
			}
			return next
		}
	case OpLopP:
		return func(s *state) int {
			if s.p < s.n {
				return body
			}
			return next
		}
	}
	return func(*state) int { return next }
}
