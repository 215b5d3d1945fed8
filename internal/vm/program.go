package vm

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"gasm/internal/model"
)

// Instruction is one opcode plus its literal. Literal is only meaningful for
// opcodes whose Info reports Literal.
type Instruction struct {
	Op      Opcode
	Literal float64
}

func (in Instruction) String() string {
	if in.Op.Info().Literal {
		return in.Op.Name() + " " + strconv.FormatFloat(in.Literal, 'g', -1, 64)
	}
	return in.Op.Name()
}

// Program is an ordered instruction sequence.
type Program []Instruction

func (p Program) Clone() Program {
	if p == nil {
		return nil
	}
	return append(Program(nil), p...)
}

// Validate checks that every opcode is known and the length fits maxSize.
// A non-positive maxSize disables the length check.
func (p Program) Validate(maxSize int) error {
	if maxSize > 0 && len(p) > maxSize {
		return fmt.Errorf("%w: program has %d instructions, limit is %d", model.ErrInvariant, len(p), maxSize)
	}
	for i, in := range p {
		if !in.Op.Valid() {
			return fmt.Errorf("%w: unknown opcode 0x%02X at %d", model.ErrInvariant, byte(in.Op), i)
		}
	}
	return nil
}

// Disassemble renders one instruction per line.
func (p Program) Disassemble() string {
	var b strings.Builder
	for i, in := range p {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(in.String())
	}
	return b.String()
}

func (p Program) String() string { return p.Disassemble() }

var mnemonics = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodes))
	for _, op := range opcodes {
		m[compactMnemonic(op.Name())] = op
	}
	return m
}()

func compactMnemonic(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r':
			return -1
		}
		return r
	}, strings.ToUpper(s))
}

// Assemble parses disassembly text. Mnemonics are case-insensitive, spacing
// is free, "//" starts a comment and blank lines are skipped. SET and RNG
// take an optional literal, defaulting to 0.
func Assemble(text string) (Program, error) {
	var prog Program
	scanner := bufio.NewScanner(strings.NewReader(text))
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Text()
		if idx := strings.Index(raw, "//"); idx >= 0 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		in, err := parseInstruction(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		prog = append(prog, in)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return prog, nil
}

func parseInstruction(raw string) (Instruction, error) {
	upper := strings.ToUpper(raw)
	for _, op := range []Opcode{OpSet, OpRng} {
		name := op.Name()
		if !strings.HasPrefix(upper, name) {
			continue
		}
		rest := strings.TrimSpace(upper[len(name):])
		if rest == "" {
			return Instruction{Op: op}, nil
		}
		v, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return Instruction{}, fmt.Errorf("%w: bad literal %q for %s", model.ErrConfiguration, rest, name)
		}
		return Instruction{Op: op, Literal: v}, nil
	}
	op, ok := mnemonics[compactMnemonic(raw)]
	if !ok {
		return Instruction{}, fmt.Errorf("%w: unknown mnemonic %q", model.ErrConfiguration, raw)
	}
	return Instruction{Op: op}, nil
}

// EncodeASCII maps each opcode to 'A'+index and collects literals in program
// order.
func EncodeASCII(p Program) (string, []float64) {
	code := make([]byte, len(p))
	var literals []float64
	for i, in := range p {
		idx := in.Op.Index()
		if idx < 0 {
			idx = OpEnd.Index()
		}
		code[i] = byte('A' + idx)
		if in.Op.Info().Literal {
			literals = append(literals, in.Literal)
		}
	}
	return string(code), literals
}

// DecodeASCII is the inverse of EncodeASCII. Missing literals decode as 0.
func DecodeASCII(code string, literals []float64) (Program, error) {
	prog := make(Program, len(code))
	next := 0
	for i := 0; i < len(code); i++ {
		op, ok := OpcodeAt(int(code[i]) - 'A')
		if !ok {
			return nil, fmt.Errorf("%w: invalid opcode character %q at %d", model.ErrInvariant, code[i], i)
		}
		prog[i].Op = op
		if op.Info().Literal && next < len(literals) {
			prog[i].Literal = literals[next]
			next++
		}
	}
	if next != len(literals) {
		return nil, fmt.Errorf("%w: %d literals for %d literal instructions", model.ErrInvariant, len(literals), next)
	}
	return prog, nil
}

const opsPerWord = 12

// Pack stores opcode indices five bits at a time, twelve per word.
// Literals are not carried.
func Pack(p Program) []uint64 {
	words := make([]uint64, (len(p)+opsPerWord-1)/opsPerWord)
	for i, in := range p {
		idx := in.Op.Index()
		if idx < 0 {
			idx = OpEnd.Index()
		}
		words[i/opsPerWord] |= uint64(idx&0x1F) << (5 * (i % opsPerWord))
	}
	return words
}

// Unpack restores n opcodes from packed words.
func Unpack(words []uint64, n int) (Program, error) {
	if n < 0 || n > len(words)*opsPerWord {
		return nil, fmt.Errorf("%w: cannot unpack %d opcodes from %d words", model.ErrInvariant, n, len(words))
	}
	prog := make(Program, n)
	for i := range prog {
		idx := int(words[i/opsPerWord]>>(5*(i%opsPerWord))) & 0x1F
		op, _ := OpcodeAt(idx)
		prog[i].Op = op
	}
	return prog, nil
}
