package vm

import "fmt"

// Opcode is a single VM instruction. The high nibble is the instruction
// group, the low nibble the variant within the group.
type Opcode byte

// Moves between the accumulator A, the pointer P and the two banks.
const (
	OpMovPA Opcode = 0x00 // P = A
	OpMovAP Opcode = 0x01 // A = P
	OpMovAR Opcode = 0x02 // A = R[P]
	OpMovAI Opcode = 0x03 // A = I[P]
	OpMovRA Opcode = 0x04 // R[P] = A
	OpMovIA Opcode = 0x05 // I[P] = A
)

// Arithmetic against the scratch bank.
const (
	OpAddR Opcode = 0x10
	OpSubR Opcode = 0x11
	OpDivR Opcode = 0x12
	OpMulR Opcode = 0x13
	OpSinR Opcode = 0x14
	OpCosR Opcode = 0x15
	OpExpR Opcode = 0x16
)

// Arithmetic against the io bank.
const (
	OpAddI Opcode = 0x20
	OpSubI Opcode = 0x21
	OpDivI Opcode = 0x22
	OpMulI Opcode = 0x23
	OpSinI Opcode = 0x24
	OpCosI Opcode = 0x25
	OpExpI Opcode = 0x26
)

// Pointer and accumulator updates.
const (
	OpInc Opcode = 0x30 // P++
	OpDec Opcode = 0x31 // P--
	OpRes Opcode = 0x32 // P = 0
	OpSet Opcode = 0x33 // A = literal (CNG)
)

// Loop block openers.
const (
	OpFor  Opcode = 0x40 // P = 0..registerLength-1
	OpLopA Opcode = 0x41 // while A < I[P]
	OpLopP Opcode = 0x42 // while P < registerLength
)

// Conditional block openers; the block is skipped when the test holds.
const (
	OpJmpI Opcode = 0x50 // skip if A >= I[P]
	OpJmpR Opcode = 0x51 // skip if A >= R[P]
	OpJmpP Opcode = 0x52 // skip if P >= A
)

const (
	OpEnd Opcode = 0x60 // close block; halt when no block is open
	OpRng Opcode = 0x61 // A = literal (RNG)
)

// OpcodeInfo describes an opcode for the codecs and operators.
type OpcodeInfo struct {
	Name    string
	Opener  bool // opens a block closed by END
	Literal bool // carries a literal
}

// opcodes lists every valid opcode in base32 index order.
var opcodes = []Opcode{
	OpMovPA, OpMovAP, OpMovAR, OpMovAI, OpMovRA, OpMovIA,
	OpAddR, OpSubR, OpDivR, OpMulR, OpSinR, OpCosR, OpExpR,
	OpAddI, OpSubI, OpDivI, OpMulI, OpSinI, OpCosI, OpExpI,
	OpInc, OpDec, OpRes, OpSet,
	OpFor, OpLopA, OpLopP,
	OpJmpI, OpJmpR, OpJmpP,
	OpEnd, OpRng,
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpMovPA: {Name: "MOV P, A"},
	OpMovAP: {Name: "MOV A, P"},
	OpMovAR: {Name: "MOV A, R"},
	OpMovAI: {Name: "MOV A, I"},
	OpMovRA: {Name: "MOV R, A"},
	OpMovIA: {Name: "MOV I, A"},

	OpAddR: {Name: "ADD R"},
	OpSubR: {Name: "SUB R"},
	OpDivR: {Name: "DIV R"},
	OpMulR: {Name: "MUL R"},
	OpSinR: {Name: "SIN R"},
	OpCosR: {Name: "COS R"},
	OpExpR: {Name: "EXP R"},

	OpAddI: {Name: "ADD I"},
	OpSubI: {Name: "SUB I"},
	OpDivI: {Name: "DIV I"},
	OpMulI: {Name: "MUL I"},
	OpSinI: {Name: "SIN I"},
	OpCosI: {Name: "COS I"},
	OpExpI: {Name: "EXP I"},

	OpInc: {Name: "INC"},
	OpDec: {Name: "DEC"},
	OpRes: {Name: "RES"},
	OpSet: {Name: "SET", Literal: true},

	OpFor:  {Name: "FOR", Opener: true},
	OpLopA: {Name: "LOP A", Opener: true},
	OpLopP: {Name: "LOP P", Opener: true},

	OpJmpI: {Name: "JMP I", Opener: true},
	OpJmpR: {Name: "JMP R", Opener: true},
	OpJmpP: {Name: "JMP P", Opener: true},

	OpEnd: {Name: "END"},
	OpRng: {Name: "RNG", Literal: true},
}

var (
	opcodeIndex = make(map[Opcode]int, len(opcodes))
	groups      = make(map[Opcode][]Opcode)
	openers     []Opcode
	plain       []Opcode
)

func init() {
	for i, op := range opcodes {
		opcodeIndex[op] = i
		groups[op.Group()] = append(groups[op.Group()], op)
		switch {
		case op.Info().Opener:
			openers = append(openers, op)
		case op != OpEnd:
			plain = append(plain, op)
		}
	}
}

// Opcodes returns every valid opcode in index order.
func Opcodes() []Opcode {
	return append([]Opcode(nil), opcodes...)
}

// Openers returns the block-opening opcodes.
func Openers() []Opcode { return append([]Opcode(nil), openers...) }

// Plain returns the opcodes that neither open nor close a block.
func Plain() []Opcode { return append([]Opcode(nil), plain...) }

func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

func (op Opcode) Name() string { return op.Info().Name }

func (op Opcode) String() string { return op.Name() }

func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Group is the high nibble shared by related opcodes.
func (op Opcode) Group() Opcode { return op & 0xF0 }

// Siblings returns the opcodes in the same group, including op itself.
func (op Opcode) Siblings() []Opcode { return groups[op.Group()] }

// Index is the base32 position of op, or -1 for unknown opcodes.
func (op Opcode) Index() int {
	if i, ok := opcodeIndex[op]; ok {
		return i
	}
	return -1
}

// OpcodeAt is the inverse of Index.
func OpcodeAt(index int) (Opcode, bool) {
	if index < 0 || index >= len(opcodes) {
		return 0, false
	}
	return opcodes[index], true
}
