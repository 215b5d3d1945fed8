// Package numgen provides the literal sources used when instructions are
// synthesized or mutated, and the serializable random stream that drives
// the evolutionary operators.
package numgen

import (
	"fmt"
	"math/rand/v2"

	"gasm/internal/model"
)

// streamIncrement is the PCG stream selector paired with every seed.
const streamIncrement = 0x9e3779b97f4a7c15

// Stream is a PCG-backed *rand.Rand whose position can be saved and restored.
type Stream struct {
	*rand.Rand
	pcg *rand.PCG
}

func NewStream(seed uint64) *Stream {
	pcg := rand.NewPCG(seed, streamIncrement)
	return &Stream{Rand: rand.New(pcg), pcg: pcg}
}

// RestoreStream rebuilds a stream from MarshalBinary output.
func RestoreStream(data []byte) (*Stream, error) {
	pcg := &rand.PCG{}
	if err := pcg.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("restore random stream: %w", err)
	}
	return &Stream{Rand: rand.New(pcg), pcg: pcg}, nil
}

func (s *Stream) MarshalBinary() ([]byte, error) {
	return s.pcg.MarshalBinary()
}

// Generator yields literal values. Implementations are not safe for
// concurrent use.
type Generator interface {
	Next() float64
	State() model.GeneratorState
}

// New builds a fresh generator for spec.
func New(spec model.GeneratorSpec) (Generator, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case model.GeneratorConstant:
		return &constant{spec: spec}, nil
	case model.GeneratorIncrement:
		return &increment{spec: spec, next: spec.Param}, nil
	case model.GeneratorRandom:
		return &random{spec: spec, stream: NewStream(uint64(spec.Param))}, nil
	}
	return nil, fmt.Errorf("%w: unknown generator %q", model.ErrConfiguration, spec.Kind)
}

// Restore resumes a generator from a saved state. When the saved spec no
// longer matches, the generator starts fresh.
func Restore(spec model.GeneratorSpec, state model.GeneratorState) (Generator, error) {
	if state.Spec != spec {
		return New(spec)
	}
	switch spec.Kind {
	case model.GeneratorIncrement:
		return &increment{spec: spec, next: state.Next}, nil
	case model.GeneratorRandom:
		if len(state.Stream) == 0 {
			return New(spec)
		}
		stream, err := RestoreStream(state.Stream)
		if err != nil {
			return nil, err
		}
		return &random{spec: spec, stream: stream}, nil
	}
	return New(spec)
}

type constant struct {
	spec model.GeneratorSpec
}

func (g *constant) Next() float64 { return g.spec.Param }

func (g *constant) State() model.GeneratorState {
	return model.GeneratorState{Spec: g.spec, Next: g.spec.Param}
}

type increment struct {
	spec model.GeneratorSpec
	next float64
}

func (g *increment) Next() float64 {
	v := g.next
	g.next++
	return v
}

func (g *increment) State() model.GeneratorState {
	return model.GeneratorState{Spec: g.spec, Next: g.next}
}

type random struct {
	spec   model.GeneratorSpec
	stream *Stream
}

func (g *random) Next() float64 { return g.stream.Float64() }

func (g *random) State() model.GeneratorState {
	data, _ := g.stream.MarshalBinary()
	return model.GeneratorState{Spec: g.spec, Stream: data}
}
