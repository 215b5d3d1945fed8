package model

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
)

// Dataset pairs input rows with the expected values of the leading output
// registers.
type Dataset struct {
	Inputs  [][]float64 `json:"inputs" yaml:"inputs"`
	Targets [][]float64 `json:"targets" yaml:"targets"`
}

func (d Dataset) Len() int { return len(d.Inputs) }

// Validate checks the dataset against a register file of registerLength
// slots.
func (d Dataset) Validate(registerLength int) error {
	if len(d.Inputs) != len(d.Targets) {
		return fmt.Errorf("%w: %d input rows but %d target rows", ErrShape, len(d.Inputs), len(d.Targets))
	}
	if len(d.Inputs) == 0 {
		return fmt.Errorf("%w: dataset is empty", ErrShape)
	}
	for i, row := range d.Inputs {
		if len(row) > registerLength {
			return fmt.Errorf("%w: input row %d has %d values, register length is %d", ErrShape, i, len(row), registerLength)
		}
	}
	for i, row := range d.Targets {
		if len(row) == 0 {
			return fmt.Errorf("%w: target row %d is empty", ErrShape, i)
		}
		if len(row) > registerLength {
			return fmt.Errorf("%w: target row %d has %d values, register length is %d", ErrShape, i, len(row), registerLength)
		}
	}
	return nil
}

// Digest fingerprints the dataset contents. Cached fitness is only valid for
// the digest it was computed against.
func (d Dataset) Digest() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	writeRows := func(rows [][]float64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(rows)))
		_, _ = h.Write(buf[:])
		for _, row := range rows {
			binary.LittleEndian.PutUint64(buf[:], uint64(len(row)))
			_, _ = h.Write(buf[:])
			for _, v := range row {
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
				_, _ = h.Write(buf[:])
			}
		}
	}
	writeRows(d.Inputs)
	writeRows(d.Targets)
	return h.Sum64()
}
