package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetValidate(t *testing.T) {
	ok := Dataset{Inputs: [][]float64{{1, 2}, {}}, Targets: [][]float64{{3}, {0, 0}}}
	require.NoError(t, ok.Validate(2))

	cases := map[string]Dataset{
		"row mismatch":    {Inputs: [][]float64{{1}}, Targets: nil},
		"empty":           {},
		"long input":      {Inputs: [][]float64{{1, 2, 3}}, Targets: [][]float64{{1}}},
		"empty target":    {Inputs: [][]float64{{1}}, Targets: [][]float64{{}}},
		"long target row": {Inputs: [][]float64{{1}}, Targets: [][]float64{{1, 2, 3}}},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, data.Validate(2), ErrShape)
		})
	}
}

func TestDatasetDigest(t *testing.T) {
	a := Dataset{Inputs: [][]float64{{1, 2}}, Targets: [][]float64{{3}}}
	b := Dataset{Inputs: [][]float64{{1, 2}}, Targets: [][]float64{{3}}}
	c := Dataset{Inputs: [][]float64{{1}, {2}}, Targets: [][]float64{{3}}}

	assert.Equal(t, a.Digest(), b.Digest())
	assert.NotEqual(t, a.Digest(), c.Digest())
	assert.Equal(t, 1, a.Len())
}
