package codec

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffValueRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		xs   []int64
	}{
		{"empty", nil},
		{"single", []int64{42}},
		{"increasing", []int64{10_000, 10_100, 10_200}},
		{"decreasing", []int64{5, 4, 3, 2, 1, 0, -10}},
		{"mixed", []int64{0, 1_000_000, -1_000_000, 0, 7}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var enc DiffValue[int64]
			deltas := make([]int64, len(tc.xs))
			for i, x := range tc.xs {
				d, err := enc.Diff(x)
				require.NoError(t, err)
				deltas[i] = d
			}

			var dec DiffValue[int64]
			got := make([]int64, len(deltas))
			for i, d := range deltas {
				v, err := dec.Undiff(d)
				require.NoError(t, err)
				got[i] = v
			}

			require.Equal(t, tc.xs, got)
		})
	}
}

func TestDiffValueStartsAtZero(t *testing.T) {
	var enc DiffValue[int32]
	d, err := enc.Diff(5)
	require.NoError(t, err)
	require.Equal(t, int32(5), d)
}

func TestDiffOverflowSigned(t *testing.T) {
	var enc DiffValue[int32]
	_, err := enc.Diff(math.MinInt32)
	require.NoError(t, err)

	_, err = enc.Diff(0)
	var overflow *DiffOverflow
	require.True(t, errors.As(err, &overflow))
}

func TestSumOverflowSigned(t *testing.T) {
	var dec DiffValue[int32]
	_, err := dec.Undiff(math.MaxInt32)
	require.NoError(t, err)

	_, err = dec.Undiff(1)
	var overflow *SumOverflow
	require.True(t, errors.As(err, &overflow))
}

func TestDiffValueUnsignedOverflow(t *testing.T) {
	var enc DiffValue[uint32]
	// previous starts at 0; diffing 0 against a not-yet-set previous is fine,
	// but diffing downward below zero on an unsigned type must overflow.
	_, err := enc.Diff(5)
	require.NoError(t, err)

	_, err = enc.Diff(0) // 0 - 5 underflows a uint32
	var overflow *DiffOverflow
	require.True(t, errors.As(err, &overflow))
}

func TestDiffValueUint64MaxSum(t *testing.T) {
	var dec DiffValue[uint64]
	_, err := dec.Undiff(math.MaxUint64)
	require.NoError(t, err)

	_, err = dec.Undiff(1)
	var overflow *SumOverflow
	require.True(t, errors.As(err, &overflow))
}

func TestDiffValueReset(t *testing.T) {
	var d DiffValue[int32]
	_, err := d.Diff(100)
	require.NoError(t, err)
	d.Reset()

	delta, err := d.Diff(5)
	require.NoError(t, err)
	require.Equal(t, int32(5), delta)
}
