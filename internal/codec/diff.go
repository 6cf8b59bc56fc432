// Package codec provides the stateful differential (delta) encoding
// primitives used to pack monotonically-ish sequences of integers — location
// timestamps, coordinates, accuracies and sensor samples — into a form that
// compresses well once serialised.
package codec

import (
	"fmt"
	"math"
)

// Integer is the set of fixed-width integer types DiffValue can operate on.
type Integer interface {
	~int32 | ~int64 | ~uint32 | ~uint64
}

// DiffOverflow is returned by Diff when the subtraction minuend-subtrahend
// cannot be represented in T.
type DiffOverflow struct {
	Minuend, Subtrahend any
}

func (e *DiffOverflow) Error() string {
	return fmt.Sprintf("codec: diff overflow: %v - %v", e.Minuend, e.Subtrahend)
}

// SumOverflow is returned by Undiff when the addition a+b cannot be
// represented in T.
type SumOverflow struct {
	A, B any
}

func (e *SumOverflow) Error() string {
	return fmt.Sprintf("codec: sum overflow: %v + %v", e.A, e.B)
}

// DiffValue maintains running state for one field of a record sequence and
// turns absolute values into differences from the previous value (and back).
// The zero value is ready to use; its previous value starts at zero, matching
// the wire contract that the first element of a sequence is encoded relative
// to zero.
type DiffValue[T Integer] struct {
	previous T
}

// Diff returns v - previous and advances previous to v.
func (d *DiffValue[T]) Diff(v T) (T, error) {
	delta, ok := subtractOverflow(v, d.previous)
	if !ok {
		return 0, &DiffOverflow{Minuend: v, Subtrahend: d.previous}
	}
	d.previous = v
	return delta, nil
}

// Undiff returns previous + v and advances previous to the result.
func (d *DiffValue[T]) Undiff(v T) (T, error) {
	sum, ok := addOverflow(d.previous, v)
	if !ok {
		return 0, &SumOverflow{A: d.previous, B: v}
	}
	d.previous = sum
	return sum, nil
}

// Reset returns the DiffValue to its initial (zero-previous) state.
func (d *DiffValue[T]) Reset() {
	var zero T
	d.previous = zero
}

func subtractOverflow[T Integer](a, b T) (T, bool) {
	result := a - b
	switch any(a).(type) {
	case int32, int64:
		// signed: overflow iff operands have different signs and result has a
		// different sign from a.
		if (b > 0 && a < minOf[T]()+b) || (b < 0 && a > maxOf[T]()+b) {
			return 0, false
		}
	default:
		// unsigned: overflow iff b > a.
		if b > a {
			return 0, false
		}
	}
	return result, true
}

func addOverflow[T Integer](a, b T) (T, bool) {
	result := a + b
	switch any(a).(type) {
	case int32, int64:
		if (b > 0 && a > maxOf[T]()-b) || (b < 0 && a < minOf[T]()-b) {
			return 0, false
		}
	default:
		if result < a {
			return 0, false
		}
	}
	return result, true
}

func maxOf[T Integer]() T {
	var zero T
	switch any(zero).(type) {
	case int32:
		return T(int32(1<<31 - 1))
	case int64:
		return T(int64(1<<63 - 1))
	case uint32:
		return T(uint32(math.MaxUint32))
	case uint64:
		return T(uint64(math.MaxUint64))
	}
	return zero
}

func minOf[T Integer]() T {
	var zero T
	switch any(zero).(type) {
	case int32:
		return T(int32(-1 << 31))
	case int64:
		return T(int64(-1 << 63))
	}
	return zero // unsigned types have a minimum of zero
}
