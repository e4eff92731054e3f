// Package cardinality wraps axiomhq/hyperloglog into a narrower contract:
// a precision-bounded, mergeable distinct-counter over string keys. The
// register math, estimator, and bias corrections are left to the library;
// this package only enforces the precision range and the
// merge-requires-identical-precision rule.
package cardinality

import (
	"errors"
	"fmt"

	hyperloglog "github.com/axiomhq/hyperloglog"
)

const (
	// MinPrecision and MaxPrecision bound the register-index width p to
	// [4,18].
	MinPrecision = 4
	MaxPrecision = 18
)

// ErrInvalidPrecision is returned when precision falls outside [4,18].
var ErrInvalidPrecision = errors.New("cardinality: precision must be in [4,18]")

// ErrPrecisionMismatch is returned by Merge when sketches were built with
// different precisions.
var ErrPrecisionMismatch = errors.New("cardinality: cannot merge sketches with different precision")

// Sketch is a HyperLogLog cardinality estimator over string keys.
type Sketch struct {
	precision uint8
	hll       *hyperloglog.Sketch
}

// New builds a sketch with the given precision (register-index bit width).
func New(precision uint8) (*Sketch, error) {
	if precision < MinPrecision || precision > MaxPrecision {
		return nil, ErrInvalidPrecision
	}

	hll, err := hyperloglog.NewSketch(precision, true)
	if err != nil {
		return nil, fmt.Errorf("cardinality: building hyperloglog sketch: %w", err)
	}

	return &Sketch{precision: precision, hll: hll}, nil
}

// Add records an occurrence of key.
func (s *Sketch) Add(key string) {
	s.hll.Insert([]byte(key))
}

// Estimate returns the approximate number of distinct keys added so far.
func (s *Sketch) Estimate() uint64 {
	return s.hll.Estimate()
}

// Precision returns the register-index bit width this sketch was built
// with; register count is 2^Precision.
func (s *Sketch) Precision() uint8 {
	return s.precision
}

// Merge folds other's registers into s by taking the register-wise max.
// Both sketches must share the same precision.
func (s *Sketch) Merge(other *Sketch) error {
	if other == nil {
		return nil
	}
	if other.precision != s.precision {
		return ErrPrecisionMismatch
	}
	return s.hll.Merge(other.hll)
}

// Clone returns an independent copy of the sketch.
func (s *Sketch) Clone() *Sketch {
	clone, err := New(s.precision)
	if err != nil {
		// precision was already validated at construction of s.
		panic(err)
	}
	_ = clone.Merge(s)
	return clone
}
