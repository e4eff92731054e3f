// Package frequency implements a Count-Min Sketch: an approximate,
// constant-memory frequency counter with one-sided error (estimates never
// undercount). Hashing is delegated to xxhash rather than a hand-rolled
// mixing function, seeded per row so the d rows behave as independent hash
// families.
package frequency

import (
	"errors"

	"github.com/cespare/xxhash/v2"
)

// ErrInvalidDimensions is returned when width is not a power of two or
// depth is zero.
var ErrInvalidDimensions = errors.New("frequency: width must be a power of two and depth must be nonzero")

// Sketch is a depth x width matrix of counters.
type Sketch struct {
	depth   uint32
	width   uint32
	mask    uint64
	seeds   []uint64
	counts  [][]uint64
	total   uint64
}

// New builds a Count-Min Sketch with the given depth (number of hash rows)
// and width (counters per row, must be a power of two).
func New(depth, width uint32) (*Sketch, error) {
	if depth == 0 || width == 0 || width&(width-1) != 0 {
		return nil, ErrInvalidDimensions
	}

	counts := make([][]uint64, depth)
	for i := range counts {
		counts[i] = make([]uint64, width)
	}

	seeds := make([]uint64, depth)
	for i := range seeds {
		// distinct salts derived from a fixed base seed, mixed with the
		// row index via splitmix-style constants.
		seeds[i] = (uint64(i)+1)*0x9E3779B97F4A7C15 + 0xBF58476D1CE4E5B9
	}

	return &Sketch{
		depth:  depth,
		width:  width,
		mask:   uint64(width - 1),
		seeds:  seeds,
		counts: counts,
	}, nil
}

func (s *Sketch) rowHash(row uint32, key string) uint64 {
	h := xxhash.New()
	var seedBuf [8]byte
	seed := s.seeds[row]
	for i := 0; i < 8; i++ {
		seedBuf[i] = byte(seed >> (8 * i))
	}
	_, _ = h.Write(seedBuf[:])
	_, _ = h.WriteString(key)
	return h.Sum64()
}

// Increment adds n to every row's counter for key.
func (s *Sketch) Increment(key string, n uint64) {
	for row := uint32(0); row < s.depth; row++ {
		idx := s.rowHash(row, key) & s.mask
		s.counts[row][idx] += n
	}
	s.total += n
}

// Estimate returns the minimum counter across all rows for key: a value
// that is always >= the true count.
func (s *Sketch) Estimate(key string) uint64 {
	var min uint64 = ^uint64(0)
	for row := uint32(0); row < s.depth; row++ {
		idx := s.rowHash(row, key) & s.mask
		if c := s.counts[row][idx]; c < min {
			min = c
		}
	}
	return min
}

// TotalIncrements returns the sum of all increments applied so far, used to
// reason about the sketch's probabilistic error bound.
func (s *Sketch) TotalIncrements() uint64 {
	return s.total
}

// Depth returns the number of hash rows.
func (s *Sketch) Depth() uint32 { return s.depth }

// Width returns the number of counters per row.
func (s *Sketch) Width() uint32 { return s.width }
