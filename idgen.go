package tuxdrive

import "sync/atomic"

// IDGenerator hands out monotonically increasing event identifiers.
// It is safe for concurrent use; Next uses sequentially consistent
// fetch-and-add.
//
// The generator has no teardown and never needs re-initializing. It
// does not guard against wraparound: after 2^32-1 ids the 32-bit
// counter wraps silently back to 0.
type IDGenerator struct {
	curr atomic.Uint32
}

// NewIDGenerator returns a generator whose first Next() call returns 1.
func NewIDGenerator() *IDGenerator {
	g := &IDGenerator{}
	g.curr.Store(0)
	return g
}

// Next returns the next id in the sequence, starting at 1.
func (g *IDGenerator) Next() uint32 {
	return g.curr.Add(1)
}
