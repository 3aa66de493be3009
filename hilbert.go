package geosector

import "fmt"

// Curve maps grid cells onto positions along a Hilbert curve.
//
// The encoder walks the bits of x and y from the most significant down,
// reflecting the lower bits whenever the current quadrant requires it, and
// appends two bits of output per step. Level is the grid resolution and
// SentinelBit adds one extra leading step at bit position Level. That step
// always sees zero bits, so it only transposes the curve; both variants
// cover [0, 4^Level) exactly once. Level and SentinelBit together define the
// index and must match whatever later reads it.
type Curve struct {
	Level       uint
	SentinelBit bool
}

// Validate reports whether the curve can be used.
func (c Curve) Validate() error {
	if c.Level < 1 || c.Level > MaxLevel {
		return fmt.Errorf("%w: curve level %d outside [1, %d]", ErrInvalidGrid, c.Level, MaxLevel)
	}
	return nil
}

// Size is the number of distinct indexes, 4^Level.
func (c Curve) Size() uint64 { return uint64(1) << (2 * c.Level) }

// Steps is the number of bit positions the encoder visits.
func (c Curve) Steps() int {
	if c.SentinelBit {
		return int(c.Level) + 1
	}
	return int(c.Level)
}

// Index returns the distance of cell (x, y) along the curve. It panics with
// an *IndexOutOfRangeError when x or y is not below 2^Level.
func (c Curve) Index(x, y uint32) uint64 {
	if uint64(x) >= uint64(1)<<c.Level || uint64(y) >= uint64(1)<<c.Level {
		panic(&IndexOutOfRangeError{X: x, Y: y, Level: c.Level})
	}

	var s uint64
	for i := c.Steps() - 1; i >= 0; i-- {
		xi := (x >> uint(i)) & 1
		yi := (y >> uint(i)) & 1
		if yi == 0 {
			// Swap, and complement the remaining low bits when xi is set.
			flip := (uint32(1)<<uint(i) - 1) & -xi
			x, y = y^flip, x^flip
		}
		s = s<<2 | uint64(xi<<1|(xi^yi))
	}
	return s
}
