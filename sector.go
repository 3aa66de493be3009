package geosector

import (
	"fmt"

	"github.com/TomiHiltunen/geohash-golang"
)

// IndexParams identifies how sector indexes were computed. Two datasets are
// only comparable when their IndexParams are equal.
type IndexParams struct {
	Level       uint
	Span        LatitudeSpan
	SentinelBit bool
}

func (p IndexParams) String() string {
	return fmt.Sprintf("level=%d span=%s sentinel=%t", p.Level, p.Span, p.SentinelBit)
}

// Indexer combines a Grid and a Curve at the same level. It holds no
// mutable state and is safe for concurrent use.
type Indexer struct {
	grid             Grid
	curve            Curve
	geohashPrecision int
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithSentinelBit selects the curve variant. The default is true
// (Level+1 encoder steps).
func WithSentinelBit(on bool) IndexerOption {
	return func(ix *Indexer) {
		ix.curve.SentinelBit = on
	}
}

// WithGeohash sets the precision Geohash encodes at. Zero disables it.
func WithGeohash(precision int) IndexerOption {
	return func(ix *Indexer) {
		ix.geohashPrecision = precision
	}
}

// NewIndexer returns an Indexer for the given level and latitude span.
// The span has no default; callers must choose one.
//
//	ix, err := NewIndexer(10, Span180)
//	sector, err := ix.Sector(39.8, -89.6)
func NewIndexer(level uint, span LatitudeSpan, opts ...IndexerOption) (*Indexer, error) {
	ix := &Indexer{
		grid:  Grid{Level: level, Span: span},
		curve: Curve{Level: level, SentinelBit: true},
	}
	for _, opt := range opts {
		opt(ix)
	}
	if err := ix.grid.Validate(); err != nil {
		return nil, err
	}
	if err := ix.curve.Validate(); err != nil {
		return nil, err
	}
	if ix.geohashPrecision < 0 || ix.geohashPrecision > 12 {
		return nil, fmt.Errorf("%w: geohash precision %d outside [0, 12]", ErrInvalidGrid, ix.geohashPrecision)
	}
	return ix, nil
}

// Grid returns the quantization grid.
func (ix *Indexer) Grid() Grid { return ix.grid }

// Curve returns the Hilbert curve.
func (ix *Indexer) Curve() Curve { return ix.curve }

// Params returns the parameters that define this indexer's output.
func (ix *Indexer) Params() IndexParams {
	return IndexParams{Level: ix.grid.Level, Span: ix.grid.Span, SentinelBit: ix.curve.SentinelBit}
}

// Sector returns the curve index of (lat, lon), or an error wrapping
// ErrOutOfDomain when the coordinates are outside the grid's domain.
func (ix *Indexer) Sector(lat, lon float64) (uint64, error) {
	if err := ix.grid.Contains(lat, lon); err != nil {
		return 0, err
	}
	x, y := ix.grid.Quantize(lat, lon)
	return ix.curve.Index(x, y), nil
}

// Geohash returns the geohash of (lat, lon) at the configured precision, or
// "" when geohashing is disabled.
func (ix *Indexer) Geohash(lat, lon float64) string {
	if ix.geohashPrecision == 0 {
		return ""
	}
	return geohash.EncodeWithPrecision(lat, lon, ix.geohashPrecision)
}
