package geosector

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// MaxLevel is the finest grid supported. A level 31 grid with the sentinel
// bit still fits the curve index in a signed 64-bit integer column.
const MaxLevel = 31

// LatitudeSpan selects how latitude is mapped onto the grid's y axis.
//
// Span180 is geographically correct: latitude covers [-90, 90] so every cell
// is 360/2^L degrees wide and 180/2^L degrees tall.
//
// Span360 treats latitude like longitude, covering [-180, 180]. Real
// coordinates then only occupy the middle half of the y axis, but cells are
// square in degrees. This is what older sector databases used.
//
// Indexes built under one span are not comparable with the other.
type LatitudeSpan int

const (
	Span180 LatitudeSpan = 180
	Span360 LatitudeSpan = 360
)

// ParseLatitudeSpan accepts "180" or "360" (an optional "deg" suffix is
// allowed). There is no default.
func ParseLatitudeSpan(s string) (LatitudeSpan, error) {
	s = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(s)), "deg")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: latitude span %q", ErrInvalidGrid, s)
	}
	span := LatitudeSpan(n)
	if !span.valid() {
		return 0, fmt.Errorf("%w: latitude span %d, want 180 or 360", ErrInvalidGrid, n)
	}
	return span, nil
}

func (s LatitudeSpan) valid() bool { return s == Span180 || s == Span360 }

func (s LatitudeSpan) String() string { return strconv.Itoa(int(s)) }

// MarshalText implements encoding.TextMarshaler.
func (s LatitudeSpan) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("%w: latitude span %d", ErrInvalidGrid, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LatitudeSpan) UnmarshalText(b []byte) error {
	v, err := ParseLatitudeSpan(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Grid quantizes coordinates into a 2^Level by 2^Level cell grid.
// x follows longitude, y follows latitude; (0, 0) is the south-west corner.
type Grid struct {
	Level uint
	Span  LatitudeSpan
}

// Validate reports whether the grid can be used.
func (g Grid) Validate() error {
	if g.Level < 1 || g.Level > MaxLevel {
		return fmt.Errorf("%w: level %d outside [1, %d]", ErrInvalidGrid, g.Level, MaxLevel)
	}
	if !g.Span.valid() {
		return fmt.Errorf("%w: latitude span not set", ErrInvalidGrid)
	}
	return nil
}

// Dimension is the number of cells along each axis.
func (g Grid) Dimension() uint32 { return uint32(1) << g.Level }

func (g Grid) latOffset() float64 { return float64(g.Span) / 2 }

// Contains returns an error wrapping ErrOutOfDomain when (lat, lon) cannot
// be quantized under this grid's latitude span.
func (g Grid) Contains(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return fmt.Errorf("%w: non-finite coordinate (%v, %v)", ErrOutOfDomain, lat, lon)
	}
	switch g.Span {
	case Span180:
		if !s2.LatLngFromDegrees(lat, lon).IsValid() {
			return fmt.Errorf("%w: (%v, %v)", ErrOutOfDomain, lat, lon)
		}
	case Span360:
		if math.Abs(lat) > 180 || math.Abs(lon) > 180 {
			return fmt.Errorf("%w: (%v, %v)", ErrOutOfDomain, lat, lon)
		}
	default:
		return fmt.Errorf("%w: latitude span not set", ErrInvalidGrid)
	}
	return nil
}

// Quantize maps (lat, lon) onto a cell. Values on the upper bound
// (lat = Span/2, lon = 180) land in the last cell; anything outside the
// domain is clamped to the nearest edge cell. Callers that must reject such
// input check Contains first.
func (g Grid) Quantize(lat, lon float64) (x, y uint32) {
	cells := float64(g.Dimension())
	x = clampCell((lon+180)*cells/360, g.Dimension())
	y = clampCell((lat+g.latOffset())*cells/float64(g.Span), g.Dimension())
	return x, y
}

func clampCell(v float64, dim uint32) uint32 {
	f := math.Floor(v)
	if !(f > 0) { // also catches NaN
		return 0
	}
	if f >= float64(dim) {
		return dim - 1
	}
	return uint32(f)
}

// Bounds returns the rectangle covered by cell (x, y). For Span360 the
// latitude interval of the outer rows lies beyond the poles.
func (g Grid) Bounds(x, y uint32) s2.Rect {
	w := 360 / float64(g.Dimension())
	h := float64(g.Span) / float64(g.Dimension())
	lon0 := -180 + float64(x)*w
	lat0 := -g.latOffset() + float64(y)*h
	return s2.Rect{
		Lat: r1.Interval{Lo: degrees(lat0), Hi: degrees(lat0 + h)},
		Lng: s1.IntervalFromEndpoints(degrees(lon0), degrees(lon0+w)),
	}
}

// Center returns the midpoint of cell (x, y) in degrees.
func (g Grid) Center(x, y uint32) (lat, lon float64) {
	w := 360 / float64(g.Dimension())
	h := float64(g.Span) / float64(g.Dimension())
	return -g.latOffset() + (float64(y)+0.5)*h, -180 + (float64(x)+0.5)*w
}

func degrees(d float64) float64 { return (s1.Angle(d) * s1.Degree).Radians() }
