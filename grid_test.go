package geosector

import (
	"errors"
	"math"

	"github.com/golang/geo/s2"
	. "gopkg.in/check.v1"
)

type GridSuite struct{}

var _ = Suite(&GridSuite{})

func (s *GridSuite) TestQuantizeKnownCells(c *C) {
	g180 := Grid{Level: 10, Span: Span180}
	x, y := g180.Quantize(0, 0)
	c.Assert([2]uint32{x, y}, Equals, [2]uint32{512, 512})
	x, y = g180.Quantize(39.8, -89.6)
	c.Assert([2]uint32{x, y}, Equals, [2]uint32{257, 738})

	g360 := Grid{Level: 10, Span: Span360}
	x, y = g360.Quantize(39.8, -89.6)
	c.Assert([2]uint32{x, y}, Equals, [2]uint32{257, 625})
	// Real latitudes only reach the middle half of the y axis.
	_, y = g360.Quantize(90, 0)
	c.Assert(y, Equals, uint32(768))
	_, y = g360.Quantize(-90, 0)
	c.Assert(y, Equals, uint32(256))
}

func (s *GridSuite) TestQuantizeClampsUpperBound(c *C) {
	for level := uint(1); level <= 16; level++ {
		max := uint32(1)<<level - 1

		x, y := Grid{Level: level, Span: Span180}.Quantize(90, 180)
		c.Assert([2]uint32{x, y}, Equals, [2]uint32{max, max}, Commentf("span 180 level %d", level))

		x, y = Grid{Level: level, Span: Span360}.Quantize(180, 180)
		c.Assert([2]uint32{x, y}, Equals, [2]uint32{max, max}, Commentf("span 360 level %d", level))

		x, y = Grid{Level: level, Span: Span180}.Quantize(-90, -180)
		c.Assert([2]uint32{x, y}, Equals, [2]uint32{0, 0})
	}
}

func (s *GridSuite) TestQuantizeClampsOutOfDomain(c *C) {
	g := Grid{Level: 4, Span: Span180}
	x, y := g.Quantize(-120, 500)
	c.Assert([2]uint32{x, y}, Equals, [2]uint32{15, 0})
	x, y = g.Quantize(math.NaN(), math.NaN())
	c.Assert([2]uint32{x, y}, Equals, [2]uint32{0, 0})
}

func (s *GridSuite) TestContains(c *C) {
	g180 := Grid{Level: 10, Span: Span180}
	g360 := Grid{Level: 10, Span: Span360}

	c.Assert(g180.Contains(90, 180), IsNil)
	c.Assert(g180.Contains(-90, -180), IsNil)
	c.Assert(errors.Is(g180.Contains(91, 0), ErrOutOfDomain), Equals, true)
	c.Assert(errors.Is(g180.Contains(0, 180.5), ErrOutOfDomain), Equals, true)
	c.Assert(errors.Is(g180.Contains(math.NaN(), 0), ErrOutOfDomain), Equals, true)
	c.Assert(errors.Is(g180.Contains(0, math.Inf(1)), ErrOutOfDomain), Equals, true)

	c.Assert(g360.Contains(135, 0), IsNil)
	c.Assert(errors.Is(g360.Contains(181, 0), ErrOutOfDomain), Equals, true)

	c.Assert(errors.Is(Grid{Level: 10}.Contains(0, 0), ErrInvalidGrid), Equals, true)
}

func (s *GridSuite) TestBoundsContainPoint(c *C) {
	g := Grid{Level: 8, Span: Span180}
	points := [][2]float64{
		{39.8, -89.6},
		{51.51279, -0.09184},
		{-33.8688, 151.2093},
		{0, 0},
		{89.999, 179.999},
		{-90, -180},
		{64.1466, -21.9426},
	}
	for _, p := range points {
		x, y := g.Quantize(p[0], p[1])
		rect := g.Bounds(x, y)
		ll := s2.LatLngFromDegrees(p[0], p[1])
		c.Assert(rect.ContainsLatLng(ll), Equals, true, Commentf("%v in cell (%d,%d) %v", p, x, y, rect))

		lat, lon := g.Center(x, y)
		cx, cy := g.Quantize(lat, lon)
		c.Assert([2]uint32{cx, cy}, Equals, [2]uint32{x, y})
	}
}

func (s *GridSuite) TestValidate(c *C) {
	c.Assert(Grid{Level: 10, Span: Span180}.Validate(), IsNil)
	c.Assert(Grid{Level: MaxLevel, Span: Span360}.Validate(), IsNil)
	c.Assert(errors.Is(Grid{Level: 10}.Validate(), ErrInvalidGrid), Equals, true)
	c.Assert(errors.Is(Grid{Level: 0, Span: Span180}.Validate(), ErrInvalidGrid), Equals, true)
	c.Assert(errors.Is(Grid{Level: 32, Span: Span180}.Validate(), ErrInvalidGrid), Equals, true)
}

func (s *GridSuite) TestParseLatitudeSpan(c *C) {
	for in, want := range map[string]LatitudeSpan{"180": Span180, "360": Span360, " 360deg ": Span360} {
		got, err := ParseLatitudeSpan(in)
		c.Assert(err, IsNil)
		c.Assert(got, Equals, want)
	}
	for _, in := range []string{"", "90", "abc", "0"} {
		_, err := ParseLatitudeSpan(in)
		c.Assert(errors.Is(err, ErrInvalidGrid), Equals, true, Commentf("input %q", in))
	}

	var span LatitudeSpan
	c.Assert(span.UnmarshalText([]byte("180")), IsNil)
	c.Assert(span, Equals, Span180)
	b, err := Span360.MarshalText()
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, "360")
	_, err = LatitudeSpan(0).MarshalText()
	c.Assert(err, NotNil)
}
