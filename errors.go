package geosector

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGrid is returned for a grid or curve with an unusable
	// level or an unset latitude span.
	ErrInvalidGrid = errors.New("geosector: invalid grid")

	// ErrOutOfDomain is returned for coordinates outside the grid domain.
	ErrOutOfDomain = errors.New("geosector: coordinate out of domain")
)

// ParseError describes a single malformed input record. It is never fatal
// to a pipeline run: the record is skipped and logged.
type ParseError struct {
	Line   int    // 1-based line number in the source, 0 when unknown
	Field  string // Offending field, empty for shape errors
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse error"
	if e.Line > 0 {
		msg = fmt.Sprintf("parse error at line %d", e.Line)
	}
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is, or wraps, a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IndexOutOfRangeError is raised (as a panic value) when a cell coordinate
// handed to a Curve lies outside its grid. It indicates a clamping bug in
// the caller, never bad input data.
type IndexOutOfRangeError struct {
	X, Y  uint32
	Level uint
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("geosector: cell (%d, %d) outside %dx%d grid", e.X, e.Y, uint64(1)<<e.Level, uint64(1)<<e.Level)
}
