package geonames

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andreiashu/geosector"
)

// Column layouts. The full layout is cities1000.txt; the filtered layout is
// what Filter writes.
const (
	fullColumns     = 19
	filteredColumns = 5
)

type placeLayout struct {
	id, name, lat, lon, country int
}

var (
	fullLayout     = placeLayout{id: 0, name: 1, lat: 4, lon: 5, country: 8}
	filteredLayout = placeLayout{id: 0, name: 1, lat: 2, lon: 3, country: 4}
)

// PlaceReader streams place records. The layout is detected per line from
// the column count, so full and filtered rows may be mixed.
type PlaceReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

// NewPlaceReader reads places from r. The caller keeps ownership of r.
func NewPlaceReader(r io.Reader) *PlaceReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &PlaceReader{scanner: sc}
}

// OpenPlaces opens path (see Open) and returns a reader that owns it.
func OpenPlaces(path string) (*PlaceReader, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	pr := NewPlaceReader(rc)
	pr.closer = rc
	return pr, nil
}

// Next implements geosector.PlaceStream. A malformed line yields a
// *geosector.ParseError carrying whatever fields could be read.
func (r *PlaceReader) Next() (geosector.PlaceRecord, error) {
	for r.scanner.Scan() {
		r.line++
		t := r.scanner.Text()
		if strings.TrimSpace(t) == "" {
			continue
		}
		return parsePlace(t, r.line)
	}
	if err := r.scanner.Err(); err != nil {
		return geosector.PlaceRecord{}, fmt.Errorf("reading places: %w", err)
	}
	return geosector.PlaceRecord{}, io.EOF
}

// Close releases the underlying file when the reader was opened by path.
func (r *PlaceReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func parsePlace(line string, lineNo int) (geosector.PlaceRecord, error) {
	fields := strings.Split(line, "\t")
	var lay placeLayout
	switch len(fields) {
	case fullColumns:
		lay = fullLayout
	case filteredColumns:
		lay = filteredLayout
	default:
		return geosector.PlaceRecord{Line: lineNo}, &geosector.ParseError{
			Line:   lineNo,
			Reason: fmt.Sprintf("got %d columns, want %d or %d", len(fields), filteredColumns, fullColumns),
		}
	}

	rec := geosector.PlaceRecord{
		Name:        strings.Trim(fields[lay.name], " "),
		CountryCode: fields[lay.country],
		Line:        lineNo,
	}
	// A missing or odd geonameid is not worth dropping the place over.
	if id, err := strconv.ParseInt(fields[lay.id], 10, 64); err == nil {
		rec.ID = id
	}
	if rec.Name == "" {
		return rec, &geosector.ParseError{Line: lineNo, Field: "name", Reason: "empty"}
	}

	// Unparseable coordinates are rejected instead of defaulting to (0, 0).
	lat, err := strconv.ParseFloat(strings.TrimSpace(fields[lay.lat]), 64)
	if err != nil {
		return rec, &geosector.ParseError{Line: lineNo, Field: "latitude", Err: err}
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(fields[lay.lon]), 64)
	if err != nil {
		return rec, &geosector.ParseError{Line: lineNo, Field: "longitude", Err: err}
	}
	rec.Latitude, rec.Longitude = lat, lon
	return rec, nil
}
