package geonames

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/andreiashu/geosector"
)

// countryInfoColumns is the column count of countryInfo.txt.
const countryInfoColumns = 19

// CountryReader streams country records from countryInfo.txt, or from a
// two-column "code<TAB>name" file. Blank lines and '#' comments are skipped.
type CountryReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

// NewCountryReader reads countries from r. The caller keeps ownership of r.
func NewCountryReader(r io.Reader) *CountryReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &CountryReader{scanner: sc}
}

// OpenCountries opens path (see Open) and returns a reader that owns it.
func OpenCountries(path string) (*CountryReader, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	cr := NewCountryReader(rc)
	cr.closer = rc
	return cr, nil
}

// Next implements geosector.CountryStream.
func (r *CountryReader) Next() (geosector.CountryRecord, error) {
	for r.scanner.Scan() {
		r.line++
		t := r.scanner.Text()
		if strings.TrimSpace(t) == "" || t[0] == '#' {
			continue
		}

		fields := strings.Split(t, "\t")
		switch {
		case len(fields) >= countryInfoColumns:
			return geosector.CountryRecord{Code: fields[0], Name: fields[4]}, nil
		case len(fields) == 2:
			return geosector.CountryRecord{Code: fields[0], Name: fields[1]}, nil
		default:
			return geosector.CountryRecord{}, &geosector.ParseError{
				Line:   r.line,
				Reason: fmt.Sprintf("got %d columns, want 2 or %d", len(fields), countryInfoColumns),
			}
		}
	}
	if err := r.scanner.Err(); err != nil {
		return geosector.CountryRecord{}, fmt.Errorf("reading countries: %w", err)
	}
	return geosector.CountryRecord{}, io.EOF
}

// Close releases the underlying file when the reader was opened by path.
func (r *CountryReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
