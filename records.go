package geosector

import (
	"context"
)

// CountryKey is the surrogate key assigned to a country code by a Resolver.
// Keys start at 1; the zero value is the Unresolved sentinel.
type CountryKey int64

// Unresolved marks a place whose country code was not found by the Resolver.
const Unresolved CountryKey = 0

// Valid reports whether k refers to a resolved country.
func (k CountryKey) Valid() bool { return k > Unresolved }

// CountryRecord is one row of the country reference dataset.
type CountryRecord struct {
	Code string // Country code, e.g. "US" (compared byte-for-byte unless normalization is on)
	Name string // Display name, e.g. "United States"
}

// Country is a CountryRecord with its assigned surrogate key.
type Country struct {
	Key  CountryKey
	Code string
	Name string
}

// PlaceRecord is one row of the place (city) dataset.
type PlaceRecord struct {
	ID          int64 // Source identifier (GeoNames geonameid), 0 when absent
	Name        string
	Latitude    float64
	Longitude   float64
	CountryCode string
	Line        int // Source line number, 0 when unknown
}

// IndexedPlaceRecord is the output of the ingestion pipeline.
type IndexedPlaceRecord struct {
	ID         int64
	Name       string
	Latitude   float64
	Longitude  float64
	CountryKey CountryKey // Unresolved when the country code was not found
	Sector     uint64     // Hilbert curve index of the quantized coordinates
	Geohash    string     // Empty unless a geohash precision is configured
}

// CountryStream yields country records. Next returns io.EOF at the end of
// the stream and a *ParseError for a single malformed record; any other
// error means the stream itself failed.
type CountryStream interface {
	Next() (CountryRecord, error)
}

// PlaceStream yields place records with the same error contract as
// CountryStream.
type PlaceStream interface {
	Next() (PlaceRecord, error)
}

// Sink accepts indexed records. A record is durable once Emit returns nil
// and the sink has been closed by its owner.
type Sink interface {
	Emit(ctx context.Context, rec IndexedPlaceRecord) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec IndexedPlaceRecord) error

// Emit calls f(ctx, rec).
func (f SinkFunc) Emit(ctx context.Context, rec IndexedPlaceRecord) error { return f(ctx, rec) }
