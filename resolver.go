package geosector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxSuggestDistance caps how far a suggested country code may be from the
// code that failed to resolve.
const maxSuggestDistance = 1

// Resolver maps country codes to surrogate keys. It is built once by
// LoadResolver and is read-only afterwards, so a single Resolver may be
// shared by concurrent ingestion workers without locking.
type Resolver struct {
	keys      map[string]CountryKey
	countries []Country
	normalize bool
}

// ResolverOption configures LoadResolver.
type ResolverOption func(*resolverConfig)

type resolverConfig struct {
	normalize bool
	logger    *slog.Logger
}

// WithCodeNormalization trims whitespace and upper-cases codes on both load
// and lookup. Off by default: codes are compared byte-for-byte.
func WithCodeNormalization(on bool) ResolverOption {
	return func(c *resolverConfig) {
		c.normalize = on
	}
}

// WithResolverLogger sets the logger used for skipped country rows.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(c *resolverConfig) {
		c.logger = l
	}
}

// LoadResolver consumes stream once. Each accepted record takes the next
// key, starting at 1. When a code repeats, the code is rebound to the newer
// key (last write wins) and both rows remain in Countries.
//
// Malformed rows (*ParseError) and rows with an empty code are skipped and
// logged. Any other stream error aborts the load.
func LoadResolver(ctx context.Context, stream CountryStream, opts ...ResolverOption) (*Resolver, error) {
	cfg := resolverConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Resolver{
		keys:      make(map[string]CountryKey, 256),
		normalize: cfg.normalize,
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				cfg.logger.Warn("country_skipped", "line", pe.Line, "err", pe)
				continue
			}
			return nil, err
		}

		code := r.canonical(rec.Code)
		if code == "" {
			cfg.logger.Warn("country_skipped", "reason", "empty code", "name", rec.Name)
			continue
		}
		key := CountryKey(len(r.countries) + 1)
		r.countries = append(r.countries, Country{Key: key, Code: code, Name: rec.Name})
		r.keys[code] = key
	}
	return r, nil
}

func (r *Resolver) canonical(code string) string {
	if r.normalize {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	return code
}

// Lookup returns the key for code, or (Unresolved, false) when the code was
// never loaded.
func (r *Resolver) Lookup(code string) (CountryKey, bool) {
	key, ok := r.keys[r.canonical(code)]
	if !ok {
		return Unresolved, false
	}
	return key, true
}

// Len returns the number of distinct codes.
func (r *Resolver) Len() int { return len(r.keys) }

// Countries returns every loaded row in key order. The slice is shared;
// callers must not modify it.
func (r *Resolver) Countries() []Country { return r.countries }

// Suggest returns the known code closest to code by edit distance, for use
// in diagnostics. Ties go to the lower key.
func (r *Resolver) Suggest(code string) (string, bool) {
	code = r.canonical(code)
	if code == "" {
		return "", false
	}
	best, bestDist := "", maxSuggestDistance+1
	for _, c := range r.countries {
		if r.keys[c.Code] != c.Key {
			continue // superseded duplicate
		}
		d := levenshtein.ComputeDistance(strings.ToUpper(code), strings.ToUpper(c.Code))
		if d < bestDist {
			best, bestDist = c.Code, d
		}
	}
	return best, best != ""
}
