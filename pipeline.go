package geosector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// defaultProgressEvery matches the store's default batch size so progress
// lines line up with commits.
const defaultProgressEvery = 5000

// Outcome classifies what happened to one input record.
type Outcome int

const (
	OutcomeSkipped    Outcome = iota // malformed, not emitted
	OutcomeEmitted                   // emitted with a resolved country
	OutcomeUnresolved                // emitted with the Unresolved sentinel
)

// Observer is notified once per input record, in input order.
type Observer interface {
	Observe(Outcome)
}

// Stats summarizes a pipeline run.
type Stats struct {
	Read       int
	Emitted    int
	Skipped    int
	Unresolved int
	Elapsed    time.Duration
}

// Pipeline indexes a place stream and emits the result to a sink.
//
// Per-record problems (unparseable or out-of-domain coordinates, unknown
// country codes) are logged and never stop the run. Only stream failures,
// sink failures and context cancellation end Run with an error.
type Pipeline struct {
	Indexer  *Indexer
	Resolver *Resolver
	Sink     Sink

	Logger        *slog.Logger // slog.Default() when nil
	Observer      Observer     // optional
	Workers       int          // <= 1 runs sequentially
	ProgressEvery int          // records between progress logs, 0 for the default
}

type result struct {
	rec PlaceRecord
	out IndexedPlaceRecord
	err error
}

// Run consumes stream to the end. Records are emitted in input order
// regardless of Workers.
func (p *Pipeline) Run(ctx context.Context, stream PlaceStream) (Stats, error) {
	if p.Indexer == nil || p.Resolver == nil || p.Sink == nil {
		return Stats{}, errors.New("geosector: pipeline needs an indexer, a resolver and a sink")
	}
	start := time.Now()
	p.logger().Info("ingest_start", "params", p.Indexer.Params().String(), "workers", p.workers())

	var stats Stats
	var err error
	if p.workers() > 1 {
		stats, err = p.runParallel(ctx, stream)
	} else {
		stats, err = p.runSequential(ctx, stream)
	}
	stats.Elapsed = time.Since(start)
	if err != nil {
		p.logger().Error("ingest_failed", "read", stats.Read, "emitted", stats.Emitted, "err", err)
		return stats, err
	}
	p.logger().Info("ingest_done",
		"read", stats.Read,
		"emitted", stats.Emitted,
		"skipped", stats.Skipped,
		"unresolved", stats.Unresolved,
		"elapsed", stats.Elapsed)
	return stats, nil
}

func (p *Pipeline) runSequential(ctx context.Context, stream PlaceStream) (Stats, error) {
	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		var res result
		switch {
		case err == nil:
			res = p.index(rec)
		case IsParseError(err):
			res = result{rec: rec, err: err}
		default:
			return stats, fmt.Errorf("read places: %w", err)
		}
		if err := p.handle(ctx, res, &stats); err != nil {
			return stats, err
		}
	}
}

// runParallel fans records out to a worker pool. The reader queues one
// result channel per record in input order and the calling goroutine drains
// that queue, so the sink sees a single writer in input order.
func (p *Pipeline) runParallel(ctx context.Context, stream PlaceStream) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type job struct {
		rec PlaceRecord
		out chan<- result
	}
	depth := p.workers() * 4
	jobs := make(chan job, depth)
	pending := make(chan chan result, depth)

	var wg sync.WaitGroup
	for i := 0; i < p.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				j.out <- p.index(j.rec)
			}
		}()
	}

	var readErr error
	go func() {
		defer close(pending)
		defer close(jobs)
		for {
			rec, err := stream.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			out := make(chan result, 1)
			dispatch := true
			if err != nil {
				if !IsParseError(err) {
					readErr = fmt.Errorf("read places: %w", err)
					return
				}
				out <- result{rec: rec, err: err}
				dispatch = false
			}
			select {
			case pending <- out:
			case <-ctx.Done():
				return
			}
			if !dispatch {
				continue
			}
			select {
			case jobs <- job{rec: rec, out: out}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var stats Stats
	var runErr error
	for out := range pending {
		select {
		case res := <-out:
			runErr = p.handle(ctx, res, &stats)
		case <-ctx.Done():
			runErr = ctx.Err()
		}
		if runErr != nil {
			cancel()
			break
		}
	}
	if runErr != nil {
		for range pending {
		}
	}
	wg.Wait()

	if runErr != nil {
		return stats, runErr
	}
	if readErr != nil {
		return stats, readErr
	}
	return stats, ctx.Err()
}

// index is pure apart from the read-only Resolver and Indexer.
func (p *Pipeline) index(rec PlaceRecord) result {
	sector, err := p.Indexer.Sector(rec.Latitude, rec.Longitude)
	if err != nil {
		return result{rec: rec, err: &ParseError{Line: rec.Line, Field: "coordinates", Err: err}}
	}
	key, _ := p.Resolver.Lookup(rec.CountryCode)
	return result{
		rec: rec,
		out: IndexedPlaceRecord{
			ID:         rec.ID,
			Name:       rec.Name,
			Latitude:   rec.Latitude,
			Longitude:  rec.Longitude,
			CountryKey: key,
			Sector:     sector,
			Geohash:    p.Indexer.Geohash(rec.Latitude, rec.Longitude),
		},
	}
}

func (p *Pipeline) handle(ctx context.Context, res result, stats *Stats) error {
	stats.Read++
	if res.err != nil {
		stats.Skipped++
		line := res.rec.Line
		var pe *ParseError
		if errors.As(res.err, &pe) && pe.Line > 0 {
			line = pe.Line
		}
		p.logger().Warn("record_skipped", "line", line, "name", res.rec.Name, "err", res.err)
		p.observe(OutcomeSkipped)
		return nil
	}

	outcome := OutcomeEmitted
	if !res.out.CountryKey.Valid() {
		outcome = OutcomeUnresolved
		stats.Unresolved++
		attrs := []any{"line", res.rec.Line, "name", res.rec.Name, "country_code", res.rec.CountryCode}
		if s, ok := p.Resolver.Suggest(res.rec.CountryCode); ok {
			attrs = append(attrs, "suggest", s)
		}
		p.logger().Warn("unresolved_country", attrs...)
	}

	if err := p.Sink.Emit(ctx, res.out); err != nil {
		return fmt.Errorf("emit %q (line %d): %w", res.out.Name, res.rec.Line, err)
	}
	stats.Emitted++
	p.observe(outcome)

	if stats.Read%p.progressEvery() == 0 {
		p.logger().Info("ingest_progress", "count", stats.Read)
	}
	return nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) observe(o Outcome) {
	if p.Observer != nil {
		p.Observer.Observe(o)
	}
}

func (p *Pipeline) workers() int {
	if p.Workers < 1 {
		return 1
	}
	return p.Workers
}

func (p *Pipeline) progressEvery() int {
	if p.ProgressEvery <= 0 {
		return defaultProgressEvery
	}
	return p.ProgressEvery
}
