package geosector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func loadTestResolver(t *testing.T, recs ...CountryRecord) *Resolver {
	t.Helper()
	r, err := LoadResolver(context.Background(), countryStream(recs...))
	if err != nil {
		t.Fatalf("LoadResolver() error = %v", err)
	}
	return r
}

type outcomeCounter map[Outcome]int

func (c outcomeCounter) Observe(o Outcome) { c[o]++ }

func TestPipeline_EndToEnd(t *testing.T) {
	resolver := loadTestResolver(t, CountryRecord{Code: "US", Name: "United States"})
	ix := mustIndexer(10, Span180)
	sink := &collectSink{}
	logger, buf := captureLogger()

	p := &Pipeline{Indexer: ix, Resolver: resolver, Sink: sink, Logger: logger}
	stats, err := p.Run(context.Background(), placeStream(
		PlaceRecord{Name: "Springfield", Latitude: 39.8, Longitude: -89.6, CountryCode: "US"},
	))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sink.recs) != 1 {
		t.Fatalf("emitted %d records, want 1", len(sink.recs))
	}

	got := sink.recs[0]
	usKey, _ := resolver.Lookup("US")
	x, y := ix.Grid().Quantize(39.8, -89.6)
	wantSector := ix.Curve().Index(x, y)
	if ix.Curve() != (Curve{Level: 10, SentinelBit: true}) {
		t.Errorf("Curve() = %+v", ix.Curve())
	}

	if got.Name != "Springfield" || got.Latitude != 39.8 || got.Longitude != -89.6 {
		t.Errorf("record = %+v", got)
	}
	if got.CountryKey != usKey {
		t.Errorf("CountryKey = %d, want %d", got.CountryKey, usKey)
	}
	if got.Sector != wantSector {
		t.Errorf("Sector = %d, want %d from Quantize+Index", got.Sector, wantSector)
	}
	if stats != (Stats{Read: 1, Emitted: 1, Elapsed: stats.Elapsed}) {
		t.Errorf("stats = %+v", stats)
	}
	if n := countEvents(buf, "unresolved_country"); n != 0 {
		t.Errorf("unexpected unresolved_country warnings: %d", n)
	}
}

func TestPipeline_Unresolved(t *testing.T) {
	resolver := loadTestResolver(t, CountryRecord{Code: "US", Name: "United States"})
	sink := &collectSink{}
	logger, buf := captureLogger()
	counter := outcomeCounter{}

	p := &Pipeline{Indexer: mustIndexer(10, Span180), Resolver: resolver, Sink: sink, Logger: logger, Observer: counter}
	stats, err := p.Run(context.Background(), placeStream(
		PlaceRecord{Name: "Atlantis", Latitude: 10, Longitude: -30, CountryCode: "AT"},
	))
	if err != nil {
		t.Fatalf("Run() error = %v, want nil (unresolved is not fatal)", err)
	}
	if len(sink.recs) != 1 {
		t.Fatalf("emitted %d records, want 1", len(sink.recs))
	}
	if sink.recs[0].CountryKey != Unresolved || sink.recs[0].CountryKey.Valid() {
		t.Errorf("CountryKey = %d, want Unresolved", sink.recs[0].CountryKey)
	}
	if n := countEvents(buf, "unresolved_country"); n != 1 {
		t.Errorf("unresolved_country logged %d times, want 1\n%s", n, buf)
	}
	if stats.Unresolved != 1 || stats.Emitted != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if counter[OutcomeUnresolved] != 1 || counter[OutcomeEmitted] != 0 {
		t.Errorf("observer = %v", counter)
	}
}

func TestPipeline_UnresolvedLoggedPerOccurrence(t *testing.T) {
	resolver := loadTestResolver(t, CountryRecord{Code: "US", Name: "United States"})
	logger, buf := captureLogger()
	p := &Pipeline{Indexer: mustIndexer(10, Span180), Resolver: resolver, Sink: &collectSink{}, Logger: logger}

	_, err := p.Run(context.Background(), placeStream(
		PlaceRecord{Name: "A", Latitude: 1, Longitude: 1, CountryCode: "ZZ"},
		PlaceRecord{Name: "B", Latitude: 2, Longitude: 2, CountryCode: "ZZ"},
		PlaceRecord{Name: "C", Latitude: 3, Longitude: 3, CountryCode: "us"},
	))
	if err != nil {
		t.Fatal(err)
	}
	if n := countEvents(buf, "unresolved_country"); n != 3 {
		t.Errorf("unresolved_country logged %d times, want 3", n)
	}
}

func TestPipeline_SkipsBadRecords(t *testing.T) {
	resolver := loadTestResolver(t, CountryRecord{Code: "FR", Name: "France"})
	sink := &collectSink{}
	logger, buf := captureLogger()
	counter := outcomeCounter{}

	stream := &scriptedStream[PlaceRecord]{items: []streamItem[PlaceRecord]{
		{rec: PlaceRecord{Name: "Paris", Latitude: 48.85, Longitude: 2.35, CountryCode: "FR", Line: 1}},
		{rec: PlaceRecord{Line: 2}, err: &ParseError{Line: 2, Field: "latitude", Reason: "not a number"}},
		{rec: PlaceRecord{Name: "Offworld", Latitude: 120, Longitude: 0, CountryCode: "FR", Line: 3}},
		{rec: PlaceRecord{Name: "Lyon", Latitude: 45.75, Longitude: 4.85, CountryCode: "FR", Line: 4}},
	}}
	p := &Pipeline{Indexer: mustIndexer(10, Span180), Resolver: resolver, Sink: sink, Logger: logger, Observer: counter}
	stats, err := p.Run(context.Background(), stream)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sink.recs) != 2 || sink.recs[0].Name != "Paris" || sink.recs[1].Name != "Lyon" {
		t.Errorf("emitted %+v, want Paris then Lyon", sink.recs)
	}
	if stats.Read != 4 || stats.Skipped != 2 || stats.Emitted != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if n := countEvents(buf, "record_skipped"); n != 2 {
		t.Errorf("record_skipped logged %d times, want 2", n)
	}
	if counter[OutcomeSkipped] != 2 || counter[OutcomeEmitted] != 2 {
		t.Errorf("observer = %v", counter)
	}
}

func TestPipeline_SkippedRecordLogsSourceLine(t *testing.T) {
	resolver := loadTestResolver(t, CountryRecord{Code: "FR", Name: "France"})
	logger, buf := captureLogger()
	stream := &scriptedStream[PlaceRecord]{items: []streamItem[PlaceRecord]{
		{err: &ParseError{Line: 7, Field: "latitude", Reason: "not a number"}},
	}}
	p := &Pipeline{Indexer: mustIndexer(10, Span180), Resolver: resolver, Sink: &collectSink{}, Logger: logger}
	if _, err := p.Run(context.Background(), stream); err != nil {
		t.Fatal(err)
	}
	if n := countEvents(buf, "record_skipped"); n != 1 {
		t.Fatalf("record_skipped logged %d times, want 1", n)
	}
	if !strings.Contains(buf.String(), "line=7 ") {
		t.Errorf("record_skipped does not carry line 7:\n%s", buf)
	}
}

func TestPipeline_Span360AcceptsWideLatitude(t *testing.T) {
	resolver := loadTestResolver(t, CountryRecord{Code: "US", Name: "United States"})
	sink := &collectSink{}
	p := &Pipeline{Indexer: mustIndexer(10, Span360), Resolver: resolver, Sink: sink}
	stats, err := p.Run(context.Background(), placeStream(
		PlaceRecord{Name: "Edge", Latitude: 180, Longitude: 180, CountryCode: "US"},
	))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Emitted != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	max := uint32(1)<<10 - 1
	if want := (Curve{Level: 10, SentinelBit: true}).Index(max, max); sink.recs[0].Sector != want {
		t.Errorf("Sector = %d, want last-cell index %d", sink.recs[0].Sector, want)
	}
}

func TestPipeline_ResourceErrorsPropagate(t *testing.T) {
	resolver := loadTestResolver(t, CountryRecord{Code: "US", Name: "United States"})
	rec := PlaceRecord{Name: "Springfield", Latitude: 39.8, Longitude: -89.6, CountryCode: "US"}

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d/stream", workers), func(t *testing.T) {
			boom := errors.New("read failed")
			stream := placeStream(rec, rec)
			stream.tail = boom
			sink := &collectSink{}
			p := &Pipeline{Indexer: mustIndexer(10, Span180), Resolver: resolver, Sink: sink, Workers: workers}
			_, err := p.Run(context.Background(), stream)
			if !errors.Is(err, boom) {
				t.Errorf("Run() error = %v, want %v", err, boom)
			}
		})
		t.Run(fmt.Sprintf("workers=%d/sink", workers), func(t *testing.T) {
			boom := errors.New("disk full")
			calls := 0
			sink := SinkFunc(func(context.Context, IndexedPlaceRecord) error {
				calls++
				if calls == 2 {
					return boom
				}
				return nil
			})
			p := &Pipeline{Indexer: mustIndexer(10, Span180), Resolver: resolver, Sink: sink, Workers: workers}
			stats, err := p.Run(context.Background(), placeStream(rec, rec, rec))
			if !errors.Is(err, boom) {
				t.Errorf("Run() error = %v, want %v", err, boom)
			}
			if stats.Emitted != 1 || calls != 2 {
				t.Errorf("Emitted = %d, sink calls = %d; want 1 and 2", stats.Emitted, calls)
			}
		})
	}
}

func TestPipeline_Canceled(t *testing.T) {
	resolver := loadTestResolver(t, CountryRecord{Code: "US", Name: "United States"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, workers := range []int{1, 3} {
		p := &Pipeline{Indexer: mustIndexer(10, Span180), Resolver: resolver, Sink: &collectSink{}, Workers: workers}
		_, err := p.Run(ctx, placeStream(PlaceRecord{Name: "X", Latitude: 1, Longitude: 1, CountryCode: "US"}))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: Run() error = %v, want context.Canceled", workers, err)
		}
	}
}

func TestPipeline_ParallelPreservesOrder(t *testing.T) {
	resolver := loadTestResolver(t,
		CountryRecord{Code: "US", Name: "United States"},
		CountryRecord{Code: "FR", Name: "France"},
	)
	var places []PlaceRecord
	for i := 0; i < 2000; i++ {
		code := "US"
		if i%3 == 0 {
			code = "FR"
		}
		if i%17 == 0 {
			code = "ZZ"
		}
		places = append(places, PlaceRecord{
			Name:        fmt.Sprintf("place-%d", i),
			Latitude:    float64(i%180) - 89.5,
			Longitude:   float64((i*7)%360) - 179.5,
			CountryCode: code,
		})
	}

	run := func(workers int) ([]IndexedPlaceRecord, Stats) {
		sink := &collectSink{}
		logger, _ := captureLogger()
		p := &Pipeline{
			Indexer:       mustIndexer(12, Span180, WithGeohash(5)),
			Resolver:      resolver,
			Sink:          sink,
			Logger:        logger,
			Workers:       workers,
			ProgressEvery: 500,
		}
		stats, err := p.Run(context.Background(), placeStream(places...))
		if err != nil {
			t.Fatalf("workers=%d: Run() error = %v", workers, err)
		}
		return sink.recs, stats
	}

	seq, seqStats := run(1)
	par, parStats := run(8)
	if len(seq) != len(places) || len(par) != len(places) {
		t.Fatalf("emitted seq=%d par=%d, want %d", len(seq), len(par), len(places))
	}
	for i := range seq {
		if seq[i] != par[i] {
			t.Fatalf("record %d differs: seq %+v, par %+v", i, seq[i], par[i])
		}
	}
	if seqStats.Unresolved != parStats.Unresolved || seqStats.Unresolved == 0 {
		t.Errorf("unresolved seq=%d par=%d", seqStats.Unresolved, parStats.Unresolved)
	}
}

func TestPipeline_RequiresCollaborators(t *testing.T) {
	p := &Pipeline{Indexer: mustIndexer(10, Span180)}
	if _, err := p.Run(context.Background(), placeStream()); err == nil {
		t.Error("Run() without resolver and sink error = nil, want error")
	}
}
