package geosector

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// streamItem is one scripted Next result.
type streamItem[T any] struct {
	rec T
	err error
}

type scriptedStream[T any] struct {
	mu    sync.Mutex
	items []streamItem[T]
	pos   int
	tail  error // returned after items run out, io.EOF when nil
}

func (s *scriptedStream[T]) Next() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if s.pos >= len(s.items) {
		if s.tail != nil {
			return zero, s.tail
		}
		return zero, io.EOF
	}
	it := s.items[s.pos]
	s.pos++
	return it.rec, it.err
}

func countryStream(recs ...CountryRecord) *scriptedStream[CountryRecord] {
	s := &scriptedStream[CountryRecord]{}
	for _, r := range recs {
		s.items = append(s.items, streamItem[CountryRecord]{rec: r})
	}
	return s
}

func placeStream(recs ...PlaceRecord) *scriptedStream[PlaceRecord] {
	s := &scriptedStream[PlaceRecord]{}
	for i, r := range recs {
		if r.Line == 0 {
			r.Line = i + 1
		}
		s.items = append(s.items, streamItem[PlaceRecord]{rec: r})
	}
	return s
}

// collectSink records emitted records in order.
type collectSink struct {
	recs []IndexedPlaceRecord
	fail error
}

func (s *collectSink) Emit(_ context.Context, rec IndexedPlaceRecord) error {
	if s.fail != nil {
		return s.fail
	}
	s.recs = append(s.recs, rec)
	return nil
}

// captureLogger returns a text logger writing into a buffer.
func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

// countEvents counts log lines with msg=event.
func countEvents(buf *bytes.Buffer, event string) int {
	n := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "msg="+event+" ") || strings.HasSuffix(line, "msg="+event) {
			n++
		}
	}
	return n
}

func mustIndexer(level uint, span LatitudeSpan, opts ...IndexerOption) *Indexer {
	ix, err := NewIndexer(level, span, opts...)
	if err != nil {
		panic(err)
	}
	return ix
}
