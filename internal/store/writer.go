package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/andreiashu/geosector"
)

const insertCity = `INSERT INTO cities (geoname_id, name, latitude, longitude, country_id, sector, geohash)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// Writer is a geosector.Sink that inserts cities in transactions of
// batchSize rows. It is not safe for concurrent use; the pipeline drives it
// from a single goroutine. With SQLite the open transaction holds the only
// connection, so other Store calls must wait until Close or Abort.
type Writer struct {
	s         *Store
	batchSize int
	tx        *sql.Tx
	stmt      *sql.Stmt
	pending   int
	written   int
}

// Writer starts a batched writer. Call Close to commit the final batch, or
// Abort to discard it.
func (s *Store) Writer(ctx context.Context, batchSize int) (*Writer, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	w := &Writer{s: s, batchSize: batchSize}
	if err := w.begin(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) begin(ctx context.Context) error {
	tx, err := w.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, w.s.rebind(insertCity))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	w.tx, w.stmt, w.pending = tx, stmt, 0
	return nil
}

func (w *Writer) commit() error {
	w.stmt.Close()
	err := w.tx.Commit()
	w.tx, w.stmt = nil, nil
	if err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	w.written += w.pending
	w.pending = 0
	return nil
}

// Emit implements geosector.Sink.
func (w *Writer) Emit(ctx context.Context, rec geosector.IndexedPlaceRecord) error {
	if w.tx == nil {
		return fmt.Errorf("store: writer is closed")
	}
	_, err := w.stmt.ExecContext(ctx,
		nullInt(rec.ID),
		rec.Name,
		rec.Latitude,
		rec.Longitude,
		nullInt(int64(rec.CountryKey)),
		int64(rec.Sector),
		nullString(rec.Geohash),
	)
	if err != nil {
		return fmt.Errorf("store: insert city: %w", err)
	}
	w.pending++
	if w.pending < w.batchSize {
		return nil
	}
	if err := w.commit(); err != nil {
		return err
	}
	return w.begin(ctx)
}

// Written returns the number of committed rows.
func (w *Writer) Written() int { return w.written }

// Close commits any pending rows.
func (w *Writer) Close() error {
	if w.tx == nil {
		return nil
	}
	return w.commit()
}

// Abort rolls back the uncommitted batch.
func (w *Writer) Abort() error {
	if w.tx == nil {
		return nil
	}
	w.stmt.Close()
	err := w.tx.Rollback()
	w.tx, w.stmt, w.pending = nil, nil, 0
	return err
}

// nullInt maps the zero value (no geonameid, Unresolved) to NULL.
func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
