// Package store persists indexed places in SQLite (modernc.org/sqlite) or
// PostgreSQL (lib/pq). The cities table carries an index on sector so
// readers can range-scan nearby places.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/andreiashu/geosector"
)

// SchemaVersion is stamped into metadata and bumped on incompatible
// schema changes.
const SchemaVersion = 1

// DefaultBatchSize is the number of rows per write transaction.
const DefaultBatchSize = 5000

// Metadata keys.
const (
	MetaSchemaVersion = "schema_version"
	MetaLevel         = "level"
	MetaLatitudeSpan  = "latitude_span"
	MetaSentinelBit   = "sentinel_bit"
	MetaDataVersion   = "data_version"
	MetaRunID         = "run_id"
	MetaBuiltAt       = "built_at"
)

// ErrParamsMismatch is returned when a database was built with different
// index parameters than the ones in use. Sectors from the two would not be
// comparable.
var ErrParamsMismatch = errors.New("store: index parameters mismatch")

var (
	//go:embed schema_sqlite.sql
	sqliteSchema string
	//go:embed schema_postgres.sql
	postgresSchema string
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store wraps a database handle.
type Store struct {
	db     *sql.DB
	driver string
}

// Open opens dsn with the given driver and checks the connection.
//
// SQLite is limited to one open connection: writes are serialized anyway
// and ":memory:" databases are per-connection.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	return &Store{db: db, driver: driver}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for ad-hoc queries.
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string { return s.driver }

// rebind rewrites '?' placeholders for drivers that number them.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EnsureSchema creates tables and indexes that do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := sqliteSchema
	if s.driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Metadata returns all metadata entries.
func (s *Store) Metadata(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("store: query metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: scan metadata: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Params returns the index parameters stamped into the database. ok is
// false when none have been stamped yet.
func (s *Store) Params(ctx context.Context) (p geosector.IndexParams, ok bool, err error) {
	meta, err := s.Metadata(ctx)
	if err != nil {
		return p, false, err
	}
	lvl, hasLevel := meta[MetaLevel]
	if !hasLevel {
		return p, false, nil
	}
	level, err := strconv.ParseUint(lvl, 10, 32)
	if err != nil {
		return p, false, fmt.Errorf("store: bad %s %q: %w", MetaLevel, lvl, err)
	}
	span, err := geosector.ParseLatitudeSpan(meta[MetaLatitudeSpan])
	if err != nil {
		return p, false, fmt.Errorf("store: bad %s: %w", MetaLatitudeSpan, err)
	}
	sentinel, err := strconv.ParseBool(meta[MetaSentinelBit])
	if err != nil {
		return p, false, fmt.Errorf("store: bad %s %q: %w", MetaSentinelBit, meta[MetaSentinelBit], err)
	}
	return geosector.IndexParams{Level: uint(level), Span: span, SentinelBit: sentinel}, true, nil
}

// CheckParams fails with ErrParamsMismatch when the database was stamped
// with parameters other than p.
func (s *Store) CheckParams(ctx context.Context, p geosector.IndexParams) error {
	have, ok, err := s.Params(ctx)
	if err != nil {
		return err
	}
	if ok && have != p {
		return fmt.Errorf("%w: database has %s, run uses %s", ErrParamsMismatch, have, p)
	}
	return nil
}

// Stamp records the schema version and index parameters. It refuses to
// overwrite different parameters.
func (s *Store) Stamp(ctx context.Context, p geosector.IndexParams) error {
	if err := s.CheckParams(ctx, p); err != nil {
		return err
	}
	return s.setMeta(ctx, map[string]string{
		MetaSchemaVersion: strconv.Itoa(SchemaVersion),
		MetaLevel:         strconv.FormatUint(uint64(p.Level), 10),
		MetaLatitudeSpan:  p.Span.String(),
		MetaSentinelBit:   strconv.FormatBool(p.SentinelBit),
	})
}

// MarkBuilt records a completed run. Call it only after every city of the
// run has been committed; a database without a run id holds no finished
// build.
func (s *Store) MarkBuilt(ctx context.Context, runID, dataVersion string) error {
	entries := map[string]string{
		MetaRunID:   runID,
		MetaBuiltAt: time.Now().UTC().Format(time.RFC3339),
	}
	if dataVersion != "" {
		entries[MetaDataVersion] = dataVersion
	}
	return s.setMeta(ctx, entries)
}

func (s *Store) setMeta(ctx context.Context, entries map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()
	q := s.rebind(`INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	for k, v := range entries {
		if _, err := tx.ExecContext(ctx, q, k, v); err != nil {
			return fmt.Errorf("store: set %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// WriteCountries stores the resolver's countries under their surrogate keys.
// Keys belong to one run, so an existing id is an error rather than being
// re-pointed at another country; Truncate first to rebuild.
func (s *Store) WriteCountries(ctx context.Context, countries []geosector.Country) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO countries (id, code, name) VALUES (?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("store: prepare countries: %w", err)
	}
	defer stmt.Close()

	for _, c := range countries {
		if _, err := stmt.ExecContext(ctx, int64(c.Key), c.Code, c.Name); err != nil {
			return fmt.Errorf("store: insert country %q: %w", c.Code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Truncate removes all places and countries, keeping metadata.
func (s *Store) Truncate(ctx context.Context) error {
	for _, table := range []string{"cities", "countries"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("store: clear %s: %w", table, err)
		}
	}
	return nil
}

// ClearMetadata removes the stamped index parameters and run details so a
// rebuild may use different parameters. Call it after Truncate.
func (s *Store) ClearMetadata(ctx context.Context) error {
	q := s.rebind(`DELETE FROM metadata WHERE key IN (?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q,
		MetaLevel, MetaLatitudeSpan, MetaSentinelBit, MetaRunID, MetaBuiltAt, MetaDataVersion); err != nil {
		return fmt.Errorf("store: clear metadata: %w", err)
	}
	return nil
}

// Empty reports whether the database holds no countries and no cities.
func (s *Store) Empty(ctx context.Context) (bool, error) {
	c, err := s.Counts(ctx)
	if err != nil {
		return false, err
	}
	return c.Countries == 0 && c.Cities == 0, nil
}

// Counts reports row counts.
type Counts struct {
	Countries  int64
	Cities     int64
	Unresolved int64 // cities without a country
}

// Counts returns current row counts.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	row := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(1) FROM countries),
		(SELECT COUNT(1) FROM cities),
		(SELECT COUNT(1) FROM cities WHERE country_id IS NULL)`)
	if err := row.Scan(&c.Countries, &c.Cities, &c.Unresolved); err != nil {
		return c, fmt.Errorf("store: counts: %w", err)
	}
	return c, nil
}

// Vacuum compacts the database after a bulk load.
func (s *Store) Vacuum(ctx context.Context) error {
	q := "VACUUM"
	if s.driver == DriverPostgres {
		q = "VACUUM ANALYZE cities"
	}
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("store: vacuum: %w", err)
	}
	return nil
}
