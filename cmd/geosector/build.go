package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/andreiashu/geosector"
	"github.com/andreiashu/geosector/internal/config"
	"github.com/andreiashu/geosector/internal/geonames"
	"github.com/andreiashu/geosector/internal/metrics"
	"github.com/andreiashu/geosector/internal/store"
)

// ErrNotEmpty is returned when build targets a database that already holds
// countries or cities and --replace is not set.
var ErrNotEmpty = errors.New("database is not empty")

type buildReport struct {
	RunID      string `json:"run_id"`
	Params     string `json:"params"`
	Countries  int    `json:"countries"`
	Read       int    `json:"read"`
	Emitted    int    `json:"emitted"`
	Skipped    int    `json:"skipped"`
	Unresolved int    `json:"unresolved"`
	Elapsed    string `json:"elapsed"`
}

// runBuild loads countries, then streams places through the pipeline into
// the store. Cities are written in batches, so a failed run leaves at most
// the batches committed before the failure, and no run id: the run id and
// build time are recorded only once every batch is committed.
func runBuild(ctx context.Context, cfg *config.Config, log *slog.Logger) (*buildReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ix, err := cfg.Indexer()
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	log = log.With("run_id", runID)
	rec := metrics.New()
	defer func() {
		if cfg.MetricsFile == "" {
			return
		}
		if werr := rec.WriteFile(cfg.MetricsFile); werr != nil {
			log.Warn("metrics_write_failed", "path", cfg.MetricsFile, "err", werr)
		}
	}()

	st, err := store.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if err := st.CheckParams(ctx, ix.Params()); err != nil {
		if !errors.Is(err, store.ErrParamsMismatch) {
			return nil, err
		}
		if !cfg.Replace {
			return nil, fmt.Errorf("%w (rebuild with --replace)", err)
		}
	}
	if cfg.Replace {
		if err := st.Truncate(ctx); err != nil {
			return nil, err
		}
		if err := st.ClearMetadata(ctx); err != nil {
			return nil, err
		}
		log.Info("store_truncated", "driver", st.Driver())
	} else {
		empty, err := st.Empty(ctx)
		if err != nil {
			return nil, err
		}
		if !empty {
			return nil, fmt.Errorf("%w: %s already holds a build (rebuild with --replace)", ErrNotEmpty, cfg.DSN)
		}
	}
	if err := st.Stamp(ctx, ix.Params()); err != nil {
		return nil, err
	}

	countries, err := geonames.OpenCountries(cfg.Countries)
	if err != nil {
		return nil, err
	}
	resolver, err := geosector.LoadResolver(ctx, countries,
		geosector.WithCodeNormalization(cfg.NormalizeCodes),
		geosector.WithResolverLogger(log),
	)
	countries.Close()
	if err != nil {
		return nil, fmt.Errorf("load countries from %s: %w", cfg.Countries, err)
	}
	log.Info("countries_loaded", "path", cfg.Countries, "count", resolver.Len())
	if err := st.WriteCountries(ctx, resolver.Countries()); err != nil {
		return nil, err
	}

	places, err := geonames.OpenPlaces(cfg.Places)
	if err != nil {
		return nil, err
	}
	defer places.Close()

	w, err := st.Writer(ctx, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	p := &geosector.Pipeline{
		Indexer:  ix,
		Resolver: resolver,
		Sink:     w,
		Logger:   log,
		Observer: rec,
		Workers:  cfg.Workers,
	}
	stats, runErr := p.Run(ctx, places)
	if runErr != nil {
		if aerr := w.Abort(); aerr != nil {
			log.Warn("writer_abort_failed", "err", aerr)
		}
		rec.Finish(stats, resolver.Len(), false)
		return nil, runErr
	}
	if err := w.Close(); err != nil {
		rec.Finish(stats, resolver.Len(), false)
		return nil, err
	}
	if err := st.MarkBuilt(ctx, runID, cfg.DataVersion); err != nil {
		rec.Finish(stats, resolver.Len(), false)
		return nil, err
	}
	rec.Finish(stats, resolver.Len(), true)
	log.Info("build_done", "dsn", cfg.DSN, "driver", st.Driver())

	if cfg.Vacuum {
		if err := st.Vacuum(ctx); err != nil {
			log.Warn("vacuum_failed", "err", err)
		}
	}

	return &buildReport{
		RunID:      runID,
		Params:     ix.Params().String(),
		Countries:  resolver.Len(),
		Read:       stats.Read,
		Emitted:    stats.Emitted,
		Skipped:    stats.Skipped,
		Unresolved: stats.Unresolved,
		Elapsed:    stats.Elapsed.String(),
	}, nil
}
