package main

import (
	"github.com/spf13/cobra"

	"github.com/andreiashu/geosector"
	"github.com/andreiashu/geosector/internal/config"
)

// overrides holds flag values. Only flags the user actually set are
// applied, so file and environment settings survive otherwise.
type overrides struct {
	level        uint
	span         string
	sentinel     bool
	geohash      int
	countries    string
	places       string
	normalize    bool
	dataVersion  string
	driver       string
	dsn          string
	batchSize    int
	replace      bool
	vacuum       bool
	workers      int
	metricsFile  string
	logLevel     string
	logFormat    string
	buildOptions bool
}

func (o *overrides) register(cmd *cobra.Command, build bool) {
	f := cmd.Flags()
	o.buildOptions = build
	f.UintVar(&o.level, "level", 0, "grid level L (2^L cells per axis)")
	f.StringVar(&o.span, "latitude-span", "", "latitude axis span: 180 or 360")
	f.BoolVar(&o.sentinel, "sentinel-bit", true, "add the extra top curve step")
	f.IntVar(&o.geohash, "geohash", 0, "geohash precision, 0 disables")
	f.StringVar(&o.driver, "driver", "", "database driver: sqlite or postgres")
	f.StringVar(&o.dsn, "dsn", "", "database DSN or SQLite path")
	if !build {
		return
	}
	f.StringVar(&o.countries, "countries", "", "GeoNames countryInfo file")
	f.StringVar(&o.places, "places", "", "GeoNames cities file (.txt, .zip, .gz, .bz2)")
	f.BoolVar(&o.normalize, "normalize-codes", false, "match country codes case-insensitively")
	f.StringVar(&o.dataVersion, "data-version", "", "label of the GeoNames dump stored in metadata")
	f.IntVar(&o.batchSize, "batch-size", 0, "rows per write transaction")
	f.BoolVar(&o.replace, "replace", false, "clear existing places and countries first")
	f.BoolVar(&o.vacuum, "vacuum", true, "compact the database after loading")
	f.IntVarP(&o.workers, "workers", "w", 0, "indexing goroutines")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus textfile metrics here")
	f.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&o.logFormat, "log-format", "", "text or json")
}

func (o *overrides) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	set := f.Changed

	if set("level") {
		cfg.Level = o.level
	}
	if set("latitude-span") {
		span, err := geosector.ParseLatitudeSpan(o.span)
		if err != nil {
			return err
		}
		cfg.LatitudeSpan = span
	}
	if set("sentinel-bit") {
		cfg.SentinelBit = o.sentinel
	}
	if set("geohash") {
		cfg.GeohashPrecision = o.geohash
	}
	if set("driver") {
		cfg.Driver = o.driver
	}
	if set("dsn") {
		cfg.DSN = o.dsn
	}
	if !o.buildOptions {
		return nil
	}
	if set("countries") {
		cfg.Countries = o.countries
	}
	if set("places") {
		cfg.Places = o.places
	}
	if set("normalize-codes") {
		cfg.NormalizeCodes = o.normalize
	}
	if set("data-version") {
		cfg.DataVersion = o.dataVersion
	}
	if set("batch-size") {
		cfg.BatchSize = o.batchSize
	}
	if set("replace") {
		cfg.Replace = o.replace
	}
	if set("vacuum") {
		cfg.Vacuum = o.vacuum
	}
	if set("workers") {
		cfg.Workers = o.workers
	}
	if set("metrics-file") {
		cfg.MetricsFile = o.metricsFile
	}
	if set("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if set("log-format") {
		cfg.LogFormat = o.logFormat
	}
	return nil
}
