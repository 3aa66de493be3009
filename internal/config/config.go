// Package config loads run configuration from a YAML file, a .env file and
// GEOSECTOR_* environment variables, in increasing order of precedence.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/andreiashu/geosector"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GEOSECTOR_"

// Config holds everything a build run needs.
type Config struct {
	// Index parameters. LatitudeSpan has no default and must be set.
	Level            uint                   `yaml:"level"`
	LatitudeSpan     geosector.LatitudeSpan `yaml:"latitude_span"`
	SentinelBit      bool                   `yaml:"sentinel_bit"`
	GeohashPrecision int                    `yaml:"geohash_precision"`

	// Inputs.
	Countries      string `yaml:"countries"`
	Places         string `yaml:"places"`
	NormalizeCodes bool   `yaml:"normalize_codes"`
	DataVersion    string `yaml:"data_version"`

	// Output.
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	BatchSize int    `yaml:"batch_size"`
	Replace   bool   `yaml:"replace"`
	Vacuum    bool   `yaml:"vacuum"`

	// Runtime.
	Workers     int    `yaml:"workers"`
	MetricsFile string `yaml:"metrics_file"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Level:       10,
		SentinelBit: true,
		Countries:   "./geonames-data/countryInfo.txt",
		Places:      "./geonames-data/cities1000.zip",
		Driver:      "sqlite",
		DSN:         "./geosector.db",
		BatchSize:   5000,
		Workers:     1,
		Vacuum:      true,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load builds a Config from defaults, then path (if not empty), then
// envFile (a missing .env is ignored), then the environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	if v, ok := lookup(EnvPrefix + "LEVEL"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 8)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sLEVEL: %w", EnvPrefix, err))
		} else {
			c.Level = uint(n)
		}
	}
	if v, ok := lookup(EnvPrefix + "LATITUDE_SPAN"); ok {
		span, err := geosector.ParseLatitudeSpan(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sLATITUDE_SPAN: %w", EnvPrefix, err))
		} else {
			c.LatitudeSpan = span
		}
	}
	boolean("SENTINEL_BIT", &c.SentinelBit)
	integer("GEOHASH_PRECISION", &c.GeohashPrecision)
	str("COUNTRIES", &c.Countries)
	str("PLACES", &c.Places)
	boolean("NORMALIZE_CODES", &c.NormalizeCodes)
	str("DATA_VERSION", &c.DataVersion)
	str("DRIVER", &c.Driver)
	str("DSN", &c.DSN)
	integer("BATCH_SIZE", &c.BatchSize)
	boolean("REPLACE", &c.Replace)
	boolean("VACUUM", &c.Vacuum)
	integer("WORKERS", &c.Workers)
	str("METRICS_FILE", &c.MetricsFile)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	return errors.Join(errs...)
}

// Validate checks the settings needed to compute sector indexes.
func (c *Config) Validate() error {
	if c.LatitudeSpan == 0 {
		return fmt.Errorf("latitude_span must be set to 180 or 360")
	}
	if _, err := c.Indexer(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", c.BatchSize)
	}
	return nil
}

// Indexer builds the sector indexer described by c.
func (c *Config) Indexer() (*geosector.Indexer, error) {
	return geosector.NewIndexer(c.Level, c.LatitudeSpan,
		geosector.WithSentinelBit(c.SentinelBit),
		geosector.WithGeohash(c.GeohashPrecision),
	)
}
