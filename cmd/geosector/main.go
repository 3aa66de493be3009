// Command geosector builds a Hilbert sector index of GeoNames cities.
//
// Usage:
//
//	geosector fetch --dir ./geonames-data
//	geosector build --config geosector.yaml
//	geosector sector --lat 39.8 --lon -89.6 --level 10 --latitude-span 180
//	geosector filter cities1000.zip cities1000-min.txt
//	geosector inspect --dsn ./geosector.db
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andreiashu/geosector"
	"github.com/andreiashu/geosector/internal/config"
	"github.com/andreiashu/geosector/internal/geonames"
	"github.com/andreiashu/geosector/internal/logger"
	"github.com/andreiashu/geosector/internal/store"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	envFile    string
	jsonOutput bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:   "geosector",
		Short: "Hilbert sector index for GeoNames places",
		Long: `Geosector joins the GeoNames country table with a cities file, maps
every place to a cell on a 2^L x 2^L lon/lat grid, numbers the cells along
a Hilbert curve and stores the result so nearby places share nearby
sector numbers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&g.envFile, "env", ".env", "dotenv file with GEOSECTOR_* overrides (ignored when missing)")
	pf.BoolVarP(&g.jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(g),
		newFetchCmd(g),
		newBuildCmd(g),
		newSectorCmd(g),
		newFilterCmd(g),
		newInspectCmd(g),
	)
	return rootCmd
}

func newVersionCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "geosector %s (%s, %s)\n", version, commit, buildDate)
			return nil
		},
	}
}

func newBuildCmd(g *globals) *cobra.Command {
	ov := &overrides{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Index the places file and write it to the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, ov)
			if err != nil {
				return err
			}
			log, err := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
			if err != nil {
				return err
			}
			report, err := runBuild(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d read, %d emitted, %d skipped, %d unresolved, %d countries (%s)\n",
				report.RunID, report.Read, report.Emitted, report.Skipped, report.Unresolved, report.Countries, report.Params)
			return nil
		},
	}
	ov.register(cmd, true)
	return cmd
}

func newSectorCmd(g *globals) *cobra.Command {
	ov := &overrides{}
	var lat, lon float64
	cmd := &cobra.Command{
		Use:   "sector",
		Short: "Print the cell and sector index of one coordinate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, ov)
			if err != nil {
				return err
			}
			if cfg.LatitudeSpan == 0 {
				return errors.New("latitude_span must be set to 180 or 360")
			}
			ix, err := cfg.Indexer()
			if err != nil {
				return err
			}
			res, err := describeSector(ix, lat, lon)
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cell (%d, %d) sector %d", res.X, res.Y, res.Sector)
			if res.Geohash != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " geohash %s", res.Geohash)
			}
			fmt.Fprintf(cmd.OutOrStdout(), " [%s]\n", res.Params)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude in degrees")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	ov.register(cmd, false)
	return cmd
}

type sectorResult struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	X         uint32  `json:"x"`
	Y         uint32  `json:"y"`
	Sector    uint64  `json:"sector"`
	Geohash   string  `json:"geohash,omitempty"`
	Params    string  `json:"params"`
	CellLatLo float64 `json:"cell_lat_lo"`
	CellLatHi float64 `json:"cell_lat_hi"`
	CellLonLo float64 `json:"cell_lon_lo"`
	CellLonHi float64 `json:"cell_lon_hi"`
}

func describeSector(ix *geosector.Indexer, lat, lon float64) (sectorResult, error) {
	sector, err := ix.Sector(lat, lon)
	if err != nil {
		return sectorResult{}, err
	}
	x, y := ix.Grid().Quantize(lat, lon)
	bounds := ix.Grid().Bounds(x, y)
	return sectorResult{
		Latitude:  lat,
		Longitude: lon,
		X:         x,
		Y:         y,
		Sector:    sector,
		Geohash:   ix.Geohash(lat, lon),
		Params:    ix.Params().String(),
		CellLatLo: bounds.Lo().Lat.Degrees(),
		CellLatHi: bounds.Hi().Lat.Degrees(),
		CellLonLo: bounds.Lo().Lng.Degrees(),
		CellLonHi: bounds.Hi().Lng.Degrees(),
	}, nil
}

func newFilterCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "filter <cities-file> <output.txt>",
		Short: "Reduce a full GeoNames cities file to the five columns the index reads",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := geonames.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			stats, err := geonames.Filter(cmd.Context(), in, out)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("filter %s: %w", args[0], err)
			}
			if g.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]int{
					"written": stats.Written,
					"skipped": stats.Skipped,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d places to %s (%d lines skipped)\n", stats.Written, args[1], stats.Skipped)
			return nil
		},
	}
}

func newFetchCmd(g *globals) *cobra.Command {
	var dir string
	var force bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the GeoNames country and cities files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath, g.envFile)
			if err != nil {
				return err
			}
			if _, err := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
				return err
			}
			paths, err := geonames.Download(cmd.Context(), nil, dir, geonames.DefaultSources, force)
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string][]string{"downloaded": paths})
			}
			if len(paths) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "all files already present in %s\n", dir)
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./geonames-data", "directory to download into")
	cmd.Flags().BoolVar(&force, "force", false, "download even when the file exists")
	return cmd
}

func newInspectCmd(g *globals) *cobra.Command {
	ov := &overrides{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the metadata and row counts of a built database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, ov)
			if err != nil {
				return err
			}
			st, err := store.Open(cmd.Context(), cfg.Driver, cfg.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			meta, err := st.Metadata(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := st.Counts(cmd.Context())
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"metadata":   meta,
					"countries":  counts.Countries,
					"cities":     counts.Cities,
					"unresolved": counts.Unresolved,
				})
			}
			for _, k := range []string{
				store.MetaSchemaVersion, store.MetaLevel, store.MetaLatitudeSpan,
				store.MetaSentinelBit, store.MetaDataVersion, store.MetaRunID, store.MetaBuiltAt,
			} {
				if v, ok := meta[k]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%-15s %s\n", k, v)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-15s %d\n%-15s %d\n%-15s %d\n",
				"countries", counts.Countries, "cities", counts.Cities, "unresolved", counts.Unresolved)
			return nil
		},
	}
	ov.register(cmd, false)
	return cmd
}

// loadConfig reads file and environment settings and applies any flags
// set on cmd.
func loadConfig(cmd *cobra.Command, g *globals, ov *overrides) (*config.Config, error) {
	cfg, err := config.Load(g.configPath, g.envFile)
	if err != nil {
		return nil, err
	}
	if err := ov.apply(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
