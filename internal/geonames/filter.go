package geonames

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// FilterStats counts what Filter did.
type FilterStats struct {
	Written int
	Skipped int
}

// Filter rewrites a full cities file into the five-column layout
// (geonameid, name, latitude, longitude, country code). Lines that do not
// have the full column count are skipped.
func Filter(ctx context.Context, in io.Reader, out io.Writer) (FilterStats, error) {
	var stats FilterStats
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	w := bufio.NewWriter(out)

	for sc.Scan() {
		if stats.Written%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) != fullColumns {
			stats.Skipped++
			continue
		}
		row := []string{
			fields[fullLayout.id],
			fields[fullLayout.name],
			fields[fullLayout.lat],
			fields[fullLayout.lon],
			fields[fullLayout.country],
		}
		if _, err := w.WriteString(strings.Join(row, "\t") + "\n"); err != nil {
			return stats, fmt.Errorf("writing filtered row: %w", err)
		}
		stats.Written++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("reading cities: %w", err)
	}
	if err := w.Flush(); err != nil {
		return stats, fmt.Errorf("flushing filtered output: %w", err)
	}
	return stats, nil
}
