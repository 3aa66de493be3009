package geonames

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/andreiashu/geosector/internal/logger"
)

// BaseURL is the GeoNames dump directory.
const BaseURL = "https://download.geonames.org/export/dump/"

// DataSource is one remote file saved under a local name.
type DataSource struct {
	URL  string
	Name string
}

// DefaultSources are the files a build reads by default.
var DefaultSources = []DataSource{
	{URL: BaseURL + "cities1000.zip", Name: "cities1000.zip"},
	{URL: BaseURL + "countryInfo.txt", Name: "countryInfo.txt"},
}

// DefaultClient is used when Download gets a nil client.
var DefaultClient = &http.Client{Timeout: 5 * time.Minute}

// Download fetches each source into dir. Files already present are kept
// unless force is set. It returns the paths written.
func Download(ctx context.Context, client *http.Client, dir string, sources []DataSource, force bool) ([]string, error) {
	if client == nil {
		client = DefaultClient
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	var written []string
	for _, src := range sources {
		path := filepath.Join(dir, src.Name)
		if !force {
			if _, err := os.Stat(path); err == nil {
				logger.L().Debug("download_skipped", "path", path)
				continue
			}
		}
		start := time.Now()
		n, err := downloadFile(ctx, client, src.URL, path)
		if err != nil {
			return written, fmt.Errorf("downloading %s: %w", src.Name, err)
		}
		logger.L().Info("download_done", "url", src.URL, "path", path, "bytes", n, "elapsed", time.Since(start))
		written = append(written, path)
	}
	return written, nil
}

// downloadFile writes to a temporary file next to path and renames it
// into place, so an interrupted download never leaves a truncated file.
func downloadFile(ctx context.Context, client *http.Client, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP GET %s: status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return n, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, err
	}
	success = true
	return n, nil
}
