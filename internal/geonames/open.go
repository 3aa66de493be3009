// Package geonames reads the GeoNames country and city dumps
// (https://download.geonames.org/export/dump/) as geosector streams.
package geonames

import (
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxLineSize bounds a single line. alternatenames in cities1000.txt can run
// to tens of kilobytes, well past bufio.Scanner's 64K default for a few rows.
const maxLineSize = 1024 * 1024

// Open opens path for reading, decompressing by extension: .zip reads the
// first .txt entry (or the first regular file), .gz and .bz2 are streamed,
// anything else is read as-is.
func Open(path string) (io.ReadCloser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return openZip(path)
	case ".gz":
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		fz, err := gzip.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return &multiCloser{Reader: fz, closers: []io.Closer{fz, fh}}, nil
	case ".bz2":
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		return &multiCloser{Reader: bzip2.NewReader(fh), closers: []io.Closer{fh}}, nil
	default:
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		return fh, nil
	}
}

// openZip only streams the entry; nothing is extracted to disk.
func openZip(path string) (io.ReadCloser, error) {
	rz, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening zip file: %w", err)
	}
	var entry *zip.File
	for _, f := range rz.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if entry == nil || (!isText(entry.Name) && isText(f.Name)) {
			entry = f
		}
	}
	if entry == nil {
		rz.Close()
		return nil, fmt.Errorf("zip file %s: %w", path, errors.New("no file entries"))
	}
	fi, err := entry.Open()
	if err != nil {
		rz.Close()
		return nil, fmt.Errorf("opening file in zip: %w", err)
	}
	return &multiCloser{Reader: fi, closers: []io.Closer{fi, rz}}, nil
}

func isText(name string) bool { return strings.HasSuffix(strings.ToLower(name), ".txt") }

type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
