// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package blockmatch

import (
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// GzipDecompressor is the module's concrete pkg/zsync.Decompressor: it
// decompresses a ".gz" seed file in-process via klauspost/compress/gzip,
// replacing the original's zcat subprocess call.
type GzipDecompressor struct{}

func (GzipDecompressor) Decompress(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &gzipReadCloser{gz: gz, f: f}, nil
}

// gzipReadCloser closes both the gzip stream and the underlying file
// handle, so callers only need to track one io.ReadCloser.
type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	fErr := g.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}
