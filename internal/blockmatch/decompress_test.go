// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package blockmatch

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestGzipDecompressor_RoundTrip(t *testing.T) {
	want := []byte("hello from a compressed seed file")

	dir := t.TempDir()
	path := filepath.Join(dir, "seed.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	gw := gzip.NewWriter(f)
	if _, err := gw.Write(want); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file close: %v", err)
	}

	d := GzipDecompressor{}
	rc, err := d.Decompress(path)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestGzipDecompressor_MissingFile(t *testing.T) {
	d := GzipDecompressor{}
	if _, err := d.Decompress("/nonexistent/seed.gz"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
