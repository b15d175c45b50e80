// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package zsync

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// IngestSeed feeds one local file into session, optionally decompressing
// it first (spec §4.3). Open failures are logged and skipped rather than
// failing the run; the ingestor tolerates seeds in any order since the
// matcher deduplicates by content.
//
// It returns the session's (bytesMatched, total) after ingestion so the
// caller can report local_used.
func IngestSeed(ctx context.Context, logger *slog.Logger, session Session, decomp Decompressor, path string, hintDecompress bool) (bytesMatched, total int64) {
	if hintDecompress && strings.HasSuffix(path, ".gz") {
		if decomp == nil {
			logger.Warn("seed looks gzip-compressed but no decompressor is configured, skipping", "path", path)
			return session.Progress()
		}
		stream, err := decomp.Decompress(path)
		if err != nil {
			logger.Warn("failed to open seed for decompression, skipping", "path", path, "error", err)
			return session.Progress()
		}
		if err := session.SubmitSource(ctx, stream, true); err != nil {
			logger.Warn("failed to submit decompressed seed", "path", path, "error", err)
		}
		if err := stream.Close(); err != nil {
			logger.Warn("error closing decompressed seed, continuing", "path", path, "error", err)
		}
		return session.Progress()
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("failed to open seed, skipping", "path", path, "error", err)
		return session.Progress()
	}
	if err := session.SubmitSource(ctx, f, true); err != nil {
		logger.Warn("failed to submit seed", "path", path, "error", err)
	}
	if err := f.Close(); err != nil {
		logger.Warn("error closing seed, continuing", "path", path, "error", err)
	}
	return session.Progress()
}

// ingestIfReadable ingests path only if it exists and is readable,
// silently doing nothing otherwise (used for the caller's existing
// output_path / working_path per spec §4.7 step 5).
func ingestIfReadable(ctx context.Context, logger *slog.Logger, session Session, decomp Decompressor, path string, hintDecompress bool) (bytesMatched, total int64) {
	if _, err := os.Stat(path); err != nil {
		return session.Progress()
	}
	return IngestSeed(ctx, logger, session, decomp, path, hintDecompress)
}
