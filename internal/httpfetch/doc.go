// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package httpfetch is the module's concrete pkg/zsync.HTTPCollaborator: a
// net/http client tuned for many concurrent range requests (transport
// settings grounded on APTlantis's internal/downloader.Downloader),
// jittered exponential retry on transient failures, structured logging via
// log/slog, and bytes/retry counters exposed through prometheus/client_golang
// for the job server's /metrics endpoint.
package httpfetch
