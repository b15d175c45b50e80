// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package zsync implements the client-side core of a differential HTTP
// download protocol in the spirit of rsync-over-HTTP: given a compact
// control document describing a remote target by block checksums, the
// client reuses whatever local "seed" data overlaps the target and fetches
// only the missing byte ranges over HTTP.
//
// # Quick Start
//
//	drv := zsync.NewDriver(zsync.Options{
//		ControlFileLocation: "http://example.com/file.zsync",
//		OutputPath:          "file",
//		Matcher:             blockmatch.New(nil),
//		HTTP:                httpfetch.New(httpfetch.Options{}),
//	})
//	result, err := drv.Run(ctx)
//
// # Components
//
// The pipeline is composed from seven small components, each independently
// testable: UrlResolver resolves relative candidate URLs against a
// referrer; NameDeriver picks a safe local output filename; SeedIngestor
// feeds local files into the matcher; RangeDownloader drives one URL's
// range fetch to completion; FetchScheduler repeats RangeDownloader over
// the candidate set with randomized selection and per-URL failover;
// Installer performs the atomic rename/backup/mtime-restore; Driver wires
// all of the above into the end-to-end Run call.
//
// # Collaborators
//
// The control-document matching engine, the HTTP transport, and progress
// display are all external collaborators injected through the Matcher,
// HTTPCollaborator, and ProgressCollaborator interfaces respectively. This
// package never imports net/http or a checksum library directly; see
// internal/blockmatch and internal/httpfetch for the module's concrete
// implementations.
//
// # Error Handling
//
// Run returns a *DriverError for every non-success outcome, carrying the
// Outcome taxonomy from the design notes and, where one remains, the
// recoverable scratch path. Per-URL and per-seed failures are not fatal:
// they are logged through the *slog.Logger in Options and degrade
// gracefully (skip seed, poison URL) per the propagation policy.
package zsync
