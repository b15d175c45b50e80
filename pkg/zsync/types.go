// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package zsync

import (
	"log/slog"
	"math/rand"
	"os"
	"time"
)

// ContentType tags a CandidateUrlSet as serving either the target's raw
// bytes or a compressed representation the matcher understands via a
// compressed-map side table.
type ContentType int

const (
	ContentPlain ContentType = iota
	ContentCompressed
)

func (c ContentType) String() string {
	if c == ContentCompressed {
		return "compressed"
	}
	return "plain"
}

// ByteRange is a half-open [Start, End) byte range, matching the pairs
// MatcherLib.needed_ranges reports and RangeFetch.AddRanges consumes.
type ByteRange struct {
	Start int64
	End   int64
}

// SessionStatus mirrors the progression MatcherLib.status reports for a
// MatchSession.
type SessionStatus int

const (
	StatusInProgress SessionStatus = iota
	StatusHaveDataUnverified
	StatusVerified
)

// UrlStatus tracks whether a candidate URL remains eligible for selection.
type UrlStatus int

const (
	URLUsable UrlStatus = iota
	URLPoisoned
)

// CandidateUrlSet is the ordered sequence of candidate source URLs for a
// content type, taken from the control document. It is immutable for the
// run except for the per-URL Status slice, which only ever grows more
// poisoned entries.
type CandidateUrlSet struct {
	URLs        []string
	ContentType ContentType
	Status      []UrlStatus
}

// newCandidateUrlSet builds the parallel status slice, all initially
// usable.
func newCandidateUrlSet(urls []string, ct ContentType) *CandidateUrlSet {
	return &CandidateUrlSet{
		URLs:        urls,
		ContentType: ct,
		Status:      make([]UrlStatus, len(urls)),
	}
}

func (c *CandidateUrlSet) usableCount() int {
	n := 0
	for _, s := range c.Status {
		if s == URLUsable {
			n++
		}
	}
	return n
}

// ClientState is the ephemeral per-run configuration and accounting bundle
// threaded through every component. It replaces the original's
// process-global PRNG (seeded from pid XOR wallclock) with an explicit
// *rand.Rand the driver constructs once; tests inject a fixed seed via
// Options.RandSeed.
type ClientState struct {
	HTTP     HTTPCollaborator
	Progress ProgressCollaborator
	Quiet    bool

	// Referrer is mutable: it is replaced with the post-redirect URL when
	// the control document itself is fetched over HTTP.
	Referrer string

	HTTPBytesDownloaded int64

	rng *rand.Rand
}

func newClientState(http HTTPCollaborator, progress ProgressCollaborator, quiet bool, referrer string, seed int64) *ClientState {
	return &ClientState{
		HTTP:     http,
		Progress: progress,
		Quiet:    quiet,
		Referrer: referrer,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

func (c *ClientState) addBytesDownloaded(n int64) {
	if n > 0 {
		c.HTTPBytesDownloaded += n
	}
}

// defaultRandSeed follows the original's "pid XOR wallclock" seed, using
// the wallclock in nanoseconds rather than seconds: a seed that differs
// across runs but is overridable for determinism in tests.
func defaultRandSeed() int64 {
	return time.Now().UnixNano() ^ int64(os.Getpid())
}

// Options configures a Driver.Run invocation. It is the Go-shaped
// equivalent of the CLI surface described in spec §6.5, carried as a
// struct rather than parsed flags so internal/cli and internal/server can
// share one entry point.
type Options struct {
	// ControlFileLocation is a local path or absolute URL to the control
	// document. Required.
	ControlFileLocation string
	// OutputPath is the destination path for the installed target. If
	// empty, NameDeriver derives one from the control document and the
	// target is installed under that name.
	OutputPath string
	// SeedFiles are ingested, in order, before OutputPath/WorkingPath.
	SeedFiles []string
	// Referrer overrides the initial referrer used to resolve relative
	// candidate URLs. Fetching a remote control document replaces it with
	// the post-redirect URL.
	Referrer string
	// KeepControlFilePath, if set, saves a fetched remote control
	// document to this local path (spec §6.5 `-k`).
	KeepControlFilePath string
	// Quiet suppresses the ProgressCollaborator entirely.
	Quiet bool
	// RandSeed overrides the FetchScheduler's URL-selection seed. Zero
	// means "use a time-derived seed".
	RandSeed int64
	// Matcher is the MatcherLib implementation. Required.
	Matcher Matcher
	// Decompressor opens a decompressed byte stream for a seed file whose
	// name ends in ".gz" when the control document sets hint_decompress
	// (spec §4.3, §6.4). Nil disables gzip-seed ingestion: such seeds are
	// skipped with a warning instead of failing the run.
	Decompressor Decompressor
	// HTTP is the HTTP collaborator. May be nil only if the control
	// document and every candidate URL are guaranteed local, which in
	// practice means: required whenever remote fetches occur.
	HTTP HTTPCollaborator
	// Progress is the progress collaborator. May be nil; a nil Progress
	// behaves as if Quiet were true.
	Progress ProgressCollaborator
	// Logger receives structured diagnostics for degraded-but-non-fatal
	// conditions (skipped seeds, poisoned URLs) and structural failures.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
