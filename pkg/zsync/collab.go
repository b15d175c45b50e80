// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package zsync

import (
	"context"
	"io"
)

// HTTPCollaborator is the injected transport capability set (spec §6.1).
// Implementations live outside this package (see internal/httpfetch);
// pkg/zsync only depends on this interface, never on net/http directly,
// matching the teacher's "callback table becomes a capability interface"
// pattern.
type HTTPCollaborator interface {
	// Get fetches a single URL and returns a readable stream positioned
	// at the beginning, along with the post-redirect URL the caller
	// should use as the new referrer. If savePath is non-empty, the raw
	// bytes are additionally persisted there as they are read.
	Get(ctx context.Context, url, savePath string) (body io.ReadCloser, postRedirectURL string, err error)

	// RangeFetchStart begins a multi-range fetch session against url.
	// RunFetchScheduler resolves relative candidates before this call, so
	// url is absolute; referrer is the run's current referrer.
	RangeFetchStart(ctx context.Context, url, referrer string) (RangeFetch, error)
}

// RangeFetch is a single multi-range fetch handle (spec §6.1
// range_fetch_*). One handle is used for exactly one candidate URL by
// RangeDownloader.
type RangeFetch interface {
	// AddRanges registers the half-open byte ranges to fetch. Called once
	// per handle before the first GetRangeBlock.
	AddRanges(ranges []ByteRange) error

	// GetRangeBlock blocks for the next received chunk. A zero-length
	// payload with a nil error means EOF. Implementations report
	// transport failures as a non-nil error; RangeDownloader treats any
	// error identically to the original's "negative return" case.
	GetRangeBlock(ctx context.Context) (offset int64, payload []byte, err error)

	// BytesDown reports cumulative bytes transferred by this handle so
	// far.
	BytesDown() int64

	// End releases the handle's resources. Always called exactly once by
	// RangeDownloader, regardless of how the loop terminated.
	End() error
}

// ProgressOutcome is reported to ProgressCollaborator.Finish.
type ProgressOutcome int

const (
	ProgressError ProgressOutcome = iota
	ProgressPartial
	ProgressComplete
)

// ProgressHandle identifies one in-flight progress display (spec §6.2).
type ProgressHandle interface{}

// ProgressCollaborator is the injected progress-display capability set.
// The entire interface is bypassed by Driver.Run when Options.Quiet is set
// or Options.Progress is nil.
type ProgressCollaborator interface {
	Start(url string) ProgressHandle
	Update(h ProgressHandle, percent float64, bytesDown int64)
	Finish(h ProgressHandle, outcome ProgressOutcome)
}

// Receiver is the write endpoint a RangeDownloader streams fetched bytes
// into (spec §6.3 begin_receive/receive_data/end_receive).
type Receiver interface {
	// ReceiveData delivers len(buf) bytes at the given absolute file
	// offset. A nil buf with length 0 is a flush signal sent on EOF so
	// the receiver can finalize any buffered partial block.
	ReceiveData(buf []byte, offset int64) error
	// End releases the receiver. Always called exactly once.
	End() error
}

// Session is the live state produced from a ControlDocument (spec §3
// MatchSession, §6.3 MatcherLib operations that take a session).
// Implementations live outside this package (see internal/blockmatch).
type Session interface {
	// HintDecompress reports whether SeedIngestor should treat ".gz"
	// seed files specially for this session.
	HintDecompress() bool
	// Filename returns the control document's advisory output filename,
	// if any.
	Filename() (name string, ok bool)
	// Progress reports bytes matched so far versus the total target
	// size.
	Progress() (done, total int64)
	// Urls returns the control document's candidate source URLs and
	// their shared content type.
	Urls() (candidates []string, ct ContentType)
	// SubmitSource feeds a local byte stream (seed, prior output, or
	// prior .part) into the matcher for block matching.
	SubmitSource(ctx context.Context, r io.Reader, showProgress bool) error
	// NeededRanges reports the byte ranges of ct still missing.
	NeededRanges(ct ContentType) ([]ByteRange, error)
	// BeginReceive opens a Receiver for streaming fetched bytes of the
	// given content type into the session.
	BeginReceive(ct ContentType) (Receiver, error)
	// RenameScratch moves the session's scratch file to newPath.
	RenameScratch(newPath string) error
	// Status reports the session's current completion status.
	Status() SessionStatus
	// Complete verifies the fully-assembled target against the control
	// document's checksums: -1 failed, 0 no checksum available, 1 OK.
	Complete() int
	// Mtime returns the control document's advisory modification time,
	// if any.
	Mtime() (t int64, ok bool)
	// End finalizes the session and returns the final scratch path.
	End() (finalPath string, err error)
}

// Matcher is the opaque content-matching engine (spec §6.3 MatcherLib,
// out of scope for this core's own logic — consumed purely through this
// interface). internal/blockmatch provides the module's concrete
// implementation.
type Matcher interface {
	// Begin parses a control document stream and returns a live Session.
	Begin(ctx context.Context, r io.Reader) (Session, error)
}

// Decompressor is the abstract gzip-seed contract (spec §6.4). The
// default implementation (internal/blockmatch) is in-process via
// klauspost/compress/gzip, replacing the original's zcat subprocess per
// spec §9.
type Decompressor interface {
	// Decompress returns a readable stream of path's uncompressed
	// contents.
	Decompress(path string) (io.ReadCloser, error)
}
