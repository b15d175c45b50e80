// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package zsync

import (
	"context"
	"fmt"
	"os"
)

// Result describes a Run call. On success it is returned with a nil error.
// When the download is incomplete, verification fails, or the install step
// fails, it is returned together with the *DriverError and FinalPath names
// the working file; earlier failures return a zero Result.
type Result struct {
	Outcome             Outcome
	OutputPath          string
	FinalPath           string
	LocalBytesUsed      int64
	HTTPBytesDownloaded int64
}

// Driver is the top-level pipeline composing C1-C6 into the end-to-end
// Run call (spec §4.7 ClientDriver).
type Driver struct {
	opts Options
}

// NewDriver constructs a Driver from opts. Matcher is required; HTTP is
// required whenever the control document or any candidate URL is remote.
func NewDriver(opts Options) *Driver {
	return &Driver{opts: opts}
}

// Run executes the full pipeline: obtain the control document, ingest
// seeds, schedule range fetches, verify, and install. Fatal errors abort
// the run but every acquired resource is released via defer on every exit
// path, matching the original's goto-bail cleanup discipline with Go's
// native idiom.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	o := d.opts
	logger := o.logger()

	if o.Matcher == nil {
		return Result{}, &DriverError{Outcome: OutcomeControlFileUnavailable, Err: fmt.Errorf("no Matcher configured")}
	}

	seed := o.RandSeed
	if seed == 0 {
		seed = defaultRandSeed()
	}
	state := newClientState(o.HTTP, o.Progress, o.Quiet, o.Referrer, seed)

	controlStream, sourceName, err := d.openControlDocument(ctx, state)
	if err != nil {
		return Result{}, &DriverError{Outcome: OutcomeControlFileUnavailable, Err: err}
	}

	session, err := o.Matcher.Begin(ctx, controlStream)
	controlStream.Close()
	if err != nil {
		return Result{}, &DriverError{Outcome: OutcomeControlFileParseError, Err: err}
	}
	// Early-exit paths release the session here; the success path ends it
	// explicitly to obtain the final path.
	ended := false
	defer func() {
		if !ended {
			session.End()
		}
	}()

	outputPath := o.OutputPath
	if outputPath == "" {
		adv, _ := session.Filename()
		outputPath = DeriveName(logger, adv, sourceName)
	}
	workingPath := outputPath + ".part"

	for _, seedPath := range o.SeedFiles {
		IngestSeed(ctx, logger, session, o.Decompressor, seedPath, session.HintDecompress())
	}
	ingestIfReadable(ctx, logger, session, o.Decompressor, outputPath, session.HintDecompress())
	ingestIfReadable(ctx, logger, session, o.Decompressor, workingPath, session.HintDecompress())
	localUsed, _ := session.Progress()
	if localUsed == 0 {
		logger.Warn("no relevant local data found")
	}

	if err := session.RenameScratch(workingPath); err != nil {
		return Result{}, &DriverError{Outcome: OutcomeControlFileParseError, Err: fmt.Errorf("renaming scratch to %s: %w", workingPath, err)}
	}

	candidateURLs, ct := session.Urls()
	candidates := newCandidateUrlSet(candidateURLs, ct)

	schedErr := RunFetchScheduler(ctx, logger, state, session, candidates)
	if schedErr != nil {
		logger.Warn("download incomplete, candidate urls exhausted", "working_path", workingPath)
		return Result{
			Outcome:             OutcomeDownloadIncomplete,
			OutputPath:          outputPath,
			FinalPath:           workingPath,
			LocalBytesUsed:      localUsed,
			HTTPBytesDownloaded: state.HTTPBytesDownloaded,
		}, &DriverError{Outcome: OutcomeDownloadIncomplete, ScratchPath: workingPath, Err: schedErr}
	}

	switch session.Complete() {
	case -1:
		return Result{
			Outcome:             OutcomeVerificationFailed,
			OutputPath:          outputPath,
			FinalPath:           workingPath,
			LocalBytesUsed:      localUsed,
			HTTPBytesDownloaded: state.HTTPBytesDownloaded,
		}, &DriverError{Outcome: OutcomeVerificationFailed, ScratchPath: workingPath, Err: fmt.Errorf("checksum verification failed")}
	case 0:
		logger.Warn("no checksum available to verify downloaded data", "path", workingPath)
	}

	mtime, haveMtime := session.Mtime()
	ended = true
	finalPath, err := session.End()
	if err != nil {
		return Result{}, &DriverError{Outcome: OutcomeVerificationFailed, ScratchPath: workingPath, Err: err}
	}

	result := Result{
		Outcome:             OutcomeSuccess,
		OutputPath:          outputPath,
		FinalPath:           finalPath,
		LocalBytesUsed:      localUsed,
		HTTPBytesDownloaded: state.HTTPBytesDownloaded,
	}

	if outputPath != "" {
		if err := Install(logger, finalPath, outputPath, mtime, haveMtime); err != nil {
			return result, err
		}
		result.FinalPath = outputPath
	}

	return result, nil
}

// openControlDocument obtains the control document stream: a local open
// first, falling back to an HTTP fetch when the location is an absolute
// URL (spec §4.7 step 2).
func (d *Driver) openControlDocument(ctx context.Context, state *ClientState) (stream readCloser, sourceName string, err error) {
	loc := d.opts.ControlFileLocation

	if f, ferr := os.Open(loc); ferr == nil {
		return f, loc, nil
	}

	if !IsAbsoluteURL(loc) {
		return nil, "", fmt.Errorf("control file location %q is not a local file and not an absolute URL", loc)
	}
	if state.HTTP == nil {
		return nil, "", fmt.Errorf("control file location %q requires HTTP and no HTTPCollaborator is configured", loc)
	}

	body, postRedirect, err := state.HTTP.Get(ctx, loc, d.opts.KeepControlFilePath)
	if err != nil {
		return nil, "", err
	}
	if postRedirect != "" {
		state.Referrer = postRedirect
	} else {
		state.Referrer = loc
	}
	return body, loc, nil
}

// readCloser is a narrow alias kept local to this file: both os.File and
// io.ReadCloser satisfy it, and Driver never needs more than Close+Read.
type readCloser interface {
	Read(p []byte) (n int, err error)
	Close() error
}
