// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package zsync

import (
	"context"
	"log/slog"
)

// RunFetchScheduler drives RangeDownloader over candidates until session
// reaches StatusVerified or every URL has been poisoned (spec §4.5).
// Selection is randomized via state's seeded PRNG; a poisoned URL is never
// retried within the same run.
func RunFetchScheduler(ctx context.Context, logger *slog.Logger, state *ClientState, session Session, candidates *CandidateUrlSet) error {
	n := len(candidates.URLs)
	if n == 0 {
		return ErrNoUsableURLs
	}

	for session.Status() < StatusVerified && candidates.usableCount() > 0 {
		i := state.rng.Intn(n)
		if candidates.Status[i] == URLPoisoned {
			continue
		}

		resolved, err := ResolveURL(state.Referrer, candidates.URLs[i])
		if err != nil {
			candidates.Status[i] = URLPoisoned
			logger.Warn("failed to retrieve from candidate url", "url", candidates.URLs[i], "error", err)
			continue
		}

		var handle ProgressHandle
		if state.Progress != nil && !state.Quiet {
			handle = state.Progress.Start(resolved)
		}

		err = DownloadRange(ctx, state, session, resolved, candidates.ContentType)

		if handle != nil {
			outcome := ProgressComplete
			if err != nil {
				outcome = ProgressError
			} else if session.Status() < StatusVerified {
				outcome = ProgressPartial
			}
			state.Progress.Finish(handle, outcome)
		}

		if err != nil {
			candidates.Status[i] = URLPoisoned
			logger.Warn("failed to retrieve from candidate url", "url", resolved, "error", err)
			continue
		}
	}

	if session.Status() >= StatusVerified {
		return nil
	}
	return ErrNoUsableURLs
}
