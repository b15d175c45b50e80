// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package zsync

import (
	"context"
	"fmt"
)

// rangeReadBufSize is the read buffer size named in spec §4.4. DownloadRange
// does not read into a buffer of its own: chunk sizes are whatever
// RangeFetch.GetRangeBlock returns. The package's test fakes split ranges
// into chunks of this size.
const rangeReadBufSize = 8192

// DownloadRange runs one URL's range fetch to completion against session
// (spec §4.4 RangeDownloader). u must already be an absolute URL;
// RunFetchScheduler resolves relative candidates via ResolveURL before
// calling this.
func DownloadRange(ctx context.Context, state *ClientState, session Session, u string, ct ContentType) error {
	receiver, err := session.BeginReceive(ct)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReceiverInitFailed, err)
	}
	defer receiver.End()

	ranges, err := session.NeededRanges(ct)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNeededRangesQueryFailed, err)
	}
	if len(ranges) == 0 {
		return nil
	}

	fetch, err := state.HTTP.RangeFetchStart(ctx, u, state.Referrer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRangeFetchStartFailed, err)
	}
	defer func() {
		state.addBytesDownloaded(fetch.BytesDown())
		fetch.End()
	}()

	if err := fetch.AddRanges(ranges); err != nil {
		return fmt.Errorf("%w: %v", ErrRangeFetchStartFailed, err)
	}

	var nextOffset int64
	for {
		offset, payload, err := fetch.GetRangeBlock(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHTTPReadError, err)
		}
		if len(payload) == 0 {
			if err := receiver.ReceiveData(nil, nextOffset); err != nil {
				return fmt.Errorf("%w: %v", ErrReceiverRejected, err)
			}
			return nil
		}
		if err := receiver.ReceiveData(payload, offset); err != nil {
			return fmt.Errorf("%w: %v", ErrReceiverRejected, err)
		}
		nextOffset = offset + int64(len(payload))
	}
}
