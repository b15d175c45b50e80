// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/zsyncgo/zsyncgo/pkg/zsync"
)

// rangeReadBufSize bounds how much of one HTTP range response is buffered
// before GetRangeBlock returns it to the caller, so a single large range
// does not need to be held in memory at once.
const rangeReadBufSize = 64 * 1024

// rangeFetch is the module's concrete zsync.RangeFetch: it issues one
// Range-header GET request per registered zsync.ByteRange, in order,
// handing back chunks as they arrive.
type rangeFetch struct {
	client *Client
	url    string

	ranges []zsync.ByteRange
	idx    int

	body      io.ReadCloser
	curOffset int64
	curEnd    int64
	bytesDown int64
}

var _ zsync.RangeFetch = (*rangeFetch)(nil)

func (r *rangeFetch) AddRanges(ranges []zsync.ByteRange) error {
	r.ranges = ranges
	return nil
}

// GetRangeBlock advances through r.ranges in order, opening a new
// Range-header request whenever the previous one is exhausted, until all
// ranges are delivered.
func (r *rangeFetch) GetRangeBlock(ctx context.Context) (int64, []byte, error) {
	for {
		if r.body == nil {
			if r.idx >= len(r.ranges) {
				return 0, nil, nil
			}
			rng := r.ranges[r.idx]
			r.idx++
			if err := r.openRange(ctx, rng); err != nil {
				return 0, nil, err
			}
		}

		buf := make([]byte, rangeReadBufSize)
		n, err := r.body.Read(buf)
		if n > 0 {
			offset := r.curOffset
			r.curOffset += int64(n)
			atomic.AddInt64(&r.bytesDown, int64(n))
			bytesDownloaded.Add(float64(n))
			return offset, buf[:n], nil
		}
		if err == io.EOF {
			r.body.Close()
			r.body = nil
			continue
		}
		if err != nil {
			r.body.Close()
			r.body = nil
			return 0, nil, fmt.Errorf("httpfetch: reading range body: %w", err)
		}
	}
}

func (r *rangeFetch) openRange(ctx context.Context, rng zsync.ByteRange) error {
	var lastErr error
	for attempt := 1; attempt <= r.client.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", r.client.userAgent)
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End-1))

		resp, err := r.client.http.Do(req)
		if err == nil && resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
			err = fmt.Errorf("unexpected status %s", resp.Status)
			resp.Body.Close()
		}
		if err == nil {
			requestsTotal.WithLabelValues("ok").Inc()
			r.body = resp.Body
			r.curOffset = rng.Start
			r.curEnd = rng.End
			return nil
		}
		lastErr = err
		if attempt < r.client.retries {
			requestsTotal.WithLabelValues("retry").Inc()
			retriesTotal.Inc()
			d := r.client.backoff.delay(attempt)
			r.client.logger.Warn("retrying range fetch", "url", r.url, "start", rng.Start, "end", rng.End, "attempt", attempt, "error", err, "backoff", d)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	requestsTotal.WithLabelValues("error").Inc()
	return fmt.Errorf("httpfetch: range fetch %s [%d,%d): %w", r.url, rng.Start, rng.End, lastErr)
}

func (r *rangeFetch) BytesDown() int64 {
	return atomic.LoadInt64(&r.bytesDown)
}

func (r *rangeFetch) End() error {
	if r.body != nil {
		err := r.body.Close()
		r.body = nil
		return err
	}
	return nil
}
