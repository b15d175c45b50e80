// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package zsync

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
)

// fakeReceiver accumulates delivered chunks into an in-memory buffer at
// their reported offsets, for tests that only care about total bytes
// received and final content.
type fakeReceiver struct {
	mu      sync.Mutex
	buf     []byte
	ended   bool
	rejectN int // reject the Nth ReceiveData call (1-indexed); 0 = never
	calls   int
}

func (r *fakeReceiver) ReceiveData(buf []byte, offset int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.rejectN != 0 && r.calls == r.rejectN {
		return errTestReject
	}
	if len(buf) == 0 {
		return nil
	}
	end := offset + int64(len(buf))
	if int64(len(r.buf)) < end {
		grown := make([]byte, end)
		copy(grown, r.buf)
		r.buf = grown
	}
	copy(r.buf[offset:end], buf)
	return nil
}

func (r *fakeReceiver) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = true
	return nil
}

var errTestReject = io.ErrClosedPipe

// fakeSession is a minimal in-memory Session used to exercise
// RangeDownloader, FetchScheduler, and Driver without a real block
// matcher. Its scratch file is written from the in-memory bytes on
// RenameScratch and End, so Driver tests find a real working file on disk.
type fakeSession struct {
	target       []byte
	have         []byte
	urls         []string
	ct           ContentType
	status       SessionStatus
	completeCode int
	adv          string
	mtimeVal     int64
	haveMtime    bool
	scratchPath  string
	decompress   bool

	beginReceiveErr error
	neededRangesErr error
	rejectReceiverN int
}

func newFakeSession(target []byte, urls []string) *fakeSession {
	return &fakeSession{
		target:       target,
		have:         make([]byte, len(target)),
		urls:         urls,
		ct:           ContentPlain,
		status:       StatusInProgress,
		completeCode: 1,
	}
}

func (s *fakeSession) HintDecompress() bool { return s.decompress }

func (s *fakeSession) Filename() (string, bool) { return s.adv, s.adv != "" }

func (s *fakeSession) Progress() (int64, int64) {
	var done int64
	for i, b := range s.have {
		if b != 0 || s.target[i] == 0 {
			done++
		}
	}
	return done, int64(len(s.target))
}

func (s *fakeSession) Urls() ([]string, ContentType) { return s.urls, s.ct }

func (s *fakeSession) SubmitSource(ctx context.Context, r io.Reader, showProgress bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	for i := 0; i < len(data) && i < len(s.have); i++ {
		if data[i] == s.target[i] {
			s.have[i] = data[i]
			if s.have[i] == 0 {
				s.have[i] = 1 // sentinel: matched even if target byte is zero
			}
		}
	}
	s.recomputeStatus()
	return nil
}

// recomputeStatus mirrors real block matchers, which verify each block's
// strong checksum as it is received: once every byte is in place the
// session is already "verified" without waiting for a separate whole-file
// pass.
func (s *fakeSession) recomputeStatus() {
	if bytes.Equal(s.have, s.target) {
		s.status = StatusVerified
	}
}

func (s *fakeSession) NeededRanges(ct ContentType) ([]ByteRange, error) {
	if s.neededRangesErr != nil {
		return nil, s.neededRangesErr
	}
	var ranges []ByteRange
	inGap := false
	var start int64
	for i := 0; i <= len(s.target); i++ {
		missing := i < len(s.target) && s.have[i] == 0
		if missing && !inGap {
			inGap = true
			start = int64(i)
		} else if !missing && inGap {
			inGap = false
			ranges = append(ranges, ByteRange{Start: start, End: int64(i)})
		}
	}
	return ranges, nil
}

func (s *fakeSession) BeginReceive(ct ContentType) (Receiver, error) {
	if s.beginReceiveErr != nil {
		return nil, s.beginReceiveErr
	}
	return &fakeSessionReceiver{session: s, rejectN: s.rejectReceiverN}, nil
}

type fakeSessionReceiver struct {
	session *fakeSession
	rejectN int
	calls   int
}

func (r *fakeSessionReceiver) ReceiveData(buf []byte, offset int64) error {
	r.calls++
	if r.rejectN != 0 && r.calls == r.rejectN {
		return errTestReject
	}
	for i, b := range buf {
		idx := int(offset) + i
		if idx < len(r.session.have) {
			r.session.have[idx] = b
			if r.session.have[idx] == 0 {
				r.session.have[idx] = 1
			}
		}
	}
	r.session.recomputeStatus()
	return nil
}

func (r *fakeSessionReceiver) End() error { return nil }

func (s *fakeSession) RenameScratch(newPath string) error {
	if err := os.WriteFile(newPath, s.have, 0o644); err != nil {
		return err
	}
	s.scratchPath = newPath
	return nil
}

func (s *fakeSession) Status() SessionStatus { return s.status }

func (s *fakeSession) Complete() int { return s.completeCode }

func (s *fakeSession) Mtime() (int64, bool) { return s.mtimeVal, s.haveMtime }

func (s *fakeSession) End() (string, error) {
	if err := os.WriteFile(s.scratchPath, s.have, 0o644); err != nil {
		return "", err
	}
	return s.scratchPath, nil
}

// fakeMatcher wraps a pre-built fakeSession so Driver tests can inject
// deterministic behavior without parsing a real control document.
type fakeMatcher struct {
	session *fakeSession
	err     error
}

func (m *fakeMatcher) Begin(ctx context.Context, r io.Reader) (Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	io.Copy(io.Discard, r)
	return m.session, nil
}

// fakeRangeFetch serves pre-chunked byte ranges from an in-memory source,
// optionally failing after N chunks.
type fakeRangeFetch struct {
	source    []byte
	ranges    []ByteRange
	chunks    [][2]int64 // offset, end pairs already split into read-sized chunks
	pos       int
	bytesDown int64
	failAfter int // fail on the Nth GetRangeBlock call (1-indexed), 0 = never
	calls     int
	ended     bool
}

func (f *fakeRangeFetch) AddRanges(ranges []ByteRange) error {
	f.ranges = ranges
	for _, r := range ranges {
		for off := r.Start; off < r.End; off += rangeReadBufSize {
			end := off + rangeReadBufSize
			if end > r.End {
				end = r.End
			}
			f.chunks = append(f.chunks, [2]int64{off, end})
		}
	}
	return nil
}

func (f *fakeRangeFetch) GetRangeBlock(ctx context.Context) (int64, []byte, error) {
	f.calls++
	if f.failAfter != 0 && f.calls >= f.failAfter {
		return 0, nil, errTestReject
	}
	if f.pos >= len(f.chunks) {
		return 0, nil, nil
	}
	c := f.chunks[f.pos]
	f.pos++
	payload := f.source[c[0]:c[1]]
	f.bytesDown += int64(len(payload))
	return c[0], payload, nil
}

func (f *fakeRangeFetch) BytesDown() int64 { return f.bytesDown }

func (f *fakeRangeFetch) End() error { f.ended = true; return nil }

// fakeHTTP routes RangeFetchStart calls to pre-registered fetch handles
// keyed by URL, and optionally fails Get/RangeFetchStart for specific
// URLs.
type fakeHTTP struct {
	fetches   map[string]*fakeRangeFetch
	startErrs map[string]error
	getBody   io.ReadCloser
	getURL    string
	getErr    error
}

func (h *fakeHTTP) Get(ctx context.Context, url, savePath string) (io.ReadCloser, string, error) {
	if h.getErr != nil {
		return nil, "", h.getErr
	}
	return h.getBody, h.getURL, nil
}

func (h *fakeHTTP) RangeFetchStart(ctx context.Context, url, referrer string) (RangeFetch, error) {
	if err, ok := h.startErrs[url]; ok {
		return nil, err
	}
	f, ok := h.fetches[url]
	if !ok {
		return nil, errTestReject
	}
	return f, nil
}

type nopReadCloser struct{ io.Reader }

func (nopReadCloser) Close() error { return nil }
