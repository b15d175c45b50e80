// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package blockmatch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/zsyncgo/zsyncgo/pkg/zsync"
)

// Matcher is the module's concrete pkg/zsync.Matcher implementation: a
// rolling-checksum plus strong-checksum block matcher over a zsync-style
// control document.
type Matcher struct {
	Logger *slog.Logger
}

// New constructs a Matcher. A nil logger defaults to slog.Default().
func New(logger *slog.Logger) *Matcher {
	return &Matcher{Logger: logger}
}

func (m *Matcher) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Begin parses r as a control document and opens a fresh scratch file for
// the resulting session (spec §6.3 MatcherLib.begin).
func (m *Matcher) Begin(ctx context.Context, r io.Reader) (zsync.Session, error) {
	cd, err := ParseControlFile(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "zsyncgo-scratch-*")
	if err != nil {
		return nil, fmt.Errorf("blockmatch: creating scratch file: %w", err)
	}
	if err := f.Truncate(cd.Length); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("blockmatch: sizing scratch file: %w", err)
	}

	s := &session{
		cd:            cd,
		scratch:       f,
		scratchPath:   f.Name(),
		logger:        m.logger(),
		weakIndex:     make(map[uint32][]int),
		lastWeakIndex: make(map[uint32][]int),
	}
	for i := range cd.Blocks {
		if cd.blockLen(i) == cd.BlockSize {
			s.weakIndex[cd.Blocks[i].weak] = append(s.weakIndex[cd.Blocks[i].weak], i)
		} else {
			s.lastWeakIndex[cd.Blocks[i].weak] = append(s.lastWeakIndex[cd.Blocks[i].weak], i)
		}
	}

	return s, nil
}

type session struct {
	cd          *ControlDocument
	scratch     *os.File
	scratchPath string
	logger      *slog.Logger

	mu            sync.Mutex
	cov           coverage
	weakIndex     map[uint32][]int // block index, for full-size blocks
	lastWeakIndex map[uint32][]int // block index, for the final (possibly short) block
	matched       []bool
}

func (s *session) HintDecompress() bool { return len(s.cd.ZURLs) > 0 }

func (s *session) Filename() (string, bool) { return s.cd.Filename, s.cd.HasFilename }

func (s *session) Progress() (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cov.bytesCovered(), s.cd.Length
}

func (s *session) Urls() ([]string, zsync.ContentType) {
	if len(s.cd.URLs) > 0 {
		return s.cd.URLs, zsync.ContentPlain
	}
	return s.cd.ZURLs, zsync.ContentCompressed
}

// SubmitSource streams r and tries to match its content against every
// still-unmatched block via a sliding rolling checksum, confirming
// candidate matches with the strong checksum before writing the matched
// bytes into the scratch file at their target offset.
func (s *session) SubmitSource(ctx context.Context, r io.Reader, showProgress bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cd.BlockSize > 0 && len(data) >= s.cd.BlockSize && len(s.weakIndex) > 0 {
		if err := s.scanAndMatchLocked(data, s.cd.BlockSize, s.weakIndex); err != nil {
			return err
		}
	}
	lastLen := s.cd.lastBlockLen()
	if lastLen > 0 && lastLen != s.cd.BlockSize && len(data) >= lastLen && len(s.lastWeakIndex) > 0 {
		if err := s.scanAndMatchLocked(data, lastLen, s.lastWeakIndex); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) scanAndMatchLocked(data []byte, windowLen int, index map[uint32][]int) error {
	if s.matched == nil {
		s.matched = make([]bool, len(s.cd.Blocks))
	}
	pos := 0
	a, b := initWeak(data[pos : pos+windowLen])
	for {
		if pos+windowLen > len(data) {
			return nil
		}
		weak := maskWeak(weakValue(a, b), s.cd.RsumBytes)
		if candidates, ok := index[weak]; ok {
			window := data[pos : pos+windowLen]
			var strong []byte
			matchedIdx := -1
			for _, idx := range candidates {
				if s.matched[idx] {
					continue
				}
				if strong == nil {
					strong = strongChecksum(window, s.cd.ChecksumBytes)
				}
				if bytes.Equal(strong, s.cd.Blocks[idx].strong) {
					matchedIdx = idx
					break
				}
			}
			if matchedIdx >= 0 {
				if err := s.writeBlockLocked(matchedIdx, window); err != nil {
					return err
				}
				pos += windowLen
				if pos+windowLen <= len(data) {
					a, b = initWeak(data[pos : pos+windowLen])
				}
				continue
			}
		}
		if pos+windowLen >= len(data) {
			return nil
		}
		a, b = rollWeak(a, b, windowLen, data[pos], data[pos+windowLen])
		pos++
	}
}

func (s *session) writeBlockLocked(idx int, buf []byte) error {
	offset := int64(idx) * int64(s.cd.BlockSize)
	if _, err := s.scratch.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("blockmatch: writing matched block %d: %w", idx, err)
	}
	s.matched[idx] = true
	s.cov.add(offset, offset+int64(len(buf)))
	return nil
}

func (s *session) NeededRanges(ct zsync.ContentType) ([]zsync.ByteRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gaps := s.cov.gaps(s.cd.Length)
	out := make([]zsync.ByteRange, len(gaps))
	for i, g := range gaps {
		out[i] = zsync.ByteRange{Start: g.start, End: g.end}
	}
	return out, nil
}

func (s *session) BeginReceive(ct zsync.ContentType) (zsync.Receiver, error) {
	return &receiver{session: s}, nil
}

type receiver struct {
	session *session
}

func (r *receiver) ReceiveData(buf []byte, offset int64) error {
	if len(buf) == 0 {
		return nil // flush signal; this receiver writes eagerly, nothing buffered.
	}
	s := r.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.scratch.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("blockmatch: writing received data at offset %d: %w", offset, err)
	}
	s.cov.add(offset, offset+int64(len(buf)))
	return nil
}

func (r *receiver) End() error { return nil }

func (s *session) RenameScratch(newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Rename(s.scratchPath, newPath); err != nil {
		return fmt.Errorf("blockmatch: renaming scratch file to %s: %w", newPath, err)
	}
	s.scratchPath = newPath
	return nil
}

func (s *session) Status() zsync.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cd.Length == 0 {
		return zsync.StatusVerified
	}
	covered := s.cov.bytesCovered()
	switch {
	case covered >= s.cd.Length:
		return zsync.StatusVerified
	case covered > 0:
		return zsync.StatusHaveDataUnverified
	default:
		return zsync.StatusInProgress
	}
}

// Complete performs the end-to-end checksum verification pass over the
// fully-assembled scratch file (spec §6.3 MatcherLib.complete).
func (s *session) Complete() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cd.ChecksumBytes == 0 {
		return 0
	}
	buf := make([]byte, s.cd.BlockSize)
	for i := range s.cd.Blocks {
		blen := s.cd.blockLen(i)
		n, err := s.scratch.ReadAt(buf[:blen], int64(i)*int64(s.cd.BlockSize))
		if err != nil && err != io.EOF {
			s.logger.Warn("failed to read back block for verification", "block", i, "error", err)
			return -1
		}
		if n != blen {
			return -1
		}
		if !bytes.Equal(strongChecksum(buf[:blen], s.cd.ChecksumBytes), s.cd.Blocks[i].strong) {
			return -1
		}
	}
	return 1
}

func (s *session) Mtime() (int64, bool) { return s.cd.MTime, s.cd.HasMTime }

func (s *session) End() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.scratch.Close(); err != nil {
		s.logger.Warn("error closing scratch file", "path", s.scratchPath, "error", err)
	}
	return s.scratchPath, nil
}
