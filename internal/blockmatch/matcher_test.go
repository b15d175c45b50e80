// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package blockmatch

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/zsyncgo/zsyncgo/pkg/zsync"
)

const testBlockSize = 8

// buildControlFile constructs a minimal but well-formed control document
// (header + binary checksum table) for target, the way a real zsync server
// would publish it alongside the file it describes.
func buildControlFile(t *testing.T, target []byte, urls []string) []byte {
	t.Helper()
	blockSize := testBlockSize
	numBlocks := (len(target) + blockSize - 1) / blockSize
	if len(target) == 0 {
		numBlocks = 0
	}

	var header strings.Builder
	fmt.Fprintf(&header, "zsync: 0.6.2\n")
	fmt.Fprintf(&header, "Filename: target.bin\n")
	fmt.Fprintf(&header, "Blocksize: %d\n", blockSize)
	fmt.Fprintf(&header, "Length: %d\n", len(target))
	fmt.Fprintf(&header, "Hash-Lengths: 4,16\n")
	for _, u := range urls {
		fmt.Fprintf(&header, "URL: %s\n", u)
	}
	header.WriteString("\n")

	var table bytes.Buffer
	for i := 0; i < numBlocks; i++ {
		start := i * blockSize
		end := start + blockSize
		if end > len(target) {
			end = len(target)
		}
		block := target[start:end]
		a, b := initWeak(block)
		weak := weakValue(a, b)
		table.WriteByte(byte(weak >> 24))
		table.WriteByte(byte(weak >> 16))
		table.WriteByte(byte(weak >> 8))
		table.WriteByte(byte(weak))
		sum := md5.Sum(block)
		table.Write(sum[:])
	}

	out := append([]byte(header.String()), table.Bytes()...)
	return out
}

func TestParseControlFile_RoundTrip(t *testing.T) {
	target := bytes.Repeat([]byte("abcdefgh"), 5) // 40 bytes, 5 whole blocks
	raw := buildControlFile(t, target, []string{"http://example.com/target.bin"})

	cd, err := ParseControlFile(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		t.Fatalf("ParseControlFile: %v", err)
	}
	if cd.BlockSize != testBlockSize {
		t.Errorf("BlockSize = %d, want %d", cd.BlockSize, testBlockSize)
	}
	if cd.Length != int64(len(target)) {
		t.Errorf("Length = %d, want %d", cd.Length, len(target))
	}
	if len(cd.Blocks) != 5 {
		t.Fatalf("len(Blocks) = %d, want 5", len(cd.Blocks))
	}
	if len(cd.URLs) != 1 || cd.URLs[0] != "http://example.com/target.bin" {
		t.Errorf("URLs = %v", cd.URLs)
	}
}

func TestParseControlFile_ShortFinalBlock(t *testing.T) {
	target := append(bytes.Repeat([]byte("X"), 16), []byte("abc")...) // 19 bytes, last block 3 bytes
	raw := buildControlFile(t, target, []string{"http://example.com/f"})

	cd, err := ParseControlFile(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		t.Fatalf("ParseControlFile: %v", err)
	}
	if len(cd.Blocks) != 3 {
		t.Fatalf("len(Blocks) = %d, want 3", len(cd.Blocks))
	}
	if cd.lastBlockLen() != 3 {
		t.Errorf("lastBlockLen = %d, want 3", cd.lastBlockLen())
	}
	if cd.blockLen(0) != testBlockSize {
		t.Errorf("blockLen(0) = %d, want %d", cd.blockLen(0), testBlockSize)
	}
}

func TestParseControlFile_MissingBlocksize(t *testing.T) {
	raw := "zsync: 0.6.2\nLength: 10\n\n"
	if _, err := ParseControlFile(bufio.NewReader(strings.NewReader(raw))); err == nil {
		t.Fatal("expected error for missing Blocksize")
	}
}

func TestMatcher_FullSeedMatch(t *testing.T) {
	target := bytes.Repeat([]byte("0123456789"), 10) // 100 bytes
	cf := buildControlFile(t, target, []string{"http://example.com/t"})

	m := New(nil)
	sess, err := m.Begin(context.Background(), bytes.NewReader(cf))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// Seed content is byte-identical to the target: every block should match.
	if err := sess.SubmitSource(context.Background(), bytes.NewReader(target), false); err != nil {
		t.Fatalf("SubmitSource: %v", err)
	}

	ranges, err := sess.NeededRanges(zsync.ContentPlain)
	if err != nil {
		t.Fatalf("NeededRanges: %v", err)
	}
	if len(ranges) != 0 {
		t.Errorf("NeededRanges = %v, want none after full seed match", ranges)
	}
	if got := sess.Status(); got != zsync.StatusVerified {
		t.Errorf("Status = %v, want StatusVerified", got)
	}
	if code := sess.(*session).Complete(); code != 1 {
		t.Errorf("Complete = %d, want 1", code)
	}
}

func TestMatcher_PartialSeedLeavesGaps(t *testing.T) {
	target := bytes.Repeat([]byte("Z"), 80) // 10 blocks of 8 bytes, all identical content
	cf := buildControlFile(t, target, []string{"http://example.com/t"})

	m := New(nil)
	sess, err := m.Begin(context.Background(), bytes.NewReader(cf))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// Seed only covers the first 24 bytes (3 blocks) of matching content.
	seed := target[:24]
	if err := sess.SubmitSource(context.Background(), bytes.NewReader(seed), false); err != nil {
		t.Fatalf("SubmitSource: %v", err)
	}

	done, total := sess.Progress()
	if total != 80 {
		t.Fatalf("total = %d, want 80", total)
	}
	if done != 24 {
		t.Errorf("done = %d, want 24", done)
	}

	ranges, err := sess.NeededRanges(zsync.ContentPlain)
	if err != nil {
		t.Fatalf("NeededRanges: %v", err)
	}
	if len(ranges) != 1 || ranges[0].Start != 24 || ranges[0].End != 80 {
		t.Fatalf("NeededRanges = %v, want [{24 80}]", ranges)
	}
	if got := sess.Status(); got != zsync.StatusHaveDataUnverified {
		t.Errorf("Status = %v, want StatusHaveDataUnverified", got)
	}
}

func TestMatcher_ReceiveCompletesSession(t *testing.T) {
	target := []byte("the quick brown fox jumps over the lazy dog!!!!") // 47 bytes, 6 blocks (the last one 7 bytes)
	cf := buildControlFile(t, target, []string{"http://example.com/t"})

	m := New(nil)
	sess, err := m.Begin(context.Background(), bytes.NewReader(cf))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	ranges, err := sess.NeededRanges(zsync.ContentPlain)
	if err != nil {
		t.Fatalf("NeededRanges: %v", err)
	}
	if len(ranges) != 1 || ranges[0].Start != 0 || ranges[0].End != int64(len(target)) {
		t.Fatalf("NeededRanges = %v, want full range", ranges)
	}

	recv, err := sess.BeginReceive(zsync.ContentPlain)
	if err != nil {
		t.Fatalf("BeginReceive: %v", err)
	}
	if err := recv.ReceiveData(target, 0); err != nil {
		t.Fatalf("ReceiveData: %v", err)
	}
	if err := recv.ReceiveData(nil, int64(len(target))); err != nil {
		t.Fatalf("ReceiveData flush: %v", err)
	}
	if err := recv.End(); err != nil {
		t.Fatalf("receiver End: %v", err)
	}

	if got := sess.Status(); got != zsync.StatusVerified {
		t.Errorf("Status = %v, want StatusVerified", got)
	}
	if code := sess.(*session).Complete(); code != 1 {
		t.Errorf("Complete = %d, want 1", code)
	}

	scratchDir := t.TempDir()
	scratchPath := scratchDir + "/out.part"
	if err := sess.RenameScratch(scratchPath); err != nil {
		t.Fatalf("RenameScratch: %v", err)
	}
	finalPath, err := sess.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if finalPath != scratchPath {
		t.Errorf("End returned %q, want %q", finalPath, scratchPath)
	}

	got, err := os.ReadFile(scratchPath)
	if err != nil {
		t.Fatalf("reading installed scratch file: %v", err)
	}
	if !bytes.Equal(got, target) {
		t.Errorf("scratch file content mismatch: got %q, want %q", got, target)
	}
}

func TestMatcher_CorruptDataFailsComplete(t *testing.T) {
	target := bytes.Repeat([]byte("abcdefgh"), 4) // 32 bytes, 4 blocks
	cf := buildControlFile(t, target, []string{"http://example.com/t"})

	m := New(nil)
	sess, err := m.Begin(context.Background(), bytes.NewReader(cf))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	recv, err := sess.BeginReceive(zsync.ContentPlain)
	if err != nil {
		t.Fatalf("BeginReceive: %v", err)
	}
	corrupt := bytes.Repeat([]byte("Z"), len(target))
	if err := recv.ReceiveData(corrupt, 0); err != nil {
		t.Fatalf("ReceiveData: %v", err)
	}

	if got := sess.Status(); got != zsync.StatusVerified {
		t.Fatalf("Status = %v, want StatusVerified (full coverage, unverified content)", got)
	}
	if code := sess.(*session).Complete(); code != -1 {
		t.Errorf("Complete = %d, want -1 for corrupt data", code)
	}
}

func TestMatcher_ZURLsReportCompressed(t *testing.T) {
	target := bytes.Repeat([]byte("q"), 16)
	header := fmt.Sprintf("zsync: 0.6.2\nBlocksize: %d\nLength: %d\nHash-Lengths: 4,16\nZ-URL: http://example.com/t.gz\n\n", testBlockSize, len(target))
	var table bytes.Buffer
	for i := 0; i < 2; i++ {
		block := target[i*testBlockSize : (i+1)*testBlockSize]
		a, b := initWeak(block)
		weak := weakValue(a, b)
		table.WriteByte(byte(weak >> 24))
		table.WriteByte(byte(weak >> 16))
		table.WriteByte(byte(weak >> 8))
		table.WriteByte(byte(weak))
		sum := md5.Sum(block)
		table.Write(sum[:])
	}
	raw := append([]byte(header), table.Bytes()...)

	m := New(nil)
	sess, err := m.Begin(context.Background(), bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !sess.HintDecompress() {
		t.Error("HintDecompress = false, want true for Z-URL-only control document")
	}
	urls, ct := sess.Urls()
	if ct != zsync.ContentCompressed {
		t.Errorf("ContentType = %v, want ContentCompressed", ct)
	}
	if len(urls) != 1 || urls[0] != "http://example.com/t.gz" {
		t.Errorf("Urls = %v", urls)
	}
}

func TestCoverage_AddMergesOverlapping(t *testing.T) {
	var c coverage
	c.add(10, 20)
	c.add(30, 40)
	c.add(15, 35) // bridges the two spans
	if got := c.bytesCovered(); got != 30 {
		t.Errorf("bytesCovered = %d, want 30", got)
	}
	gaps := c.gaps(50)
	if len(gaps) != 2 || gaps[0] != (rangeSpan{0, 10}) || gaps[1] != (rangeSpan{40, 50}) {
		t.Errorf("gaps = %v", gaps)
	}
}

func TestRollsum_IncrementalMatchesDirect(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	window := 8
	a, b := initWeak(data[:window])
	for pos := 0; pos+window < len(data); pos++ {
		a, b = rollWeak(a, b, window, data[pos], data[pos+window])
		wantA, wantB := initWeak(data[pos+1 : pos+1+window])
		if a != wantA || b != wantB {
			t.Fatalf("at pos %d: rolled (a=%d b=%d), direct (a=%d b=%d)", pos+1, a, b, wantA, wantB)
		}
	}
}
