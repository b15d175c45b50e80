// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package zsync

import (
	"bytes"
	"context"
	"testing"
)

func TestDownloadRange_FullFetch(t *testing.T) {
	target := bytes.Repeat([]byte("A"), 20000)
	session := newFakeSession(target, []string{"http://host/f"})
	fetch := &fakeRangeFetch{source: target}
	http := &fakeHTTP{fetches: map[string]*fakeRangeFetch{"http://host/f": fetch}}
	state := newClientState(http, nil, true, "", 1)

	if err := DownloadRange(context.Background(), state, session, "http://host/f", ContentPlain); err != nil {
		t.Fatalf("DownloadRange: %v", err)
	}
	if !bytes.Equal(session.have, target) {
		t.Fatalf("session did not receive full target")
	}
	if state.HTTPBytesDownloaded != int64(len(target)) {
		t.Fatalf("HTTPBytesDownloaded = %d, want %d", state.HTTPBytesDownloaded, len(target))
	}
	if !fetch.ended {
		t.Fatal("fetch handle was not ended")
	}
}

func TestDownloadRange_NoNeededRanges(t *testing.T) {
	target := []byte("hello")
	session := newFakeSession(target, nil)
	copy(session.have, []byte{1, 1, 1, 1, 1})
	session.recomputeStatus()

	http := &fakeHTTP{}
	state := newClientState(http, nil, true, "", 1)

	if err := DownloadRange(context.Background(), state, session, "http://host/f", ContentPlain); err != nil {
		t.Fatalf("DownloadRange with nothing needed should succeed, got: %v", err)
	}
}

func TestDownloadRange_HTTPReadError(t *testing.T) {
	target := bytes.Repeat([]byte("B"), 100)
	session := newFakeSession(target, nil)
	fetch := &fakeRangeFetch{source: target, failAfter: 1}
	http := &fakeHTTP{fetches: map[string]*fakeRangeFetch{"http://host/f": fetch}}
	state := newClientState(http, nil, true, "", 1)

	err := DownloadRange(context.Background(), state, session, "http://host/f", ContentPlain)
	if err == nil {
		t.Fatal("expected error on http read failure")
	}
	if !fetch.ended {
		t.Fatal("fetch handle must still be ended on error path")
	}
}

func TestDownloadRange_ReceiverRejected(t *testing.T) {
	target := bytes.Repeat([]byte("C"), 100)
	session := newFakeSession(target, nil)
	session.rejectReceiverN = 1
	fetch := &fakeRangeFetch{source: target}
	http := &fakeHTTP{fetches: map[string]*fakeRangeFetch{"http://host/f": fetch}}
	state := newClientState(http, nil, true, "", 1)

	err := DownloadRange(context.Background(), state, session, "http://host/f", ContentPlain)
	if err == nil {
		t.Fatal("expected ErrReceiverRejected")
	}
}

func TestDownloadRange_RangeFetchStartFailed(t *testing.T) {
	target := []byte("data")
	session := newFakeSession(target, nil)
	http := &fakeHTTP{}
	state := newClientState(http, nil, true, "", 1)

	err := DownloadRange(context.Background(), state, session, "http://host/missing", ContentPlain)
	if err == nil {
		t.Fatal("expected error when no fetch handle is registered")
	}
}
