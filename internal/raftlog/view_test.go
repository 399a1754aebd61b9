/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package raftlog

import (
	"path/filepath"
	"testing"
)

func newTestView(t *testing.T) (*View, *FileStore) {
	t.Helper()
	store, err := OpenFileStore(filepath.Join(t.TempDir(), "raft.log"))
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	v := NewView(store)
	if _, err := v.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return v, store
}

func TestEmptyViewBoundaries(t *testing.T) {
	v, _ := newTestView(t)
	if v.CurrentIndex() != 0 || v.CurrentTerm() != 0 {
		t.Fatalf("expected empty view, got index=%d term=%d", v.CurrentIndex(), v.CurrentTerm())
	}
	if v.VerifyPrev(0, 0) != VerifyOK {
		t.Errorf("prev_log_index=0 must always verify OK")
	}
	if term, err := v.TermAt(0); err != nil || term != 0 {
		t.Errorf("TermAt(0) = %d, %v; want 0, nil", term, err)
	}
	if _, err := v.TermAt(1); err != ErrUnknownTerm {
		t.Errorf("TermAt(1) on empty log: err = %v, want ErrUnknownTerm", err)
	}
}

func TestAppendAndVerifyPrev(t *testing.T) {
	v, _ := newTestView(t)
	if err := v.Append(Entry{Index: 1, Term: 1, Name: "SET", Command: []byte("x=1")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if v.CurrentIndex() != 1 || v.CurrentTerm() != 1 {
		t.Fatalf("got index=%d term=%d", v.CurrentIndex(), v.CurrentTerm())
	}
	if v.VerifyPrev(1, 1) != VerifyOK {
		t.Errorf("VerifyPrev(1,1) should be OK")
	}
	if v.VerifyPrev(1, 2) != VerifyMismatch {
		t.Errorf("VerifyPrev(1,2) should mismatch")
	}
	if v.VerifyPrev(2, 1) != VerifyMismatch {
		t.Errorf("VerifyPrev(2,1) on a 1-entry log should mismatch")
	}

	if err := v.Append(Entry{Index: 3, Term: 1}); err == nil {
		t.Errorf("expected error appending non-contiguous index")
	}
}

func TestAppendBatchTruncatesOnConflict(t *testing.T) {
	v, _ := newTestView(t)
	mustAppend := func(idx, term uint64) {
		t.Helper()
		if err := v.Append(Entry{Index: idx, Term: term}); err != nil {
			t.Fatalf("Append(%d,%d): %v", idx, term, err)
		}
	}
	mustAppend(1, 1)
	mustAppend(2, 1)
	mustAppend(3, 1)

	// A batch that conflicts at index 2 (different term) must truncate
	// the suffix starting there before appending the new entries.
	if err := v.AppendBatch([]Entry{
		{Index: 2, Term: 2, Name: "REPLACED"},
		{Index: 3, Term: 2},
	}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if v.CurrentIndex() != 3 {
		t.Fatalf("CurrentIndex = %d, want 3", v.CurrentIndex())
	}
	entry, ok := v.EntryAt(2)
	if !ok || entry.Term != 2 || entry.Name != "REPLACED" {
		t.Errorf("entry at 2 = %+v, ok=%v; want term 2 REPLACED", entry, ok)
	}
}

func TestAppendBatchIdempotent(t *testing.T) {
	v, _ := newTestView(t)
	batch := []Entry{{Index: 1, Term: 1, Name: "SET"}, {Index: 2, Term: 1, Name: "SET"}}
	if err := v.AppendBatch(batch); err != nil {
		t.Fatal(err)
	}
	// Re-delivering the identical batch must be a no-op (skip-on-match).
	if err := v.AppendBatch(batch); err != nil {
		t.Fatal(err)
	}
	if v.CurrentIndex() != 2 {
		t.Fatalf("CurrentIndex = %d, want 2 after idempotent re-delivery", v.CurrentIndex())
	}
}

func TestCommitToNeverDecreases(t *testing.T) {
	v, _ := newTestView(t)
	v.Append(Entry{Index: 1, Term: 1})
	v.Append(Entry{Index: 2, Term: 1})
	v.CommitTo(2)
	if v.CommitIndex() != 2 {
		t.Fatalf("CommitIndex = %d, want 2", v.CommitIndex())
	}
	v.CommitTo(1)
	if v.CommitIndex() != 2 {
		t.Errorf("CommitIndex regressed to %d", v.CommitIndex())
	}
	v.CommitTo(10)
	if v.CommitIndex() != 2 {
		t.Errorf("CommitTo should clamp to CurrentIndex; got %d", v.CommitIndex())
	}
}

func TestSetCommitIndexNeverDecreases(t *testing.T) {
	v, _ := newTestView(t)
	v.Append(Entry{Index: 1, Term: 1})
	v.SetCommitIndex(1)
	v.SetCommitIndex(0)
	if v.CommitIndex() != 1 {
		t.Errorf("SetCommitIndex must never decrease commit_index")
	}
}

func TestReplayRestoresStateAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raft.log")

	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	v := NewView(store)
	v.Load()
	v.Append(Entry{Index: 1, Term: 1, Name: "SET", Command: []byte("x=1")})
	v.Append(Entry{Index: 2, Term: 2, Name: "SET", Command: []byte("y=2")})
	if err := v.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	store.Close()

	reopened, err := OpenFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	v2 := NewView(reopened)
	lastTerm, err := v2.Load()
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if lastTerm != 2 {
		t.Errorf("lastTerm = %d, want 2", lastTerm)
	}
	if v2.CurrentIndex() != 2 {
		t.Errorf("CurrentIndex after reopen = %d, want 2", v2.CurrentIndex())
	}
	e, ok := v2.EntryAt(1)
	if !ok || string(e.Command) != "x=1" {
		t.Errorf("entry 1 after reopen = %+v", e)
	}
}
