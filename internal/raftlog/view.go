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

import "errors"

// ErrUnknownTerm is returned by View.TermAt for an index beyond the log's
// current extent.
var ErrUnknownTerm = errors.New("raftlog: term requested for out-of-range index")

// VerifyResult is the outcome of View.VerifyPrev.
type VerifyResult int

const (
	VerifyOK VerifyResult = iota
	VerifyMismatch
)

// View is the in-memory, ordered, gap-free mirror of the persistent log
// store. It is owned exclusively by the consensus engine's single
// goroutine; every method assumes single-threaded, synchronous use, per
// the reactor's concurrency model.
type View struct {
	store   Store
	entries []Entry // entries[0] corresponds to index 1
	commitIndex uint64
}

// NewView creates an empty log view backed by store. Call Load to restore
// state from an existing store on startup.
func NewView(store Store) *View {
	return &View{store: store}
}

// Load replays the backing store and rebuilds the in-memory view. It
// returns the term of the last replayed entry (0 if the log is empty),
// matching spec.md §6's startup restoration rule for current_term.
func (v *View) Load() (lastTerm uint64, err error) {
	entries, lastTerm, err := v.store.Replay()
	if err != nil {
		return 0, err
	}
	v.entries = entries
	return lastTerm, nil
}

// CurrentIndex returns the index of the latest entry, or 0 if empty.
func (v *View) CurrentIndex() uint64 {
	return uint64(len(v.entries))
}

// CurrentTerm returns the term of the latest entry, or 0 if empty.
func (v *View) CurrentTerm() uint64 {
	if len(v.entries) == 0 {
		return 0
	}
	return v.entries[len(v.entries)-1].Term
}

// TermAt returns the term of the entry at index, 0 for index 0, or
// ErrUnknownTerm for any index beyond the log's current extent.
func (v *View) TermAt(index uint64) (uint64, error) {
	if index == 0 {
		return 0, nil
	}
	if index > uint64(len(v.entries)) {
		return 0, ErrUnknownTerm
	}
	return v.entries[index-1].Term, nil
}

// EntryAt returns the stored entry at index. index must be in
// [1, CurrentIndex()].
func (v *View) EntryAt(index uint64) (Entry, bool) {
	if index == 0 || index > uint64(len(v.entries)) {
		return Entry{}, false
	}
	return v.entries[index-1], true
}

// Append appends entry to both the in-memory view and the backing store.
// Precondition: entry.Index == CurrentIndex()+1. Durability (fsync) is a
// separate step via Sync, not performed here.
func (v *View) Append(entry Entry) error {
	if entry.Index != v.CurrentIndex()+1 {
		return errors.New("raftlog: append index is not current_index+1")
	}
	if err := v.store.Append(entry); err != nil {
		return err
	}
	v.entries = append(v.entries, entry)
	return nil
}

// VerifyPrev returns VerifyOK iff prevIndex == 0 or a stored entry exists
// at prevIndex with term == prevTerm.
func (v *View) VerifyPrev(prevIndex, prevTerm uint64) VerifyResult {
	if prevIndex == 0 {
		return VerifyOK
	}
	term, err := v.TermAt(prevIndex)
	if err != nil || term != prevTerm {
		return VerifyMismatch
	}
	return VerifyOK
}

// AppendBatch applies entries in order: a conflicting entry (same index,
// different term) truncates the suffix from that index before appending;
// a matching entry (same index, same term) is skipped; a new entry is
// appended. Precondition: the caller has already verified the batch's
// prev_log_index/prev_log_term via VerifyPrev.
func (v *View) AppendBatch(entries []Entry) error {
	for _, e := range entries {
		if e.Index <= v.CurrentIndex() {
			existing := v.entries[e.Index-1]
			if existing.Term == e.Term {
				continue
			}
			if err := v.truncateSuffix(e.Index); err != nil {
				return err
			}
		}
		if err := v.Append(e); err != nil {
			return err
		}
	}
	return nil
}

func (v *View) truncateSuffix(fromIndex uint64) error {
	if err := v.store.TruncateSuffix(fromIndex); err != nil {
		return err
	}
	v.entries = v.entries[:fromIndex-1]
	return nil
}

// CommitTo advances commit_index to min(leaderCommit, CurrentIndex()).
// commit_index never decreases.
func (v *View) CommitTo(leaderCommit uint64) {
	target := leaderCommit
	if cur := v.CurrentIndex(); target > cur {
		target = cur
	}
	if target > v.commitIndex {
		v.commitIndex = target
	}
}

// CommitIndex returns the current commit index.
func (v *View) CommitIndex() uint64 { return v.commitIndex }

// SetCommitIndex directly advances commit_index to n, for the leader-side
// quorum computation in spec.md's commit-index advancement rule. It is a
// no-op if n is not greater than the current commit index, preserving the
// "never decreases" invariant.
func (v *View) SetCommitIndex(n uint64) {
	if n > v.commitIndex {
		v.commitIndex = n
	}
}

// Sync fsyncs the backing store up to CurrentIndex().
func (v *View) Sync() error {
	return v.store.Sync()
}
