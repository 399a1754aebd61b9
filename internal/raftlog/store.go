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

// Store is the persistent log store's interface, as seen by the log
// view. Its implementation is an external collaborator per spec.md's
// scope; FileStore below is a minimal reference implementation so this
// module builds, runs, and can be tested end-to-end without a real
// deployment's storage layer.
type Store interface {
	// Append durably queues entry for persistence. It does not have to
	// be fsynced before returning; Sync provides the durability barrier.
	Append(entry Entry) error

	// TruncateSuffix discards all persisted entries with index >= fromIndex.
	TruncateSuffix(fromIndex uint64) error

	// ReadAt returns the entry stored at index.
	ReadAt(index uint64) (Entry, error)

	// TermAt returns the term of the entry stored at index.
	TermAt(index uint64) (uint64, error)

	// Sync blocks until every entry appended so far is durable on disk.
	Sync() error

	// Replay rebuilds the full entry slice from stable storage on
	// startup, returning the term of the last entry (0 if empty).
	Replay() ([]Entry, uint64, error)

	// Close releases the store's resources.
	Close() error
}
