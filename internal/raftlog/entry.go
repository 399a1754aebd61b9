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

/*
Package raftlog implements the in-memory log view described in the core
design's log-view component, plus a reference persistent store the view
mirrors. The view is the only piece the consensus engine touches directly;
Store is the external-collaborator interface spec.md treats as out of
scope, given a minimal file-backed implementation here so the module is
buildable and testable end-to-end.
*/
package raftlog

// Entry is a single replicated log entry. Entries are immutable once
// appended at their index; they may only be replaced by truncating the
// suffix starting at that index before a conflicting append.
type Entry struct {
	Index   uint64
	Term    uint64
	Name    string
	Command []byte
}
