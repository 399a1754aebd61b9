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

package consensus

import (
	"bytes"

	"raftcore/internal/wire"
)

// NodeID is the 40-byte opaque sender identity carried on the wire. Per
// spec.md's design notes, it is treated as a fixed-length blob with
// equality and hashing only; it is never parsed.
type NodeID [wire.IdentitySize]byte

// ParseNodeID copies a short identity string into a zero-padded NodeID.
func ParseNodeID(s string) NodeID {
	var id NodeID
	copy(id[:], s)
	return id
}

// String trims trailing zero padding for display purposes only.
func (id NodeID) String() string {
	return string(bytes.TrimRight(id[:], "\x00"))
}

func (id NodeID) IsZero() bool {
	return id == NodeID{}
}
