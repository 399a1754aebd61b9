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

// Package roster parses the static cluster membership file and, for
// environments where a node's address is not stable across restarts,
// offers opt-in startup-time address resolution. The set of identities
// a roster names never changes while the cluster is running — spec.md
// scopes dynamic membership change out, and resolving addresses before
// the engine starts does not reopen that door.
package roster

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ClusterPortOffset mirrors PREZ_CLUSTER_PORT_INCR from the original C
// implementation this module is descended from. No code in this module
// applies it: a roster member's ip:port is used as-is, both as the
// address a node listens on and as the address its peers dial.
const ClusterPortOffset = 10000

// Member is one line of a roster file.
type Member struct {
	Identity string
	Addr     string
	Self     bool
	Voter    bool
}

// Roster is the parsed, validated membership list.
type Roster struct {
	Members []Member
	SelfID  string
}

// ParseFile reads and validates a roster file. Exactly one member line
// must carry the "self" flag unless selfOverride is non-empty, in which
// case it names the local identity instead and no line is required to
// carry "self".
func ParseFile(path string, selfOverride string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roster: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, selfOverride, path)
}

// Parse reads a roster from r; path is used only in error messages.
func Parse(r io.Reader, selfOverride, path string) (*Roster, error) {
	scanner := bufio.NewScanner(r)
	var members []Member
	selfID := selfOverride
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("roster: %s:%d: expected \"<identity> <ip:port> [flags...]\", got %q", path, lineNo, line)
		}
		m := Member{Identity: fields[0], Addr: fields[1], Voter: true}
		for _, flag := range fields[2:] {
			switch flag {
			case "self":
				m.Self = true
			case "voter":
				m.Voter = true
			case "nonvoter":
				m.Voter = false
			default:
				return nil, fmt.Errorf("roster: %s:%d: unrecognized flag %q", path, lineNo, flag)
			}
		}
		if m.Self {
			if selfOverride != "" && selfOverride != m.Identity {
				return nil, fmt.Errorf("roster: %s:%d: self flag on %q conflicts with configured self %q", path, lineNo, m.Identity, selfOverride)
			}
			selfID = m.Identity
		}
		members = append(members, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("roster: %s: %w", path, err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("roster: %s: no members", path)
	}
	if selfID == "" {
		return nil, fmt.Errorf("roster: %s: no member carries the \"self\" flag and no self identity was configured", path)
	}
	found := false
	for _, m := range members {
		if m.Identity == selfID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("roster: %s: self identity %q does not appear in the roster", path, selfID)
	}
	return &Roster{Members: members, SelfID: selfID}, nil
}

// SingleNode synthesizes a one-member roster for the -single-node
// startup path (spec.md §4.4's single-node immediate-commit rule),
// bypassing the roster file entirely.
func SingleNode(identity, addr string) *Roster {
	return &Roster{
		Members: []Member{{Identity: identity, Addr: addr, Self: true, Voter: true}},
		SelfID:  identity,
	}
}

// Peers returns every member other than Self.
func (r *Roster) Peers() []Member {
	out := make([]Member, 0, len(r.Members))
	for _, m := range r.Members {
		if m.Identity != r.SelfID {
			out = append(out, m)
		}
	}
	return out
}

// Self returns the local member entry.
func (r *Roster) Self() (Member, bool) {
	for _, m := range r.Members {
		if m.Identity == r.SelfID {
			return m, true
		}
	}
	return Member{}, false
}
