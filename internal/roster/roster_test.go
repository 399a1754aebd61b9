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

package roster

import (
	"strings"
	"testing"
)

func TestParseBasicRoster(t *testing.T) {
	src := `# three-node cluster
A 10.0.0.1:7000 self
B 10.0.0.2:7000
C 10.0.0.3:7000 voter
`
	r, err := Parse(strings.NewReader(src), "", "test.roster")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.SelfID != "A" {
		t.Fatalf("SelfID = %q, want A", r.SelfID)
	}
	if len(r.Members) != 3 {
		t.Fatalf("len(Members) = %d, want 3", len(r.Members))
	}
	peers := r.Peers()
	if len(peers) != 2 {
		t.Fatalf("len(Peers()) = %d, want 2", len(peers))
	}
	self, ok := r.Self()
	if !ok || self.Addr != "10.0.0.1:7000" {
		t.Fatalf("Self() = %+v, %v", self, ok)
	}
}

func TestParseSelfOverride(t *testing.T) {
	src := `A 10.0.0.1:7000
B 10.0.0.2:7000
`
	r, err := Parse(strings.NewReader(src), "B", "test.roster")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.SelfID != "B" {
		t.Fatalf("SelfID = %q, want B", r.SelfID)
	}
}

func TestParseMissingSelfIsError(t *testing.T) {
	src := "A 10.0.0.1:7000\nB 10.0.0.2:7000\n"
	if _, err := Parse(strings.NewReader(src), "", "test.roster"); err == nil {
		t.Fatal("expected an error when no member carries self and no override is given")
	}
}

func TestParseSelfConflictIsError(t *testing.T) {
	src := "A 10.0.0.1:7000 self\nB 10.0.0.2:7000\n"
	if _, err := Parse(strings.NewReader(src), "B", "test.roster"); err == nil {
		t.Fatal("expected an error when the self flag conflicts with the override")
	}
}

func TestParseUnrecognizedFlagIsError(t *testing.T) {
	src := "A 10.0.0.1:7000 bogus\n"
	if _, err := Parse(strings.NewReader(src), "A", "test.roster"); err == nil {
		t.Fatal("expected an error for an unrecognized flag")
	}
}

func TestSingleNodeRoster(t *testing.T) {
	r := SingleNode("A", "127.0.0.1:7000")
	if len(r.Peers()) != 0 {
		t.Fatalf("a single-node roster should have no peers")
	}
	if r.SelfID != "A" {
		t.Fatalf("SelfID = %q, want A", r.SelfID)
	}
}
