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

package demo

import (
	"testing"

	"raftcore/internal/raftlog"
)

func TestKVApplicatorSetGetDel(t *testing.T) {
	app := NewKVApplicator()

	if _, err := app.Apply(raftlog.Entry{Index: 1, Term: 1, Name: "SET", Command: []byte("x=1")}); err != nil {
		t.Fatalf("SET: %v", err)
	}

	reply, err := app.Apply(raftlog.Entry{Index: 2, Term: 1, Name: "GET", Command: []byte("x")})
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if reply != "1" {
		t.Fatalf("GET x = %v, want 1", reply)
	}

	if v, ok := app.Get("x"); !ok || v != "1" {
		t.Fatalf("direct Get(x) = (%q, %v), want (1, true)", v, ok)
	}

	if _, err := app.Apply(raftlog.Entry{Index: 3, Term: 1, Name: "DEL", Command: []byte("x")}); err != nil {
		t.Fatalf("DEL: %v", err)
	}

	if _, err := app.Apply(raftlog.Entry{Index: 4, Term: 1, Name: "GET", Command: []byte("x")}); err != ErrKeyNotFound {
		t.Fatalf("GET after DEL err = %v, want ErrKeyNotFound", err)
	}
}

func TestKVApplicatorDelMissingKeyIsError(t *testing.T) {
	app := NewKVApplicator()
	if _, err := app.Apply(raftlog.Entry{Index: 1, Term: 1, Name: "DEL", Command: []byte("missing")}); err != ErrKeyNotFound {
		t.Fatalf("err = %v, want ErrKeyNotFound", err)
	}
}

func TestKVApplicatorMalformedSetIsError(t *testing.T) {
	app := NewKVApplicator()
	if _, err := app.Apply(raftlog.Entry{Index: 1, Term: 1, Name: "SET", Command: []byte("noequals")}); err == nil {
		t.Fatal("expected error for malformed SET payload")
	}
}

func TestKVApplicatorUnknownCommandIsError(t *testing.T) {
	app := NewKVApplicator()
	if _, err := app.Apply(raftlog.Entry{Index: 1, Term: 1, Name: "BOGUS", Command: []byte("x")}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
