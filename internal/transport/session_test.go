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

package transport

import (
	"net"
	"testing"
	"time"

	"raftcore/internal/consensus"
	"raftcore/internal/wire"
)

func TestSessionRoundTripFraming(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	idA := consensus.ParseNodeID("A")
	idB := consensus.ParseNodeID("B")

	cfg := DefaultConfig()
	client := NewOutbound(clientConn, idA, 9000, idB, cfg)
	defer client.Close()
	server := NewInbound(serverConn, idB, 9001, cfg, func(from consensus.NodeID) bool { return from == idA })
	defer server.Close()

	payload := wire.EncodeRequestVote(wire.RequestVote{Term: 1, LastLogIndex: 0, LastLogTerm: 0})
	if err := client.Send(wire.KindRequestVote, 0, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case in := <-server.Inbound():
		if in.From != idA {
			t.Fatalf("From = %v, want A", in.From)
		}
		if in.Frame.Header.Kind != wire.KindRequestVote {
			t.Fatalf("Kind = %v, want RequestVote", in.Frame.Header.Kind)
		}
		rv, err := wire.DecodeRequestVote(in.Frame.Payload)
		if err != nil {
			t.Fatalf("DecodeRequestVote: %v", err)
		}
		if rv.Term != 1 {
			t.Fatalf("Term = %d, want 1", rv.Term)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound frame")
	}

	identity, bound := server.Identity()
	if !bound || identity != idA {
		t.Fatalf("server session should have bound identity A, got %v bound=%v", identity, bound)
	}
}

func TestSessionRejectsUnknownPeer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	idA := consensus.ParseNodeID("A")
	idB := consensus.ParseNodeID("B")
	idStranger := consensus.ParseNodeID("STRANGER")

	cfg := DefaultConfig()
	client := NewOutbound(clientConn, idStranger, 9000, idB, cfg)
	defer client.Close()
	server := NewInbound(serverConn, idB, 9001, cfg, func(from consensus.NodeID) bool { return from == idA })
	defer server.Close()

	payload := wire.EncodeRequestVote(wire.RequestVote{Term: 1})
	client.Send(wire.KindRequestVote, 0, payload)

	select {
	case <-server.Done():
		if server.Err() != ErrUnknownPeer {
			t.Fatalf("Err() = %v, want ErrUnknownPeer", server.Err())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session from an unknown peer should have torn down")
	}
}

func TestSessionSendBufferOverflowTearsDown(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	idA := consensus.ParseNodeID("A")
	idB := consensus.ParseNodeID("B")
	cfg := DefaultConfig()
	cfg.SendBufferSize = 1

	// Do not spin up the server session at all, so nothing drains the
	// net.Pipe and the single buffer slot plus in-flight write fill up
	// fast, exercising the overflow path deterministically.
	client := NewOutbound(clientConn, idA, 9000, idB, cfg)
	defer client.Close()

	payload := wire.EncodeRequestVote(wire.RequestVote{Term: 1})
	var lastErr error
	for i := 0; i < 8; i++ {
		lastErr = client.Send(wire.KindRequestVote, 0, payload)
		if lastErr != nil {
			break
		}
	}
	if lastErr == nil {
		t.Fatalf("expected Send to eventually fail once the peer stops draining")
	}
}
