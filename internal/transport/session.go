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
	"errors"
	"net"
	"sync"

	"raftcore/internal/consensus"
	"raftcore/internal/wire"
)

// ErrUnknownPeer is returned (via Err) when an inbound session's first
// frame names a sender outside the configured roster. Per spec.md
// §4.2, such sessions MUST be closed immediately to avoid accumulating
// stray state.
var ErrUnknownPeer = errors.New("transport: inbound frame from unknown peer")

// ErrSendBufferFull is returned by Send when the outbound queue is at
// capacity. Per spec.md §5's backpressure guidance, this tears the
// session down rather than blocking the caller; the tick loop
// reconnects, and idempotent replication makes that safe.
var ErrSendBufferFull = errors.New("transport: outbound send buffer full")

type outboundFrame struct {
	kind    wire.Kind
	payload []byte
	flags   wire.Flag
}

// Inbound is a decoded frame delivered from a Session to the reactor,
// tagged with the identity of the peer that sent it.
type Inbound struct {
	From  consensus.NodeID
	Frame *wire.Frame
}

// Session maintains one bidirectional byte stream to a peer. It has no
// Raft business logic: it frames outbound sends, reassembles inbound
// frames, and tears itself down on any I/O error. Reconnection is the
// tick loop's responsibility (see internal/reactor).
type Session struct {
	conn     net.Conn
	cfg      Config
	self     consensus.NodeID
	selfPort uint16

	mu       sync.Mutex
	identity consensus.NodeID
	bound    bool

	inbound  chan Inbound
	outbound chan outboundFrame
	done     chan struct{}
	once     sync.Once
	err      error
}

// NewOutbound wraps a freshly dialed connection to a known roster peer.
// The identity is already known (we dialed it), but the first inbound
// frame's sender is still checked against it as a protocol sanity
// check.
func NewOutbound(conn net.Conn, self consensus.NodeID, selfPort uint16, peer consensus.NodeID, cfg Config) *Session {
	s := newSession(conn, self, selfPort, cfg)
	s.identity = peer
	s.bound = true
	go s.readLoop(func(from consensus.NodeID) bool { return from == peer })
	go s.writeLoop()
	return s
}

// NewInbound wraps an accepted connection whose peer identity is not
// yet known. isKnownPeer is consulted against the sender identity
// carried by the first inbound frame; the session is torn down
// immediately if it returns false.
func NewInbound(conn net.Conn, self consensus.NodeID, selfPort uint16, cfg Config, isKnownPeer func(consensus.NodeID) bool) *Session {
	s := newSession(conn, self, selfPort, cfg)
	go s.readLoop(isKnownPeer)
	go s.writeLoop()
	return s
}

func newSession(conn net.Conn, self consensus.NodeID, selfPort uint16, cfg Config) *Session {
	bufSize := cfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = DefaultConfig().SendBufferSize
	}
	return &Session{
		conn:     conn,
		cfg:      cfg,
		self:     self,
		selfPort: selfPort,
		inbound:  make(chan Inbound, bufSize),
		outbound: make(chan outboundFrame, bufSize),
		done:     make(chan struct{}),
	}
}

func (s *Session) readLoop(accept func(consensus.NodeID) bool) {
	for {
		frame, err := wire.ReadFrame(s.conn, s.cfg.MACKey)
		if err != nil {
			s.teardown(err)
			return
		}
		from := consensus.NodeID(frame.Header.SenderID)

		s.mu.Lock()
		if !s.bound {
			if accept != nil && !accept(from) {
				s.mu.Unlock()
				s.teardown(ErrUnknownPeer)
				return
			}
			s.identity = from
			s.bound = true
		} else if from != s.identity {
			s.mu.Unlock()
			s.teardown(ErrUnknownPeer)
			return
		}
		s.mu.Unlock()

		select {
		case s.inbound <- Inbound{From: from, Frame: frame}:
		case <-s.done:
			return
		}
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case of := <-s.outbound:
			var sid [wire.IdentitySize]byte = s.self
			if err := wire.WriteFrame(s.conn, of.kind, sid, s.selfPort, of.flags, of.payload, s.cfg.MACKey); err != nil {
				s.teardown(err)
				return
			}
		case <-s.done:
			return
		}
	}
}

// Send enqueues a frame for transmission. It never blocks: if the
// outbound buffer is full the session tears itself down and returns
// ErrSendBufferFull.
func (s *Session) Send(kind wire.Kind, flags wire.Flag, payload []byte) error {
	select {
	case s.outbound <- outboundFrame{kind: kind, payload: payload, flags: flags}:
		return nil
	case <-s.done:
		return s.Err()
	default:
		s.teardown(ErrSendBufferFull)
		return ErrSendBufferFull
	}
}

// Inbound returns the channel of decoded frames the reactor selects on.
func (s *Session) Inbound() <-chan Inbound { return s.inbound }

// Done is closed when the session tears down, for any reason.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the reason the session tore down, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Identity returns the peer's bound identity, if known yet.
func (s *Session) Identity() (consensus.NodeID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.bound
}

// Close tears the session down without an associated error.
func (s *Session) Close() { s.teardown(nil) }

func (s *Session) teardown(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
		s.conn.Close()
	})
}
