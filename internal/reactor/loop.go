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

package reactor

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"raftcore/internal/consensus"
	"raftcore/internal/health"
	"raftcore/internal/logutil"
	"raftcore/internal/transport"
	"raftcore/internal/wire"
)

// submitRequest carries a client submission from an external caller
// (e.g. cmd/raftnode's HTTP handler) into the reactor goroutine, which
// is the only one allowed to call consensus.Engine.Submit.
type submitRequest struct {
	name    string
	command []byte
	resp    chan submitResponse
}

type submitResponse struct {
	pending *consensus.PendingRequest
	err     error
}

// inboundEvent tags a decoded frame with the Session it arrived on, so
// the reactor can both reply on the right connection and recognize a
// stale close event (see closedEvent) without a second lookup.
type inboundEvent struct {
	transport.Inbound
	session *transport.Session
}

// closedEvent fires when a Session tears down, for any reason.
type closedEvent struct {
	peer    consensus.NodeID
	session *transport.Session
}

// Loop is the single goroutine that owns a consensus.Engine and every
// transport.Session connected to it. Run must be called from exactly
// one goroutine; nothing else may call engine methods.
type Loop struct {
	cfg    Config
	engine *consensus.Engine
	health *health.Monitor
	log    *logutil.Logger

	listener net.Listener
	acceptCh chan net.Conn

	dialPool   *transport.DialPool
	peerAddr   map[consensus.NodeID]string
	lastDialAt map[consensus.NodeID]time.Time

	sessions  map[consensus.NodeID]*transport.Session
	inboundCh chan inboundEvent
	closedCh  chan closedEvent
	submitCh  chan submitRequest

	status atomic.Value // Status
}

// New constructs a Loop. engine must already have had Load called.
func New(cfg Config, engine *consensus.Engine, log *logutil.Logger) *Loop {
	peerAddr := make(map[consensus.NodeID]string)
	for _, m := range cfg.Roster.Peers() {
		peerAddr[consensus.ParseNodeID(m.Identity)] = m.Addr
	}
	l := &Loop{
		cfg:        cfg,
		engine:     engine,
		health:     health.NewMonitor(cfg.FailureThreshold),
		log:        log,
		dialPool:   transport.NewDialPool(cfg.DialConcurrency, cfg.DialTimeout, cfg.TransportConfig.TLSConfig),
		peerAddr:   peerAddr,
		lastDialAt: make(map[consensus.NodeID]time.Time),
		sessions:   make(map[consensus.NodeID]*transport.Session),
		inboundCh:  make(chan inboundEvent, 256),
		closedCh:   make(chan closedEvent, 64),
		submitCh:   make(chan submitRequest, 32),
	}
	l.status.Store(Status{Role: consensus.RoleFollower.String()})
	return l
}

// Listen opens the cluster-port listener and starts the accept loop.
// Call before Run.
func (l *Loop) Listen() error {
	ln, err := transport.Listen(l.cfg.SelfAddr, l.cfg.MaxInboundConns, l.cfg.TransportConfig.TLSConfig)
	if err != nil {
		return err
	}
	l.listener = ln
	l.acceptCh = make(chan net.Conn, 16)
	go l.acceptLoop()
	return nil
}

func (l *Loop) acceptLoop() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			return
		}
		select {
		case l.acceptCh <- conn:
		default:
			l.log.Warn("dropping accepted connection, accept queue full")
			conn.Close()
		}
	}
}

// Run drives the reactor until ctx is cancelled. It is the only
// goroutine that ever calls a method on the engine.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	l.dialMissingPeers(time.Now())
	l.updateStatus()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case conn := <-l.acceptCh:
			l.acceptSession(conn)

		case res := <-l.dialPool.Results():
			l.handleDialResult(res)

		case ev := <-l.inboundCh:
			l.handleInbound(ev)
			l.drainOutbox()
			l.updateStatus()

		case ev := <-l.closedCh:
			if l.sessions[ev.peer] == ev.session {
				delete(l.sessions, ev.peer)
			}

		case req := <-l.submitCh:
			pr, err := l.engine.Submit(req.name, req.command)
			l.drainOutbox()
			l.updateStatus()
			req.resp <- submitResponse{pending: pr, err: err}

		case now := <-ticker.C:
			l.onTick(now)
			l.drainOutbox()
			l.updateStatus()
		}
	}
}

func (l *Loop) shutdown() {
	if l.listener != nil {
		l.listener.Close()
	}
	for _, s := range l.sessions {
		s.Close()
	}
}

func (l *Loop) onTick(now time.Time) {
	if l.engine.ElectionDue(now, l.engine.RandomJitter()) {
		l.log.Info("election timeout elapsed, starting election", "term", l.engine.CurrentTerm()+1)
		l.engine.StartElection(now)
	}
	l.engine.Tick(now)
	l.dialMissingPeers(now)
}

// dialMissingPeers implements tick-loop step 1: connect to any roster
// peer that currently has no live session, rate-limited by
// ReconnectInterval so a down peer doesn't get redialed every tick.
func (l *Loop) dialMissingPeers(now time.Time) {
	for peer, addr := range l.peerAddr {
		if _, connected := l.sessions[peer]; connected {
			continue
		}
		if last, tried := l.lastDialAt[peer]; tried && now.Sub(last) < l.cfg.ReconnectInterval {
			continue
		}
		l.lastDialAt[peer] = now
		l.dialPool.Dial(context.Background(), peer, addr)
	}
}

func (l *Loop) handleDialResult(res transport.DialResult) {
	if res.Err != nil {
		l.log.Warn("dial failed", "peer", res.Peer.String(), "addr", res.Addr, "err", res.Err)
		return
	}
	s := transport.NewOutbound(res.Conn, l.cfg.Self, l.selfPort(), res.Peer, l.cfg.TransportConfig)
	l.sessions[res.Peer] = s
	go l.forward(s, res.Peer)
}

func (l *Loop) acceptSession(conn net.Conn) {
	s := transport.NewInbound(conn, l.cfg.Self, l.selfPort(), l.cfg.TransportConfig, l.isKnownPeer)
	go l.forward(s, consensus.NodeID{})
}

func (l *Loop) isKnownPeer(from consensus.NodeID) bool {
	_, ok := l.peerAddr[from]
	return ok
}

// forward pumps a Session's inbound frames and terminal close event
// into the shared channels the reactor's select loop reads. expected
// is the peer identity if known upfront (outbound sessions); zero for
// inbound sessions, whose identity is discovered from the frame itself.
func (l *Loop) forward(s *transport.Session, expected consensus.NodeID) {
	for {
		select {
		case in, ok := <-s.Inbound():
			if !ok {
				return
			}
			l.inboundCh <- inboundEvent{Inbound: in, session: s}
		case <-s.Done():
			peer := expected
			if id, bound := s.Identity(); bound {
				peer = id
			}
			l.closedCh <- closedEvent{peer: peer, session: s}
			return
		}
	}
}

func (l *Loop) selfPort() uint16 {
	_, portStr, err := net.SplitHostPort(l.cfg.SelfAddr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return uint16(port)
}

// handleInbound decodes one frame and drives the engine synchronously,
// replying on the originating session for request/response RPCs.
func (l *Loop) handleInbound(ev inboundEvent) {
	l.sessions[ev.From] = ev.session
	now := time.Now()
	l.health.Heartbeat(ev.From.String(), now)

	switch ev.Frame.Header.Kind {
	case wire.KindRequestVote:
		msg, err := wire.DecodeRequestVote(ev.Frame.Payload)
		if err != nil {
			l.log.Warn("dropping malformed RequestVote", "from", ev.From.String(), "err", err)
			return
		}
		reply := l.engine.HandleRequestVote(ev.From, msg, now)
		l.sendTo(ev.session, wire.KindRequestVoteResponse, 0, wire.EncodeRequestVoteResponse(reply))

	case wire.KindRequestVoteResponse:
		msg, err := wire.DecodeRequestVoteResponse(ev.Frame.Payload)
		if err != nil {
			l.log.Warn("dropping malformed RequestVoteResponse", "from", ev.From.String(), "err", err)
			return
		}
		l.engine.HandleRequestVoteResponse(ev.From, msg, now)

	case wire.KindAppendEntries:
		flagCompressed := ev.Frame.Header.Flags&wire.FlagCompressed != 0
		msg, err := wire.DecodeAppendEntries(ev.Frame.Payload, flagCompressed, l.cfg.TransportConfig.Compressor)
		if err != nil {
			l.log.Warn("dropping malformed AppendEntries", "from", ev.From.String(), "err", err)
			return
		}
		reply := l.engine.HandleAppendEntries(ev.From, msg, now)
		l.sendTo(ev.session, wire.KindAppendEntriesResp, 0, wire.EncodeAppendEntriesResponse(reply))

	case wire.KindAppendEntriesResp:
		msg, err := wire.DecodeAppendEntriesResponse(ev.Frame.Payload)
		if err != nil {
			l.log.Warn("dropping malformed AppendEntriesResponse", "from", ev.From.String(), "err", err)
			return
		}
		l.engine.HandleAppendEntriesResponse(ev.From, msg, now)
	}
}

// drainOutbox flushes every message the engine queued during the last
// call and hands each to the right Session. A message for a peer with
// no live session is dropped; dialMissingPeers reconnects on a later
// tick.
func (l *Loop) drainOutbox() {
	for _, o := range l.engine.Outbox() {
		s, ok := l.sessions[o.To]
		if !ok {
			continue // no live session; the outgoing AppendEntries/vote is dropped, matching UDP-like "retry next tick" semantics
		}
		switch o.Kind {
		case consensus.OutboundRequestVote:
			l.sendTo(s, wire.KindRequestVote, 0, wire.EncodeRequestVote(*o.RequestVote))
		case consensus.OutboundRequestVoteResponse:
			l.sendTo(s, wire.KindRequestVoteResponse, 0, wire.EncodeRequestVoteResponse(*o.RequestVoteResponse))
		case consensus.OutboundAppendEntries:
			payload, flags, err := wire.EncodeAppendEntries(*o.AppendEntries, l.cfg.TransportConfig.Compressor)
			if err != nil {
				l.log.Warn("failed to encode AppendEntries", "to", o.To.String(), "err", err)
				continue
			}
			l.sendTo(s, wire.KindAppendEntries, flags, payload)
		case consensus.OutboundAppendEntriesResponse:
			l.sendTo(s, wire.KindAppendEntriesResp, 0, wire.EncodeAppendEntriesResponse(*o.AppendEntriesResponse))
		}
	}
}

func (l *Loop) sendTo(s *transport.Session, kind wire.Kind, flags wire.Flag, payload []byte) {
	if err := s.Send(kind, flags, payload); err != nil {
		l.log.Warn("send failed, session torn down", "kind", kind, "err", err)
	}
}

// Status is a snapshot for an admin endpoint or raftctl.
type Status struct {
	Role        string
	Term        uint64
	Leader      string
	HasLeader   bool
	CommitIndex uint64
	LastApplied uint64
	Peers       []health.PeerStatus
}

// updateStatus refreshes the atomic snapshot Status() reads. Called
// only from the reactor goroutine, right after every state-changing
// event, so external callers never touch the engine directly.
func (l *Loop) updateStatus() {
	leader, hasLeader := l.engine.Leader()
	l.status.Store(Status{
		Role:        l.engine.Role().String(),
		Term:        l.engine.CurrentTerm(),
		Leader:      leader.String(),
		HasLeader:   hasLeader,
		CommitIndex: l.engine.CommitIndex(),
		LastApplied: l.engine.LastApplied(),
		Peers:       l.health.Snapshot(time.Now()),
	})
}

// Status returns the most recent snapshot. Safe to call from any
// goroutine.
func (l *Loop) Status() Status {
	return l.status.Load().(Status)
}

// Submit hands a client command to the reactor goroutine and blocks
// until it has been appended (or rejected, e.g. not-leader) — not until
// it commits. The returned PendingRequest's Done channel closes on
// commit or on leadership loss; safe to call from any goroutine.
func (l *Loop) Submit(ctx context.Context, name string, command []byte) (*consensus.PendingRequest, error) {
	req := submitRequest{name: name, command: command, resp: make(chan submitResponse, 1)}
	select {
	case l.submitCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp := <-req.resp:
		return resp.pending, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
