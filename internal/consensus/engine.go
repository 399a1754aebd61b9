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
	"math/rand"
	"time"

	"raftcore/internal/raftlog"
	"raftcore/internal/wire"
)

// Role is a Raft node's current role.
type Role int32

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "FOLLOWER"
	case RoleCandidate:
		return "CANDIDATE"
	case RoleLeader:
		return "LEADER"
	default:
		return "UNKNOWN"
	}
}

// Applicator is the external state machine collaborator. The engine
// hands it committed entries, in order, and never rewinds last_applied
// even if Apply returns an error.
type Applicator interface {
	Apply(entry raftlog.Entry) (reply any, err error)
}

// PendingRequest is the client handle submitted commands are tracked
// under until the corresponding entry is applied or abandoned on
// leadership loss.
type PendingRequest struct {
	Index  uint64
	Done   chan struct{}
	Reply  any
	Err    error
}

func newPendingRequest(index uint64) *PendingRequest {
	return &PendingRequest{Index: index, Done: make(chan struct{})}
}

func (p *PendingRequest) complete(reply any, err error) {
	p.Reply, p.Err = reply, err
	close(p.Done)
}

// OutboundKind identifies which RPC an Outbound message carries.
type OutboundKind int

const (
	OutboundRequestVote OutboundKind = iota
	OutboundRequestVoteResponse
	OutboundAppendEntries
	OutboundAppendEntriesResponse
)

// Outbound is a message the engine wants sent to a peer. The reactor
// drains the engine's outbox after every call and performs the actual
// framing/transmission; the engine itself never touches a socket.
type Outbound struct {
	To                    NodeID
	Kind                  OutboundKind
	RequestVote           *wire.RequestVote
	RequestVoteResponse   *wire.RequestVoteResponse
	AppendEntries         *wire.AppendEntries
	AppendEntriesResponse *wire.AppendEntriesResponse
}

// Config holds the engine's fixed-at-construction parameters.
type Config struct {
	Self                 NodeID
	Peers                []NodeID // roster excluding Self
	ElectionTimeout      time.Duration
	HeartbeatInterval    time.Duration
	MaxEntriesPerRequest int
	Applicator           Applicator
	// OnFatal is invoked when a log append or sync fails; the default
	// implementation panics, since a broken durability invariant cannot
	// be continued past.
	OnFatal func(error)
}

// quorumSize returns floor(n/2)+1 for a roster of n voting members.
func quorumSize(n int) int { return n/2 + 1 }

// Engine is the single-threaded Raft role state machine. Every method
// is synchronous and assumes it is called from the reactor's one
// execution context; it holds no locks and starts no goroutines.
type Engine struct {
	self  NodeID
	peers []NodeID
	quorum int

	log *raftlog.View

	role             Role
	currentTerm      uint64
	votedFor         *NodeID
	leader           *NodeID
	votesGranted     int
	lastActivityTime time.Time

	nextIndex     map[NodeID]uint64
	matchIndex    map[NodeID]uint64
	lastSentIndex map[NodeID]uint64 // 0 == last send to this peer was a pure heartbeat

	lastApplied uint64
	pending     map[uint64]*PendingRequest

	electionTimeout      time.Duration
	heartbeatInterval    time.Duration
	maxEntriesPerRequest int

	applicator Applicator
	onFatal    func(error)

	outbox []Outbound
}

// New constructs an Engine. Call Load before driving it to restore
// persisted state from the log view.
func New(cfg Config, log *raftlog.View) *Engine {
	if cfg.MaxEntriesPerRequest <= 0 || cfg.MaxEntriesPerRequest > wire.MaxEntriesPerMessage {
		cfg.MaxEntriesPerRequest = wire.MaxEntriesPerMessage
	}
	onFatal := cfg.OnFatal
	if onFatal == nil {
		onFatal = func(err error) { panic(err) }
	}
	return &Engine{
		self:                 cfg.Self,
		peers:                cfg.Peers,
		quorum:               quorumSize(len(cfg.Peers) + 1),
		log:                  log,
		role:                 RoleFollower,
		nextIndex:            make(map[NodeID]uint64),
		matchIndex:           make(map[NodeID]uint64),
		lastSentIndex:        make(map[NodeID]uint64),
		pending:              make(map[uint64]*PendingRequest),
		electionTimeout:      cfg.ElectionTimeout,
		heartbeatInterval:    cfg.HeartbeatInterval,
		maxEntriesPerRequest: cfg.MaxEntriesPerRequest,
		applicator:           cfg.Applicator,
		onFatal:              onFatal,
	}
}

// Load restores current_term from the replayed log (the initial role is
// always Follower, per spec).
func (e *Engine) Load(now time.Time) error {
	lastTerm, err := e.log.Load()
	if err != nil {
		return err
	}
	e.currentTerm = lastTerm
	e.lastActivityTime = now
	return nil
}

// Role, CurrentTerm, Leader, CommitIndex, LastApplied are read-only
// status accessors safe to call from the same goroutine that drives
// the engine (e.g. between ticks, for a status endpoint).
func (e *Engine) Role() Role              { return e.role }
func (e *Engine) CurrentTerm() uint64     { return e.currentTerm }
func (e *Engine) CommitIndex() uint64     { return e.log.CommitIndex() }
func (e *Engine) LastApplied() uint64     { return e.lastApplied }
func (e *Engine) Leader() (NodeID, bool) {
	if e.leader == nil {
		return NodeID{}, false
	}
	return *e.leader, true
}

// Outbox drains and returns the messages queued since the last call.
func (e *Engine) Outbox() []Outbound {
	out := e.outbox
	e.outbox = nil
	return out
}

func (e *Engine) send(o Outbound) { e.outbox = append(e.outbox, o) }

func (e *Engine) persistTermAndVote() {
	if err := e.log.Sync(); err != nil {
		e.onFatal(err)
	}
}

// adoptTerm adopts term and resets to Follower, clearing voted_for and
// leader per spec.md's "term adoption" rule. It does nothing when term
// <= currentTerm, whatever the current role (the common heartbeat path
// calls this unconditionally; callers check roles where it matters).
func (e *Engine) adoptTerm(term uint64, now time.Time) {
	if term <= e.currentTerm {
		return
	}
	wasLeader := e.role == RoleLeader
	e.currentTerm = term
	e.role = RoleFollower
	e.votedFor = nil
	e.leader = nil
	e.votesGranted = 0
	e.persistTermAndVote()
	if wasLeader {
		e.abandonPending()
	}
}

// StartElection transitions Follower → Candidate and broadcasts
// RequestVote to every peer. Called by the tick loop when the election
// timeout has elapsed and role != Leader.
func (e *Engine) StartElection(now time.Time) {
	if e.role == RoleLeader {
		return
	}
	e.currentTerm++
	self := e.self
	e.votedFor = &self
	e.role = RoleCandidate
	e.votesGranted = 1 // vote for self
	e.leader = nil
	e.lastActivityTime = now
	e.persistTermAndVote()

	lastIndex := e.log.CurrentIndex()
	lastTerm := e.log.CurrentTerm()
	for _, p := range e.peers {
		e.send(Outbound{
			To:   p,
			Kind: OutboundRequestVote,
			RequestVote: &wire.RequestVote{
				Term:         e.currentTerm,
				CandidateID:  [wire.IdentitySize]byte(e.self),
				LastLogIndex: lastIndex,
				LastLogTerm:  lastTerm,
			},
		})
	}

	// A single-node cluster wins its own election immediately: there are
	// no peers to wait on, and votesGranted already meets quorum.
	if e.votesGranted >= e.quorum {
		e.becomeLeader(now)
	}
}

// becomeLeader transitions Candidate → Leader.
func (e *Engine) becomeLeader(now time.Time) {
	self := e.self
	e.role = RoleLeader
	e.leader = &self
	nextIdx := e.log.CurrentIndex() + 1
	for _, p := range e.peers {
		e.nextIndex[p] = nextIdx
		e.matchIndex[p] = 0
		e.lastSentIndex[p] = 0
	}
	e.replicateToAll()
}

// HandleRequestVote processes an inbound RequestVote and returns the
// response to send back to from.
func (e *Engine) HandleRequestVote(from NodeID, msg wire.RequestVote, now time.Time) wire.RequestVoteResponse {
	if msg.Term > e.currentTerm {
		e.adoptTerm(msg.Term, now)
	}

	if msg.Term < e.currentTerm {
		return wire.RequestVoteResponse{Term: e.currentTerm, VoteGranted: false}
	}

	alreadyVotedOther := e.votedFor != nil && *e.votedFor != from
	candidateStale := e.log.CurrentIndex() > msg.LastLogIndex || e.log.CurrentTerm() > msg.LastLogTerm
	if alreadyVotedOther || candidateStale {
		return wire.RequestVoteResponse{Term: e.currentTerm, VoteGranted: false}
	}

	e.votedFor = &from
	e.lastActivityTime = now
	e.persistTermAndVote()
	return wire.RequestVoteResponse{Term: e.currentTerm, VoteGranted: true}
}

// HandleRequestVoteResponse processes a vote reply at a candidate.
func (e *Engine) HandleRequestVoteResponse(from NodeID, msg wire.RequestVoteResponse, now time.Time) {
	if msg.Term > e.currentTerm {
		e.adoptTerm(msg.Term, now)
		return
	}
	if e.role != RoleCandidate || msg.Term != e.currentTerm {
		return
	}
	if msg.VoteGranted {
		e.votesGranted++
		if e.votesGranted >= e.quorum {
			e.becomeLeader(now)
		}
	}
}

// HandleAppendEntries processes an inbound AppendEntries and returns the
// response to send back to from.
func (e *Engine) HandleAppendEntries(from NodeID, msg wire.AppendEntries, now time.Time) wire.AppendEntriesResponse {
	if msg.Term < e.currentTerm {
		return wire.AppendEntriesResponse{Term: e.currentTerm, OK: false}
	}

	e.lastActivityTime = now
	if msg.Term > e.currentTerm {
		e.adoptTerm(msg.Term, now)
	}
	if e.role == RoleLeader {
		e.abandonPending()
	}
	e.role = RoleFollower
	e.votesGranted = 0
	e.leader = &from

	if e.log.VerifyPrev(msg.PrevLogIndex, msg.PrevLogTerm) == raftlog.VerifyMismatch {
		return wire.AppendEntriesResponse{Term: e.currentTerm, OK: false, Index: e.log.CurrentIndex()}
	}

	entries := make([]raftlog.Entry, len(msg.Entries))
	for i, e2 := range msg.Entries {
		entries[i] = raftlog.Entry{Index: e2.Index, Term: e2.Term, Name: e2.Name, Command: e2.Command}
	}
	if err := e.log.AppendBatch(entries); err != nil {
		e.onFatal(err)
	}
	e.log.CommitTo(msg.LeaderCommitIndex)
	if err := e.log.Sync(); err != nil {
		e.onFatal(err)
	}

	return wire.AppendEntriesResponse{
		Term:        e.currentTerm,
		Index:       e.log.CurrentIndex(),
		CommitIndex: e.log.CommitIndex(),
		OK:          true,
	}
}

// HandleAppendEntriesResponse processes an AppendEntries reply at the leader.
func (e *Engine) HandleAppendEntriesResponse(from NodeID, msg wire.AppendEntriesResponse, now time.Time) {
	if msg.Term > e.currentTerm {
		e.adoptTerm(msg.Term, now)
		return
	}
	if e.role != RoleLeader || msg.Term != e.currentTerm {
		return
	}

	if msg.OK {
		if sent, ok := e.lastSentIndex[from]; ok && sent != 0 {
			e.nextIndex[from] = sent + 1
			e.matchIndex[from] = sent
		}
		e.advanceCommitIndex(now)
		return
	}

	if next := e.nextIndex[from]; next > 1 {
		e.nextIndex[from] = next - 1
	} else {
		e.nextIndex[from] = 1
	}
}

// advanceCommitIndex implements the leader-side median-of-match-indexes
// rule, guarded by the current-term check on the candidate commit index.
func (e *Engine) advanceCommitIndex(now time.Time) {
	matches := make([]uint64, 0, len(e.peers)+1)
	matches = append(matches, e.log.CurrentIndex())
	for _, p := range e.peers {
		matches = append(matches, e.matchIndex[p])
	}
	sortDescending(matches)
	n := matches[e.quorum-1]

	if n > e.log.CommitIndex() {
		if term, err := e.log.TermAt(n); err == nil && term == e.currentTerm {
			e.log.SetCommitIndex(n)
			if err := e.log.Sync(); err != nil {
				e.onFatal(err)
			}
		}
	}
}

func sortDescending(s []uint64) {
	for i := 0; i < len(s)-1; i++ {
		for j := i + 1; j < len(s); j++ {
			if s[j] > s[i] {
				s[i], s[j] = s[j], s[i]
			}
		}
	}
}

// Submit implements client command submission at the leader.
func (e *Engine) Submit(name string, command []byte) (*PendingRequest, error) {
	if e.role != RoleLeader {
		return nil, ErrNotLeader
	}
	entry := raftlog.Entry{
		Index:   e.log.CurrentIndex() + 1,
		Term:    e.currentTerm,
		Name:    name,
		Command: command,
	}
	if err := e.log.Append(entry); err != nil {
		e.onFatal(err)
		return nil, err
	}
	if err := e.log.Sync(); err != nil {
		e.onFatal(err)
		return nil, err
	}

	pr := newPendingRequest(entry.Index)
	e.pending[entry.Index] = pr
	if len(e.peers) == 0 {
		e.log.SetCommitIndex(e.log.CurrentIndex())
	}
	return pr, nil
}

// ApplyCommitted drains committed-but-unapplied entries through the
// applicator, completing any pending client handle as it goes. This is
// tick-loop step 2.
func (e *Engine) ApplyCommitted() {
	for e.log.CommitIndex() > e.lastApplied {
		idx := e.lastApplied + 1
		entry, ok := e.log.EntryAt(idx)
		e.lastApplied = idx
		if !ok {
			continue
		}
		var reply any
		var err error
		if e.applicator != nil {
			reply, err = e.applicator.Apply(entry)
		}
		if pr, found := e.pending[idx]; found {
			delete(e.pending, idx)
			if err != nil {
				pr.complete(nil, ErrApplicatorFailed(err))
			} else {
				pr.complete(reply, nil)
			}
		}
	}
}

// abandonPending fails every outstanding pending request with a
// not-leader error, called when the node leaves the Leader role.
func (e *Engine) abandonPending() {
	for idx, pr := range e.pending {
		delete(e.pending, idx)
		pr.complete(nil, ErrNotLeader)
	}
}

// ElectionDue reports whether the randomized election timeout has
// elapsed, per spec.md §4.5 step 3 (timeout band [T, 2T)).
func (e *Engine) ElectionDue(now time.Time, jitter time.Duration) bool {
	if e.role == RoleLeader {
		return false
	}
	return now.Sub(e.lastActivityTime) > e.electionTimeout+jitter
}

// RandomJitter returns a uniform duration in [0, electionTimeout), the
// randomization band spec.md requires for liveness under symmetric
// startup.
func (e *Engine) RandomJitter() time.Duration {
	if e.electionTimeout <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(e.electionTimeout)))
}

// Tick runs the leader-only replication/heartbeat step (tick-loop step
// 5) and the role-independent apply step (step 2). Election timeout
// checks (step 3) are made by the reactor, through ElectionDue and
// RandomJitter, before it calls Tick. Per spec.md §4.5 step 5, a real
// heartbeat round only needs to go out to peers whose last contact
// exceeds heartbeat_interval; the reactor calls Tick every
// TickInterval, which cmd/raftnode sets to the heartbeat interval, so
// replicating to every peer on every call is equivalent and simpler.
func (e *Engine) Tick(now time.Time) {
	e.ApplyCommitted()
	if e.role != RoleLeader {
		return
	}
	e.advanceCommitIndex(now)
	e.replicateToAll()
}

// replicateToAll sends an AppendEntries to every peer, carrying
// whatever is pending per peer's next_index (empty for a pure heartbeat).
func (e *Engine) replicateToAll() {
	for _, p := range e.peers {
		e.replicateToPeer(p)
	}
}

func (e *Engine) replicateToPeer(p NodeID) {
	nextIdx := e.nextIndex[p]
	if nextIdx == 0 {
		nextIdx = e.log.CurrentIndex() + 1
	}
	prevIndex := nextIdx - 1
	prevTerm, err := e.log.TermAt(prevIndex)
	if err != nil {
		prevTerm = 0
	}

	var entries []wire.Entry
	var lastSent uint64
	if nextIdx <= e.log.CurrentIndex() {
		end := nextIdx + uint64(e.maxEntriesPerRequest)
		if end > e.log.CurrentIndex()+1 {
			end = e.log.CurrentIndex() + 1
		}
		for i := nextIdx; i < end; i++ {
			entry, ok := e.log.EntryAt(i)
			if !ok {
				break
			}
			entries = append(entries, wire.Entry{Term: entry.Term, Index: entry.Index, Name: entry.Name, Command: entry.Command})
			lastSent = i
		}
	}
	e.lastSentIndex[p] = lastSent

	e.send(Outbound{
		To:   p,
		Kind: OutboundAppendEntries,
		AppendEntries: &wire.AppendEntries{
			Term:              e.currentTerm,
			LeaderID:          [wire.IdentitySize]byte(e.self),
			PrevLogIndex:      prevIndex,
			PrevLogTerm:       prevTerm,
			LeaderCommitIndex: e.log.CommitIndex(),
			Entries:           entries,
		},
	})
}
