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
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"raftcore/internal/consensus"
	"raftcore/internal/logutil"
	"raftcore/internal/raftlog"
	"raftcore/internal/roster"
)

type collectingApplicator struct {
	mu      sync.Mutex
	applied [][]byte
}

func (a *collectingApplicator) Apply(entry raftlog.Entry) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, entry.Command)
	return "ok", nil
}

func (a *collectingApplicator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestLoop(t *testing.T, dir string, identity string, addrs map[string]int) (*Loop, *collectingApplicator) {
	t.Helper()

	var members []roster.Member
	for id, port := range addrs {
		members = append(members, roster.Member{
			Identity: id,
			Addr:     "127.0.0.1:" + strconv.Itoa(port),
			Self:     id == identity,
			Voter:    true,
		})
	}
	r := &roster.Roster{Members: members, SelfID: identity}

	store, err := raftlog.OpenFileStore(filepath.Join(dir, identity+".log"))
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	view := raftlog.NewView(store)

	app := &collectingApplicator{}
	peers := make([]consensus.NodeID, 0, len(r.Peers()))
	for _, m := range r.Peers() {
		peers = append(peers, consensus.ParseNodeID(m.Identity))
	}

	engine := consensus.New(consensus.Config{
		Self:                 consensus.ParseNodeID(identity),
		Peers:                peers,
		ElectionTimeout:      150 * time.Millisecond,
		HeartbeatInterval:    30 * time.Millisecond,
		MaxEntriesPerRequest: 32,
		Applicator:           app,
	}, view)
	if err := engine.Load(time.Now()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Self = consensus.ParseNodeID(identity)
	cfg.SelfAddr = fmt.Sprintf("127.0.0.1:%d", addrs[identity])
	cfg.Roster = r
	cfg.TickInterval = 20 * time.Millisecond
	cfg.ReconnectInterval = 50 * time.Millisecond

	log := logutil.NewLogger("reactor-test").With("node", identity)
	loop := New(cfg, engine, log)
	if err := loop.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return loop, app
}

func TestTwoNodeClusterElectsLeaderAndReplicates(t *testing.T) {
	dir := t.TempDir()
	addrs := map[string]int{
		"A": freePort(t),
		"B": freePort(t),
	}

	loopA, appA := newTestLoop(t, dir, "A", addrs)
	loopB, appB := newTestLoop(t, dir, "B", addrs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loopA.Run(ctx)
	go loopB.Run(ctx)

	var leader *Loop
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if loopA.Status().Role == "LEADER" {
			leader = loopA
			break
		}
		if loopB.Status().Role == "LEADER" {
			leader = loopB
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if leader == nil {
		t.Fatalf("no leader elected within deadline; statusA=%+v statusB=%+v", loopA.Status(), loopB.Status())
	}

	submitCtx, submitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer submitCancel()
	pr, err := leader.Submit(submitCtx, "set", []byte("x=1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-pr.Done:
		if pr.Err != nil {
			t.Fatalf("command was not applied: %v", pr.Err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the submitted command to commit")
	}

	appliedDeadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(appliedDeadline) {
		if appA.count() >= 1 && appB.count() >= 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if appA.count() < 1 || appB.count() < 1 {
		t.Fatalf("command did not replicate to both applicators: A=%d B=%d", appA.count(), appB.count())
	}
}
