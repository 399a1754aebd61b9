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
	"context"
	"crypto/tls"
	"net"
	"time"

	"golang.org/x/sync/semaphore"

	"raftcore/internal/consensus"
)

// DialResult is delivered on a DialPool's Results channel once an
// outbound dial attempt completes, successfully or not.
type DialResult struct {
	Peer consensus.NodeID
	Addr string
	Conn net.Conn
	Err  error
}

// DialPool runs outbound net.DialTimeout calls on a small worker pool
// gated by a weighted semaphore, so the reactor goroutine — which must
// never block (spec.md §5) — can request a connect and keep going
// without waiting on DNS or TCP handshake latency. Results arrive on
// Results for the reactor to pick up on its next select iteration.
type DialPool struct {
	sem       *semaphore.Weighted
	timeout   time.Duration
	tlsConfig *tls.Config
	results   chan DialResult
}

// NewDialPool creates a pool that allows at most maxConcurrent dials in
// flight at once — spec.md's tick-loop step 1 dials one roster peer at
// a time logically, but a cluster restart can trigger many
// reconnects simultaneously, so the cap prevents a dial storm. A
// non-nil tlsConfig upgrades every outbound dial to TLS.
func NewDialPool(maxConcurrent int, timeout time.Duration, tlsConfig *tls.Config) *DialPool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &DialPool{
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		timeout:   timeout,
		tlsConfig: tlsConfig,
		results:   make(chan DialResult, maxConcurrent*2),
	}
}

// Results is the channel the reactor selects on for completed dials.
func (p *DialPool) Results() <-chan DialResult { return p.results }

// underlyingTCPConn unwraps a *tls.Conn to the raw *net.TCPConn beneath
// it, so NODELAY can still be set when TLS is in play.
func underlyingTCPConn(conn net.Conn) (*net.TCPConn, bool) {
	tc, ok := conn.(*tls.Conn)
	if !ok {
		return nil, false
	}
	raw, ok := tc.NetConn().(*net.TCPConn)
	return raw, ok
}

// Dial submits an async outbound connect to addr for peer. It returns
// immediately; the outcome arrives later on Results. If the semaphore
// is already fully booked, the attempt blocks in its own goroutine
// (never on the caller) until a slot frees or ctx is cancelled.
func (p *DialPool) Dial(ctx context.Context, peer consensus.NodeID, addr string) {
	go func() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.results <- DialResult{Peer: peer, Addr: addr, Err: err}
			return
		}
		defer p.sem.Release(1)

		var conn net.Conn
		var err error
		if p.tlsConfig != nil {
			conn, err = tls.DialWithDialer(&net.Dialer{Timeout: p.timeout}, "tcp", addr, p.tlsConfig)
		} else {
			conn, err = net.DialTimeout("tcp", addr, p.timeout)
		}
		if err == nil {
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetNoDelay(true)
			} else if tc, ok := underlyingTCPConn(conn); ok {
				tc.SetNoDelay(true)
			}
		}
		select {
		case p.results <- DialResult{Peer: peer, Addr: addr, Conn: conn, Err: err}:
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		}
	}()
}
