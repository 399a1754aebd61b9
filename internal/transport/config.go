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

/*
Package transport maintains bidirectional byte streams to roster peers
and reassembles inbound wire frames. A Session has no business logic:
it knows how to frame and buffer, nothing about Raft roles or terms.
It does not reconnect; redialing is left to the reactor's tick loop.
The reactor package is the only consumer of decoded frames.
*/
package transport

import (
	"crypto/tls"
	"time"

	"raftcore/internal/wire"
)

// Config holds the per-session tunables. It also carries the teacher's
// ReplicatorConfig knobs (MaxBatchSize/AckTimeout/RetryInterval/
// MaxRetries), which nothing reads; see their field comment.
type Config struct {
	// MACKey, if non-nil, authenticates every frame (see internal/wire).
	MACKey []byte
	// Compressor, if non-nil, compresses AppendEntries payloads above
	// its MinSize threshold.
	Compressor wire.Compressor

	// TLSConfig, if non-nil, wraps both the inbound listener and
	// outbound dials in TLS (see internal/tls.PeerTLSConfig). Optional;
	// nil means plaintext-plus-MAC framing only.
	TLSConfig *tls.Config

	// MaxBatchSize, AckTimeout, RetryInterval and MaxRetries are carried
	// in the config but read by no code in this module: the batch size
	// comes from consensus.Config.MaxEntriesPerRequest, the redial delay
	// from reactor.Config.ReconnectInterval, sessions wait for no
	// acknowledgement, and the tick loop never stops redialing a peer.
	MaxBatchSize  int
	AckTimeout    time.Duration
	RetryInterval time.Duration
	MaxRetries    int

	// SendBufferSize bounds the outbound frame queue. Per spec.md §5's
	// backpressure guidance, a full buffer drops the link rather than
	// blocking the reactor; the tick loop reconnects afterward since
	// replication is idempotent.
	SendBufferSize int
}

// DefaultConfig returns sensible defaults grounded in the teacher's
// DefaultRaftConfig (150ms/1s-scale timeouts for a LAN cluster).
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:   wire.MaxEntriesPerMessage,
		AckTimeout:     2 * time.Second,
		RetryInterval:  500 * time.Millisecond,
		MaxRetries:     0,
		SendBufferSize: 256,
	}
}
