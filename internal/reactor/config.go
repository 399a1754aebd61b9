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

// Package reactor implements the single-threaded cooperative event loop
// that drives internal/consensus.Engine: one goroutine owns all
// consensus state, reading inbound frames off peer transport.Sessions,
// dialing disconnected peers through a bounded transport.DialPool, and
// advancing a time.Ticker-paced tick, exactly as spec.md §4.5/§5
// describe. No other goroutine ever calls an Engine method.
package reactor

import (
	"time"

	"raftcore/internal/consensus"
	"raftcore/internal/roster"
	"raftcore/internal/transport"
)

// Config configures a Loop.
type Config struct {
	Self     consensus.NodeID
	SelfAddr string // ip:port this node listens on for peer connections
	Roster   *roster.Roster

	TickInterval time.Duration // select/ticker cadence; should be <= HeartbeatInterval

	TransportConfig   transport.Config
	MaxInboundConns   int
	DialConcurrency   int
	DialTimeout       time.Duration
	ReconnectInterval time.Duration

	// FailureThreshold feeds internal/health's diagnostic-only monitor;
	// it never affects consensus.
	FailureThreshold float64
}

// DefaultConfig returns sane defaults for TickInterval/transport knobs,
// leaving Self/SelfAddr/Roster for the caller to fill in.
func DefaultConfig() Config {
	return Config{
		TickInterval:      50 * time.Millisecond,
		TransportConfig:   transport.DefaultConfig(),
		MaxInboundConns:   64,
		DialConcurrency:   8,
		DialTimeout:       2 * time.Second,
		ReconnectInterval: time.Second,
		FailureThreshold:  8.0,
	}
}
