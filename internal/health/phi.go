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

// Package health provides a diagnostic-only failure suspicion signal
// per peer, adapted from a phi-accrual detector. It never feeds back
// into consensus: the only failure-detection mechanism consensus acts
// on is the randomized election timeout (internal/consensus), so two
// independent triggers never race to start elections. Operators or a
// higher-level supervisor can alert on the phi value this package
// exposes; it is informational only.
package health

import (
	"math"
	"sync"
	"time"
)

// Detector estimates how suspicious the absence of a heartbeat from
// one peer is, given the observed history of heartbeat intervals.
type Detector struct {
	mu         sync.Mutex
	intervals  []float64
	lastBeat   time.Time
	minSamples int
	maxSamples int
	mean       float64
	variance   float64
}

// NewDetector creates a detector that needs at least minSamples
// heartbeat intervals before it will report anything but zero
// suspicion, and keeps at most maxSamples of history.
func NewDetector(minSamples, maxSamples int) *Detector {
	if minSamples <= 0 {
		minSamples = 1
	}
	if maxSamples < minSamples {
		maxSamples = minSamples
	}
	return &Detector{
		intervals:  make([]float64, 0, maxSamples),
		minSamples: minSamples,
		maxSamples: maxSamples,
	}
}

// Heartbeat records that a heartbeat was just received from the peer
// this detector tracks (internal/reactor records one for every inbound
// frame from that peer).
func (d *Detector) Heartbeat(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.lastBeat.IsZero() {
		interval := now.Sub(d.lastBeat).Seconds() * 1000
		d.intervals = append(d.intervals, interval)
		if len(d.intervals) > d.maxSamples {
			d.intervals = d.intervals[1:]
		}
		d.updateStats()
	}
	d.lastBeat = now
}

func (d *Detector) updateStats() {
	n := len(d.intervals)
	if n == 0 {
		return
	}
	sum := 0.0
	for _, v := range d.intervals {
		sum += v
	}
	d.mean = sum / float64(n)

	sumSq := 0.0
	for _, v := range d.intervals {
		diff := v - d.mean
		sumSq += diff * diff
	}
	d.variance = sumSq / float64(n)
}

// Phi returns the current suspicion level for this peer as of now: 0
// when there isn't enough history yet, and an increasingly large value
// the longer now is past the expected next heartbeat.
func (d *Detector) Phi(now time.Time) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.intervals) < d.minSamples || d.lastBeat.IsZero() {
		return 0
	}
	elapsed := now.Sub(d.lastBeat).Seconds() * 1000
	return phi(elapsed, d.mean, d.variance)
}

func phi(elapsed, mean, variance float64) float64 {
	stdDev := math.Sqrt(variance)
	if stdDev < 1 {
		stdDev = 1
	}
	y := (elapsed - mean) / stdDev
	e := math.Exp(-y * (1.5976 + 0.070566*y*y))
	if elapsed > mean {
		return -math.Log10(e / (1 + e))
	}
	return -math.Log10(1 - 1/(1+e))
}

// Suspected reports whether the current phi exceeds threshold.
func (d *Detector) Suspected(now time.Time, threshold float64) bool {
	return d.Phi(now) > threshold
}

// Monitor tracks one Detector per peer and reports a suspicion snapshot
// for the whole cluster. It has no knowledge of Raft roles or terms.
type Monitor struct {
	mu        sync.Mutex
	threshold float64
	detectors map[string]*Detector
}

// NewMonitor creates a Monitor using threshold as the suspicion cutoff
// reported in PeerStatus.Suspected.
func NewMonitor(threshold float64) *Monitor {
	return &Monitor{threshold: threshold, detectors: make(map[string]*Detector)}
}

// Heartbeat records a heartbeat from peer at time now, creating its
// detector on first use.
func (m *Monitor) Heartbeat(peer string, now time.Time) {
	m.mu.Lock()
	d, ok := m.detectors[peer]
	if !ok {
		d = NewDetector(10, 1000)
		m.detectors[peer] = d
	}
	m.mu.Unlock()
	d.Heartbeat(now)
}

// PeerStatus is one peer's suspicion snapshot.
type PeerStatus struct {
	Peer      string
	Phi       float64
	Suspected bool
}

// Snapshot returns a PeerStatus for every peer seen so far.
func (m *Monitor) Snapshot(now time.Time) []PeerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PeerStatus, 0, len(m.detectors))
	for peer, d := range m.detectors {
		phi := d.Phi(now)
		out = append(out, PeerStatus{Peer: peer, Phi: phi, Suspected: phi > m.threshold})
	}
	return out
}
