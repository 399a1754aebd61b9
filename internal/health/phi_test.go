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

package health

import (
	"testing"
	"time"
)

func TestDetectorNeedsMinSamples(t *testing.T) {
	d := NewDetector(5, 100)
	now := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		now = now.Add(100 * time.Millisecond)
		d.Heartbeat(now)
	}
	if got := d.Phi(now); got != 0 {
		t.Fatalf("Phi() with too few samples = %v, want 0", got)
	}
}

func TestDetectorSuspectsAfterSilence(t *testing.T) {
	d := NewDetector(5, 100)
	now := time.Unix(0, 0)
	for i := 0; i < 20; i++ {
		now = now.Add(100 * time.Millisecond)
		d.Heartbeat(now)
	}
	calm := d.Phi(now)
	silent := d.Phi(now.Add(5 * time.Second))
	if silent <= calm {
		t.Fatalf("phi after long silence (%v) should exceed phi right after a heartbeat (%v)", silent, calm)
	}
}

func TestMonitorTracksPerPeer(t *testing.T) {
	m := NewMonitor(8.0)
	now := time.Unix(0, 0)
	for i := 0; i < 15; i++ {
		now = now.Add(100 * time.Millisecond)
		m.Heartbeat("B", now)
	}

	snap := m.Snapshot(now.Add(10 * time.Second))
	if len(snap) != 1 {
		t.Fatalf("len(Snapshot()) = %d, want 1", len(snap))
	}
	if !snap[0].Suspected {
		t.Fatalf("peer should be suspected after 10s of silence following 100ms heartbeats")
	}
}
