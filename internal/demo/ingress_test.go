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

package demo

import (
	"context"
	"errors"
	"testing"
	"time"

	"raftcore/internal/consensus"
)

type fakeSubmitter struct {
	pending *consensus.PendingRequest
	err     error
}

func (f *fakeSubmitter) Submit(ctx context.Context, name string, command []byte) (*consensus.PendingRequest, error) {
	return f.pending, f.err
}

func newResolvedPending(reply any, err error) *consensus.PendingRequest {
	pr := &consensus.PendingRequest{Index: 1, Done: make(chan struct{})}
	pr.Reply, pr.Err = reply, err
	close(pr.Done)
	return pr
}

func TestIngressDeliversSuccessfulResult(t *testing.T) {
	sub := &fakeSubmitter{pending: newResolvedPending("OK", nil)}
	ing := NewIngress(sub, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.Run(ctx)

	reply := make(chan Result, 1)
	ing.Commands() <- Command{Name: "SET", Payload: []byte("x=1"), Reply: reply}

	select {
	case res := <-reply:
		if res.Err != nil || res.Reply != "OK" {
			t.Fatalf("result = %+v, want {Reply: OK, Err: nil}", res)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ingress result")
	}
}

func TestIngressPropagatesSubmitError(t *testing.T) {
	sub := &fakeSubmitter{err: consensus.ErrNotLeader}
	ing := NewIngress(sub, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.Run(ctx)

	reply := make(chan Result, 1)
	ing.Commands() <- Command{Name: "SET", Payload: []byte("x=1"), Reply: reply}

	select {
	case res := <-reply:
		if !errors.Is(res.Err, consensus.ErrNotLeader) {
			t.Fatalf("err = %v, want ErrNotLeader", res.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ingress result")
	}
}
