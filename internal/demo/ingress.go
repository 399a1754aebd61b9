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

	"raftcore/internal/consensus"
)

// Submitter is the subset of reactor.Loop's API an Ingress needs. It is
// declared here, rather than imported from internal/reactor, so this
// package stays a leaf: cmd/raftnode wires a *reactor.Loop into it.
type Submitter interface {
	Submit(ctx context.Context, name string, command []byte) (*consensus.PendingRequest, error)
}

// Command is one client request queued on an Ingress.
type Command struct {
	Name    string
	Payload []byte
	Reply   chan Result
}

// Result is a Command's outcome, delivered on Command.Reply.
type Result struct {
	Reply any
	Err   error
}

// Ingress is the in-process channel front-end spec.md's "client command
// ingress" collaborator is modeled as: something external (an HTTP
// handler, raftctl's REPL over a future admin protocol) pushes a
// Command onto Commands(), and Ingress.Run forwards it to the reactor
// and waits for the corresponding PendingRequest to resolve.
type Ingress struct {
	submitter Submitter
	commands  chan Command
}

// NewIngress returns an Ingress that forwards to submitter, buffering
// up to queueSize in-flight client submissions.
func NewIngress(submitter Submitter, queueSize int) *Ingress {
	return &Ingress{
		submitter: submitter,
		commands:  make(chan Command, queueSize),
	}
}

// Commands returns the channel a front-end enqueues client requests on.
func (g *Ingress) Commands() chan<- Command {
	return g.commands
}

// Run drains Commands() until ctx is cancelled, handling each
// concurrently so one slow commit doesn't stall the next client's
// submission from reaching the reactor.
func (g *Ingress) Run(ctx context.Context) {
	for {
		select {
		case cmd := <-g.commands:
			go g.handle(ctx, cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Ingress) handle(ctx context.Context, cmd Command) {
	pr, err := g.submitter.Submit(ctx, cmd.Name, cmd.Payload)
	if err != nil {
		cmd.Reply <- Result{Err: err}
		return
	}
	select {
	case <-pr.Done:
		cmd.Reply <- Result{Reply: pr.Reply, Err: pr.Err}
	case <-ctx.Done():
		cmd.Reply <- Result{Err: ctx.Err()}
	}
}
