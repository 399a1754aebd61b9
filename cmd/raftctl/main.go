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
raftctl is an admin client for a raftcore cluster. It talks to one
node's HTTP admin endpoint (see cmd/raftnode) to submit commands and
poll status, and it can discover candidate peer addresses on the local
network via mDNS before a cluster's roster file even exists.

Usage:

	raftctl -addr localhost:7500 status
	raftctl -addr localhost:7500 submit SET x=1
	raftctl -addr localhost:7500 get x
	raftctl -addr localhost:7500            # interactive REPL
	raftctl discover
*/
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/hashicorp/mdns"

	"raftcore/pkg/cli"
)

func main() {
	addr := flag.String("addr", "localhost:7500", "node admin endpoint (host:port)")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) > 0 && args[0] == "discover" {
		runDiscover(args[1:])
		return
	}

	client := &adminClient{addr: *addr, timeout: *timeout}

	if len(args) == 0 {
		runRepl(client)
		return
	}
	runOnce(client, args)
}

// adminClient is a thin HTTP wrapper around cmd/raftnode's admin
// endpoint (status/submit/get), matching the JSON shapes main.go there
// encodes.
type adminClient struct {
	addr    string
	timeout time.Duration
}

type statusResponse struct {
	Role        string
	Term        uint64
	Leader      string
	HasLeader   bool
	CommitIndex uint64
	LastApplied uint64
	Peers       []struct {
		Peer      string
		Phi       float64
		Suspected bool
	}
}

type submitResponse struct {
	Reply any    `json:"reply,omitempty"`
	Err   string `json:"error,omitempty"`
}

func (c *adminClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.addr+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *adminClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+c.addr+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *adminClient) status(ctx context.Context) (*statusResponse, error) {
	body, err := c.get(ctx, "/status")
	if err != nil {
		return nil, err
	}
	var st statusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *adminClient) submit(ctx context.Context, name, payload string) (*submitResponse, error) {
	body, err := c.post(ctx, "/submit", map[string]string{"name": name, "payload": payload})
	if err != nil {
		return nil, err
	}
	var res submitResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *adminClient) getKey(ctx context.Context, key string) (*submitResponse, error) {
	body, err := c.get(ctx, "/get?key="+key)
	if err != nil {
		return nil, err
	}
	var res submitResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func runOnce(client *adminClient, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), client.timeout)
	defer cancel()
	dispatch(ctx, client, args)
}

func runRepl(client *adminClient) {
	rl, err := readline.New(cli.Highlight("raftctl> "))
	if err != nil {
		cli.NewCLIError("failed to start REPL").WithDetail(err.Error()).Exit()
	}
	defer rl.Close()

	cli.PrintInfo("connected to %s; type 'help' for commands, ctrl-d to exit", client.addr)
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on ctrl-d, readline.ErrInterrupt on ctrl-c
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), client.timeout)
		dispatch(ctx, client, strings.Fields(line))
		cancel()
	}
}

func dispatch(ctx context.Context, client *adminClient, args []string) {
	if len(args) == 0 {
		printHelp()
		return
	}
	switch strings.ToLower(args[0]) {
	case "help":
		printHelp()

	case "status":
		st, err := client.status(ctx)
		if err != nil {
			cli.ErrConnectionFailed(client.addr, "", err).Print()
			return
		}
		printStatus(st)

	case "submit", "set":
		if len(args) < 2 {
			cli.ErrMissingArgument("name=value", "submit SET key=value").Print()
			return
		}
		name := "SET"
		payload := args[1]
		if len(args) >= 3 {
			name = args[1]
			payload = args[2]
		}
		sp := cli.NewSpinner("waiting for commit")
		sp.Start()
		res, err := client.submit(ctx, name, payload)
		sp.Stop()
		if err != nil {
			cli.ErrConnectionFailed(client.addr, "", err).Print()
			return
		}
		printSubmitResult(res)

	case "get":
		if len(args) < 2 {
			cli.ErrMissingArgument("key", "get <key>").Print()
			return
		}
		sp := cli.NewSpinner("reading")
		sp.Start()
		res, err := client.getKey(ctx, args[1])
		sp.Stop()
		if err != nil {
			cli.ErrConnectionFailed(client.addr, "", err).Print()
			return
		}
		printSubmitResult(res)

	case "del":
		if len(args) < 2 {
			cli.ErrMissingArgument("key", "del <key>").Print()
			return
		}
		sp := cli.NewSpinner("waiting for commit")
		sp.Start()
		res, err := client.submit(ctx, "DEL", args[1])
		sp.Stop()
		if err != nil {
			cli.ErrConnectionFailed(client.addr, "", err).Print()
			return
		}
		printSubmitResult(res)

	default:
		cli.ErrInvalidCommand(args[0]).Print()
	}
}

func printHelp() {
	h := cli.NewHelpFormatter("raftctl", "1.0.0")
	h.AddCommand(cli.Command{Name: "status", Description: "print this node's role/term/commit-index snapshot"})
	h.AddCommand(cli.Command{Name: "submit", Description: "submit a command", Usage: "submit NAME PAYLOAD (defaults to SET key=value)"})
	h.AddCommand(cli.Command{Name: "get", Description: "read a key from this node's applied state (not linearizable)", Usage: "get <key>"})
	h.AddCommand(cli.Command{Name: "del", Description: "delete a key", Usage: "del <key>"})
	h.AddCommand(cli.Command{Name: "exit", Description: "leave the REPL"})
	h.PrintUsage()
}

func printStatus(st *statusResponse) {
	cli.KeyValue("Role", st.Role, 14)
	cli.KeyValue("Term", fmt.Sprintf("%d", st.Term), 14)
	if st.HasLeader {
		cli.KeyValue("Leader", st.Leader, 14)
	} else {
		cli.KeyValue("Leader", cli.Dimmed("(none)"), 14)
	}
	cli.KeyValue("CommitIndex", fmt.Sprintf("%d", st.CommitIndex), 14)
	cli.KeyValue("LastApplied", fmt.Sprintf("%d", st.LastApplied), 14)

	if len(st.Peers) > 0 {
		fmt.Println()
		table := cli.NewTable("Peer", "Phi", "Suspected")
		for _, p := range st.Peers {
			suspected := "no"
			if p.Suspected {
				suspected = cli.Warning("yes")
			}
			table.AddRow(p.Peer, fmt.Sprintf("%.2f", p.Phi), suspected)
		}
		table.Print()
	}
}

func printSubmitResult(res *submitResponse) {
	if res.Err != "" {
		cli.PrintError("%s", res.Err)
		return
	}
	cli.PrintSuccess("%v", res.Reply)
}

func runDiscover(args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	timeout := fs.Duration("timeout", 5*time.Second, "discovery timeout")
	jsonOut := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)

	sp := cli.NewSpinner(fmt.Sprintf("scanning for raftcore nodes (timeout %s)", timeout.String()))
	sp.Start()

	entries := make(chan *mdns.ServiceEntry, 32)
	var found []*mdns.ServiceEntry
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			found = append(found, e)
		}
	}()

	params := mdns.DefaultParams("_raftcore._tcp")
	params.Entries = entries
	params.Timeout = *timeout
	queryErr := mdns.Query(params)
	close(entries)
	<-done

	if queryErr != nil {
		sp.StopWithError(fmt.Sprintf("discovery failed: %v", queryErr))
		os.Exit(1)
	}

	if len(found) == 0 {
		sp.StopWithWarning("no raftcore nodes found on the network")
		return
	}
	sp.StopWithSuccess(fmt.Sprintf("found %d node(s)", len(found)))

	if *jsonOut {
		type node struct {
			Name string `json:"name"`
			Addr string `json:"addr"`
		}
		out := make([]node, len(found))
		for i, e := range found {
			out[i] = node{Name: e.Name, Addr: fmt.Sprintf("%s:%d", e.AddrV4, e.Port)}
		}
		json.NewEncoder(os.Stdout).Encode(out)
		return
	}

	table := cli.NewTable("Identity", "Address")
	for _, e := range found {
		table.AddRow(e.Name, fmt.Sprintf("%s:%d", e.AddrV4, e.Port))
	}
	table.Print()
}
