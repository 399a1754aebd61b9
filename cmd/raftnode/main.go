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
raftnode runs one member of a raftcore cluster: it loads a roster, opens
its local log store, drives the consensus engine through the reactor's
tick loop, and exposes a minimal HTTP admin endpoint for client
submissions and status polling.

Usage:

	raftnode -id A -roster cluster.roster -data-dir ./data/A -listen :7400 -admin-addr :7500
	raftnode -id A -single-node -listen :7400 -admin-addr :7500
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"raftcore/internal/consensus"
	"raftcore/internal/demo"
	"raftcore/internal/logutil"
	"raftcore/internal/raftlog"
	"raftcore/internal/reactor"
	"raftcore/internal/roster"
	tlsutil "raftcore/internal/tls"
	"raftcore/internal/transport"
	"raftcore/internal/wire"
	"raftcore/pkg/cli"
)

func main() {
	var (
		id                = flag.String("id", "", "this node's roster identity (required)")
		rosterPath        = flag.String("roster", "", "path to the roster file")
		singleNode        = flag.Bool("single-node", false, "run as a one-node cluster, ignoring -roster")
		listenAddr        = flag.String("listen", "", "peer listen address (ip:port); defaults to the roster's entry for -id")
		adminAddr         = flag.String("admin-addr", ":7500", "HTTP admin endpoint address")
		dataDir           = flag.String("data-dir", "./data", "directory holding this node's log file")
		electionTimeout   = flag.Duration("election-timeout", 150*time.Millisecond, "base election timeout (band is [T, 2T))")
		heartbeatInterval = flag.Duration("heartbeat-interval", 30*time.Millisecond, "leader heartbeat/replication cadence")
		maxEntries        = flag.Int("max-entries-per-request", 64, "max log entries per AppendEntries")
		frameKey          = flag.String("frame-key", "", "shared key authenticating wire frames with a BLAKE2b MAC; empty disables")
		compression       = flag.String("compression", "", "entry compression: none, snappy, lz4, zstd")
		compressionMin    = flag.Int("compression-min-size", 4096, "minimum entries-section size before compressing")
		mdnsDiscover      = flag.Bool("mdns", false, "resolve peer addresses via mDNS at startup before connecting")
		dnsZone           = flag.String("dns-zone", "", "resolve peer addresses via DNS SRV under this zone at startup")
		dnsServer         = flag.String("dns-server", "", "DNS server to query for -dns-zone (host:port)")
		tlsEnable         = flag.Bool("tls", false, "wrap peer links in TLS on top of the frame MAC")
		tlsCert           = flag.String("tls-cert", "", "TLS certificate path (default: platform cert dir, see internal/tls)")
		tlsKey            = flag.String("tls-key", "", "TLS private key path (default: platform cert dir, see internal/tls)")
		tlsGenerate       = flag.Bool("tls-generate", false, "generate a self-signed cert/key at -tls-cert/-tls-key if missing")
		logLevel          = flag.String("log-level", "info", "debug, info, warn, or error")
		jsonLogs          = flag.Bool("json-logs", false, "emit logs as JSON records")
	)
	flag.Parse()

	logutil.SetGlobalLevel(logutil.ParseLevel(*logLevel))
	logutil.SetJSONMode(*jsonLogs)
	log := logutil.NewLogger("raftnode").With("node", *id)

	if *id == "" {
		cli.NewCLIError("missing -id").WithSuggestion("raftnode -id A -roster cluster.roster").Exit()
	}

	r, err := loadRoster(*id, *rosterPath, *singleNode)
	if err != nil {
		cli.NewCLIError("failed to load roster").WithDetail(err.Error()).Exit()
	}

	if *mdnsDiscover {
		if err := roster.ResolveMDNS(r, 3*time.Second); err != nil {
			log.Warn("mDNS discovery failed, keeping roster file addresses", "err", err)
		}
	}
	if *dnsZone != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := roster.ResolveDNS(ctx, r, *dnsZone, *dnsServer); err != nil {
			log.Warn("DNS discovery failed, keeping roster file addresses", "err", err)
		}
		cancel()
	}

	self, ok := r.Self()
	if !ok {
		cli.NewCLIError("roster has no entry for this node").WithDetail(*id).Exit()
	}
	addr := self.Addr
	if *listenAddr != "" {
		addr = *listenAddr
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		cli.NewCLIError("failed to create data directory").WithDetail(err.Error()).Exit()
	}
	store, err := raftlog.OpenFileStore(filepath.Join(*dataDir, *id+".log"))
	if err != nil {
		cli.NewCLIError("failed to open log store").WithDetail(err.Error()).Exit()
	}
	view := raftlog.NewView(store)

	peers := make([]consensus.NodeID, 0, len(r.Peers()))
	for _, m := range r.Peers() {
		peers = append(peers, consensus.ParseNodeID(m.Identity))
	}

	applicator := demo.NewKVApplicator()
	engine := consensus.New(consensus.Config{
		Self:                 consensus.ParseNodeID(*id),
		Peers:                peers,
		ElectionTimeout:      *electionTimeout,
		HeartbeatInterval:    *heartbeatInterval,
		MaxEntriesPerRequest: *maxEntries,
		Applicator:           applicator,
		OnFatal: func(err error) {
			log.Error("fatal durability failure, exiting", "err", err)
			os.Exit(1)
		},
	}, view)
	if err := engine.Load(time.Now()); err != nil {
		cli.NewCLIError("failed to load log store").WithDetail(err.Error()).Exit()
	}

	transportCfg := transport.DefaultConfig()
	if *frameKey != "" {
		transportCfg.MACKey = []byte(*frameKey)
	}
	if *compression != "" {
		algo, err := wire.ParseCompressionAlgorithm(*compression)
		if err != nil {
			cli.NewCLIError("invalid -compression").WithDetail(err.Error()).Exit()
		}
		if algo != wire.CompressionNone {
			comp, err := wire.NewCompressor(algo, *compressionMin)
			if err != nil {
				cli.NewCLIError("failed to build compressor").WithDetail(err.Error()).Exit()
			}
			transportCfg.Compressor = comp
		}
	}
	if *tlsEnable {
		certPath, keyPath := *tlsCert, *tlsKey
		if certPath == "" || keyPath == "" {
			_, defaultCert, defaultKey := tlsutil.GetDefaultCertPaths()
			if certPath == "" {
				certPath = defaultCert
			}
			if keyPath == "" {
				keyPath = defaultKey
			}
		}
		if *tlsGenerate {
			if err := tlsutil.EnsureCertificates(certPath, keyPath, tlsutil.DefaultCertConfig()); err != nil {
				cli.NewCLIError("failed to provision TLS certificates").WithDetail(err.Error()).Exit()
			}
		}
		tlsConfig, err := tlsutil.PeerTLSConfig(certPath, keyPath)
		if err != nil {
			cli.NewCLIError("failed to load TLS certificates").
				WithDetail(err.Error()).
				WithSuggestion("Pass -tls-generate to create a self-signed cert/key pair").
				Exit()
		}
		transportCfg.TLSConfig = tlsConfig
	}

	reactorCfg := reactor.DefaultConfig()
	reactorCfg.Self = consensus.ParseNodeID(*id)
	reactorCfg.SelfAddr = addr
	reactorCfg.Roster = r
	reactorCfg.TransportConfig = transportCfg
	reactorCfg.TickInterval = *heartbeatInterval

	loop := reactor.New(reactorCfg, engine, log)
	if err := loop.Listen(); err != nil {
		cli.NewCLIError("failed to listen").WithDetail(err.Error()).Exit()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("reactor loop exited", "err", err)
		}
	}()

	ingress := demo.NewIngress(loop, 64)
	go ingress.Run(ctx)

	admin := newAdminServer(*adminAddr, loop, ingress, applicator, log)
	go admin.run(ctx)

	log.Info("raftnode started", "listen", addr, "admin", *adminAddr)
	<-ctx.Done()
	log.Info("shutting down")
}

func loadRoster(id, path string, single bool) (*roster.Roster, error) {
	if single {
		return roster.SingleNode(id, "127.0.0.1:0"), nil
	}
	if path == "" {
		return nil, fmt.Errorf("raftnode: -roster is required unless -single-node is set")
	}
	return roster.ParseFile(path, id)
}

// adminServer is the tiny HTTP front-end spec.md models client ingress
// through: GET /status for a reactor.Status snapshot, POST /submit for
// a client command routed through demo.Ingress.
type adminServer struct {
	addr       string
	loop       *reactor.Loop
	ingress    *demo.Ingress
	applicator *demo.KVApplicator
	log        *logutil.Logger
	httpServer *http.Server
}

func newAdminServer(addr string, loop *reactor.Loop, ingress *demo.Ingress, applicator *demo.KVApplicator, log *logutil.Logger) *adminServer {
	a := &adminServer{addr: addr, loop: loop, ingress: ingress, applicator: applicator, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", a.handleStatus)
	mux.HandleFunc("/submit", a.handleSubmit)
	mux.HandleFunc("/get", a.handleGet)
	a.httpServer = &http.Server{Addr: addr, Handler: mux}
	return a
}

func (a *adminServer) run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.httpServer.Shutdown(shutdownCtx)
	}()
	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		a.log.Error("admin server exited", "err", err)
	}
}

func (a *adminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a.loop.Status())
}

type submitRequestBody struct {
	Name    string `json:"name"`
	Payload string `json:"payload"`
}

type submitResponseBody struct {
	Reply any    `json:"reply,omitempty"`
	Err   string `json:"error,omitempty"`
}

func (a *adminServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body submitRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	reply := make(chan demo.Result, 1)
	select {
	case a.ingress.Commands() <- demo.Command{Name: body.Name, Payload: []byte(body.Payload), Reply: reply}:
	case <-ctx.Done():
		http.Error(w, "ingress queue full", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	select {
	case res := <-reply:
		resp := submitResponseBody{Reply: res.Reply}
		if res.Err != nil {
			resp.Err = res.Err.Error()
		}
		json.NewEncoder(w).Encode(resp)
	case <-ctx.Done():
		http.Error(w, "timed out waiting for commit", http.StatusGatewayTimeout)
	}
}

func (a *adminServer) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	v, ok := a.applicator.Get(key)
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(submitResponseBody{Err: demo.ErrKeyNotFound.Error()})
		return
	}
	json.NewEncoder(w).Encode(submitResponseBody{Reply: v})
}
