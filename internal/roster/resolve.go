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

package roster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/miekg/dns"
)

// MDNSServiceName is the service type queried by ResolveMDNS, matching
// the pattern hashicorp/mdns expects ("_service._proto").
const MDNSServiceName = "_raftcore._tcp"

// ResolveMDNS replaces each member's Addr with one discovered via mDNS,
// matching entries by instance name == identity. It runs once at
// startup, before the engine is constructed; members with no matching
// mDNS answer keep their roster-file address. This never changes the
// roster's set of identities, only how their addresses are looked up.
func ResolveMDNS(r *Roster, timeout time.Duration) error {
	entries := make(chan *mdns.ServiceEntry, 32)
	byIdentity := make(map[string]string, len(r.Members))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			byIdentity[e.Name] = fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port)
		}
	}()

	params := mdns.DefaultParams(MDNSServiceName)
	params.Entries = entries
	params.Timeout = timeout
	if err := mdns.Query(params); err != nil {
		close(entries)
		<-done
		return fmt.Errorf("roster: mdns query: %w", err)
	}
	close(entries)
	<-done

	for i, m := range r.Members {
		if addr, ok := byIdentity[m.Identity]; ok {
			r.Members[i].Addr = addr
		}
	}
	return nil
}

// ResolveDNS replaces each member's Addr with one discovered via SRV
// lookups of "<identity>.<zone>", for environments with a real DNS
// server instead of mDNS. Like ResolveMDNS, it is a one-time startup
// step, not a continuous watch.
func ResolveDNS(ctx context.Context, r *Roster, zone string, server string) error {
	client := new(dns.Client)
	for i, m := range r.Members {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(m.Identity+"."+zone), dns.TypeSRV)

		resp, _, err := client.ExchangeContext(ctx, msg, server)
		if err != nil {
			continue // keep the roster-file address on lookup failure
		}
		for _, ans := range resp.Answer {
			srv, ok := ans.(*dns.SRV)
			if !ok {
				continue
			}
			r.Members[i].Addr = fmt.Sprintf("%s:%d", strings.TrimSuffix(srv.Target, "."), srv.Port)
			break
		}
	}
	return nil
}
