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
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/netutil"
	"golang.org/x/sys/unix"
)

// Listen opens the cluster-port listener with SO_REUSEPORT set (so a
// restarted node can rebind immediately) and TCP_NODELAY on every
// accepted connection, wrapped in a netutil.LimitListener bounded to
// maxConns concurrent inbound sessions — spec.md §5's backpressure
// guidance applied to the accept path itself, not just per-peer send
// buffers. Go's runtime netpoller already makes Accept non-blocking
// under the hood; no explicit O_NONBLOCK call is needed or made. If
// tlsConfig is non-nil, every accepted conn is wrapped as a TLS server
// conn (the handshake runs on its first Read or Write); LimitListener
// is the outermost layer, so a slot is taken before the inner Accept
// and TLS conns count against maxConns like plain ones.
func Listen(addr string, maxConns int, tlsConfig *tls.Config) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	var out net.Listener = &nodelayListener{ln}
	if tlsConfig != nil {
		out = tls.NewListener(out, tlsConfig)
	}
	if maxConns > 0 {
		// LimitListener must wrap the NODELAY-setting listener, not the
		// other way around: it hands back its own wrapped conn type, so
		// a nodelayListener sitting outside it would never see a
		// *net.TCPConn to unwrap.
		out = netutil.LimitListener(out, maxConns)
	}
	return out, nil
}

// nodelayListener sets TCP_NODELAY on every accepted connection before
// handing it back to the caller.
type nodelayListener struct {
	net.Listener
}

func (l *nodelayListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return conn, nil
}
