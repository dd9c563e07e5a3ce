// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package callback implements the short-lived local listener that captures
// the OAuth authorization code from the provider's browser redirect.
//
// The listener speaks just enough HTTP to read one request line per
// connection. It captures at most one code per Start; once a code has been
// delivered it stops accepting connections.
package callback

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTimeout is how long AwaitCode waits for the browser redirect.
	DefaultTimeout = 120 * time.Second

	// readTimeout bounds how long a single connection may take to send
	// its request line.
	readTimeout = 10 * time.Second

	// maxRequestLine caps the bytes read while looking for the request line.
	maxRequestLine = 64 * 1024
)

var (
	// ErrTimeout is returned by AwaitCode when no code arrived in time.
	ErrTimeout = errors.New("timed out waiting for authorization callback")

	// ErrStopped is returned by AwaitCode when the listener was stopped
	// before a code arrived.
	ErrStopped = errors.New("callback listener stopped")
)

// Result is the outcome of one listener run: either a code or an error.
type Result struct {
	Code string
	Err  error
}

// Listener accepts browser redirects on a local port.
type Listener struct {
	ln net.Listener

	// result is buffered so the winning connection never blocks on a
	// waiter that has not arrived yet.
	result  chan Result
	claimMu sync.Mutex
	claimed bool

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
	loopDone chan struct{}
}

// Start binds addr (for example "localhost:8080") with address reuse
// enabled and begins accepting connections in the background.
func Start(ctx context.Context, addr string) (*Listener, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	l := &Listener{
		ln:       ln,
		result:   make(chan Result, 1),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	go l.acceptLoop()

	slog.Info("oauth callback listener started", "addr", ln.Addr().String())
	return l, nil
}

// Addr returns the bound address. Useful when Start was given port 0.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// AwaitCode blocks until a code is captured, the timeout elapses, or ctx is
// cancelled. On timeout or cancellation the listener is force-stopped so the
// port is free for the next attempt. A non-positive timeout uses
// DefaultTimeout.
func (l *Listener) AwaitCode(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-l.result:
		l.Stop()
		if res.Err != nil {
			return "", res.Err
		}
		return res.Code, nil
	case <-timer.C:
		l.Stop()
		return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		l.Stop()
		return "", fmt.Errorf("await callback: %w", ctx.Err())
	case <-l.done:
		// A result may have been delivered just before the stop.
		select {
		case res := <-l.result:
			if res.Err != nil {
				return "", res.Err
			}
			return res.Code, nil
		default:
		}
		return "", ErrStopped
	}
}

// Stop closes the listening socket and waits for the accept loop to exit,
// after which the port is free. Connections already accepted are answered
// on their own goroutines. It is safe to call more than once.
func (l *Listener) Stop() error {
	l.stopOnce.Do(func() {
		close(l.done)
		if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			l.stopErr = fmt.Errorf("close callback listener: %w", err)
		}
		<-l.loopDone
		slog.Info("oauth callback listener stopped", "addr", l.ln.Addr().String())
	})
	return l.stopErr
}

func (l *Listener) acceptLoop() {
	defer close(l.loopDone)
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("callback accept failed", "error", err)
			continue
		}

		go l.handleConn(conn)
	}
}

func (l *Listener) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(readTimeout))

	line, err := readRequestLine(conn)
	if err != nil {
		slog.Debug("callback request unreadable", "remote", conn.RemoteAddr().String(), "error", err)
		writeResponse(conn, badRequestResponse)
		return
	}

	code, providerErr := parseRequestLine(line)
	if code == "" {
		if providerErr != "" {
			slog.Warn("authorization callback carried provider error", "error", providerErr)
		}
		writeResponse(conn, badRequestResponse)
		return
	}

	// Every redirect carrying a code gets the success page so the browser
	// never hangs, but only the first one is delivered.
	writeResponse(conn, successResponse)
	_ = conn.Close()
	if !l.claim() {
		slog.Debug("duplicate authorization callback ignored")
		return
	}
	l.result <- Result{Code: code}

	// At most one code per Start: stop accepting further connections.
	_ = l.ln.Close()
}

func (l *Listener) claim() bool {
	l.claimMu.Lock()
	defer l.claimMu.Unlock()
	if l.claimed {
		return false
	}
	l.claimed = true
	return true
}

// readRequestLine reads until the first CRLF (or LF) and returns the line
// without its terminator.
func readRequestLine(conn net.Conn) (string, error) {
	r := bufio.NewReaderSize(conn, 4096)
	var sb strings.Builder
	for {
		chunk, err := r.ReadSlice('\n')
		sb.Write(chunk)
		if sb.Len() > maxRequestLine {
			return "", errors.New("request line too long")
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return "", fmt.Errorf("read request line: %w", err)
	}
	return strings.TrimRight(sb.String(), "\r\n"), nil
}

// parseRequestLine extracts the code (and any provider error) from a
// "GET <path>?<query> HTTP/x.y" request line.
func parseRequestLine(line string) (code, providerErr string) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "GET" {
		return "", ""
	}
	target, err := url.ParseRequestURI(fields[1])
	if err != nil {
		return "", ""
	}
	q := target.Query()
	return q.Get("code"), q.Get("error")
}

func writeResponse(conn net.Conn, response string) {
	if _, err := conn.Write([]byte(response)); err != nil {
		slog.Debug("callback response write failed", "error", err)
	}
}
