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

package callback

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// --- Test helpers ---

func startTestListener(t *testing.T) *Listener {
	t.Helper()
	l, err := Start(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { l.Stop() })
	return l
}

// sendRaw writes a raw request to the listener and returns the status line
// of the response.
func sendRaw(t *testing.T, addr, request string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, request); err != nil {
		t.Fatalf("write request: %v", err)
	}
	status, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	return strings.TrimSpace(status)
}

func get(path string) string {
	return fmt.Sprintf("GET %s HTTP/1.1\r\nHost: localhost\r\n\r\n", path)
}

// TestParseRequestLine verifies code extraction from raw request lines.
func TestParseRequestLine(t *testing.T) {
	tests := []struct {
		line     string
		wantCode string
		wantErr  string
	}{
		{line: "GET /callback?code=abc123&scope=email HTTP/1.1", wantCode: "abc123"},
		{line: "GET /callback?scope=email&code=4%2F0Ab HTTP/1.1", wantCode: "4/0Ab"},
		{line: "GET /callback?error=access_denied HTTP/1.1", wantErr: "access_denied"},
		{line: "GET /callback HTTP/1.1"},
		{line: "POST /callback?code=abc HTTP/1.1"},
		{line: "garbage"},
		{line: ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			code, providerErr := parseRequestLine(tt.line)
			if code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
			if providerErr != tt.wantErr {
				t.Errorf("error = %q, want %q", providerErr, tt.wantErr)
			}
		})
	}
}

// TestListener_CapturesCode verifies the happy path: a 200 response and the
// code delivered to the waiter.
func TestListener_CapturesCode(t *testing.T) {
	l := startTestListener(t)
	addr := l.Addr().String()

	status := sendRaw(t, addr, get("/callback?code=XYZ&scope=gmail.readonly"))
	if !strings.Contains(status, "200") {
		t.Fatalf("status = %q, want 200", status)
	}

	code, err := l.AwaitCode(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("AwaitCode failed: %v", err)
	}
	if code != "XYZ" {
		t.Errorf("code = %q, want XYZ", code)
	}
}

// TestListener_MissingCodeThenValid verifies that a request without a code
// gets a 400 and does not satisfy the waiter, while a later valid request
// in the same window still succeeds.
func TestListener_MissingCodeThenValid(t *testing.T) {
	l := startTestListener(t)
	addr := l.Addr().String()

	status := sendRaw(t, addr, get("/callback?scope=email"))
	if !strings.Contains(status, "400") {
		t.Fatalf("status = %q, want 400", status)
	}

	select {
	case res := <-l.result:
		t.Fatalf("unexpected result after bad request: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}

	status = sendRaw(t, addr, get("/callback?code=second"))
	if !strings.Contains(status, "200") {
		t.Fatalf("status = %q, want 200", status)
	}

	code, err := l.AwaitCode(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("AwaitCode failed: %v", err)
	}
	if code != "second" {
		t.Errorf("code = %q, want second", code)
	}
}

// TestListener_StopsAcceptingAfterCode verifies at most one code per Start.
func TestListener_StopsAcceptingAfterCode(t *testing.T) {
	l := startTestListener(t)
	addr := l.Addr().String()

	sendRaw(t, addr, get("/callback?code=first"))

	code, err := l.AwaitCode(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("AwaitCode failed: %v", err)
	}
	if code != "first" {
		t.Errorf("code = %q, want first", code)
	}

	conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	if err == nil {
		conn.Close()
		t.Error("expected listener to refuse connections after capturing a code")
	}
}

// TestListener_DuplicateDoesNotResignal verifies that a second code arriving
// before the listener closes is answered but not delivered.
func TestListener_DuplicateDoesNotResignal(t *testing.T) {
	l := startTestListener(t)

	if !l.claim() {
		t.Fatal("first claim should succeed")
	}
	if l.claim() {
		t.Fatal("second claim should fail")
	}
}

// TestListener_Timeout verifies the timeout error and that the port is
// released for a new attempt.
func TestListener_Timeout(t *testing.T) {
	l := startTestListener(t)
	addr := l.Addr().String()

	_, err := l.AwaitCode(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	again, err := Start(context.Background(), addr)
	if err != nil {
		t.Fatalf("rebinding %s after timeout failed: %v", addr, err)
	}
	again.Stop()
}

// TestListener_ContextCancel verifies cancellation stops the wait.
func TestListener_ContextCancel(t *testing.T) {
	l := startTestListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.AwaitCode(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// TestListener_StopIdempotent verifies Stop can be called repeatedly.
func TestListener_StopIdempotent(t *testing.T) {
	l := startTestListener(t)
	if err := l.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	_, err := l.AwaitCode(context.Background(), time.Second)
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}
