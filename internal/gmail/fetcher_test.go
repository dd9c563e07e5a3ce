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

package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gm "google.golang.org/api/gmail/v1"
)

// --- Test helpers ---

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func apiMessage(id string, internalDate int64, subject, body string) map[string]any {
	return map[string]any{
		"id":           id,
		"snippet":      "snippet " + id,
		"internalDate": jsonInt(internalDate),
		"payload": map[string]any{
			"mimeType": "text/plain",
			"headers": []map[string]string{
				{"name": "subject", "value": subject},
				{"name": "FROM", "value": "Jobs <jobs@" + id + ".com>"},
			},
			"body": map[string]string{"data": b64(body)},
		},
	}
}

// jsonInt renders an int64 the way the API does: as a JSON string.
func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

type fakeGmail struct {
	*httptest.Server
	gets  atomic.Int32
	query atomic.Value
}

func newFakeGmail(t *testing.T, messages map[string]map[string]any, ids []string) *fakeGmail {
	t.Helper()
	fg := &fakeGmail{}
	fg.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")

		const prefix = "/gmail/v1/users/me/messages"
		switch {
		case r.URL.Path == "/gmail/v1/users/me/profile":
			w.Write([]byte(`{"emailAddress":"me@example.com","messagesTotal":42}`))
		case r.URL.Path == prefix:
			fg.query.Store(r.URL.Query().Get("q"))
			refs := make([]map[string]string, 0, len(ids))
			for _, id := range ids {
				refs = append(refs, map[string]string{"id": id})
			}
			json.NewEncoder(w).Encode(map[string]any{"messages": refs})
		case strings.HasPrefix(r.URL.Path, prefix+"/"):
			fg.gets.Add(1)
			if r.URL.Query().Get("format") != "full" {
				t.Errorf("format = %q, want full", r.URL.Query().Get("format"))
			}
			id := strings.TrimPrefix(r.URL.Path, prefix+"/")
			msg, ok := messages[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
				return
			}
			json.NewEncoder(w).Encode(msg)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fg.Close)
	return fg
}

func TestFetchCandidates_SortsAndSkipsFailures(t *testing.T) {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	messages := map[string]map[string]any{
		"old":    apiMessage("old", base, "Application received", "Thanks for applying"),
		"newest": apiMessage("newest", base+2*3600_000, "Interview invite", "Let's talk"),
		"middle": apiMessage("middle", base+3600_000, "Your resume", "We got it"),
	}
	fg := newFakeGmail(t, messages, []string{"old", "missing", "newest", "middle"})

	f := NewFetcher(Config{Endpoint: fg.URL, Concurrency: 2})
	got, err := f.FetchCandidates(context.Background(), "test-token")
	if err != nil {
		t.Fatalf("FetchCandidates failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3 (one skipped)", len(got))
	}
	wantOrder := []string{"newest", "middle", "old"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("messages[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
	if fg.gets.Load() != 4 {
		t.Errorf("detail requests = %d, want 4", fg.gets.Load())
	}
	if q, _ := fg.query.Load().(string); q != DefaultQuery {
		t.Errorf("query = %q, want %q", q, DefaultQuery)
	}

	first := got[0]
	if first.Subject != "Interview invite" {
		t.Errorf("Subject = %q, want Interview invite", first.Subject)
	}
	if first.From != "Jobs <jobs@newest.com>" {
		t.Errorf("From = %q", first.From)
	}
	if first.Content != "Let's talk" {
		t.Errorf("Content = %q, want Let's talk", first.Content)
	}
	if !first.Date.Equal(time.UnixMilli(base + 2*3600_000)) {
		t.Errorf("Date = %v", first.Date)
	}
}

func TestFetchCandidates_Unauthorized(t *testing.T) {
	fg := newFakeGmail(t, nil, nil)

	f := NewFetcher(Config{Endpoint: fg.URL})
	_, err := f.FetchCandidates(context.Background(), "expired")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestFetchCandidates_Empty(t *testing.T) {
	fg := newFakeGmail(t, nil, nil)

	f := NewFetcher(Config{Endpoint: fg.URL})
	got, err := f.FetchCandidates(context.Background(), "test-token")
	if err != nil {
		t.Fatalf("FetchCandidates failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d messages, want 0", len(got))
	}
}

func TestProfile(t *testing.T) {
	fg := newFakeGmail(t, nil, nil)
	f := NewFetcher(Config{Endpoint: fg.URL})

	p, err := f.Profile(context.Background(), "test-token")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if p.EmailAddress != "me@example.com" || p.MessagesTotal != 42 {
		t.Errorf("profile = %+v", p)
	}

	if _, err := f.Profile(context.Background(), "bad"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

// --- Parser ---

func TestExtractText_NestedMultipart(t *testing.T) {
	root := &gm.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gm.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gm.MessagePart{
					{MimeType: "text/plain", Body: &gm.MessagePartBody{Data: b64("first leaf")}},
					{MimeType: "text/html", Body: &gm.MessagePartBody{Data: b64("<p>ignored</p>")}},
				},
			},
			{MimeType: "application/pdf", Body: &gm.MessagePartBody{AttachmentId: "att1"}},
			{MimeType: "text/plain; charset=UTF-8", Body: &gm.MessagePartBody{Data: b64("second leaf")}},
		},
	}

	if got := extractText(root); got != "first leaf\nsecond leaf" {
		t.Errorf("extractText = %q, want %q", got, "first leaf\nsecond leaf")
	}
}

func TestExtractText_Cases(t *testing.T) {
	tests := []struct {
		name string
		root *gm.MessagePart
		want string
	}{
		{
			name: "single part body",
			root: &gm.MessagePart{MimeType: "text/plain", Body: &gm.MessagePartBody{Data: b64("hello?>")}},
			want: "hello?>",
		},
		{
			name: "unpadded base64url",
			root: &gm.MessagePart{MimeType: "text/plain", Body: &gm.MessagePartBody{
				Data: base64.RawURLEncoding.EncodeToString([]byte("no padding ~~")),
			}},
			want: "no padding ~~",
		},
		{
			name: "html only falls back",
			root: &gm.MessagePart{
				MimeType: "multipart/alternative",
				Parts: []*gm.MessagePart{
					{MimeType: "text/html", Body: &gm.MessagePartBody{Data: b64("<p>Thank you &amp; welcome</p><style>p{}</style>")}},
				},
			},
			want: "Thank you & welcome",
		},
		{
			name: "invalid data skipped",
			root: &gm.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*gm.MessagePart{
					{MimeType: "text/plain", Body: &gm.MessagePartBody{Data: "!!!not base64!!!"}},
					{MimeType: "text/plain", Body: &gm.MessagePartBody{Data: b64("valid")}},
				},
			},
			want: "valid",
		},
		{
			name: "no body",
			root: &gm.MessagePart{MimeType: "multipart/mixed"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractText(tt.root); got != tt.want {
				t.Errorf("extractText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseMessage_DateHeaderFallback(t *testing.T) {
	msg := &gm.Message{
		Id: "m1",
		Payload: &gm.MessagePart{
			MimeType: "text/plain",
			Headers: []*gm.MessagePartHeader{
				{Name: "Date", Value: "Tue, 3 Mar 2026 10:00:00 +0000"},
				{Name: "Subject", Value: "Offer"},
			},
			Body: &gm.MessagePartBody{Data: b64("body")},
		},
	}

	got := parseMessage(msg)
	want := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	if !got.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", got.Date, want)
	}
	if got.Subject != "Offer" {
		t.Errorf("Subject = %q, want Offer", got.Subject)
	}
}

func TestStripHTML(t *testing.T) {
	got := stripHTML("<div>Hi<br>there</div><script>alert(1)</script>&lt;ok&gt;")
	want := "Hi\nthere\n<ok>"
	if got != want {
		t.Errorf("stripHTML = %q, want %q", got, want)
	}
}
