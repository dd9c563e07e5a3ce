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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jobtrack/ingestion/internal/auth"
	"github.com/jobtrack/ingestion/internal/gmail"
	"github.com/jobtrack/ingestion/internal/ollama"
)

// isolate points HOME and CONFIG_PATH at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "config.yaml"))
	for _, key := range []string{
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "REDIRECT_PORT", "TOKEN_PATH",
		"GMAIL_QUERY", "GMAIL_MAX_RESULTS", "GMAIL_CONCURRENCY", "OLLAMA_URL",
		"OLLAMA_MODEL", "OLLAMA_TIMEOUT", "MODEL_THRESHOLD", "JOBS_FILE",
		"DATABASE_URL", "SQLITE_PATH", "REDIS_URL", "JOBS_QUEUE", "DEDUP_TTL",
		"CALLBACK_TIMEOUT", "TOKEN_FRESHNESS",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_FromYAML(t *testing.T) {
	dir := isolate(t)
	t.Setenv("TEST_SECRET", "from-env")
	writeConfig(t, dir, `
google:
  client_id: "id-123"
  client_secret: "${TEST_SECRET}"
  redirect_port: 9090
  callback_timeout: 30s
tokens:
  path: /tmp/tok.json
  freshness: 48h
gmail:
  query: "subject:interview"
  max_results: 10
ollama:
  model: mistral
  threshold: 0.7
storage:
  sqlite_path: /tmp/jobs.db
  database_url: postgres://localhost/jobs
redis:
  url: redis://localhost:6379/1
  queues:
    jobs: custom:jobs
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ClientID != "id-123" || cfg.ClientSecret != "from-env" {
		t.Errorf("credentials = %q / %q", cfg.ClientID, cfg.ClientSecret)
	}
	if cfg.RedirectPort != 9090 {
		t.Errorf("redirect port = %d", cfg.RedirectPort)
	}
	if cfg.CallbackTimeout != 30*time.Second {
		t.Errorf("callback timeout = %v", cfg.CallbackTimeout)
	}
	if cfg.TokenPath != "/tmp/tok.json" || cfg.FreshnessWindow != 48*time.Hour {
		t.Errorf("tokens = %q %v", cfg.TokenPath, cfg.FreshnessWindow)
	}
	if cfg.Query != "subject:interview" || cfg.MaxResults != 10 {
		t.Errorf("gmail = %q %d", cfg.Query, cfg.MaxResults)
	}
	if cfg.Concurrency != gmail.DefaultConcurrency {
		t.Errorf("concurrency = %d", cfg.Concurrency)
	}
	if cfg.OllamaModel != "mistral" || cfg.ModelThreshold != 0.7 {
		t.Errorf("ollama = %q %v", cfg.OllamaModel, cfg.ModelThreshold)
	}
	if cfg.DatabaseURL != "postgres://localhost/jobs" || cfg.SQLitePath != "/tmp/jobs.db" {
		t.Errorf("storage = %q %q", cfg.DatabaseURL, cfg.SQLitePath)
	}
	if cfg.RedisURL != "redis://localhost:6379/1" || cfg.JobsQueue != "custom:jobs" {
		t.Errorf("redis = %q %q", cfg.RedisURL, cfg.JobsQueue)
	}
}

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	dir := isolate(t)
	t.Setenv("GOOGLE_CLIENT_ID", "env-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "env-secret")
	t.Setenv("GMAIL_MAX_RESULTS", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.RedirectPort != auth.DefaultRedirectPort {
		t.Errorf("redirect port = %d", cfg.RedirectPort)
	}
	if cfg.MaxResults != 25 {
		t.Errorf("max results = %d, want 25", cfg.MaxResults)
	}
	if cfg.Query != gmail.DefaultQuery {
		t.Errorf("query = %q", cfg.Query)
	}
	if cfg.OllamaURL != ollama.DefaultBaseURL || cfg.OllamaModel != ollama.DefaultModel {
		t.Errorf("ollama = %q %q", cfg.OllamaURL, cfg.OllamaModel)
	}
	if cfg.FreshnessWindow != auth.DefaultFreshnessWindow {
		t.Errorf("freshness = %v", cfg.FreshnessWindow)
	}
	if want := filepath.Join(dir, ".jobtrack", "gmail_tokens.json"); cfg.TokenPath != want {
		t.Errorf("token path = %q, want %q", cfg.TokenPath, want)
	}
	if want := filepath.Join(dir, ".jobtrack", "jobs.json"); cfg.JobsFile != want {
		t.Errorf("jobs file = %q, want %q", cfg.JobsFile, want)
	}
	if cfg.RedisURL != "" || cfg.DatabaseURL != "" || cfg.SQLitePath != "" {
		t.Error("redis and database backends must be off by default")
	}
	if len(cfg.Scopes) != len(auth.DefaultScopes) {
		t.Errorf("scopes = %v", cfg.Scopes)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad duration", "google:\n  client_id: a\n  client_secret: b\n  callback_timeout: soon\n", "google.callback_timeout"},
		{"threshold above one", "google:\n  client_id: a\n  client_secret: b\nollama:\n  threshold: 1.5\n", "threshold"},
		{"bad yaml", "google: [unclosed", "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			writeConfig(t, dir, tt.yaml)

			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_WithoutCredentials(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, "gmail:\n  max_results: 5\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load without credentials: %v", err)
	}
	if want := filepath.Join(dir, ".jobtrack", "gmail_tokens.json"); cfg.TokenPath != want {
		t.Errorf("token path = %q, want %q", cfg.TokenPath, want)
	}

	err = cfg.RequireClient()
	if err == nil {
		t.Fatal("RequireClient: expected error")
	}
	if !strings.Contains(err.Error(), "client_id") || !strings.Contains(err.Error(), filepath.Join(dir, "config.yaml")) {
		t.Errorf("error %q should name client_id and the config path", err)
	}
}

func TestRequireClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"both set", Config{ClientID: "id", ClientSecret: "secret"}, false},
		{"missing secret", Config{ClientID: "id"}, true},
		{"missing id", Config{ClientSecret: "secret"}, true},
		{"neither", Config{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.RequireClient()
			if (err != nil) != tt.wantErr {
				t.Errorf("RequireClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
