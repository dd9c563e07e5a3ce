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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jobtrack/ingestion/internal/auth"
	"github.com/jobtrack/ingestion/internal/callback"
	"github.com/jobtrack/ingestion/internal/classify"
	"github.com/jobtrack/ingestion/internal/dedup"
	"github.com/jobtrack/ingestion/internal/gmail"
	"github.com/jobtrack/ingestion/internal/ollama"
	"github.com/jobtrack/ingestion/internal/queue"
)

// Config holds all configuration for the login and sync commands.
type Config struct {
	// Google OAuth client
	ClientID        string
	ClientSecret    string
	RedirectPort    int
	Scopes          []string
	CallbackTimeout time.Duration

	// Tokens
	TokenPath       string
	FreshnessWindow time.Duration

	// Gmail search
	Query       string
	MaxResults  int64
	Concurrency int

	// Ollama
	OllamaURL      string
	OllamaModel    string
	OllamaTimeout  time.Duration
	ModelThreshold float64

	// Storage. DatabaseURL (Postgres) wins over SQLitePath, which wins
	// over JobsFile.
	JobsFile    string
	SQLitePath  string
	DatabaseURL string

	// Redis (optional)
	RedisURL  string
	JobsQueue string
	DedupTTL  time.Duration

	path string
}

// rawConfig mirrors the YAML structure for unmarshalling. Durations are
// strings in time.ParseDuration form.
type rawConfig struct {
	Google struct {
		ClientID        string   `yaml:"client_id"`
		ClientSecret    string   `yaml:"client_secret"`
		RedirectPort    int      `yaml:"redirect_port"`
		Scopes          []string `yaml:"scopes"`
		CallbackTimeout string   `yaml:"callback_timeout"`
	} `yaml:"google"`
	Tokens struct {
		Path      string `yaml:"path"`
		Freshness string `yaml:"freshness"`
	} `yaml:"tokens"`
	Gmail struct {
		Query       string `yaml:"query"`
		MaxResults  int64  `yaml:"max_results"`
		Concurrency int    `yaml:"concurrency"`
	} `yaml:"gmail"`
	Ollama struct {
		URL       string  `yaml:"url"`
		Model     string  `yaml:"model"`
		Timeout   string  `yaml:"timeout"`
		Threshold float64 `yaml:"threshold"`
	} `yaml:"ollama"`
	Storage struct {
		JobsFile    string `yaml:"jobs_file"`
		SQLitePath  string `yaml:"sqlite_path"`
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"storage"`
	Redis struct {
		URL      string `yaml:"url"`
		DedupTTL string `yaml:"dedup_ttl"`
		Queues   struct {
			Jobs string `yaml:"jobs"`
		} `yaml:"queues"`
	} `yaml:"redis"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. A missing config file is not an error; the
// environment alone may carry everything.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	baseDir := filepath.Join(home, ".jobtrack")

	configPath := envOrDefault("CONFIG_PATH", filepath.Join(baseDir, "config.yaml"))

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	cfg := &Config{
		path:         configPath,
		ClientID:     firstNonEmpty(raw.Google.ClientID, os.Getenv("GOOGLE_CLIENT_ID")),
		ClientSecret: firstNonEmpty(raw.Google.ClientSecret, os.Getenv("GOOGLE_CLIENT_SECRET")),
		RedirectPort: firstPositive(raw.Google.RedirectPort, envOrDefaultInt("REDIRECT_PORT", auth.DefaultRedirectPort)),
		Scopes:       raw.Google.Scopes,

		TokenPath: firstNonEmpty(raw.Tokens.Path, envOrDefault("TOKEN_PATH", filepath.Join(baseDir, "gmail_tokens.json"))),

		Query:       firstNonEmpty(raw.Gmail.Query, envOrDefault("GMAIL_QUERY", gmail.DefaultQuery)),
		MaxResults:  int64(firstPositive(int(raw.Gmail.MaxResults), envOrDefaultInt("GMAIL_MAX_RESULTS", gmail.DefaultMaxResults))),
		Concurrency: firstPositive(raw.Gmail.Concurrency, envOrDefaultInt("GMAIL_CONCURRENCY", gmail.DefaultConcurrency)),

		OllamaURL:      firstNonEmpty(raw.Ollama.URL, envOrDefault("OLLAMA_URL", ollama.DefaultBaseURL)),
		OllamaModel:    firstNonEmpty(raw.Ollama.Model, envOrDefault("OLLAMA_MODEL", ollama.DefaultModel)),
		ModelThreshold: raw.Ollama.Threshold,

		JobsFile:    firstNonEmpty(raw.Storage.JobsFile, envOrDefault("JOBS_FILE", filepath.Join(baseDir, "jobs.json"))),
		SQLitePath:  firstNonEmpty(raw.Storage.SQLitePath, os.Getenv("SQLITE_PATH")),
		DatabaseURL: firstNonEmpty(raw.Storage.DatabaseURL, os.Getenv("DATABASE_URL")),

		RedisURL:  firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		JobsQueue: firstNonEmpty(raw.Redis.Queues.Jobs, envOrDefault("JOBS_QUEUE", queue.DefaultQueue)),
	}

	if cfg.ModelThreshold <= 0 {
		cfg.ModelThreshold = envOrDefaultFloat("MODEL_THRESHOLD", classify.DefaultThreshold)
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = auth.DefaultScopes
	}

	durations := []struct {
		name     string
		yamlVal  string
		envKey   string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"google.callback_timeout", raw.Google.CallbackTimeout, "CALLBACK_TIMEOUT", callback.DefaultTimeout, &cfg.CallbackTimeout},
		{"tokens.freshness", raw.Tokens.Freshness, "TOKEN_FRESHNESS", auth.DefaultFreshnessWindow, &cfg.FreshnessWindow},
		{"ollama.timeout", raw.Ollama.Timeout, "OLLAMA_TIMEOUT", ollama.DefaultTimeout, &cfg.OllamaTimeout},
		{"redis.dedup_ttl", raw.Redis.DedupTTL, "DEDUP_TTL", dedup.DefaultTTL, &cfg.DedupTTL},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.yamlVal) == "" {
			*d.dst = envOrDefaultDuration(d.envKey, d.fallback)
			continue
		}
		v, err := time.ParseDuration(d.yamlVal)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid %s %q", d.name, d.yamlVal)
		}
		*d.dst = v
	}

	if cfg.ModelThreshold > 1 {
		return nil, fmt.Errorf("ollama.threshold must be in (0, 1], got %v", cfg.ModelThreshold)
	}

	return cfg, nil
}

// RequireClient reports an error unless OAuth client credentials are set.
// Only operations that talk to the token endpoint need them.
func (c *Config) RequireClient() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("google client_id and client_secret are required (config %s or GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET)", c.path)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
