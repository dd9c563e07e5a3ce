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

// JobTrack: Sync Command
//
// Runs one ingestion pass: searches Gmail for job-related mail, classifies
// each candidate (local Ollama model first, keyword rules as fallback) and
// records a job for every job-related message.
//
// Usage:
//
//	go run ./cmd/sync/ [-dry-run] [-rules-only] [-list] [-debug]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobtrack/ingestion/internal/auth"
	"github.com/jobtrack/ingestion/internal/classify"
	"github.com/jobtrack/ingestion/internal/config"
	"github.com/jobtrack/ingestion/internal/dedup"
	"github.com/jobtrack/ingestion/internal/gmail"
	"github.com/jobtrack/ingestion/internal/jobstore"
	"github.com/jobtrack/ingestion/internal/ollama"
	"github.com/jobtrack/ingestion/internal/pipeline"
	"github.com/jobtrack/ingestion/internal/queue"
)

type syncFlags struct {
	dryRun    bool
	rulesOnly bool
	list      bool
	debug     bool
}

func main() {
	flags := parseSyncFlags()

	// Structured JSON logging
	level := slog.LevelInfo
	if flags.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := run(flags); err != nil {
		slog.Error("sync failed", "error", err)
		os.Exit(1)
	}
}

func parseSyncFlags() syncFlags {
	dryRunFlag := flag.Bool("dry-run", false, "Classify without recording jobs")
	rulesOnlyFlag := flag.Bool("rules-only", false, "Skip the Ollama model and use keyword rules only")
	listFlag := flag.Bool("list", false, "Print stored jobs and exit")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	return syncFlags{
		dryRun:    *dryRunFlag,
		rulesOnly: *rulesOnlyFlag,
		list:      *listFlag,
		debug:     *debugFlag,
	}
}

func run(flags syncFlags) error {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Job Store ---
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	if flags.list {
		return listJobs(ctx, store)
	}

	// --- Authenticate ---
	if err := cfg.RequireClient(); err != nil {
		return err
	}
	authenticator := auth.NewAuthenticator(auth.Config{
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		RedirectPort:    cfg.RedirectPort,
		Scopes:          cfg.Scopes,
		CallbackTimeout: cfg.CallbackTimeout,
		FreshnessWindow: cfg.FreshnessWindow,
		Method:          auth.MethodBrowserRedirect,
		HTTPClient:      &http.Client{Timeout: 30 * time.Second},
	}, auth.NewTokenStore(cfg.TokenPath))

	if err := authenticator.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	// --- Classifier ---
	var backend classify.Backend
	if !flags.rulesOnly {
		backend = ollama.NewClient(&http.Client{Timeout: cfg.OllamaTimeout}, cfg.OllamaURL)
	}
	classifier := classify.New(backend, classify.Config{
		Model:     cfg.OllamaModel,
		Threshold: cfg.ModelThreshold,
		Timeout:   cfg.OllamaTimeout,
	})
	if model, ok := classifier.ModelAvailable(ctx); ok {
		slog.Info("using model classification", "model", model, "threshold", cfg.ModelThreshold)
	} else {
		slog.Info("using rule-based classification")
	}

	runnerCfg := pipeline.RunnerConfig{
		Tokens: authenticator,
		Fetcher: gmail.NewFetcher(gmail.Config{
			HTTPClient:  &http.Client{Timeout: 30 * time.Second},
			Query:       cfg.Query,
			MaxResults:  cfg.MaxResults,
			Concurrency: cfg.Concurrency,
		}),
		Classifier: classifier,
		Jobs:       store,
		DryRun:     flags.dryRun,
		Progress:   printProgress,
	}

	// --- Connect to Redis (optional) ---
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		publisher := queue.NewPublisher(rdb, cfg.JobsQueue)
		if err := publisher.Ping(ctx); err != nil {
			return fmt.Errorf("connect to Redis: %w", err)
		}
		slog.Info("connected to Redis", "queue", cfg.JobsQueue)

		runnerCfg.Seen = dedup.NewFilter(rdb, cfg.DedupTTL)
		runnerCfg.Publisher = publisher
	}

	// --- Run Sync ---
	result, err := pipeline.NewRunner(runnerCfg).Run(ctx)
	if err != nil {
		return err
	}

	// --- Summary ---
	printSummary(result)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (jobstore.Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		s, err := jobstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case cfg.SQLitePath != "":
		s, err := jobstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("job store initialised", "backend", "sqlite", "path", cfg.SQLitePath)
		return s, nil
	default:
		slog.Info("job store initialised", "backend", "file", "path", cfg.JobsFile)
		return jobstore.NewFileStore(cfg.JobsFile), nil
	}
}
