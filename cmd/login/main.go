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

// JobTrack: Gmail Login Command
//
// Runs the OAuth consent flow in the browser, captures the redirect on a
// local listener and stores the resulting tokens. Stored tokens younger
// than the freshness window are reused without opening the browser.
//
// Usage:
//
//	go run ./cmd/login/ [-status] [-logout] [-timeout 2m] [-port 8080]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jobtrack/ingestion/internal/auth"
	"github.com/jobtrack/ingestion/internal/callback"
	"github.com/jobtrack/ingestion/internal/config"
	"github.com/jobtrack/ingestion/internal/gmail"
	"github.com/jobtrack/ingestion/internal/pipeline"
)

type loginFlags struct {
	status    bool
	logout    bool
	timeout   time.Duration
	port      int
	noBrowser bool
	debug     bool
}

func main() {
	flags := parseLoginFlags()

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
		reportAuthError(err)
		os.Exit(1)
	}
}

func parseLoginFlags() loginFlags {
	statusFlag := flag.Bool("status", false, "Show stored token status and verify it against Gmail")
	logoutFlag := flag.Bool("logout", false, "Delete stored tokens")
	timeoutFlag := flag.Duration("timeout", 0, "How long to wait for the browser redirect (default from config)")
	portFlag := flag.Int("port", 0, "Redirect listener port (default from config)")
	noBrowserFlag := flag.Bool("no-browser", false, "Print the consent URL instead of opening a browser")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	return loginFlags{
		status:    *statusFlag,
		logout:    *logoutFlag,
		timeout:   *timeoutFlag,
		port:      *portFlag,
		noBrowser: *noBrowserFlag,
		debug:     *debugFlag,
	}
}

func run(flags loginFlags) error {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if flags.timeout > 0 {
		cfg.CallbackTimeout = flags.timeout
	}
	if flags.port > 0 {
		cfg.RedirectPort = flags.port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authCfg := auth.Config{
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		RedirectPort:    cfg.RedirectPort,
		Scopes:          cfg.Scopes,
		CallbackTimeout: cfg.CallbackTimeout,
		FreshnessWindow: cfg.FreshnessWindow,
		Method:          auth.MethodBrowserRedirect,
		HTTPClient:      &http.Client{Timeout: 30 * time.Second},
	}
	if flags.noBrowser {
		authCfg.OpenURL = func(url string) error {
			fmt.Printf("Open this URL in your browser to grant access:\n\n  %s\n\n", url)
			return nil
		}
	}
	authenticator := auth.NewAuthenticator(authCfg, auth.NewTokenStore(cfg.TokenPath))

	fetcher := gmail.NewFetcher(gmail.Config{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	})
	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Tokens:  authenticator,
		Fetcher: fetcher,
	})

	// --- Logout ---
	if flags.logout {
		if err := authenticator.Logout(); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Println("Logged out; stored tokens removed.")
		return nil
	}

	// --- Status ---
	if flags.status {
		if !authenticator.Restore() {
			return fmt.Errorf("not logged in: token file %s missing, incomplete or stale", cfg.TokenPath)
		}
		rec := authenticator.Record()
		fmt.Printf("Tokens issued %s (%s ago).\n", rec.IssuedAt.Format(time.RFC3339), time.Since(rec.IssuedAt).Round(time.Minute))
		return verify(ctx, runner)
	}

	// --- Login ---
	if err := cfg.RequireClient(); err != nil {
		return err
	}
	slog.Info("starting Gmail login",
		"redirect_uri", authenticator.RedirectURI(),
		"timeout", cfg.CallbackTimeout,
	)

	if err := authenticator.Authenticate(ctx); err != nil {
		return err
	}

	slog.Info("login complete", "state", authenticator.State().String())
	return verify(ctx, runner)
}

func verify(ctx context.Context, runner *pipeline.Runner) error {
	profile, err := runner.Verify(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Authenticated as %s (%d messages).\n", profile.EmailAddress, profile.MessagesTotal)
	return nil
}

func reportAuthError(err error) {
	var authErr *auth.Error
	switch {
	case errors.As(err, &authErr) && authErr.Hint != "":
		slog.Error("authentication failed", "error", err, "code", authErr.Code)
		fmt.Fprintf(os.Stderr, "\n%s\n", authErr.Hint)
	case errors.Is(err, callback.ErrTimeout):
		slog.Error("no authorization received", "error", err)
		fmt.Fprintln(os.Stderr, "\nThe browser redirect did not arrive in time. Run login again, or use -timeout.")
	case errors.Is(err, auth.ErrNotAuthenticated), errors.Is(err, gmail.ErrUnauthorized):
		slog.Error("authentication failed", "error", err)
		fmt.Fprintln(os.Stderr, "\nStored tokens were rejected. Run login again.")
	default:
		slog.Error("login failed", "error", err)
	}
}
