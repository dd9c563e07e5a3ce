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

// Package pipeline runs one sync pass: fetch candidate messages, classify
// each, and record a job for every job-related message.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobtrack/ingestion/internal/gmail"
	"github.com/jobtrack/ingestion/internal/jobstore"
	"github.com/jobtrack/ingestion/internal/models"
)

// TokenProvider supplies the Gmail access token and renews it.
type TokenProvider interface {
	AccessToken() (string, error)
	Refresh(ctx context.Context) error
}

// MessageFetcher retrieves candidate messages.
type MessageFetcher interface {
	FetchCandidates(ctx context.Context, accessToken string) ([]models.Message, error)
	Profile(ctx context.Context, accessToken string) (*gmail.Profile, error)
}

// Categorizer classifies message text. It always returns a verdict.
type Categorizer interface {
	Classify(ctx context.Context, text string) models.Categorization
}

// JobSink is the job repository boundary.
type JobSink interface {
	CreateJob(ctx context.Context, job models.NewJob) (models.Job, error)
}

// SeenFilter remembers processed message ids across runs.
type SeenFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
	Forget(ctx context.Context, messageID string) error
}

// EventPublisher announces stored jobs.
type EventPublisher interface {
	PublishJobCreated(ctx context.Context, job models.Job, cat models.Categorization) error
}

// Outcome describes what happened to one message.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeNotJob    Outcome = "not_job"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDryRun    Outcome = "dry_run"
	OutcomeFailed    Outcome = "failed"
)

// Progress is reported once per processed message.
type Progress struct {
	Index          int // 1-based
	Total          int
	Message        models.Message
	Categorization models.Categorization
	Outcome        Outcome
	Job            *models.Job // unsaved preview on a dry run
	Err            error
}

// Result summarises a completed run.
type Result struct {
	Fetched    int
	JobRelated int
	Created    int
	Duplicates int
	Errors     int
	Elapsed    time.Duration
}

// RunnerConfig holds dependencies for the runner. Seen and Publisher are
// optional.
type RunnerConfig struct {
	Tokens     TokenProvider
	Fetcher    MessageFetcher
	Classifier Categorizer
	Jobs       JobSink
	Seen       SeenFilter
	Publisher  EventPublisher

	// DryRun classifies without recording jobs or marking messages seen.
	DryRun bool

	// Progress, when set, is called after each message.
	Progress func(Progress)
}

// Runner performs sync passes.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner creates a sync runner.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{cfg: cfg}
}

// Run performs one pass. Authentication failures abort it; per-message
// failures are logged, counted and skipped.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	messages, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("starting sync", "candidates", len(messages), "dry_run", r.cfg.DryRun)

	result := &Result{Fetched: len(messages)}
	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		p := r.process(ctx, msg)
		p.Index = i + 1
		p.Total = len(messages)

		switch p.Outcome {
		case OutcomeCreated:
			result.JobRelated++
			result.Created++
		case OutcomeDryRun:
			result.JobRelated++
		case OutcomeDuplicate:
			result.Duplicates++
		case OutcomeFailed:
			result.Errors++
		}

		if r.cfg.Progress != nil {
			r.cfg.Progress(p)
		}
	}

	result.Elapsed = time.Since(start)

	slog.Info("sync complete",
		"fetched", result.Fetched,
		"job_related", result.JobRelated,
		"created", result.Created,
		"duplicates", result.Duplicates,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)

	return result, nil
}

// Verify checks that the held token is accepted by Gmail, refreshing once
// if it is rejected.
func (r *Runner) Verify(ctx context.Context) (*gmail.Profile, error) {
	var profile *gmail.Profile
	err := r.withToken(ctx, func(token string) error {
		var err error
		profile, err = r.cfg.Fetcher.Profile(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (r *Runner) fetch(ctx context.Context) ([]models.Message, error) {
	var messages []models.Message
	err := r.withToken(ctx, func(token string) error {
		var err error
		messages, err = r.cfg.Fetcher.FetchCandidates(ctx, token)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	return messages, nil
}

// withToken calls fn with the current access token. When Gmail answers 401
// the token is refreshed and fn is retried exactly once.
func (r *Runner) withToken(ctx context.Context, fn func(token string) error) error {
	token, err := r.cfg.Tokens.AccessToken()
	if err != nil {
		return err
	}

	err = fn(token)
	if !errors.Is(err, gmail.ErrUnauthorized) {
		return err
	}

	slog.Info("access token rejected, refreshing")
	if err := r.cfg.Tokens.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh after 401: %w", err)
	}
	if token, err = r.cfg.Tokens.AccessToken(); err != nil {
		return err
	}
	return fn(token)
}

func (r *Runner) process(ctx context.Context, msg models.Message) Progress {
	p := Progress{Message: msg}

	if r.cfg.Seen != nil && !r.cfg.DryRun {
		isNew, err := r.cfg.Seen.IsNew(ctx, msg.ID)
		if err != nil {
			slog.Warn("dedup check failed", "message_id", msg.ID, "error", err)
		} else if !isNew {
			p.Outcome = OutcomeDuplicate
			return p
		}
	}

	p.Categorization = r.cfg.Classifier.Classify(ctx, msg.ClassifierText())
	if !p.Categorization.IsJobRelated {
		p.Outcome = OutcomeNotJob
		return p
	}

	req := models.NewJobFrom(msg, p.Categorization)
	if r.cfg.DryRun {
		slog.Info("dry run: would create job",
			"message_id", msg.ID,
			"company", req.Company,
			"position", req.Position,
			"stage", req.Stage,
		)
		p.Outcome = OutcomeDryRun
		p.Job = &models.Job{
			Company:     req.Company,
			Position:    req.Position,
			DateApplied: req.DateApplied,
			Stage:       req.Stage,
			MessageID:   req.MessageID,
		}
		return p
	}

	job, err := r.cfg.Jobs.CreateJob(ctx, req)
	switch {
	case errors.Is(err, jobstore.ErrDuplicateMessage):
		p.Outcome = OutcomeDuplicate
		return p
	case err != nil:
		slog.Warn("create job failed", "message_id", msg.ID, "error", err)
		r.forget(ctx, msg.ID)
		p.Outcome = OutcomeFailed
		p.Err = err
		return p
	}

	slog.Info("job created",
		"job_id", job.ID,
		"message_id", msg.ID,
		"company", job.Company,
		"stage", job.Stage,
		"method", p.Categorization.Method,
		"confidence", p.Categorization.Confidence,
	)

	if r.cfg.Publisher != nil {
		if err := r.cfg.Publisher.PublishJobCreated(ctx, job, p.Categorization); err != nil {
			slog.Warn("publish job event failed", "job_id", job.ID, "error", err)
		}
	}

	p.Outcome = OutcomeCreated
	p.Job = &job
	return p
}

func (r *Runner) forget(ctx context.Context, messageID string) {
	if r.cfg.Seen == nil {
		return
	}
	if err := r.cfg.Seen.Forget(ctx, messageID); err != nil {
		slog.Warn("dedup forget failed", "message_id", messageID, "error", err)
	}
}
