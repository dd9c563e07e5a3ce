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

// Package classify decides whether a message is a job-application event and
// extracts company, position, stage and confidence.
//
// Two tiers are tried in order. The model tier asks a local language model
// for a JSON verdict and is used only when the model is reachable and
// confident enough. The rule tier is a deterministic keyword engine that
// always produces an answer.
package classify

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jobtrack/ingestion/internal/models"
	"github.com/jobtrack/ingestion/internal/ollama"
)

const (
	// DefaultThreshold is the minimum model confidence accepted.
	DefaultThreshold = 0.5

	// DefaultProbeTTL is how long a reachability probe result is reused.
	DefaultProbeTTL = time.Minute
)

// Backend is the model server the classifier talks to.
type Backend interface {
	Models(ctx context.Context) ([]ollama.Model, error)
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Config tunes the model tier.
type Config struct {
	Model     string        // used when no preferred model is installed
	Threshold float64       // default DefaultThreshold
	Timeout   time.Duration // per model call, default ollama.DefaultTimeout
	ProbeTTL  time.Duration // default DefaultProbeTTL

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Classifier runs the two-tier policy.
type Classifier struct {
	backend Backend
	cfg     Config

	mu        sync.Mutex
	probedAt  time.Time
	reachable bool
	model     string
}

// New creates a Classifier. A nil backend disables the model tier.
func New(backend Backend, cfg Config) *Classifier {
	if cfg.Model == "" {
		cfg.Model = ollama.DefaultModel
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = ollama.DefaultTimeout
	}
	if cfg.ProbeTTL <= 0 {
		cfg.ProbeTTL = DefaultProbeTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Classifier{backend: backend, cfg: cfg}
}

// Classify returns the model verdict when the backend is reachable and at
// least Threshold confident, and the rule verdict otherwise. Model failures
// are logged, never returned.
func (c *Classifier) Classify(ctx context.Context, text string) models.Categorization {
	if model, ok := c.probe(ctx); ok {
		cat, err := c.classifyWithModel(ctx, model, text)
		switch {
		case err != nil:
			slog.Warn("model classification failed, using rules", "model", model, "error", err)
		case cat.Confidence < c.cfg.Threshold:
			slog.Debug("model confidence below threshold, using rules",
				"model", model,
				"confidence", cat.Confidence,
				"threshold", c.cfg.Threshold,
			)
		default:
			return cat
		}
	}
	return ClassifyRules(text)
}

// ModelAvailable reports whether the model tier is currently usable, and
// which model it would use.
func (c *Classifier) ModelAvailable(ctx context.Context) (string, bool) {
	return c.probe(ctx)
}

func (c *Classifier) classifyWithModel(ctx context.Context, model, text string) (models.Categorization, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	raw, err := c.backend.Generate(callCtx, model, buildPrompt(text))
	if err != nil {
		if isTransportError(err) {
			c.markUnreachable()
		}
		return models.Categorization{}, err
	}

	cat, err := parseModelResponse(raw)
	if err != nil {
		return models.Categorization{}, err
	}

	if cat.Company == "" {
		cat.Company = ExtractCompany(text)
	}
	if cat.Position == "" {
		cat.Position = ExtractPosition(text)
	}
	return cat, nil
}

// probe checks the backend's model list, caching the answer for ProbeTTL.
func (c *Classifier) probe(ctx context.Context) (string, bool) {
	if c.backend == nil {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Now()
	if !c.probedAt.IsZero() && now.Sub(c.probedAt) < c.cfg.ProbeTTL {
		return c.model, c.reachable
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	installed, err := c.backend.Models(probeCtx)
	c.probedAt = now
	if err != nil {
		if c.reachable || c.model == "" {
			slog.Info("model backend unreachable, using rule-based classification", "error", err)
		}
		c.reachable = false
		c.model = ""
		return "", false
	}

	c.reachable = true
	c.model = ollama.PreferredModel(installed, c.cfg.Model)
	slog.Info("model backend reachable", "model", c.model, "installed", len(installed))
	return c.model, true
}

func (c *Classifier) markUnreachable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reachable = false
	c.probedAt = c.cfg.Now()
}

// isTransportError reports whether err means the backend could not be
// reached at all, as opposed to answering with an error.
func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
