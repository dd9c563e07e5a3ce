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

// Package queue publishes job events to a Redis list so other processes
// (board refreshers, notifiers) can react to newly detected applications.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jobtrack/ingestion/internal/models"
)

// DefaultQueue is the Redis list job events are pushed to.
const DefaultQueue = "jobtrack:jobs"

// EventJobCreated is the event type emitted after a job is stored.
const EventJobCreated = "job.created"

// JobEvent is the envelope pushed for each stored job.
type JobEvent struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Job         models.Job        `json:"job"`
	MessageID   string            `json:"message_id"`
	Confidence  float64           `json:"confidence"`
	Method      string            `json:"method"`
	Evidence    map[string]string `json:"evidence,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
}

// Publisher sends job events to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	if queueName == "" {
		queueName = DefaultQueue
	}
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// NewJobEvent builds the envelope for a stored job.
func NewJobEvent(job models.Job, cat models.Categorization) JobEvent {
	return JobEvent{
		ID:          uuid.New().String(),
		Type:        EventJobCreated,
		Job:         job,
		MessageID:   job.MessageID,
		Confidence:  cat.Confidence,
		Method:      cat.Method,
		Evidence:    cat.Evidence,
		PublishedAt: time.Now().UTC(),
	}
}

// PublishJobCreated serialises a job.created event and LPUSHes it onto the
// queue. Consumers BRPOP from the other end.
func (p *Publisher) PublishJobCreated(ctx context.Context, job models.Job, cat models.Categorization) error {
	event := NewJobEvent(job, cat)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, payload).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published job event to queue",
		"event_id", event.ID,
		"job_id", job.ID,
		"message_id", job.MessageID,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
