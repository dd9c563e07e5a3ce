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

package jobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobtrack/ingestion/internal/models"
)

// PostgresStore keeps jobs in a Postgres table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and prepares the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	store, err := NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore creates a job store backed by the given pool. It ensures
// the jobs table exists on creation.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure jobs schema: %w", err)
	}
	slog.Info("job store initialised", "backend", "postgres")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			company      TEXT NOT NULL,
			position     TEXT NOT NULL,
			date_applied TIMESTAMPTZ NOT NULL,
			stage        TEXT NOT NULL,
			notes        TEXT[] NOT NULL DEFAULT '{}',
			source_text  TEXT DEFAULT '',
			message_id   TEXT,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_message ON jobs(message_id) WHERE message_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_jobs_stage ON jobs(stage);
		CREATE INDEX IF NOT EXISTS idx_jobs_date ON jobs(date_applied);
	`)
	return err
}

// CreateJob inserts a job. A second job for the same message returns
// ErrDuplicateMessage.
func (s *PostgresStore) CreateJob(ctx context.Context, req models.NewJob) (models.Job, error) {
	var messageID *string
	if req.MessageID != "" {
		messageID = &req.MessageID
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, company, position, date_applied, stage, source_text, message_id, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id) WHERE message_id IS NOT NULL DO NOTHING
		RETURNING id, company, position, date_applied, stage, notes,
		          source_text, message_id, last_updated
	`, uuid.New().String(), req.Company, req.Position, req.DateApplied, string(req.Stage),
		req.SourceText, messageID, time.Now().UTC())

	job, err := scanJob(row)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}
	if job == nil {
		return models.Job{}, ErrDuplicateMessage
	}
	return *job, nil
}

// List returns all jobs, most recently applied first.
func (s *PostgresStore) List(ctx context.Context) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company, position, date_applied, stage, notes,
		       source_text, message_id, last_updated
		FROM jobs
		ORDER BY date_applied DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// scanJob reads one job row. It returns nil, nil when no row came back.
func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j         models.Job
		stage     string
		source    *string
		messageID *string
	)
	err := row.Scan(&j.ID, &j.Company, &j.Position, &j.DateApplied, &stage, &j.Notes,
		&source, &messageID, &j.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.Stage = models.JobStage(stage)
	if source != nil {
		j.SourceText = *source
	}
	if messageID != nil {
		j.MessageID = *messageID
	}
	if j.Notes == nil {
		j.Notes = []string{}
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]models.Job, error) {
	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		if j != nil {
			jobs = append(jobs, *j)
		}
	}
	return jobs, rows.Err()
}
