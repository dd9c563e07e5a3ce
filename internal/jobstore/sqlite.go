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
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jobtrack/ingestion/internal/models"
)

// SQLiteStore keeps jobs in a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and prepares the
// schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure jobs schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			company      TEXT NOT NULL,
			position     TEXT NOT NULL,
			date_applied DATETIME NOT NULL,
			stage        TEXT NOT NULL,
			notes        TEXT NOT NULL DEFAULT '[]',
			source_text  TEXT NOT NULL DEFAULT '',
			message_id   TEXT UNIQUE,
			last_updated DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_date ON jobs(date_applied);
	`)
	return err
}

// CreateJob inserts a job. A second job for the same message returns
// ErrDuplicateMessage.
func (s *SQLiteStore) CreateJob(ctx context.Context, req models.NewJob) (models.Job, error) {
	job := models.Job{
		ID:          uuid.New().String(),
		Company:     req.Company,
		Position:    req.Position,
		DateApplied: req.DateApplied.UTC(),
		Stage:       req.Stage,
		Notes:       []string{},
		SourceText:  req.SourceText,
		MessageID:   req.MessageID,
		LastUpdated: s.now().UTC(),
	}

	var messageID *string
	if req.MessageID != "" {
		messageID = &req.MessageID
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO jobs (
			id, company, position, date_applied, stage,
			notes, source_text, message_id, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Company, job.Position, job.DateApplied, string(job.Stage),
		"[]", job.SourceText, messageID, job.LastUpdated,
	)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return models.Job{}, ErrDuplicateMessage
	}
	return job, nil
}

// List returns all jobs, most recently applied first.
func (s *SQLiteStore) List(ctx context.Context) ([]models.Job, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, company, position, date_applied, stage,
		       notes, source_text, message_id, last_updated
		FROM jobs
		ORDER BY date_applied DESC`)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

func scanSQLiteJob(rows *sqlx.Rows) (models.Job, error) {
	var (
		j         models.Job
		stage     string
		notes     string
		messageID sql.NullString
	)
	err := rows.Scan(
		&j.ID, &j.Company, &j.Position, &j.DateApplied, &stage,
		&notes, &j.SourceText, &messageID, &j.LastUpdated,
	)
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job row: %w", err)
	}

	j.Stage = models.JobStage(stage)
	j.MessageID = messageID.String
	if err := json.Unmarshal([]byte(notes), &j.Notes); err != nil {
		return models.Job{}, fmt.Errorf("decode notes for job %s: %w", j.ID, err)
	}
	if j.Notes == nil {
		j.Notes = []string{}
	}
	return j, nil
}
