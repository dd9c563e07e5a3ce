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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobtrack/ingestion/internal/models"
)

// FileStore keeps every job in a single JSON array on disk. Writes are
// serialized and replace the file atomically.
type FileStore struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on the
// first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// CreateJob appends a job with a fresh id and empty notes.
func (s *FileStore) CreateJob(ctx context.Context, req models.NewJob) (models.Job, error) {
	if err := ctx.Err(); err != nil {
		return models.Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.read()
	if err != nil {
		return models.Job{}, err
	}

	if req.MessageID != "" {
		for _, j := range jobs {
			if j.MessageID == req.MessageID {
				return j, ErrDuplicateMessage
			}
		}
	}

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
	jobs = append(jobs, job)

	if err := s.write(jobs); err != nil {
		return models.Job{}, err
	}
	return job, nil
}

// List returns all jobs, most recently applied first.
func (s *FileStore) List(ctx context.Context) ([]models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	jobs, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].DateApplied.After(jobs[j].DateApplied)
	})
	return jobs, nil
}

// Close is a no-op.
func (s *FileStore) Close() {}

func (s *FileStore) read() ([]models.Job, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var jobs []models.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("decode jobs file %s: %w", s.path, err)
	}
	return jobs, nil
}

func (s *FileStore) write(jobs []models.Job) error {
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode jobs: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create jobs dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".jobs-*.json")
	if err != nil {
		return fmt.Errorf("create temp jobs file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write jobs file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close jobs file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace jobs file: %w", err)
	}
	return nil
}
