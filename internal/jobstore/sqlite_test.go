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
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "jobs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteStore_CreateAndList(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older, err := s.CreateJob(ctx, newJob("m1", base))
	if err != nil {
		t.Fatalf("CreateJob m1: %v", err)
	}
	if _, err := s.CreateJob(ctx, newJob("m2", base.Add(24*time.Hour))); err != nil {
		t.Fatalf("CreateJob m2: %v", err)
	}

	jobs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].MessageID != "m2" || jobs[1].MessageID != "m1" {
		t.Errorf("order = %s, %s", jobs[0].MessageID, jobs[1].MessageID)
	}

	got := jobs[1]
	if got.ID != older.ID || got.Company != "TechCorp" || got.Stage != older.Stage {
		t.Errorf("round trip mismatch: %+v vs %+v", got, older)
	}
	if !got.DateApplied.Equal(base) {
		t.Errorf("date applied = %v, want %v", got.DateApplied, base)
	}
	if got.Notes == nil || len(got.Notes) != 0 {
		t.Errorf("notes = %v", got.Notes)
	}
}

func TestSQLiteStore_DuplicateMessage(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	applied := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.CreateJob(ctx, newJob("m1", applied)); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := s.CreateJob(ctx, newJob("m1", applied)); !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("expected ErrDuplicateMessage, got %v", err)
	}

	for range 2 {
		if _, err := s.CreateJob(ctx, newJob("", applied)); err != nil {
			t.Fatalf("CreateJob without message id: %v", err)
		}
	}

	jobs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 3 {
		t.Errorf("expected 3 jobs, got %d", len(jobs))
	}
}
