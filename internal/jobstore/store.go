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

// Package jobstore persists job records emitted by the sync pipeline. A
// local JSON file is the default; Postgres is used when a database URL is
// configured.
package jobstore

import (
	"context"
	"errors"

	"github.com/jobtrack/ingestion/internal/models"
)

// ErrDuplicateMessage is returned by CreateJob when a job already exists
// for the same source message.
var ErrDuplicateMessage = errors.New("job already recorded for message")

// Store is the job repository boundary.
type Store interface {
	CreateJob(ctx context.Context, job models.NewJob) (models.Job, error)
	List(ctx context.Context) ([]models.Job, error)
	Close()
}
