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

package models

import (
	"strings"
	"time"
)

// JobStage is the lifecycle vocabulary shared between categorizations and
// job records. Stages carry no ordering.
type JobStage string

const (
	StageApplied   JobStage = "applied"
	StageScreening JobStage = "screening"
	StageTechnical JobStage = "technical"
	StageFinal     JobStage = "final"
	StageOffer     JobStage = "offer"
	StageRejected  JobStage = "rejected"
	StageWithdrawn JobStage = "withdrawn"
)

// AllStages lists every stage in display order.
var AllStages = []JobStage{
	StageApplied, StageScreening, StageTechnical, StageFinal,
	StageOffer, StageRejected, StageWithdrawn,
}

// Label returns the human-readable stage name used on the board.
func (s JobStage) Label() string {
	switch s {
	case StageApplied:
		return "Applied"
	case StageScreening:
		return "Screening"
	case StageTechnical:
		return "Technical Interview"
	case StageFinal:
		return "Final Interview"
	case StageOffer:
		return "Offer"
	case StageRejected:
		return "Rejected"
	case StageWithdrawn:
		return "Withdrawn"
	}
	return ""
}

// Valid reports whether s is one of the known stages.
func (s JobStage) Valid() bool {
	return s.Label() != ""
}

// ParseStage maps either the enum form ("technical") or the label form
// ("Technical Interview") to a stage, case-insensitively. Unknown input
// returns false.
func ParseStage(raw string) (JobStage, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range AllStages {
		if v == string(s) || v == strings.ToLower(s.Label()) {
			return s, true
		}
	}
	return "", false
}

// Method values recorded on a Categorization.
const (
	MethodModel = "model"
	MethodRules = "rules"
)

// Categorization is the classifier's verdict on one message. Company,
// Position and Stage are empty when unknown.
type Categorization struct {
	IsJobRelated bool              `json:"is_job_related"`
	Company      string            `json:"company,omitempty"`
	Position     string            `json:"position,omitempty"`
	Stage        JobStage          `json:"stage,omitempty"`
	Confidence   float64           `json:"confidence"`
	Evidence     map[string]string `json:"evidence,omitempty"`
	Method       string            `json:"method"`
}

// Defaults applied when a job-related categorization leaves fields empty.
const (
	UnknownCompany  = "Unknown Company"
	UnknownPosition = "Unknown Position"
)

// NewJob carries the fields of one createJob call at the job repository
// boundary.
type NewJob struct {
	Company     string    `json:"company"`
	Position    string    `json:"position"`
	DateApplied time.Time `json:"date_applied"`
	Stage       JobStage  `json:"stage"`
	SourceText  string    `json:"source_text"`
	MessageID   string    `json:"message_id,omitempty"`
}

// NewJobFrom builds the repository request for a job-related message,
// filling the board defaults for anything the classifier could not infer.
func NewJobFrom(msg Message, cat Categorization) NewJob {
	job := NewJob{
		Company:     cat.Company,
		Position:    cat.Position,
		DateApplied: msg.Date,
		Stage:       cat.Stage,
		SourceText:  msg.Content,
		MessageID:   msg.ID,
	}
	if strings.TrimSpace(job.Company) == "" {
		job.Company = UnknownCompany
	}
	if strings.TrimSpace(job.Position) == "" {
		job.Position = UnknownPosition
	}
	if !job.Stage.Valid() {
		job.Stage = StageApplied
	}
	return job
}

// Job is a record as stored by the job repository.
type Job struct {
	ID          string    `json:"id"`
	Company     string    `json:"company"`
	Position    string    `json:"position"`
	DateApplied time.Time `json:"date_applied"`
	Stage       JobStage  `json:"stage"`
	Notes       []string  `json:"notes"`
	SourceText  string    `json:"source_text,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}
