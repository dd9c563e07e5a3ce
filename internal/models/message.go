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

// Package models defines the data structures shared across the ingestion
// pipeline: fetched messages, their categorizations, and the job records
// emitted to the job repository.
package models

import (
	"fmt"
	"time"
)

// Message is a candidate email retrieved from Gmail. Content is the
// flattened plain-text body extracted from the MIME part tree.
type Message struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	From    string    `json:"from"`
	Date    time.Time `json:"date"`
	Snippet string    `json:"snippet"`
	Content string    `json:"content"`
}

// ClassifierText renders the message in the form handed to the classifier.
// Subject and sender lead so the header-oriented extractors (first lines,
// sender domain) see them.
func (m Message) ClassifierText() string {
	return fmt.Sprintf("Subject: %s\nFrom: %s\n\n%s", m.Subject, m.From, m.Content)
}
