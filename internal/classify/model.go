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

package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jobtrack/ingestion/internal/models"
)

// ErrNoJSONObject is returned when a model response contains no balanced
// JSON object.
var ErrNoJSONObject = errors.New("no JSON object in model response")

// maxPromptContent caps how much of the message is sent to the model.
const maxPromptContent = 3000

const promptTemplate = `You are an expert email analyzer specializing in job application detection and information extraction.

Analyze the following email and determine if it is related to a job application. Respond ONLY with a valid JSON object:

{
    "is_job_related": boolean,
    "company": "string or null",
    "position": "string or null",
    "stage": "Applied|Screening|Technical Interview|Final Interview|Offer|Rejected|Withdrawn|null",
    "confidence": number between 0 and 1,
    "evidence": {
        "reason": "brief explanation of classification",
        "sender": "sender name or company if identifiable",
        "type": "new application, interview, rejection, offer, follow-up, or other"
    }
}

CLASSIFICATION RULES:
- is_job_related = true ONLY for emails about job applications, interviews, offers, rejections, screening calls or technical assessments
- is_job_related = false for newsletters, marketing, general company updates, spam and unrelated communication
- Check the sender domain for known job boards (indeed, linkedin, glassdoor)

INFORMATION EXTRACTION:
- Extract the company from the signature, sender domain or body
- Extract the position title from the subject line or body
- Determine the stage from context:
  * "Applied": confirmation emails, application received
  * "Screening": phone screen, HR interview, initial conversation
  * "Technical Interview": coding challenges, technical assessments, technical interviews
  * "Final Interview": final round, team or executive interviews
  * "Offer": job offer, compensation details, offer letter
  * "Rejected": rejection emails, not moving forward
  * "Withdrawn": the candidate withdrew from consideration

Email to analyze:
%s

Respond with JSON only:`

// buildPrompt renders the classification prompt for text.
func buildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, truncateRunes(text, maxPromptContent))
}

// modelVerdict is the JSON object the model is asked to return. Nullable
// fields are pointers so "null" and absent both read as unknown.
type modelVerdict struct {
	IsJobRelated *bool                      `json:"is_job_related"`
	Company      *string                    `json:"company"`
	Position     *string                    `json:"position"`
	Stage        *string                    `json:"stage"`
	Confidence   *float64                   `json:"confidence"`
	Evidence     map[string]json.RawMessage `json:"evidence"`
}

// parseModelResponse extracts and validates the verdict from a raw model
// response, which may wrap the JSON object in prose.
func parseModelResponse(raw string) (models.Categorization, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return models.Categorization{}, err
	}

	var v modelVerdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return models.Categorization{}, fmt.Errorf("decode model verdict: %w", err)
	}
	if v.IsJobRelated == nil {
		return models.Categorization{}, errors.New("model verdict missing is_job_related")
	}

	cat := models.Categorization{
		IsJobRelated: *v.IsJobRelated,
		Company:      cleanNullable(v.Company),
		Position:     cleanNullable(v.Position),
		Method:       models.MethodModel,
	}
	if v.Confidence != nil {
		cat.Confidence = min(max(*v.Confidence, 0), 1)
	}
	if v.Stage != nil {
		if stage, ok := models.ParseStage(*v.Stage); ok {
			cat.Stage = stage
		}
	}
	if len(v.Evidence) > 0 {
		cat.Evidence = make(map[string]string, len(v.Evidence))
		for k, rawVal := range v.Evidence {
			var s string
			if json.Unmarshal(rawVal, &s) == nil {
				cat.Evidence[k] = s
			} else {
				cat.Evidence[k] = string(rawVal)
			}
		}
	}
	return cat, nil
}

// cleanNullable treats nil, blank and the literal "null" as unknown.
func cleanNullable(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	if strings.EqualFold(v, "null") {
		return ""
	}
	return v
}

// extractJSONObject returns the first balanced {...} block in s, skipping
// braces inside JSON strings.
func extractJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		if end := matchBrace(s, start); end > 0 {
			return s[start : end+1], nil
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return "", ErrNoJSONObject
}

// matchBrace returns the index of the brace closing the one at open, or -1.
func matchBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
