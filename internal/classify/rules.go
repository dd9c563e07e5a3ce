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
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jobtrack/ingestion/internal/models"
)

var (
	jobKeywords = []string{
		"application", "applied", "resume", "cover letter", "interview", "screening",
		"technical", "assessment", "offer", "position", "role", "hiring", "recruitment",
		"job", "career", "opportunity", "candidate", "selection", "qualified",
	}

	newsletterKeywords = []string{
		"unsubscribe", "newsletter", "marketing", "promotion", "sale", "discount",
		"weekly digest", "update", "announcement", "blog post",
	}

	rejectionKeywords = []string{
		"rejected", "not selected", "unsuccessful", "moving forward", "selected another candidate",
	}

	offerKeywords = []string{
		"offer", "compensation", "salary", "start date", "employment offer",
	}

	interviewKeywords = []string{
		"interview", "screening call", "technical assessment", "phone screen", "on-site",
	}

	signatureCues = []string{"regards", "sincerely", "best", "thanks"}

	commonPositions = []string{
		"software engineer", "senior software engineer", "junior developer", "full stack developer",
		"frontend developer", "backend developer", "mobile developer", "devops engineer",
		"product manager", "project manager", "program manager", "technical lead",
		"data scientist", "data analyst", "machine learning engineer", "ux designer",
		"ui designer", "product designer", "qa engineer", "systems engineer",
		"solutions architect", "cloud engineer", "security engineer", "platform engineer",
	}

	positionPrefixes = []string{"position:", "role:", "job:"}
)

const (
	nonJobConfidence  = 0.8
	baseJobConfidence = 0.5

	companyScanLines   = 10
	signatureLookAhead = 4
	positionScanLines  = 5
)

// ClassifyRules is the deterministic keyword classifier. It never fails.
func ClassifyRules(text string) models.Categorization {
	lower := strings.ToLower(text)

	jobHit := firstMatch(lower, jobKeywords)
	newsletterHit := firstMatch(lower, newsletterKeywords)
	isJob := jobHit != "" && newsletterHit == ""

	cat := models.Categorization{
		IsJobRelated: isJob,
		Company:      ExtractCompany(text),
		Position:     ExtractPosition(text),
		Confidence:   ruleConfidence(lower, isJob),
		Method:       models.MethodRules,
		Evidence:     map[string]string{},
	}

	switch {
	case newsletterHit != "":
		cat.Evidence["reason"] = "newsletter or marketing content"
		cat.Evidence["newsletter_keyword"] = newsletterHit
	case jobHit == "":
		cat.Evidence["reason"] = "no job-related content detected"
	default:
		cat.Evidence["reason"] = "contains job-related keywords"
		cat.Evidence["job_keyword"] = jobHit
	}

	if isJob {
		stage, hit := inferStage(lower)
		cat.Stage = stage
		if hit != "" {
			cat.Evidence["stage_keyword"] = hit
		}
	}
	return cat
}

// inferStage applies the fixed precedence rejected, offer, interview,
// applied. It returns the stage and the keyword that decided it.
func inferStage(lower string) (models.JobStage, string) {
	if hit := firstMatch(lower, rejectionKeywords); hit != "" {
		return models.StageRejected, hit
	}
	if hit := firstMatch(lower, offerKeywords); hit != "" {
		return models.StageOffer, hit
	}
	if hit := firstMatch(lower, interviewKeywords); hit != "" {
		if strings.Contains(lower, "technical") {
			return models.StageTechnical, hit
		}
		return models.StageScreening, hit
	}
	return models.StageApplied, ""
}

func ruleConfidence(lower string, isJob bool) float64 {
	if !isJob {
		return nonJobConfidence
	}
	c := baseJobConfidence
	if strings.Contains(lower, "application received") || strings.Contains(lower, "thank you for applying") {
		c += 0.3
	}
	if strings.Contains(lower, "interview") {
		c += 0.2
	}
	if strings.Contains(lower, "offer") {
		c += 0.3
	}
	return min(c, 1.0)
}

// ExtractCompany guesses the company from the first email address in the
// opening lines, then from the line after a signature cue. It returns ""
// when nothing plausible is found.
func ExtractCompany(text string) string {
	lines := strings.Split(text, "\n")

	for _, line := range head(lines, companyScanLines) {
		if name := companyFromAddress(strings.TrimSpace(line)); name != "" {
			return name
		}
	}

	for i, line := range lines {
		if firstMatch(strings.ToLower(line), signatureCues) == "" {
			continue
		}
		end := min(i+1+signatureLookAhead, len(lines))
		for _, next := range lines[i+1 : end] {
			next = strings.TrimSpace(next)
			n := utf8.RuneCountInString(next)
			if n <= 3 || n >= 60 {
				continue
			}
			if strings.Contains(next, "@") || strings.Contains(strings.ToLower(next), "http") {
				continue
			}
			return next
		}
	}
	return ""
}

// companyFromAddress takes the domain after "@", drops the top-level
// suffix and keeps the label before it, minus mail-provider noise.
func companyFromAddress(line string) string {
	_, after, ok := strings.Cut(line, "@")
	if !ok {
		return ""
	}
	domain := after
	if i := strings.IndexAny(domain, " <"); i >= 0 {
		domain = domain[:i]
	}
	domain = strings.NewReplacer(">", "", ",", "").Replace(domain)
	if !strings.Contains(domain, ".") {
		return ""
	}

	labels := strings.Split(domain, ".")
	name := labels[len(labels)-2]
	name = strings.ReplaceAll(name, "mail", "")
	name = strings.ReplaceAll(name, "noreply", "")
	name = titleCase(name)
	if utf8.RuneCountInString(name) <= 2 {
		return ""
	}
	return name
}

// ExtractPosition matches a list of common titles, then falls back to a
// "position:", "role:" or "job:" prefix in the opening lines.
func ExtractPosition(text string) string {
	lower := strings.ToLower(text)
	for _, p := range commonPositions {
		if strings.Contains(lower, p) {
			return titleCase(p)
		}
	}

	for _, line := range head(strings.Split(text, "\n"), positionScanLines) {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range positionPrefixes {
			i := indexFold(trimmed, prefix)
			if i < 0 {
				continue
			}
			candidate := strings.TrimSpace(trimmed[i+len(prefix):])
			if n := utf8.RuneCountInString(candidate); n > 5 && n < 100 {
				return candidate
			}
		}
	}
	return ""
}

// indexFold returns the byte offset in s of the first case-insensitive
// match of substr, or -1. Offsets always refer to s itself.
func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

func firstMatch(lower string, keywords []string) string {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return k
		}
	}
	return ""
}

func head(lines []string, n int) []string {
	if len(lines) > n {
		return lines[:n]
	}
	return lines
}

// titleCase upper-cases the first letter of each word and lower-cases the
// rest.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
