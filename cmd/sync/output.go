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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jobtrack/ingestion/internal/jobstore"
	"github.com/jobtrack/ingestion/internal/models"
	"github.com/jobtrack/ingestion/internal/pipeline"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	colorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	colorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
)

var (
	counterStyle = lipgloss.NewStyle().Foreground(colorGray)
	companyStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorGray).Italic(true)
	summaryStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
)

func outcomeStyle(o pipeline.Outcome) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Width(10)

	switch o {
	case pipeline.OutcomeCreated:
		return base.Foreground(colorGreen)
	case pipeline.OutcomeDryRun:
		return base.Foreground(colorBlue)
	case pipeline.OutcomeFailed:
		return base.Foreground(colorRed)
	default:
		return base.Foreground(colorGray)
	}
}

func stageStyle(s models.JobStage) lipgloss.Style {
	base := lipgloss.NewStyle().Padding(0, 1)

	switch s {
	case models.StageApplied:
		return base.Foreground(colorBlue)
	case models.StageScreening, models.StageTechnical, models.StageFinal:
		return base.Foreground(colorYellow)
	case models.StageOffer:
		return base.Foreground(colorGreen)
	case models.StageRejected:
		return base.Foreground(colorRed)
	case models.StageWithdrawn:
		return base.Foreground(colorMagenta)
	default:
		return base.Foreground(colorGray)
	}
}

func printProgress(p pipeline.Progress) {
	counter := counterStyle.Render(fmt.Sprintf("[%d/%d]", p.Index, p.Total))
	outcome := outcomeStyle(p.Outcome).Render(string(p.Outcome))

	switch {
	case p.Job != nil:
		cat := p.Categorization
		fmt.Println(counter, outcome,
			companyStyle.Render(p.Job.Company),
			p.Job.Position,
			stageStyle(p.Job.Stage).Render(p.Job.Stage.Label()),
			mutedStyle.Render(fmt.Sprintf("%s %.2f", cat.Method, cat.Confidence)),
		)
	case p.Err != nil:
		fmt.Println(counter, outcome, p.Message.Subject, mutedStyle.Render(p.Err.Error()))
	default:
		fmt.Println(counter, outcome, mutedStyle.Render(p.Message.Subject))
	}
}

func printSummary(r *pipeline.Result) {
	fmt.Println(summaryStyle.Render(fmt.Sprintf(
		"Fetched %d, job-related %d, created %d, duplicates %d, errors %d in %s",
		r.Fetched, r.JobRelated, r.Created, r.Duplicates, r.Errors,
		r.Elapsed.Round(time.Millisecond),
	)))
}

func listJobs(ctx context.Context, store jobstore.Store) error {
	jobs, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	company := lipgloss.NewStyle().Bold(true).Width(24)
	position := lipgloss.NewStyle().Width(32)
	for _, j := range jobs {
		fmt.Println(
			counterStyle.Render(j.DateApplied.Format("2006-01-02")),
			company.Render(j.Company),
			position.Render(j.Position),
			stageStyle(j.Stage).Render(j.Stage.Label()),
		)
	}
	fmt.Println(summaryStyle.Render(fmt.Sprintf("%d jobs", len(jobs))))
	return nil
}
