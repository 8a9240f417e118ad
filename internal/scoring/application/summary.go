package application

import (
	"time"

	"github.com/felixgeelhaar/icesync/internal/scoring/domain"
	"github.com/google/uuid"
)

// Outcome is the per-task result of a run.
type Outcome string

const (
	OutcomeUpdated    Outcome = "updated"
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeIneligible Outcome = "ineligible"
	OutcomeFailed     Outcome = "failed"
	OutcomePlanned    Outcome = "planned"
)

// TaskResult records what happened to one task.
type TaskResult struct {
	TaskID   string              `json:"task_id" yaml:"task_id"`
	Outcome  Outcome             `json:"outcome" yaml:"outcome"`
	Score    domain.Score        `json:"score,omitempty" yaml:"score,omitempty"`
	Priority domain.PriorityTier `json:"priority,omitempty" yaml:"priority,omitempty"`
	Content  string              `json:"content,omitempty" yaml:"content,omitempty"`
	Error    string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunSummary collects the results of one pipeline run.
type RunSummary struct {
	RunID      uuid.UUID    `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
	DryRun     bool         `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Fetched    int          `json:"fetched" yaml:"fetched"`
	FetchError string       `json:"fetch_error,omitempty" yaml:"fetch_error,omitempty"`
	Results    []TaskResult `json:"results" yaml:"results"`
}

func newRunSummary(startedAt time.Time, dryRun bool) *RunSummary {
	return &RunSummary{
		RunID:     uuid.New(),
		StartedAt: startedAt,
		DryRun:    dryRun,
		Results:   []TaskResult{},
	}
}

func (s *RunSummary) add(r TaskResult) {
	s.Results = append(s.Results, r)
}

// Count returns the number of tasks with the given outcome.
func (s *RunSummary) Count(outcome Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Duration returns how long the run took.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Failed reports whether the fetch or any update failed.
func (s *RunSummary) Failed() bool {
	return s.FetchError != "" || s.Count(OutcomeFailed) > 0
}
