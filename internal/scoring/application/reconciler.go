// Package application runs the scoring pipeline: fetch tasks, derive ICE
// scores, and write back titles and priorities that changed.
package application

import (
	"github.com/felixgeelhaar/icesync/internal/scoring/domain"
)

// Action is the reconciliation verdict for one task.
type Action string

const (
	ActionNoOp    Action = "noop"
	ActionRewrite Action = "rewrite"
)

// Decision describes what to do with a task given a freshly computed score.
type Decision struct {
	Action Action

	// Existing is the score already encoded in the title; HasExisting is
	// false when the title carries none.
	Existing    domain.Score
	HasExisting bool

	// Content and Priority are only set for ActionRewrite.
	Content  string
	Priority domain.PriorityTier
}

// Update returns the write-back payload for a rewrite decision.
func (d Decision) Update() domain.TaskUpdate {
	return domain.TaskUpdate{Content: d.Content, Priority: d.Priority}
}

// Reconciler compares new scores against the score encoded in task titles.
type Reconciler struct {
	codec *domain.ScoreCodec
}

// NewReconciler creates a reconciler that reads and writes titles with codec.
func NewReconciler(codec *domain.ScoreCodec) *Reconciler {
	return &Reconciler{codec: codec}
}

// Reconcile decides whether task needs rewriting for newScore. A title whose
// encoded score equals newScore is left alone.
func (r *Reconciler) Reconcile(task domain.Task, newScore domain.Score) Decision {
	existing, hasExisting := r.codec.Decode(task.Content)
	d := Decision{
		Action:      ActionNoOp,
		Existing:    existing,
		HasExisting: hasExisting,
	}

	if !newScore.IsValid() {
		return d
	}
	if hasExisting && existing.Equal(newScore) {
		return d
	}

	d.Action = ActionRewrite
	d.Content = r.codec.Encode(newScore, task.Content)
	d.Priority = domain.PriorityTierFor(newScore)
	return d
}
