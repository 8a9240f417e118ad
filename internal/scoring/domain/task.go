// Package domain holds the ICE scoring rules: metric extraction from task
// labels, score derivation, priority tiers and the score prefix codec.
package domain

// Task is the snapshot of a remote task read during a single run.
type Task struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id,omitempty"`
	Content   string   `json:"content"`
	Labels    []string `json:"labels"`
	Priority  int      `json:"priority"`
	URL       string   `json:"url,omitempty"`
}

// TaskUpdate is the write-back payload for a rescored task.
type TaskUpdate struct {
	Content  string       `json:"content"`
	Priority PriorityTier `json:"priority"`
}
