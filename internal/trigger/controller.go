// Package trigger turns bursts of webhook calls into at most one scoring run
// per minimum interval.
package trigger

import (
	"sync"
	"time"
)

// RejectReason explains why a trigger was not admitted.
type RejectReason string

const (
	ReasonAlreadyProcessing RejectReason = "already processing"
	ReasonTooSoon           RejectReason = "too soon"
)

// Admission is the outcome of a trigger.
type Admission struct {
	Admitted bool
	Reason   RejectReason
}

// Admitted is the admission returned for accepted triggers.
var Admitted = Admission{Admitted: true}

// Rejected builds a rejection with the given reason.
func Rejected(reason RejectReason) Admission {
	return Admission{Reason: reason}
}

// String returns "admitted" or the rejection reason.
func (a Admission) String() string {
	if a.Admitted {
		return "admitted"
	}
	return string(a.Reason)
}

// State is a snapshot of the controller.
type State struct {
	Processing      bool      `json:"processing"`
	LastProcessedAt time.Time `json:"last_processed_at,omitempty"`
}

// RunController guards the scoring run. It records when the last run was
// admitted and whether a run is pending or active. Only one run may hold the
// processing flag at a time and admitted runs start at least minInterval apart.
type RunController struct {
	minInterval time.Duration

	mu            sync.Mutex
	lastProcessed time.Time
	processing    bool
}

// NewRunController creates a controller with the given minimum interval.
func NewRunController(minInterval time.Duration) *RunController {
	return &RunController{minInterval: minInterval}
}

// MinInterval returns the configured minimum interval.
func (c *RunController) MinInterval() time.Duration {
	return c.minInterval
}

// TryAdmit admits a run at now, taking the processing flag. The caller must
// call Release exactly once for every admitted run.
func (c *RunController) TryAdmit(now time.Time) Admission {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.processing {
		return Rejected(ReasonAlreadyProcessing)
	}
	if !c.lastProcessed.IsZero() && now.Sub(c.lastProcessed) < c.minInterval {
		return Rejected(ReasonTooSoon)
	}

	c.lastProcessed = now
	c.processing = true
	return Admitted
}

// Release clears the processing flag.
func (c *RunController) Release() {
	c.mu.Lock()
	c.processing = false
	c.mu.Unlock()
}

// State returns a snapshot of the controller.
func (c *RunController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Processing:      c.processing,
		LastProcessedAt: c.lastProcessed,
	}
}
