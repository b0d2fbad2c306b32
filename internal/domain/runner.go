package domain

import (
	"context"
	"fmt"
	"time"
)

// Job is the unit of work admitted to the queue.
// Its identity is ID, which the caller assigns. A job is immutable once admitted.
type Job struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// String renders the job the way it shows up in logs.
func (j Job) String() string {
	return fmt.Sprintf("{ id=%d, name=%q }", j.ID, j.Name)
}

// Runner executes the body of a job.
// Implementations must return promptly once ctx is cancelled, wrapping ErrInterrupted.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// OutcomeStatus is the terminal state of one processing attempt.
type OutcomeStatus string

const (
	// OutcomeCompleted means the body finished and the entry was acknowledged and deleted.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeFailed means the body returned an error. The entry is still removed; there is no retry.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeInterrupted means the body could not confirm completion. The entry is left pending.
	OutcomeInterrupted OutcomeStatus = "interrupted"
)

// Outcome reports what happened to one delivered entry.
type Outcome struct {
	JobID    int64         `json:"job_id"`
	Name     string        `json:"name"`
	EntryID  EntryID       `json:"entry_id"`
	Status   OutcomeStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}
