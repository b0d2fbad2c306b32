package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateJob classifies admissions rejected because the job id already has a pending entry.
	ErrDuplicateJob = errors.New("job already queued")
	// ErrNotQueued classifies removals of a job id that has no pending entry.
	ErrNotQueued = errors.New("job not queued")
	// ErrIsRunning classifies removals that target the head entry.
	ErrIsRunning = errors.New("job is running")
	// ErrAppendFailed is returned when the store accepted an append but assigned no entry id.
	ErrAppendFailed = errors.New("store returned no entry id")
	// ErrGroupExists is returned by Stream.CreateGroup when the consumer group is already there.
	ErrGroupExists = errors.New("consumer group already exists")
	// ErrInterrupted is returned by a Runner whose body was cut short.
	ErrInterrupted = errors.New("job processing interrupted")
	// ErrInvalidJob classifies jobs that cannot be admitted as given.
	ErrInvalidJob = errors.New("invalid job")
)

// JobError ties an error kind to the job id it concerns.
type JobError struct {
	Kind  error
	JobID int64
}

// NewJobError returns a JobError of the given kind.
func NewJobError(kind error, jobID int64) *JobError {
	return &JobError{Kind: kind, JobID: jobID}
}

func (e *JobError) Error() string {
	switch e.Kind {
	case ErrDuplicateJob:
		return fmt.Sprintf("Job with id %d is already queued", e.JobID)
	case ErrNotQueued:
		return fmt.Sprintf("job with id %d is not queued", e.JobID)
	case ErrIsRunning:
		return fmt.Sprintf("job with id %d is running and can't be removed from the queue", e.JobID)
	}
	return fmt.Sprintf("job %d: %v", e.JobID, e.Kind)
}

func (e *JobError) Unwrap() error {
	return e.Kind
}
