package jobs

import (
	"context"
	"fmt"
	"slices"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
)

// Admission validates and appends new jobs, refusing ids that are already pending.
type Admission struct {
	stream    domain.Stream
	inspector *Inspector
	key       string
	atomic    bool
	log       logger.Logger
}

// NewAdmission returns an Admission controller. With atomic set and a stream that
// implements domain.UniqueAppender, the duplicate check and the append run as one store step.
func NewAdmission(stream domain.Stream, key string, atomic bool, log logger.Logger) *Admission {
	return &Admission{
		stream:    stream,
		inspector: NewInspector(stream, key),
		key:       key,
		atomic:    atomic,
		log:       log,
	}
}

// Admit appends job to the tail of the queue and returns the assigned entry id.
// It fails with a JobError of kind domain.ErrDuplicateJob when the id is already pending,
// and with domain.ErrAppendFailed when the store assigned no id.
func (a *Admission) Admit(ctx context.Context, job domain.Job) (domain.EntryID, error) {
	var (
		id  domain.EntryID
		err error
	)
	if unique, ok := a.stream.(domain.UniqueAppender); ok && a.atomic {
		id, err = unique.AppendUnique(ctx, a.key, job)
	} else {
		id, err = a.checkAndAppend(ctx, job)
	}
	if err != nil {
		return "", err
	}

	if id == "" {
		a.log.Error("error producing message for job", "job", job.String())
		return "", fmt.Errorf("admit job %d: %w", job.ID, domain.ErrAppendFailed)
	}

	a.log.Info("job was added to the queue", "job", job.String(), "entry_id", id)
	return id, nil
}

func (a *Admission) checkAndAppend(ctx context.Context, job domain.Job) (domain.EntryID, error) {
	pending, err := a.inspector.ListPendingIDs(ctx)
	if err != nil {
		return "", err
	}
	if slices.Contains(pending, job.ID) {
		return "", domain.NewJobError(domain.ErrDuplicateJob, job.ID)
	}

	id, err := a.stream.Append(ctx, a.key, job)
	if err != nil {
		return "", fmt.Errorf("append job %d: %w", job.ID, err)
	}
	return id, nil
}
