package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
	"github.com/gorilla/mux"
)

const healthTimeout = 2 * time.Second

// JobQueue is the queue surface the handlers need.
type JobQueue interface {
	Admit(ctx context.Context, job domain.Job) (domain.EntryID, error)
	ListPendingIDs(ctx context.Context) ([]int64, error)
	Count(ctx context.Context) (int, error)
	Remove(ctx context.Context, jobID int64) error
	Clear(ctx context.Context) error
}

// Recorder receives request and queue metrics.
type Recorder interface {
	JobAdmitted()
	JobRejected(reason string)
	JobRemoved()
	QueueCleared()
	RecordHTTP(method, path string, status int, duration time.Duration)
	IncInFlight()
	DecInFlight()
}

// Pinger checks the store connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProcessorState reports whether the job processor is consuming.
type ProcessorState interface {
	Active() bool
}

type handlers struct {
	queue     JobQueue
	rec       Recorder
	store     Pinger
	processor ProcessorState
	log       logger.Logger
}

type startRequest struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

type startResponse struct {
	EntryID domain.EntryID `json:"entry_id"`
	JobID   int64          `json:"job_id"`
	Status  string         `json:"status"`
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.reject(w, fmt.Errorf("%w: invalid request body", domain.ErrInvalidJob))
		return
	}
	if req.ID == nil {
		h.reject(w, fmt.Errorf("%w: id is required", domain.ErrInvalidJob))
		return
	}

	job := domain.Job{ID: *req.ID, Name: req.Name}
	entryID, err := h.queue.Admit(r.Context(), job)
	if err != nil {
		h.reject(w, err)
		return
	}
	h.rec.JobAdmitted()
	writeJSON(w, http.StatusOK, startResponse{EntryID: entryID, JobID: job.ID, Status: "queued"})
}

func (h *handlers) queued(w http.ResponseWriter, r *http.Request) {
	ids, err := h.queue.ListPendingIDs(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *handlers) count(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.Count(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *handlers) remove(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(mux.Vars(r)["job_id"], 10, 64)
	if err != nil {
		h.reject(w, fmt.Errorf("%w: job_id must be an integer", domain.ErrInvalidJob))
		return
	}
	if err := h.queue.Remove(r.Context(), jobID); err != nil {
		h.reject(w, err)
		return
	}
	h.rec.JobRemoved()
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Clear(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.rec.QueueCleared()
	w.WriteHeader(http.StatusOK)
}

type healthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Processor string `json:"processor"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "UP", Store: "UP", Processor: "DISABLED"}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("store health check failed", "error", err)
		resp.Store, resp.Status = "DOWN", "DOWN"
	}
	if h.processor != nil {
		resp.Processor = "UP"
		if !h.processor.Active() {
			resp.Processor, resp.Status = "DOWN", "DOWN"
		}
	}

	status := http.StatusOK
	if resp.Status != "UP" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// reject answers a refused operation. Store failures go through fail.
func (h *handlers) reject(w http.ResponseWriter, err error) {
	if StatusFor(err) >= http.StatusInternalServerError && !errors.Is(err, domain.ErrAppendFailed) {
		h.log.Error("queue operation failed", "error", err)
	}
	h.rec.JobRejected(rejectReason(err))
	writeError(w, err)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("queue operation failed", "request_id", RequestID(r.Context()), "path", r.URL.Path, "error", err)
	writeError(w, err)
}
