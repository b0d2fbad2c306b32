package web

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	clientBuffer  = 16
	jobIDQueryKey = "job_id"
)

type subscriber struct {
	conn *websocket.Conn
	// jobID filters outcomes when set.
	jobID *int64
	send  chan domain.Outcome
}

func (s *subscriber) wants(outcome domain.Outcome) bool {
	return s.jobID == nil || *s.jobID == outcome.JobID
}

// Hub streams job outcomes to websocket clients.
type Hub struct {
	log      logger.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// Run forwards outcomes to matching clients until outcomes is closed or ctx is done.
// Clients that cannot keep up miss outcomes.
func (h *Hub) Run(ctx context.Context, outcomes <-chan domain.Outcome) {
	for {
		select {
		case <-ctx.Done():
			return
		case outcome, ok := <-outcomes:
			if !ok {
				return
			}
			h.mu.RLock()
			for s := range h.subs {
				if !s.wants(outcome) {
					continue
				}
				select {
				case s.send <- outcome:
				default:
					h.log.Warn("Dropping outcome for slow websocket client", "job_id", outcome.JobID)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeWS upgrades the connection and registers it. An optional job_id query parameter
// restricts the feed to one job.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var filter *int64
	if raw := r.URL.Query().Get(jobIDQueryKey); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job_id must be an integer"})
			return
		}
		filter = &id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade failed", "error", err)
		return
	}

	s := &subscriber{conn: conn, jobID: filter, send: make(chan domain.Outcome, clientBuffer)}
	h.register(s)
	h.log.Info("Client connected via WebSocket", "remoteAddr", conn.RemoteAddr())

	go h.writeLoop(s)

	// Reads only detect the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(s)
	h.log.Info("Client disconnected", "remoteAddr", conn.RemoteAddr())
}

func (h *Hub) writeLoop(s *subscriber) {
	defer s.conn.Close()
	for outcome := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteJSON(outcome); err != nil {
			h.log.Error("Failed to write to websocket", "job_id", outcome.JobID, "error", err)
			return
		}
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) register(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.send)
	}
}
