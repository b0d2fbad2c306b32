package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dontdude/jobstream/internal/domain"
)

// MemoryStream implements domain.Stream and domain.OutcomeBus inside the process.
// It mirrors the Redis Streams semantics the queue relies on: monotonically increasing
// "<millis>-<seq>" ids, consumer groups with a last-delivered cursor and a pending list,
// and pending references that outlive deleted entries.
type MemoryStream struct {
	mu      sync.Mutex
	now     func() time.Time
	streams map[string]*memStream
	subs    map[chan domain.Outcome]struct{}
}

type memStream struct {
	entries []domain.Entry
	lastMS  uint64
	lastSeq uint64
	groups  map[string]*memGroup
	// notify is closed and replaced on every append to wake blocked readers.
	notify chan struct{}
}

type memGroup struct {
	lastDelivered domain.EntryID
	pending       []memPending
}

type memPending struct {
	id       domain.EntryID
	consumer string
}

var (
	_ domain.Stream         = (*MemoryStream)(nil)
	_ domain.UniqueAppender = (*MemoryStream)(nil)
	_ domain.OutcomeBus     = (*MemoryStream)(nil)
)

// NewMemoryStream returns an empty in-memory stream store.
func NewMemoryStream() *MemoryStream {
	return &MemoryStream{
		now:     time.Now,
		streams: make(map[string]*memStream),
		subs:    make(map[chan domain.Outcome]struct{}),
	}
}

func (m *MemoryStream) stream(key string) *memStream {
	s, ok := m.streams[key]
	if !ok {
		s = &memStream{groups: make(map[string]*memGroup), notify: make(chan struct{})}
		m.streams[key] = s
	}
	return s
}

// append must be called with mu held.
func (m *MemoryStream) append(key string, job domain.Job) domain.EntryID {
	s := m.stream(key)
	ms := uint64(m.now().UnixMilli())
	seq := uint64(0)
	if ms <= s.lastMS {
		ms, seq = s.lastMS, s.lastSeq+1
	}
	s.lastMS, s.lastSeq = ms, seq

	id := domain.NewEntryID(ms, seq)
	s.entries = append(s.entries, domain.Entry{ID: id, Job: job})
	close(s.notify)
	s.notify = make(chan struct{})
	return id
}

func (m *MemoryStream) Append(ctx context.Context, key string, job domain.Job) (domain.EntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.append(key, job), nil
}

// AppendUnique checks for a pending entry of job.ID and appends under one lock.
func (m *MemoryStream) AppendUnique(ctx context.Context, key string, job domain.Job) (domain.EntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streams[key]; ok {
		for _, entry := range s.entries {
			if entry.Job.ID == job.ID {
				return "", domain.NewJobError(domain.ErrDuplicateJob, job.ID)
			}
		}
	}
	return m.append(key, job), nil
}

func (m *MemoryStream) ReadAll(ctx context.Context, key string) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[key]
	if !ok {
		return nil, nil
	}
	out := make([]domain.Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (m *MemoryStream) Delete(ctx context.Context, key string, id domain.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[key]
	if !ok {
		return nil
	}
	for i, entry := range s.entries {
		if entry.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStream) Trim(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streams[key]; ok {
		s.entries = nil
	}
	return nil
}

func (m *MemoryStream) CreateGroup(ctx context.Context, key, group string, fromLatest, mkStream bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[key]
	if !ok {
		if !mkStream {
			return errors.New("ERR The XGROUP subcommand requires the key to exist")
		}
		s = m.stream(key)
	}
	if _, exists := s.groups[group]; exists {
		return domain.ErrGroupExists
	}
	start := domain.EntryID("0-0")
	if fromLatest {
		start = domain.NewEntryID(s.lastMS, s.lastSeq)
	}
	s.groups[group] = &memGroup{lastDelivered: start}
	return nil
}

func (m *MemoryStream) Acknowledge(ctx context.Context, key, group string, id domain.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.group(key, group)
	if err != nil {
		return err
	}
	for i, p := range g.pending {
		if p.id == id {
			g.pending = append(g.pending[:i], g.pending[i+1:]...)
			break
		}
	}
	return nil
}

// group must be called with mu held.
func (m *MemoryStream) group(key, group string) (*memGroup, error) {
	s, ok := m.streams[key]
	if !ok {
		return nil, fmt.Errorf("NOGROUP no such key %q or consumer group %q", key, group)
	}
	g, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("NOGROUP no such key %q or consumer group %q", key, group)
	}
	return g, nil
}

// ReadGroup claims at most one entry. New-entry reads wait up to block for an append;
// a block of zero or less returns immediately.
func (m *MemoryStream) ReadGroup(ctx context.Context, key, group, consumer string, pending bool, block time.Duration) ([]domain.Entry, error) {
	if pending {
		return m.readPending(key, group, consumer)
	}

	var deadline <-chan time.Time
	if block > 0 {
		timer := time.NewTimer(block)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		m.mu.Lock()
		g, err := m.group(key, group)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		s := m.streams[key]
		for _, entry := range s.entries {
			if entry.ID.Compare(g.lastDelivered) > 0 {
				g.lastDelivered = entry.ID
				g.pending = append(g.pending, memPending{id: entry.ID, consumer: consumer})
				m.mu.Unlock()
				return []domain.Entry{entry}, nil
			}
		}
		notify := s.notify
		m.mu.Unlock()

		if deadline == nil {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-notify:
		}
	}
}

func (m *MemoryStream) readPending(key, group, consumer string) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.group(key, group)
	if err != nil {
		return nil, err
	}
	s := m.streams[key]
	for _, p := range g.pending {
		if p.consumer != consumer {
			continue
		}
		if entry, ok := s.find(p.id); ok {
			return []domain.Entry{entry}, nil
		}
		return []domain.Entry{{ID: p.id, Missing: true}}, nil
	}
	return nil, nil
}

func (s *memStream) find(id domain.EntryID) (domain.Entry, bool) {
	for _, entry := range s.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return domain.Entry{}, false
}

// PendingCount returns how many entries the group has delivered but not acknowledged.
func (m *MemoryStream) PendingCount(key, group string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.group(key, group)
	if err != nil {
		return 0
	}
	return len(g.pending)
}

func (m *MemoryStream) Ping(ctx context.Context) error {
	return nil
}

// Broadcast hands the outcome to every subscriber. Slow subscribers miss outcomes.
func (m *MemoryStream) Broadcast(ctx context.Context, outcome domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- outcome:
		default:
		}
	}
	return nil
}

func (m *MemoryStream) SubscribeOutcomes(ctx context.Context) (<-chan domain.Outcome, error) {
	ch := make(chan domain.Outcome, 16)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}
