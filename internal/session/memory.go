package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datales/cubechat/internal/metrics"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	metrics  *metrics.Metrics
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session), metrics: metrics.Default()}
}

func (m *MemoryStore) Create(ctx context.Context) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = clone(sess)
	m.metrics.RecordStorageOperation("create", true)
	m.metrics.SetSessionsActive(int64(len(m.sessions)))
	return sess, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		m.metrics.RecordStorageOperation("get", false)
		return nil, &ErrNotFound{ID: id}
	}
	m.metrics.RecordStorageOperation("get", true)
	return clone(sess), nil
}

func (m *MemoryStore) Save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = clone(sess)
	m.metrics.RecordStorageOperation("save", true)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		m.metrics.RecordStorageOperation("delete", false)
		return &ErrNotFound{ID: id}
	}
	delete(m.sessions, id)
	m.metrics.RecordStorageOperation("delete", true)
	m.metrics.SetSessionsActive(int64(len(m.sessions)))
	return nil
}

func (m *MemoryStore) List(ctx context.Context, opts *ListOptions) ([]*Session, error) {
	if opts == nil {
		opts = &ListOptions{Limit: 100}
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*Session
	for i, id := range ids {
		if i < opts.Offset {
			continue
		}
		if len(out) >= opts.Limit {
			break
		}
		out = append(out, clone(m.sessions[id]))
	}
	return out, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (*StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &StoreStats{TotalSessions: int64(len(m.sessions))}, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*Session)
	return nil
}

func clone(s *Session) *Session {
	c := *s
	c.Turns = append([]Turn(nil), s.Turns...)
	c.FormState = append([]byte(nil), s.FormState...)
	return &c
}
