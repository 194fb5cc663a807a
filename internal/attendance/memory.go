package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded Store for dev and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	open     map[string]string
	pointers map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		open:     make(map[string]string),
		pointers: make(map[string]string),
	}
}

// CreateOpen inserts s as an open session.
func (m *MemoryStore) CreateOpen(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[s.UserID]; ok {
		return Session{}, ErrAlreadyOpen
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.ClockOut = nil
	s.Photo = cloneBytes(s.Photo)
	m.sessions[s.ID] = s
	m.open[s.UserID] = s.ID
	return copySession(s), nil
}

// FindOpen returns the user's open session or nil.
func (m *MemoryStore) FindOpen(_ context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.open[userID]
	if !ok {
		return nil, nil
	}
	s := copySession(m.sessions[id])
	return &s, nil
}

// Close sets the clock-out time of an open session.
func (m *MemoryStore) Close(_ context.Context, sessionID string, at time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if !s.Open() {
		return Session{}, ErrSessionClosed
	}
	s.ClockOut = &at
	m.sessions[sessionID] = s
	delete(m.open, s.UserID)
	return copySession(s), nil
}

// Get returns a session by id.
func (m *MemoryStore) Get(_ context.Context, sessionID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return copySession(s), nil
}

// ListInWindow returns the user's sessions with ClockIn in [start, end],
// without photo bytes.
func (m *MemoryStore) ListInWindow(_ context.Context, userID string, start, end time.Time, closedOnly bool) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Session
	for _, s := range m.sessions {
		if s.UserID != userID || s.ClockIn.Before(start) || s.ClockIn.After(end) {
			continue
		}
		if closedOnly && s.Open() {
			continue
		}
		s.photoAttached, s.Photo = s.HasPhoto(), nil
		res = append(res, copySession(s))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ClockIn.Before(res[j].ClockIn) })
	return res, nil
}

// ActivePointer returns the cached active session id, or "".
func (m *MemoryStore) ActivePointer(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pointers[userID], nil
}

// SetActivePointer caches sessionID as the user's active session.
func (m *MemoryStore) SetActivePointer(_ context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pointers[userID] = sessionID
	return nil
}

// ClearActivePointer drops the cached active session id.
func (m *MemoryStore) ClearActivePointer(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pointers, userID)
	return nil
}

func copySession(s Session) Session {
	if s.ClockOut != nil {
		out := *s.ClockOut
		s.ClockOut = &out
	}
	s.Photo = cloneBytes(s.Photo)
	return s
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
