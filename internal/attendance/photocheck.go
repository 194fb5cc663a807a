package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Photo check statuses recorded by the worker.
const (
	PhotoCheckProcessed = "processed"
	PhotoCheckFailed    = "failed"
)

// PhotoCheck is the worker's verdict on a clock-in photo. It lives beside the
// session and never modifies it.
type PhotoCheck struct {
	SessionID  string    `json:"session_id"`
	ArchiveURL string    `json:"archive_url,omitempty"`
	Live       bool      `json:"live"`
	Confidence float64   `json:"confidence"`
	Status     string    `json:"status"`
	CheckedAt  time.Time `json:"checked_at"`
}

// PhotoCheckStore persists photo checks, one per session.
type PhotoCheckStore interface {
	SavePhotoCheck(ctx context.Context, pc PhotoCheck) error
	PhotoCheck(ctx context.Context, sessionID string) (*PhotoCheck, error)
}

// SavePhotoCheck upserts the check for its session.
func (r *PostgresStore) SavePhotoCheck(ctx context.Context, pc PhotoCheck) error {
	if pc.CheckedAt.IsZero() {
		pc.CheckedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO photo_checks (session_id, archive_url, live, confidence, status, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET
			archive_url = EXCLUDED.archive_url,
			live = EXCLUDED.live,
			confidence = EXCLUDED.confidence,
			status = EXCLUDED.status,
			checked_at = EXCLUDED.checked_at
	`, pc.SessionID, pc.ArchiveURL, pc.Live, pc.Confidence, pc.Status, pc.CheckedAt)
	if err != nil {
		return fmt.Errorf("save photo check: %w", err)
	}
	return nil
}

// PhotoCheck returns the check for a session, or nil when none was recorded.
func (r *PostgresStore) PhotoCheck(ctx context.Context, sessionID string) (*PhotoCheck, error) {
	var pc PhotoCheck
	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, archive_url, live, confidence, status, checked_at
		FROM photo_checks WHERE session_id = $1
	`, sessionID).Scan(&pc.SessionID, &pc.ArchiveURL, &pc.Live, &pc.Confidence, &pc.Status, &pc.CheckedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get photo check: %w", err)
	}
	return &pc, nil
}

// MemoryPhotoChecks is an in-memory PhotoCheckStore.
type MemoryPhotoChecks struct {
	mu     sync.Mutex
	checks map[string]PhotoCheck
}

// NewMemoryPhotoChecks creates an empty store.
func NewMemoryPhotoChecks() *MemoryPhotoChecks {
	return &MemoryPhotoChecks{checks: make(map[string]PhotoCheck)}
}

func (m *MemoryPhotoChecks) SavePhotoCheck(_ context.Context, pc PhotoCheck) error {
	if pc.CheckedAt.IsZero() {
		pc.CheckedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[pc.SessionID] = pc
	return nil
}

func (m *MemoryPhotoChecks) PhotoCheck(_ context.Context, sessionID string) (*PhotoCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.checks[sessionID]
	if !ok {
		return nil, nil
	}
	return &pc, nil
}
