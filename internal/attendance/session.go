package attendance

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoActiveSession is returned by ClockOut when the user is not clocked in.
	ErrNoActiveSession = errors.New("no active clock-in record")
	// ErrSessionNotFound is returned for a lookup by id with no match.
	ErrSessionNotFound = errors.New("attendance record not found")
	// ErrAlreadyOpen is returned by a Store when the user already has an open session.
	ErrAlreadyOpen = errors.New("user already has an open session")
	// ErrSessionClosed is returned when closing a session twice.
	ErrSessionClosed = errors.New("session already closed")
)

// Session is one attendance interval. A nil ClockOut means the session is open.
type Session struct {
	ID       string     `json:"id"`
	UserID   string     `json:"user_id"`
	ClockIn  time.Time  `json:"clock_in"`
	ClockOut *time.Time `json:"clock_out,omitempty"`
	Photo    []byte     `json:"-"`

	// photoAttached is set by listings, which load the flag but not the bytes.
	photoAttached bool
}

// Open reports whether the session has not been closed yet.
func (s Session) Open() bool { return s.ClockOut == nil }

// HasPhoto reports whether a photo was attached at clock-in.
func (s Session) HasPhoto() bool { return s.photoAttached || len(s.Photo) > 0 }

// UserRef carries the display fields of a session owner.
type UserRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"username"`
	Email       string `json:"email"`
}

// UserResolver looks up users by id. Implementations return ErrUserNotFound
// (possibly wrapped) when the id is unknown.
type UserResolver interface {
	ResolveUser(ctx context.Context, userID string) (UserRef, error)
}

// Store persists sessions and the per-user active-session pointer.
//
// CreateOpen must be atomic with respect to the open-session check: two
// concurrent calls for the same user yield one session and one ErrAlreadyOpen.
type Store interface {
	CreateOpen(ctx context.Context, s Session) (Session, error)
	FindOpen(ctx context.Context, userID string) (*Session, error)
	Close(ctx context.Context, sessionID string, at time.Time) (Session, error)
	Get(ctx context.Context, sessionID string) (Session, error)
	ListInWindow(ctx context.Context, userID string, start, end time.Time, closedOnly bool) ([]Session, error)

	ActivePointer(ctx context.Context, userID string) (string, error)
	SetActivePointer(ctx context.Context, userID, sessionID string) error
	ClearActivePointer(ctx context.Context, userID string) error
}
