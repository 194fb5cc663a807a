package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// clockInAttempts bounds the find-then-create loop when concurrent clock-ins race.
const clockInAttempts = 2

// ClockInResult is returned by ClockIn. AlreadyOpen marks the idempotent
// notice: Session is then the existing open session and nothing was written.
type ClockInResult struct {
	Session     Session
	AlreadyOpen bool
}

// Service runs the clock-in/clock-out state machine and the reports built on it.
type Service struct {
	store Store
	users UserResolver
	now   func() time.Time
}

// NewService creates a service backed by a store and an identity provider.
func NewService(store Store, users UserResolver) *Service {
	return &Service{store: store, users: users, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ClockIn opens a session for userID, storing photo verbatim when present.
func (s *Service) ClockIn(ctx context.Context, userID string, photo []byte) (ClockInResult, error) {
	if _, err := s.users.ResolveUser(ctx, userID); err != nil {
		clockIns.WithLabelValues("user_not_found").Inc()
		return ClockInResult{}, err
	}

	var sess Session
	for attempt := 1; ; attempt++ {
		open, err := s.store.FindOpen(ctx, userID)
		if err != nil {
			clockIns.WithLabelValues("error").Inc()
			return ClockInResult{}, err
		}
		if open != nil {
			clockIns.WithLabelValues("already_open").Inc()
			return ClockInResult{Session: *open, AlreadyOpen: true}, nil
		}

		sess, err = s.store.CreateOpen(ctx, Session{
			UserID:  userID,
			ClockIn: s.stamp(),
			Photo:   photo,
		})
		// Lost a race: the next pass returns the winner, or opens anew if
		// the winner was already closed.
		if errors.Is(err, ErrAlreadyOpen) && attempt < clockInAttempts {
			continue
		}
		if err != nil {
			clockIns.WithLabelValues("error").Inc()
			return ClockInResult{}, err
		}
		break
	}

	if err := s.store.SetActivePointer(ctx, userID, sess.ID); err != nil {
		log.Printf("clock-in %s: active pointer not updated for user %s: %v", sess.ID, userID, err)
	}
	clockIns.WithLabelValues("opened").Inc()
	return ClockInResult{Session: sess}, nil
}

// ClockOut closes the user's open session. With no open session it clears
// any stale active pointer and returns ErrNoActiveSession.
func (s *Service) ClockOut(ctx context.Context, userID string) (Session, error) {
	if _, err := s.users.ResolveUser(ctx, userID); err != nil {
		clockOuts.WithLabelValues("user_not_found").Inc()
		return Session{}, err
	}

	open, err := s.store.FindOpen(ctx, userID)
	if err != nil {
		clockOuts.WithLabelValues("error").Inc()
		return Session{}, err
	}

	if open == nil {
		// Repairs a pointer left behind by an earlier partial write.
		s.clearPointer(ctx, userID)
		clockOuts.WithLabelValues("no_active_session").Inc()
		return Session{}, ErrNoActiveSession
	}

	at := s.stamp()
	if at.Before(open.ClockIn) {
		at = open.ClockIn
	}
	closed, err := s.store.Close(ctx, open.ID, at)
	if errors.Is(err, ErrSessionClosed) {
		s.clearPointer(ctx, userID)
		clockOuts.WithLabelValues("no_active_session").Inc()
		return Session{}, ErrNoActiveSession
	}
	if err != nil {
		clockOuts.WithLabelValues("error").Inc()
		return Session{}, err
	}
	s.clearPointer(ctx, userID)
	clockOuts.WithLabelValues("closed").Inc()
	return closed, nil
}

// stamp is the current time at the precision Postgres stores.
func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) clearPointer(ctx context.Context, userID string) {
	if err := s.store.ClearActivePointer(ctx, userID); err != nil {
		log.Printf("clock-out: active pointer not cleared for user %s: %v", userID, err)
	}
}

// GetSession returns a single session by id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, ErrSessionNotFound
	}
	return s.store.Get(ctx, sessionID)
}

// CurrentSession returns the user's open session, or nil when clocked out.
// The log is authoritative; the active pointer is rewritten when it disagrees.
func (s *Service) CurrentSession(ctx context.Context, userID string) (*Session, error) {
	if _, err := s.users.ResolveUser(ctx, userID); err != nil {
		return nil, err
	}
	open, err := s.store.FindOpen(ctx, userID)
	if err != nil {
		return nil, err
	}
	ptr, err := s.store.ActivePointer(ctx, userID)
	if err != nil {
		log.Printf("current session: read pointer for user %s: %v", userID, err)
		return open, nil
	}

	switch {
	case open == nil && ptr != "":
		err = s.store.ClearActivePointer(ctx, userID)
	case open != nil && ptr != open.ID:
		err = s.store.SetActivePointer(ctx, userID, open.ID)
	}
	if err != nil {
		log.Printf("current session: repair pointer for user %s: %v", userID, err)
	}
	return open, nil
}

func (s *Service) resolve(ctx context.Context, userID string) (UserRef, error) {
	ref, err := s.users.ResolveUser(ctx, userID)
	if err != nil {
		return UserRef{}, err
	}
	if ref.ID == "" {
		return UserRef{}, fmt.Errorf("resolve %s: %w", userID, ErrUserNotFound)
	}
	return ref, nil
}
