package attendance

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultWindowSpan is the length of the listing window when no bound is given.
const DefaultWindowSpan = 7 * 24 * time.Hour

// Window is an optional [Start, End] range over session clock-in times.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// Resolve fills missing bounds. The default runs forward from now for
// DefaultWindowSpan; a single supplied bound keeps the other default.
// An inverted result matches no session.
func (w Window) Resolve(now time.Time) (start, end time.Time) {
	start, end = now, now.Add(DefaultWindowSpan)
	if w.Start != nil {
		start = *w.Start
	}
	if w.End != nil {
		end = *w.End
	}
	return start, end
}

// SessionView is a session enriched with its owner's display fields.
type SessionView struct {
	Session
	User     UserRef `json:"user"`
	HasPhoto bool    `json:"has_photo"`
}

// Report is the combined listing and total for a window.
type Report struct {
	Start    time.Time     `json:"start_time"`
	End      time.Time     `json:"end_time"`
	Sessions []SessionView `json:"attendances"`
	Total    Duration      `json:"totalTime"`
}

// ListSessionsWithTotal lists every session (open or closed) in the window
// and the closed-session total for the same window.
func (s *Service) ListSessionsWithTotal(ctx context.Context, userID string, w Window) (Report, error) {
	defer func(begin time.Time) { reportSeconds.Observe(time.Since(begin).Seconds()) }(time.Now())

	start, end := w.Resolve(s.now().UTC())
	ref, err := s.resolve(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	if end.Before(start) {
		return Report{Start: start, End: end, Sessions: []SessionView{}}, nil
	}

	var (
		sessions []Session
		total    Duration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = s.store.ListInWindow(gctx, userID, start, end, false)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.ComputeTotalDuration(gctx, userID, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	views := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, SessionView{Session: sess, User: ref, HasPhoto: sess.HasPhoto()})
	}
	return Report{Start: start, End: end, Sessions: views, Total: total}, nil
}
