package attendance

import (
	"context"
	"time"
)

// Duration is worked time split into whole hours, minutes and seconds.
// Sub-second remainders are dropped.
type Duration struct {
	TotalSeconds int64 `json:"totalSeconds"`
	Hours        int64 `json:"hours"`
	Minutes      int64 `json:"minutes"`
	Seconds      int64 `json:"seconds"`
}

// Decompose floors totalMillis to whole seconds and splits it.
func Decompose(totalMillis int64) Duration {
	if totalMillis < 0 {
		totalMillis = 0
	}
	secs := totalMillis / 1000
	return Duration{
		TotalSeconds: secs,
		Hours:        secs / 3600,
		Minutes:      (secs % 3600) / 60,
		Seconds:      secs % 60,
	}
}

// Aggregate sums the closed sessions in milliseconds. Open sessions count as zero.
func Aggregate(sessions []Session) Duration {
	var ms int64
	for _, s := range sessions {
		if s.Open() {
			continue
		}
		ms += s.ClockOut.Sub(s.ClockIn).Milliseconds()
	}
	return Decompose(ms)
}

// ComputeTotalDuration totals the user's closed sessions whose clock-in lies
// in [start, end]. An inverted window totals zero.
func (s *Service) ComputeTotalDuration(ctx context.Context, userID string, start, end time.Time) (Duration, error) {
	if end.Before(start) {
		return Duration{}, nil
	}
	closed, err := s.store.ListInWindow(ctx, userID, start, end, true)
	if err != nil {
		return Duration{}, err
	}
	return Aggregate(closed), nil
}
