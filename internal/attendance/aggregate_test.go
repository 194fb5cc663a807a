package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", "2024-03-04 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func closed(in, out string) Session {
	o := at(out)
	return Session{UserID: "u1", ClockIn: at(in), ClockOut: &o}
}

func TestAggregateSumsClosedSessions(t *testing.T) {
	got := Aggregate([]Session{
		closed("10:00:00", "10:30:00"),
		closed("11:00:00", "11:05:00"),
	})
	assert.Equal(t, Duration{TotalSeconds: 2100, Hours: 0, Minutes: 35, Seconds: 0}, got)
}

func TestAggregateIgnoresOpenSessions(t *testing.T) {
	got := Aggregate([]Session{
		closed("09:00:00", "09:00:45"),
		{UserID: "u1", ClockIn: at("10:00:00")},
	})
	assert.Equal(t, Duration{TotalSeconds: 45, Seconds: 45}, got)
}

func TestAggregateEmptyIsZero(t *testing.T) {
	assert.Equal(t, Duration{}, Aggregate(nil))
}

func TestDecompose(t *testing.T) {
	cases := []struct {
		name string
		ms   int64
		want Duration
	}{
		{"zero", 0, Duration{}},
		{"sub-second dropped", 999, Duration{}},
		{"floors not rounds", 59_999, Duration{TotalSeconds: 59, Seconds: 59}},
		{"one hour one minute one second", 3_661_500, Duration{TotalSeconds: 3661, Hours: 1, Minutes: 1, Seconds: 1}},
		{"over a day", 90_061_000, Duration{TotalSeconds: 90061, Hours: 25, Minutes: 1, Seconds: 1}},
		{"negative clamps", -5000, Duration{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decompose(tc.ms))
		})
	}
}

func TestAggregateSumsMillisecondsBeforeFlooring(t *testing.T) {
	a := closed("10:00:00", "10:00:00")
	b := closed("11:00:00", "11:00:00")
	ao := a.ClockOut.Add(600 * time.Millisecond)
	bo := b.ClockOut.Add(600 * time.Millisecond)
	a.ClockOut, b.ClockOut = &ao, &bo

	assert.Equal(t, Duration{TotalSeconds: 1, Seconds: 1}, Aggregate([]Session{a, b}))
}
