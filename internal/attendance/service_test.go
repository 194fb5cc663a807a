package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers map[string]UserRef

func (f fakeUsers) ResolveUser(_ context.Context, id string) (UserRef, error) {
	u, ok := f[id]
	if !ok {
		return UserRef{}, ErrUserNotFound
	}
	return u, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// pointerFailStore fails every pointer write.
type pointerFailStore struct {
	*MemoryStore
}

func (p pointerFailStore) SetActivePointer(context.Context, string, string) error {
	return errors.New("pointer write failed")
}

func (p pointerFailStore) ClearActivePointer(context.Context, string) error {
	return errors.New("pointer write failed")
}

// brokenStore fails every read.
type brokenStore struct {
	*MemoryStore
}

var errStore = errors.New("connection refused")

func (b brokenStore) FindOpen(context.Context, string) (*Session, error) { return nil, errStore }

func (b brokenStore) ListInWindow(context.Context, string, time.Time, time.Time, bool) ([]Session, error) {
	return nil, errStore
}

// racingStore reports conflicts on the first creates, as if a concurrent
// clock-in had opened and closed a session in between.
type racingStore struct {
	*MemoryStore
	conflicts int
}

func (r *racingStore) CreateOpen(ctx context.Context, s Session) (Session, error) {
	if r.conflicts > 0 {
		r.conflicts--
		return Session{}, ErrAlreadyOpen
	}
	return r.MemoryStore.CreateOpen(ctx, s)
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *fakeClock) {
	t.Helper()
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	users := fakeUsers{
		"u1": {ID: "u1", DisplayName: "alice", Email: "alice@example.com"},
		"u2": {ID: "u2", DisplayName: "bob", Email: "bob@example.com"},
	}
	return NewService(store, users).WithClock(clock.Now), store, clock
}

func openCount(t *testing.T, store *MemoryStore, userID string) int {
	t.Helper()
	all, err := store.ListInWindow(context.Background(), userID, time.Time{}, time.Now().Add(100*365*24*time.Hour), false)
	require.NoError(t, err)
	n := 0
	for _, s := range all {
		if s.Open() {
			n++
		}
	}
	return n
}

func TestClockInOpensSessionAndSetsPointer(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	res, err := svc.ClockIn(ctx, "u1", nil)
	require.NoError(t, err)
	assert.False(t, res.AlreadyOpen)
	assert.Equal(t, "u1", res.Session.UserID)
	assert.Equal(t, clock.Now(), res.Session.ClockIn)
	assert.True(t, res.Session.Open())

	ptr, err := store.ActivePointer(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, res.Session.ID, ptr)
}

func TestClockInTwiceIsIdempotent(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	first, err := svc.ClockIn(ctx, "u1", nil)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := svc.ClockIn(ctx, "u1", []byte("ignored"))
	require.NoError(t, err)

	assert.True(t, second.AlreadyOpen)
	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, 1, openCount(t, store, "u1"))
}

func TestConcurrentClockInsLeaveOneOpenSession(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	const n = 32
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ClockIn(ctx, "u1", nil)
			assert.NoError(t, err)
			if !res.AlreadyOpen {
				mu.Lock()
				opened++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, openCount(t, store, "u1"))
}

func TestClockInUnknownUser(t *testing.T) {
	svc, store, _ := newTestService(t)

	_, err := svc.ClockIn(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, 0, openCount(t, store, "ghost"))
}

func TestClockOutClosesSession(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	in, err := svc.ClockIn(ctx, "u1", nil)
	require.NoError(t, err)
	clock.Advance(90 * time.Minute)

	out, err := svc.ClockOut(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, in.Session.ID, out.ID)
	require.NotNil(t, out.ClockOut)
	assert.Equal(t, 90*time.Minute, out.ClockOut.Sub(out.ClockIn))

	ptr, err := store.ActivePointer(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ptr)
}

func TestClockOutWithoutSession(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ClockOut(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestClockOutClearsStalePointer(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	in, err := svc.ClockIn(ctx, "u1", nil)
	require.NoError(t, err)
	// Close behind the service's back so the pointer drifts.
	_, err = store.Close(ctx, in.Session.ID, clock.Now().Add(time.Minute))
	require.NoError(t, err)
	ptr, _ := store.ActivePointer(ctx, "u1")
	require.Equal(t, in.Session.ID, ptr)

	_, err = svc.ClockOut(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	ptr, err = store.ActivePointer(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ptr)
}

func TestClockOutNeverBeforeClockIn(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.ClockIn(ctx, "u1", nil)
	require.NoError(t, err)
	clock.Advance(-time.Hour)

	out, err := svc.ClockOut(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, out.ClockOut.Before(out.ClockIn))
}

func TestRoundTripKeepsUserAndPhoto(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	photo := []byte("data:image/jpeg;base64,/9j/4AAQSkZJRg==")

	in, err := svc.ClockIn(ctx, "u2", photo)
	require.NoError(t, err)
	clock.Advance(8 * time.Hour)
	_, err = svc.ClockOut(ctx, "u2")
	require.NoError(t, err)

	got, err := svc.GetSession(ctx, in.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "u2", got.UserID)
	assert.Equal(t, photo, got.Photo)
	require.NotNil(t, got.ClockOut)
	assert.False(t, got.ClockOut.Before(got.ClockIn))
}

func TestGetSessionNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.GetSession(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPointerFailureDoesNotFailClockIn(t *testing.T) {
	mem := NewMemoryStore()
	svc := NewService(pointerFailStore{mem}, fakeUsers{"u1": {ID: "u1"}})
	ctx := context.Background()

	res, err := svc.ClockIn(ctx, "u1", nil)
	require.NoError(t, err)
	assert.False(t, res.AlreadyOpen)

	_, err = svc.ClockOut(ctx, "u1")
	require.NoError(t, err)
	got, err := mem.Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.False(t, got.Open())
}

func TestStoreFailuresPropagate(t *testing.T) {
	svc := NewService(brokenStore{NewMemoryStore()}, fakeUsers{"u1": {ID: "u1"}})
	ctx := context.Background()

	_, err := svc.ClockIn(ctx, "u1", nil)
	assert.ErrorIs(t, err, errStore)
	_, err = svc.ClockOut(ctx, "u1")
	assert.ErrorIs(t, err, errStore)
	_, err = svc.ListSessionsWithTotal(ctx, "u1", Window{})
	assert.ErrorIs(t, err, errStore)
}

func TestCurrentSessionRepairsPointer(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	in, err := svc.ClockIn(ctx, "u1", nil)
	require.NoError(t, err)
	require.NoError(t, store.ClearActivePointer(ctx, "u1"))

	open, err := svc.CurrentSession(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, in.Session.ID, open.ID)
	ptr, _ := store.ActivePointer(ctx, "u1")
	assert.Equal(t, in.Session.ID, ptr)

	require.NoError(t, store.SetActivePointer(ctx, "u2", "bogus"))
	open, err = svc.CurrentSession(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, open)
	ptr, _ = store.ActivePointer(ctx, "u2")
	assert.Empty(t, ptr)
}

func TestSessionCanBeReopenedAfterClose(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.ClockIn(ctx, "u1", nil)
		require.NoError(t, err)
		clock.Advance(time.Hour)
		_, err = svc.ClockOut(ctx, "u1")
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}
	assert.Equal(t, 0, openCount(t, store, "u1"))
}

func TestClockInRetriesAfterLostRace(t *testing.T) {
	mem := NewMemoryStore()
	svc := NewService(&racingStore{MemoryStore: mem, conflicts: 1}, fakeUsers{"u1": {ID: "u1"}})
	ctx := context.Background()

	res, err := svc.ClockIn(ctx, "u1", nil)
	require.NoError(t, err)
	assert.False(t, res.AlreadyOpen)
	assert.NotEmpty(t, res.Session.ID)
	assert.Equal(t, 1, openCount(t, mem, "u1"))
}

func TestClockInNeverReturnsEmptySession(t *testing.T) {
	mem := NewMemoryStore()
	svc := NewService(&racingStore{MemoryStore: mem, conflicts: 2}, fakeUsers{"u1": {ID: "u1"}})

	res, err := svc.ClockIn(context.Background(), "u1", nil)
	assert.ErrorIs(t, err, ErrAlreadyOpen)
	assert.Equal(t, ClockInResult{}, res)
	assert.Equal(t, 0, openCount(t, mem, "u1"))
}

func TestClockTimesUseStoredPrecision(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	clock.Advance(123456789 * time.Nanosecond)

	in, err := svc.ClockIn(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Truncate(time.Microsecond), in.Session.ClockIn)
	assert.Zero(t, in.Session.ClockIn.Nanosecond()%1000)

	clock.Advance(time.Hour + 987*time.Nanosecond)
	out, err := svc.ClockOut(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, out.ClockOut.Nanosecond()%1000)
}
