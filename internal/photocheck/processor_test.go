package photocheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clockwork/internal/attendance"
	"clockwork/internal/cloudinary"
	"clockwork/internal/faceclient"
	"clockwork/internal/queue"
)

type sessions map[string]attendance.Session

func (s sessions) GetSession(_ context.Context, id string) (attendance.Session, error) {
	sess, ok := s[id]
	if !ok {
		return attendance.Session{}, attendance.ErrSessionNotFound
	}
	return sess, nil
}

type fakeArchiver struct {
	err     error
	got     []byte
	gotID   string
	baseURL string
}

func (f *fakeArchiver) Archive(_ context.Context, photo []byte, publicID string) (*cloudinary.UploadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.got, f.gotID = photo, publicID
	return &cloudinary.UploadResult{PublicID: publicID, SecureURL: f.baseURL + publicID}, nil
}

type fakeFace struct {
	gotURL string
	err    error
}

func (f *fakeFace) Liveness(_ context.Context, url string) (*faceclient.LivenessResult, error) {
	f.gotURL = url
	if f.err != nil {
		return nil, f.err
	}
	return &faceclient.LivenessResult{IsLive: true, Confidence: 0.93}, nil
}

func fixture() sessions {
	return sessions{
		"s1": {ID: "s1", UserID: "u1", ClockIn: time.Now(), Photo: []byte("data:image/png;base64,AAAA")},
		"s2": {ID: "s2", UserID: "u1", ClockIn: time.Now()},
	}
}

func TestHandleArchivesAndScores(t *testing.T) {
	ctx := context.Background()
	checks := attendance.NewMemoryPhotoChecks()
	arch := &fakeArchiver{baseURL: "https://cdn.example/"}
	face := &fakeFace{}
	p := NewProcessor(fixture(), checks, arch, face)

	err := p.Handle(ctx, queue.Message{Type: queue.TypeClockIn, SessionID: "s1", HasPhoto: true})
	require.NoError(t, err)

	assert.Equal(t, []byte("data:image/png;base64,AAAA"), arch.got)
	assert.Equal(t, "s1", arch.gotID)
	assert.Equal(t, "https://cdn.example/s1", face.gotURL)

	got, err := checks.PhotoCheck(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, attendance.PhotoCheckProcessed, got.Status)
	assert.True(t, got.Live)
	assert.Equal(t, 0.93, got.Confidence)
	assert.Equal(t, "https://cdn.example/s1", got.ArchiveURL)
}

func TestHandleWithoutArchiver(t *testing.T) {
	ctx := context.Background()
	checks := attendance.NewMemoryPhotoChecks()
	face := &fakeFace{}
	p := NewProcessor(fixture(), checks, nil, face)

	require.NoError(t, p.Handle(ctx, queue.Message{Type: queue.TypeClockIn, SessionID: "s1", HasPhoto: true}))
	got, err := checks.PhotoCheck(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.ArchiveURL)
	assert.Equal(t, attendance.PhotoCheckProcessed, got.Status)
}

func TestHandleIgnoresOtherMessages(t *testing.T) {
	ctx := context.Background()
	checks := attendance.NewMemoryPhotoChecks()
	face := &fakeFace{}
	p := NewProcessor(fixture(), checks, nil, face)

	require.NoError(t, p.Handle(ctx, queue.Message{Type: queue.TypeClockOut, SessionID: "s1"}))
	require.NoError(t, p.Handle(ctx, queue.Message{Type: queue.TypeClockIn, SessionID: "s2"}))
	require.NoError(t, p.Handle(ctx, queue.Message{Type: queue.TypeClockIn, SessionID: "s2", HasPhoto: true}))

	for _, id := range []string{"s1", "s2"} {
		got, err := checks.PhotoCheck(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestHandleRecordsFailures(t *testing.T) {
	ctx := context.Background()
	checks := attendance.NewMemoryPhotoChecks()
	arch := &fakeArchiver{err: errors.New("upload failed")}
	p := NewProcessor(fixture(), checks, arch, &fakeFace{})

	err := p.Handle(ctx, queue.Message{Type: queue.TypeClockIn, SessionID: "s1", HasPhoto: true})
	assert.Error(t, err)
	got, _ := checks.PhotoCheck(ctx, "s1")
	require.NotNil(t, got)
	assert.Equal(t, attendance.PhotoCheckFailed, got.Status)

	p = NewProcessor(fixture(), checks, nil, &fakeFace{err: errors.New("face down")})
	assert.Error(t, p.Handle(ctx, queue.Message{Type: queue.TypeClockIn, SessionID: "s1", HasPhoto: true}))

	err = p.Handle(ctx, queue.Message{Type: queue.TypeClockIn, SessionID: "missing", HasPhoto: true})
	assert.ErrorIs(t, err, attendance.ErrSessionNotFound)
}

func TestRunDrainsChannel(t *testing.T) {
	ctx := context.Background()
	checks := attendance.NewMemoryPhotoChecks()
	p := NewProcessor(fixture(), checks, nil, &fakeFace{})

	msgs := make(chan queue.Message, 2)
	msgs <- queue.Message{Type: queue.TypeClockIn, SessionID: "missing", HasPhoto: true}
	msgs <- queue.Message{Type: queue.TypeClockIn, SessionID: "s1", HasPhoto: true}
	close(msgs)
	p.Run(ctx, msgs)

	got, err := checks.PhotoCheck(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
