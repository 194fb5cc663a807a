// Package photocheck archives clock-in photos and scores them for liveness
// after the clock-in has been acknowledged.
package photocheck

import (
	"context"
	"fmt"
	"log"

	"clockwork/internal/attendance"
	"clockwork/internal/cloudinary"
	"clockwork/internal/faceclient"
	"clockwork/internal/queue"
)

// Archiver stores a photo and returns where it lives.
type Archiver interface {
	Archive(ctx context.Context, photo []byte, publicID string) (*cloudinary.UploadResult, error)
}

// LivenessChecker scores a photo by URL.
type LivenessChecker interface {
	Liveness(ctx context.Context, imageURL string) (*faceclient.LivenessResult, error)
}

// SessionGetter loads sessions by id.
type SessionGetter interface {
	GetSession(ctx context.Context, sessionID string) (attendance.Session, error)
}

// Processor handles clock-in events that carry a photo.
type Processor struct {
	sessions SessionGetter
	checks   attendance.PhotoCheckStore
	archiver Archiver
	face     LivenessChecker
}

// NewProcessor creates a processor. archiver may be nil, in which case photos
// are scored without an archive URL.
func NewProcessor(sessions SessionGetter, checks attendance.PhotoCheckStore, archiver Archiver, face LivenessChecker) *Processor {
	return &Processor{sessions: sessions, checks: checks, archiver: archiver, face: face}
}

// Handle processes one message. Messages other than photo clock-ins are ignored.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != queue.TypeClockIn || !msg.HasPhoto {
		return nil
	}
	sess, err := p.sessions.GetSession(ctx, msg.SessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", msg.SessionID, err)
	}
	if !sess.HasPhoto() {
		return nil
	}

	check := attendance.PhotoCheck{SessionID: sess.ID, Status: attendance.PhotoCheckFailed}
	if p.archiver != nil {
		res, err := p.archiver.Archive(ctx, sess.Photo, sess.ID)
		if err != nil {
			return p.fail(ctx, check, fmt.Errorf("archive photo: %w", err))
		}
		check.ArchiveURL = res.SecureURL
	}

	live, err := p.face.Liveness(ctx, check.ArchiveURL)
	if err != nil {
		return p.fail(ctx, check, fmt.Errorf("liveness: %w", err))
	}
	check.Live = live.IsLive
	check.Confidence = live.Confidence
	check.Status = attendance.PhotoCheckProcessed
	return p.checks.SavePhotoCheck(ctx, check)
}

func (p *Processor) fail(ctx context.Context, check attendance.PhotoCheck, cause error) error {
	if err := p.checks.SavePhotoCheck(ctx, check); err != nil {
		log.Printf("photo check %s: record failure: %v", check.SessionID, err)
	}
	return cause
}

// Run handles messages until the channel closes. Failures are logged and the
// loop moves on; there is no redelivery.
func (p *Processor) Run(ctx context.Context, messages <-chan queue.Message) {
	for msg := range messages {
		if err := p.Handle(ctx, msg); err != nil {
			log.Printf("event %s for session %s failed: %v", msg.Type, msg.SessionID, err)
			continue
		}
		if msg.Type == queue.TypeClockIn && msg.HasPhoto {
			log.Printf("session %s photo checked", msg.SessionID)
		}
	}
}
