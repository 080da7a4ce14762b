package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"onboard/pkg/requestcontext"
)

// Publisher captures structured audit events. It is append-only and uses
// the storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit appends one entry, filling id, actor, and timestamp when absent.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.Actor == "" {
		if actor := requestcontext.ActorID(ctx); actor != "" {
			entry.Actor = actor
		} else {
			entry.Actor = "system"
		}
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}
	return p.store.Append(ctx, entry)
}

// ListBySubject returns the full history for one subject id, oldest
// first, as required for compliance and erasure requests.
func (p *Publisher) ListBySubject(ctx context.Context, subjectID string) ([]Entry, error) {
	return p.store.ListBySubject(ctx, subjectID)
}

// ListBySubjectRange narrows the history to a time window.
func (p *Publisher) ListBySubjectRange(ctx context.Context, subjectID string, from, to time.Time) ([]Entry, error) {
	return p.store.ListBySubjectRange(ctx, subjectID, from, to)
}
