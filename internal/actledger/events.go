package actledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the ledger on successful mutations.
const (
	EventActivityLogged   = "activity.logged"
	EventActivityVerified = "activity.verified"
	EventActivityDisputed = "activity.disputed"
)

// Event is an observable notification for external audit and indexing
// consumers. Actor is the submitter for logged events, the verifier for
// verified events, and the disputing caller for disputed events.
// SubjectID is set only on logged events.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	LogID     uint64    `json:"log_id"`
	Actor     string    `json:"actor"`
	SubjectID uint64    `json:"subject_id,omitempty"`
}

// EventSink receives ledger events. Publish must not block the caller for
// long; sink failures never fail the originating operation.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// newEvent stamps a fresh event with an id and the current wall time.
func newEvent(eventType string, logID uint64, actor string, subjectID uint64) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		LogID:     logID,
		Actor:     actor,
		SubjectID: subjectID,
	}
}
