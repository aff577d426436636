package eventlogger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one entry of the audit trail. ActorID is the user who caused it and
// SubjectID the entity it is about (a debt, or the user itself).
type Event struct {
	ID        uuid.UUID         `json:"id,omitempty"`
	Type      string            `json:"event_type,omitempty"`
	ActorID   uuid.UUID         `json:"actor_id"`
	SubjectID uuid.UUID         `json:"subject_id"`
	Data      any               `json:"event_data,omitempty"`
	Metadata  map[string]string `json:"event_metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type EventOption func(*Event)

func WithType(eventType string) EventOption {
	return func(e *Event) {
		e.Type = eventType
	}
}

func WithActor(id uuid.UUID) EventOption {
	return func(e *Event) {
		e.ActorID = id
	}
}

func WithSubject(id uuid.UUID) EventOption {
	return func(e *Event) {
		e.SubjectID = id
	}
}

func WithData(data any) EventOption {
	return func(e *Event) {
		e.Data = data
	}
}

func WithMetadata(metadata map[string]string) EventOption {
	return func(e *Event) {
		for k, v := range metadata {
			e.Metadata[k] = v
		}
	}
}

func NewEvent(opts ...EventOption) Event {
	e := Event{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Metadata:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

type EventLogger interface {
	Save(ctx context.Context, e Event) error
	// GetBySubject returns the trail of one entity, oldest first.
	GetBySubject(ctx context.Context, actorID, subjectID uuid.UUID) ([]Event, error)
}
