package eventlogger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type sqlEventLogger struct {
	db *sql.DB
}

func NewSqlEventLogger(db *sql.DB) *sqlEventLogger {
	return &sqlEventLogger{
		db: db,
	}
}

func (el *sqlEventLogger) Save(ctx context.Context, e Event) error {
	jsonData, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}
	jsonMetadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding event metadata: %w", err)
	}

	statement := `INSERT INTO debt_events (id, event_type, actor_id, subject_id, event_data, event_metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = el.db.ExecContext(ctx, statement, e.ID, e.Type, e.ActorID, e.SubjectID, jsonData, jsonMetadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// GetBySubject only returns events caused by actorID so one user can't read
// another user's trail.
func (el *sqlEventLogger) GetBySubject(ctx context.Context, actorID, subjectID uuid.UUID) ([]Event, error) {
	query := `SELECT id, event_type, actor_id, subject_id, event_data, event_metadata, created_at
		FROM debt_events
		WHERE actor_id = $1 AND subject_id = $2
		ORDER BY created_at ASC`
	result, err := el.db.QueryContext(ctx, query, actorID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer result.Close()

	events := make([]Event, 0)
	for result.Next() {
		var event Event
		var jsonData, jsonMetadata []byte
		if err := result.Scan(&event.ID, &event.Type, &event.ActorID, &event.SubjectID, &jsonData, &jsonMetadata, &event.CreatedAt); err != nil {
			return events, err
		}
		event.Data = json.RawMessage(jsonData)
		if err := json.Unmarshal(jsonMetadata, &event.Metadata); err != nil {
			return events, fmt.Errorf("decoding event metadata: %w", err)
		}

		events = append(events, event)
	}

	if err := result.Err(); err != nil {
		return events, err
	}

	return events, nil
}
