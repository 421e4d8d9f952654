// Package events announces finished tasks to other services.
package events

import (
	"context"
	"time"

	"audio-extractor/internal/task"
)

// Event is published once per job, after its terminal record is stored.
type Event struct {
	TaskID   string      `json:"task_id"`
	Status   task.Status `json:"status"`
	Message  string      `json:"message"`
	Filename string      `json:"filename,omitempty"`
	Size     int64       `json:"size,omitempty"`
	At       time.Time   `json:"at"`
}

// FromRecord builds the event for a terminal record. The artifact bytes are
// never part of an event.
func FromRecord(taskID string, rec task.Record, at time.Time) Event {
	ev := Event{
		TaskID:  taskID,
		Status:  rec.Status,
		Message: rec.Message,
		At:      at.UTC(),
	}
	if rec.Artifact != nil {
		ev.Filename = rec.Artifact.Filename
		ev.Size = rec.Artifact.Size
	}
	return ev
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close(ctx context.Context) error
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close(context.Context) error          { return nil }
