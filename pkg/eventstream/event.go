package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/memorypalace/pkg/memory"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeStageCompleted is emitted after a pipeline stage succeeds.
	EventTypeStageCompleted = "palace.stage.completed"

	// EventTypeStageFailed is emitted after a pipeline stage fails.
	EventTypeStageFailed = "palace.stage.failed"
)

// StageEvent is a transport-neutral record of one pipeline stage outcome.
type StageEvent struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	EmittedAt     time.Time    `json:"emitted_at"`
	MemoryID      string       `json:"memory_id,omitempty"`
	Stage         memory.Stage `json:"stage"`

	// Status is the memory's derived status after the stage, when known.
	Status memory.Status `json:"status,omitempty"`

	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// NewStageEvent builds an event for a finished stage. A nil err produces a
// completed event; anything else a failed one.
func NewStageEvent(memoryID string, stage memory.Stage, status memory.Status, elapsed time.Duration, err error) *StageEvent {
	event := &StageEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeStageCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		MemoryID:      memoryID,
		Stage:         stage,
		Status:        status,
		DurationMs:    elapsed.Milliseconds(),
	}
	if err != nil {
		event.EventType = EventTypeStageFailed
		event.Error = err.Error()
	}
	return event
}
