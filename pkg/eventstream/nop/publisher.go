package nop

import (
	"context"

	"github.com/papercomputeco/memorypalace/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishStage validates input and otherwise does nothing.
func (p *Publisher) PublishStage(_ context.Context, event *eventstream.StageEvent) error {
	if event == nil {
		return eventstream.ErrNilStageEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
