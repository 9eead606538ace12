package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/memorypalace/pkg/eventstream"
)

// MockPublisher records published stage events.
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.StageEvent

	// FailWith is returned from PublishStage when set.
	FailWith error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (p *MockPublisher) PublishStage(_ context.Context, event *eventstream.StageEvent) error {
	if event == nil {
		return eventstream.ErrNilStageEvent
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)
	return p.FailWith
}

// Events returns the recorded events in publish order.
func (p *MockPublisher) Events() []*eventstream.StageEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.StageEvent(nil), p.events...)
}

func (p *MockPublisher) Close() error {
	return nil
}
