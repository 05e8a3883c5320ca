package events

import (
	"context"
	"log/slog"
	"sync"
)

// MockEventPublisher records events in memory for tests.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []*Event
	logger *slog.Logger
}

func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{logger: logger}
}

func (m *MockEventPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)
	m.logger.Debug("Mock event published",
		"event_id", event.ID,
		"event_type", event.Type,
		"topic", topic)

	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

func (m *MockEventPublisher) GetPublishedEvents() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MockEventPublisher) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = nil
}
