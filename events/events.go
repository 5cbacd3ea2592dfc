// Package events fans committed commission changes out to in-process
// subscribers and to live streams such as the SSE endpoint.
package events

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/commission-engine/commission"
)

// EventType represents the type of event.
type EventType string

const (
	EventCaseChanged     EventType = "case.changed"
	EventRewardChanged   EventType = "reward.changed"
	EventPayoutChanged   EventType = "payout_request.changed"
	EventProfileChanged  EventType = "payee_profile.changed"
	EventSettingsChanged EventType = "settings.changed"
)

// TypeFor maps a change kind to its event type.
func TypeFor(kind commission.ChangeKind) EventType {
	switch kind {
	case commission.ChangeCase:
		return EventCaseChanged
	case commission.ChangeReward:
		return EventRewardChanged
	case commission.ChangePayout:
		return EventPayoutChanged
	case commission.ChangeProfile:
		return EventProfileChanged
	case commission.ChangeSettings:
		return EventSettingsChanged
	}
	return EventType(string(kind) + ".changed")
}

// Event is one published change.
type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Change    commission.Change `json:"change"`
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and live streams.
// It implements commission.Notifier.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	streams  map[int]chan Event
	nextID   int
	enabled  bool
	wg       sync.WaitGroup
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		streams:  make(map[int]chan Event),
		enabled:  enabled,
	}
}

// Subscribe registers a handler for one event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return
	}
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Stream returns a channel receiving every event and a cancel func that
// closes it. A stream that falls more than buffer events behind loses events.
func (m *Manager) Stream(buffer int) (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Event, buffer)
	if !m.enabled {
		close(ch)
		return ch, func() {}
	}

	id := m.nextID
	m.nextID++
	m.streams[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if s, ok := m.streams[id]; ok {
				delete(m.streams, id)
				close(s)
			}
		})
	}
}

// Publish delivers an event to the handlers for its type and to every stream.
// Handlers run on their own goroutines; errors are logged.
func (m *Manager) Publish(ctx context.Context, event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// The request that caused the change may finish before the handler runs.
	hctx := context.WithoutCancel(ctx)
	for _, handler := range m.handlers[event.Type] {
		m.wg.Add(1)
		go func(h Handler) {
			defer m.wg.Done()
			if err := h(hctx, event); err != nil {
				log.Printf("[Events] handler for %s failed: %v", event.Type, err)
			}
		}(handler)
	}

	for id, ch := range m.streams {
		select {
		case ch <- event:
		default:
			log.Printf("[Events] stream %d is full, dropped %s", id, event.Type)
		}
	}
}

// Notify implements commission.Notifier.
func (m *Manager) Notify(ctx context.Context, c commission.Change) {
	m.Publish(ctx, Event{Type: TypeFor(c.Kind), Timestamp: c.At, Change: c})
}

// Shutdown stops delivery, closes all streams and waits for running handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	for id, ch := range m.streams {
		close(ch)
		delete(m.streams, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

var _ commission.Notifier = (*Manager)(nil)
