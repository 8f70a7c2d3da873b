package core

import "sync"

// EventType names what changed.
type EventType string

const (
	// LinkChangedEvent carries a LinkStatus.
	LinkChangedEvent EventType = "LinkChanged"
	// DeviceStateEvent carries a device.Snapshot after a read or an acknowledged write.
	DeviceStateEvent EventType = "DeviceState"
	// ScriptChangedEvent carries the running script name, "" when idle.
	ScriptChangedEvent EventType = "ScriptChanged"
	// SchedulesChangedEvent is published after a cron entry was added or removed.
	SchedulesChangedEvent EventType = "SchedulesChanged"
)

// Event is the envelope for everything published on the bus.
type Event struct {
	Type    EventType
	Payload interface{}
}

// Subscriber receives events for the types it subscribed to.
type Subscriber chan Event

// EventBus fans events out to subscribers. Publishing never blocks: a full
// subscriber misses the event.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[EventType][]Subscriber)}
}

// Subscribe returns a buffered channel receiving events of the given types.
func (eb *EventBus) Subscribe(eventTypes ...EventType) Subscriber {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(Subscriber, 64)
	for _, t := range eventTypes {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}
	return ch
}

// Unsubscribe detaches ch from the given types.
func (eb *EventBus) Unsubscribe(ch Subscriber, eventTypes ...EventType) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, t := range eventTypes {
		subs := eb.subscribers[t]
		for i, sub := range subs {
			if sub == ch {
				eb.subscribers[t] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers event to every subscriber of its type.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subscribers[event.Type] {
		select {
		case sub <- event:
		default:
		}
	}
}
