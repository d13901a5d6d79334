package service

import (
	"sync"

	"plug_sync/internal/logger"
	"plug_sync/internal/models"
)

const defaultFeedBuffer = 16

// EventStream lets callers follow sync events live as the journal writes them.
type EventStream interface {
	Subscribe(buffer int) (<-chan models.SyncEvent, func())
}

// EventFeed fans journal events out to live subscribers. A subscriber that
// falls behind misses events; the journal never waits on it.
type EventFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan models.SyncEvent
	log    *logger.Logger
}

func NewEventFeed(log *logger.Logger) *EventFeed {
	if log == nil {
		log = logger.Nop()
	}
	return &EventFeed{subs: make(map[int]chan models.SyncEvent), log: log}
}

// Subscribe registers a subscriber. The returned func unsubscribes and closes
// the channel; calling it more than once is harmless.
func (f *EventFeed) Subscribe(buffer int) (<-chan models.SyncEvent, func()) {
	if buffer <= 0 {
		buffer = defaultFeedBuffer
	}
	ch := make(chan models.SyncEvent, buffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// WriteEvent implements EventSink.
func (f *EventFeed) WriteEvent(event models.SyncEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- event:
		default:
			f.log.Debugw("feed_subscriber_behind", "subscriber", id, "event_id", event.EventID)
		}
	}
}

// Subscribers reports how many subscribers are attached.
func (f *EventFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Sinks writes each event to every non-nil sink, in order.
type Sinks []EventSink

func (s Sinks) WriteEvent(event models.SyncEvent) {
	for _, sink := range s {
		if sink != nil {
			sink.WriteEvent(event)
		}
	}
}
