package service

import (
	"context"
	"time"

	"plug_sync/internal/logger"
	"plug_sync/internal/models"
	"plug_sync/internal/repository"
)

const (
	defaultJournalSize  = 256
	journalWriteTimeout = 5 * time.Second
)

// EventSink is an optional secondary destination for journal events.
type EventSink interface {
	WriteEvent(event models.SyncEvent)
}

// Journal takes sync events off the reconciler's hot path: Record never
// blocks, and Run writes queued events to storage and the sink.
type Journal struct {
	queue chan models.SyncEvent
	repo  repository.EventRepo
	sink  EventSink
	log   *logger.Logger
}

// NewJournal returns a journal holding up to size queued events. sink may be nil.
func NewJournal(repo repository.EventRepo, sink EventSink, size int, log *logger.Logger) *Journal {
	if size <= 0 {
		size = defaultJournalSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Journal{
		queue: make(chan models.SyncEvent, size),
		repo:  repo,
		sink:  sink,
		log:   log,
	}
}

// Record queues event, dropping it with a warning when the queue is full.
func (j *Journal) Record(event models.SyncEvent) {
	select {
	case j.queue <- event:
	default:
		j.log.Warnw("journal_full_event_dropped", "event_id", event.EventID, "type", event.Type, "device_id", event.DeviceID)
	}
}

// Run writes events until ctx is cancelled, then drains what is still queued.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			j.drain()
			return
		case ev := <-j.queue:
			j.write(ev)
		}
	}
}

func (j *Journal) drain() {
	for {
		select {
		case ev := <-j.queue:
			j.write(ev)
		default:
			return
		}
	}
}

func (j *Journal) write(ev models.SyncEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	if err := j.repo.Append(ctx, ev); err != nil {
		j.log.Warnw("journal_append_failed", "event_id", ev.EventID, "err", err)
	}
	if j.sink != nil {
		j.sink.WriteEvent(ev)
	}
}
