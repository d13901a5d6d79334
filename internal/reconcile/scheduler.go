package reconcile

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"plug_sync/internal/logger"
	"plug_sync/internal/models"
)

// DefaultDebounce is the quiet period before a scheduled correction is sent.
const DefaultDebounce = 500 * time.Millisecond

// Commander sends a state command to a device or group.
type Commander interface {
	SendCommand(target string, state models.PlugState) error
}

// Recorder receives an event for every command that was handed to the bus.
// Implementations must not block.
type Recorder interface {
	Record(event models.SyncEvent)
}

type nopRecorder struct{}

func (nopRecorder) Record(models.SyncEvent) {}

// pendingSync is one armed correction.
type pendingSync struct {
	target    models.PlugState
	reason    string
	dueAt     time.Time
	timer     clockwork.Timer
	cancelled chan struct{}
}

func (p *pendingSync) cancel() {
	p.timer.Stop()
	close(p.cancelled)
}

// Scheduler debounces per-device corrections: at most one pending sync per
// device, replaced on every re-trigger.
//
// Schedule, CancelAll and Len must be called with locker held. A fired timer
// acquires locker itself and then checks that its entry is still the pending
// one, so a cancelled or replaced timer never publishes.
type Scheduler struct {
	locker     sync.Locker
	clock      clockwork.Clock
	debounce   time.Duration
	commander  Commander
	suppressor *Suppressor
	recorder   Recorder
	log        *logger.Logger

	pending map[string]*pendingSync
}

// NewScheduler wires a scheduler. A nil recorder discards events; a nil log
// discards logs.
func NewScheduler(locker sync.Locker, clk clockwork.Clock, debounce time.Duration, commander Commander,
	suppressor *Suppressor, recorder Recorder, log *logger.Logger) *Scheduler {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		locker:     locker,
		clock:      clk,
		debounce:   debounce,
		commander:  commander,
		suppressor: suppressor,
		recorder:   recorder,
		log:        log,
		pending:    make(map[string]*pendingSync),
	}
}

// Schedule (re)arms the correction for deviceID to fire after the debounce interval.
func (s *Scheduler) Schedule(deviceID string, target models.PlugState, reason string) {
	if prev, ok := s.pending[deviceID]; ok {
		prev.cancel()
	}

	entry := &pendingSync{
		target:    target,
		reason:    reason,
		dueAt:     s.clock.Now().Add(s.debounce),
		timer:     s.clock.NewTimer(s.debounce),
		cancelled: make(chan struct{}),
	}
	s.pending[deviceID] = entry
	go s.await(deviceID, entry)

	s.log.Debugw("sync_scheduled", "device_id", deviceID, "target", target, "reason", reason, "due_at", entry.dueAt)
}

// await waits for the entry's timer; the fire instant comes from the timer itself.
func (s *Scheduler) await(deviceID string, entry *pendingSync) {
	select {
	case at := <-entry.timer.Chan():
		s.locker.Lock()
		defer s.locker.Unlock()
		s.fire(deviceID, entry, at)
	case <-entry.cancelled:
	}
}

// fire runs with locker held.
func (s *Scheduler) fire(deviceID string, entry *pendingSync, at time.Time) {
	if current, ok := s.pending[deviceID]; !ok || current != entry {
		return
	}
	delete(s.pending, deviceID)

	if err := s.commander.SendCommand(deviceID, entry.target); err != nil {
		s.log.Warnw("sync_publish_failed", "device_id", deviceID, "target", entry.target, "err", err)
		return
	}
	s.suppressor.MarkCommanded(deviceID, at)
	s.recorder.Record(models.NewSyncEvent(at, entry.reason, deviceID, entry.target, describe(entry.reason, deviceID, entry.target)))

	s.log.Infow("sync_published", "device_id", deviceID, "target", entry.target, "reason", entry.reason)
}

// CancelAll stops every pending sync without firing it and returns how many were dropped.
func (s *Scheduler) CancelAll() int {
	n := len(s.pending)
	for id, entry := range s.pending {
		entry.cancel()
		delete(s.pending, id)
	}
	return n
}

// Len is the number of pending syncs.
func (s *Scheduler) Len() int {
	return len(s.pending)
}

func describe(reason, deviceID string, target models.PlugState) string {
	switch reason {
	case models.EventOnlineSync:
		return fmt.Sprintf("device %s came online; set to %s", deviceID, target)
	case models.EventDriftCorrection:
		return fmt.Sprintf("device %s drifted; corrected to %s", deviceID, target)
	default:
		return fmt.Sprintf("device %s set to %s", deviceID, target)
	}
}
