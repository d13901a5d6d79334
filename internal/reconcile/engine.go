// Package reconcile keeps every plug on the bus converged to the desired
// state: it watches device reports, debounces corrections and ignores the
// echoes of its own commands.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"plug_sync/internal/bus"
	"plug_sync/internal/logger"
	"plug_sync/internal/models"
)

// DefaultSweepInterval is how often expired suppression entries are dropped.
const DefaultSweepInterval = 30 * time.Second

// StateSource provides the current desired state.
type StateSource interface {
	Current() models.PlugState
}

// StateFunc adapts a function to StateSource.
type StateFunc func() models.PlugState

// Current calls f.
func (f StateFunc) Current() models.PlugState { return f() }

// Config tunes the engine.
type Config struct {
	Topics         bus.Topics
	Group          string
	Debounce       time.Duration
	CommandTimeout time.Duration
}

// Stats is a point-in-time view of the engine's collections.
type Stats struct {
	PendingSyncs      int
	SuppressedDevices int
}

// Engine owns the suppressor and the scheduler. One mutex covers reports,
// timer fires, cancellation and sweeps.
type Engine struct {
	mu sync.Mutex

	topics     bus.Topics
	group      string
	state      StateSource
	clock      clockwork.Clock
	suppressor *Suppressor
	scheduler  *Scheduler
	log        *logger.Logger
}

// NewEngine builds an engine. recorder and log may be nil.
func NewEngine(cfg Config, state StateSource, commander Commander, clk clockwork.Clock,
	recorder Recorder, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Topics.Base == "" {
		cfg.Topics = bus.NewTopics("")
	}

	e := &Engine{
		topics: cfg.Topics,
		group:  cfg.Group,
		state:  state,
		clock:  clk,
		log:    log,
	}
	e.suppressor = NewSuppressor(clk, cfg.CommandTimeout)
	e.scheduler = NewScheduler(&e.mu, clk, cfg.Debounce, commander, e.suppressor, recorder, log)
	return e
}

// HandleMessage is the bus handler for <base>/+ reports. Noise (foreign or
// group topics, unparsable payloads) is dropped with a debug log; it never
// returns an error for it.
func (e *Engine) HandleMessage(topic string, payload []byte) error {
	deviceID := e.topics.DeviceID(topic)
	if deviceID == "" || deviceID == e.group {
		e.log.Debugw("device_report_discarded", "topic", topic, "reason", "not a device topic")
		return nil
	}

	report, err := models.ParseDeviceReport(deviceID, payload)
	if err != nil {
		e.log.Debugw("device_report_discarded", "topic", topic, "reason", "malformed payload", "err", err)
		return nil
	}

	e.HandleReport(report)
	return nil
}

// HandleReport applies one parsed device report.
func (e *Engine) HandleReport(report models.DeviceReport) {
	e.mu.Lock()
	defer e.mu.Unlock()

	desired := e.state.Current()
	id := report.DeviceID

	switch {
	case report.HasState():
		if e.suppressor.IsSuppressed(id) {
			e.log.Debugw("device_report_suppressed", "device_id", id, "state", report.State)
			return
		}
		if report.State == desired {
			return
		}
		e.scheduler.Schedule(id, desired, models.EventDriftCorrection)
	case report.Online():
		e.scheduler.Schedule(id, desired, models.EventOnlineSync)
	}
}

// CancelPending drops every pending per-device sync. Called when a group
// command supersedes them.
func (e *Engine) CancelPending() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.scheduler.CancelAll()
	if n > 0 {
		e.log.Infow("pending_syncs_cancelled", "count", n)
	}
	return n
}

// Sweep drops expired suppression entries.
func (e *Engine) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suppressor.Sweep()
}

// Stats returns pending and currently suppressed counts.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		PendingSyncs:      e.scheduler.Len(),
		SuppressedDevices: e.suppressor.Active(),
	}
}

// Run sweeps the suppressor every interval until ctx is cancelled, then
// cancels whatever is still pending.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.CancelPending()
			return
		case <-ticker.Chan():
			if n := e.Sweep(); n > 0 {
				e.log.Debugw("suppressions_swept", "count", n)
			}
		}
	}
}
