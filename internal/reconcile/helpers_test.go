package reconcile

import (
	"errors"
	"sync"
	"testing"
	"time"

	"plug_sync/internal/models"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sentCommand struct {
	target string
	state  models.PlugState
}

// fakeCommander records commands; err makes every send fail.
type fakeCommander struct {
	mu       sync.Mutex
	sent     []sentCommand
	attempts int
	err      error
}

func (f *fakeCommander) SendCommand(target string, state models.PlugState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentCommand{target: target, state: state})
	return nil
}

func (f *fakeCommander) commands() []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCommand(nil), f.sent...)
}

func (f *fakeCommander) tries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []models.SyncEvent
}

func (r *fakeRecorder) Record(e models.SyncEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *fakeRecorder) recorded() []models.SyncEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SyncEvent(nil), r.events...)
}

// desiredState is a mutable StateSource.
type desiredState struct {
	mu    sync.Mutex
	value models.PlugState
}

func (d *desiredState) Current() models.PlugState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

func (d *desiredState) set(v models.PlugState) {
	d.mu.Lock()
	d.value = v
	d.mu.Unlock()
}

var errBrokerDown = errors.New("broker down")

// waitFor polls cond; fired timers publish on their own goroutine.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
