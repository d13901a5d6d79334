package service

import (
	"context"
	"errors"
	"sync"

	"plug_sync/internal/models"
	"plug_sync/internal/reconcile"
	"plug_sync/internal/repository"
)

// fakeEventRepo is a minimal stub that satisfies the repository.EventRepo interface.
type fakeEventRepo struct {
	mu sync.Mutex

	gotFilter repository.EventFilter
	appended  []models.SyncEvent

	events    []models.SyncEvent
	err       error
	appendErr error

	calls int
}

func (f *fakeEventRepo) List(_ context.Context, filter repository.EventFilter) ([]models.SyncEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotFilter = filter
	return f.events, f.err
}

func (f *fakeEventRepo) Append(_ context.Context, e models.SyncEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, e)
	return f.appendErr
}

func (f *fakeEventRepo) appendedEvents() []models.SyncEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.SyncEvent(nil), f.appended...)
}

type stateRepoStub struct {
	loadResp models.PlugState
	loadErr  error
	saveErr  error
	saved    []models.PlugState
}

func (s *stateRepoStub) Load(context.Context) (models.PlugState, error) {
	return s.loadResp, s.loadErr
}

func (s *stateRepoStub) Save(_ context.Context, st models.PlugState) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, st)
	return nil
}

type commandCall struct {
	target string
	state  models.PlugState
}

// callLog records the order of side effects across fakes.
type callLog struct {
	calls []string
}

type fakeCommander struct {
	log  *callLog
	sent []commandCall
	err  error
}

func (f *fakeCommander) SendCommand(target string, state models.PlugState) error {
	if f.log != nil {
		f.log.calls = append(f.log.calls, "publish")
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, commandCall{target: target, state: state})
	return nil
}

type fakeCanceller struct {
	log     *callLog
	pending int
	calls   int
}

func (f *fakeCanceller) CancelPending() int {
	if f.log != nil {
		f.log.calls = append(f.log.calls, "cancel")
	}
	f.calls++
	n := f.pending
	f.pending = 0
	return n
}

type fakeRecorder struct {
	events []models.SyncEvent
}

func (f *fakeRecorder) Record(e models.SyncEvent) { f.events = append(f.events, e) }

type fakeSyncStats struct{ stats reconcile.Stats }

func (f fakeSyncStats) Stats() reconcile.Stats { return f.stats }

type fakeBus struct{ connected bool }

func (f fakeBus) IsConnected() bool { return f.connected }

var errDBDown = errors.New("db down")
