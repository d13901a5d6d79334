package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"plug_sync/internal/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type desiredFixture struct {
	repo   *stateRepoStub
	cmd    *fakeCommander
	cancel *fakeCanceller
	rec    *fakeRecorder
	calls  *callLog
	svc    *DesiredStateService
}

func newDesiredFixture() *desiredFixture {
	calls := &callLog{}
	f := &desiredFixture{
		repo:   &stateRepoStub{loadResp: models.StateOff},
		cmd:    &fakeCommander{log: calls},
		cancel: &fakeCanceller{log: calls, pending: 2},
		rec:    &fakeRecorder{},
		calls:  calls,
	}
	f.svc = NewDesiredStateService(f.repo, f.cmd, f.cancel, f.rec, "all_plugs", clockwork.NewFakeClockAt(testNow), nil)
	return f
}

func TestDesiredStateService_LoadFillsCache(t *testing.T) {
	f := newDesiredFixture()
	if got := f.svc.Current(); got != models.DefaultState {
		t.Fatalf("Current before Load = %q, want default", got)
	}

	f.repo.loadResp = models.StateOn
	got, err := f.svc.Load(context.Background())
	if err != nil || got != models.StateOn {
		t.Fatalf("Load = %q, %v", got, err)
	}
	if cur, _ := f.svc.Get(context.Background()); cur != models.StateOn {
		t.Fatalf("Get after Load = %q", cur)
	}
}

func TestDesiredStateService_LoadError(t *testing.T) {
	f := newDesiredFixture()
	f.repo.loadErr = errDBDown
	if _, err := f.svc.Load(context.Background()); !errors.Is(err, errDBDown) {
		t.Fatalf("Load err = %v", err)
	}
}

func TestDesiredStateService_Set(t *testing.T) {
	f := newDesiredFixture()

	if err := f.svc.Set(context.Background(), models.StateOn); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	if len(f.repo.saved) != 1 || f.repo.saved[0] != models.StateOn {
		t.Fatalf("saved = %v", f.repo.saved)
	}
	if f.svc.Current() != models.StateOn {
		t.Fatalf("cache not updated")
	}
	if len(f.cmd.sent) != 1 || f.cmd.sent[0] != (commandCall{target: "all_plugs", state: models.StateOn}) {
		t.Fatalf("sent = %+v, want one group command", f.cmd.sent)
	}
	if f.cancel.calls != 1 {
		t.Fatalf("CancelPending calls = %d", f.cancel.calls)
	}
	if len(f.calls.calls) != 2 || f.calls.calls[0] != "cancel" || f.calls.calls[1] != "publish" {
		t.Fatalf("side effect order = %v, want [cancel publish]", f.calls.calls)
	}

	if len(f.rec.events) != 1 {
		t.Fatalf("recorded %d events", len(f.rec.events))
	}
	ev := f.rec.events[0]
	if ev.Type != models.EventGroupCommand || ev.DeviceID != "all_plugs" || ev.State != models.StateOn || !ev.OccurredAt.Equal(testNow) {
		t.Fatalf("event = %+v", ev)
	}
}

func TestDesiredStateService_SetInvalid(t *testing.T) {
	f := newDesiredFixture()

	for _, s := range []models.PlugState{"", "purple", "on"} {
		if err := f.svc.Set(context.Background(), s); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("Set(%q) err = %v, want ErrInvalidState", s, err)
		}
	}
	if len(f.repo.saved) != 0 || len(f.cmd.sent) != 0 || f.cancel.calls != 0 {
		t.Fatalf("invalid Set had side effects: saved=%v sent=%v cancels=%d", f.repo.saved, f.cmd.sent, f.cancel.calls)
	}
}

func TestDesiredStateService_SetPersistFailure(t *testing.T) {
	f := newDesiredFixture()
	f.repo.saveErr = errDBDown

	err := f.svc.Set(context.Background(), models.StateOn)
	if !errors.Is(err, ErrPersistFailed) || !errors.Is(err, errDBDown) {
		t.Fatalf("err = %v, want ErrPersistFailed wrapping cause", err)
	}
	if f.svc.Current() != models.StateOff {
		t.Fatalf("cache changed on persistence failure")
	}
	if len(f.cmd.sent) != 0 || f.cancel.calls != 0 || len(f.rec.events) != 0 {
		t.Fatalf("side effects after persistence failure")
	}
}

func TestDesiredStateService_SetPublishFailure(t *testing.T) {
	f := newDesiredFixture()
	f.cmd.err = errors.New("not connected")

	if err := f.svc.Set(context.Background(), models.StateOn); err != nil {
		t.Fatalf("Set error = %v; publish failures are logged only", err)
	}
	if f.svc.Current() != models.StateOn || len(f.repo.saved) != 1 {
		t.Fatalf("state not applied")
	}
	if f.cancel.calls != 1 {
		t.Fatalf("pending syncs not cancelled")
	}
	if len(f.rec.events) != 0 {
		t.Fatalf("unpublished group command recorded")
	}
}
