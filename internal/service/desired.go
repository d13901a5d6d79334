package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"plug_sync/internal/logger"
	"plug_sync/internal/models"
	"plug_sync/internal/reconcile"
	"plug_sync/internal/repository"
)

var (
	// ErrInvalidState is returned by Set for anything other than ON or OFF.
	ErrInvalidState = errors.New("state must be ON or OFF")

	// ErrPersistFailed wraps a storage failure during Set. Nothing else changed.
	ErrPersistFailed = errors.New("failed to persist desired state")
)

// PendingCanceller drops per-device syncs that a group command supersedes.
type PendingCanceller interface {
	CancelPending() int
}

// DesiredStateService owns the desired state: persisted in SQLite, cached in memory.
type DesiredStateService struct {
	stateRepo repository.StateRepo
	commander reconcile.Commander
	canceller PendingCanceller
	recorder  reconcile.Recorder
	group     string
	clock     clockwork.Clock
	log       *logger.Logger

	writeMu sync.Mutex // serialises Set so storage order equals cache order

	mu      sync.RWMutex
	current models.PlugState
}

func NewDesiredStateService(stateRepo repository.StateRepo, commander reconcile.Commander, canceller PendingCanceller,
	recorder reconcile.Recorder, group string, clk clockwork.Clock, log *logger.Logger) *DesiredStateService {
	if log == nil {
		log = logger.Nop()
	}
	return &DesiredStateService{
		stateRepo: stateRepo,
		commander: commander,
		canceller: canceller,
		recorder:  recorder,
		group:     group,
		clock:     clk,
		log:       log,
		current:   models.DefaultState,
	}
}

// Load fills the cache from storage. Call once at startup.
func (s *DesiredStateService) Load(ctx context.Context) (models.PlugState, error) {
	st, err := s.stateRepo.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load desired state: %w", err)
	}
	s.mu.Lock()
	s.current = st
	s.mu.Unlock()
	return st, nil
}

// Current returns the cached desired state.
func (s *DesiredStateService) Current() models.PlugState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *DesiredStateService) Get(_ context.Context) (models.PlugState, error) {
	return s.Current(), nil
}

// Set persists state, then cancels pending per-device syncs and publishes a
// single group command. If persisting fails nothing else happens. A failed
// group publish is logged; the stored state still stands and devices
// converge through their next reports.
func (s *DesiredStateService) Set(ctx context.Context, state models.PlugState) error {
	if !state.Valid() {
		return ErrInvalidState
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.stateRepo.Save(ctx, state); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	s.mu.Lock()
	s.current = state
	s.mu.Unlock()

	cancelled := 0
	if s.canceller != nil {
		cancelled = s.canceller.CancelPending()
	}

	if err := s.commander.SendCommand(s.group, state); err != nil {
		s.log.Warnw("group_command_failed", "group", s.group, "state", state, "err", err)
	} else if s.recorder != nil {
		s.recorder.Record(models.NewSyncEvent(s.clock.Now(), models.EventGroupCommand, s.group, state,
			fmt.Sprintf("desired state set to %s for group %s", state, s.group)))
	}

	s.log.Infow("desired_state_changed", "state", state, "group", s.group, "cancelled_syncs", cancelled)
	return nil
}
