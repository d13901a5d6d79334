package service

import (
	"context"

	"github.com/jonboulle/clockwork"

	"plug_sync/internal/models"
	"plug_sync/internal/reconcile"
	"plug_sync/internal/repository"
)

// Desired reads and changes the process-wide desired plug state.
type Desired interface {
	Get(ctx context.Context) (models.PlugState, error)
	Set(ctx context.Context, state models.PlugState) error
}

// Monitoring exposes a read-only snapshot of the reconciler.
type Monitoring interface {
	Status(ctx context.Context) (models.SyncStatus, error)
}

// EventLog exposes the sync journal with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.SyncEvent, error)
}

type Service struct {
	Desired
	Monitoring
	EventLog
	EventStream
}

// Dependencies are the runtime pieces the services read from besides the repositories.
type Dependencies struct {
	Desired *DesiredStateService
	Sync    SyncStats
	Bus     ConnectionChecker
	Clock   clockwork.Clock
	Feed    *EventFeed
}

// NewService wires the repository layer and runtime dependencies into the services.
func NewService(repos *repository.Repository, deps Dependencies) *Service {
	svc := &Service{
		Desired:    deps.Desired,
		Monitoring: NewMonitoringService(deps.Desired, deps.Sync, deps.Bus, deps.Clock),
		EventLog:   NewEventLogService(repos.EventRepo),
	}
	if deps.Feed != nil {
		svc.EventStream = deps.Feed
	}
	return svc
}

var _ reconcile.StateSource = (*DesiredStateService)(nil)
