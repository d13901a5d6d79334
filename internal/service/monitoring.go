package service

import (
	"context"

	"github.com/jonboulle/clockwork"

	"plug_sync/internal/models"
	"plug_sync/internal/reconcile"
)

// SyncStats reports the reconciler's pending and suppressed counts.
type SyncStats interface {
	Stats() reconcile.Stats
}

// ConnectionChecker reports whether the device bus is connected.
type ConnectionChecker interface {
	IsConnected() bool
}

type MonitoringService struct {
	state reconcile.StateSource
	sync  SyncStats
	bus   ConnectionChecker
	clock clockwork.Clock
}

func NewMonitoringService(state reconcile.StateSource, sync SyncStats, bus ConnectionChecker, clk clockwork.Clock) *MonitoringService {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &MonitoringService{state: state, sync: sync, bus: bus, clock: clk}
}

// Status returns a snapshot of the desired state and the reconciler.
func (s *MonitoringService) Status(ctx context.Context) (models.SyncStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.SyncStatus{}, err
	}

	status := models.SyncStatus{
		State:     s.state.Current(),
		CheckedAt: s.clock.Now().UTC(),
	}
	if s.sync != nil {
		st := s.sync.Stats()
		status.PendingSyncs = st.PendingSyncs
		status.SuppressedDevices = st.SuppressedDevices
	}
	if s.bus != nil {
		status.BusConnected = s.bus.IsConnected()
	}
	return status, nil
}
