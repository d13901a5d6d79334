package handlers

import (
	"context"
	"sync"
	"time"

	"plug_sync/internal/models"
	"plug_sync/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockDesired struct {
	mu       sync.Mutex
	state    models.PlugState
	getErr   error
	setErr   error
	setCalls int
	lastSet  models.PlugState
}

func (m *mockDesired) Get(ctx context.Context) (models.PlugState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.getErr
}

func (m *mockDesired) Set(ctx context.Context, st models.PlugState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	m.lastSet = st
	if m.setErr != nil {
		return m.setErr
	}
	m.state = st
	return nil
}

func (m *mockDesired) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCalls
}

type mockMonitoring struct {
	status models.SyncStatus
	err    error
}

func (m *mockMonitoring) Status(ctx context.Context) (models.SyncStatus, error) {
	return m.status, m.err
}

type mockEventLog struct {
	resp       []models.SyncEvent
	err        error
	lastFrom   time.Time
	lastTo     time.Time
	lastType   string
	lastDevice string
	calls      int
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.SyncEvent, error) {
	m.calls++
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastDevice = f.DeviceID
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}
