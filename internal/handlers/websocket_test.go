package handlers

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"plug_sync/internal/models"
	"plug_sync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialStream(t *testing.T, s *service.Service, query string) *websocket.Conn {
	t.Helper()
	r := gin.New()
	r.GET("/ws", NewHandler(s, nil).wsConnect)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = query

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var f wsFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func TestParseStreamOptions(t *testing.T) {
	cases := []struct {
		name       string
		query      string
		wantEvery  time.Duration
		wantEvents bool
	}{
		{"defaults", "", 1 * time.Second, true},
		{"interval_duration", "interval=200ms", 200 * time.Millisecond, true},
		{"interval_bare_millis", "interval=150", 150 * time.Millisecond, true},
		{"interval_ms", "interval_ms=150", 150 * time.Millisecond, true},
		{"interval_ms_rejects_units", "interval_ms=2s", 1 * time.Second, true},
		{"interval_too_large", "interval=20s", 1 * time.Second, true},
		{"interval_ms_too_large", "interval_ms=20000", 1 * time.Second, true},
		{"interval_negative", "interval=-1s", 1 * time.Second, true},
		{"interval_invalid", "interval=bogus", 1 * time.Second, true},
		{"interval_wins", "interval=2s&interval_ms=150", 2 * time.Second, true},
		{"invalid_interval_falls_back", "interval=bogus&interval_ms=250", 250 * time.Millisecond, true},
		{"events_off", "events=false", 1 * time.Second, false},
		{"events_invalid_keeps_default", "events=maybe", 1 * time.Second, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := url.ParseQuery(tc.query)
			if err != nil {
				t.Fatal(err)
			}
			got := parseStreamOptions(q)
			if got.statusEvery != tc.wantEvery || got.events != tc.wantEvents {
				t.Fatalf("got %+v for %q", got, tc.query)
			}
		})
	}
}

// --- websocket integration tests ---

func TestWebSocket_StatusImmediatelyThenPeriodic(t *testing.T) {
	mon := &mockMonitoring{status: models.SyncStatus{
		State:             models.StateOn,
		PendingSyncs:      2,
		SuppressedDevices: 1,
		BusConnected:      true,
	}}
	conn := dialStream(t, &service.Service{Monitoring: mon}, "interval_ms=20")

	f := readFrame(t, conn)
	if f.Type != "status" {
		t.Fatalf("first frame = %s", f.Type)
	}
	var st models.SyncStatus
	if err := json.Unmarshal(f.Data, &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if st.State != models.StateOn || st.PendingSyncs != 2 || st.SuppressedDevices != 1 || !st.BusConnected {
		t.Fatalf("unexpected status: %+v", st)
	}

	if f := readFrame(t, conn); f.Type != "status" {
		t.Fatalf("second frame = %s", f.Type)
	}
}

func TestWebSocket_ClosesWhenInitialStatusFails(t *testing.T) {
	conn := dialStream(t, &service.Service{Monitoring: &mockMonitoring{err: errors.New("boom")}}, "")

	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var f wsFrame
	if err := conn.ReadJSON(&f); err == nil {
		t.Fatalf("expected close, got %+v", f)
	}
}

func TestWebSocket_PushesJournaledEvents(t *testing.T) {
	feed := service.NewEventFeed(nil)
	s := &service.Service{
		Monitoring:  &mockMonitoring{status: models.SyncStatus{State: models.StateOn}},
		EventStream: feed,
	}
	conn := dialStream(t, s, "interval=10s")

	if f := readFrame(t, conn); f.Type != "status" {
		t.Fatalf("first frame = %s", f.Type)
	}
	if feed.Subscribers() != 1 {
		t.Fatalf("subscribers = %d", feed.Subscribers())
	}

	feed.WriteEvent(models.SyncEvent{
		EventID:  "e1",
		Type:     models.EventDriftCorrection,
		DeviceID: "plug1",
		State:    models.StateOn,
	})

	f := readFrame(t, conn)
	if f.Type != "event" {
		t.Fatalf("frame type = %s", f.Type)
	}
	var ev models.SyncEvent
	if err := json.Unmarshal(f.Data, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.EventID != "e1" || ev.DeviceID != "plug1" || ev.Type != models.EventDriftCorrection {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestWebSocket_EventsOptOut(t *testing.T) {
	feed := service.NewEventFeed(nil)
	s := &service.Service{
		Monitoring:  &mockMonitoring{status: models.SyncStatus{State: models.StateOff}},
		EventStream: feed,
	}
	conn := dialStream(t, s, "events=false&interval=10s")

	if f := readFrame(t, conn); f.Type != "status" {
		t.Fatalf("first frame = %s", f.Type)
	}
	if feed.Subscribers() != 0 {
		t.Fatalf("subscribers = %d, want 0", feed.Subscribers())
	}
}

func TestWebSocket_UnsubscribesOnDisconnect(t *testing.T) {
	feed := service.NewEventFeed(nil)
	s := &service.Service{
		Monitoring:  &mockMonitoring{},
		EventStream: feed,
	}
	conn := dialStream(t, s, "interval=10s")
	readFrame(t, conn)

	_ = conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for feed.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber still attached after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
