package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"plug_sync/internal/logger"
	"plug_sync/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB

	defaultStatusEvery = 1 * time.Second
	maxStatusEvery     = 10 * time.Second
	eventBuffer        = 32
)

// wsMessage is the frame pushed to stream clients: "status" carries a
// SyncStatus, "event" a SyncEvent.
type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Origins are open, like the CORS policy.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamOptions are taken from the /ws query string.
type streamOptions struct {
	statusEvery time.Duration
	events      bool
}

// parseStreamOptions reads interval (a Go duration or bare milliseconds),
// falling back to interval_ms, and events (bool, default true). Out of range
// or malformed values keep the defaults.
func parseStreamOptions(q url.Values) streamOptions {
	opts := streamOptions{statusEvery: defaultStatusEvery, events: true}

	for _, key := range []string{"interval", "interval_ms"} {
		if d, ok := parseStatusEvery(q.Get(key), key == "interval_ms"); ok {
			opts.statusEvery = d
			break
		}
	}
	if v := q.Get("events"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.events = b
		}
	}
	return opts
}

func parseStatusEvery(raw string, millisOnly bool) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if millisOnly || err != nil {
		ms, aerr := strconv.Atoi(raw)
		if aerr != nil {
			return 0, false
		}
		d = time.Duration(ms) * time.Millisecond
	}
	if d <= 0 || d > maxStatusEvery {
		return 0, false
	}
	return d, true
}

// wsSession owns one upgraded connection. Only the handler goroutine writes
// data frames; watchClose is the only reader.
type wsSession struct {
	conn *websocket.Conn
	log  *logger.Logger
}

func newWSSession(conn *websocket.Conn, log *logger.Logger) *wsSession {
	if log == nil {
		log = logger.Nop()
	}
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &wsSession{conn: conn, log: log}
}

func (s *wsSession) send(kind string, data interface{}) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(wsMessage{Type: kind, Data: data})
}

func (s *wsSession) ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// watchClose discards client frames and closes the returned channel once the
// peer goes away or stops answering pings.
func (s *wsSession) watchClose() <-chan struct{} {
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				s.log.Debugw("ws_read_closed", "err", err)
				return
			}
		}
	}()
	return closed
}

// @Summary      Live sync stream
// @Description  Upgrades to a WebSocket. Pushes {"type":"status","data":SyncStatus} immediately and then every interval, and {"type":"event","data":SyncEvent} whenever a command is journaled.
// @Tags         system
// @Param        interval     query  string   false  "Status interval as a Go duration or milliseconds, max 10s"  example(2s)
// @Param        interval_ms  query  integer  false  "Status interval in milliseconds, max 10000"
// @Param        events       query  boolean  false  "Push sync events (default true)"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	opts := parseStreamOptions(c.Request.URL.Query())

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	sess := newWSSession(conn, h.log)
	ctx := c.Request.Context()

	var events <-chan models.SyncEvent
	if opts.events && h.services.EventStream != nil {
		ch, unsubscribe := h.services.EventStream.Subscribe(eventBuffer)
		defer unsubscribe()
		events = ch
	}

	if err := h.pushStatus(ctx, sess); err != nil {
		sess.log.Infow("ws_initial_status_failed", "err", err)
		return
	}

	status := time.NewTicker(opts.statusEvery)
	defer status.Stop()
	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	closed := sess.watchClose()
	for {
		var err error
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			err = sess.send("event", ev)
		case <-status.C:
			err = h.pushStatus(ctx, sess)
		case <-pinger.C:
			err = sess.ping()
		}
		if err != nil {
			sess.log.Infow("ws_write_failed", "err", err)
			return
		}
	}
}

func (h *Handler) pushStatus(ctx context.Context, sess *wsSession) error {
	st, err := h.services.Monitoring.Status(ctx)
	if err != nil {
		sess.log.Errorw("ws_get_status_failed", "err", err)
		return err
	}
	return sess.send("status", st)
}
