// Package telemetry writes published plug commands to InfluxDB as points.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"plug_sync/internal/config"
	"plug_sync/internal/logger"
	"plug_sync/internal/models"
)

var (
	// ErrDisabled is returned by Connect when the sink is switched off in config.
	ErrDisabled = errors.New("telemetry: influxdb disabled in configuration")

	// ErrConnectionFailed is returned when the server cannot be reached at startup.
	ErrConnectionFailed = errors.New("telemetry: influxdb connection failed")
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 100
	defaultFlushInterval  = 10 * time.Second

	// measurement is the InfluxDB measurement every command is written to.
	measurement = "plug_commands"
)

// Sink is a non-blocking, batched InfluxDB writer.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	log      *logger.Logger

	closed bool
	mu     sync.RWMutex
}

// Connect pings the server and opens a batched write API for cfg.Bucket.
func Connect(cfg config.InfluxDBConfig, log *logger.Logger) (*Sink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if log == nil {
		log = logger.Nop()
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(uint(flushInterval.Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	s := &Sink{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		log:      log,
	}
	go s.handleWriteErrors(s.writeAPI.Errors())
	return s, nil
}

func (s *Sink) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		s.log.Warnw("telemetry_write_failed", "err", err)
	}
}

// WriteEvent queues one point for a published command.
func (s *Sink) WriteEvent(event models.SyncEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.writeAPI == nil {
		return
	}
	s.writeAPI.WritePoint(commandPoint(event))
}

// commandPoint maps an event to plug_commands,device_id=..,type=.. state=..,on=..
func commandPoint(event models.SyncEvent) *write.Point {
	return write.NewPoint(
		measurement,
		map[string]string{
			"device_id": event.DeviceID,
			"type":      event.Type,
		},
		map[string]interface{}{
			"state": string(event.State),
			"on":    event.State == models.StateOn,
		},
		event.OccurredAt,
	)
}

// Flush blocks until buffered points are sent. No-op after Close.
func (s *Sink) Flush() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.writeAPI == nil {
		return
	}
	s.writeAPI.Flush()
}

// Close flushes and releases the client. Safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.client == nil {
		return nil
	}
	s.closed = true
	s.writeAPI.Flush()
	s.client.Close()
	return nil
}
