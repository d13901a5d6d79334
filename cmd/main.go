package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plug_sync/internal/bus"
	"plug_sync/internal/config"
	"plug_sync/internal/handlers"
	"plug_sync/internal/logger"
	"plug_sync/internal/models"
	"plug_sync/internal/reconcile"
	"plug_sync/internal/repository"
	"plug_sync/internal/repository/db"
	"plug_sync/internal/server"
	"plug_sync/internal/service"
	"plug_sync/internal/telemetry"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownGrace = 10 * time.Second
	journalSize   = 256
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "plug-sync",
		Short: "Keep a group of zigbee smart plugs on one desired ON/OFF state",
		Long: `plug-sync subscribes to the device bus, corrects plugs that drift away
from the desired state and serves a small HTTP API to read and change it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "path to a config file (default configs/config.yml)")
	flags.StringP("port", "p", "", "HTTP port (overrides http.port)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	_ = v.BindPFlag("http.port", flags.Lookup("port"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	// init logger
	log := logger.GetWithFormat(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	// open DB
	conn, err := openDB(cfg.DB.Path, log)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()
	repos := repository.NewRepository(conn)

	// optional telemetry
	var sink service.EventSink
	influx, err := telemetry.Connect(cfg.InfluxDB, log)
	switch {
	case errors.Is(err, telemetry.ErrDisabled):
		log.Infow("influxdb disabled")
	case err != nil:
		return err
	default:
		sink = influx
		defer func() { _ = influx.Close() }()
	}

	// device bus
	busClient, err := bus.Connect(bus.Config{
		URL:       cfg.MQTT.URL,
		ClientID:  cfg.MQTT.ClientID,
		BaseTopic: cfg.MQTT.BaseTopic,
		QoS:       byte(cfg.MQTT.QoS),
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = busClient.Close() }()

	// reconciler and desired state reference each other through small interfaces
	clk := clockwork.NewRealClock()
	feed := service.NewEventFeed(log)
	journal := service.NewJournal(repos.EventRepo, service.Sinks{feed, sink}, journalSize, log)

	var desired *service.DesiredStateService
	engine := reconcile.NewEngine(reconcile.Config{
		Topics:         busClient.Topics(),
		Group:          cfg.MQTT.Group,
		Debounce:       cfg.Sync.Debounce,
		CommandTimeout: cfg.Sync.CommandTimeout,
	}, reconcile.StateFunc(func() models.PlugState { return desired.Current() }), busClient, clk, journal, log)
	desired = service.NewDesiredStateService(repos.StateRepo, busClient, engine, journal, cfg.MQTT.Group, clk, log)

	state, err := desired.Load(ctx)
	if err != nil {
		return err
	}
	log.Infow("desired state loaded", "state", state, "group", cfg.MQTT.Group)

	if err := busClient.Subscribe(busClient.Topics().Devices(), engine.HandleMessage); err != nil {
		return err
	}

	services := service.NewService(repos, service.Dependencies{
		Desired: desired,
		Sync:    engine,
		Bus:     busClient,
		Clock:   clk,
		Feed:    feed,
	})
	apiHandler := handlers.NewHandler(services, log)

	// workers outlive the intake so nothing is lost while shutting down
	workCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		engine.Run(workCtx, cfg.Sync.SweepInterval)
		return nil
	})
	g.Go(func() error {
		journal.Run(workCtx)
		return nil
	})

	srv := &server.Server{}
	g.Go(func() error {
		log.Infow("http server listening", "port", cfg.HTTP.Port)
		return srv.Run(cfg.HTTP.Port, apiHandler.InitRoutes())
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Infow("shutting down server...")
		return shutdown(srv, busClient, engine, stopWorkers)
	})

	if err := g.Wait(); err != nil {
		log.Errorw("plug-sync stopped with error", "err", err)
		return err
	}
	log.Infow("plug-sync stopped")
	return nil
}

// openDB initializes the SQLite database and seeds the desired state.
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db.path not set; using default file", "default", "plugs.db")
		path = "plugs.db"
	}
	return db.InitDB(path)
}

type httpShutdowner interface {
	Shutdown(ctx context.Context) error
}

type busCloser interface {
	Close() error
}

type pendingCanceller interface {
	CancelPending() int
}

// shutdown stops intake before work: HTTP writes first (allowing in-flight
// requests to complete), then bus reports, then pending syncs, and only then
// the sweep and journal loops, which drain what is left.
func shutdown(srv httpShutdowner, busClient busCloser, engine pendingCanceller, stopWorkers context.CancelFunc) error {
	defer stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	var err error
	if serr := srv.Shutdown(ctx); serr != nil {
		err = fmt.Errorf("server forced to shutdown: %w", serr)
	}

	_ = busClient.Close()
	engine.CancelPending()
	return err
}
