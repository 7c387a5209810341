// Command relay runs the parley relay server.
//
// The relay hosts the user directory, coordinates key exchanges between
// endpoints, and gates secure messages behind the replay checks. It never
// sees plaintext or private keys.
//
// # Configuration File
//
// Create a YAML file with relay settings:
//
//	listen_addr: ":8080"
//	metrics_addr: ":9090"
//	backend: "postgres"
//	postgres:
//	  host: "localhost"
//	  port: 5432
//	  user: "parley"
//	  password: "parley"
//	  database: "parley"
//	protocol:
//	  exchange_ttl: 5m
//	  freshness_window: 5m
//	  completion_grace: 1m
//	gc_interval: 1m
//
// # Usage
//
//	go run ./cmd/relay --config=relay.yaml
//	go run ./cmd/relay --addr=:8080 --backend=memory
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parley-net/parley/api/httpserver"
	"github.com/parley-net/parley/cmd/common"
	"github.com/parley-net/parley/coordinator"
	"github.com/parley-net/parley/services"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", "", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address")
		backend     = flag.String("backend", "", "Storage backend: memory or postgres")
		pprof       = flag.Bool("pprof", false, "Enable pprof debugging API")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")
		logDebug    = flag.Bool("log-debug", false, "Log at debug level")
	)
	flag.Parse()

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *pprof {
		cfg.EnablePprof = true
	}
	if *logJSON {
		cfg.LogJSON = true
	}
	if *logDebug {
		cfg.LogDebug = true
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	return common.DefaultConfig(), nil
}

func run(cfg *common.Config) error {
	log := common.SetupLogger(cfg.LogJSON, cfg.LogDebug)

	auditLog, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("creating audit logger: %w", err)
	}
	defer auditLog.Sync() //nolint:errcheck
	audit := services.NewZapAuditSink(auditLog)

	exchangeStore, messageStore, closeStores, err := buildStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	directory := services.NewMemoryDirectory()

	coord, err := coordinator.NewCoordinator(&cfg.Protocol, exchangeStore, directory, audit, nil)
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	guard, err := coordinator.NewReplayGuard(&cfg.Protocol, messageStore, audit)
	if err != nil {
		return fmt.Errorf("creating replay guard: %w", err)
	}

	handler := services.NewRelayHandler(log, coord, guard, directory)
	srv, err := services.NewRelayServer(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, handler)
	if err != nil {
		return fmt.Errorf("creating relay server: %w", err)
	}

	gcCtx, stopGC := context.WithCancel(context.Background())
	defer stopGC()
	go coord.RunGC(gcCtx, cfg.GCInterval)

	srv.RunInBackground()
	log.Info("Relay started", "listenAddr", cfg.ListenAddr, "backend", cfg.Backend)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down relay")
	stopGC()
	srv.Shutdown()
	return nil
}

func buildStores(cfg *common.Config) (coordinator.ExchangeStore, coordinator.MessageStore, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		return services.NewMemoryExchangeStore(), services.NewMemoryMessageStore(), func() {}, nil
	case "postgres":
		store, err := services.NewPostgresStore(&cfg.Postgres)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return store, store, func() { store.Close() }, nil //nolint:errcheck
	default:
		return nil, nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
