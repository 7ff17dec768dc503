package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/proximity-relay/internal/config"
	"github.com/omochice/proximity-relay/internal/relay"
	"github.com/omochice/proximity-relay/internal/store"
	"github.com/omochice/proximity-relay/internal/transport/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse command-line flags
	addr := flag.String("addr", "", "Address to listen on for WebSocket connections (overrides WS_ADDRESS)")
	migrate := flag.Bool("migrate", false, "Create the database tables if they do not exist")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addr != "" {
		cfg.Address = *addr
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	log, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := store.OpenSQL(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if *migrate {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	hub := relay.NewHub(db, relay.WithLogger(log))
	srv := ws.New(cfg.Address, hub, log)
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve()
	}()

	// Wait for either error or shutdown signal
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case sig := <-sigChan:
		log.Info("shutting down", zap.Stringer("signal", sig))
		srv.Stop()
		hub.Shutdown()
	}

	log.Info("relay server stopped")
	return nil
}
