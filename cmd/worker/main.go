// Worker periodically purges revoked and expired refresh-token sessions.
// Set DATABASE_URL and optionally SWEEP_INTERVAL (default 1h).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accessplane/internal/config"
	"accessplane/internal/db"
	sessionrepository "accessplane/internal/session/repository"
	sessionservice "accessplane/internal/session/service"
	"accessplane/internal/telemetry/otel"
	userrepository "accessplane/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "accessplane-worker", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() { _ = providers.Shutdown(context.Background()) }()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	sessions := sessionservice.NewService(
		sessionrepository.NewPostgresRepository(conn),
		userrepository.NewPostgresRepository(conn),
		nil, // the sweeper never issues or validates tokens
	)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	interval := cfg.SweepEvery()
	log.Printf("worker: sweeping stale sessions every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep := func() {
		n, err := sessions.Sweep(ctx)
		if err != nil {
			log.Printf("worker: sweep failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("worker: purged %d stale sessions", n)
		}
	}

	sweep()
	for {
		select {
		case <-ctx.Done():
			log.Println("worker: stopped")
			return
		case <-ticker.C:
			sweep()
		}
	}
}
