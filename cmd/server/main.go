// Server runs the HTTP API: authentication, access decisions, directory
// management and the audit trail.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	auditrepository "accessplane/internal/audit/repository"
	auditservice "accessplane/internal/audit/service"
	"accessplane/internal/audit/stream"
	authservice "accessplane/internal/auth/service"
	"accessplane/internal/config"
	"accessplane/internal/db"
	"accessplane/internal/httpapi"
	permissionrepository "accessplane/internal/permission/repository"
	permissionservice "accessplane/internal/permission/service"
	"accessplane/internal/policy/engine"
	policyservice "accessplane/internal/policy/service"
	rolerepository "accessplane/internal/role/repository"
	roleservice "accessplane/internal/role/service"
	"accessplane/internal/security"
	sessionrepository "accessplane/internal/session/repository"
	sessionservice "accessplane/internal/session/service"
	"accessplane/internal/telemetry/otel"
	userrepository "accessplane/internal/user/repository"
	userservice "accessplane/internal/user/service"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "accessplane-server", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("JWT_PRIVATE_KEY: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("JWT_PUBLIC_KEY: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	userRepo := userrepository.NewPostgresRepository(conn)
	roleRepo := rolerepository.NewPostgresRepository(conn)
	permRepo := permissionrepository.NewPostgresRepository(conn)
	sessionRepo := sessionrepository.NewPostgresRepository(conn)
	auditRepo := auditrepository.NewPostgresRepository(conn)

	var producers []stream.Producer
	if kp, err := stream.NewKafkaProducer(cfg.AuditKafkaBrokersList(), cfg.AuditKafkaTopic); err != nil {
		log.Fatalf("kafka: %v", err)
	} else if kp != nil {
		producers = append(producers, kp)
		log.Printf("audit mirror enabled: kafka topic %s", cfg.AuditKafkaTopic)
	}
	producers = append(producers, otel.NewEntryEmitter(providers.LoggerProvider))
	producer := stream.Multi(producers...)
	defer producer.Close()

	evaluator, err := engine.NewOPAEvaluator()
	if err != nil {
		log.Fatalf("policy engine: %v", err)
	}
	if err := evaluator.HealthCheck(ctx); err != nil {
		log.Fatalf("policy engine health: %v", err)
	}

	audit := auditservice.NewService(auditRepo, producer)
	policy := policyservice.NewService(userRepo, roleRepo, evaluator)
	sessions := sessionservice.NewService(sessionRepo, userRepo, tokens)
	auth := authservice.NewService(userRepo, sessions, hasher, audit)
	users := userservice.NewService(userRepo, roleRepo, sessions, hasher, audit)
	roles := roleservice.NewService(roleRepo, permRepo, userRepo, audit)
	permissions := permissionservice.NewService(permRepo, audit)

	api := httpapi.New(httpapi.Deps{
		DB:          conn,
		Tokens:      tokens,
		Auth:        auth,
		Sessions:    sessions,
		Policy:      policy,
		Users:       users,
		Roles:       roles,
		Permissions: permissions,
		Audit:       audit,
		Version:     version,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}
