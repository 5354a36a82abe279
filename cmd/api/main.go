package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"baby-care-log/internal/adapters/auth/jwtauth"
	"baby-care-log/internal/adapters/storage/postgres"
	"baby-care-log/internal/config"
	"baby-care-log/internal/platform/logger"
	"baby-care-log/internal/ports/auth"
	"baby-care-log/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	appLog := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: logger.ParseFormat(cfg.LogFormat),
		App:    cfg.AppName,
	})

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database error: %v", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			cancel()
			log.Fatalf("schema error: %v", err)
		}
		cancel()
	}

	var verifier auth.AuthVerifier
	if cfg.JWTSecret != "" {
		verifier = jwtauth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	}

	r := router.NewRouter(router.Options{
		AuthVerifier: verifier, // nil => modo dev con X-Debug-User-ID
		DB:           db,
		Logger:       appLog,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	appLog.Info("starting server", map[string]any{
		"addr":     addr,
		"postgres": db != nil,
		"auth":     verifier != nil,
	})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
