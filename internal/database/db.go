// Package database persists finished games and session snapshots through a
// single pgx pool. The pool is optional: when no Postgres host is configured
// the server runs purely in memory and every write path is a no-op.
package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the shared pool. Nil when the process runs without persistence.
var DB *pgxpool.Pool

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ConnectDB opens and pings the pool from PG_* environment variables,
// exiting the process on failure. Persistence is either present and working
// or deliberately absent; a half-connected state helps nobody.
func ConnectDB() {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		envOr("POSTGRES_USER", "postgres"),
		os.Getenv("POSTGRES_PASSWORD"),
		envOr("PG_HOST", "localhost"),
		envOr("PG_PORT", "5432"),
		envOr("PG_DATABASE", "fortyone"),
	)

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		log.Fatalf("unable to parse pgx config: %v", err)
	}

	DB, err = pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		log.Fatalf("unable to create pgx pool: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := DB.Ping(ctx); err != nil {
		log.Fatalf("db ping error: %v", err)
	}

	log.Printf("connected to %s/%s", envOr("PG_HOST", "localhost"), envOr("PG_DATABASE", "fortyone"))
}
