package db

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens the connection pool from DATABASE_URL. DB_MAX_CONNS
// optionally caps the pool size; pgxpool's default applies otherwise.
func NewPool(ctx context.Context) (*pgxpool.Pool, error) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DATABASE_URL: %w", err)
	}
	if maxConns := os.Getenv("DB_MAX_CONNS"); maxConns != "" {
		n, err := strconv.Atoi(maxConns)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid DB_MAX_CONNS %q", maxConns)
		}
		config.MaxConns = int32(n)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}
