// Package bootstrap prepares backing stores at startup.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const createClientApplicationsSQL = `CREATE TABLE IF NOT EXISTS client_applications (
	id BIGINT PRIMARY KEY,
	client_id TEXT NOT NULL UNIQUE,
	secret_hash TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	redirect_uris TEXT[] NOT NULL DEFAULT '{}',
	scopes TEXT[] NOT NULL DEFAULT '{}',
	app_type TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const createOwnerIndexSQL = `CREATE INDEX IF NOT EXISTS client_applications_owner_idx ON client_applications (owner_id)`

// EnsureSchema creates the registry tables if they do not exist yet.
func EnsureSchema(lc fx.Lifecycle, pool *pgxpool.Pool, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSchema(ctx, pool, logger)
		},
	})
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	for _, stmt := range []string{createClientApplicationsSQL, createOwnerIndexSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	logger.Info("database schema ready")
	return nil
}
