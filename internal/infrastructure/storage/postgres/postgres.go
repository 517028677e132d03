package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"archivist/internal/domain/record"
	"archivist/internal/infrastructure/migration"
)

// Config describes one document collection.
type Config struct {
	ConnectionURI string
	// Database overrides the database named in ConnectionURI.
	Database   string
	Collection string
}

// URI returns ConnectionURI with Database applied.
func (c Config) URI() string {
	if c.Database == "" {
		return c.ConnectionURI
	}
	u, err := url.Parse(c.ConnectionURI)
	if err != nil || u.Scheme == "" {
		return c.ConnectionURI
	}
	u.Path = "/" + strings.TrimPrefix(c.Database, "/")
	return u.String()
}

// Connect opens a pool, checks the server is reachable and applies migrations.
func Connect(ctx context.Context, uri string, engine migration.MigrationEngine) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, &record.ConnectionError{Backend: "postgres", Err: fmt.Errorf("create pool: %w", err)}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &record.ConnectionError{Backend: "postgres", Err: fmt.Errorf("ping: %w", err)}
	}

	mg := migration.NewMigration(uri, engine)
	if err := mg.Up(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return pool, nil
}
