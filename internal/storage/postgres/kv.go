// Package postgres implements storage.KV on a single kv_store table.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/ecobazaar/storefront/internal/storage"
	"github.com/ecobazaar/storefront/pkg/database"
)

const system = "postgresql"

const (
	getSQL = `SELECT value FROM kv_store WHERE key = $1`
	setSQL = `INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	pingSQL = `SELECT 1`
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations for the kv_store table.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrate applies pending kv_store migrations.
func Migrate(ctx context.Context, db database.TxBeginner, logger *slog.Logger) error {
	return database.RunMigrations(ctx, db, Migrations(), logger)
}

// KV stores JSON documents in kv_store.
type KV struct {
	db database.DBTX
}

// New creates a Postgres-backed KV over db.
func New(db database.DBTX) *KV {
	return &KV{db: db}
}

// Get returns the value at key.
func (p *KV) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, end := database.TraceQuery(ctx, system, "kv.get", getSQL)
	defer func() { end(err) }()

	var value []byte
	if err = p.db.QueryRow(ctx, getSQL, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.KeyNotFound(key)
		}
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value at key.
func (p *KV) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, system, "kv.set", setSQL)
	defer func() { end(err) }()

	if _, err = p.db.Exec(ctx, setSQL, key, value); err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

// Ping runs a trivial query.
func (p *KV) Ping(ctx context.Context) error {
	var one int
	if err := p.db.QueryRow(ctx, pingSQL).Scan(&one); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}
