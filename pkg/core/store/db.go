// Package store persists run results as files and, optionally, in Postgres
// together with the embedded chunks of each indexed document.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// ErrNoDatabase is returned when no database URL is configured.
var ErrNoDatabase = errors.New("database url not configured")

// NewPool opens a connection pool for url. The vector type is registered on
// every connection.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, ErrNoDatabase
	}
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id      TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	state       TEXT NOT NULL,
	result_json JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS document_chunks (
	doc_hash  TEXT NOT NULL,
	index_key TEXT NOT NULL DEFAULT '',
	position  INT NOT NULL,
	chunk_id  TEXT NOT NULL,
	start_off INT NOT NULL,
	end_off   INT NOT NULL,
	kind      TEXT NOT NULL,
	content   TEXT NOT NULL,
	embedding VECTOR NOT NULL,
	PRIMARY KEY (doc_hash, position)
);

ALTER TABLE document_chunks ADD COLUMN IF NOT EXISTS index_key TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS document_chunks_index_key ON document_chunks (index_key);
`

// Migrate creates the tables used by RunRepo and ChunkRepo. The vector
// extension must be installable. pgvector.RegisterTypes needs it to exist,
// so run Migrate on a plain connection before opening a pool.
func Migrate(ctx context.Context, url string) error {
	if url == "" {
		return ErrNoDatabase
	}
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
