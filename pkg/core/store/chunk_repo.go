package store

import (
	"context"
	"fmt"

	"creditiq/pkg/core/knowledge"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepo is a knowledge.IndexCache backed by the document_chunks table.
// Indexes survive restarts and are shared between processes. A document
// keeps one stored index; storing it under a new key replaces the old one.
type ChunkRepo struct {
	pool *pgxpool.Pool
}

var _ knowledge.IndexCache = (*ChunkRepo)(nil)

func NewChunkRepo(pool *pgxpool.Pool) *ChunkRepo {
	return &ChunkRepo{pool: pool}
}

// Get rebuilds the index stored under key from its chunks.
func (r *ChunkRepo) Get(ctx context.Context, key string) (*knowledge.Index, bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT doc_hash, chunk_id, position, start_off, end_off, kind, content, embedding
		FROM document_chunks
		WHERE index_key = $1
		ORDER BY position`, key)
	if err != nil {
		return nil, false, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var (
		hash    string
		chunks  []knowledge.Chunk
		vectors [][]float32
	)
	for rows.Next() {
		var (
			c    knowledge.Chunk
			kind string
			vec  pgvector.Vector
		)
		if err := rows.Scan(&hash, &c.ID, &c.Position, &c.Start, &c.End, &kind, &c.Text, &vec); err != nil {
			return nil, false, fmt.Errorf("scan chunk: %w", err)
		}
		c.Type = knowledge.ChunkType(kind)
		chunks = append(chunks, c)
		vectors = append(vectors, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(chunks) == 0 {
		return nil, false, nil
	}
	for i := range chunks {
		if i > 0 {
			chunks[i].PrevID = chunks[i-1].ID
		}
		if i < len(chunks)-1 {
			chunks[i].NextID = chunks[i+1].ID
		}
	}
	ix, err := knowledge.NewIndexFromVectors(ctx, hash, chunks, vectors)
	if err != nil {
		return nil, false, err
	}
	return ix, true, nil
}

// Put replaces the stored chunks of ix.DocumentHash in one transaction.
func (r *ChunkRepo) Put(ctx context.Context, key string, ix *knowledge.Index) error {
	vectors := ix.Vectors()
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE doc_hash = $1`, ix.DocumentHash); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, c := range ix.Chunks {
			batch.Queue(`
				INSERT INTO document_chunks (doc_hash, index_key, position, chunk_id, start_off, end_off, kind, content, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				ix.DocumentHash, key, c.Position, c.ID, c.Start, c.End, string(c.Type), c.Text, pgvector.NewVector(vectors[i]))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
}
