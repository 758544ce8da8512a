package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// IndexMetaRepo persists the singleton index version descriptor.
type IndexMetaRepo struct {
	db *sql.DB
}

// NewIndexMetaRepo creates a new IndexMetaRepo.
func NewIndexMetaRepo(db *sql.DB) *IndexMetaRepo {
	return &IndexMetaRepo{db: db}
}

// Load returns the persisted index descriptor.
// Returns ErrNotFound when no index has been initialized yet.
func (r *IndexMetaRepo) Load(ctx context.Context) (*IndexMeta, error) {
	var meta IndexMeta
	err := r.db.QueryRowContext(ctx,
		`SELECT schema_version, chunking_version, embedding_model, generation_id
		 FROM index_meta WHERE id = 1`,
	).Scan(&meta.SchemaVersion, &meta.ChunkingVersion, &meta.EmbeddingModel, &meta.GenerationID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query index meta: %w", err)
	}
	return &meta, nil
}

// Save writes the index descriptor, replacing any existing row.
func (r *IndexMetaRepo) Save(ctx context.Context, meta *IndexMeta) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO index_meta (id, schema_version, chunking_version, embedding_model, generation_id)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 schema_version = excluded.schema_version,
		 chunking_version = excluded.chunking_version,
		 embedding_model = excluded.embedding_model,
		 generation_id = excluded.generation_id`,
		meta.SchemaVersion, meta.ChunkingVersion, meta.EmbeddingModel, meta.GenerationID)
	if err != nil {
		return fmt.Errorf("failed to save index meta: %w", err)
	}
	return nil
}
