package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ChunkRepo provides methods for chunk operations against the live chunks
// table, or against the rebuild staging table when obtained via Staging().
type ChunkRepo struct {
	db    *sql.DB
	table string
}

// NewChunkRepo creates a ChunkRepo bound to the live chunks table.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db, table: "chunks"}
}

// Staging returns a ChunkRepo bound to the rebuild staging table.
func (r *ChunkRepo) Staging() *ChunkRepo {
	return &ChunkRepo{db: r.db, table: "chunks_rebuild"}
}

// InsertBatch inserts chunks in a single transaction.
// Each chunk's ID must be set (UUID) before calling this method.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chunk insert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+r.table+` (id, video_id, seq, source, text, start_sec, end_sec)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.VideoID, chunk.Seq,
			chunk.Source, chunk.Text, chunk.StartSec, chunk.EndSec); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk insert: %w", err)
	}
	return nil
}

// DeleteByVideo deletes all chunks for a given video ID.
// Used when re-indexing a video to remove old chunks before inserting new ones.
func (r *ChunkRepo) DeleteByVideo(ctx context.Context, videoID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE video_id = ?`, videoID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks by video: %w", err)
	}
	return nil
}

// ListIDsByVideo returns all chunk IDs for a given video, ordered by seq.
// Returns an empty slice if no chunks exist (not an error).
// Used to get vector point IDs for deletion before re-indexing.
func (r *ChunkRepo) ListIDsByVideo(ctx context.Context, videoID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM `+r.table+` WHERE video_id = ? ORDER BY seq`, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
func (r *ChunkRepo) GetByID(ctx context.Context, id string) (*ChunkRecord, error) {
	var chunk ChunkRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT id, video_id, seq, source, text, start_sec, end_sec FROM `+r.table+` WHERE id = ?`,
		id,
	).Scan(&chunk.ID, &chunk.VideoID, &chunk.Seq, &chunk.Source, &chunk.Text, &chunk.StartSec, &chunk.EndSec)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk: %w", err)
	}

	return &chunk, nil
}

// Count returns the total number of chunks in the table.
func (r *ChunkRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+r.table).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
