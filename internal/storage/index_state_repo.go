package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// IndexStateRepo tracks the last-indexed fingerprint per video. Like
// ChunkRepo it can be bound to the live table or the rebuild staging table.
type IndexStateRepo struct {
	db    *sql.DB
	table string
}

// NewIndexStateRepo creates an IndexStateRepo bound to the live table.
func NewIndexStateRepo(db *sql.DB) *IndexStateRepo {
	return &IndexStateRepo{db: db, table: "index_state"}
}

// Staging returns an IndexStateRepo bound to the rebuild staging table.
func (r *IndexStateRepo) Staging() *IndexStateRepo {
	return &IndexStateRepo{db: r.db, table: "index_state_rebuild"}
}

// Get returns the last-indexed fingerprint for a video.
// Returns ErrNotFound if the video is not currently indexed.
func (r *IndexStateRepo) Get(ctx context.Context, videoID string) (string, error) {
	var fingerprint string
	err := r.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM `+r.table+` WHERE video_id = ?`, videoID).Scan(&fingerprint)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query index state: %w", err)
	}
	return fingerprint, nil
}

// Put records the fingerprint a video was just indexed with.
func (r *IndexStateRepo) Put(ctx context.Context, videoID, fingerprint string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO `+r.table+` (video_id, fingerprint, indexed_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (video_id) DO UPDATE SET
		 fingerprint = excluded.fingerprint, indexed_at = CURRENT_TIMESTAMP`,
		videoID, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to put index state: %w", err)
	}
	return nil
}

// Delete removes the index state row for a video.
func (r *IndexStateRepo) Delete(ctx context.Context, videoID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE video_id = ?`, videoID)
	if err != nil {
		return fmt.Errorf("failed to delete index state: %w", err)
	}
	return nil
}

// ListAll returns last-indexed fingerprints keyed by video ID.
func (r *IndexStateRepo) ListAll(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT video_id, fingerprint FROM `+r.table)
	if err != nil {
		return nil, fmt.Errorf("failed to query index states: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	states := make(map[string]string)
	for rows.Next() {
		var videoID, fingerprint string
		if err := rows.Scan(&videoID, &fingerprint); err != nil {
			return nil, fmt.Errorf("failed to scan index state: %w", err)
		}
		states[videoID] = fingerprint
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return states, nil
}
