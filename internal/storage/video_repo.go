package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// VideoStore defines the interface for video catalog operations.
// Rows are owned exclusively by the scan job; the index service and the
// HTTP layer only read them (except SetTelegramFileID).
type VideoStore interface {
	// Upsert inserts or updates a video row, preserving created_at and
	// telegram_file_id on update. The ID must be set.
	Upsert(ctx context.Context, video *VideoRecord) error
	// Get returns a video by ID. Returns ErrNotFound if not found.
	Get(ctx context.Context, id string) (*VideoRecord, error)
	// List returns videos, optionally filtered by status (empty = all).
	List(ctx context.Context, status string) ([]*VideoRecord, error)
	// ListReady returns all videos in READY state.
	ListReady(ctx context.Context) ([]*VideoRecord, error)
	// MarkDeletedExcept soft-deletes every non-deleted video whose ID is
	// not in seen. Returns the number of rows affected.
	MarkDeletedExcept(ctx context.Context, seen []string) (int, error)
	// SetTelegramFileID records the front-end's upload cache ID.
	SetTelegramFileID(ctx context.Context, id, fileID string) error
	// Counts returns per-status totals for the whole catalog.
	Counts(ctx context.Context) (StatusCounts, error)
}

// VideoRepo provides methods for video catalog operations.
// It implements the VideoStore interface.
type VideoRepo struct {
	db *sql.DB
}

// NewVideoRepo creates a new VideoRepo.
func NewVideoRepo(db *sql.DB) *VideoRepo {
	return &VideoRepo{db: db}
}

const videoColumns = `id, title, video_path, text_paths, status, fingerprint,
	error_code, error_message, telegram_file_id, created_at, updated_at`

// Upsert inserts or updates a video row. On update the created_at timestamp
// and telegram_file_id are preserved; everything else reflects the latest scan.
func (r *VideoRepo) Upsert(ctx context.Context, video *VideoRecord) error {
	if video.ID == "" {
		return fmt.Errorf("video ID is required")
	}

	textPaths, err := json.Marshal(video.TextPaths)
	if err != nil {
		return fmt.Errorf("failed to marshal text paths: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO videos (id, title, video_path, text_paths, status, fingerprint, error_code, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 title = excluded.title,
		 video_path = excluded.video_path,
		 text_paths = excluded.text_paths,
		 status = excluded.status,
		 fingerprint = excluded.fingerprint,
		 error_code = excluded.error_code,
		 error_message = excluded.error_message,
		 updated_at = CURRENT_TIMESTAMP`,
		video.ID, video.Title, video.VideoPath, string(textPaths), video.Status,
		video.Fingerprint, nullIfEmpty(video.ErrorCode), nullIfEmpty(video.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert video: %w", err)
	}
	return nil
}

// Get returns a video by ID. Returns ErrNotFound if not found.
func (r *VideoRepo) Get(ctx context.Context, id string) (*VideoRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	video, err := scanVideo(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query video: %w", err)
	}
	return video, nil
}

// List returns videos ordered by ID, optionally filtered by status.
func (r *VideoRepo) List(ctx context.Context, status string) ([]*VideoRecord, error) {
	query := `SELECT ` + videoColumns + ` FROM videos`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var videos []*VideoRecord
	for rows.Next() {
		video, err := scanVideo(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return videos, nil
}

// ListReady returns all videos in READY state.
func (r *VideoRepo) ListReady(ctx context.Context) ([]*VideoRecord, error) {
	return r.List(ctx, StatusReady)
}

// MarkDeletedExcept soft-deletes every non-deleted video not present in seen.
// Deleted rows stay in the catalog but are excluded from indexing and search.
func (r *VideoRepo) MarkDeletedExcept(ctx context.Context, seen []string) (int, error) {
	query := `UPDATE videos SET status = ?, error_code = NULL, error_message = NULL,
		updated_at = CURRENT_TIMESTAMP WHERE status != ?`
	args := []any{StatusDeleted, StatusDeleted}

	if len(seen) > 0 {
		placeholders := strings.Repeat("?,", len(seen))
		query += ` AND id NOT IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, id := range seen {
			args = append(args, id)
		}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark deleted videos: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

// SetTelegramFileID records the front-end's upload cache ID for a video.
func (r *VideoRepo) SetTelegramFileID(ctx context.Context, id, fileID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE videos SET telegram_file_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		fileID, id)
	if err != nil {
		return fmt.Errorf("failed to set telegram file id: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Counts returns per-status totals for the whole catalog.
func (r *VideoRepo) Counts(ctx context.Context) (StatusCounts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM videos GROUP BY status`)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("failed to count videos: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var counts StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, fmt.Errorf("failed to scan count: %w", err)
		}
		counts.Total += n
		switch status {
		case StatusReady:
			counts.Ready = n
		case StatusNeedsText:
			counts.NeedsText = n
		case StatusError:
			counts.Errors = n
		case StatusDeleted:
			counts.Deleted = n
		}
	}
	if err := rows.Err(); err != nil {
		return StatusCounts{}, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}

// scanVideo scans one videos row via the given Scan function.
func scanVideo(scan func(dest ...any) error) (*VideoRecord, error) {
	var video VideoRecord
	var textPaths string
	var errorCode, errorMessage, telegramFileID sql.NullString
	var createdAt, updatedAt string

	err := scan(&video.ID, &video.Title, &video.VideoPath, &textPaths, &video.Status,
		&video.Fingerprint, &errorCode, &errorMessage, &telegramFileID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(textPaths), &video.TextPaths); err != nil {
		return nil, fmt.Errorf("failed to unmarshal text paths: %w", err)
	}
	video.ErrorCode = errorCode.String
	video.ErrorMessage = errorMessage.String
	video.TelegramFileID = telegramFileID.String

	if video.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if video.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &video, nil
}

// parseSQLiteTime parses the DATETIME string formats SQLite emits.
func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
