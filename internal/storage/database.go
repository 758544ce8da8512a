package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// SchemaVersion identifies the catalog/index table layout. Bumping it
// invalidates the persisted index descriptor and forces a rebuild.
const SchemaVersion = 1

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	// Foreign keys are off by default in SQLite; the DSN parameter enables
	// them on every pooled connection.
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

const chunkColumns = `(
	id TEXT PRIMARY KEY,
	video_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	source TEXT NOT NULL,
	text TEXT NOT NULL,
	start_sec REAL,
	end_sec REAL,
	FOREIGN KEY (video_id) REFERENCES videos(id) ON DELETE CASCADE
)`

const indexStateColumns = `(
	video_id TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS videos (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			video_path TEXT NOT NULL,
			text_paths TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			fingerprint TEXT NOT NULL DEFAULT '',
			error_code TEXT,
			error_message TEXT,
			telegram_file_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS chunks ` + chunkColumns + `;`,
		`CREATE TABLE IF NOT EXISTS index_state ` + indexStateColumns + `;`,
		`CREATE TABLE IF NOT EXISTS index_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL,
			chunking_version TEXT NOT NULL,
			embedding_model TEXT NOT NULL,
			generation_id INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_video ON chunks(video_id);`,
		`CREATE INDEX IF NOT EXISTS idx_videos_status ON videos(status);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// ResetRebuildTables drops and recreates the staging tables a full rebuild
// writes into. The live chunks/index_state tables are untouched.
func ResetRebuildTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`DROP TABLE IF EXISTS chunks_rebuild;`,
		`DROP TABLE IF EXISTS index_state_rebuild;`,
		`CREATE TABLE chunks_rebuild ` + chunkColumns + `;`,
		`CREATE TABLE index_state_rebuild ` + indexStateColumns + `;`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to reset rebuild tables: %w", err)
		}
	}
	return nil
}

// SwapRebuildTables atomically promotes the staging tables to live and bumps
// the index generation pointer, all in one transaction. The previous live
// tables are kept as *_backup for rollback until DropBackupTables is called.
// A crash at any point rolls the rename back with the transaction, leaving
// the live tables untouched.
func SwapRebuildTables(ctx context.Context, db *sql.DB) (newGeneration int64, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin swap transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmts := []string{
		`DROP TABLE IF EXISTS chunks_backup;`,
		`DROP TABLE IF EXISTS index_state_backup;`,
		`ALTER TABLE chunks RENAME TO chunks_backup;`,
		`ALTER TABLE chunks_rebuild RENAME TO chunks;`,
		// The video-id index followed the old table into chunks_backup;
		// rebind the name to the promoted table.
		`DROP INDEX IF EXISTS idx_chunks_video;`,
		`CREATE INDEX idx_chunks_video ON chunks(video_id);`,
		`ALTER TABLE index_state RENAME TO index_state_backup;`,
		`ALTER TABLE index_state_rebuild RENAME TO index_state;`,
		`UPDATE index_meta SET generation_id = generation_id + 1 WHERE id = 1;`,
	}
	for _, stmt := range stmts {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			err = fmt.Errorf("failed to swap rebuild tables: %w", execErr)
			return 0, err
		}
	}

	if scanErr := tx.QueryRowContext(ctx, `SELECT generation_id FROM index_meta WHERE id = 1`).Scan(&newGeneration); scanErr != nil {
		err = fmt.Errorf("failed to read new generation: %w", scanErr)
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit swap transaction: %w", err)
	}
	return newGeneration, nil
}

// DropBackupTables removes the short-lived backup tables left by a
// successful swap.
func DropBackupTables(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS chunks_backup;`,
		`DROP TABLE IF EXISTS index_state_backup;`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop backup tables: %w", err)
		}
	}
	return nil
}

// IsIntegrityViolation reports whether err is a SQLite constraint or
// corruption error. The index service treats these like a version mismatch
// and triggers a guarded rebuild.
func IsIntegrityViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case sqlite3.ErrConstraint, sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
		return true
	}
	return false
}
