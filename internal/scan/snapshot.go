package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clipdex/internal/drive"
)

// SnapshotFileName is the denormalized catalog snapshot written back to the
// drive root after every scan cycle.
const SnapshotFileName = "library_index.json"

const snapshotSchemaVersion = 1

type snapshotItem struct {
	VideoID        string   `json:"video_id"`
	Title          string   `json:"title"`
	VideoPath      string   `json:"video_path"`
	Texts          []string `json:"texts"`
	SummaryExcerpt string   `json:"summary_excerpt,omitempty"`
	Fingerprint    string   `json:"fingerprint,omitempty"`
	UpdatedAt      string   `json:"updated_at"`
	Status         string   `json:"status"`
	ErrorCode      string   `json:"error_code,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
}

type snapshot struct {
	SchemaVersion int            `json:"schema_version"`
	GeneratedAt   string         `json:"generated_at"`
	Items         []snapshotItem `json:"items"`
}

// writeSnapshot uploads library_index.json via temp-file-then-move so a
// crash mid-write never leaves a truncated snapshot behind.
func (s *Scanner) writeSnapshot(ctx context.Context, excerpts map[string]string) error {
	videos, err := s.videos.List(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list videos for snapshot: %w", err)
	}

	snap := snapshot{
		SchemaVersion: snapshotSchemaVersion,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Items:         make([]snapshotItem, 0, len(videos)),
	}
	for _, v := range videos {
		texts := make([]string, 0, len(v.TextPaths))
		for _, t := range v.TextPaths {
			texts = append(texts, t.Path)
		}
		snap.Items = append(snap.Items, snapshotItem{
			VideoID:        v.ID,
			Title:          v.Title,
			VideoPath:      v.VideoPath,
			Texts:          texts,
			SummaryExcerpt: excerpts[v.ID],
			Fingerprint:    v.Fingerprint,
			UpdatedAt:      v.UpdatedAt.UTC().Format(time.RFC3339),
			Status:         v.Status,
			ErrorCode:      v.ErrorCode,
			ErrorMessage:   v.ErrorMessage,
		})
	}

	raw, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := drive.Join(s.opts.Root, SnapshotFileName+".tmp")
	finalPath := drive.Join(s.opts.Root, SnapshotFileName)
	if err := s.drive.UploadText(ctx, tmpPath, string(raw)+"\n"); err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	if err := s.drive.Move(ctx, tmpPath, finalPath, true); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}
