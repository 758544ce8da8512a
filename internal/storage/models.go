package storage

import "time"

// Video lifecycle states. Uppercase strings are part of the external
// library_index.json contract.
const (
	StatusReady     = "READY"
	StatusNeedsText = "NEEDS_TEXT"
	StatusError     = "ERROR"
	StatusDeleted   = "DELETED"
)

// TextPath is one text source attached to a video, with its kind
// ("summary" or "transcript"). Stored as a JSON array in the videos table.
type TextPath struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

/// VideoRecord is one row of the videos table: a single discovered video
// folder. The ID is the normalized folder path and is stable across rescans.
type VideoRecord struct {
	ID             string // normalized drive folder path
	Title          string
	VideoPath      string
	TextPaths      []TextPath
	Status         string
	Fingerprint    string
	ErrorCode      string // empty unless Status == ERROR
	ErrorMessage   string
	TelegramFileID string // front-end upload cache id, set via API
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ChunkRecord is one embedded text chunk of a video. Chunk rows are
// created and destroyed atomically with re-indexing of their video.
type ChunkRecord struct {
	ID       string   // UUID, same as the vector point ID
	VideoID  string
	Seq      int      // order within the video, starts at 0
	Source   string   // "summary" or "transcript"
	Text     string
	StartSec *float64 // set for timestamped transcript cues
	EndSec   *float64
}

// IndexState records the last-indexed fingerprint of a video. A row exists
// iff the video's chunks are present in the vector index.
type IndexState struct {
	VideoID     string
	Fingerprint string
	IndexedAt   time.Time
}

// IndexMeta is the process-wide index version descriptor. A mismatch of
// SchemaVersion, ChunkingVersion, or EmbeddingModel on load forces a full
// rebuild; GenerationID is the pointer to the current physical collection.
type IndexMeta struct {
	SchemaVersion   int
	ChunkingVersion string
	EmbeddingModel  string
	GenerationID    int64
}

// StatusCounts summarizes the catalog by lifecycle state.
type StatusCounts struct {
	Total     int
	Ready     int
	NeedsText int
	Errors    int
	Deleted   int
}
