package drive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Entry type constants returned by ListDir.
const (
	EntryFolder = "folder"
	EntryFile   = "file"
)

// Entry is a single item inside a drive folder.
type Entry struct {
	Type string // EntryFolder or EntryFile
	Name string // base name, e.g. "video.mp4"
	Path string // full drive path, e.g. "library/talk/video.mp4"
}

// Meta holds the size and modification time of a drive object.
// The pair is the sole input to stability checks and fingerprints;
// object content is never read for change detection.
type Meta struct {
	Size     int64
	Modified time.Time
}

var (
	// ErrNotFound is returned when a drive object does not exist.
	ErrNotFound = errors.New("drive: object not found")
)

// TransientError wraps a network or service failure that is expected to
// resolve on a later cycle. Scan classifies these as NETWORK rather than
// treating them as a permanent per-video failure.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("drive: transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err indicates a missing drive object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient reports whether err is a transient drive failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Store is the capability contract over the remote object store.
// Implementations must classify missing objects as ErrNotFound and
// network-level failures as TransientError so callers can map them
// into the scan error taxonomy.
type Store interface {
	// ListFolders returns the drive paths of the folders directly under root.
	ListFolders(ctx context.Context, root string) ([]string, error)
	// ListDir returns the entries directly under path.
	ListDir(ctx context.Context, path string) ([]Entry, error)
	// Exists reports whether the object at path exists.
	Exists(ctx context.Context, path string) (bool, error)
	// GetMeta returns size and modification time for the object at path.
	GetMeta(ctx context.Context, path string) (Meta, error)
	// ReadText reads the object at path as UTF-8 text.
	ReadText(ctx context.Context, path string) (string, error)
	// UploadText writes content to path, replacing any existing object.
	UploadText(ctx context.Context, path, content string) error
	// Move renames src to dst. Fails if dst exists unless overwrite is set.
	Move(ctx context.Context, src, dst string, overwrite bool) error
	// CreateDir creates a folder at path. Idempotent.
	CreateDir(ctx context.Context, path string) error
	// DownloadFile copies the object at path to localPath.
	// Fails before transferring if the object is larger than maxBytes (0 = no limit).
	DownloadFile(ctx context.Context, path, localPath string, maxBytes int64) error
}

// Clean normalizes a drive path: forward slashes, no leading or trailing
// slash, no empty or dot segments.
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.Trim(p, "/")
}

// Join joins drive path segments and normalizes the result.
func Join(parts ...string) string {
	return Clean(path.Join(parts...))
}

// Base returns the last segment of a drive path.
func Base(p string) string {
	return path.Base(Clean(p))
}

// Stem returns the last segment of a drive path without its extension.
func Stem(p string) string {
	base := Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}
