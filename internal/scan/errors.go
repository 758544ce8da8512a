package scan

import "fmt"

// Per-folder error codes. Each is recorded on the catalog row together with
// a human-readable message; none of them aborts the overall scan.
const (
	CodeNoVideo          = "NO_VIDEO"
	CodeMultipleVideos   = "MULTIPLE_VIDEOS"
	CodeMetaRequired     = "META_REQUIRED"
	CodeBadMetaJSON      = "BAD_META_JSON"
	CodeVideoNotFound    = "VIDEO_NOT_FOUND"
	CodeNoPermissionMove = "NO_PERMISSION_MOVE"
	CodeNetwork          = "NETWORK"
)

// FolderError is a classified per-folder scan failure.
type FolderError struct {
	Code    string
	Message string
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func folderErrorf(code, format string, args ...any) *FolderError {
	return &FolderError{Code: code, Message: fmt.Sprintf(format, args...)}
}
