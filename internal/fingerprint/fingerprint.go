// Package fingerprint derives a stable content fingerprint for a video and
// its text sources from size and modification time alone. Two scans that
// observe identical metadata produce identical fingerprints regardless of
// discovery order; file content bytes are never read.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TextKind classifies a text source for fingerprinting and chunking.
type TextKind string

const (
	KindSummary    TextKind = "summary"
	KindTranscript TextKind = "transcript"
)

// FileStat is the size+mtime pair observed for one file.
type FileStat struct {
	Size     int64
	Modified time.Time
}

// TextEntry is one stable text source participating in the fingerprint.
type TextEntry struct {
	Path string
	Stat FileStat
	Kind TextKind
}

// BuildPayload serializes the fingerprint inputs in canonical form:
// the video line first, then text entries sorted by path. Equal inputs
// always produce an identical payload.
func BuildPayload(videoPath string, videoStat FileStat, texts []TextEntry) string {
	sorted := make([]TextEntry, len(texts))
	copy(sorted, texts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var b strings.Builder
	fmt.Fprintf(&b, "video|%s|%d|%d\n", videoPath, videoStat.Size, videoStat.Modified.UTC().UnixNano())
	for _, t := range sorted {
		fmt.Fprintf(&b, "text|%s|%d|%d|%s\n", t.Path, t.Stat.Size, t.Stat.Modified.UTC().UnixNano(), t.Kind)
	}
	return b.String()
}

// Hash returns the hex SHA-256 of a payload.
func Hash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Build composes BuildPayload and Hash.
func Build(videoPath string, videoStat FileStat, texts []TextEntry) string {
	return Hash(BuildPayload(videoPath, videoStat, texts))
}
