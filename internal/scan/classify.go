package scan

import (
	"path"
	"strings"
	"unicode"

	"clipdex/internal/fingerprint"
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".mov":  {},
	".avi":  {},
	".webm": {},
	".m4v":  {},
}

// summaryFileNames are the known non-transcript text sources of a folder.
var summaryFileNames = map[string]struct{}{
	"summary.md":      {},
	"summary.txt":     {},
	"description.txt": {},
	"title.txt":       {},
}

// isVideoFile reports whether name has a recognized video extension.
func isVideoFile(name string) bool {
	_, ok := videoExtensions[strings.ToLower(path.Ext(name))]
	return ok
}

// classifyTextName maps a file name to a text source kind.
// Returns false for files that are not text sources (videos, meta.json,
// unrelated uploads).
func classifyTextName(name string) (fingerprint.TextKind, bool) {
	lower := strings.ToLower(name)
	if lower == MetaFileName {
		return "", false
	}
	if _, ok := summaryFileNames[lower]; ok {
		return fingerprint.KindSummary, true
	}

	ext := path.Ext(lower)
	stem := strings.TrimSuffix(lower, ext)
	switch ext {
	case ".vtt", ".srt":
		return fingerprint.KindTranscript, true
	case ".txt", ".md":
		if strings.HasPrefix(stem, "transcript") {
			return fingerprint.KindTranscript, true
		}
	}
	return "", false
}

// titleFromStem turns a folder or file stem into a display title:
// separators become spaces and each word is capitalized.
func titleFromStem(stem string) string {
	cleaned := strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	words := strings.Fields(cleaned)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
