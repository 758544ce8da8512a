package scan

import (
	"encoding/json"
	"fmt"
	"strings"

	"clipdex/internal/drive"
)

// MetaFileName is the per-folder metadata file read and written by the scanner.
const MetaFileName = "meta.json"

// Metadata is the typed form of meta.json. All fields are optional on parse;
// Validate enforces what a usable declaration must contain.
type Metadata struct {
	Title     string   `json:"title,omitempty"`
	VideoPath string   `json:"video_path"`
	Texts     []string `json:"texts,omitempty"`
	Source    string   `json:"source,omitempty"` // "manual" or "derived"
	CreatedAt string   `json:"created_at,omitempty"`
}

// ValidationError names the meta.json field that failed validation.
// It surfaces as BAD_META_JSON on the catalog row; a raw decode error is
// never recorded directly.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// ParseMetadata decodes and validates a meta.json document.
func ParseMetadata(raw string) (*Metadata, error) {
	var meta Metadata
	decoder := json.NewDecoder(strings.NewReader(raw))
	if err := decoder.Decode(&meta); err != nil {
		return nil, &ValidationError{Field: "meta.json", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Validate checks that the declaration is resolvable.
func (m *Metadata) Validate() error {
	if strings.TrimSpace(m.VideoPath) == "" {
		return &ValidationError{Field: "video_path", Message: "is required"}
	}
	if err := checkTraversal(m.VideoPath); err != nil {
		return &ValidationError{Field: "video_path", Message: err.Error()}
	}
	for _, text := range m.Texts {
		if strings.TrimSpace(text) == "" {
			return &ValidationError{Field: "texts", Message: "contains an empty path"}
		}
		if err := checkTraversal(text); err != nil {
			return &ValidationError{Field: "texts", Message: err.Error()}
		}
	}
	return nil
}

// checkTraversal rejects paths that try to escape the video folder.
func checkTraversal(p string) error {
	for _, seg := range strings.Split(strings.ReplaceAll(p, "\\", "/"), "/") {
		if seg == ".." {
			return fmt.Errorf("path %q escapes the video folder", p)
		}
	}
	return nil
}

// resolvePath resolves a declared relative path against its folder,
// yielding an absolute drive path.
func resolvePath(folder, declared string) (string, error) {
	if err := checkTraversal(declared); err != nil {
		return "", err
	}
	return drive.Join(folder, declared), nil
}
