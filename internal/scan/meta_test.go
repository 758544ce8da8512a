package scan

import (
	"testing"

	"clipdex/internal/fingerprint"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantField string
	}{
		{
			name: "valid",
			raw:  `{"title": "T", "video_path": "video.mp4", "texts": ["summary.md"]}`,
		},
		{
			name:      "invalid json",
			raw:       `{broken`,
			wantErr:   true,
			wantField: "meta.json",
		},
		{
			name:      "missing video path",
			raw:       `{"title": "T"}`,
			wantErr:   true,
			wantField: "video_path",
		},
		{
			name:      "video path traversal",
			raw:       `{"video_path": "../elsewhere/video.mp4"}`,
			wantErr:   true,
			wantField: "video_path",
		},
		{
			name:      "text traversal",
			raw:       `{"video_path": "video.mp4", "texts": ["..\\win\\style.txt"]}`,
			wantErr:   true,
			wantField: "texts",
		},
		{
			name:      "empty text entry",
			raw:       `{"video_path": "video.mp4", "texts": [" "]}`,
			wantErr:   true,
			wantField: "texts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := ParseMetadata(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("ParseMetadata() expected error")
				}
				ve, ok := err.(*ValidationError)
				if !ok {
					t.Fatalf("ParseMetadata() error type = %T, want *ValidationError", err)
				}
				if ve.Field != tt.wantField {
					t.Errorf("ValidationError field = %s, want %s", ve.Field, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMetadata() error = %v", err)
			}
			if md.VideoPath == "" {
				t.Error("ParseMetadata() returned empty video path")
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	got, err := resolvePath("library/talk", "sub/summary.md")
	if err != nil {
		t.Fatalf("resolvePath() error = %v", err)
	}
	if got != "library/talk/sub/summary.md" {
		t.Errorf("resolvePath() = %q", got)
	}

	if _, err := resolvePath("library/talk", "../other.md"); err == nil {
		t.Error("resolvePath() should reject traversal")
	}
}

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"video.mp4", true},
		{"VIDEO.MKV", true},
		{"clip.webm", true},
		{"clip.m4v", true},
		{"summary.md", false},
		{"video.mp4.part", false},
		{"video", false},
	}
	for _, tt := range tests {
		if got := isVideoFile(tt.name); got != tt.want {
			t.Errorf("isVideoFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestClassifyTextName(t *testing.T) {
	tests := []struct {
		name     string
		wantKind fingerprint.TextKind
		wantOK   bool
	}{
		{"summary.md", fingerprint.KindSummary, true},
		{"Summary.MD", fingerprint.KindSummary, true},
		{"description.txt", fingerprint.KindSummary, true},
		{"title.txt", fingerprint.KindSummary, true},
		{"captions.vtt", fingerprint.KindTranscript, true},
		{"subtitles.srt", fingerprint.KindTranscript, true},
		{"transcript.txt", fingerprint.KindTranscript, true},
		{"transcript-part2.md", fingerprint.KindTranscript, true},
		{"meta.json", "", false},
		{"video.mp4", "", false},
		{"random.txt", "", false},
	}
	for _, tt := range tests {
		kind, ok := classifyTextName(tt.name)
		if ok != tt.wantOK || kind != tt.wantKind {
			t.Errorf("classifyTextName(%q) = (%q, %v), want (%q, %v)", tt.name, kind, ok, tt.wantKind, tt.wantOK)
		}
	}
}

func TestTitleFromStem(t *testing.T) {
	tests := []struct {
		stem string
		want string
	}{
		{"talk-on-perspective", "Talk On Perspective"},
		{"my_summer_trip", "My Summer Trip"},
		{"already Titled", "Already Titled"},
		{"single", "Single"},
	}
	for _, tt := range tests {
		if got := titleFromStem(tt.stem); got != tt.want {
			t.Errorf("titleFromStem(%q) = %q, want %q", tt.stem, got, tt.want)
		}
	}
}
