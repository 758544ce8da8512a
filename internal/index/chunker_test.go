package index

import (
	"strings"
	"testing"
	"unicode/utf8"

	"clipdex/internal/fingerprint"
)

func TestChunkText_SummaryMarkdown(t *testing.T) {
	c := NewChunker()
	content := "# Vanishing Points\n\nA talk about *perspective* in Renaissance art.\n\n- horizon lines\n- depth cues\n"

	chunks := c.ChunkText(content, fingerprint.KindSummary)
	if len(chunks) != 1 {
		t.Fatalf("ChunkText() produced %d chunks, want 1", len(chunks))
	}
	chunk := chunks[0]
	if chunk.Source != "summary" {
		t.Errorf("source = %s, want summary", chunk.Source)
	}
	if strings.Contains(chunk.Text, "#") || strings.Contains(chunk.Text, "*") {
		t.Errorf("markdown syntax leaked into chunk: %q", chunk.Text)
	}
	if !strings.Contains(chunk.Text, "Vanishing Points") || !strings.Contains(chunk.Text, "perspective") {
		t.Errorf("content missing from chunk: %q", chunk.Text)
	}
	if chunk.StartSec != nil || chunk.EndSec != nil {
		t.Error("summary chunk has timing")
	}
}

func TestChunkText_SummaryBounded(t *testing.T) {
	c := NewChunker()
	content := strings.Repeat("some fairly ordinary words about a video ", 100)

	chunks := c.ChunkText(content, fingerprint.KindSummary)
	if len(chunks) < 2 {
		t.Fatalf("long summary produced %d chunks, want several", len(chunks))
	}
	for i, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk.Text); n > maxChunkRunes {
			t.Errorf("chunk %d has %d runes, exceeds %d", i, n, maxChunkRunes)
		}
		if chunk.Seq != i {
			t.Errorf("chunk %d has seq %d", i, chunk.Seq)
		}
	}
}

func TestChunkText_EmptyInputs(t *testing.T) {
	c := NewChunker()
	for _, kind := range []fingerprint.TextKind{fingerprint.KindSummary, fingerprint.KindTranscript} {
		if chunks := c.ChunkText("   \n\n  ", kind); len(chunks) != 0 {
			t.Errorf("ChunkText(blank, %s) = %d chunks, want 0", kind, len(chunks))
		}
	}
}

func TestChunkText_VTTTranscript(t *testing.T) {
	c := NewChunker()
	content := `WEBVTT

00:01.000 --> 00:04.000
Welcome to the talk.

00:04.500 --> 00:09.000
Today we discuss <i>perspective</i> in painting.
`

	chunks := c.ChunkText(content, fingerprint.KindTranscript)
	if len(chunks) != 1 {
		t.Fatalf("ChunkText() produced %d chunks, want 1 merged chunk", len(chunks))
	}
	chunk := chunks[0]
	if chunk.Source != "transcript" {
		t.Errorf("source = %s", chunk.Source)
	}
	if !strings.HasPrefix(chunk.Text, "[00:01]") {
		t.Errorf("chunk text missing timecode prefix: %q", chunk.Text)
	}
	if strings.Contains(chunk.Text, "<i>") {
		t.Errorf("markup leaked into chunk: %q", chunk.Text)
	}
	if chunk.StartSec == nil || *chunk.StartSec != 1.0 {
		t.Errorf("start = %v, want 1.0", chunk.StartSec)
	}
	if chunk.EndSec == nil || *chunk.EndSec != 9.0 {
		t.Errorf("end = %v, want 9.0", chunk.EndSec)
	}
}

func TestChunkText_SRTTranscriptSplits(t *testing.T) {
	c := NewChunker()

	// Enough long cues to force more than one chunk.
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("1\n00:0")
		b.WriteByte(byte('0' + i))
		b.WriteString(":01,000 --> 00:0")
		b.WriteByte(byte('0' + i))
		b.WriteString(":59,000\n")
		b.WriteString(strings.Repeat("spoken words in this caption block ", 6))
		b.WriteString("\n\n")
	}

	chunks := c.ChunkText(b.String(), fingerprint.KindTranscript)
	if len(chunks) < 2 {
		t.Fatalf("long transcript produced %d chunks, want several", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.StartSec == nil || chunk.EndSec == nil {
			t.Fatalf("chunk %d missing timing", i)
		}
		if *chunk.StartSec >= *chunk.EndSec {
			t.Errorf("chunk %d timing inverted: %v >= %v", i, *chunk.StartSec, *chunk.EndSec)
		}
		if i > 0 && *chunks[i-1].StartSec >= *chunk.StartSec {
			t.Errorf("chunk timings not increasing at %d", i)
		}
	}
}

func TestChunkText_PlainTranscriptFallback(t *testing.T) {
	c := NewChunker()
	content := "This transcript has no timestamps whatsoever, just plain narration text.\n\nIt keeps going in a second paragraph with more spoken material to chunk."

	chunks := c.ChunkText(content, fingerprint.KindTranscript)
	if len(chunks) == 0 {
		t.Fatal("plain transcript produced no chunks")
	}
	for i, chunk := range chunks {
		if chunk.StartSec != nil {
			t.Errorf("chunk %d has timing despite no timecodes", i)
		}
		if chunk.Source != "transcript" {
			t.Errorf("chunk %d source = %s", i, chunk.Source)
		}
	}
}

func TestSplitBounded(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want int
	}{
		{"short stays whole", "hello world", 50, 1},
		{"empty", "   ", 50, 0},
		{"splits at words", strings.Repeat("word ", 30), 52, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pieces := splitBounded(tt.text, tt.max)
			if len(pieces) != tt.want {
				t.Errorf("splitBounded() = %d pieces, want %d", len(pieces), tt.want)
			}
			for _, piece := range pieces {
				if utf8.RuneCountInString(piece) > tt.max {
					t.Errorf("piece %q exceeds max %d", piece, tt.max)
				}
			}
		})
	}
}

func TestSplitBounded_OversizedWord(t *testing.T) {
	word := strings.Repeat("x", 25)
	pieces := splitBounded(word, 10)
	if len(pieces) != 3 {
		t.Fatalf("splitBounded() = %d pieces, want 3", len(pieces))
	}
	if pieces[2] != "xxxxx" {
		t.Errorf("last piece = %q", pieces[2])
	}
}

func TestParseTimecode(t *testing.T) {
	tests := []struct {
		tc   string
		want float64
		ok   bool
	}{
		{"00:01.000", 1.0, true},
		{"01:02:03.500", 3723.5, true},
		{"00:00:04,250", 4.25, true},
		{"90:00", 5400, true},
		{"nonsense", 0, false},
		{"1", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseTimecode(tt.tc)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("parseTimecode(%q) = (%v, %v), want (%v, %v)", tt.tc, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatTimecode(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{61, "[01:01]"},
		{0, "[00:00]"},
		{3723, "[1:02:03]"},
	}
	for _, tt := range tests {
		if got := formatTimecode(tt.sec); got != tt.want {
			t.Errorf("formatTimecode(%v) = %s, want %s", tt.sec, got, tt.want)
		}
	}
}
