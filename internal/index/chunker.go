package index

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"clipdex/internal/fingerprint"
)

const (
	// ChunkingVersion identifies the chunking logic. It participates in the
	// persisted index descriptor; bumping it forces a full rebuild.
	ChunkingVersion = "v1"

	minChunkRunes = 50
	maxChunkRunes = 700 // targets ~450 tokens for a 512-token embedding model
)

// Chunk is one bounded span of text, the unit of embedding and retrieval.
type Chunk struct {
	Seq      int
	Source   string // "summary" or "transcript"
	Text     string
	StartSec *float64
	EndSec   *float64
}

// Chunker turns text sources into embedding-sized chunks. Summary text is
// markdown-flattened through goldmark; transcripts split by timestamped cue
// when the source carries timecodes, else by paragraph.
type Chunker struct {
	parser goldmark.Markdown
}

// NewChunker creates a new chunker.
func NewChunker() *Chunker {
	return &Chunker{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// ChunkText chunks content according to its source kind.
func (c *Chunker) ChunkText(content string, kind fingerprint.TextKind) []Chunk {
	if kind == fingerprint.KindTranscript {
		return c.chunkTranscript(content)
	}
	return c.chunkSummary(content)
}

// chunkSummary flattens markdown into plain text and splits it into bounded
// chunks at word boundaries.
func (c *Chunker) chunkSummary(content string) []Chunk {
	plain := c.plainText(content)
	if strings.TrimSpace(plain) == "" {
		return nil
	}

	var chunks []Chunk
	for _, piece := range splitBounded(plain, maxChunkRunes) {
		chunks = append(chunks, Chunk{
			Seq:    len(chunks),
			Source: string(fingerprint.KindSummary),
			Text:   piece,
		})
	}
	return chunks
}

// chunkTranscript splits transcript content by timestamped cue when timecodes
// are present, else by paragraph. Cue chunks retain start/end seconds and a
// human-readable timecode prefix.
func (c *Chunker) chunkTranscript(content string) []Chunk {
	cues := parseCues(content)
	if len(cues) == 0 {
		return c.chunkPlainTranscript(content)
	}

	var chunks []Chunk
	var current []cue
	var currentRunes int

	flush := func() {
		if len(current) == 0 {
			return
		}
		start := current[0].start
		end := current[len(current)-1].end
		parts := make([]string, len(current))
		for i, cu := range current {
			parts[i] = cu.text
		}
		chunkText := formatTimecode(start) + " " + strings.Join(parts, " ")
		startSec, endSec := start, end
		chunks = append(chunks, Chunk{
			Seq:      len(chunks),
			Source:   string(fingerprint.KindTranscript),
			Text:     chunkText,
			StartSec: &startSec,
			EndSec:   &endSec,
		})
		current = nil
		currentRunes = 0
	}

	for _, cu := range cues {
		cueRunes := utf8.RuneCountInString(cu.text)
		if currentRunes > 0 && currentRunes+cueRunes > maxChunkRunes && currentRunes >= minChunkRunes {
			flush()
		}
		current = append(current, cu)
		currentRunes += cueRunes
	}
	flush()
	return chunks
}

// chunkPlainTranscript splits an untimestamped transcript by paragraph,
// merging tiny paragraphs and splitting oversized ones.
func (c *Chunker) chunkPlainTranscript(content string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var paragraphs []string
	var pending string
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if pending != "" {
			para = pending + "\n\n" + para
			pending = ""
		}
		if utf8.RuneCountInString(para) < minChunkRunes {
			pending = para
			continue
		}
		paragraphs = append(paragraphs, para)
	}
	if pending != "" {
		paragraphs = append(paragraphs, pending)
	}

	var chunks []Chunk
	for _, para := range paragraphs {
		for _, piece := range splitBounded(para, maxChunkRunes) {
			chunks = append(chunks, Chunk{
				Seq:    len(chunks),
				Source: string(fingerprint.KindTranscript),
				Text:   piece,
			})
		}
	}
	return chunks
}

// plainText renders markdown to whitespace-normalized plain text by walking
// the goldmark AST and collecting text segments.
func (c *Chunker) plainText(content string) string {
	source := []byte(content)
	doc := c.parser.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				b.Write(line.Value(source))
			}
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

// splitBounded splits text into pieces of at most max runes, breaking at
// word boundaries. A single oversized word is hard-split.
func splitBounded(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	var pieces []string
	var current strings.Builder
	currentRunes := 0

	for _, word := range strings.Fields(text) {
		wordRunes := utf8.RuneCountInString(word)
		if wordRunes > max {
			// Pathological single token; hard-split by runes.
			if currentRunes > 0 {
				pieces = append(pieces, current.String())
				current.Reset()
				currentRunes = 0
			}
			runes := []rune(word)
			for len(runes) > max {
				pieces = append(pieces, string(runes[:max]))
				runes = runes[max:]
			}
			current.WriteString(string(runes))
			currentRunes = len(runes)
			continue
		}
		if currentRunes > 0 && currentRunes+1+wordRunes > max {
			pieces = append(pieces, current.String())
			current.Reset()
			currentRunes = 0
		}
		if currentRunes > 0 {
			current.WriteByte(' ')
			currentRunes++
		}
		current.WriteString(word)
		currentRunes += wordRunes
	}
	if currentRunes > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

// formatTimecode renders seconds as "[mm:ss]" or "[h:mm:ss]".
func formatTimecode(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("[%d:%02d:%02d]", h, m, s)
	}
	return fmt.Sprintf("[%02d:%02d]", m, s)
}
