package index

import (
	"regexp"
	"strconv"
	"strings"
)

// cue is a single timestamped caption from a WebVTT or SRT source.
type cue struct {
	start float64
	end   float64
	text  string
}

var (
	// Matches both WebVTT ("00:01.000 --> 00:04.000") and SRT
	// ("00:00:01,000 --> 00:00:04,000") cue timing lines.
	cueTimingRe = regexp.MustCompile(`^\s*(\d{1,2}:)?\d{1,2}:\d{2}[.,]\d{1,3}\s+-->\s+((\d{1,2}:)?\d{1,2}:\d{2}[.,]\d{1,3})`)
	markupTagRe = regexp.MustCompile(`<[^>]*>`)
)

// parseCues extracts timestamped cues from transcript content. Returns nil
// when the content carries no recognizable timecodes, in which case the
// caller falls back to paragraph chunking.
func parseCues(content string) []cue {
	lines := strings.Split(content, "\n")

	var cues []cue
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if !cueTimingRe.MatchString(line) {
			i++
			continue
		}

		parts := strings.SplitN(line, "-->", 2)
		start, okStart := parseTimecode(strings.TrimSpace(parts[0]))
		endField := strings.Fields(strings.TrimSpace(parts[1])) // drop cue settings after the end time
		var end float64
		okEnd := false
		if len(endField) > 0 {
			end, okEnd = parseTimecode(endField[0])
		}
		if !okStart || !okEnd {
			i++
			continue
		}

		var textLines []string
		i++
		for i < len(lines) {
			text := strings.TrimSpace(lines[i])
			if text == "" {
				break
			}
			textLines = append(textLines, markupTagRe.ReplaceAllString(text, ""))
			i++
		}

		text := strings.TrimSpace(strings.Join(textLines, " "))
		if text != "" {
			cues = append(cues, cue{start: start, end: end, text: text})
		}
	}
	return cues
}

// parseTimecode parses "hh:mm:ss.mmm", "mm:ss.mmm" and the comma variants
// into seconds.
func parseTimecode(tc string) (float64, bool) {
	tc = strings.ReplaceAll(tc, ",", ".")
	parts := strings.Split(tc, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	var total float64
	for _, part := range parts {
		value, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, false
		}
		total = total*60 + value
	}
	return total, true
}
