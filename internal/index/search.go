package index

import (
	"strings"
	"unicode"
)

// Lexical boost constants. The boost is capped so vector similarity stays
// the dominant signal; a title-token prefix match earns the full boost, a
// plain occurrence in the winning chunk the partial one.
const (
	titlePrefixBoost = float32(0.15)
	chunkMatchBoost  = float32(0.07)
	maxLexicalBoost  = float32(0.2)
)

var searchStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "with": {}, "what": {}, "which": {},
	"who": {}, "how": {}, "about": {},
}

// tokenize lowercases text and splits it into alphanumeric tokens.
func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// stem applies light suffix stripping, enough to make "vanishing" match
// "vanish" without a full stemmer.
func stem(token string) string {
	for _, suffix := range []string{"ing", "ed", "es", "s"} {
		if strings.HasSuffix(token, suffix) && len(token)-len(suffix) >= 3 {
			return token[:len(token)-len(suffix)]
		}
	}
	return token
}

// queryTokens returns the stemmed, stopword-filtered tokens of a query.
func queryTokens(query string) []string {
	var result []string
	seen := make(map[string]struct{})
	for _, token := range tokenize(query) {
		if _, stop := searchStopwords[token]; stop {
			continue
		}
		stemmed := stem(token)
		if _, dup := seen[stemmed]; dup {
			continue
		}
		seen[stemmed] = struct{}{}
		result = append(result, stemmed)
	}
	return result
}

// expandQuery appends stemmed variants of the query's keywords to the query
// text before embedding, nudging the vector toward the content words.
func expandQuery(query string) string {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return query
	}
	present := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		present[token] = struct{}{}
	}

	var variants []string
	for _, stemmed := range queryTokens(query) {
		if _, ok := present[stemmed]; !ok {
			variants = append(variants, stemmed)
		}
	}
	if len(variants) == 0 {
		return query
	}
	return query + " " + strings.Join(variants, " ")
}

// lexicalBoost computes the capped boost for one candidate.
// titleMatch is also returned separately: a title match always outranks
// non-title matches regardless of raw similarity.
func lexicalBoost(tokens []string, title, chunkText string) (boost float32, titleMatch bool) {
	if len(tokens) == 0 {
		return 0, false
	}

	titleTokens := tokenize(title)
	for _, qt := range tokens {
		for _, tt := range titleTokens {
			if strings.HasPrefix(tt, qt) {
				titleMatch = true
				boost += titlePrefixBoost
				break
			}
		}
	}

	lowerChunk := strings.ToLower(chunkText)
	for _, qt := range tokens {
		if strings.Contains(lowerChunk, qt) {
			boost += chunkMatchBoost
		}
	}

	if boost > maxLexicalBoost {
		boost = maxLexicalBoost
	}
	return boost, titleMatch
}

const snippetRunes = 160

// buildSnippet centers a window on the first literal query occurrence in the
// chunk text, falling back to a prefix when the query never appears verbatim.
func buildSnippet(text, query string) string {
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}

	pos := -1
	if trimmed := strings.TrimSpace(query); trimmed != "" {
		if idx := strings.Index(strings.ToLower(text), strings.ToLower(trimmed)); idx >= 0 {
			pos = len([]rune(text[:idx]))
		}
	}
	if pos < 0 {
		return strings.TrimSpace(string(runes[:snippetRunes])) + "…"
	}

	start := pos - snippetRunes/2
	if start < 0 {
		start = 0
	}
	end := start + snippetRunes
	if end > len(runes) {
		end = len(runes)
		start = end - snippetRunes
	}

	snippet := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(runes) {
		snippet += "…"
	}
	return snippet
}
