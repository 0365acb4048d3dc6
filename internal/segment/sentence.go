package segment

import (
	"regexp"
	"strings"
)

// Sentence boundaries: terminal punctuation, optional closing quotes or
// brackets, then whitespace.
var sentenceEndRegex = regexp.MustCompile(`[.!?]+["'”’)\]]*\s+`)

var paragraphRegex = regexp.MustCompile(`\n[ \t\r\f\v]*\n\s*`)

// breakPattern is a place a long sentence may be cut. The cut is made right
// after the punctuation mark the pattern starts with.
type breakPattern struct {
	name  string
	regex *regexp.Regexp
}

// Ordered by how natural a pause they make.
var breakPatterns = []breakPattern{
	{"conjunction", regexp.MustCompile(`(?i),\s+(?:and|but|or|so|yet|for|nor)\s`)},
	{"transition", regexp.MustCompile(`(?i),\s+(?:however|therefore|moreover|nevertheless)\b`)},
	{"semicolon", regexp.MustCompile(`;\s*`)},
	{"relative", regexp.MustCompile(`(?i),\s+(?:which|that|who|where|when)\s`)},
	{"comma", regexp.MustCompile(`,\s*`)},
	{"colon", regexp.MustCompile(`:\s*`)},
}

// splitParagraphs splits text at blank lines.
func splitParagraphs(text string) []string {
	parts := paragraphRegex.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits a paragraph into sentences with collapsed whitespace.
func splitSentences(paragraph string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceEndRegex.FindAllStringIndex(paragraph, -1) {
		if s := collapseSpace(paragraph[start:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if s := collapseSpace(paragraph[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// breakSentence breaks a sentence longer than budget bytes into pieces of at
// most budget bytes each, terminal punctuation included.
func breakSentence(sentence string, budget int) []string {
	if len(sentence) <= budget {
		return []string{sentence}
	}

	for _, p := range breakPatterns {
		parts := splitAtPattern(sentence, p.regex)
		if len(parts) < 2 {
			continue
		}
		pieces := packPieces(parts, budget)
		if len(pieces) >= 2 && allWithin(pieces, budget) {
			return pieces
		}
	}

	return splitAtWords(sentence, budget)
}

// splitAtPattern cuts after the leading punctuation of every match.
func splitAtPattern(sentence string, re *regexp.Regexp) []string {
	var parts []string
	start := 0
	for _, loc := range re.FindAllStringIndex(sentence, -1) {
		cut := loc[0] + 1
		if part := strings.TrimSpace(sentence[start:cut]); part != "" {
			parts = append(parts, part)
		}
		start = cut
	}
	if part := strings.TrimSpace(sentence[start:]); part != "" {
		parts = append(parts, part)
	}
	return parts
}

// packPieces greedily joins consecutive parts while the terminated result
// stays within budget.
func packPieces(parts []string, budget int) []string {
	var pieces []string
	current := ""
	for _, part := range parts {
		if current == "" {
			current = part
			continue
		}
		candidate := current + " " + part
		if len(terminate(candidate)) <= budget {
			current = candidate
			continue
		}
		pieces = append(pieces, terminate(current))
		current = part
	}
	if current != "" {
		pieces = append(pieces, terminate(current))
	}
	return pieces
}

// splitAtWords accumulates words until the next one would cross budget minus
// a safety margin. A single word over the limit becomes its own piece and is
// left unterminated: the chunker hard-cuts it anyway.
func splitAtWords(sentence string, budget int) []string {
	limit := budget - safetyMargin(budget)

	var pieces []string
	var current strings.Builder
	words := 0
	flush := func() {
		piece := current.String()
		if words > 1 || len(piece) < limit {
			piece = terminate(piece)
		}
		pieces = append(pieces, piece)
		current.Reset()
		words = 0
	}
	for _, word := range strings.Fields(sentence) {
		if current.Len() > 0 && current.Len()+1+len(word)+1 > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
		words++
	}
	if current.Len() > 0 {
		flush()
	}
	return pieces
}

func safetyMargin(budget int) int {
	m := budget / 10
	if m > 16 {
		m = 16
	}
	return m
}

// terminate makes a piece end in terminal punctuation. Any run of trailing
// commas, semicolons and colons is dropped and replaced by the period rather
// than kept in front of it, so "wait," becomes "wait." and not "wait,.".
// Pieces already ending a sentence are returned trimmed but unchanged.
func terminate(piece string) string {
	piece = strings.TrimSpace(piece)
	if piece == "" || endsSentence(piece) {
		return piece
	}
	piece = strings.TrimSpace(strings.TrimRight(piece, ",;:"))
	return piece + "."
}

func endsSentence(s string) bool {
	s = strings.TrimRight(s, `"'”’)]`)
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

func allWithin(pieces []string, budget int) bool {
	for _, p := range pieces {
		if len(p) > budget {
			return false
		}
	}
	return true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
