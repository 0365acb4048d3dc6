// Package segment splits long text into chunks that fit the synthesis
// service's per-request byte limit without breaking words or sentences.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/ttypes"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMaxChunkBytes is the request budget of the synthesis API.
	DefaultMaxChunkBytes = 4500

	// DefaultMaxSentenceBytes is the per-sentence budget of the repair pass.
	DefaultMaxSentenceBytes = 1000
)

// Segmenter splits text into byte-bounded chunks.
type Segmenter struct {
	maxSentenceBytes int
}

// NewSegmenter creates a segmenter that breaks sentences longer than
// maxSentenceBytes before chunking.
func NewSegmenter(maxSentenceBytes int) *Segmenter {
	if maxSentenceBytes <= 0 {
		maxSentenceBytes = DefaultMaxSentenceBytes
	}
	return &Segmenter{maxSentenceBytes: maxSentenceBytes}
}

// Split returns the ordered chunks of text, each at most maxBytes bytes of
// UTF-8 unless a single codepoint is larger than maxBytes. Empty or
// whitespace-only text yields no chunks.
func (s *Segmenter) Split(text string, maxBytes int) []ttypes.TextChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxChunkBytes
	}

	rest := s.Normalize(text, maxBytes)

	var chunks []ttypes.TextChunk
	add := func(t string) {
		if t = strings.TrimSpace(t); t != "" {
			chunks = append(chunks, ttypes.TextChunk{Index: len(chunks), Text: t})
		}
	}

	for len(rest) > maxBytes {
		cut := bestCut(rest, maxBytes)
		add(rest[:cut])
		rest = strings.TrimLeftFunc(rest[cut:], unicode.IsSpace)
	}
	add(rest)

	log.Debug("Segmented text", "bytes", len(text), "chunks", len(chunks), "maxBytes", maxBytes)
	return chunks
}

// Normalize runs the sentence repair pass: every sentence longer than the
// sentence budget is broken into terminated pieces, sentences are re-joined
// with single spaces and paragraphs with a blank line.
func (s *Segmenter) Normalize(text string, maxBytes int) string {
	budget := s.maxSentenceBytes
	if maxBytes > 0 && maxBytes < budget {
		budget = maxBytes
	}

	text = norm.NFC.String(text)

	paragraphs := splitParagraphs(text)
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		var repaired []string
		for _, sentence := range splitSentences(p) {
			if len(sentence) > budget {
				pieces := breakSentence(sentence, budget)
				log.Debug("Broke long sentence", "bytes", len(sentence), "pieces", len(pieces))
				repaired = append(repaired, pieces...)
				continue
			}
			repaired = append(repaired, sentence)
		}
		if len(repaired) > 0 {
			out = append(out, strings.Join(repaired, " "))
		}
	}
	return strings.Join(out, "\n\n")
}

// bestCut returns the byte offset at which to cut text so that the head is
// at most maxBytes. It prefers a paragraph break, then a sentence end, then
// whitespace, and falls back to the last codepoint boundary.
func bestCut(text string, maxBytes int) int {
	limit := maxBytes
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	if limit == 0 {
		// a single codepoint wider than the budget
		_, size := utf8.DecodeRuneInString(text)
		return size
	}
	window := text[:limit]

	if i := strings.LastIndex(window, "\n\n"); i > 0 {
		return i
	}

	for i := len(window) - 1; i > 0; i-- {
		switch window[i] {
		case '.', '!', '?':
			if i+1 < len(text) && isSpaceByte(text[i+1]) {
				return i + 1
			}
		}
	}

	if i := strings.LastIndexFunc(window, unicode.IsSpace); i > 0 {
		return i
	}

	return limit
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
