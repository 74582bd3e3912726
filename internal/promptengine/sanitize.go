package promptengine

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	punctRepeatRe = regexp.MustCompile(`([.,!?;:])(\s*[.,!?;:])+`)
	sentenceEndRe = regexp.MustCompile(`([.!?])\s+`)
)

// Sanitize normalizes user text: NFC unicode normalization, whitespace
// collapse and de-duplicated punctuation runs. It never alters meaning.
func Sanitize(s string) string {
	s = norm.NFC.String(s)
	s = strings.TrimSpace(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = punctRepeatRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// JoinSegments joins non-empty segments with single spaces and collapses any
// whitespace introduced by the segments themselves.
func JoinSegments(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		parts = append(parts, seg)
	}
	return whitespaceRe.ReplaceAllString(strings.Join(parts, " "), " ")
}

// ClampToBudget enforces the character budget. Whole sentences are removed
// from the middle first, preserving the opening instruction and the trailing
// clause; only when that is not enough does it hard-truncate on a word
// boundary.
func ClampToBudget(s string, maxChars int) string {
	if maxChars <= 0 || len([]rune(s)) <= maxChars {
		return s
	}
	sentences := splitSentences(s)
	for len(sentences) > 2 && len([]rune(strings.Join(sentences, " "))) > maxChars {
		mid := len(sentences) / 2
		sentences = append(sentences[:mid], sentences[mid+1:]...)
	}
	s = strings.Join(sentences, " ")
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	truncated := string(runes[:maxChars])
	if idx := strings.LastIndex(truncated, " "); idx > 0 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}

// splitSentences splits on terminal punctuation followed by whitespace,
// keeping the punctuation attached to its sentence.
func splitSentences(s string) []string {
	marked := sentenceEndRe.ReplaceAllString(s, "$1\x00")
	raw := strings.Split(marked, "\x00")
	sentences := make([]string, 0, len(raw))
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part != "" {
			sentences = append(sentences, part)
		}
	}
	return sentences
}
