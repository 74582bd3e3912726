// Package moderation validates user text and per-mode image-input
// requirements before any external provider call. It fails closed: anything
// it does not recognize is rejected.
package moderation

import (
	"regexp"
	"strings"

	"server/internal/domain"
)

// RejectedMessage is the single user-facing message for every content-policy
// rejection. Returning the matched rule would let callers probe the filter.
const RejectedMessage = "Your request could not be processed because it conflicts with our content guidelines."

// MaxTextLength bounds the raw user prompt before any pattern matching runs.
const MaxTextLength = 2000

// Repetition heuristic: a word longer than two characters occurring more than
// repeatMinOccurrences times and making up over repeatMaxShare of the prompt
// is treated as spam.
const (
	repeatMinOccurrences = 5
	repeatMaxShare       = 0.30
)

var disallowedPatterns = []*regexp.Regexp{
	// Explicit sexual content.
	regexp.MustCompile(`(?i)\b(nude|naked|nsfw|porn|sexual|erotic|explicit)\b`),
	// Hate speech markers.
	regexp.MustCompile(`(?i)\b(nazi|white\s+power|ethnic\s+cleansing|racial\s+superiority)\b`),
	// Violence and gore.
	regexp.MustCompile(`(?i)\b(gore|beheading|mutilat\w+|dismember\w+|corpse|blood\s*bath)\b`),
	// Illegal activity.
	regexp.MustCompile(`(?i)\b(meth\s*lab|drug\s+den|counterfeit\w*|bomb\s*making|weapons?\s+cache)\b`),
	// PII-shaped strings: SSNs, card numbers, email addresses.
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),
	regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.]+\b`),
}

// Decision is the outcome of a text check.
type Decision struct {
	Allowed bool
	Reason  string
}

// ModerateText checks the raw user prompt. Empty text is always allowed; the
// prompt engine's seeds can stand alone.
func ModerateText(text string) Decision {
	text = strings.TrimSpace(text)
	if text == "" {
		return Decision{Allowed: true}
	}
	if len([]rune(text)) > MaxTextLength {
		return Decision{Reason: "prompt is too long"}
	}
	for _, pattern := range disallowedPatterns {
		if pattern.MatchString(text) {
			return Decision{Reason: RejectedMessage}
		}
	}
	if isRepetitionSpam(text) {
		return Decision{Reason: RejectedMessage}
	}
	return Decision{Allowed: true}
}

// ModerateImageInputs enforces the per-mode input requirements from the
// shared mode policy table. Unknown modes are rejected outright.
func ModerateImageInputs(mode domain.Mode, hasInput1, hasInput2 bool) error {
	policy, ok := mode.Policy()
	if !ok {
		return domain.NewValidationError("unsupported mode " + string(mode))
	}
	if policy.RequiresInput1 && !hasInput1 {
		return domain.NewValidationError("mode " + string(mode) + " requires an input image")
	}
	if policy.RequiresInput2 && !hasInput2 {
		return domain.NewValidationError("mode " + string(mode) + " requires a second input image")
	}
	return nil
}

func isRepetitionSpam(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return false
	}
	counts := make(map[string]int, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'")
		if len(w) > 2 {
			counts[w]++
		}
	}
	for _, n := range counts {
		if n > repeatMinOccurrences && float64(n)/float64(len(words)) > repeatMaxShare {
			return true
		}
	}
	return false
}
