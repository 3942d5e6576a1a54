package pipeline

import "strings"

// countTokens estimates token count the way a BPE-ish tokenizer would
// roughly land, without pulling in a full tokenizer dependency: a
// four-characters-per-token heuristic, floored by word count so dense
// or numeric text doesn't get under-counted.
func countTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	charEstimate := len(text) / 4
	// Word count is a tighter floor for prose; character estimate
	// dominates for dense/numeric text. Take whichever is larger so
	// neither skew under-counts.
	if words > charEstimate {
		return words
	}
	return charEstimate
}
