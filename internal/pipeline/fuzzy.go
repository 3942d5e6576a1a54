package pipeline

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ratio converts a Levenshtein edit distance into a 0-100 similarity
// score the same way fuzzywuzzy's simple ratio does: 1 - distance/maxLen.
func ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	score := (1.0 - float64(dist)/float64(maxLen)) * 100
	if score < 0 {
		score = 0
	}
	return score
}

var tokenSplitter = func(r rune) bool {
	switch r {
	case ' ', ',', ';', ':', '-', '"', '\'', '(', ')', '\t', '\n':
		return true
	default:
		return false
	}
}

func tokenize(s string) []string {
	raw := strings.FieldsFunc(strings.ToLower(s), tokenSplitter)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if len(t) >= 2 {
			out = append(out, t)
		}
	}
	return out
}

// tokenSetRatio approximates fuzzywuzzy's token_set_ratio: it tokenizes
// both strings, builds the shared-token intersection plus each side's
// remainder, and scores the best pairing of those three reconstructed
// strings — insensitive to word order and to one side carrying extra
// tokens the other lacks (e.g. a middle initial).
func tokenSetRatio(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}
	setB := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		setB[t] = true
	}

	var intersection, onlyA, onlyB []string
	for t := range setA {
		if setB[t] {
			intersection = append(intersection, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if !setA[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(intersection)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sorted := strings.Join(intersection, " ")
	combinedA := strings.TrimSpace(sorted + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(sorted + " " + strings.Join(onlyB, " "))

	best := ratio(sorted, combinedA)
	if r := ratio(sorted, combinedB); r > best {
		best = r
	}
	if r := ratio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

// partialRatio scores the best-aligned substring of the longer string
// against the shorter one — catches "Reserve Bank" matching inside
// "the Reserve Bank of India" even though lengths differ a lot.
func partialRatio(a, b string) float64 {
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	if len(shorter) == 0 {
		return 0
	}
	if len(longer) <= len(shorter) {
		return ratio(shorter, longer)
	}

	best := 0.0
	for i := 0; i+len(shorter) <= len(longer); i++ {
		window := longer[i : i+len(shorter)]
		if r := ratio(shorter, window); r > best {
			best = r
		}
	}
	return best
}

// FuzzyMatch reports the best similarity between query and a candidate
// name (tried against its canonical name and any known aliases),
// combining an exact-substring fast path with the token-set/partial
// fuzzy fallback, mirroring the hybrid strategy of fuzzy_match_name.
func FuzzyMatch(query, canonicalName string, aliases []string, threshold float64) (matchedName string, score float64, matched bool) {
	queryLower := strings.ToLower(query)
	names := append([]string{canonicalName}, aliases...)

	for _, name := range names {
		if name == "" {
			continue
		}
		if strings.Contains(queryLower, strings.ToLower(name)) {
			return name, 100, true
		}
	}

	bestScore := 0.0
	bestName := ""
	for _, name := range names {
		if name == "" {
			continue
		}
		nameLower := strings.ToLower(name)
		s := tokenSetRatio(nameLower, queryLower)
		if p := partialRatio(nameLower, queryLower); p > s {
			s = p
		}
		if s >= threshold && s > bestScore {
			bestScore = s
			bestName = name
		}
	}
	if bestName != "" {
		return bestName, bestScore, true
	}
	return "", 0, false
}
