package pipeline

import "strings"

// defaultSeparators is the semantic-boundary hierarchy tried in order
// before falling back to a character-level split: paragraph, line,
// sentence, clause, word, character.
var defaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}

// recursiveTextSplitter splits text into chunks near chunkSize tokens,
// preferring to break on paragraph/sentence boundaries, with
// chunkOverlap tokens of trailing context carried into the next chunk.
type recursiveTextSplitter struct {
	chunkSize    int
	chunkOverlap int
}

func newRecursiveTextSplitter(chunkSize, chunkOverlap int) *recursiveTextSplitter {
	return &recursiveTextSplitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

func (s *recursiveTextSplitter) splitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, defaultSeparators)
}

func (s *recursiveTextSplitter) split(text string, separators []string) []string {
	var finalChunks []string

	separator := ""
	var newSeparators []string
	if len(separators) > 0 {
		separator = separators[len(separators)-1]
	}
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			newSeparators = nil
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			newSeparators = separators[i+1:]
			break
		}
	}

	var splits []string
	if separator != "" {
		splits = strings.Split(text, separator)
	} else {
		splits = strings.Split(text, "")
	}

	var goodSplits []string
	for _, part := range splits {
		if part == "" {
			continue
		}
		partLen := countTokens(part)
		if partLen > s.chunkSize {
			if len(goodSplits) > 0 {
				finalChunks = append(finalChunks, s.mergeSplits(goodSplits, separator)...)
				goodSplits = nil
			}
			if len(newSeparators) > 0 {
				finalChunks = append(finalChunks, s.split(part, newSeparators)...)
			} else {
				finalChunks = append(finalChunks, s.forceSplit(part)...)
			}
		} else {
			goodSplits = append(goodSplits, part)
		}
	}
	if len(goodSplits) > 0 {
		finalChunks = append(finalChunks, s.mergeSplits(goodSplits, separator)...)
	}

	out := make([]string, 0, len(finalChunks))
	for _, c := range finalChunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *recursiveTextSplitter) mergeSplits(splits []string, separator string) []string {
	if len(splits) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, part := range splits {
		partLen := countTokens(part)
		sepLen := 0
		if len(current) > 0 {
			sepLen = countTokens(separator)
		}
		potential := currentLen + partLen + sepLen

		if potential > s.chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, separator))
			current = s.overlapSplits(current, separator)
			if len(current) > 0 {
				currentLen = countTokens(strings.Join(current, separator))
			} else {
				currentLen = 0
			}
		}

		current = append(current, part)
		currentLen = countTokens(strings.Join(current, separator))
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, separator))
	}
	return chunks
}

func (s *recursiveTextSplitter) overlapSplits(splits []string, separator string) []string {
	if len(splits) == 0 || s.chunkOverlap <= 0 {
		return nil
	}
	var overlap []string
	overlapLen := 0
	for i := len(splits) - 1; i >= 0; i-- {
		part := splits[i]
		testLen := overlapLen + countTokens(part)
		if len(overlap) > 0 {
			testLen += countTokens(separator)
		}
		if testLen <= s.chunkOverlap {
			overlap = append([]string{part}, overlap...)
			overlapLen = testLen
		} else {
			break
		}
	}
	return overlap
}

func (s *recursiveTextSplitter) forceSplit(text string) []string {
	var chunks []string
	start := 0
	textLen := len(text)

	for start < textLen {
		end := start + s.chunkSize*4
		if end > textLen {
			end = textLen
		}
		for end > start {
			if countTokens(text[start:end]) <= s.chunkSize {
				break
			}
			step := (end - start) / 10
			if step < 1 {
				step = 1
			}
			end -= step
		}
		if end <= start {
			end = start + 1
		}
		chunks = append(chunks, text[start:end])

		overlapChars := s.chunkOverlap * 4
		if overlapChars < 0 {
			overlapChars = 0
		}
		next := end - overlapChars
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}
