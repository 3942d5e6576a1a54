package pipeline

import "testing"

func TestFuzzyMatchExactSubstring(t *testing.T) {
	name, score, ok := FuzzyMatch("the Reserve Bank of India announced", "Reserve Bank of India", nil, 80)
	if !ok {
		t.Fatal("expected a match")
	}
	if name != "Reserve Bank of India" {
		t.Errorf("matchedName = %q, want %q", name, "Reserve Bank of India")
	}
	if score != 100 {
		t.Errorf("score = %v, want 100 for exact substring match", score)
	}
}

func TestFuzzyMatchAlias(t *testing.T) {
	name, _, ok := FuzzyMatch("RBI issued a notice", "Reserve Bank of India", []string{"RBI"}, 80)
	if !ok {
		t.Fatal("expected alias match")
	}
	if name != "RBI" {
		t.Errorf("matchedName = %q, want %q", name, "RBI")
	}
}

func TestFuzzyMatchWordOrderInsensitive(t *testing.T) {
	_, score, ok := FuzzyMatch("India Bank of Reserve", "Reserve Bank of India", nil, 50)
	if !ok {
		t.Fatal("expected token-set match regardless of word order")
	}
	if score < 50 {
		t.Errorf("expected a high token-set score, got %v", score)
	}
}

func TestFuzzyMatchBelowThresholdFails(t *testing.T) {
	_, _, ok := FuzzyMatch("completely unrelated text", "Reserve Bank of India", nil, 90)
	if ok {
		t.Error("expected no match for unrelated text at a high threshold")
	}
}

func TestFuzzyMatchEmptyQuery(t *testing.T) {
	_, _, ok := FuzzyMatch("", "Reserve Bank of India", nil, 50)
	if ok {
		t.Error("expected no match for an empty query")
	}
}
