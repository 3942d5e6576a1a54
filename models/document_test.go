package models

import "testing"

func TestDetermineQualityStatus(t *testing.T) {
	cases := []struct {
		confidence float64
		want       OCRQualityStatus
	}{
		{0.99, QualityGood},
		{0.85, QualityGood},
		{0.84, QualityFair},
		{0.70, QualityFair},
		{0.69, QualityPoor},
		{0.0, QualityPoor},
	}
	for _, c := range cases {
		if got := DetermineQualityStatus(c.confidence); got != c.want {
			t.Errorf("DetermineQualityStatus(%v) = %v, want %v", c.confidence, got, c.want)
		}
	}
}
