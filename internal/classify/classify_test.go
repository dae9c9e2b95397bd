package classify

import (
	"testing"

	"civicledger.org/internal/taxonomy"
)

func TestClassifyKeywordHit(t *testing.T) {
	c := New()

	res := c.Classify("the dustbin full near my house")
	if res.Category != taxonomy.Waste || res.Subcategory != "overflowing bins" {
		t.Fatalf("unexpected pair: %s/%s", res.Category, res.Subcategory)
	}
	if res.Score != 1 {
		t.Fatalf("unexpected score: %d", res.Score)
	}
}

func TestClassifyEmptyAndWhitespace(t *testing.T) {
	c := New()

	for _, text := range []string{"", "   ", "\n\t"} {
		res := c.Classify(text)
		if res.Category != taxonomy.Other || res.Subcategory != taxonomy.GeneralIssue {
			t.Fatalf("Classify(%q) = %s/%s, want other/general issue", text, res.Category, res.Subcategory)
		}
		if res.Score != 0 {
			t.Fatalf("Classify(%q) score = %d, want 0", text, res.Score)
		}
	}
}

func TestClassifyNoMatchFallsBack(t *testing.T) {
	c := New()

	res := c.Classify("everything is perfectly fine here")
	if res.Category != taxonomy.Other || res.Subcategory != taxonomy.GeneralIssue || res.Score != 0 {
		t.Fatalf("unexpected fallback result: %+v", res)
	}
}

func TestClassifyPrefersHigherScore(t *testing.T) {
	c := New()

	// Two sewage keywords beat the single generic "water" hit of water leakage.
	res := c.Classify("sewage and gutter overflow on the street")
	if res.Category != taxonomy.Water || res.Subcategory != "sewage overflow" {
		t.Fatalf("unexpected pair: %s/%s", res.Category, res.Subcategory)
	}
	if res.Score < 2 {
		t.Fatalf("expected at least two keyword hits, got %d", res.Score)
	}
}

func TestClassifyTieKeepsFirstPair(t *testing.T) {
	c := New()

	// "dirty water" is declared by sewage overflow and contaminated water and
	// contains the water-leakage keyword "water"; each scores one so the
	// earliest pair in taxonomy order must win.
	res := c.Classify("dirty water")
	if res.Category != taxonomy.Water || res.Subcategory != "water leakage" {
		t.Fatalf("tie-break violated: got %s/%s", res.Category, res.Subcategory)
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := New()

	res := c.Classify("POTHOLE on the main ROAD")
	if res.Category != taxonomy.Roads || res.Subcategory != "potholes" {
		t.Fatalf("unexpected pair: %s/%s", res.Category, res.Subcategory)
	}
}
