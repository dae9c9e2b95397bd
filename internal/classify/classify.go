// Package classify scores free-text complaints against the taxonomy keyword
// catalogue and picks the best matching (category, subcategory) pair.
package classify

import (
	"strings"

	"github.com/cloudflare/ahocorasick"

	"civicledger.org/internal/taxonomy"
)

// Result is a classification outcome. Score is the number of distinct
// keywords of the winning pair found in the text.
type Result struct {
	Category    taxonomy.Category    `json:"category"`
	Subcategory taxonomy.Subcategory `json:"subcategory"`
	Score       int                  `json:"score"`
}

// Classifier matches taxonomy keywords with a multi-pattern automaton built
// once at construction. Safe for concurrent use.
type Classifier struct {
	matcher *ahocorasick.Matcher
	pairs   []taxonomy.Pair
	// keyword index -> pairs that declare the keyword. Identical phrases may
	// appear under more than one pair ("dirty water" does), so the automaton
	// is built over deduplicated keywords and each hit is fanned out here.
	owners [][]int
}

// New builds a classifier over the full taxonomy.
func New() *Classifier {
	pairs := taxonomy.Pairs()

	var dict []string
	index := make(map[string]int)
	owners := make([][]int, 0)
	for pi, p := range pairs {
		for _, kw := range p.Keywords {
			kw = strings.ToLower(kw)
			ki, ok := index[kw]
			if !ok {
				ki = len(dict)
				index[kw] = ki
				dict = append(dict, kw)
				owners = append(owners, nil)
			}
			owners[ki] = append(owners[ki], pi)
		}
	}

	return &Classifier{
		matcher: ahocorasick.NewStringMatcher(dict),
		pairs:   pairs,
		owners:  owners,
	}
}

// Classify returns the pair whose keywords score the strictly highest count
// of substring hits in the lowercased text. Ties keep the earliest pair in
// taxonomy order. Empty or matchless text yields the reserved
// other/general-issue pair with score zero.
func (c *Classifier) Classify(text string) Result {
	fallback := Result{Category: taxonomy.Default.Category, Subcategory: taxonomy.Default.Subcategory}
	if strings.TrimSpace(text) == "" {
		return fallback
	}

	hits := c.matcher.Match([]byte(strings.ToLower(text)))
	if len(hits) == 0 {
		return fallback
	}

	scores := make(map[int]int)
	for _, ki := range hits {
		for _, pi := range c.owners[ki] {
			scores[pi]++
		}
	}

	// Strictly-greater comparison over declaration order implements the
	// documented first-pair-wins tie-break.
	best := fallback
	for pi := range c.pairs {
		if s := scores[pi]; s > best.Score {
			best = Result{
				Category:    c.pairs[pi].Category,
				Subcategory: c.pairs[pi].Subcategory,
				Score:       s,
			}
		}
	}
	return best
}
