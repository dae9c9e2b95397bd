// Package taxonomy defines the fixed two-level catalogue of civic complaint
// categories. The declaration order of Pairs is part of the contract: the
// classifier breaks score ties by picking the earliest pair, so reordering
// entries changes classification results.
package taxonomy

import "strings"

// Category is a top-level complaint category.
type Category string

const (
	Waste          Category = "waste"
	Water          Category = "water"
	Air            Category = "air"
	Transport      Category = "transport"
	Roads          Category = "roads"
	Infrastructure Category = "public infrastructure"
	Greenery       Category = "greenery"
	Animals        Category = "animals"
	Noise          Category = "noise"
	Other          Category = "other"
)

// Subcategory is a second-level label within a category.
type Subcategory string

// GeneralIssue is the reserved subcategory returned when nothing matches.
const GeneralIssue Subcategory = "general issue"

// Pair is one classifiable (category, subcategory) unit.
type Pair struct {
	Category    Category
	Subcategory Subcategory
	Keywords    []string
}

// Default is the reserved fallback pair.
var Default = Pair{Category: Other, Subcategory: GeneralIssue}

// pairs lists every classifiable pair in fixed order. Keywords are lowercase
// phrases matched as substrings of the lowercased complaint text.
var pairs = []Pair{
	{Waste, "open dumping", []string{"garbage", "dump", "trash", "waste on road", "plastic waste"}},
	{Waste, "overflowing bins", []string{"bin full", "dustbin full", "overflowing bin"}},
	{Waste, "illegal dumping", []string{"illegal dumping", "thrown here", "dumped here"}},
	{Waste, "construction debris", []string{"construction waste", "debris", "malba", "rubble"}},
	{Waste, "no waste collection", []string{"no collection", "not collected", "garbage not picked"}},

	{Water, "water leakage", []string{"leak", "leaking", "water", "pipe burst", "water flowing"}},
	{Water, "sewage overflow", []string{"sewage", "gutter overflow", "sewer", "drain overflow", "dirty water"}},
	{Water, "no water supply", []string{"no water", "water not coming", "no supply"}},
	{Water, "contaminated water", []string{"dirty water", "bad smell water", "contaminated"}},

	{Air, "open burning", []string{"burning", "burnt", "fire in garbage", "burn waste"}},
	{Air, "heavy smoke", []string{"smoke", "smog", "pollution", "bad air", "air"}},
	{Air, "industrial emission", []string{"factory smoke", "chimney", "industrial pollution"}},

	{Transport, "traffic congestion", []string{"traffic", "jam", "long queue", "truck", "vehicle jam"}},
	{Transport, "broken traffic light", []string{"signal not working", "traffic light broken"}},
	{Transport, "illegal parking", []string{"illegal parking", "wrong parking"}},
	{Transport, "unsafe crossing", []string{"no zebra crossing", "dangerous crossing"}},

	{Roads, "potholes", []string{"pothole", "road broken", "bad road"}},
	{Roads, "water logging", []string{"water on road", "flooded road", "waterlogging"}},
	{Roads, "open manhole", []string{"manhole open", "open sewer", "open drain"}},

	{Infrastructure, "street light not working", []string{"street light", "light not working", "dark road"}},
	{Infrastructure, "damaged footpath", []string{"broken footpath", "footpath damaged"}},
	{Infrastructure, "damaged public property", []string{"broken bench", "damaged park", "broken railing"}},

	{Greenery, "fallen tree", []string{"tree fallen", "tree fell"}},
	{Greenery, "tree cutting", []string{"tree cutting", "trees being cut"}},
	{Greenery, "no green cover", []string{"no trees", "no greenery", "barren"}},

	{Animals, "dead animal", []string{"dead dog", "dead animal", "animal body"}},
	{Animals, "stray animal issue", []string{"stray dogs", "stray cattle", "monkeys problem", "hunt"}},

	{Noise, "loudspeaker noise", []string{"loudspeaker", "dj", "music", "noise"}},
	{Noise, "construction noise", []string{"construction noise", "drilling", "hammering"}},

	{Other, GeneralIssue, nil},
}

// Pairs returns the classifiable pairs in declaration order.
func Pairs() []Pair {
	out := make([]Pair, len(pairs))
	copy(out, pairs)
	return out
}

// Categories returns the categories in declaration order, without duplicates.
func Categories() []Category {
	var out []Category
	seen := make(map[Category]bool)
	for _, p := range pairs {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out
}

// Catalogue returns category -> subcategory -> keywords for API consumers.
func Catalogue() map[Category]map[Subcategory][]string {
	out := make(map[Category]map[Subcategory][]string)
	for _, p := range pairs {
		if out[p.Category] == nil {
			out[p.Category] = make(map[Subcategory][]string)
		}
		kws := make([]string, len(p.Keywords))
		copy(kws, p.Keywords)
		out[p.Category][p.Subcategory] = kws
	}
	return out
}

// Valid reports whether the pair belongs to the catalogue.
func Valid(c Category, s Subcategory) bool {
	for _, p := range pairs {
		if p.Category == c && p.Subcategory == s {
			return true
		}
	}
	return false
}

// Normalize lower-cases free-form category and subcategory labels so lookups
// stay case-insensitive across the rule tables.
func Normalize(category, subcategory string) (Category, Subcategory) {
	return Category(strings.ToLower(strings.TrimSpace(category))),
		Subcategory(strings.ToLower(strings.TrimSpace(subcategory)))
}
