// Package geo resolves an approximate locality name for a complaint, either
// from the report text (gazetteer match) or from browser coordinates
// (reverse geocode with a bounded timeout).
package geo

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// localities is the static gazetteer, all lowercase. Entries are matched as
// whole words/phrases against normalized complaint text.
var localities = []string{
	// Central / New Delhi
	"connaught place", "barakhamba road", "mandi house", "ito",
	"pragati maidan", "india gate", "rajpath", "kartavya path",
	"daryaganj", "paharganj", "sadar bazaar", "karol bagh",

	// North Delhi
	"civil lines", "model town", "mukherjee nagar", "gtb nagar",
	"kamla nagar", "burari", "alipur", "narela", "bawana",
	"jahangirpuri", "adarsh nagar", "azadpur", "haiderpur",

	// North West
	"rohini", "pitampura", "shalimar bagh", "ashok vihar",
	"keshav puram", "tri nagar", "rani bagh",

	// West Delhi
	"punjabi bagh", "rajouri garden", "kirti nagar",
	"patel nagar", "moti nagar", "janakpuri",
	"tilak nagar", "vikaspuri", "uttam nagar",
	"paschim vihar", "nangloi", "mundka",

	// South West
	"dwarka", "palam", "najafgarh", "kapashera",
	"mahipalpur", "bijwasan",

	// South Delhi
	"hauz khas", "green park", "sarojini nagar",
	"defence colony", "lajpat nagar", "kalkaji",
	"greater kailash", "malviya nagar", "saket",
	"mehrauli", "chhatarpur", "vasant kunj",
	"vasant vihar", "munirka", "rk puram",

	// South East
	"nehru place", "govindpuri", "okhla",
	"jamia nagar", "jasola", "sarita vihar",

	// East
	"laxmi nagar", "preet vihar", "patparganj",
	"mayur vihar", "vasundhara enclave",
	"geeta colony", "gandhi nagar",

	// North East / Shahdara
	"shahdara", "vivek vihar", "dilshad garden",
	"krishna nagar", "karkardooma",
	"seelampur", "yamuna vihar", "gokalpuri",

	// Popular hubs
	"chandni chowk", "kashmere gate", "anand vihar",
	"sarojini nagar market", "lajpat nagar market",
	"karol bagh market",
}

var titleCaser = cases.Title(language.English)

// ExtractLocation finds gazetteer localities mentioned in the text and
// returns the longest match title-cased for display. The longest entry is
// assumed the most specific ("sarojini nagar market" over "sarojini nagar").
// Returns "" when nothing matches.
func ExtractLocation(text string) string {
	norm := normalize(text)
	if norm == "" {
		return ""
	}
	// Pad with spaces so whole-word matching is a plain substring test.
	padded := " " + norm + " "

	best := ""
	for _, place := range localities {
		if len(place) <= len(best) {
			continue
		}
		if strings.Contains(padded, " "+place+" ") {
			best = place
		}
	}
	if best == "" {
		return ""
	}
	return titleCaser.String(best)
}

// normalize lower-cases, replaces punctuation with spaces, and collapses
// whitespace runs.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
