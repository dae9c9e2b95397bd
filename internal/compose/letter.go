// Package compose renders a citizen complaint as a formal letter to the
// concerned municipal department.
package compose

import (
	"fmt"

	"civicledger.org/internal/taxonomy"
)

const defaultContext = "This complaint relates to a civic and environmental issue."

var categoryContext = map[taxonomy.Category]string{
	taxonomy.Waste:          "This complaint relates to improper solid waste management and public sanitation.",
	taxonomy.Water:          "This complaint relates to drinking water supply and sewerage infrastructure.",
	taxonomy.Air:            "This complaint relates to air pollution and public health risk.",
	taxonomy.Roads:          "This complaint relates to road safety and public infrastructure damage.",
	taxonomy.Infrastructure: "This complaint relates to malfunctioning public infrastructure.",
	taxonomy.Greenery:       "This complaint relates to protection and maintenance of urban green cover.",
	taxonomy.Transport:      "This complaint relates to traffic management and road safety.",
}

// Letter renders the original complaint text into a formal letter using the
// category's framing sentence. Unlisted categories use a generic framing.
func Letter(text string, category taxonomy.Category) string {
	c, _ := taxonomy.Normalize(string(category), "")
	framing, ok := categoryContext[c]
	if !ok {
		framing = defaultContext
	}

	return fmt.Sprintf(
		"Respected Sir / Madam,\n\n"+
			"%s\n\n"+
			"I would like to formally bring the following issue to your notice:\n\n"+
			"%s\n\n"+
			"This issue is causing inconvenience to residents and may pose environmental and public safety risks. "+
			"I request the concerned department to kindly inspect the location and initiate corrective action at the earliest.\n\n"+
			"Thank you for your attention and support.\n"+
			"Yours sincerely,\n"+
			"A concerned citizen",
		framing, text,
	)
}
