// Package predict estimates resolution time and lists the municipal process
// steps for a classified complaint. Pure static lookups; unseen keys take an
// explicit default branch, never a lookup failure.
package predict

import "civicledger.org/internal/taxonomy"

// Estimate is the predicted resolution window plus the ordered process steps.
type Estimate struct {
	MinDays int      `json:"estimated_days_min"`
	MaxDays int      `json:"estimated_days_max"`
	Process []string `json:"process"`
}

type dayRange struct {
	min, max int
}

type ruleKey struct {
	category    taxonomy.Category
	subcategory taxonomy.Subcategory
}

// defaultRange applies to pairs without a configured rule.
var defaultRange = dayRange{3, 7}

var fixTimeRules = map[ruleKey]dayRange{
	{taxonomy.Waste, "open dumping"}:                      {2, 5},
	{taxonomy.Waste, "overflowing bins"}:                  {1, 2},
	{taxonomy.Waste, "illegal dumping"}:                   {3, 7},
	{taxonomy.Water, "water leakage"}:                     {2, 4},
	{taxonomy.Water, "sewage overflow"}:                   {3, 6},
	{taxonomy.Roads, "potholes"}:                          {5, 10},
	{taxonomy.Roads, "open manhole"}:                      {1, 2},
	{taxonomy.Air, "open burning"}:                        {1, 2},
	{taxonomy.Infrastructure, "street light not working"}: {2, 4},
	{taxonomy.Greenery, "fallen tree"}:                    {1, 3},
}

// defaultProcess applies to categories without a configured template.
var defaultProcess = []string{
	"Department inspection",
	"Work allocation",
	"Execution",
	"Verification",
	"Closure",
}

var processTemplates = map[taxonomy.Category][]string{
	taxonomy.Waste: {
		"Inspection by sanitation supervisor",
		"Verification of complaint location",
		"Deployment of cleaning vehicle and crew",
		"Waste removal and site cleaning",
		"Final inspection and closure",
	},
	taxonomy.Water: {
		"Inspection by water department team",
		"Leak / blockage identification",
		"Repair work approval",
		"Repair execution",
		"Flow and safety verification",
	},
	taxonomy.Roads: {
		"Site inspection by engineering team",
		"Damage assessment",
		"Work order generation",
		"Repair and resurfacing",
		"Safety inspection",
	},
	taxonomy.Air: {
		"Source identification",
		"On-site inspection",
		"Immediate enforcement action",
		"Monitoring for re-occurrence",
	},
	taxonomy.Infrastructure: {
		"Department inspection",
		"Maintenance scheduling",
		"Repair / replacement",
		"Functional verification",
	},
	taxonomy.Greenery: {
		"Site inspection by horticulture team",
		"Risk assessment",
		"Removal / planting activity",
		"Area clean-up",
		"Final verification",
	},
}

// Resolution returns the estimate for a pair. Lookups are case-insensitive;
// the inputs do not have to belong to the taxonomy.
func Resolution(category, subcategory string) Estimate {
	c, s := taxonomy.Normalize(category, subcategory)

	rng, ok := fixTimeRules[ruleKey{c, s}]
	if !ok {
		rng = defaultRange
	}

	tmpl, ok := processTemplates[c]
	if !ok {
		tmpl = defaultProcess
	}
	process := make([]string, len(tmpl))
	copy(process, tmpl)

	return Estimate{MinDays: rng.min, MaxDays: rng.max, Process: process}
}
