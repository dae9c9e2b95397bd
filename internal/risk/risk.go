// Package risk assigns a severity to a classified report. The current policy
// is a constant; the interface exists so a scoring model can replace it
// without touching callers.
package risk

import "civicledger.org/internal/classify"

// Assessment is a severity label with a numeric score in [0,1].
type Assessment struct {
	Severity string  `json:"severity"`
	Score    float64 `json:"risk_score"`
}

// Estimator produces an assessment for a classified report.
type Estimator interface {
	Estimate(res classify.Result, location string) Assessment
}

// Static always returns the same assessment.
type Static struct {
	Severity string
	Score    float64
}

// NewStatic returns the default constant policy (medium, 0.62).
func NewStatic() Static {
	return Static{Severity: "medium", Score: 0.62}
}

func (s Static) Estimate(classify.Result, string) Assessment {
	return Assessment{Severity: s.Severity, Score: s.Score}
}

var _ Estimator = Static{}
