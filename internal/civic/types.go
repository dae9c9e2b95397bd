// Package civic holds the triage-and-reward core: issue lifecycle, mission
// generation, idempotent completion accounting, and leaderboard ranking.
package civic

import (
	"errors"
	"strings"
	"time"

	"civicledger.org/internal/taxonomy"
)

// Issue statuses. Officers may overwrite the status with free-form labels;
// only SUBMITTED and RESOLVED carry semantics.
const (
	StatusSubmitted = "SUBMITTED"
	StatusResolved  = "RESOLVED"
)

// Mission statuses. OPEN -> COMPLETED is the only legal transition.
const (
	MissionOpen      = "OPEN"
	MissionCompleted = "COMPLETED"
)

// User is a citizen or officer account. Credits are non-negative and only
// grow, except through AdjustCredits.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Credits       int64     `json:"credits"`
	PublicProfile bool      `json:"public_profile"`
	CreatedAt     time.Time `json:"created_at"`
}

// Issue is a classified citizen report. Text, category, and subcategory are
// immutable after creation; only the status and estimated days change.
type Issue struct {
	ID            string               `json:"id"`
	ReporterID    string               `json:"reporter_id"`
	Text          string               `json:"text"`
	Category      taxonomy.Category    `json:"category"`
	Subcategory   taxonomy.Subcategory `json:"subcategory"`
	Location      string               `json:"location"`
	Severity      string               `json:"severity"`
	Status        string               `json:"status"`
	EstimatedDays *int                 `json:"estimated_days,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Mission is the remediation unit generated 1:1 from an issue at submission
// time. ProofRef stays empty until completion.
type Mission struct {
	ID          string            `json:"id"`
	IssueID     string            `json:"issue_id"`
	AssigneeID  string            `json:"assignee_id"`
	Title       string            `json:"title"`
	Category    taxonomy.Category `json:"category"`
	Location    string            `json:"location"`
	Status      string            `json:"status"`
	ProofRef    string            `json:"proof_ref,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// LedgerEntry is the append-only audit record of one reward-qualifying
// completion. Entries are never updated or deleted.
type LedgerEntry struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	MissionID string            `json:"mission_id"`
	Category  taxonomy.Category `json:"category"`
	Timestamp time.Time         `json:"timestamp"`
}

// RewardTier is a read-only catalogue row. A user qualifies for every tier
// whose threshold is at or below their current credits.
type RewardTier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MinCredits  int64  `json:"min_credits"`
	Description string `json:"description"`
}

var (
	// ErrNotFound covers unknown user, issue, and mission identifiers.
	ErrNotFound = errors.New("not found")
	// ErrEmptyText rejects submissions whose text is empty after trimming.
	ErrEmptyText = errors.New("report text is required")
	// ErrEmptyStatus rejects officer updates without a status.
	ErrEmptyStatus = errors.New("status is required")
	// ErrEmailTaken signals a duplicate registration.
	ErrEmailTaken = errors.New("email already registered")
	// ErrPrivileged signals a citizens-only operation, such as public
	// ranking.
	ErrPrivileged = errors.New("privileged accounts have no public rank")
)

// DefaultOfficerDomain identifies officer accounts by email domain.
const DefaultOfficerDomain = "delhi.gov.in"

// IsPrivileged classifies an identity as an officer account. Privileged
// accounts are excluded from rewards, ranking, and leaderboards.
func IsPrivileged(email, officerDomain string) bool {
	if officerDomain == "" {
		officerDomain = DefaultOfficerDomain
	}
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), "@"+officerDomain)
}

// defaultReward applies to categories without a configured reward.
const defaultReward = 5

var rewardTable = map[taxonomy.Category]int64{
	taxonomy.Waste:          10,
	taxonomy.Water:          12,
	taxonomy.Air:            15,
	taxonomy.Roads:          8,
	taxonomy.Greenery:       15,
	taxonomy.Transport:      8,
	taxonomy.Infrastructure: 8,
	taxonomy.Noise:          6,
	taxonomy.Animals:        6,
}

// RewardFor returns the credit value of completing work in a category. The
// same table prices both reward paths: officer status resolutions and mission
// completions.
func RewardFor(c taxonomy.Category) int64 {
	if v, ok := rewardTable[c]; ok {
		return v
	}
	return defaultReward
}
