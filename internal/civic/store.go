package civic

import (
	"context"
	"time"

	"civicledger.org/internal/taxonomy"
)

// Completion is the result of a mission completion attempt. Credited is false
// when the mission had already been completed; ProofRef then carries the
// previously stored reference.
type Completion struct {
	Mission     Mission `json:"mission"`
	ProofRef    string  `json:"proof_ref"`
	Credited    bool    `json:"credited"`
	CreditDelta int64   `json:"credit_delta"`
}

// RegionStat aggregates issues per location for the city map.
type RegionStat struct {
	Location         string                    `json:"location"`
	Count            int                       `json:"count"`
	DominantCategory taxonomy.Category         `json:"dominant_category"`
	Breakdown        map[taxonomy.Category]int `json:"category_breakdown"`
}

// Store is the persistence boundary of the core. Implementations must honor
// two transactional contracts: CreateIssueWithMission applies both records
// atomically, and CompleteMission / UpdateIssueStatus run their callbacks and
// all resulting writes inside one critical section per record, so concurrent
// attempts settle into exactly one credited transition.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetUserVisibility(ctx context.Context, id string, public bool) (User, error)
	// AdjustCredits is the explicit administrative override; everything else
	// only ever increases credits.
	AdjustCredits(ctx context.Context, id string, delta int64) (User, error)

	CreateIssueWithMission(ctx context.Context, is Issue, m Mission) error
	GetIssue(ctx context.Context, id string) (Issue, error)
	// ListIssuesByReporter returns the reporter's issues newest first.
	ListIssuesByReporter(ctx context.Context, reporterID string) ([]Issue, error)
	// ListIssuesByLocation matches the locality as a case-insensitive
	// substring, newest first, at most limit rows.
	ListIssuesByLocation(ctx context.Context, locality string, limit int) ([]Issue, error)
	// UpdateIssueStatus overwrites the status and, when estimatedDays is
	// non-nil, the estimate. If the stored status was not RESOLVED and the
	// new one is, award is called once with the issue and the returned delta
	// is credited to the reporter within the same critical section. A zero
	// delta (privileged reporter) applies no credit. The bool result reports
	// whether a credit was applied.
	UpdateIssueStatus(ctx context.Context, id, status string, estimatedDays *int, award func(Issue) int64) (Issue, bool, error)

	GetMission(ctx context.Context, id string) (Mission, error)
	ListMissionsByIssue(ctx context.Context, issueID string) ([]Mission, error)
	// CompleteMission claims the OPEN -> COMPLETED transition. On the legal
	// transition it calls anchor exactly once, stores the proof reference,
	// appends one ledger entry for the mission's assignee, and credits the
	// award, all or nothing. A zero award (privileged assignee) still
	// completes and anchors the mission but appends no entry and credits
	// nothing, reporting Credited=false. On an already-completed mission it
	// is a no-op returning the stored proof with Credited=false.
	CompleteMission(ctx context.Context, id string, now time.Time, anchor func(Mission) (string, error), award func(Mission) int64) (Completion, error)

	// LedgerByUser returns the user's entries newest first.
	LedgerByUser(ctx context.Context, userID string) ([]LedgerEntry, error)
	RewardTiers(ctx context.Context) ([]RewardTier, error)

	// IssueCountsByLocation counts a reporter's issues per location.
	IssueCountsByLocation(ctx context.Context, reporterID string) (map[string]int, error)
	// ReporterIDsByLocation lists the distinct reporters with at least one
	// issue whose location equals the given one.
	ReporterIDsByLocation(ctx context.Context, location string) ([]string, error)
	RegionSummary(ctx context.Context) ([]RegionStat, error)
	// MissionStatsByLocation counts missions total and completed at an exact
	// location.
	MissionStatsByLocation(ctx context.Context, location string) (total, completed int, err error)
}
