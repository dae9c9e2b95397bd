package civic

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"civicledger.org/internal/anchor"
	"civicledger.org/internal/classify"
	"civicledger.org/internal/compose"
	"civicledger.org/internal/geo"
	"civicledger.org/internal/ids"
	"civicledger.org/internal/predict"
	"civicledger.org/internal/risk"
	"civicledger.org/internal/taxonomy"
)

// Service wires the triage pipeline over a Store. All operations are
// request-scoped; the store carries the concurrency contract.
type Service struct {
	store         Store
	classifier    *classify.Classifier
	resolver      *geo.Resolver
	risk          risk.Estimator
	anchorer      anchor.Anchorer
	officerDomain string
}

// NewService builds the core service. Nil risk or anchorer select the
// default constant policy and the placeholder anchor.
func NewService(store Store, classifier *classify.Classifier, resolver *geo.Resolver, est risk.Estimator, anc anchor.Anchorer, officerDomain string) *Service {
	if est == nil {
		est = risk.NewStatic()
	}
	if anc == nil {
		anc = anchor.NewPlaceholder()
	}
	if officerDomain == "" {
		officerDomain = DefaultOfficerDomain
	}
	return &Service{
		store:         store,
		classifier:    classifier,
		resolver:      resolver,
		risk:          est,
		anchorer:      anc,
		officerDomain: officerDomain,
	}
}

// IsPrivileged reports whether the email belongs to an officer account under
// the configured domain.
func (s *Service) IsPrivileged(email string) bool {
	return IsPrivileged(email, s.officerDomain)
}

// RegisterUser creates a citizen or officer account.
func (s *Service) RegisterUser(ctx context.Context, name, email string) (User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return User{}, ErrEmptyText
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return User{}, ErrEmailTaken
	}
	u := User{
		ID:            ids.New(),
		Name:          name,
		Email:         email,
		PublicProfile: true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// EnsureUser returns the account for the email, provisioning one on first
// sight. Officer accounts come into existence this way at first login.
func (s *Service) EnsureUser(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return User{}, ErrEmptyText
	}
	if u, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return u, nil
	}
	name := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		name = email[:at]
	}
	return s.RegisterUser(ctx, name, email)
}

// GetUser looks up an account by id.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.store.GetUser(ctx, id)
}

// SetVisibility toggles a user's public profile flag.
func (s *Service) SetVisibility(ctx context.Context, userID string, public bool) (User, error) {
	return s.store.SetUserVisibility(ctx, userID, public)
}

// Triage is the prefill step: classify and locate without persisting
// anything. Empty text yields the fallback pair and no location guess.
type Triage struct {
	Category    taxonomy.Category    `json:"category"`
	Subcategory taxonomy.Subcategory `json:"subcategory"`
	Location    string               `json:"location"`
	Severity    string               `json:"severity"`
	RiskScore   float64              `json:"risk_score"`
}

// TriageText classifies the text and resolves a location from it or from the
// supplied coordinates.
func (s *Service) TriageText(ctx context.Context, text string, coords *geo.Coords) Triage {
	res := s.classifier.Classify(text)
	assessment := s.risk.Estimate(res, "")
	return Triage{
		Category:    res.Category,
		Subcategory: res.Subcategory,
		Location:    s.resolver.Resolve(ctx, text, coords),
		Severity:    assessment.Severity,
		RiskScore:   assessment.Score,
	}
}

// SubmitIssue validates and persists a report, generating its mission in the
// same transaction. Caller-provided category/subcategory are honored only
// when they belong to the taxonomy; otherwise the classifier's output is
// used, so the stored pair is always a valid label.
func (s *Service) SubmitIssue(ctx context.Context, reporterID, text, category, subcategory, location string) (Issue, Mission, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Issue{}, Mission{}, ErrEmptyText
	}
	if _, err := s.store.GetUser(ctx, reporterID); err != nil {
		return Issue{}, Mission{}, err
	}

	res := s.classifier.Classify(text)
	cat, sub := res.Category, res.Subcategory
	if c, sc := taxonomy.Normalize(category, subcategory); taxonomy.Valid(c, sc) {
		cat, sub = c, sc
	}

	location = strings.TrimSpace(location)
	if location == "" {
		location = s.resolver.Resolve(ctx, text, nil)
	}

	assessment := s.risk.Estimate(res, location)
	now := time.Now().UTC()

	is := Issue{
		ID:          ids.New(),
		ReporterID:  reporterID,
		Text:        text,
		Category:    cat,
		Subcategory: sub,
		Location:    location,
		Severity:    assessment.Severity,
		Status:      StatusSubmitted,
		CreatedAt:   now,
	}
	m := Mission{
		ID:         ids.New(),
		IssueID:    is.ID,
		AssigneeID: reporterID,
		Title:      fmt.Sprintf("Resolve %s in %s", sub, location),
		Category:   cat,
		Location:   location,
		Status:     MissionOpen,
		CreatedAt:  now,
	}
	if err := s.store.CreateIssueWithMission(ctx, is, m); err != nil {
		return Issue{}, Mission{}, err
	}
	return is, m, nil
}

// GetIssue returns an issue by id.
func (s *Service) GetIssue(ctx context.Context, id string) (Issue, error) {
	return s.store.GetIssue(ctx, id)
}

// IssuesByReporter lists a reporter's issues newest first.
func (s *Service) IssuesByReporter(ctx context.Context, reporterID string) ([]Issue, error) {
	return s.store.ListIssuesByReporter(ctx, reporterID)
}

// IssuesByLocation lists issues whose location contains the locality, newest
// first. The officer dashboard caps this at 50.
func (s *Service) IssuesByLocation(ctx context.Context, locality string, limit int) ([]Issue, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return s.store.ListIssuesByLocation(ctx, locality, limit)
}

// UpdateIssueStatus applies an officer status overwrite. estimatedDays is
// lenient: an empty or unparseable value, or a negative one, keeps the
// previous estimate instead of failing the update. The bool result reports
// whether the not-RESOLVED -> RESOLVED transition credited the reporter;
// privileged reporters never earn credits.
func (s *Service) UpdateIssueStatus(ctx context.Context, issueID, newStatus, estimatedDays string) (Issue, bool, error) {
	newStatus = strings.TrimSpace(newStatus)
	if newStatus == "" {
		return Issue{}, false, ErrEmptyStatus
	}

	var days *int
	if raw := strings.TrimSpace(estimatedDays); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			days = &v
		}
	}

	privileged, err := s.recipientPrivileged(ctx, func() (string, error) {
		is, err := s.store.GetIssue(ctx, issueID)
		return is.ReporterID, err
	})
	if err != nil {
		return Issue{}, false, err
	}

	return s.store.UpdateIssueStatus(ctx, issueID, newStatus, days, func(is Issue) int64 {
		if privileged {
			return 0
		}
		return RewardFor(is.Category)
	})
}

// MissionsByIssue lists the missions generated for an issue.
func (s *Service) MissionsByIssue(ctx context.Context, issueID string) ([]Mission, error) {
	return s.store.ListMissionsByIssue(ctx, issueID)
}

// GetMission returns a mission by id.
func (s *Service) GetMission(ctx context.Context, id string) (Mission, error) {
	return s.store.GetMission(ctx, id)
}

// CompleteMission settles a completion event. The first call anchors the
// evidence, appends the ledger entry, and credits the assignee; any repeat
// returns the stored proof with Credited=false and changes nothing. A
// privileged assignee's mission completes and anchors normally but earns no
// credit and no ledger entry.
func (s *Service) CompleteMission(ctx context.Context, missionID, beforeHash, afterHash string) (Completion, error) {
	privileged, err := s.recipientPrivileged(ctx, func() (string, error) {
		m, err := s.store.GetMission(ctx, missionID)
		return m.AssigneeID, err
	})
	if err != nil {
		return Completion{}, err
	}

	now := time.Now().UTC()
	return s.store.CompleteMission(ctx, missionID, now,
		func(m Mission) (string, error) {
			return s.anchorer.Anchor(ctx, m.ID, beforeHash, afterHash)
		},
		func(m Mission) int64 {
			if privileged {
				return 0
			}
			return RewardFor(m.Category)
		},
	)
}

// recipientPrivileged resolves the credit recipient's account and classifies
// it. The lookup runs before the store's critical section; privilege is a
// static property of the email, so the early read cannot race the award.
func (s *Service) recipientPrivileged(ctx context.Context, recipient func() (string, error)) (bool, error) {
	id, err := recipient()
	if err != nil {
		return false, err
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return false, err
	}
	return s.IsPrivileged(u.Email), nil
}

// Ledger returns a user's entries newest first.
func (s *Service) Ledger(ctx context.Context, userID string) ([]LedgerEntry, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.LedgerByUser(ctx, userID)
}

// Metrics summarises a user's ledger.
type Metrics struct {
	TotalActions int                       `json:"total_actions"`
	ByCategory   map[taxonomy.Category]int `json:"by_category"`
}

// UserMetrics counts ledger entries per category.
func (s *Service) UserMetrics(ctx context.Context, userID string) (Metrics, error) {
	entries, err := s.Ledger(ctx, userID)
	if err != nil {
		return Metrics{}, err
	}
	m := Metrics{ByCategory: make(map[taxonomy.Category]int)}
	for _, e := range entries {
		m.TotalActions++
		m.ByCategory[e.Category]++
	}
	return m, nil
}

// QualifiedTiers returns the reward tiers the user's credits reach.
func (s *Service) QualifiedTiers(ctx context.Context, userID string) ([]RewardTier, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	tiers, err := s.store.RewardTiers(ctx)
	if err != nil {
		return nil, err
	}
	var out []RewardTier
	for _, t := range tiers {
		if t.MinCredits <= u.Credits {
			out = append(out, t)
		}
	}
	return out, nil
}

// Prediction returns the resolution estimate for an issue.
func (s *Service) Prediction(ctx context.Context, issueID string) (predict.Estimate, error) {
	is, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return predict.Estimate{}, err
	}
	return predict.Resolution(string(is.Category), string(is.Subcategory)), nil
}

// Letter renders the issue's text as a formal complaint letter.
func (s *Service) Letter(ctx context.Context, issueID string) (string, error) {
	is, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return "", err
	}
	return compose.Letter(is.Text, is.Category), nil
}

// Rank is a user's standing among non-privileged reporters. Area is empty
// and the rank fields zero when the user has filed no issues; PoolInCity is
// still reported.
type Rank struct {
	Area       string `json:"area"`
	RankInArea int    `json:"rank_in_area"`
	PoolInArea int    `json:"pool_in_area"`
	RankInCity int    `json:"rank_in_city"`
	PoolInCity int    `json:"pool_in_city"`
}

// UserRank computes area and city leaderboard positions. Privileged accounts
// are excluded from every pool and may not request a rank. Equal credit
// totals break ties by ascending user id (oldest account first); equal home
// area issue counts break ties by the lexicographically smallest location.
func (s *Service) UserRank(ctx context.Context, userID string) (Rank, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Rank{}, err
	}
	if s.IsPrivileged(u.Email) {
		return Rank{}, ErrPrivileged
	}

	citizens, err := s.listCitizens(ctx)
	if err != nil {
		return Rank{}, err
	}

	counts, err := s.store.IssueCountsByLocation(ctx, userID)
	if err != nil {
		return Rank{}, err
	}
	area := homeArea(counts)
	if area == "" {
		return Rank{PoolInCity: len(citizens)}, nil
	}

	reporterIDs, err := s.store.ReporterIDsByLocation(ctx, area)
	if err != nil {
		return Rank{}, err
	}
	inArea := make(map[string]bool, len(reporterIDs))
	for _, id := range reporterIDs {
		inArea[id] = true
	}
	var areaPool []User
	for _, c := range citizens {
		if inArea[c.ID] {
			areaPool = append(areaPool, c)
		}
	}
	sortByCredits(areaPool)
	sortByCredits(citizens)

	return Rank{
		Area:       area,
		RankInArea: position(areaPool, userID),
		PoolInArea: len(areaPool),
		RankInCity: position(citizens, userID),
		PoolInCity: len(citizens),
	}, nil
}

// Leaderboard lists the top non-privileged users by credits, at most limit
// (default and cap 50).
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	citizens, err := s.listCitizens(ctx)
	if err != nil {
		return nil, err
	}
	sortByCredits(citizens)
	if len(citizens) > limit {
		citizens = citizens[:limit]
	}
	return citizens, nil
}

// RegionSummary aggregates issues per location for the city map.
func (s *Service) RegionSummary(ctx context.Context) ([]RegionStat, error) {
	return s.store.RegionSummary(ctx)
}

// AreaInsights reports mission participation at an exact location.
type AreaInsights struct {
	Location          string  `json:"location"`
	TotalMissions     int     `json:"total_missions"`
	CompletedMissions int     `json:"completed_missions"`
	ParticipationRate float64 `json:"participation_rate"`
}

// AreaInsightsFor counts missions and completion rate at a location.
func (s *Service) AreaInsightsFor(ctx context.Context, location string) (AreaInsights, error) {
	total, completed, err := s.store.MissionStatsByLocation(ctx, location)
	if err != nil {
		return AreaInsights{}, err
	}
	out := AreaInsights{Location: location, TotalMissions: total, CompletedMissions: completed}
	if total > 0 {
		out.ParticipationRate = float64(completed) / float64(total)
	}
	return out, nil
}

// ResolveCoords maps coordinates to a locality. The result is empty when the
// geocoder cannot place them.
func (s *Service) ResolveCoords(ctx context.Context, coords geo.Coords) string {
	return s.resolver.ReverseGeocode(ctx, coords.Lat, coords.Lng)
}

// NearbyIssues reverse-geocodes the coordinates and returns recent issues at
// the resolved locality. A failed geocode yields an empty locality and no
// issues, never an error.
func (s *Service) NearbyIssues(ctx context.Context, coords geo.Coords) (string, []Issue, error) {
	locality := s.resolver.ReverseGeocode(ctx, coords.Lat, coords.Lng)
	if locality == "" {
		return "", nil, nil
	}
	issues, err := s.store.ListIssuesByLocation(ctx, locality, 10)
	if err != nil {
		return "", nil, err
	}
	return locality, issues, nil
}

// listCitizens returns all non-privileged accounts.
func (s *Service) listCitizens(ctx context.Context) ([]User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	var out []User
	for _, u := range users {
		if !s.IsPrivileged(u.Email) {
			out = append(out, u)
		}
	}
	return out, nil
}

// homeArea picks the location with the most issues; ties take the
// lexicographically smallest name.
func homeArea(counts map[string]int) string {
	best := ""
	bestCount := 0
	for loc, n := range counts {
		if loc == "" {
			continue
		}
		if n > bestCount || (n == bestCount && (best == "" || loc < best)) {
			best = loc
			bestCount = n
		}
	}
	return best
}

// sortByCredits orders users by credits descending, then ascending id.
func sortByCredits(users []User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Credits != users[j].Credits {
			return users[i].Credits > users[j].Credits
		}
		return users[i].ID < users[j].ID
	})
}

// position returns the 1-based index of the user, or 0 when absent.
func position(users []User, userID string) int {
	for i, u := range users {
		if u.ID == userID {
			return i + 1
		}
	}
	return 0
}
