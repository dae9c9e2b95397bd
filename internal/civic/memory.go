package civic

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"civicledger.org/internal/ids"
	"civicledger.org/internal/taxonomy"
)

// InMemory implements Store with in-process concurrency safety. Used by the
// HTTP tests and as the reference semantics for the SQL stores.
type InMemory struct {
	mu       sync.RWMutex
	users    map[string]*User
	issues   map[string]*Issue
	missions map[string]*Mission
	ledger   []LedgerEntry
	tiers    []RewardTier
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:    make(map[string]*User),
		issues:   make(map[string]*Issue),
		missions: make(map[string]*Mission),
	}
}

var _ Store = (*InMemory)(nil)

// SeedTiers replaces the reward tier catalogue.
func (s *InMemory) SeedTiers(tiers []RewardTier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers = append([]RewardTier(nil), tiers...)
}

func (s *InMemory) CreateUser(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	cp := u
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemory) GetUser(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (s *InMemory) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *InMemory) ListUsers(_ context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) SetUserVisibility(_ context.Context, id string, public bool) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.PublicProfile = public
	return *u, nil
}

func (s *InMemory) AdjustCredits(_ context.Context, id string, delta int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.Credits += delta
	if u.Credits < 0 {
		u.Credits = 0
	}
	return *u, nil
}

func (s *InMemory) CreateIssueWithMission(_ context.Context, is Issue, m Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[is.ReporterID]; !ok {
		return ErrNotFound
	}
	isCp, mCp := is, m
	s.issues[is.ID] = &isCp
	s.missions[m.ID] = &mCp
	return nil
}

func (s *InMemory) GetIssue(_ context.Context, id string) (Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	is, ok := s.issues[id]
	if !ok {
		return Issue{}, ErrNotFound
	}
	return *is, nil
}

func (s *InMemory) ListIssuesByReporter(_ context.Context, reporterID string) ([]Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Issue
	for _, is := range s.issues {
		if is.ReporterID == reporterID {
			out = append(out, *is)
		}
	}
	sortIssuesNewestFirst(out)
	return out, nil
}

func (s *InMemory) ListIssuesByLocation(_ context.Context, locality string, limit int) ([]Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(locality)
	var out []Issue
	for _, is := range s.issues {
		if needle == "" || strings.Contains(strings.ToLower(is.Location), needle) {
			out = append(out, *is)
		}
	}
	sortIssuesNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) UpdateIssueStatus(_ context.Context, id, status string, estimatedDays *int, award func(Issue) int64) (Issue, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	is, ok := s.issues[id]
	if !ok {
		return Issue{}, false, ErrNotFound
	}

	wasResolved := is.Status == StatusResolved
	is.Status = status
	if estimatedDays != nil {
		v := *estimatedDays
		is.EstimatedDays = &v
	}

	credited := false
	if !wasResolved && status == StatusResolved {
		if delta := award(*is); delta > 0 {
			if u, ok := s.users[is.ReporterID]; ok {
				u.Credits += delta
				credited = true
			}
		}
	}
	return *is, credited, nil
}

func (s *InMemory) GetMission(_ context.Context, id string) (Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.missions[id]
	if !ok {
		return Mission{}, ErrNotFound
	}
	return *m, nil
}

func (s *InMemory) ListMissionsByIssue(_ context.Context, issueID string) ([]Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Mission
	for _, m := range s.missions {
		if m.IssueID == issueID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) CompleteMission(_ context.Context, id string, now time.Time, anchor func(Mission) (string, error), award func(Mission) int64) (Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok {
		return Completion{}, ErrNotFound
	}

	// Idempotent replay: the stored proof is the answer.
	if m.Status == MissionCompleted {
		return Completion{Mission: *m, ProofRef: m.ProofRef, Credited: false}, nil
	}

	proof, err := anchor(*m)
	if err != nil {
		return Completion{}, err
	}
	delta := award(*m)

	u, ok := s.users[m.AssigneeID]
	if !ok {
		return Completion{}, ErrNotFound
	}

	m.Status = MissionCompleted
	m.ProofRef = proof
	completedAt := now
	m.CompletedAt = &completedAt
	if delta <= 0 {
		return Completion{Mission: *m, ProofRef: proof, Credited: false}, nil
	}
	s.ledger = append(s.ledger, LedgerEntry{
		ID:        ids.New(),
		UserID:    m.AssigneeID,
		MissionID: m.ID,
		Category:  m.Category,
		Timestamp: now,
	})
	u.Credits += delta

	return Completion{Mission: *m, ProofRef: proof, Credited: true, CreditDelta: delta}, nil
}

func (s *InMemory) LedgerByUser(_ context.Context, userID string) ([]LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []LedgerEntry
	for _, e := range s.ledger {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *InMemory) RewardTiers(_ context.Context) ([]RewardTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RewardTier, len(s.tiers))
	copy(out, s.tiers)
	sort.Slice(out, func(i, j int) bool { return out[i].MinCredits < out[j].MinCredits })
	return out, nil
}

func (s *InMemory) IssueCountsByLocation(_ context.Context, reporterID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, is := range s.issues {
		if is.ReporterID == reporterID {
			out[is.Location]++
		}
	}
	return out, nil
}

func (s *InMemory) ReporterIDsByLocation(_ context.Context, location string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, is := range s.issues {
		if is.Location == location && !seen[is.ReporterID] {
			seen[is.ReporterID] = true
			out = append(out, is.ReporterID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemory) RegionSummary(_ context.Context) ([]RegionStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byLoc := make(map[string]*RegionStat)
	for _, is := range s.issues {
		st, ok := byLoc[is.Location]
		if !ok {
			st = &RegionStat{Location: is.Location, Breakdown: make(map[taxonomy.Category]int)}
			byLoc[is.Location] = st
		}
		st.Count++
		st.Breakdown[is.Category]++
	}
	out := make([]RegionStat, 0, len(byLoc))
	for _, st := range byLoc {
		st.DominantCategory = dominant(st.Breakdown)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, nil
}

func (s *InMemory) MissionStatsByLocation(_ context.Context, location string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total, completed := 0, 0
	for _, m := range s.missions {
		if m.Location != location {
			continue
		}
		total++
		if m.Status == MissionCompleted {
			completed++
		}
	}
	return total, completed, nil
}

func sortIssuesNewestFirst(issues []Issue) {
	sort.Slice(issues, func(i, j int) bool {
		if !issues[i].CreatedAt.Equal(issues[j].CreatedAt) {
			return issues[i].CreatedAt.After(issues[j].CreatedAt)
		}
		return issues[i].ID > issues[j].ID
	})
}

// dominant picks the category with the highest count; ties take the
// lexicographically smallest category so summaries stay deterministic.
func dominant(breakdown map[taxonomy.Category]int) taxonomy.Category {
	var best taxonomy.Category
	bestCount := 0
	for c, n := range breakdown {
		if n > bestCount || (n == bestCount && (best == "" || c < best)) {
			best = c
			bestCount = n
		}
	}
	return best
}
