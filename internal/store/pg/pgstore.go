// Package pg implements the civic store on PostgreSQL. The transactional
// contracts (atomic issue+mission creation, exactly-once completion and
// resolve credits) ride on row locks taken with SELECT ... FOR UPDATE.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"civicledger.org/internal/civic"
	"civicledger.org/internal/ids"
	"civicledger.org/internal/taxonomy"
)

type Store struct {
	db *sql.DB
}

var _ civic.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool; used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const userColumns = `id, name, email, credits, public_profile, created_at`

func scanUser(row interface{ Scan(...any) error }) (civic.User, error) {
	var u civic.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Credits, &u.PublicProfile, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return civic.User{}, civic.ErrNotFound
	}
	if err != nil {
		return civic.User{}, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u civic.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, name, email, credits, public_profile, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, u.ID, u.Name, u.Email, u.Credits, u.PublicProfile, u.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return civic.ErrEmailTaken
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (civic.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (civic.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email))
}

func (s *Store) ListUsers(ctx context.Context) ([]civic.User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []civic.User
	for rows.Next() {
		var u civic.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Credits, &u.PublicProfile, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) SetUserVisibility(ctx context.Context, id string, public bool) (civic.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		update users set public_profile=$2 where id=$1
		returning `+userColumns+`
	`, id, public))
}

func (s *Store) AdjustCredits(ctx context.Context, id string, delta int64) (civic.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		update users set credits = credits + $2 where id=$1
		returning `+userColumns+`
	`, id, delta))
}

const issueColumns = `id, reporter_id, body, category, subcategory, location, severity, status, estimated_days, created_at`

func scanIssue(row interface{ Scan(...any) error }) (civic.Issue, error) {
	var is civic.Issue
	var days sql.NullInt64
	err := row.Scan(&is.ID, &is.ReporterID, &is.Text, &is.Category, &is.Subcategory,
		&is.Location, &is.Severity, &is.Status, &days, &is.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return civic.Issue{}, civic.ErrNotFound
	}
	if err != nil {
		return civic.Issue{}, err
	}
	if days.Valid {
		v := int(days.Int64)
		is.EstimatedDays = &v
	}
	return is, nil
}

func (s *Store) CreateIssueWithMission(ctx context.Context, is civic.Issue, m civic.Mission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into issues(id, reporter_id, body, category, subcategory, location, severity, status, estimated_days, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, is.ID, is.ReporterID, is.Text, is.Category, is.Subcategory, is.Location, is.Severity, is.Status, nullableDays(is.EstimatedDays), is.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into missions(id, issue_id, assignee_id, title, category, location, status, proof_ref, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,'',$8)
	`, m.ID, m.IssueID, m.AssigneeID, m.Title, m.Category, m.Location, m.Status, m.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetIssue(ctx context.Context, id string) (civic.Issue, error) {
	return scanIssue(s.db.QueryRowContext(ctx, `select `+issueColumns+` from issues where id=$1`, id))
}

func (s *Store) ListIssuesByReporter(ctx context.Context, reporterID string) ([]civic.Issue, error) {
	return s.queryIssues(ctx, `
		select `+issueColumns+` from issues
		where reporter_id=$1
		order by created_at desc, id desc
	`, reporterID)
}

func (s *Store) ListIssuesByLocation(ctx context.Context, locality string, limit int) ([]civic.Issue, error) {
	return s.queryIssues(ctx, `
		select `+issueColumns+` from issues
		where location ilike '%' || $1 || '%'
		order by created_at desc, id desc
		limit $2
	`, locality, limit)
}

func (s *Store) queryIssues(ctx context.Context, query string, args ...any) ([]civic.Issue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []civic.Issue
	for rows.Next() {
		var is civic.Issue
		var days sql.NullInt64
		if err := rows.Scan(&is.ID, &is.ReporterID, &is.Text, &is.Category, &is.Subcategory,
			&is.Location, &is.Severity, &is.Status, &days, &is.CreatedAt); err != nil {
			return nil, err
		}
		if days.Valid {
			v := int(days.Int64)
			is.EstimatedDays = &v
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

func (s *Store) UpdateIssueStatus(ctx context.Context, id, status string, estimatedDays *int, award func(civic.Issue) int64) (civic.Issue, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return civic.Issue{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	is, err := scanIssue(tx.QueryRowContext(ctx, `select `+issueColumns+` from issues where id=$1 for update`, id))
	if err != nil {
		return civic.Issue{}, false, err
	}

	wasResolved := is.Status == civic.StatusResolved
	is.Status = status
	if estimatedDays != nil {
		v := *estimatedDays
		is.EstimatedDays = &v
	}

	if _, err := tx.ExecContext(ctx, `
		update issues set status=$2, estimated_days=$3 where id=$1
	`, id, is.Status, nullableDays(is.EstimatedDays)); err != nil {
		return civic.Issue{}, false, err
	}

	credited := false
	if !wasResolved && status == civic.StatusResolved {
		if delta := award(is); delta > 0 {
			res, err := tx.ExecContext(ctx, `
				update users set credits = credits + $2 where id=$1
			`, is.ReporterID, delta)
			if err != nil {
				return civic.Issue{}, false, err
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				credited = true
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return civic.Issue{}, false, err
	}
	return is, credited, nil
}

const missionColumns = `id, issue_id, assignee_id, title, category, location, status, proof_ref, created_at, completed_at`

func scanMission(row interface{ Scan(...any) error }) (civic.Mission, error) {
	var m civic.Mission
	var completed sql.NullTime
	err := row.Scan(&m.ID, &m.IssueID, &m.AssigneeID, &m.Title, &m.Category,
		&m.Location, &m.Status, &m.ProofRef, &m.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return civic.Mission{}, civic.ErrNotFound
	}
	if err != nil {
		return civic.Mission{}, err
	}
	if completed.Valid {
		t := completed.Time
		m.CompletedAt = &t
	}
	return m, nil
}

func (s *Store) GetMission(ctx context.Context, id string) (civic.Mission, error) {
	return scanMission(s.db.QueryRowContext(ctx, `select `+missionColumns+` from missions where id=$1`, id))
}

func (s *Store) ListMissionsByIssue(ctx context.Context, issueID string) ([]civic.Mission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+missionColumns+` from missions where issue_id=$1 order by id
	`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []civic.Mission
	for rows.Next() {
		var m civic.Mission
		var completed sql.NullTime
		if err := rows.Scan(&m.ID, &m.IssueID, &m.AssigneeID, &m.Title, &m.Category,
			&m.Location, &m.Status, &m.ProofRef, &m.CreatedAt, &completed); err != nil {
			return nil, err
		}
		if completed.Valid {
			t := completed.Time
			m.CompletedAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CompleteMission(ctx context.Context, id string, now time.Time, anchor func(civic.Mission) (string, error), award func(civic.Mission) int64) (civic.Completion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return civic.Completion{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// The row lock serializes concurrent completion attempts; the loser of
	// the race sees COMPLETED and replays the stored proof.
	m, err := scanMission(tx.QueryRowContext(ctx, `select `+missionColumns+` from missions where id=$1 for update`, id))
	if err != nil {
		return civic.Completion{}, err
	}

	if m.Status == civic.MissionCompleted {
		if err := tx.Commit(); err != nil {
			return civic.Completion{}, err
		}
		return civic.Completion{Mission: m, ProofRef: m.ProofRef, Credited: false}, nil
	}

	proof, err := anchor(m)
	if err != nil {
		return civic.Completion{}, err
	}
	delta := award(m)

	m.Status = civic.MissionCompleted
	m.ProofRef = proof
	completedAt := now
	m.CompletedAt = &completedAt

	if _, err := tx.ExecContext(ctx, `
		update missions set status=$2, proof_ref=$3, completed_at=$4 where id=$1
	`, id, m.Status, proof, now); err != nil {
		return civic.Completion{}, err
	}
	if delta <= 0 {
		if err := tx.Commit(); err != nil {
			return civic.Completion{}, err
		}
		return civic.Completion{Mission: m, ProofRef: proof, Credited: false}, nil
	}
	if _, err := tx.ExecContext(ctx, `
		insert into ledger_entries(id, user_id, mission_id, category, ts)
		values ($1,$2,$3,$4,$5)
	`, ids.New(), m.AssigneeID, m.ID, m.Category, now); err != nil {
		return civic.Completion{}, err
	}
	res, err := tx.ExecContext(ctx, `
		update users set credits = credits + $2 where id=$1
	`, m.AssigneeID, delta)
	if err != nil {
		return civic.Completion{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return civic.Completion{}, civic.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return civic.Completion{}, err
	}
	return civic.Completion{Mission: m, ProofRef: proof, Credited: true, CreditDelta: delta}, nil
}

func (s *Store) LedgerByUser(ctx context.Context, userID string) ([]civic.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, mission_id, category, ts
		from ledger_entries
		where user_id=$1
		order by ts desc, id desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []civic.LedgerEntry
	for rows.Next() {
		var e civic.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.MissionID, &e.Category, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) RewardTiers(ctx context.Context) ([]civic.RewardTier, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, min_credits, description
		from reward_tiers
		order by min_credits asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []civic.RewardTier
	for rows.Next() {
		var t civic.RewardTier
		if err := rows.Scan(&t.ID, &t.Name, &t.MinCredits, &t.Description); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) IssueCountsByLocation(ctx context.Context, reporterID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		select location, count(*) from issues where reporter_id=$1 group by location
	`, reporterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var loc string
		var n int
		if err := rows.Scan(&loc, &n); err != nil {
			return nil, err
		}
		out[loc] = n
	}
	return out, rows.Err()
}

func (s *Store) ReporterIDsByLocation(ctx context.Context, location string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct reporter_id from issues where location=$1 order by reporter_id
	`, location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) RegionSummary(ctx context.Context) ([]civic.RegionStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		select location, category, count(*)
		from issues
		group by location, category
		order by location, category
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []civic.RegionStat
	var cur *civic.RegionStat
	for rows.Next() {
		var loc string
		var cat taxonomy.Category
		var n int
		if err := rows.Scan(&loc, &cat, &n); err != nil {
			return nil, err
		}
		if cur == nil || cur.Location != loc {
			out = append(out, civic.RegionStat{Location: loc, Breakdown: make(map[taxonomy.Category]int)})
			cur = &out[len(out)-1]
		}
		cur.Count += n
		cur.Breakdown[cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].DominantCategory = dominant(out[i].Breakdown)
	}
	return out, nil
}

func (s *Store) MissionStatsByLocation(ctx context.Context, location string) (int, int, error) {
	var total, completed int
	err := s.db.QueryRowContext(ctx, `
		select count(*), count(*) filter (where status=$2)
		from missions where location=$1
	`, location, civic.MissionCompleted).Scan(&total, &completed)
	if err != nil {
		return 0, 0, err
	}
	return total, completed, nil
}

// --- helpers ---

func nullableDays(days *int) any {
	if days == nil {
		return nil
	}
	return *days
}

// dominant picks the category with the highest count; ties take the
// lexicographically smaller name.
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

func isUniqueViolation(err error) bool {
	// pgx wraps server errors; SQLSTATE 23505 is unique_violation.
	type sqlState interface{ SQLState() string }
	var st sqlState
	return errors.As(err, &st) && st.SQLState() == "23505"
}
