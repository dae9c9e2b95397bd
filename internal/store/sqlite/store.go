// Package sqlite implements the civic store on a local SQLite file, the
// single-node deployment default. The pool is capped at one connection, so
// every transaction is a serialized critical section and the exactly-once
// completion contract holds without row locks.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"civicledger.org/internal/civic"
	"civicledger.org/internal/ids"
	"civicledger.org/internal/taxonomy"
)

type Store struct {
	db *sql.DB
}

var _ civic.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	email          TEXT NOT NULL UNIQUE,
	credits        INTEGER NOT NULL DEFAULT 0,
	public_profile INTEGER NOT NULL DEFAULT 1,
	created_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
	id             TEXT PRIMARY KEY,
	reporter_id    TEXT NOT NULL REFERENCES users(id),
	body           TEXT NOT NULL,
	category       TEXT NOT NULL,
	subcategory    TEXT NOT NULL,
	location       TEXT NOT NULL,
	severity       TEXT NOT NULL,
	status         TEXT NOT NULL,
	estimated_days INTEGER,
	created_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_issues_reporter ON issues(reporter_id);
CREATE INDEX IF NOT EXISTS idx_issues_location ON issues(location);

CREATE TABLE IF NOT EXISTS missions (
	id           TEXT PRIMARY KEY,
	issue_id     TEXT NOT NULL REFERENCES issues(id),
	assignee_id  TEXT NOT NULL REFERENCES users(id),
	title        TEXT NOT NULL,
	category     TEXT NOT NULL,
	location     TEXT NOT NULL,
	status       TEXT NOT NULL,
	proof_ref    TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_missions_issue ON missions(issue_id);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	mission_id TEXT NOT NULL,
	category   TEXT NOT NULL,
	ts         TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_user ON ledger_entries(user_id);

CREATE TABLE IF NOT EXISTS reward_tiers (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	min_credits INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);
`

// Open opens (and if needed creates) the database file and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// SeedTiers inserts reward tiers, ignoring rows already present.
func (s *Store) SeedTiers(ctx context.Context, tiers []civic.RewardTier) error {
	for _, t := range tiers {
		if _, err := s.db.ExecContext(ctx, `
			insert into reward_tiers(id, name, min_credits, description)
			values (?,?,?,?)
			on conflict(id) do nothing
		`, t.ID, t.Name, t.MinCredits, t.Description); err != nil {
			return err
		}
	}
	return nil
}

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
		values (?,?,?,?,?,?)
	`, u.ID, u.Name, u.Email, u.Credits, u.PublicProfile, u.CreatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return civic.ErrEmailTaken
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (civic.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=?`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (civic.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=?`, email))
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
	res, err := s.db.ExecContext(ctx, `update users set public_profile=? where id=?`, public, id)
	if err != nil {
		return civic.User{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return civic.User{}, civic.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

func (s *Store) AdjustCredits(ctx context.Context, id string, delta int64) (civic.User, error) {
	res, err := s.db.ExecContext(ctx, `update users set credits = credits + ? where id=?`, delta, id)
	if err != nil {
		return civic.User{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return civic.User{}, civic.ErrNotFound
	}
	return s.GetUser(ctx, id)
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
		values (?,?,?,?,?,?,?,?,?,?)
	`, is.ID, is.ReporterID, is.Text, is.Category, is.Subcategory, is.Location, is.Severity, is.Status, nullableDays(is.EstimatedDays), is.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into missions(id, issue_id, assignee_id, title, category, location, status, proof_ref, created_at)
		values (?,?,?,?,?,?,?,'',?)
	`, m.ID, m.IssueID, m.AssigneeID, m.Title, m.Category, m.Location, m.Status, m.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetIssue(ctx context.Context, id string) (civic.Issue, error) {
	return scanIssue(s.db.QueryRowContext(ctx, `select `+issueColumns+` from issues where id=?`, id))
}

func (s *Store) ListIssuesByReporter(ctx context.Context, reporterID string) ([]civic.Issue, error) {
	return s.queryIssues(ctx, `
		select `+issueColumns+` from issues
		where reporter_id=?
		order by created_at desc, id desc
	`, reporterID)
}

func (s *Store) ListIssuesByLocation(ctx context.Context, locality string, limit int) ([]civic.Issue, error) {
	return s.queryIssues(ctx, `
		select `+issueColumns+` from issues
		where lower(location) like '%' || lower(?) || '%'
		order by created_at desc, id desc
		limit ?
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

	is, err := scanIssue(tx.QueryRowContext(ctx, `select `+issueColumns+` from issues where id=?`, id))
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
		update issues set status=?, estimated_days=? where id=?
	`, is.Status, nullableDays(is.EstimatedDays), id); err != nil {
		return civic.Issue{}, false, err
	}

	credited := false
	if !wasResolved && status == civic.StatusResolved {
		if delta := award(is); delta > 0 {
			res, err := tx.ExecContext(ctx, `
				update users set credits = credits + ? where id=?
			`, delta, is.ReporterID)
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
	return scanMission(s.db.QueryRowContext(ctx, `select `+missionColumns+` from missions where id=?`, id))
}

func (s *Store) ListMissionsByIssue(ctx context.Context, issueID string) ([]civic.Mission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+missionColumns+` from missions where issue_id=? order by id
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

	m, err := scanMission(tx.QueryRowContext(ctx, `select `+missionColumns+` from missions where id=?`, id))
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
		update missions set status=?, proof_ref=?, completed_at=? where id=?
	`, m.Status, proof, now, id); err != nil {
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
		values (?,?,?,?,?)
	`, ids.New(), m.AssigneeID, m.ID, m.Category, now); err != nil {
		return civic.Completion{}, err
	}
	res, err := tx.ExecContext(ctx, `
		update users set credits = credits + ? where id=?
	`, delta, m.AssigneeID)
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
		where user_id=?
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
		select location, count(*) from issues where reporter_id=? group by location
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
		select distinct reporter_id from issues where location=? order by reporter_id
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
		select count(*), coalesce(sum(status=?),0)
		from missions where location=?
	`, civic.MissionCompleted, location).Scan(&total, &completed)
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
