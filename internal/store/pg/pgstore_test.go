package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"civicledger.org/internal/civic"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func userRows(u civic.User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "email", "credits", "public_profile", "created_at"}).
		AddRow(u.ID, u.Name, u.Email, u.Credits, u.PublicProfile, u.CreatedAt)
}

func missionRow(m civic.Mission) *sqlmock.Rows {
	var completed any
	if m.CompletedAt != nil {
		completed = *m.CompletedAt
	}
	rows := sqlmock.NewRows([]string{"id", "issue_id", "assignee_id", "title", "category", "location", "status", "proof_ref", "created_at", "completed_at"})
	rows.AddRow(m.ID, m.IssueID, m.AssigneeID, m.Title, m.Category, m.Location, m.Status, m.ProofRef, m.CreatedAt, completed)
	return rows
}

func issueRow(is civic.Issue) *sqlmock.Rows {
	var days any
	if is.EstimatedDays != nil {
		days = int64(*is.EstimatedDays)
	}
	rows := sqlmock.NewRows([]string{"id", "reporter_id", "body", "category", "subcategory", "location", "severity", "status", "estimated_days", "created_at"})
	rows.AddRow(is.ID, is.ReporterID, is.Text, is.Category, is.Subcategory, is.Location, is.Severity, is.Status, days, is.CreatedAt)
	return rows
}

func TestGetUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from users where id=").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "credits", "public_profile", "created_at"}))

	_, err := store.GetUser(context.Background(), "missing")
	if err != civic.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateIssueWithMissionIsAtomic(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	is := civic.Issue{ID: "iss-1", ReporterID: "usr-1", Text: "garbage dump", Category: "waste",
		Subcategory: "open dumping", Location: "Saket", Severity: "medium", Status: civic.StatusSubmitted, CreatedAt: now}
	m := civic.Mission{ID: "mis-1", IssueID: "iss-1", AssigneeID: "usr-1", Title: "Resolve open dumping in Saket",
		Category: "waste", Location: "Saket", Status: civic.MissionOpen, CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("insert into issues").
		WithArgs(is.ID, is.ReporterID, is.Text, is.Category, is.Subcategory, is.Location, is.Severity, is.Status, nil, is.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into missions").
		WithArgs(m.ID, m.IssueID, m.AssigneeID, m.Title, m.Category, m.Location, m.Status, m.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.CreateIssueWithMission(context.Background(), is, m); err != nil {
		t.Fatalf("CreateIssueWithMission: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCompleteMissionFirstCall(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	open := civic.Mission{ID: "mis-1", IssueID: "iss-1", AssigneeID: "usr-1", Title: "Resolve open dumping in Saket",
		Category: "waste", Location: "Saket", Status: civic.MissionOpen, CreatedAt: now.Add(-time.Hour)}

	mock.ExpectBegin()
	mock.ExpectQuery("select (.+) from missions where id=(.+) for update").
		WithArgs("mis-1").
		WillReturnRows(missionRow(open))
	mock.ExpectExec("update missions set status=").
		WithArgs("mis-1", civic.MissionCompleted, "proof-abc", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into ledger_entries").
		WithArgs(sqlmock.AnyArg(), "usr-1", "mis-1", "waste", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update users set credits").
		WithArgs("usr-1", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	anchorCalls := 0
	res, err := store.CompleteMission(context.Background(), "mis-1", now,
		func(civic.Mission) (string, error) { anchorCalls++; return "proof-abc", nil },
		func(civic.Mission) int64 { return 10 },
	)
	if err != nil {
		t.Fatalf("CompleteMission: %v", err)
	}
	if !res.Credited || res.ProofRef != "proof-abc" || res.CreditDelta != 10 {
		t.Fatalf("unexpected completion: %+v", res)
	}
	if anchorCalls != 1 {
		t.Fatalf("anchor calls = %d, want 1", anchorCalls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCompleteMissionReplay(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	done := now.Add(-time.Minute)

	completed := civic.Mission{ID: "mis-1", IssueID: "iss-1", AssigneeID: "usr-1", Title: "Resolve open dumping in Saket",
		Category: "waste", Location: "Saket", Status: civic.MissionCompleted, ProofRef: "proof-old",
		CreatedAt: now.Add(-time.Hour), CompletedAt: &done}

	mock.ExpectBegin()
	mock.ExpectQuery("select (.+) from missions where id=(.+) for update").
		WithArgs("mis-1").
		WillReturnRows(missionRow(completed))
	mock.ExpectCommit()

	res, err := store.CompleteMission(context.Background(), "mis-1", now,
		func(civic.Mission) (string, error) {
			t.Fatal("anchor must not run on replay")
			return "", nil
		},
		func(civic.Mission) int64 {
			t.Fatal("award must not run on replay")
			return 0
		},
	)
	if err != nil {
		t.Fatalf("CompleteMission: %v", err)
	}
	if res.Credited || res.ProofRef != "proof-old" {
		t.Fatalf("unexpected replay result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCompleteMissionZeroAwardSkipsCredit(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	open := civic.Mission{ID: "mis-1", IssueID: "iss-1", AssigneeID: "off-1", Title: "Resolve open dumping in Saket",
		Category: "waste", Location: "Saket", Status: civic.MissionOpen, CreatedAt: now.Add(-time.Hour)}

	// No ledger insert and no credits update may follow the mission update.
	mock.ExpectBegin()
	mock.ExpectQuery("select (.+) from missions where id=(.+) for update").
		WithArgs("mis-1").
		WillReturnRows(missionRow(open))
	mock.ExpectExec("update missions set status=").
		WithArgs("mis-1", civic.MissionCompleted, "proof-abc", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := store.CompleteMission(context.Background(), "mis-1", now,
		func(civic.Mission) (string, error) { return "proof-abc", nil },
		func(civic.Mission) int64 { return 0 },
	)
	if err != nil {
		t.Fatalf("CompleteMission: %v", err)
	}
	if res.Credited || res.CreditDelta != 0 || res.ProofRef != "proof-abc" {
		t.Fatalf("unexpected completion: %+v", res)
	}
	if res.Mission.Status != civic.MissionCompleted {
		t.Fatalf("mission status = %s, want COMPLETED", res.Mission.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateIssueStatusCreditsOnResolve(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	is := civic.Issue{ID: "iss-1", ReporterID: "usr-1", Text: "garbage dump", Category: "waste",
		Subcategory: "open dumping", Location: "Saket", Severity: "medium", Status: civic.StatusSubmitted, CreatedAt: now}

	days := 3
	mock.ExpectBegin()
	mock.ExpectQuery("select (.+) from issues where id=(.+) for update").
		WithArgs("iss-1").
		WillReturnRows(issueRow(is))
	mock.ExpectExec("update issues set status=").
		WithArgs("iss-1", civic.StatusResolved, days).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update users set credits").
		WithArgs("usr-1", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, credited, err := store.UpdateIssueStatus(context.Background(), "iss-1", civic.StatusResolved, &days,
		func(civic.Issue) int64 { return 10 })
	if err != nil {
		t.Fatalf("UpdateIssueStatus: %v", err)
	}
	if !credited {
		t.Fatal("expected credit on first resolve")
	}
	if updated.Status != civic.StatusResolved || updated.EstimatedDays == nil || *updated.EstimatedDays != 3 {
		t.Fatalf("unexpected issue state: %+v", updated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateIssueStatusRepeatResolveNoCredit(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	is := civic.Issue{ID: "iss-1", ReporterID: "usr-1", Text: "garbage dump", Category: "waste",
		Subcategory: "open dumping", Location: "Saket", Severity: "medium", Status: civic.StatusResolved, CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery("select (.+) from issues where id=(.+) for update").
		WithArgs("iss-1").
		WillReturnRows(issueRow(is))
	mock.ExpectExec("update issues set status=").
		WithArgs("iss-1", civic.StatusResolved, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, credited, err := store.UpdateIssueStatus(context.Background(), "iss-1", civic.StatusResolved, nil,
		func(civic.Issue) int64 {
			t.Fatal("award must not run when already resolved")
			return 0
		})
	if err != nil {
		t.Fatalf("UpdateIssueStatus: %v", err)
	}
	if credited {
		t.Fatal("repeat resolve must not credit")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSetUserVisibility(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	u := civic.User{ID: "usr-1", Name: "Asha", Email: "asha@example.com", Credits: 10, PublicProfile: false, CreatedAt: now}
	mock.ExpectQuery("update users set public_profile=").
		WithArgs("usr-1", false).
		WillReturnRows(userRows(u))

	got, err := store.SetUserVisibility(context.Background(), "usr-1", false)
	if err != nil {
		t.Fatalf("SetUserVisibility: %v", err)
	}
	if got.PublicProfile {
		t.Fatal("expected private profile")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMissionStatsByLocation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select count").
		WithArgs("Saket", civic.MissionCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"count", "count"}).AddRow(4, 2))

	total, completed, err := store.MissionStatsByLocation(context.Background(), "Saket")
	if err != nil {
		t.Fatalf("MissionStatsByLocation: %v", err)
	}
	if total != 4 || completed != 2 {
		t.Fatalf("stats = %d/%d, want 4/2", total, completed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
