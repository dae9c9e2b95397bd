package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func testSource() fstest.MapFS {
	return fstest.MapFS{
		"sql/0001_init.up.sql": &fstest.MapFile{
			Data: []byte(`create table widgets (id text primary key, label text not null);`),
		},
		"sql/0001_init.down.sql": &fstest.MapFile{
			Data: []byte(`drop table widgets;`),
		},
		"sql/0002_labels.up.sql": &fstest.MapFile{
			Data: []byte(`insert into widgets(id, label) values ('w1', 'first; kept');
insert into widgets(id, label) values ('w2', 'second');`),
		},
		"sql/0002_labels.down.sql": &fstest.MapFile{
			Data: []byte(`delete from widgets;`),
		},
		"seeds/0001_extra.sql": &fstest.MapFile{
			Data: []byte(`insert into widgets(id, label) values ('seeded', 'seed row');`),
		},
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`select count(*) from ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, testSource(), "sql", "seeds")
	ctx := context.Background()

	if err := mgr.Up(ctx); err != nil {
		t.Fatalf("up: %v", err)
	}
	if got := countRows(t, db, "widgets"); got != 2 {
		t.Fatalf("widgets after up = %d, want 2", got)
	}

	applied, err := mgr.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(applied) != 2 || applied[0] != "0001_init.up.sql" || applied[1] != "0002_labels.up.sql" {
		t.Fatalf("unexpected status: %v", applied)
	}

	// Second run is a no-op.
	if err := mgr.Up(ctx); err != nil {
		t.Fatalf("up again: %v", err)
	}
	if got := countRows(t, db, "widgets"); got != 2 {
		t.Fatalf("widgets after repeated up = %d, want 2", got)
	}
}

func TestUpPreservesSemicolonsInsideStrings(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, testSource(), "sql", "")
	if err := mgr.Up(context.Background()); err != nil {
		t.Fatalf("up: %v", err)
	}
	var label string
	if err := db.QueryRow(`select label from widgets where id = 'w1'`).Scan(&label); err != nil {
		t.Fatalf("select: %v", err)
	}
	if label != "first; kept" {
		t.Fatalf("label = %q", label)
	}
}

func TestDownRollsBackLastMigration(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, testSource(), "sql", "")
	ctx := context.Background()

	if err := mgr.Up(ctx); err != nil {
		t.Fatalf("up: %v", err)
	}
	if err := mgr.Down(ctx); err != nil {
		t.Fatalf("down: %v", err)
	}
	if got := countRows(t, db, "widgets"); got != 0 {
		t.Fatalf("widgets after down = %d, want 0", got)
	}
	applied, err := mgr.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0001_init.up.sql" {
		t.Fatalf("unexpected status after down: %v", applied)
	}
}

func TestDownWithoutHistoryFails(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, testSource(), "sql", "")
	if err := mgr.Down(context.Background()); err == nil {
		t.Fatal("expected error with no applied migrations")
	}
}

func TestSeedRunsOnce(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, testSource(), "sql", "seeds")
	ctx := context.Background()

	if err := mgr.Up(ctx); err != nil {
		t.Fatalf("up: %v", err)
	}
	if err := mgr.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := mgr.Seed(ctx); err != nil {
		t.Fatalf("seed again: %v", err)
	}
	var n int
	if err := db.QueryRow(`select count(*) from widgets where id = 'seeded'`).Scan(&n); err != nil {
		t.Fatalf("count seeded: %v", err)
	}
	if n != 1 {
		t.Fatalf("seed rows = %d, want 1", n)
	}
}

func TestMissingDirsAreNoOps(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, fstest.MapFS{}, "sql", "seeds")
	ctx := context.Background()
	if err := mgr.Up(ctx); err != nil {
		t.Fatalf("up with empty source: %v", err)
	}
	if err := mgr.Seed(ctx); err != nil {
		t.Fatalf("seed with empty source: %v", err)
	}
}

func TestTableNameOptions(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, testSource(), "sql", "seeds",
		WithMigrationsTable("civic_migrations"), WithSeedsTable("civic_seeds"))
	if err := mgr.Up(context.Background()); err != nil {
		t.Fatalf("up: %v", err)
	}
	if got := countRows(t, db, "civic_migrations"); got != 2 {
		t.Fatalf("bookkeeping rows = %d, want 2", got)
	}
}
