package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(openTestDB(t), SQLiteDialect{}, "svc", "migrate_version")
	if err := s.Ensure(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	return s
}

func TestEnsure_Idempotent(t *testing.T) {
	s := newTestStore(t)
	// Second ensure on an existing table must be a no-op.
	if err := s.Ensure(context.Background()); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
}

func TestApplied_EmptyTable(t *testing.T) {
	s := newTestStore(t)
	applied, err := s.Applied(context.Background())
	if err != nil {
		t.Fatalf("applied: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected empty set, got %v", applied)
	}
}

func TestRecordApplied_ThenApplied(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, v := range []int{1, 2, 3} {
		if err := s.RecordApplied(ctx, s.db, v); err != nil {
			t.Fatalf("record %d: %v", v, err)
		}
	}
	applied, err := s.Applied(ctx)
	if err != nil {
		t.Fatalf("applied: %v", err)
	}
	if len(applied) != 3 {
		t.Fatalf("expected 3 versions, got %v", applied)
	}
	for _, v := range []int{1, 2, 3} {
		if _, ok := applied[v]; !ok {
			t.Fatalf("version %d missing from applied set", v)
		}
	}
}

func TestRecordApplied_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.RecordApplied(ctx, s.db, 1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordApplied(ctx, s.db, 1); err == nil {
		t.Fatalf("duplicate version insert should violate the primary key")
	}
}

func TestRecordApplied_InsideTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.RecordApplied(ctx, tx, 7); err != nil {
		t.Fatalf("record in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	applied, err := s.Applied(ctx)
	if err != nil {
		t.Fatalf("applied: %v", err)
	}
	if _, ok := applied[7]; ok {
		t.Fatalf("rolled-back record must not be visible")
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.RecordApplied(ctx, s.db, 2); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Remove(ctx, s.db, 2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	applied, err := s.Applied(ctx)
	if err != nil {
		t.Fatalf("applied: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected empty set after remove, got %v", applied)
	}
}

func TestPostgresDialect(t *testing.T) {
	d := PostgresDialect{}
	if d.Placeholder(2) != "$2" {
		t.Fatalf("unexpected placeholder: %q", d.Placeholder(2))
	}
	q := d.QualifiedTable("svc", "migrate_version")
	if q != `"svc"."migrate_version"` {
		t.Fatalf("unexpected qualified name: %q", q)
	}
	if got := d.QualifiedTable(`we"ird`, "t"); got != `"we""ird"."t"` {
		t.Fatalf("quote escaping broken: %q", got)
	}
}
