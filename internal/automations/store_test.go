package automations

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func automationColumns() []string {
	return []string{"id", "automation_id", "name", "active", "status",
		"completed_calls", "total_calls", "last_run_at", "next_run_at",
		"created_at", "updated_at"}
}

func TestStore_List(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM automations\s+ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows(automationColumns()).
			AddRow("a1", "", "Morning reminders", true, "running", 10, 40, now, nil, now, now).
			AddRow("a2", "legacy-7", "Follow-ups", false, "idle", 0, 0, nil, nil, now, now))

	got, err := NewStore(db).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d automations, want 2", len(got))
	}
	if got[0].CanonicalID() != "a1" {
		t.Errorf("first id = %q, want a1", got[0].CanonicalID())
	}
	if got[0].LastRunAt == nil {
		t.Error("expected LastRunAt set for first row")
	}
	if got[1].NextRunAt != nil {
		t.Error("expected nil NextRunAt for second row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_Get_NotFoundReturnsNil(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectQuery(`SELECT .+ FROM automations\s+WHERE id = \$1 OR automation_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(automationColumns()))

	a, err := NewStore(db).Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != nil {
		t.Errorf("expected nil automation, got %+v", a)
	}
}

func TestStore_Get_MatchesLegacyID(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM automations`).
		WithArgs("legacy-7").
		WillReturnRows(sqlmock.NewRows(automationColumns()).
			AddRow("", "legacy-7", "Follow-ups", true, "", 3, 9, nil, nil, now, now))

	a, err := NewStore(db).Get(context.Background(), "legacy-7")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a == nil {
		t.Fatal("expected automation, got nil")
	}
	if a.CanonicalID() != "legacy-7" {
		t.Errorf("CanonicalID = %q, want legacy-7", a.CanonicalID())
	}
}

func TestStore_Create_GeneratesID(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec(`INSERT INTO automations`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := &Automation{Name: "New campaign", Active: true}
	if err := NewStore(db).Create(context.Background(), a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == "" {
		t.Error("expected generated ID")
	}
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		t.Error("expected timestamps set")
	}
}

func TestStore_SetActive_NotFound(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec(`UPDATE automations`).
		WithArgs("missing", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewStore(db).SetActive(context.Background(), "missing", true); err == nil {
		t.Fatal("expected error for unknown automation")
	}
}
