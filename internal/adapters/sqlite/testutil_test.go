// Package sqlite_test contains integration tests for SQLite repositories.
//
// All test setup uses db.GetSchemaSQL() so tests run against the
// authoritative schema; a column referenced by a repository that is missing
// from the schema fails here immediately. Do not hardcode CREATE TABLE
// statements in test files.
package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/coord/internal/db"
	"github.com/example/coord/internal/models"
)

// setupTestDB creates an in-memory database with the authoritative schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if _, err := testDB.Exec(db.GetSchemaSQL()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})
	return testDB
}

// seedInstance inserts a minimal persona instance row for tests that need a
// foreign-key target.
func seedInstance(t *testing.T, testDB *sql.DB, id string) {
	t.Helper()
	_, err := testDB.ExecContext(context.Background(),
		`INSERT INTO persona_instances (id, name, role, state, last_activity_at, created_at, updated_at)
		 VALUES (?, ?, ?, 'active', ?, ?, ?)`,
		id, id, "backend-developer", time.Now().UTC(), time.Now().UTC(), time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to seed instance %s: %v", id, err)
	}
}

// seedExecution inserts a running execution row.
func seedExecution(t *testing.T, testDB *sql.DB, id, workItemID string) {
	t.Helper()
	_, err := testDB.ExecContext(context.Background(),
		`INSERT INTO executions (id, work_item_id, workflow_id, task_type, status, sync_status, created_at, updated_at)
		 VALUES (?, ?, 'feature-delivery', 'code_commit', 'running', 'in_sync', ?, ?)`,
		id, workItemID, time.Now().UTC(), time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to seed execution %s: %v", id, err)
	}
}

// testTime returns a stable timestamp truncated to whole seconds; SQLite
// round-trips sub-second precision inconsistently across DATETIME affinities.
func testTime() time.Time {
	return time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
}

func newExecution(id, workItemID string) *models.Execution {
	now := testTime()
	return &models.Execution{
		ID:           id,
		WorkItemID:   workItemID,
		WorkflowID:   "feature-delivery",
		TaskType:     "code_commit",
		CurrentPhase: "planning",
		SyncStatus:   models.SyncInSync,
		Status:       models.ExecutionRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
