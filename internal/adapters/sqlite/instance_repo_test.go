package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/coord/internal/adapters/sqlite"
	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

func newInstance(id string) *models.PersonaInstance {
	now := testTime()
	return &models.PersonaInstance{
		ID:                 id,
		Name:               id,
		Role:               "backend-developer",
		State:              models.StateActive,
		MaxConcurrentTasks: 3,
		PriorityLevel:      5,
		LastActivityAt:     now,
		SpendLimitDaily:    50,
		SpendLimitMonthly:  1000,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestInstanceRepository_CreateAndGet(t *testing.T) {
	testDB := setupTestDB(t)
	repo := sqlite.NewInstanceRepository(testDB)
	ctx := context.Background()

	if err := repo.Create(ctx, newInstance("INST-001")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "INST-001")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Role != "backend-developer" {
		t.Errorf("Role = %q", got.Role)
	}
	if got.State != models.StateActive {
		t.Errorf("State = %q, want active", got.State)
	}
	if got.DailyPeriodStart != nil {
		t.Errorf("DailyPeriodStart = %v, want nil", got.DailyPeriodStart)
	}

	if _, err := repo.GetByID(ctx, "INST-missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInstanceRepository_ListFilters(t *testing.T) {
	testDB := setupTestDB(t)
	repo := sqlite.NewInstanceRepository(testDB)
	ctx := context.Background()

	dev := newInstance("INST-001")
	if err := repo.Create(ctx, dev); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	lead := newInstance("INST-002")
	lead.Role = "tech-lead"
	if err := repo.Create(ctx, lead); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	down := newInstance("INST-003")
	down.State = models.StateMaintenance
	if err := repo.Create(ctx, down); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	byRole, err := repo.List(ctx, secondary.InstanceFilters{Role: "tech-lead"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(byRole) != 1 || byRole[0].ID != "INST-002" {
		t.Errorf("tech-lead instances = %v", byRole)
	}

	byState, err := repo.List(ctx, secondary.InstanceFilters{
		States: []models.LifecycleState{models.StateActive},
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(byState) != 2 {
		t.Errorf("active instances = %d, want 2", len(byState))
	}
}

func TestInstanceRepository_VersionGuards(t *testing.T) {
	testDB := setupTestDB(t)
	repo := sqlite.NewInstanceRepository(testDB)
	ctx := context.Background()

	if err := repo.Create(ctx, newInstance("INST-001")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	dayStart := testTime().Truncate(24 * time.Hour)

	if err := repo.UpdateSpend(ctx, "INST-001", 12.5, 40, dayStart, dayStart, 1); err != nil {
		t.Fatalf("UpdateSpend failed: %v", err)
	}

	// The first update bumped the version; replaying against the stale
	// version must conflict without moving the counters.
	err := repo.UpdateSpend(ctx, "INST-001", 99, 99, dayStart, dayStart, 1)
	if !errors.Is(err, models.ErrVersionConflict) {
		t.Fatalf("stale UpdateSpend: err = %v, want ErrVersionConflict", err)
	}

	got, err := repo.GetByID(ctx, "INST-001")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.CurrentSpendDaily != 12.5 {
		t.Errorf("CurrentSpendDaily = %v, want 12.5", got.CurrentSpendDaily)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}

	if err := repo.UpdateState(ctx, "INST-001", models.StatePaused, got.Version); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if err := repo.UpdateState(ctx, "INST-001", models.StateActive, got.Version); !errors.Is(err, models.ErrVersionConflict) {
		t.Errorf("stale UpdateState: err = %v, want ErrVersionConflict", err)
	}
}

func TestInstanceRepository_AdjustActiveTasks(t *testing.T) {
	testDB := setupTestDB(t)
	repo := sqlite.NewInstanceRepository(testDB)
	ctx := context.Background()

	if err := repo.Create(ctx, newInstance("INST-001")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.AdjustActiveTasks(ctx, "INST-001", 2); err != nil {
		t.Fatalf("AdjustActiveTasks failed: %v", err)
	}
	// Releasing more than held clamps at zero.
	if err := repo.AdjustActiveTasks(ctx, "INST-001", -5); err != nil {
		t.Fatalf("AdjustActiveTasks failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "INST-001")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.ActiveTasks != 0 {
		t.Errorf("ActiveTasks = %d, want 0", got.ActiveTasks)
	}

	if err := repo.AdjustActiveTasks(ctx, "INST-missing", 1); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInstanceRepository_DecommissionCascades(t *testing.T) {
	testDB := setupTestDB(t)
	repo := sqlite.NewInstanceRepository(testDB)
	ctx := context.Background()

	if err := repo.Create(ctx, newInstance("INST-001")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := testDB.ExecContext(ctx,
		"INSERT INTO spend_entries (id, instance_id, amount, category, allowed) VALUES ('SP-1', 'INST-001', 1.0, 'llm_usage', 1)"); err != nil {
		t.Fatalf("failed to seed spend entry: %v", err)
	}

	if err := repo.Decommission(ctx, "INST-001"); err != nil {
		t.Fatalf("Decommission failed: %v", err)
	}

	if _, err := repo.GetByID(ctx, "INST-001"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	var n int
	if err := testDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM spend_entries WHERE instance_id = 'INST-001'").Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("spend entries after decommission = %d, want 0", n)
	}

	if err := repo.Decommission(ctx, "INST-missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
