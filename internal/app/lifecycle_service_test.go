package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/primary"
)

func newLifecycleFixture() (*LifecycleServiceImpl, *mockInstanceRepo, *mockLifecycleRepo, *mockAlertRepo) {
	instances := newMockInstanceRepo()
	lifecycles := newMockLifecycleRepo()
	health := newMockHealthRepo()
	alerts := newMockAlertRepo()
	monitor := NewMonitorService(newMockMetricRepo(), alerts, health, lifecycles, nil, time.Hour, testLogger())
	svc := NewLifecycleService(instances, lifecycles, health, monitor, time.Hour, testLogger())
	return svc, instances, lifecycles, alerts
}

func createActiveInstance(t *testing.T, svc *LifecycleServiceImpl) string {
	t.Helper()
	inst, err := svc.CreateInstance(context.Background(), primary.CreateInstanceRequest{
		Name:               "backend-developer-1",
		Role:               "backend-developer",
		MaxConcurrentTasks: 3,
	})
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	for _, state := range []models.LifecycleState{models.StateInitializing, models.StateActive} {
		if err := svc.Transition(context.Background(), inst.ID, state, models.TriggerSystem); err != nil {
			t.Fatalf("transition to %s failed: %v", state, err)
		}
	}
	return inst.ID
}

func TestCreateInstance_StartsInProvisioning(t *testing.T) {
	svc, instances, lifecycles, _ := newLifecycleFixture()

	inst, err := svc.CreateInstance(context.Background(), primary.CreateInstanceRequest{
		Name: "qa-engineer-1",
		Role: "qa-engineer",
	})
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}

	stored, err := instances.GetByID(context.Background(), inst.ID)
	if err != nil {
		t.Fatalf("instance not persisted: %v", err)
	}
	if stored.State != models.StateProvisioning {
		t.Errorf("state = %s, want provisioning", stored.State)
	}

	record, err := lifecycles.GetRecord(context.Background(), inst.ID)
	if err != nil {
		t.Fatalf("lifecycle record not opened: %v", err)
	}
	if record.CurrentState != models.StateProvisioning {
		t.Errorf("record state = %s, want provisioning", record.CurrentState)
	}
}

func TestCreateInstance_RequiresNameAndRole(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture()

	if _, err := svc.CreateInstance(context.Background(), primary.CreateInstanceRequest{Role: "qa"}); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := svc.CreateInstance(context.Background(), primary.CreateInstanceRequest{Name: "x"}); err == nil {
		t.Error("expected error for missing role")
	}
}

func TestTransition_HappyPath(t *testing.T) {
	svc, instances, _, _ := newLifecycleFixture()
	id := createActiveInstance(t, svc)

	if err := svc.Transition(context.Background(), id, models.StateBusy, models.TriggerSystem); err != nil {
		t.Fatalf("active -> busy failed: %v", err)
	}

	inst, _ := instances.GetByID(context.Background(), id)
	if inst.State != models.StateBusy {
		t.Errorf("state = %s, want busy", inst.State)
	}
}

// racingInstanceRepo bumps the stored version once after a read, the way a
// concurrent writer landing between load and update would.
type racingInstanceRepo struct {
	*mockInstanceRepo
	raced bool
}

func (r *racingInstanceRepo) GetByID(ctx context.Context, id string) (*models.PersonaInstance, error) {
	inst, err := r.mockInstanceRepo.GetByID(ctx, id)
	if err == nil && !r.raced {
		r.raced = true
		cp := *inst
		cp.Version++
		r.mockInstanceRepo.put(&cp)
	}
	return inst, err
}

func TestTransition_RetriesAfterConcurrentUpdate(t *testing.T) {
	instances := &racingInstanceRepo{mockInstanceRepo: newMockInstanceRepo()}
	lifecycles := newMockLifecycleRepo()
	monitor := NewMonitorService(newMockMetricRepo(), newMockAlertRepo(), newMockHealthRepo(), lifecycles, nil, time.Hour, testLogger())
	svc := NewLifecycleService(instances, lifecycles, newMockHealthRepo(), monitor, time.Hour, testLogger())

	inst, err := svc.CreateInstance(context.Background(), primary.CreateInstanceRequest{
		Name: "backend-developer-1",
		Role: "backend-developer",
	})
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}

	if err := svc.Transition(context.Background(), inst.ID, models.StateInitializing, models.TriggerSystem); err != nil {
		t.Fatalf("transition under contention failed: %v", err)
	}

	// The instance row and the lifecycle record agree after the retry.
	stored, _ := instances.GetByID(context.Background(), inst.ID)
	if stored.State != models.StateInitializing {
		t.Errorf("instance state = %s, want initializing", stored.State)
	}
	record, _ := lifecycles.GetRecord(context.Background(), inst.ID)
	if record.CurrentState != models.StateInitializing {
		t.Errorf("record state = %s, want initializing", record.CurrentState)
	}

	// Only the successful attempt wrote an event: creation plus one
	// transition.
	events, _ := lifecycles.ListEvents(context.Background(), inst.ID, 10)
	if len(events) != 2 {
		t.Errorf("event log entries = %d, want 2", len(events))
	}
}

func TestTransition_IllegalLeavesStateUnchanged(t *testing.T) {
	svc, instances, lifecycles, _ := newLifecycleFixture()
	id := createActiveInstance(t, svc)

	err := svc.Transition(context.Background(), id, models.StateProvisioning, models.TriggerUser)
	var invalid *models.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	inst, _ := instances.GetByID(context.Background(), id)
	if inst.State != models.StateActive {
		t.Errorf("state = %s, want active (unchanged)", inst.State)
	}

	// The rejected attempt still lands in the event log.
	events, _ := lifecycles.ListEvents(context.Background(), id, 1)
	if len(events) != 1 || events[0].Success {
		t.Errorf("expected a failed event entry, got %+v", events)
	}
}

func TestRecordHealthCheck_FailureMovesToError(t *testing.T) {
	svc, instances, _, _ := newLifecycleFixture()
	id := createActiveInstance(t, svc)

	if err := svc.RecordHealthCheck(context.Background(), id, false, "probe timeout"); err != nil {
		t.Fatalf("RecordHealthCheck failed: %v", err)
	}

	inst, _ := instances.GetByID(context.Background(), id)
	if inst.State != models.StateError {
		t.Errorf("state = %s, want error", inst.State)
	}
}

func TestRecordHealthCheck_SuccessRecoversError(t *testing.T) {
	svc, instances, _, _ := newLifecycleFixture()
	id := createActiveInstance(t, svc)

	if err := svc.RecordHealthCheck(context.Background(), id, false, "probe timeout"); err != nil {
		t.Fatalf("RecordHealthCheck failed: %v", err)
	}
	if err := svc.RecordHealthCheck(context.Background(), id, true, ""); err != nil {
		t.Fatalf("RecordHealthCheck failed: %v", err)
	}

	inst, _ := instances.GetByID(context.Background(), id)
	if inst.State != models.StateActive {
		t.Errorf("state = %s, want active after recovery", inst.State)
	}
}

func TestThreeErrorsForceMaintenance(t *testing.T) {
	svc, instances, lifecycles, alerts := newLifecycleFixture()
	id := createActiveInstance(t, svc)

	for i := 0; i < 3; i++ {
		if err := svc.RecordHealthCheck(context.Background(), id, false, "probe timeout"); err != nil {
			t.Fatalf("RecordHealthCheck %d failed: %v", i, err)
		}
		inst, _ := instances.GetByID(context.Background(), id)
		if i < 2 && inst.State == models.StateMaintenance {
			t.Fatalf("maintenance forced after only %d errors", i+1)
		}
		if i < 2 {
			if err := svc.RecordHealthCheck(context.Background(), id, true, ""); err != nil {
				t.Fatalf("recovery %d failed: %v", i, err)
			}
		}
	}

	inst, _ := instances.GetByID(context.Background(), id)
	if inst.State != models.StateMaintenance {
		t.Fatalf("state = %s, want maintenance after third error", inst.State)
	}
	record, _ := lifecycles.GetRecord(context.Background(), id)
	if !record.ManualClearance {
		t.Error("expected manual clearance hold")
	}
	if len(alerts.byType(models.AlertInstanceUnhealthy)) == 0 {
		t.Error("expected instance_unhealthy alert")
	}
}

func TestEndMaintenance_ManualClearanceBlocksResume(t *testing.T) {
	svc, instances, _, _ := newLifecycleFixture()
	id := createActiveInstance(t, svc)

	// Exhaust the error budget to set the clearance hold.
	for i := 0; i < 3; i++ {
		_ = svc.RecordHealthCheck(context.Background(), id, false, "probe timeout")
		if i < 2 {
			_ = svc.RecordHealthCheck(context.Background(), id, true, "")
		}
	}

	if err := svc.EndMaintenance(context.Background(), id, true); err != nil {
		t.Fatalf("EndMaintenance failed: %v", err)
	}
	inst, _ := instances.GetByID(context.Background(), id)
	if inst.State != models.StateMaintenance {
		t.Errorf("state = %s, want maintenance (clearance pending)", inst.State)
	}

	if err := svc.ClearMaintenance(context.Background(), id); err != nil {
		t.Fatalf("ClearMaintenance failed: %v", err)
	}
	if err := svc.EndMaintenance(context.Background(), id, true); err != nil {
		t.Fatalf("EndMaintenance after clearance failed: %v", err)
	}
	inst, _ = instances.GetByID(context.Background(), id)
	if inst.State != models.StateActive {
		t.Errorf("state = %s, want active after clearance", inst.State)
	}
}

func TestEndMaintenance_NoAutoResumeHolds(t *testing.T) {
	svc, instances, _, _ := newLifecycleFixture()
	id := createActiveInstance(t, svc)

	if err := svc.StartMaintenance(context.Background(), id, models.TriggerUser); err != nil {
		t.Fatalf("StartMaintenance failed: %v", err)
	}
	if err := svc.EndMaintenance(context.Background(), id, false); err != nil {
		t.Fatalf("EndMaintenance failed: %v", err)
	}

	inst, _ := instances.GetByID(context.Background(), id)
	if inst.State != models.StateMaintenance {
		t.Errorf("state = %s, want maintenance without auto-resume", inst.State)
	}
}

func TestDecommission_RemovesInstance(t *testing.T) {
	svc, instances, _, _ := newLifecycleFixture()
	id := createActiveInstance(t, svc)

	if err := svc.Decommission(context.Background(), id); err != nil {
		t.Fatalf("Decommission failed: %v", err)
	}
	if _, err := instances.GetByID(context.Background(), id); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected instance removed, got %v", err)
	}
}

func TestHistory_ReturnsRecordAndEvents(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture()
	id := createActiveInstance(t, svc)

	record, events, err := svc.History(context.Background(), id, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if record.CurrentState != models.StateActive {
		t.Errorf("record state = %s, want active", record.CurrentState)
	}
	if len(events) < 3 {
		t.Errorf("expected at least 3 events (create + 2 transitions), got %d", len(events))
	}
}
