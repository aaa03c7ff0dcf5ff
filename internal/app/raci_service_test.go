package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

func reviewDefinition() *models.RaciDefinition {
	return &models.RaciDefinition{
		WorkflowID:               "feature-delivery",
		Phase:                    "security_review",
		TaskType:                 "ai_review",
		Responsible:              []string{"security-architect-1"},
		Accountable:              []string{"tech-lead-1", "qa-lead-1"},
		Consulted:                []string{"backend-developer-1", "qa-engineer-1"},
		Informed:                 []string{"qa-engineer-1"},
		MinApprovals:             2,
		EscalationTimeoutSeconds: 900,
		EscalationTier:           []string{"tech-lead-1"},
		VetoPower:                []string{"security-architect-1"},
	}
}

func implementationDefinition() *models.RaciDefinition {
	return &models.RaciDefinition{
		WorkflowID:  "feature-delivery",
		Phase:       "implementation",
		TaskType:    "code_commit",
		Responsible: []string{"backend-developer-1", "backend-developer-2"},
		Accountable: []string{"tech-lead-1"},
	}
}

func newRaciFixture(defs ...*models.RaciDefinition) (*RaciServiceImpl, *mockInstanceRepo, *mockApprovalRepo, *mockMessageRepo) {
	instances := newMockInstanceRepo()
	approvals := newMockApprovalRepo()
	messages := newMockMessageRepo()
	monitor := NewMonitorService(newMockMetricRepo(), newMockAlertRepo(), newMockHealthRepo(), newMockLifecycleRepo(), nil, time.Hour, testLogger())
	messenger := NewMessengerService(messages, newMockBus(), monitor, MessengerTuning{
		DefaultAckTimeout:      time.Hour,
		DefaultResponseTimeout: time.Hour,
		MaxRedeliveries:        3,
	}, testLogger())
	svc := NewRaciService(newMockRaciProvider(defs...), approvals, instances, messenger, testLogger())
	return svc, instances, approvals, messages
}

func workerInstance(id string, activeTasks, maxTasks, priority int, idleSince time.Time) *models.PersonaInstance {
	return &models.PersonaInstance{
		ID:                 id,
		Name:               id,
		Role:               "backend-developer",
		State:              models.StateActive,
		ActiveTasks:        activeTasks,
		MaxConcurrentTasks: maxTasks,
		PriorityLevel:      priority,
		LastActivityAt:     idleSince,
		Version:            1,
	}
}

func TestResolve_UnknownDefinitionIsNotFound(t *testing.T) {
	svc, _, _, _ := newRaciFixture()

	_, err := svc.Resolve(context.Background(), "feature-delivery", "deployment", "code_commit")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPickResponsible_PrefersLowestLoad(t *testing.T) {
	svc, instances, _, _ := newRaciFixture(implementationDefinition())
	now := time.Now()
	instances.put(workerInstance("backend-developer-1", 3, 5, 0, now))
	instances.put(workerInstance("backend-developer-2", 1, 5, 0, now))

	_, winner, err := svc.PickResponsible(context.Background(), "feature-delivery", "implementation", "code_commit", nil)
	if err != nil {
		t.Fatalf("PickResponsible failed: %v", err)
	}
	if winner != "backend-developer-2" {
		t.Errorf("winner = %s, want backend-developer-2 (lower load)", winner)
	}
}

func TestPickResponsible_SkipsNonDispatchableStates(t *testing.T) {
	svc, instances, _, _ := newRaciFixture(implementationDefinition())
	now := time.Now()
	idle := workerInstance("backend-developer-1", 0, 5, 0, now)
	idle.State = models.StateMaintenance
	instances.put(idle)
	instances.put(workerInstance("backend-developer-2", 4, 5, 0, now))

	_, winner, err := svc.PickResponsible(context.Background(), "feature-delivery", "implementation", "code_commit", nil)
	if err != nil {
		t.Fatalf("PickResponsible failed: %v", err)
	}
	if winner != "backend-developer-2" {
		t.Errorf("winner = %s, want backend-developer-2 (peer in maintenance)", winner)
	}
}

func TestPickResponsible_ExcludeList(t *testing.T) {
	svc, instances, _, _ := newRaciFixture(implementationDefinition())
	now := time.Now()
	instances.put(workerInstance("backend-developer-1", 0, 5, 0, now))
	instances.put(workerInstance("backend-developer-2", 4, 5, 0, now))

	_, winner, err := svc.PickResponsible(context.Background(), "feature-delivery", "implementation", "code_commit", []string{"backend-developer-1"})
	if err != nil {
		t.Fatalf("PickResponsible failed: %v", err)
	}
	if winner != "backend-developer-2" {
		t.Errorf("winner = %s, want backend-developer-2", winner)
	}
}

func TestPickResponsible_AllSaturatedIsNoResponsibleParty(t *testing.T) {
	svc, instances, _, _ := newRaciFixture(implementationDefinition())
	now := time.Now()
	instances.put(workerInstance("backend-developer-1", 5, 5, 0, now))
	instances.put(workerInstance("backend-developer-2", 5, 5, 0, now))

	_, _, err := svc.PickResponsible(context.Background(), "feature-delivery", "implementation", "code_commit", nil)
	if !errors.Is(err, models.ErrNoResponsibleParty) {
		t.Fatalf("expected ErrNoResponsibleParty, got %v", err)
	}
}

func TestOpenGate_SkipsUngatedPhases(t *testing.T) {
	svc, _, approvals, _ := newRaciFixture(implementationDefinition())

	if err := svc.OpenGate(context.Background(), "EXEC-1", "feature-delivery", "implementation", "code_commit"); err != nil {
		t.Fatalf("OpenGate failed: %v", err)
	}
	if len(approvals.gates) != 0 {
		t.Errorf("expected no gate for min_approvals 0, got %d", len(approvals.gates))
	}
}

func TestApprove_QuorumOpensGate(t *testing.T) {
	svc, _, _, _ := newRaciFixture(reviewDefinition())
	ctx := context.Background()

	if err := svc.OpenGate(ctx, "EXEC-1", "feature-delivery", "security_review", "ai_review"); err != nil {
		t.Fatalf("OpenGate failed: %v", err)
	}

	open, err := svc.Approve(ctx, "EXEC-1", "security_review", "tech-lead-1")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if open {
		t.Error("gate open after 1 of 2 approvals")
	}

	// Repeat approval from the same party counts once.
	open, err = svc.Approve(ctx, "EXEC-1", "security_review", "tech-lead-1")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if open {
		t.Error("gate open after duplicate approval")
	}

	open, err = svc.Approve(ctx, "EXEC-1", "security_review", "qa-lead-1")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if !open {
		t.Error("gate closed after quorum")
	}

	can, err := svc.CanAdvance(ctx, "EXEC-1", "security_review")
	if err != nil {
		t.Fatalf("CanAdvance failed: %v", err)
	}
	if !can {
		t.Error("CanAdvance = false after quorum")
	}
}

func TestApprove_RejectsOutsiders(t *testing.T) {
	svc, _, _, _ := newRaciFixture(reviewDefinition())
	ctx := context.Background()
	_ = svc.OpenGate(ctx, "EXEC-1", "feature-delivery", "security_review", "ai_review")

	if _, err := svc.Approve(ctx, "EXEC-1", "security_review", "intern-1"); err == nil {
		t.Fatal("expected error for non-approver, got nil")
	}

	// Consulted parties advise but cannot clear the gate.
	if _, err := svc.Approve(ctx, "EXEC-1", "security_review", "backend-developer-1"); err == nil {
		t.Fatal("expected error for consulted approver, got nil")
	}
}

func TestVeto_HaltsAndEscalates(t *testing.T) {
	svc, _, _, messages := newRaciFixture(reviewDefinition())
	ctx := context.Background()
	_ = svc.OpenGate(ctx, "EXEC-1", "feature-delivery", "security_review", "ai_review")

	if err := svc.Veto(ctx, "EXEC-1", "security_review", "security-architect-1"); err != nil {
		t.Fatalf("Veto failed: %v", err)
	}

	can, err := svc.CanAdvance(ctx, "EXEC-1", "security_review")
	if err != nil {
		t.Fatalf("CanAdvance failed: %v", err)
	}
	if can {
		t.Error("CanAdvance = true after veto")
	}

	// Approvals after the veto cannot reopen the gate.
	if _, err := svc.Approve(ctx, "EXEC-1", "security_review", "backend-developer-1"); err == nil {
		t.Error("expected error approving a vetoed phase")
	}

	escalations, _ := messages.List(ctx, secondary.MessageFilters{Recipient: "tech-lead-1"})
	if len(escalations) != 1 || escalations[0].Type != models.MessageEscalation {
		t.Errorf("expected escalation to accountable party, got %+v", escalations)
	}
}

func TestVeto_RequiresVetoPower(t *testing.T) {
	svc, _, _, _ := newRaciFixture(reviewDefinition())
	ctx := context.Background()
	_ = svc.OpenGate(ctx, "EXEC-1", "feature-delivery", "security_review", "ai_review")

	if err := svc.Veto(ctx, "EXEC-1", "security_review", "backend-developer-1"); err == nil {
		t.Fatal("expected error for non-veto-holder, got nil")
	}
}

func TestSweepEscalations_FiresOncePerGate(t *testing.T) {
	svc, _, approvals, messages := newRaciFixture(reviewDefinition())
	ctx := context.Background()

	assigned := time.Now().Add(-time.Hour)
	_ = approvals.CreateGate(ctx, &secondary.ApprovalGate{
		ExecutionID:       "EXEC-1",
		Phase:             "security_review",
		WorkflowID:        "feature-delivery",
		TaskType:          "ai_review",
		MinApprovals:      2,
		EscalationTimeout: 15 * time.Minute,
		AssignedAt:        assigned,
	})

	n, err := svc.SweepEscalations(ctx)
	if err != nil {
		t.Fatalf("SweepEscalations failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("escalated = %d, want 1", n)
	}

	tier, _ := messages.List(ctx, secondary.MessageFilters{Recipient: "tech-lead-1"})
	if len(tier) != 1 || tier[0].Priority != models.PriorityCritical {
		t.Errorf("expected critical escalation to tier, got %+v", tier)
	}

	// A second sweep is a no-op: the gate is already escalated.
	n, err = svc.SweepEscalations(ctx)
	if err != nil {
		t.Fatalf("SweepEscalations failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep escalated = %d, want 0", n)
	}
}
