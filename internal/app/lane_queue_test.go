package app

import (
	"testing"
	"time"

	"github.com/example/coord/internal/models"
)

func queuedMsg(priority models.MessagePriority, id string) *models.Message {
	return &models.Message{ID: id, Priority: priority}
}

func TestLaneQueue_StrictPriorityFIFO(t *testing.T) {
	q := newLaneQueue()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	q.Push(queuedMsg(models.PriorityLow, "MSG-1"), now)
	q.Push(queuedMsg(models.PriorityMedium, "MSG-2"), now)
	q.Push(queuedMsg(models.PriorityCritical, "MSG-3"), now)
	q.Push(queuedMsg(models.PriorityMedium, "MSG-4"), now)
	q.Push(queuedMsg(models.PriorityHigh, "MSG-5"), now)

	want := []string{"MSG-3", "MSG-5", "MSG-2", "MSG-4", "MSG-1"}
	for _, id := range want {
		qm, ok := q.Pop()
		if !ok {
			t.Fatalf("queue empty, want %s", id)
		}
		if qm.msg.ID != id {
			t.Fatalf("pop = %s, want %s", qm.msg.ID, id)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("queue not empty after draining")
	}
}

func TestLaneQueue_RequeueKeepsHeadPosition(t *testing.T) {
	q := newLaneQueue()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	q.Push(queuedMsg(models.PriorityMedium, "MSG-1"), now)
	q.Push(queuedMsg(models.PriorityMedium, "MSG-2"), now)

	qm, _ := q.Pop()
	q.Requeue(qm)

	qm, _ = q.Pop()
	if qm.msg.ID != "MSG-1" {
		t.Errorf("head after requeue = %s, want MSG-1", qm.msg.ID)
	}
}

func TestLaneQueue_AgingClimbsOneLanePerSweep(t *testing.T) {
	q := newLaneQueue()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	q.Push(queuedMsg(models.PriorityLow, "MSG-1"), base)
	q.Push(queuedMsg(models.PriorityCritical, "MSG-2"), base.Add(90*time.Second))

	if n := q.PromoteAged(base.Add(time.Minute), 2*time.Minute); n != 0 {
		t.Fatalf("promoted = %d before the threshold, want 0", n)
	}
	if n := q.PromoteAged(base.Add(3*time.Minute), 2*time.Minute); n != 1 {
		t.Fatalf("promoted = %d, want 1 (the fresh message stays put)", n)
	}

	if qm, ok := q.Pop(); !ok || qm.msg.ID != "MSG-2" {
		t.Fatal("critical lane no longer drains first")
	}
	qm, ok := q.Pop()
	if !ok || qm.msg.ID != "MSG-1" || qm.msg.Priority != models.PriorityMedium {
		t.Fatalf("after one sweep the straggler = %+v, want MSG-1 in medium", qm.msg)
	}
}
