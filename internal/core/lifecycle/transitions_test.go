package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/coord/internal/models"
)

func TestCanTransition_HappyPath(t *testing.T) {
	steps := []struct {
		from, to models.LifecycleState
	}{
		{models.StateProvisioning, models.StateInitializing},
		{models.StateInitializing, models.StateActive},
		{models.StateActive, models.StateBusy},
		{models.StateBusy, models.StateActive},
		{models.StateActive, models.StateTerminating},
		{models.StateTerminating, models.StateTerminated},
	}
	for _, s := range steps {
		assert.True(t, CanTransition(s.from, s.to), "%s -> %s", s.from, s.to)
	}
}

func TestCanTransition_SideTransitions(t *testing.T) {
	assert.True(t, CanTransition(models.StateActive, models.StatePaused))
	assert.True(t, CanTransition(models.StateBusy, models.StatePaused))
	assert.True(t, CanTransition(models.StateActive, models.StateError))
	assert.True(t, CanTransition(models.StateBusy, models.StateError))
	assert.True(t, CanTransition(models.StateError, models.StateActive))
	assert.True(t, CanTransition(models.StatePaused, models.StateActive))
	assert.True(t, CanTransition(models.StateMaintenance, models.StateActive))
}

func TestCanTransition_MaintenanceFromAnyNonTerminal(t *testing.T) {
	for _, from := range []models.LifecycleState{
		models.StateProvisioning, models.StateInitializing, models.StateActive,
		models.StateBusy, models.StatePaused, models.StateError, models.StateTerminating,
	} {
		assert.True(t, CanTransition(from, models.StateMaintenance), "%s -> maintenance", from)
	}
	assert.False(t, CanTransition(models.StateTerminated, models.StateMaintenance))
}

func TestCanTransition_Illegal(t *testing.T) {
	assert.False(t, CanTransition(models.StateProvisioning, models.StateActive))
	assert.False(t, CanTransition(models.StateProvisioning, models.StateBusy))
	assert.False(t, CanTransition(models.StateError, models.StateBusy))
	assert.False(t, CanTransition(models.StateTerminated, models.StateActive))
	assert.False(t, CanTransition(models.StateTerminated, models.StateTerminating))
	assert.False(t, CanTransition(models.StateActive, models.StateProvisioning))
}

func TestTransition_TypedError(t *testing.T) {
	err := Transition("INST-001", models.StateProvisioning, models.StateBusy)
	require.Error(t, err)

	var invalid *models.InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "INST-001", invalid.InstanceID)
	assert.Equal(t, models.StateProvisioning, invalid.From)
	assert.Equal(t, models.StateBusy, invalid.To)

	assert.NoError(t, Transition("INST-001", models.StateActive, models.StateBusy))
}

func TestShouldForceMaintenance(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Minute)
	stale := now.Add(-2 * time.Hour)

	assert.True(t, ShouldForceMaintenance(3, &recent, now, time.Hour))
	assert.True(t, ShouldForceMaintenance(5, &recent, now, time.Hour))
	assert.False(t, ShouldForceMaintenance(2, &recent, now, time.Hour))
	assert.False(t, ShouldForceMaintenance(3, &stale, now, time.Hour))
	assert.False(t, ShouldForceMaintenance(3, nil, now, time.Hour))
}

func TestResumeTarget(t *testing.T) {
	state, resumed := ResumeTarget(true, false)
	assert.Equal(t, models.StateActive, state)
	assert.True(t, resumed)

	state, resumed = ResumeTarget(false, false)
	assert.Equal(t, models.StateMaintenance, state)
	assert.False(t, resumed)

	// Manual clearance overrides auto-resume.
	state, resumed = ResumeTarget(true, true)
	assert.Equal(t, models.StateMaintenance, state)
	assert.False(t, resumed)
}
