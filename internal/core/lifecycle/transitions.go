// Package lifecycle contains the pure state machine for persona instances.
// Guards evaluate transitions without side effects; persistence is the
// caller's concern.
package lifecycle

import (
	"time"

	"github.com/example/coord/internal/models"
)

// ForcedMaintenanceThreshold is the error count inside the rolling window
// that forces maintenance regardless of auto-resume.
const ForcedMaintenanceThreshold = 3

// allowed is the base transition table. Maintenance and terminating entries
// are handled in CanTransition because they apply from broad state sets.
var allowed = map[models.LifecycleState][]models.LifecycleState{
	models.StateProvisioning: {models.StateInitializing},
	models.StateInitializing: {models.StateActive},
	models.StateActive:       {models.StateBusy, models.StatePaused, models.StateError},
	models.StateBusy:         {models.StateActive, models.StatePaused, models.StateError},
	models.StatePaused:       {models.StateActive},
	models.StateError:        {models.StateActive},
	models.StateMaintenance:  {models.StateActive},
	models.StateTerminating:  {models.StateTerminated},
}

// CanTransition reports whether from -> to is in the allowed table.
// Any non-terminal state may enter maintenance; any non-terminal state may
// begin terminating. Nothing leaves terminated.
func CanTransition(from, to models.LifecycleState) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case models.StateMaintenance:
		return from != models.StateMaintenance
	case models.StateTerminating:
		return from != models.StateTerminating
	}
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns a typed error on an illegal
// request. State is never silently coerced.
func Transition(instanceID string, from, to models.LifecycleState) error {
	if !CanTransition(from, to) {
		return &models.InvalidTransitionError{InstanceID: instanceID, From: from, To: to}
	}
	return nil
}

// ShouldForceMaintenance reports whether an instance entering error state has
// exhausted its error budget: errorCount errors with the last one inside the
// rolling window forces maintenance requiring manual clearance. This prevents
// recovery thrash.
func ShouldForceMaintenance(errorCount int, lastErrorAt *time.Time, now time.Time, window time.Duration) bool {
	if errorCount < ForcedMaintenanceThreshold {
		return false
	}
	if lastErrorAt == nil {
		return false
	}
	return now.Sub(*lastErrorAt) <= window
}

// ResumeTarget returns the state an instance leaves maintenance into. Manual
// clearance pins it in maintenance until an operator clears it.
func ResumeTarget(autoResume, manualClearance bool) (models.LifecycleState, bool) {
	if manualClearance || !autoResume {
		return models.StateMaintenance, false
	}
	return models.StateActive, true
}
