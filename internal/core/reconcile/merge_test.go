package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/coord/internal/models"
)

var testAuthority = NewAuthority(
	map[string]models.EventSource{
		"code_commit/phase": models.SourceAuthorityB,
	},
	map[string]models.EventSource{
		"phase":    models.SourceAuthorityB, // step completion: process engine
		"decision": models.SourceAuthorityA, // AI decision: state graph
	},
	models.SourceAuthorityB,
)

func event(source models.EventSource, seq int64, at time.Time, payload map[string]string) *models.StateEvent {
	return &models.StateEvent{
		ID:          "EVT-test",
		ExecutionID: "EXEC-001",
		Source:      source,
		Type:        "state_change",
		Payload:     payload,
		Sequence:    seq,
		ReceivedAt:  at,
	}
}

func TestApply_AuthoritativeFactSetsMergedValue(t *testing.T) {
	st := NewState("generic")
	now := time.Now()

	res := Apply(&st, testAuthority, event(models.SourceAuthorityB, 1, now, map[string]string{"phase": "review"}), time.Minute)

	assert.True(t, res.PhaseChanged)
	assert.Equal(t, "review", res.NewPhase)
	assert.Equal(t, models.SyncInSync, res.SyncStatus)
	assert.Equal(t, "review", st.Merged["phase"])
}

func TestApply_NonAuthoritativeDoesNotOverwrite(t *testing.T) {
	st := NewState("generic")
	now := time.Now()

	Apply(&st, testAuthority, event(models.SourceAuthorityB, 1, now, map[string]string{"phase": "review"}), time.Hour)
	// Authority A is not designated for phase: recorded, not merged. The two
	// values disagree inside the window, so the state diverges.
	res := Apply(&st, testAuthority, event(models.SourceAuthorityA, 1, now.Add(time.Second), map[string]string{"phase": "development"}), time.Hour)

	assert.Equal(t, "review", st.Merged["phase"])
	assert.Equal(t, models.SyncDiverged, res.SyncStatus)
	require.Len(t, res.NewConflicts, 1)
	assert.Equal(t, "phase", res.NewConflicts[0].Field)
	assert.Equal(t, "review", res.NewConflicts[0].AuthoritativeValue)
	assert.Equal(t, "development", res.NewConflicts[0].ConflictingValue)
}

func TestApply_AgreementIsNotAConflict(t *testing.T) {
	st := NewState("generic")
	now := time.Now()

	Apply(&st, testAuthority, event(models.SourceAuthorityB, 1, now, map[string]string{"phase": "review"}), time.Hour)
	res := Apply(&st, testAuthority, event(models.SourceAuthorityA, 1, now.Add(time.Second), map[string]string{"phase": "review"}), time.Hour)

	assert.Equal(t, models.SyncInSync, res.SyncStatus)
	assert.Empty(t, res.NewConflicts)
}

func TestApply_DisagreementOutsideWindowIsNotAConflict(t *testing.T) {
	st := NewState("generic")
	now := time.Now()

	Apply(&st, testAuthority, event(models.SourceAuthorityB, 1, now, map[string]string{"phase": "review"}), time.Minute)
	res := Apply(&st, testAuthority, event(models.SourceAuthorityA, 1, now.Add(10*time.Minute), map[string]string{"phase": "development"}), time.Minute)

	assert.Equal(t, models.SyncInSync, res.SyncStatus)
	assert.Empty(t, res.NewConflicts)
	assert.Equal(t, "review", st.Merged["phase"])
}

func TestApply_DifferentFieldsFromBothAuthoritiesNoConflict(t *testing.T) {
	st := NewState("generic")
	now := time.Now()

	// Same sequence number in each source's own space, different fields.
	r1 := Apply(&st, testAuthority, event(models.SourceAuthorityA, 1, now, map[string]string{"decision": "review"}), time.Hour)
	r2 := Apply(&st, testAuthority, event(models.SourceAuthorityB, 1, now, map[string]string{"phase": "review_approved"}), time.Hour)

	assert.Equal(t, models.SyncInSync, r1.SyncStatus)
	assert.Equal(t, models.SyncInSync, r2.SyncStatus)
	assert.Equal(t, "review", st.Merged["decision"])
	assert.Equal(t, "review_approved", st.Merged["phase"])
}

func TestApply_DesignatedAuthorityResolvesConflict(t *testing.T) {
	st := NewState("generic")
	now := time.Now()

	Apply(&st, testAuthority, event(models.SourceAuthorityB, 1, now, map[string]string{"phase": "review"}), time.Hour)
	res := Apply(&st, testAuthority, event(models.SourceAuthorityA, 1, now.Add(time.Second), map[string]string{"phase": "development"}), time.Hour)
	require.Equal(t, models.SyncDiverged, res.SyncStatus)

	// A later fact from the designated authority settles the field.
	res = Apply(&st, testAuthority, event(models.SourceAuthorityB, 2, now.Add(2*time.Hour), map[string]string{"phase": "development"}), time.Hour)

	assert.Equal(t, models.SyncInSync, res.SyncStatus)
	assert.Equal(t, "development", st.Merged["phase"])
}

func TestApply_TaskTypeRuleOverridesDefault(t *testing.T) {
	auth := NewAuthority(
		map[string]models.EventSource{"ai_review/verdict": models.SourceAuthorityA},
		map[string]models.EventSource{"verdict": models.SourceAuthorityB},
		models.SourceAuthorityB,
	)
	st := NewState("ai_review")
	now := time.Now()

	Apply(&st, auth, event(models.SourceAuthorityA, 1, now, map[string]string{"verdict": "approved"}), time.Minute)

	assert.Equal(t, "approved", st.Merged["verdict"])
}

func TestApply_InternalEventsNeverConflict(t *testing.T) {
	st := NewState("generic")
	now := time.Now()

	Apply(&st, testAuthority, event(models.SourceAuthorityB, 1, now, map[string]string{"phase": "review"}), time.Hour)
	res := Apply(&st, testAuthority, event(models.SourceInternal, 1, now.Add(time.Second), map[string]string{"phase": "something_else"}), time.Hour)

	assert.Equal(t, models.SyncInSync, res.SyncStatus)
	assert.Equal(t, "review", st.Merged["phase"])
}

func TestAcceptSequence(t *testing.T) {
	assert.True(t, AcceptSequence(0, 1))
	assert.True(t, AcceptSequence(5, 6))
	assert.True(t, AcceptSequence(5, 100))
	assert.False(t, AcceptSequence(5, 5))
	assert.False(t, AcceptSequence(5, 4))
}
