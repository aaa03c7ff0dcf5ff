// Package reconcile contains the pure merge logic for dual-authority state.
// This is part of the Functional Core - no I/O, only pure functions.
package reconcile

import (
	"time"

	"github.com/example/coord/internal/models"
)

// PhaseField is the payload field that drives an execution's current phase.
const PhaseField = "phase"

// FieldFact is one observed value for a field from one source.
type FieldFact struct {
	Value      string
	Sequence   int64
	ObservedAt time.Time
}

// Snapshot holds the latest fact per field for one source.
type Snapshot map[string]FieldFact

// Authority maps (taskType, field) to the designated source for that field.
// Lookup falls back from the task-type rule to the default rule. The table is
// configuration: overlapping fields are a config decision, never inferred.
type Authority struct {
	rules    map[string]models.EventSource // key: taskType + "/" + field
	defaults map[string]models.EventSource // key: field
	fallback models.EventSource
}

// NewAuthority builds an authority table. rules keys are "taskType/field",
// defaults keys are bare field names, fallback applies when neither matches.
func NewAuthority(rules, defaults map[string]models.EventSource, fallback models.EventSource) Authority {
	if rules == nil {
		rules = map[string]models.EventSource{}
	}
	if defaults == nil {
		defaults = map[string]models.EventSource{}
	}
	return Authority{rules: rules, defaults: defaults, fallback: fallback}
}

// SourceFor returns the designated source for a field under a task type.
func (a Authority) SourceFor(taskType, field string) models.EventSource {
	if s, ok := a.rules[taskType+"/"+field]; ok {
		return s
	}
	if s, ok := a.defaults[field]; ok {
		return s
	}
	return a.fallback
}

// Conflict records a disagreement between authoritative and non-authoritative
// facts for one field inside the reconciliation window.
type Conflict struct {
	Field              string
	AuthoritativeValue string
	ConflictingValue   string
	ConflictingSource  models.EventSource
}

// State is the merge state carried per execution. It is a value manipulated
// only by Apply; callers persist and rehydrate it around each event.
type State struct {
	TaskType  string
	Merged    map[string]string
	Snapshots map[models.EventSource]Snapshot
	Conflicts map[string]Conflict // keyed by field, outstanding only
}

// NewState returns an empty merge state for a task type.
func NewState(taskType string) State {
	return State{
		TaskType:  taskType,
		Merged:    map[string]string{},
		Snapshots: map[models.EventSource]Snapshot{},
		Conflicts: map[string]Conflict{},
	}
}

// Result reports the effect of applying one event.
type Result struct {
	PhaseChanged bool
	NewPhase     string
	NewConflicts []Conflict
	SyncStatus   models.SyncStatus
}

// otherSource returns the peer authority for conflict detection. Internal
// events have no peer and never conflict.
func otherSource(s models.EventSource) (models.EventSource, bool) {
	switch s {
	case models.SourceAuthorityA:
		return models.SourceAuthorityB, true
	case models.SourceAuthorityB:
		return models.SourceAuthorityA, true
	default:
		return "", false
	}
}

// Apply folds one event into the merge state. Non-authoritative facts are
// recorded in the source snapshot but never overwrite the merged value, so a
// stale writer cannot regress shared state. A disagreement between the two
// authorities on the same field within window yields a Conflict; the merged
// value stays with the designated authority and resolution is deferred to it.
func Apply(st *State, auth Authority, ev *models.StateEvent, window time.Duration) Result {
	res := Result{}
	snap := st.Snapshots[ev.Source]
	if snap == nil {
		snap = Snapshot{}
		st.Snapshots[ev.Source] = snap
	}

	prevPhase := st.Merged[PhaseField]

	for field, value := range ev.Payload {
		snap[field] = FieldFact{Value: value, Sequence: ev.Sequence, ObservedAt: ev.ReceivedAt}

		designated := auth.SourceFor(st.TaskType, field)
		if ev.Source == designated {
			st.Merged[field] = value
			// A fresh authoritative fact settles any outstanding conflict
			// on this field: resolution by the designated authority.
			delete(st.Conflicts, field)
			if peer, ok := otherSource(ev.Source); ok {
				if fact, ok := st.Snapshots[peer][field]; ok && fact.Value != value && within(fact.ObservedAt, ev.ReceivedAt, window) {
					c := Conflict{Field: field, AuthoritativeValue: value, ConflictingValue: fact.Value, ConflictingSource: peer}
					st.Conflicts[field] = c
					res.NewConflicts = append(res.NewConflicts, c)
				}
			}
			continue
		}

		// Non-authoritative update: recorded only. If it disagrees with the
		// designated authority's recent fact, that is a conflict.
		if peer, ok := otherSource(designated); ok && ev.Source != peer {
			continue
		}
		if fact, ok := st.Snapshots[designated][field]; ok {
			if fact.Value != value && within(fact.ObservedAt, ev.ReceivedAt, window) {
				c := Conflict{Field: field, AuthoritativeValue: fact.Value, ConflictingValue: value, ConflictingSource: ev.Source}
				if _, seen := st.Conflicts[field]; !seen {
					st.Conflicts[field] = c
					res.NewConflicts = append(res.NewConflicts, c)
				}
			}
		} else if _, merged := st.Merged[field]; !merged {
			// No authoritative fact yet: seed the merged view so early
			// non-authoritative facts are visible, without authority.
			st.Merged[field] = value
		}
	}

	if phase := st.Merged[PhaseField]; phase != prevPhase {
		res.PhaseChanged = true
		res.NewPhase = phase
	}

	if len(st.Conflicts) > 0 {
		res.SyncStatus = models.SyncDiverged
	} else {
		res.SyncStatus = models.SyncInSync
	}
	return res
}

// AcceptSequence reports whether an incoming per-source sequence number should
// be applied. Sequences are strictly increasing; anything else is a duplicate
// or stale delivery and must not be re-applied.
func AcceptSequence(last, incoming int64) bool {
	return incoming > last
}

func within(a, b time.Time, window time.Duration) bool {
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return d <= window
}
