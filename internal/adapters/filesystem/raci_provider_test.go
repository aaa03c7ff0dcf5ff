package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/coord/internal/models"
)

const sampleMatrix = `definitions:
  - workflow_id: feature-delivery
    phase: implementation
    task_type: code_commit
    responsible: [backend-developer-1, backend-developer-2]
    accountable: [tech-lead-1]
    informed: [qa-engineer-1]
  - workflow_id: feature-delivery
    phase: security_review
    task_type: ai_review
    responsible: [security-architect-1]
    accountable: [tech-lead-1, security-architect-1]
    consulted: [backend-developer-1, qa-engineer-1]
    min_approvals: 2
    escalation_timeout_seconds: 900
    escalation_tier: [tech-lead-1]
    veto_power: [security-architect-1]
`

func writeMatrix(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raci.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRaciProvider_LoadAndGet(t *testing.T) {
	p, err := NewRaciProvider(writeMatrix(t, sampleMatrix))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())

	def, err := p.Get(context.Background(), "feature-delivery", "security_review", "ai_review")
	require.NoError(t, err)
	assert.Equal(t, []string{"security-architect-1"}, def.Responsible)
	assert.Equal(t, []string{"tech-lead-1", "security-architect-1"}, def.Accountable)
	assert.Equal(t, 2, def.MinApprovals)
	assert.Equal(t, []string{"security-architect-1"}, def.VetoPower)
}

func TestRaciProvider_MissIsNotFound(t *testing.T) {
	p, err := NewRaciProvider(writeMatrix(t, sampleMatrix))
	require.NoError(t, err)

	_, err = p.Get(context.Background(), "feature-delivery", "deployment", "code_commit")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestRaciProvider_EmptyPath(t *testing.T) {
	p, err := NewRaciProvider("")
	require.NoError(t, err)
	assert.Zero(t, p.Len())

	_, err = p.Get(context.Background(), "a", "b", "c")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestRaciProvider_RequiresAccountable(t *testing.T) {
	content := `definitions:
  - workflow_id: w
    phase: p
    task_type: t
    responsible: [a]
`
	_, err := NewRaciProvider(writeMatrix(t, content))
	assert.Error(t, err)
}

// Consulted parties do not count toward the quorum: min_approvals must be
// satisfiable by accountable parties alone.
func TestRaciProvider_RejectsUnreachableQuorum(t *testing.T) {
	content := `definitions:
  - workflow_id: w
    phase: p
    task_type: t
    responsible: [a]
    accountable: [x]
    consulted: [b, c]
    min_approvals: 2
`
	_, err := NewRaciProvider(writeMatrix(t, content))
	assert.Error(t, err)
}

func TestRaciProvider_RejectsDuplicateDefinition(t *testing.T) {
	content := `definitions:
  - workflow_id: w
    phase: p
    task_type: t
    responsible: [a]
    accountable: [x]
  - workflow_id: w
    phase: p
    task_type: t
    responsible: [b]
    accountable: [y]
`
	_, err := NewRaciProvider(writeMatrix(t, content))
	assert.Error(t, err)
}
