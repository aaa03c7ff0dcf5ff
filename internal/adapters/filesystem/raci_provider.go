// Package filesystem contains file-backed adapter implementations.
package filesystem

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

// matrixFile is the on-disk shape of the responsibility matrix.
type matrixFile struct {
	Definitions []matrixEntry `yaml:"definitions"`
}

type matrixEntry struct {
	WorkflowID               string   `yaml:"workflow_id"`
	Phase                    string   `yaml:"phase"`
	TaskType                 string   `yaml:"task_type"`
	Responsible              []string `yaml:"responsible"`
	Accountable              []string `yaml:"accountable"`
	Consulted                []string `yaml:"consulted,omitempty"`
	Informed                 []string `yaml:"informed,omitempty"`
	MinApprovals             int      `yaml:"min_approvals,omitempty"`
	EscalationTimeoutSeconds int      `yaml:"escalation_timeout_seconds,omitempty"`
	EscalationTier           []string `yaml:"escalation_tier,omitempty"`
	VetoPower                []string `yaml:"veto_power,omitempty"`
}

// RaciProvider implements secondary.RaciDefinitionProvider from a YAML file.
// Definitions are loaded once at construction and never reloaded; an
// execution always resolves against the matrix it started with.
type RaciProvider struct {
	defs map[string]*models.RaciDefinition // key: workflowID/phase/taskType
}

// NewRaciProvider loads a responsibility matrix from a YAML file. An empty
// path yields an empty provider where every lookup misses.
func NewRaciProvider(path string) (*RaciProvider, error) {
	p := &RaciProvider{defs: map[string]*models.RaciDefinition{}}
	if path == "" {
		return p, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raci matrix: %w", err)
	}
	defer f.Close()

	var file matrixFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse raci matrix %s: %w", path, err)
	}

	for i, e := range file.Definitions {
		if e.WorkflowID == "" || e.Phase == "" || e.TaskType == "" {
			return nil, fmt.Errorf("raci definition %d: workflow_id, phase and task_type are required", i)
		}
		if len(e.Accountable) == 0 {
			return nil, fmt.Errorf("raci definition %s/%s/%s: at least one accountable party required",
				e.WorkflowID, e.Phase, e.TaskType)
		}
		// Approvals come from accountable parties, so the quorum must be
		// reachable from that set alone.
		if e.MinApprovals > len(e.Accountable) {
			return nil, fmt.Errorf("raci definition %s/%s/%s: min_approvals %d exceeds accountable parties %d",
				e.WorkflowID, e.Phase, e.TaskType, e.MinApprovals, len(e.Accountable))
		}
		key := defKey(e.WorkflowID, e.Phase, e.TaskType)
		if _, dup := p.defs[key]; dup {
			return nil, fmt.Errorf("duplicate raci definition %s", key)
		}
		p.defs[key] = &models.RaciDefinition{
			WorkflowID:               e.WorkflowID,
			Phase:                    e.Phase,
			TaskType:                 e.TaskType,
			Responsible:              e.Responsible,
			Accountable:              e.Accountable,
			Consulted:                e.Consulted,
			Informed:                 e.Informed,
			MinApprovals:             e.MinApprovals,
			EscalationTimeoutSeconds: e.EscalationTimeoutSeconds,
			EscalationTier:           e.EscalationTier,
			VetoPower:                e.VetoPower,
		}
	}
	return p, nil
}

// Get resolves a definition by exact match, or models.ErrNotFound.
func (p *RaciProvider) Get(ctx context.Context, workflowID, phase, taskType string) (*models.RaciDefinition, error) {
	if def, ok := p.defs[defKey(workflowID, phase, taskType)]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("raci definition %s: %w", defKey(workflowID, phase, taskType), models.ErrNotFound)
}

// Len returns the number of loaded definitions.
func (p *RaciProvider) Len() int { return len(p.defs) }

func defKey(workflowID, phase, taskType string) string {
	return workflowID + "/" + phase + "/" + taskType
}

// Ensure RaciProvider implements the interface.
var _ secondary.RaciDefinitionProvider = (*RaciProvider)(nil)
