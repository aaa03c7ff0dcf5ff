package models

// RaciDefinition maps one (workflow, phase, taskType) to its responsibility
// matrix. Definitions are configuration: loaded once, immutable for the
// lifetime of any execution that resolved against them.
type RaciDefinition struct {
	WorkflowID               string
	Phase                    string
	TaskType                 string
	Responsible              []string
	Accountable              []string
	Consulted                []string
	Informed                 []string
	MinApprovals             int
	EscalationTimeoutSeconds int
	EscalationTier           []string
	VetoPower                []string
}
