package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================================================
// Mock Implementations
// ============================================================================

// mockExecutionRepo implements secondary.ExecutionRepository for testing.
type mockExecutionRepo struct {
	mu         sync.Mutex
	executions map[string]*models.Execution
	states     map[string][]byte
	updateErr  error
}

func newMockExecutionRepo() *mockExecutionRepo {
	return &mockExecutionRepo{
		executions: map[string]*models.Execution{},
		states:     map[string][]byte{},
	}
}

func (m *mockExecutionRepo) Create(ctx context.Context, exec *models.Execution, mergeState []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *exec
	m.executions[exec.ID] = &cp
	m.states[exec.ID] = mergeState
	return nil
}

func (m *mockExecutionRepo) GetByID(ctx context.Context, id string) (*models.Execution, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exec, ok := m.executions[id]; ok {
		cp := *exec
		return &cp, m.states[id], nil
	}
	return nil, nil, fmt.Errorf("execution %s: %w", id, models.ErrNotFound)
}

func (m *mockExecutionRepo) GetActiveByWorkItem(ctx context.Context, workItemID string) (*models.Execution, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, exec := range m.executions {
		if exec.WorkItemID == workItemID && exec.Status == models.ExecutionRunning {
			cp := *exec
			return &cp, m.states[id], nil
		}
	}
	return nil, nil, fmt.Errorf("active execution for %s: %w", workItemID, models.ErrNotFound)
}

func (m *mockExecutionRepo) Update(ctx context.Context, exec *models.Execution, mergeState []byte) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *exec
	m.executions[exec.ID] = &cp
	m.states[exec.ID] = mergeState
	return nil
}

func (m *mockExecutionRepo) List(ctx context.Context, filters secondary.ExecutionFilters) ([]*models.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Execution
	for _, exec := range m.executions {
		if filters.Status != "" && exec.Status != filters.Status {
			continue
		}
		if filters.SyncStatus != "" && exec.SyncStatus != filters.SyncStatus {
			continue
		}
		cp := *exec
		out = append(out, &cp)
	}
	return out, nil
}

// mockEventRepo implements secondary.StateEventRepository for testing.
type mockEventRepo struct {
	mu     sync.Mutex
	events []*models.StateEvent
}

func newMockEventRepo() *mockEventRepo { return &mockEventRepo{} }

func (m *mockEventRepo) Append(ctx context.Context, event *models.StateEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventRepo) LastSequence(ctx context.Context, executionID string, source models.EventSource) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last int64
	for _, ev := range m.events {
		if ev.ExecutionID == executionID && ev.Source == source && ev.Sequence > last {
			last = ev.Sequence
		}
	}
	return last, nil
}

func (m *mockEventRepo) ListByExecution(ctx context.Context, executionID string) ([]*models.StateEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.StateEvent
	for _, ev := range m.events {
		if ev.ExecutionID == executionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// mockInstanceRepo implements secondary.InstanceRepository for testing.
type mockInstanceRepo struct {
	mu        sync.Mutex
	instances map[string]*models.PersonaInstance
	spendErrs []error // popped per UpdateSpend call, nil allows
}

func newMockInstanceRepo() *mockInstanceRepo {
	return &mockInstanceRepo{instances: map[string]*models.PersonaInstance{}}
}

func (m *mockInstanceRepo) put(inst *models.PersonaInstance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inst
	m.instances[inst.ID] = &cp
}

func (m *mockInstanceRepo) Create(ctx context.Context, inst *models.PersonaInstance) error {
	m.put(inst)
	return nil
}

func (m *mockInstanceRepo) GetByID(ctx context.Context, id string) (*models.PersonaInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[id]; ok {
		cp := *inst
		return &cp, nil
	}
	return nil, fmt.Errorf("instance %s: %w", id, models.ErrNotFound)
}

func (m *mockInstanceRepo) List(ctx context.Context, filters secondary.InstanceFilters) ([]*models.PersonaInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PersonaInstance
	for _, inst := range m.instances {
		if filters.Role != "" && inst.Role != filters.Role {
			continue
		}
		if len(filters.States) > 0 {
			match := false
			for _, s := range filters.States {
				if inst.State == s {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		cp := *inst
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockInstanceRepo) UpdateSpend(ctx context.Context, id string, daily, monthly float64, dailyStart, monthlyStart time.Time, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.spendErrs) > 0 {
		err := m.spendErrs[0]
		m.spendErrs = m.spendErrs[1:]
		if err != nil {
			return err
		}
	}
	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("instance %s: %w", id, models.ErrNotFound)
	}
	if inst.Version != version {
		return fmt.Errorf("instance %s spend update: %w", id, models.ErrVersionConflict)
	}
	inst.CurrentSpendDaily = daily
	inst.CurrentSpendMonthly = monthly
	inst.DailyPeriodStart = &dailyStart
	inst.MonthlyPeriodStart = &monthlyStart
	inst.Version++
	return nil
}

func (m *mockInstanceRepo) UpdateState(ctx context.Context, id string, state models.LifecycleState, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("instance %s: %w", id, models.ErrNotFound)
	}
	if inst.Version != version {
		return fmt.Errorf("instance %s state update: %w", id, models.ErrVersionConflict)
	}
	inst.State = state
	inst.Version++
	return nil
}

func (m *mockInstanceRepo) AdjustActiveTasks(ctx context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("instance %s: %w", id, models.ErrNotFound)
	}
	inst.ActiveTasks += delta
	if inst.ActiveTasks < 0 {
		inst.ActiveTasks = 0
	}
	return nil
}

func (m *mockInstanceRepo) Decommission(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, id)
	return nil
}

// mockLifecycleRepo implements secondary.LifecycleRepository for testing.
type mockLifecycleRepo struct {
	mu      sync.Mutex
	records map[string]*models.LifecycleRecord
	events  []*models.LifecycleEvent
}

func newMockLifecycleRepo() *mockLifecycleRepo {
	return &mockLifecycleRepo{records: map[string]*models.LifecycleRecord{}}
}

func (m *mockLifecycleRepo) GetRecord(ctx context.Context, instanceID string) (*models.LifecycleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[instanceID]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, fmt.Errorf("lifecycle record %s: %w", instanceID, models.ErrNotFound)
}

func (m *mockLifecycleRepo) RecordTransition(ctx context.Context, record *models.LifecycleRecord, event *models.LifecycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	cp.Version++
	m.records[record.InstanceID] = &cp
	m.events = append(m.events, event)
	return nil
}

func (m *mockLifecycleRepo) AppendEvent(ctx context.Context, event *models.LifecycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockLifecycleRepo) ListEvents(ctx context.Context, instanceID string, limit int) ([]*models.LifecycleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LifecycleEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].InstanceID == instanceID {
			out = append(out, m.events[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockLifecycleRepo) CountRecentErrors(ctx context.Context, instanceID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, ev := range m.events {
		if ev.InstanceID == instanceID && ev.ToState == models.StateError && ev.Success && !ev.OccurredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// mockMessageRepo implements secondary.MessageRepository for testing.
type mockMessageRepo struct {
	mu       sync.Mutex
	messages map[string]*models.Message
	attempts []string
	statuses map[string][]models.MessageStatus // per message, in Update order
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{
		messages: map[string]*models.Message{},
		statuses: map[string][]models.MessageStatus{},
	}
}

func (m *mockMessageRepo) statusHistory(id string) []models.MessageStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MessageStatus(nil), m.statuses[id]...)
}

func (m *mockMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *mockMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.messages[id]; ok {
		cp := *msg
		return &cp, nil
	}
	return nil, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
}

func (m *mockMessageRepo) Update(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages[msg.ID] = &cp
	m.statuses[msg.ID] = append(m.statuses[msg.ID], msg.Status)
	return nil
}

func (m *mockMessageRepo) List(ctx context.Context, filters secondary.MessageFilters) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Message
	for _, msg := range m.messages {
		if filters.ExecutionID != "" && msg.ExecutionID != filters.ExecutionID {
			continue
		}
		if filters.Recipient != "" && msg.Recipient != filters.Recipient {
			continue
		}
		if filters.Status != "" && msg.Status != filters.Status {
			continue
		}
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockMessageRepo) RecordAttempt(ctx context.Context, messageID string, attempt int, at time.Time, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, fmt.Sprintf("%s/%d/%s", messageID, attempt, outcome))
	return nil
}

// mockBus implements secondary.MessageBus for testing.
type mockBus struct {
	mu        sync.Mutex
	published []string // topic entries in publish order
	failErr   error    // returned by Publish while set
}

func newMockBus() *mockBus { return &mockBus{} }

func (m *mockBus) setFailErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *mockBus) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.published = append(m.published, topic)
	return nil
}

func (m *mockBus) Subscribe(topic string, handler func(topic string, payload []byte)) func() {
	return func() {}
}

func (m *mockBus) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.published...)
}

// mockRaciProvider implements secondary.RaciDefinitionProvider for testing.
type mockRaciProvider struct {
	defs map[string]*models.RaciDefinition
}

func newMockRaciProvider(defs ...*models.RaciDefinition) *mockRaciProvider {
	p := &mockRaciProvider{defs: map[string]*models.RaciDefinition{}}
	for _, d := range defs {
		p.defs[d.WorkflowID+"/"+d.Phase+"/"+d.TaskType] = d
	}
	return p
}

func (p *mockRaciProvider) Get(ctx context.Context, workflowID, phase, taskType string) (*models.RaciDefinition, error) {
	if def, ok := p.defs[workflowID+"/"+phase+"/"+taskType]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("raci definition %s/%s/%s: %w", workflowID, phase, taskType, models.ErrNotFound)
}

// mockApprovalRepo implements secondary.ApprovalRepository for testing.
type mockApprovalRepo struct {
	mu        sync.Mutex
	gates     map[string]*secondary.ApprovalGate
	approvals map[string][]string
}

func newMockApprovalRepo() *mockApprovalRepo {
	return &mockApprovalRepo{
		gates:     map[string]*secondary.ApprovalGate{},
		approvals: map[string][]string{},
	}
}

func gateKey(executionID, phase string) string { return executionID + "/" + phase }

func (m *mockApprovalRepo) CreateGate(ctx context.Context, gate *secondary.ApprovalGate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *gate
	m.gates[gateKey(gate.ExecutionID, gate.Phase)] = &cp
	return nil
}

func (m *mockApprovalRepo) GetGate(ctx context.Context, executionID, phase string) (*secondary.ApprovalGate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gate, ok := m.gates[gateKey(executionID, phase)]; ok {
		cp := *gate
		return &cp, nil
	}
	return nil, fmt.Errorf("approval gate %s/%s: %w", executionID, phase, models.ErrNotFound)
}

func (m *mockApprovalRepo) RecordApproval(ctx context.Context, executionID, phase, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := gateKey(executionID, phase)
	for _, id := range m.approvals[key] {
		if id == instanceID {
			return nil
		}
	}
	m.approvals[key] = append(m.approvals[key], instanceID)
	return nil
}

func (m *mockApprovalRepo) RecordVeto(ctx context.Context, executionID, phase, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate, ok := m.gates[gateKey(executionID, phase)]
	if !ok {
		return fmt.Errorf("approval gate %s/%s: %w", executionID, phase, models.ErrNotFound)
	}
	gate.Vetoed = true
	gate.VetoedBy = instanceID
	return nil
}

func (m *mockApprovalRepo) Approvals(ctx context.Context, executionID, phase string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.approvals[gateKey(executionID, phase)]...), nil
}

func (m *mockApprovalRepo) MarkEscalated(ctx context.Context, executionID, phase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gate, ok := m.gates[gateKey(executionID, phase)]; ok {
		gate.Escalated = true
	}
	return nil
}

func (m *mockApprovalRepo) CloseGate(ctx context.Context, executionID, phase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gate, ok := m.gates[gateKey(executionID, phase)]; ok {
		gate.Closed = true
	}
	return nil
}

func (m *mockApprovalRepo) ListDue(ctx context.Context, now time.Time) ([]*secondary.ApprovalGate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*secondary.ApprovalGate
	for _, gate := range m.gates {
		if gate.Closed || gate.Escalated || gate.EscalationTimeout <= 0 {
			continue
		}
		if now.Sub(gate.AssignedAt) >= gate.EscalationTimeout {
			cp := *gate
			due = append(due, &cp)
		}
	}
	return due, nil
}

// mockSpendLedger implements secondary.SpendLedger for testing.
type mockSpendLedger struct {
	mu      sync.Mutex
	entries []*secondary.SpendEntry
}

func newMockSpendLedger() *mockSpendLedger { return &mockSpendLedger{} }

func (m *mockSpendLedger) Append(ctx context.Context, entry *secondary.SpendEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockSpendLedger) List(ctx context.Context, instanceID, category string, since time.Time) ([]*secondary.SpendEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.SpendEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.InstanceID != instanceID {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		if !since.IsZero() && e.ChargedAt.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// mockMetricRepo implements secondary.MetricRepository for testing.
type mockMetricRepo struct {
	mu      sync.Mutex
	samples []*models.MetricSample
	rollups []*models.MetricRollup
}

func newMockMetricRepo() *mockMetricRepo { return &mockMetricRepo{} }

func (m *mockMetricRepo) Append(ctx context.Context, sample *models.MetricSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample)
	return nil
}

func (m *mockMetricRepo) Values(ctx context.Context, instanceID, metricType string, from, to time.Time) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []float64
	for _, s := range m.samples {
		if s.InstanceID == instanceID && s.MetricType == metricType &&
			!s.RecordedAt.Before(from) && s.RecordedAt.Before(to) {
			out = append(out, s.Value)
		}
	}
	return out, nil
}

func (m *mockMetricRepo) Series(ctx context.Context, from, to time.Time) ([]secondary.SeriesKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[secondary.SeriesKey]bool{}
	var out []secondary.SeriesKey
	for _, s := range m.samples {
		if s.RecordedAt.Before(from) || !s.RecordedAt.Before(to) {
			continue
		}
		key := secondary.SeriesKey{InstanceID: s.InstanceID, MetricType: s.MetricType}
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out, nil
}

func (m *mockMetricRepo) SaveRollup(ctx context.Context, rollup *models.MetricRollup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollups = append(m.rollups, rollup)
	return nil
}

func (m *mockMetricRepo) ListRollups(ctx context.Context, instanceID string, window models.RollupWindow, limit int) ([]*models.MetricRollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.MetricRollup
	for _, r := range m.rollups {
		if r.InstanceID == instanceID && r.Window == window {
			out = append(out, r)
		}
	}
	return out, nil
}

// mockAlertRepo implements secondary.AlertRepository for testing.
type mockAlertRepo struct {
	mu     sync.Mutex
	alerts map[string]*models.Alert
}

func newMockAlertRepo() *mockAlertRepo {
	return &mockAlertRepo{alerts: map[string]*models.Alert{}}
}

func (m *mockAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *alert
	m.alerts[alert.ID] = &cp
	return nil
}

func (m *mockAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.alerts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
}

func (m *mockAlertRepo) GetUnresolved(ctx context.Context, instanceID string, alertType models.AlertType) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.InstanceID == instanceID && a.Type == alertType && !a.Resolved {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("open alert %s/%s: %w", instanceID, alertType, models.ErrNotFound)
}

func (m *mockAlertRepo) List(ctx context.Context, filters secondary.AlertFilters) ([]*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Alert
	for _, a := range m.alerts {
		if filters.InstanceID != "" && a.InstanceID != filters.InstanceID {
			continue
		}
		if filters.Type != "" && a.Type != filters.Type {
			continue
		}
		if filters.Resolved != nil && a.Resolved != *filters.Resolved {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockAlertRepo) Acknowledge(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.alerts[id]; ok {
		a.Acknowledged = true
		a.AcknowledgedAt = &at
	}
	return nil
}

func (m *mockAlertRepo) Resolve(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.alerts[id]; ok {
		a.Resolved = true
		a.ResolvedAt = &at
	}
	return nil
}

func (m *mockAlertRepo) WorstUnresolvedSeverity(ctx context.Context, instanceID string) (models.AlertSeverity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rank := func(s models.AlertSeverity) int {
		switch s {
		case models.SeverityCritical:
			return 3
		case models.SeverityWarning:
			return 2
		case models.SeverityInfo:
			return 1
		}
		return 0
	}
	var worst models.AlertSeverity
	for _, a := range m.alerts {
		if a.InstanceID == instanceID && !a.Resolved && rank(a.Severity) > rank(worst) {
			worst = a.Severity
		}
	}
	return worst, nil
}

func (m *mockAlertRepo) byType(alertType models.AlertType) []*models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Alert
	for _, a := range m.alerts {
		if a.Type == alertType {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// mockHealthRepo implements secondary.HealthCheckRepository for testing.
type mockHealthRepo struct {
	mu     sync.Mutex
	checks []*secondary.HealthCheck
}

func newMockHealthRepo() *mockHealthRepo { return &mockHealthRepo{} }

func (m *mockHealthRepo) Append(ctx context.Context, check *secondary.HealthCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, check)
	return nil
}

func (m *mockHealthRepo) Latest(ctx context.Context, instanceID string) (*secondary.HealthCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.checks) - 1; i >= 0; i-- {
		if m.checks[i].InstanceID == instanceID {
			cp := *m.checks[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("health check for %s: %w", instanceID, models.ErrNotFound)
}

// Interface checks for the mocks.
var (
	_ secondary.ExecutionRepository    = (*mockExecutionRepo)(nil)
	_ secondary.StateEventRepository   = (*mockEventRepo)(nil)
	_ secondary.InstanceRepository     = (*mockInstanceRepo)(nil)
	_ secondary.LifecycleRepository    = (*mockLifecycleRepo)(nil)
	_ secondary.MessageRepository      = (*mockMessageRepo)(nil)
	_ secondary.MessageBus             = (*mockBus)(nil)
	_ secondary.RaciDefinitionProvider = (*mockRaciProvider)(nil)
	_ secondary.ApprovalRepository     = (*mockApprovalRepo)(nil)
	_ secondary.SpendLedger            = (*mockSpendLedger)(nil)
	_ secondary.MetricRepository       = (*mockMetricRepo)(nil)
	_ secondary.AlertRepository        = (*mockAlertRepo)(nil)
	_ secondary.HealthCheckRepository  = (*mockHealthRepo)(nil)
)
