package db

import "database/sql"

// SchemaSQL is the complete schema for fresh installs.
//
// This is the single source of truth for the database schema. Tests use it
// via GetSchemaSQL() so repository code and schema cannot drift: a column
// referenced by a repository that is missing here fails immediately with
// "no such column". Keep it in sync with the migrations list.
const SchemaSQL = `
-- Executions (merged record per work item)
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	work_item_id TEXT NOT NULL,
	workflow_id TEXT,
	task_type TEXT,
	current_phase TEXT NOT NULL DEFAULT '',
	sync_status TEXT NOT NULL CHECK(sync_status IN ('in_sync', 'diverged', 'resolving')) DEFAULT 'in_sync',
	status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed', 'cancelled')) DEFAULT 'running',
	assigned_workers TEXT NOT NULL DEFAULT '[]',
	merge_state TEXT NOT NULL DEFAULT '{}',
	error_details TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME
);

-- At most one non-terminal execution per work item
CREATE UNIQUE INDEX IF NOT EXISTS idx_executions_active_work_item
	ON executions(work_item_id) WHERE status = 'running';

-- State events (append-only event log)
CREATE TABLE IF NOT EXISTS state_events (
	id TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL,
	source TEXT NOT NULL CHECK(source IN ('authority_a', 'authority_b', 'internal')),
	type TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	sequence INTEGER NOT NULL,
	received_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (execution_id) REFERENCES executions(id),
	UNIQUE(execution_id, source, sequence)
);

-- Persona instances (workers)
CREATE TABLE IF NOT EXISTS persona_instances (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	role TEXT NOT NULL,
	state TEXT NOT NULL CHECK(state IN ('provisioning', 'initializing', 'active', 'busy', 'paused', 'error', 'maintenance', 'terminating', 'terminated')) DEFAULT 'provisioning',
	max_concurrent_tasks INTEGER NOT NULL DEFAULT 0,
	active_tasks INTEGER NOT NULL DEFAULT 0,
	priority_level INTEGER NOT NULL DEFAULT 0,
	last_activity_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	spend_limit_daily REAL NOT NULL DEFAULT 0,
	spend_limit_monthly REAL NOT NULL DEFAULT 0,
	current_spend_daily REAL NOT NULL DEFAULT 0,
	current_spend_monthly REAL NOT NULL DEFAULT 0,
	daily_period_start DATETIME,
	monthly_period_start DATETIME,
	version INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Messages (handshake protocol, retained for audit)
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	correlation_id TEXT,
	execution_id TEXT,
	sender TEXT NOT NULL,
	recipient TEXT NOT NULL,
	type TEXT NOT NULL CHECK(type IN ('handoff', 'consultation', 'escalation', 'inform', 'ack')),
	priority TEXT NOT NULL CHECK(priority IN ('critical', 'high', 'medium', 'low')) DEFAULT 'medium',
	body TEXT NOT NULL DEFAULT '',
	requires_ack INTEGER NOT NULL DEFAULT 0,
	ack_timeout_ms INTEGER NOT NULL DEFAULT 0,
	requires_response INTEGER NOT NULL DEFAULT 0,
	response_timeout_ms INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL CHECK(status IN ('sent', 'acknowledged', 'responded', 'expired', 'failed')) DEFAULT 'sent',
	response TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	acknowledged_at DATETIME,
	responded_at DATETIME,
	expires_at DATETIME
);

-- Delivery attempts (redelivery audit)
CREATE TABLE IF NOT EXISTS message_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id TEXT NOT NULL,
	attempt INTEGER NOT NULL,
	attempted_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	outcome TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (message_id) REFERENCES messages(id)
);

-- Lifecycle records (one per instance)
CREATE TABLE IF NOT EXISTS lifecycle_records (
	instance_id TEXT PRIMARY KEY,
	current_state TEXT NOT NULL DEFAULT 'provisioning',
	error_count INTEGER NOT NULL DEFAULT 0,
	last_error_at DATETIME,
	maintenance_count INTEGER NOT NULL DEFAULT 0,
	manual_clearance INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 1,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (instance_id) REFERENCES persona_instances(id) ON DELETE CASCADE
);

-- Lifecycle events (immutable transition log)
CREATE TABLE IF NOT EXISTS lifecycle_events (
	id TEXT PRIMARY KEY,
	instance_id TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	triggered_by TEXT NOT NULL CHECK(triggered_by IN ('system', 'user', 'automation')),
	success INTEGER NOT NULL DEFAULT 1,
	detail TEXT NOT NULL DEFAULT '',
	occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (instance_id) REFERENCES persona_instances(id) ON DELETE CASCADE
);

-- Approval gates (minApprovals-gated phases)
CREATE TABLE IF NOT EXISTS approval_gates (
	execution_id TEXT NOT NULL,
	phase TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	task_type TEXT NOT NULL,
	min_approvals INTEGER NOT NULL DEFAULT 0,
	escalation_timeout_ms INTEGER NOT NULL DEFAULT 0,
	assigned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	escalated INTEGER NOT NULL DEFAULT 0,
	vetoed INTEGER NOT NULL DEFAULT 0,
	vetoed_by TEXT NOT NULL DEFAULT '',
	closed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (execution_id, phase)
);

-- Approvals (distinct approvers per gate)
CREATE TABLE IF NOT EXISTS approvals (
	execution_id TEXT NOT NULL,
	phase TEXT NOT NULL,
	instance_id TEXT NOT NULL,
	approved_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (execution_id, phase, instance_id)
);

-- Spend entries (append-only charge audit)
CREATE TABLE IF NOT EXISTS spend_entries (
	id TEXT PRIMARY KEY,
	instance_id TEXT NOT NULL,
	amount REAL NOT NULL,
	category TEXT NOT NULL,
	allowed INTEGER NOT NULL,
	charged_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (instance_id) REFERENCES persona_instances(id) ON DELETE CASCADE
);

-- Metric samples (write-once)
CREATE TABLE IF NOT EXISTS metric_samples (
	id TEXT PRIMARY KEY,
	instance_id TEXT NOT NULL,
	metric_type TEXT NOT NULL,
	value REAL NOT NULL,
	recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (instance_id) REFERENCES persona_instances(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_metric_samples_series
	ON metric_samples(instance_id, metric_type, recorded_at);

-- Metric rollups (hour/day aggregates)
CREATE TABLE IF NOT EXISTS metric_rollups (
	id TEXT PRIMARY KEY,
	instance_id TEXT NOT NULL,
	metric_type TEXT NOT NULL,
	window TEXT NOT NULL CHECK(window IN ('hour', 'day')),
	window_start DATETIME NOT NULL,
	min REAL NOT NULL, max REAL NOT NULL, avg REAL NOT NULL,
	sum REAL NOT NULL, count INTEGER NOT NULL,
	p50 REAL NOT NULL, p95 REAL NOT NULL, p99 REAL NOT NULL,
	UNIQUE(instance_id, metric_type, window, window_start),
	FOREIGN KEY (instance_id) REFERENCES persona_instances(id) ON DELETE CASCADE
);

-- Alerts (historical record, never deleted)
CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	instance_id TEXT NOT NULL DEFAULT '',
	execution_id TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	severity TEXT NOT NULL CHECK(severity IN ('info', 'warning', 'critical')),
	detail TEXT NOT NULL DEFAULT '',
	acknowledged INTEGER NOT NULL DEFAULT 0,
	resolved INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	acknowledged_at DATETIME,
	resolved_at DATETIME
);

-- Health checks
CREATE TABLE IF NOT EXISTS health_checks (
	id TEXT PRIMARY KEY,
	instance_id TEXT NOT NULL,
	healthy INTEGER NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	checked_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (instance_id) REFERENCES persona_instances(id) ON DELETE CASCADE
);
`

// InitSchema creates the schema on a fresh database and runs any pending
// migrations on an existing one.
func InitSchema(conn *sql.DB) error {
	if _, err := conn.Exec(SchemaSQL); err != nil {
		return err
	}
	return RunMigrations(conn)
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
