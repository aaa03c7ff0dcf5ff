package db

import (
	"database/sql"
	"fmt"
	"time"
)

// SeedFixtures populates the database with development fixtures: a small
// persona fleet in realistic states with budget headroom.
func SeedFixtures(conn *sql.DB) error {
	now := time.Now().UTC().Format(time.RFC3339)

	instances := []struct {
		id, name, role, state    string
		maxTasks, priority       int
		dailyLimit, monthlyLimit float64
	}{
		{"INST-001", "backend-developer-1", "backend-developer", "active", 5, 3, 25.00, 500.00},
		{"INST-002", "backend-developer-2", "backend-developer", "active", 5, 3, 25.00, 500.00},
		{"INST-003", "qa-engineer-1", "qa-engineer", "active", 3, 2, 15.00, 300.00},
		{"INST-004", "tech-lead-1", "tech-lead", "active", 2, 5, 40.00, 800.00},
		{"INST-005", "security-architect-1", "security-architect", "paused", 2, 4, 30.00, 600.00},
	}
	for _, i := range instances {
		if _, err := conn.Exec(
			`INSERT INTO persona_instances
				(id, name, role, state, max_concurrent_tasks, priority_level,
				 spend_limit_daily, spend_limit_monthly, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i.id, i.name, i.role, i.state, i.maxTasks, i.priority,
			i.dailyLimit, i.monthlyLimit, now, now,
		); err != nil {
			return fmt.Errorf("seed instances: %w", err)
		}
		if _, err := conn.Exec(
			"INSERT INTO lifecycle_records (instance_id, current_state, updated_at) VALUES (?, ?, ?)",
			i.id, i.state, now,
		); err != nil {
			return fmt.Errorf("seed lifecycle records: %w", err)
		}
	}
	return nil
}
