package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Trigger is one recorded action firing
type Trigger struct {
	ID           int64
	Session      string
	Timestamp    time.Time
	Binding      string
	Action       string
	Kind         string
	Device       string
	Key          string
	DurationMs   int64
	Success      bool
	ErrorMessage string
	DryRun       bool
}

// BindingStats summarizes triggers for one binding
type BindingStats struct {
	Binding       string
	TotalTriggers int
	SuccessCount  int
	FailureCount  int
	AvgDurationMs float64
	LastTriggered time.Time
}

// SaveTrigger saves a trigger under the current session
func (db *DB) SaveTrigger(t *Trigger) error {
	query := `
		INSERT INTO triggers (
			session, timestamp, binding, action, kind, device, key,
			duration_ms, success, error_message, dry_run
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	t.Session = db.session

	result, err := db.conn.Exec(query,
		t.Session, t.Timestamp.UTC(), t.Binding, t.Action, t.Kind, t.Device, t.Key,
		t.DurationMs, t.Success, t.ErrorMessage, t.DryRun,
	)
	if err != nil {
		return fmt.Errorf("failed to save trigger: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	t.ID = id
	return nil
}

// GetTriggers retrieves triggers with pagination, newest first
func (db *DB) GetTriggers(limit, offset int) ([]Trigger, error) {
	query := `
		SELECT
			id, session, timestamp, binding, action, kind, device, key,
			duration_ms, success, error_message, dry_run
		FROM triggers
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := db.conn.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()

	var triggers []Trigger
	for rows.Next() {
		var t Trigger
		var errMsg sql.NullString
		if err := rows.Scan(
			&t.ID, &t.Session, &t.Timestamp, &t.Binding, &t.Action, &t.Kind, &t.Device, &t.Key,
			&t.DurationMs, &t.Success, &errMsg, &t.DryRun,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		t.ErrorMessage = errMsg.String
		triggers = append(triggers, t)
	}

	return triggers, rows.Err()
}

// GetTriggerCount returns the total number of recorded triggers
func (db *DB) GetTriggerCount() (int, error) {
	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM triggers").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count triggers: %w", err)
	}
	return count, nil
}

// GetBindingStats returns per-binding statistics for the last N days
func (db *DB) GetBindingStats(days int) ([]BindingStats, error) {
	query := `
		SELECT
			binding,
			COUNT(*) as total_triggers,
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END) as success_count,
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END) as failure_count,
			AVG(duration_ms) as avg_duration_ms,
			MAX(timestamp) as last_triggered
		FROM triggers
		WHERE timestamp >= ?
		GROUP BY binding
		ORDER BY total_triggers DESC, binding
	`

	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := db.conn.Query(query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query binding stats: %w", err)
	}
	defer rows.Close()

	var stats []BindingStats
	for rows.Next() {
		var s BindingStats
		var last string
		if err := rows.Scan(&s.Binding, &s.TotalTriggers, &s.SuccessCount, &s.FailureCount, &s.AvgDurationMs, &last); err != nil {
			return nil, fmt.Errorf("failed to scan binding stats: %w", err)
		}
		s.LastTriggered = parseTimestamp(last)
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// parseTimestamp reads the text form sqlite returns for aggregated DATETIME columns
func parseTimestamp(s string) time.Time {
	layouts := []string{
		"2006-01-02 15:04:05.999999999 -0700 MST", // time.Time.String, what the driver writes
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
