package state

import (
	"database/sql"
	"fmt"
	"time"
)

// RunStatus represents the status of an orchestration run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunBlocked     RunStatus = "blocked"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
	// RunResumed marks a run that was picked up again by a later run.
	RunResumed RunStatus = "resumed"
)

// Terminal returns true if the run will not progress any further on its own.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunBlocked, RunFailed, RunResumed:
		return true
	default:
		return false
	}
}

// Run records one invocation of the team lead. Baseline is the commit its
// change detection diffs against; a resumed run inherits it.
type Run struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	Project     string     `json:"project"`
	Description string     `json:"description"`
	Status      RunStatus  `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	Baseline    string     `json:"baseline,omitempty"`
	PID         int        `json:"pid"`
	TotalCost   float64    `json:"total_cost"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CreateRun creates a new run.
func (db *DB) CreateRun(r *Run) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.StartedAt
	}
	_, err := db.Exec(`
		INSERT INTO runs (id, task_id, project, description, status, reason, baseline, pid, total_cost, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.TaskID, r.Project, r.Description, string(r.Status), nullString(r.Reason), nullString(r.Baseline), r.PID, r.TotalCost,
		formatTime(r.StartedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. Returns nil, nil when it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, task_id, project, description, status, reason, baseline, pid, total_cost, started_at, updated_at, completed_at
		FROM runs WHERE id = ?
	`, id)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// UpdateRun updates status, reason, baseline, cost and timestamps of a run.
// A terminal status stamps completed_at.
func (db *DB) UpdateRun(r *Run) error {
	r.UpdatedAt = time.Now()
	var completedAt sql.NullString
	if r.Status.Terminal() {
		if r.CompletedAt == nil {
			now := r.UpdatedAt
			r.CompletedAt = &now
		}
		completedAt = sql.NullString{String: formatTime(*r.CompletedAt), Valid: true}
	}

	_, err := db.Exec(`
		UPDATE runs SET status = ?, reason = ?, baseline = ?, pid = ?, total_cost = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, string(r.Status), nullString(r.Reason), nullString(r.Baseline), r.PID, r.TotalCost, formatTime(r.UpdatedAt), completedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// ListRuns lists runs newest first, optionally filtered by status.
func (db *DB) ListRuns(status *RunStatus) ([]Run, error) {
	query := `
		SELECT id, task_id, project, description, status, reason, baseline, pid, total_cost, started_at, updated_at, completed_at
		FROM runs`
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY started_at DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// PurgeOldRuns deletes finished runs older than the specified duration.
// Returns the number of runs deleted.
func (db *DB) PurgeOldRuns(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec(`
		DELETE FROM runs WHERE started_at < ? AND status IN (?, ?, ?, ?)
	`, cutoff, string(RunCompleted), string(RunBlocked), string(RunFailed), string(RunResumed))
	if err != nil {
		return 0, fmt.Errorf("purge old runs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

func scanRun(r rowScanner) (*Run, error) {
	var run Run
	var reason, baseline, completedAt sql.NullString
	var startedAt, updatedAt string
	if err := r.Scan(&run.ID, &run.TaskID, &run.Project, &run.Description, &run.Status, &reason, &baseline,
		&run.PID, &run.TotalCost, &startedAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	run.Reason = reason.String
	run.Baseline = baseline.String
	run.StartedAt, _ = parseTime(startedAt)
	run.UpdatedAt, _ = parseTime(updatedAt)
	run.CompletedAt = parseNullableTime(completedAt)
	return &run, nil
}
