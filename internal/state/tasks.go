package state

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// CreateTask adds a task to the work queue.
func (db *DB) CreateTask(t *models.Task) error {
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := db.Exec(`
		INSERT INTO tasks (id, project, title, description, status, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Project, t.Title, nullString(t.Description), string(t.Status), t.Priority, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil, nil when it does not exist.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, project, title, description, status, priority, iteration, last_verdict, session_id, created_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// GetNextReady claims the highest-priority pending task of a project and
// marks it in progress. An empty project matches every project.
// Returns nil, nil when the queue is empty.
func (db *DB) GetNextReady(project string) (*models.Task, error) {
	var claimed *models.Task
	err := db.Transaction(func(tx *sql.Tx) error {
		query := `
			SELECT id, project, title, description, status, priority, iteration, last_verdict, session_id, created_at, completed_at
			FROM tasks WHERE status = ?`
		args := []any{string(models.TaskStatusPending)}
		if project != "" {
			query += " AND project = ?"
			args = append(args, project)
		}
		query += " ORDER BY priority DESC, created_at ASC LIMIT 1"

		t, err := scanTask(tx.QueryRow(query, args...))
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec("UPDATE tasks SET status = ? WHERE id = ?", string(models.TaskStatusInProgress), t.ID); err != nil {
			return err
		}
		t.Status = models.TaskStatusInProgress
		claimed = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get next ready task: %w", err)
	}
	return claimed, nil
}

// CheckpointWithSession records an iteration against a queued task and links
// it to the session that produced it. It returns the checkpoint ID.
func (db *DB) CheckpointWithSession(taskID string, iteration int, verdict models.VerdictType, sessionID string, sessionData []byte) (string, error) {
	var id int64
	err := db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO task_checkpoints (task_id, iteration, verdict, session_id, session_data, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, taskID, iteration, string(verdict), nullString(sessionID), nullString(string(sessionData)), formatTime(time.Now()))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}

		res, err = tx.Exec(`
			UPDATE tasks SET iteration = ?, last_verdict = ?, session_id = ? WHERE id = ?
		`, iteration, string(verdict), nullString(sessionID), taskID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s not found", taskID)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("checkpoint task %s: %w", taskID, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// SetTaskStatus updates a task's status without completing it.
func (db *DB) SetTaskStatus(taskID string, status models.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set task status: invalid status %q", status)
	}
	if _, err := db.Exec("UPDATE tasks SET status = ? WHERE id = ?", string(status), taskID); err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	return nil
}

// MarkCompleted marks a task done.
func (db *DB) MarkCompleted(taskID string) error {
	res, err := db.Exec(`
		UPDATE tasks SET status = ?, completed_at = ? WHERE id = ?
	`, string(models.TaskStatusDone), formatTime(time.Now()), taskID)
	if err != nil {
		return fmt.Errorf("mark task completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark task completed: task %s not found", taskID)
	}
	return nil
}

// ListTasks lists tasks, optionally filtered by status.
func (db *DB) ListTasks(status *models.TaskStatus) ([]models.Task, error) {
	query := `
		SELECT id, project, title, description, status, priority, iteration, last_verdict, session_id, created_at, completed_at
		FROM tasks`
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY priority DESC, created_at ASC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func scanTask(r rowScanner) (*models.Task, error) {
	var t models.Task
	var description, lastVerdict, sessionID, completedAt sql.NullString
	var createdAt string
	if err := r.Scan(&t.ID, &t.Project, &t.Title, &description, &t.Status, &t.Priority, &t.Iteration,
		&lastVerdict, &sessionID, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	t.Description = description.String
	t.LastVerdict = models.VerdictType(lastVerdict.String)
	t.SessionID = sessionID.String
	t.CreatedAt, _ = parseTime(createdAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}
