package state

import (
	"database/sql"
	"fmt"
	"time"
)

// CheckpointEntry indexes one checkpoint file. The index is the authority on
// checkpoint ordering; the files stay the authority on content.
type CheckpointEntry struct {
	TaskID         string
	Project        string
	Number         int
	Path           string
	SessionID      string
	IterationCount int
	Phase          string
	Status         string
	AgentType      string
	Archived       bool
	CreatedAt      time.Time
}

// RecordCheckpoint inserts an index entry. The (task, project, number) key is
// unique, so a duplicate number fails rather than silently replacing history.
func (db *DB) RecordCheckpoint(e CheckpointEntry) error {
	_, err := db.Exec(`
		INSERT INTO checkpoints (task_id, project, number, path, session_id, iteration_count, phase, status, agent_type, archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.TaskID, e.Project, e.Number, e.Path, e.SessionID, e.IterationCount, e.Phase, e.Status,
		nullString(e.AgentType), boolToInt(e.Archived), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("record checkpoint %s#%d: %w", e.TaskID, e.Number, err)
	}
	return nil
}

// LatestCheckpoint returns the highest-numbered active checkpoint for a task.
// Returns nil, nil when none exists.
func (db *DB) LatestCheckpoint(taskID, project string) (*CheckpointEntry, error) {
	row := db.QueryRow(`
		SELECT task_id, project, number, path, session_id, iteration_count, phase, status, agent_type, archived, created_at
		FROM checkpoints WHERE task_id = ? AND project = ? AND archived = 0
		ORDER BY number DESC LIMIT 1
	`, taskID, project)

	e, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint: %w", err)
	}
	return e, nil
}

// MaxCheckpointNumber returns the highest number ever recorded for a task,
// archived entries included, or 0.
func (db *DB) MaxCheckpointNumber(taskID, project string) (int, error) {
	var n int
	row := db.QueryRow(`
		SELECT COALESCE(MAX(number), 0) FROM checkpoints WHERE task_id = ? AND project = ?
	`, taskID, project)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("max checkpoint number: %w", err)
	}
	return n, nil
}

// ListCheckpoints returns all checkpoints for a task in number order.
func (db *DB) ListCheckpoints(taskID, project string) ([]CheckpointEntry, error) {
	rows, err := db.Query(`
		SELECT task_id, project, number, path, session_id, iteration_count, phase, status, agent_type, archived, created_at
		FROM checkpoints WHERE task_id = ? AND project = ?
		ORDER BY number ASC
	`, taskID, project)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var entries []CheckpointEntry
	for rows.Next() {
		e, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ArchiveCheckpoint marks one checkpoint archived and records its new path.
func (db *DB) ArchiveCheckpoint(taskID, project string, number int, newPath string) error {
	_, err := db.Exec(`
		UPDATE checkpoints SET archived = 1, path = ? WHERE task_id = ? AND project = ? AND number = ?
	`, newPath, taskID, project, number)
	if err != nil {
		return fmt.Errorf("archive checkpoint %s#%d: %w", taskID, number, err)
	}
	return nil
}

// DeleteCheckpoints removes every index entry for a task.
func (db *DB) DeleteCheckpoints(taskID, project string) error {
	_, err := db.Exec("DELETE FROM checkpoints WHERE task_id = ? AND project = ?", taskID, project)
	if err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	return nil
}

// ListCheckpointTasks returns the task IDs that have active checkpoints in a project.
func (db *DB) ListCheckpointTasks(project string) ([]string, error) {
	rows, err := db.Query(`
		SELECT DISTINCT task_id FROM checkpoints WHERE project = ? AND archived = 0 ORDER BY task_id
	`, project)
	if err != nil {
		return nil, fmt.Errorf("list checkpoint tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(r rowScanner) (*CheckpointEntry, error) {
	var e CheckpointEntry
	var agentType sql.NullString
	var archived int
	var createdAt string
	if err := r.Scan(&e.TaskID, &e.Project, &e.Number, &e.Path, &e.SessionID, &e.IterationCount,
		&e.Phase, &e.Status, &agentType, &archived, &createdAt); err != nil {
		return nil, err
	}
	e.AgentType = agentType.String
	e.Archived = archived != 0
	e.CreatedAt, _ = parseTime(createdAt)
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
