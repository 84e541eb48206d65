package state

import (
	"io"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// CheckpointIndex tracks checkpoint sequence numbers per task.
type CheckpointIndex interface {
	RecordCheckpoint(e CheckpointEntry) error
	LatestCheckpoint(taskID, project string) (*CheckpointEntry, error)
	MaxCheckpointNumber(taskID, project string) (int, error)
	ListCheckpoints(taskID, project string) ([]CheckpointEntry, error)
	ArchiveCheckpoint(taskID, project string, number int, newPath string) error
	DeleteCheckpoints(taskID, project string) error
}

// RunStore handles orchestration run records.
type RunStore interface {
	CreateRun(r *Run) error
	GetRun(id string) (*Run, error)
	UpdateRun(r *Run) error
	ListRuns(status *RunStatus) ([]Run, error)
}

// WorkQueue is the task queue the CLI pulls work from.
type WorkQueue interface {
	GetNextReady(project string) (*models.Task, error)
	CheckpointWithSession(taskID string, iteration int, verdict models.VerdictType, sessionID string, sessionData []byte) (string, error)
	MarkCompleted(taskID string) error
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// StateStore composes every persistence concern backed by the state database.
type StateStore interface {
	io.Closer
	Migrator
	CheckpointIndex
	RunStore
	WorkQueue
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore      = (*DB)(nil)
	_ Migrator        = (*DB)(nil)
	_ CheckpointIndex = (*DB)(nil)
	_ RunStore        = (*DB)(nil)
	_ WorkQueue       = (*DB)(nil)
)
