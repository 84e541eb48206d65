package state

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// InterruptedRun describes a run whose owning process went away before it
// reached a terminal status.
type InterruptedRun struct {
	Run          Run
	LastActivity time.Time
}

// RecoveryManager handles detection and recovery of interrupted runs.
type RecoveryManager struct {
	db *DB
}

// NewRecoveryManager creates a new RecoveryManager with the given database.
func NewRecoveryManager(db *DB) *RecoveryManager {
	return &RecoveryManager{db: db}
}

// CheckForInterrupted returns the runs that are not terminal and whose process
// is no longer alive, newest first. Runs already marked interrupted are included.
func (rm *RecoveryManager) CheckForInterrupted() ([]InterruptedRun, error) {
	runs, err := rm.db.ListRuns(nil)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	var out []InterruptedRun
	for _, r := range runs {
		if r.Status.Terminal() {
			continue
		}
		if r.Status == RunRunning && r.PID > 0 && isProcessAlive(r.PID) {
			continue
		}
		out = append(out, InterruptedRun{Run: r, LastActivity: r.UpdatedAt})
	}
	return out, nil
}

// Resume marks an interrupted run as resumed and returns it so the caller can
// start a new run of the team lead under the same task ID. Specialists pick up
// their own in-progress checkpoints.
func (rm *RecoveryManager) Resume(runID string) (*Run, error) {
	r, err := rm.db.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if r.Status.Terminal() {
		return nil, fmt.Errorf("run %s already %s", runID, r.Status)
	}
	if r.Status == RunRunning && r.PID > 0 && r.PID != os.Getpid() && isProcessAlive(r.PID) {
		return nil, fmt.Errorf("run %s is still owned by live process %d", runID, r.PID)
	}

	r.Status = RunResumed
	r.Reason = fmt.Sprintf("resumed by pid %d", os.Getpid())
	if err := rm.db.UpdateRun(r); err != nil {
		return nil, fmt.Errorf("mark run resumed: %w", err)
	}
	return r, nil
}

// Clean marks an interrupted run failed so it stops showing up on startup.
func (rm *RecoveryManager) Clean(runID string) error {
	r, err := rm.db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if r == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	r.Status = RunFailed
	r.Reason = "abandoned after interruption"
	if err := rm.db.UpdateRun(r); err != nil {
		return fmt.Errorf("mark run failed: %w", err)
	}
	return nil
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 only checks existence.
	return process.Signal(syscall.Signal(0)) == nil
}
