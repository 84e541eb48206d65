package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// Queue is the work queue RunNext pulls from. state.DB satisfies it.
type Queue interface {
	GetNextReady(project string) (*models.Task, error)
	CheckpointWithSession(taskID string, iteration int, verdict models.VerdictType, sessionID string, sessionData []byte) (string, error)
	MarkCompleted(taskID string) error
	SetTaskStatus(taskID string, status models.TaskStatus) error
}

// RunNext claims the next ready task of the project, orchestrates it and
// records the outcome on the queue. A cancelled task stays in progress so it
// can be resumed. It returns nil, nil when the queue is empty.
func (l *TeamLead) RunNext(ctx context.Context, q Queue) (*Result, error) {
	task, err := q.GetNextReady(l.cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("claim next task: %w", err)
	}
	if task == nil {
		return nil, nil
	}

	description := task.Description
	if description == "" {
		description = task.Title
	}
	result, runErr := l.Orchestrate(ctx, task.ID, description)
	if result == nil {
		return nil, runErr
	}

	verdict := models.VerdictFailed
	if result.Verdict != nil {
		verdict = result.Verdict.Type
	} else if result.Status == StatusBlocked || result.Status == StatusSingleAgent {
		verdict = models.VerdictBlocked
	}
	data, err := json.Marshal(result)
	if err != nil {
		return result, fmt.Errorf("encode result: %w", err)
	}
	if _, err := q.CheckpointWithSession(task.ID, result.Iterations(), verdict, result.RunID, data); err != nil {
		l.logger.Warn("queue checkpoint failed", zap.String("task_id", task.ID), zap.Error(err))
	}

	if errors.Is(runErr, context.Canceled) {
		return result, runErr
	}
	switch result.Status {
	case StatusCompleted:
		err = q.MarkCompleted(task.ID)
	case StatusBlocked, StatusSingleAgent:
		err = q.SetTaskStatus(task.ID, models.TaskStatusBlocked)
	default:
		err = q.SetTaskStatus(task.ID, models.TaskStatusFailed)
	}
	if err != nil {
		l.logger.Warn("queue status update failed", zap.String("task_id", task.ID), zap.Error(err))
	}
	return result, runErr
}
