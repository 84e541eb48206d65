// Package checkpoint persists session checkpoints as markdown files with a JSON
// header, and tracks per-specialist status in a JSON side-file.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a task has no checkpoint.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrCorrupt is returned when a checkpoint header cannot be parsed.
	ErrCorrupt = errors.New("checkpoint corrupt")
	// ErrInvalidRecord is returned by Save for records missing required fields.
	ErrInvalidRecord = errors.New("invalid checkpoint record")
	// ErrOutOfOrder is returned when a save would move a sequence backwards.
	ErrOutOfOrder = errors.New("checkpoint out of order")
	// ErrInvalidTaskID is returned for task IDs that cannot name a file.
	ErrInvalidTaskID = errors.New("invalid task id")
)

// ValidateTaskID checks that id can be used as a checkpoint file name prefix:
// non-empty, no path separators or NUL bytes, no ".." and no leading dot.
func ValidateTaskID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidTaskID)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidTaskID, id)
	case strings.Contains(id, ".."):
		return fmt.Errorf("%w: %q contains \"..\"", ErrInvalidTaskID, id)
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidTaskID, id)
	}
	return nil
}

// Status is the lifecycle state stored in a checkpoint.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusTimeout    Status = "timeout"
	StatusFailed     Status = "failed"
)

// Valid returns true if the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusBlocked, StatusCompleted, StatusTimeout, StatusFailed:
		return true
	default:
		return false
	}
}

// Open reports whether the checkpoint belongs to an attempt that is still running.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

// Record is one checkpoint. Every save produces a new file; earlier
// checkpoints are kept until archived or deleted.
type Record struct {
	ID               string    `json:"id"`
	TaskID           string    `json:"task_id"`
	Project          string    `json:"project"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	CheckpointNumber int       `json:"checkpoint_number"`
	IterationCount   int       `json:"iteration_count"`
	Phase            string    `json:"phase"`
	Status           Status    `json:"status"`
	LastOutput       string    `json:"last_output"`
	NextSteps        []string  `json:"next_steps"`
	ContextWindow    int       `json:"context_window"`
	TokensUsed       int64     `json:"tokens_used"`
	AgentType        string    `json:"agent_type"`
	MaxIterations    int       `json:"max_iterations"`
	Error            string    `json:"error,omitempty"`

	// Body is the free-text progress narrative stored below the header.
	Body string `json:"-"`
}

// Patch holds the fields Update changes. Nil fields are left alone.
type Patch struct {
	Phase          *string
	Status         *Status
	IterationCount *int
	LastOutput     *string
	NextSteps      []string
	ContextWindow  *int
	TokensUsed     *int64
	AgentType      *string
	MaxIterations  *int
	Error          *string
	Body           *string
}

func (p Patch) apply(r *Record) {
	if p.Phase != nil {
		r.Phase = *p.Phase
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.IterationCount != nil {
		r.IterationCount = *p.IterationCount
	}
	if p.LastOutput != nil {
		r.LastOutput = *p.LastOutput
	}
	if p.NextSteps != nil {
		r.NextSteps = append([]string(nil), p.NextSteps...)
	}
	if p.ContextWindow != nil {
		r.ContextWindow = *p.ContextWindow
	}
	if p.TokensUsed != nil {
		r.TokensUsed = *p.TokensUsed
	}
	if p.AgentType != nil {
		r.AgentType = *p.AgentType
	}
	if p.MaxIterations != nil {
		r.MaxIterations = *p.MaxIterations
	}
	if p.Error != nil {
		r.Error = *p.Error
	}
	if p.Body != nil {
		r.Body = *p.Body
	}
}

func (r *Record) validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("%w: task_id is required", ErrInvalidRecord)
	}
	if err := ValidateTaskID(r.TaskID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if r.Phase == "" {
		return fmt.Errorf("%w: phase is required", ErrInvalidRecord)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidRecord, r.Status)
	}
	if r.IterationCount < 0 {
		return fmt.Errorf("%w: iteration_count %d is negative", ErrInvalidRecord, r.IterationCount)
	}
	return nil
}

func (r *Record) clone() *Record {
	c := *r
	c.NextSteps = append([]string(nil), r.NextSteps...)
	return &c
}

const (
	fence     = "---"
	separator = "\n" + fence + "\n"
)

// encode renders the on-disk form: a fenced JSON header followed by the body.
func encode(r *Record) ([]byte, error) {
	header := r.clone()
	if header.NextSteps == nil {
		header.NextSteps = []string{}
	}
	data, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + len(r.Body) + 16)
	buf.WriteString(fence + "\n")
	buf.Write(data)
	buf.WriteString(separator)
	buf.WriteString(r.Body)
	return buf.Bytes(), nil
}

// decode parses the on-disk form. The body is returned byte for byte.
func decode(data []byte) (*Record, error) {
	s := string(data)
	if !strings.HasPrefix(s, fence+"\n") {
		return nil, fmt.Errorf("%w: missing header fence", ErrCorrupt)
	}
	rest := s[len(fence)+1:]

	end := strings.Index(rest, separator)
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated header", ErrCorrupt)
	}

	var r Record
	if err := json.Unmarshal([]byte(rest[:end]), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if r.Phase == "" || !r.Status.Valid() {
		return nil, fmt.Errorf("%w: header missing phase or status", ErrCorrupt)
	}
	r.Body = rest[end+len(separator):]
	return &r, nil
}
