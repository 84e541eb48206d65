// Package audit writes a tamper-evident trail of security and gate
// decisions. Each line of the trail is a JSON event carrying the SHA-256 of
// the previous line, so any edit or deletion breaks the chain.
package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// ErrTampered is returned by Verify when the chain does not hold.
var ErrTampered = errors.New("audit trail tampered")

// genesis is the previous hash of the first event.
const genesis = "0000000000000000000000000000000000000000000000000000000000000000"

// Event types.
const (
	EventBypassAttempt = "bypass_attempt"
	EventValidation    = "validation_result"
	EventSynthesis     = "synthesis_result"
	EventVerification  = "verification"
)

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event is one line of the trail.
type Event struct {
	Seq      int64          `json:"seq"`
	Time     time.Time      `json:"time"`
	Type     string         `json:"type"`
	Severity string         `json:"severity"`
	TaskID   string         `json:"task_id"`
	Data     map[string]any `json:"data,omitempty"`
	PrevHash string         `json:"prev_hash"`
	Hash     string         `json:"hash"`
}

// digest hashes the event with Hash cleared.
func (e Event) digest() (string, error) {
	e.Hash = ""
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Trail receives gate and security decisions. Implementations must not fail
// the caller; write errors are logged and dropped.
type Trail interface {
	LogBypassAttempt(taskID string, v models.Validation)
	LogValidationResult(taskID string, v models.Validation)
	LogSynthesisResult(taskID string, source string, specialists int, length int)
	LogVerification(taskID string, verdict *models.Verdict, changedFiles []string)
}

// FileTrail appends hash-chained events to a JSONL file.
type FileTrail struct {
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	seq      int64
	lastHash string
	loaded   bool
}

// NewFileTrail creates a trail at path. The parent directory is created.
func NewFileTrail(path string, logger *zap.Logger) (*FileTrail, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	return &FileTrail{path: path, logger: logger, now: time.Now}, nil
}

// Path returns the trail location.
func (t *FileTrail) Path() string { return t.path }

// LogBypassAttempt records a result that claimed completion without verification.
func (t *FileTrail) LogBypassAttempt(taskID string, v models.Validation) {
	t.write(EventBypassAttempt, SeverityCritical, taskID, map[string]any{
		"specialists": v.Bypassers,
		"reason":      v.Reason,
		"total":       v.Total,
	})
}

// LogValidationResult records the admission decision.
func (t *FileTrail) LogValidationResult(taskID string, v models.Validation) {
	severity := SeverityInfo
	if !v.Accepted {
		severity = SeverityWarning
	}
	t.write(EventValidation, severity, taskID, map[string]any{
		"accepted":      v.Accepted,
		"reason":        v.Reason,
		"pass_rate":     v.PassRate,
		"total":         v.Total,
		"passed_count":  v.Passed,
		"blocked_count": v.Blocked,
		"failed_count":  v.Failed,
	})
}

// LogSynthesisResult records which synthesizer produced the unified output.
func (t *FileTrail) LogSynthesisResult(taskID string, source string, specialists int, length int) {
	t.write(EventSynthesis, SeverityInfo, taskID, map[string]any{
		"source":      source,
		"specialists": specialists,
		"length":      length,
	})
}

// LogVerification records the final verdict.
func (t *FileTrail) LogVerification(taskID string, verdict *models.Verdict, changedFiles []string) {
	data := map[string]any{"changed_files": changedFiles}
	severity := SeverityInfo
	if verdict != nil {
		data["verdict"] = verdict.Type
		data["reason"] = verdict.Reason
		data["safe_to_merge"] = verdict.SafeToMerge
		data["regression_detected"] = verdict.RegressionDetected
		if verdict.Type != models.VerdictPass {
			severity = SeverityWarning
		}
	}
	t.write(EventVerification, severity, taskID, data)
}

func (t *FileTrail) write(typ, severity, taskID string, data map[string]any) {
	if err := t.append(typ, severity, taskID, data); err != nil {
		t.logger.Warn("audit write failed", zap.String("type", typ), zap.String("task_id", taskID), zap.Error(err))
	}
}

func (t *FileTrail) append(typ, severity, taskID string, data map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.loaded {
		seq, last, err := tail(t.path)
		if err != nil {
			return err
		}
		t.seq, t.lastHash, t.loaded = seq, last, true
	}

	ev := Event{
		Seq:      t.seq + 1,
		Time:     t.now().UTC(),
		Type:     typ,
		Severity: severity,
		TaskID:   taskID,
		Data:     data,
		PrevHash: t.lastHash,
	}
	hash, err := ev.digest()
	if err != nil {
		return fmt.Errorf("hash audit event: %w", err)
	}
	ev.Hash = hash

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync audit trail: %w", err)
	}

	t.seq = ev.Seq
	t.lastHash = ev.Hash
	return nil
}

// tail returns the last sequence number and hash in the file.
func tail(path string) (int64, string, error) {
	events, err := Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, genesis, nil
	}
	if err != nil {
		return 0, "", err
	}
	if len(events) == 0 {
		return 0, genesis, nil
	}
	last := events[len(events)-1]
	return last.Seq, last.Hash, nil
}

// Read parses every event in the trail.
func Read(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrTampered, line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit trail: %w", err)
	}
	return events, nil
}

// Verify checks every hash link in the trail and returns the number of events.
func Verify(path string) (int, error) {
	events, err := Read(path)
	if err != nil {
		return 0, err
	}
	prev := genesis
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			return i, fmt.Errorf("%w: event %d has sequence %d", ErrTampered, i+1, ev.Seq)
		}
		if ev.PrevHash != prev {
			return i, fmt.Errorf("%w: event %d does not link to its predecessor", ErrTampered, ev.Seq)
		}
		want, err := ev.digest()
		if err != nil {
			return i, err
		}
		if want != ev.Hash {
			return i, fmt.Errorf("%w: event %d hash mismatch", ErrTampered, ev.Seq)
		}
		prev = ev.Hash
	}
	return len(events), nil
}

// Nop discards everything.
type Nop struct{}

func (Nop) LogBypassAttempt(string, models.Validation) {}
func (Nop) LogValidationResult(string, models.Validation) {}
func (Nop) LogSynthesisResult(string, string, int, int) {}
func (Nop) LogVerification(string, *models.Verdict, []string) {}

// Safe wraps t so a panic inside any of its methods is logged and dropped.
func Safe(t Trail, logger *zap.Logger) Trail {
	if t == nil {
		return Nop{}
	}
	if s, ok := t.(safeTrail); ok {
		return s
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return safeTrail{inner: t, logger: logger}
}

type safeTrail struct {
	inner  Trail
	logger *zap.Logger
}

func (s safeTrail) contain(event string) {
	if r := recover(); r != nil {
		s.logger.Warn("audit trail panicked", zap.String("event", event), zap.Any("panic", r))
	}
}

func (s safeTrail) LogBypassAttempt(taskID string, v models.Validation) {
	defer s.contain(EventBypassAttempt)
	s.inner.LogBypassAttempt(taskID, v)
}

func (s safeTrail) LogValidationResult(taskID string, v models.Validation) {
	defer s.contain(EventValidation)
	s.inner.LogValidationResult(taskID, v)
}

func (s safeTrail) LogSynthesisResult(taskID string, source string, specialists int, length int) {
	defer s.contain(EventSynthesis)
	s.inner.LogSynthesisResult(taskID, source, specialists, length)
}

func (s safeTrail) LogVerification(taskID string, verdict *models.Verdict, changedFiles []string) {
	defer s.contain(EventVerification)
	s.inner.LogVerification(taskID, verdict, changedFiles)
}

var (
	_ Trail = (*FileTrail)(nil)
	_ Trail = Nop{}
	_ Trail = safeTrail{}
)
