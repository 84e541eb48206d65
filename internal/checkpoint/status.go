package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// historyLimit is how many iterations the side-file keeps per specialist.
const historyLimit = 3

// finalOutputLimit bounds the stored final output summary, in runes.
const finalOutputLimit = 500

// teamLeadKey is the document key holding the team lead's own block.
const teamLeadKey = "team_lead"

// Specialist lifecycle values stored in the side-file.
const (
	SpecialistLaunched   = "launched"
	SpecialistInProgress = "in_progress"
)

// IterationEntry summarises one specialist iteration.
type IterationEntry struct {
	Iteration int       `json:"iteration"`
	Verdict   string    `json:"verdict"`
	Summary   string    `json:"summary,omitempty"`
	At        time.Time `json:"at"`
}

// SpecialistStatus is the side-file entry for one specialist type.
type SpecialistStatus struct {
	Status           string           `json:"status"`
	Iterations       int              `json:"iterations"`
	SubtaskIDs       []string         `json:"subtask_ids"`
	Verdict          string           `json:"verdict,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          *time.Time       `json:"end_time,omitempty"`
	TokensUsed       int64            `json:"tokens_used"`
	Cost             float64          `json:"cost"`
	IterationHistory []IterationEntry `json:"iteration_history"`
	FinalOutput      string           `json:"final_output,omitempty"`
	// VerificationMissing marks a completion that carried no verification evidence.
	VerificationMissing bool `json:"verification_missing,omitempty"`
}

// Settled reports whether the specialist reached a terminal status.
func (s *SpecialistStatus) Settled() bool {
	return models.ResultStatus(s.Status).Valid()
}

// TeamLeadStatus is the team lead's block in the side-file.
type TeamLeadStatus struct {
	Analysis  *models.TaskAnalysis `json:"analysis,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// StatusDocument is the whole side-file for one task. On disk it is a single
// JSON object keyed by specialist type plus a "team_lead" key.
type StatusDocument struct {
	Specialists map[string]*SpecialistStatus
	TeamLead    *TeamLeadStatus
}

// MarshalJSON flattens the document into one object.
func (d StatusDocument) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(d.Specialists)+1)
	for k, v := range d.Specialists {
		flat[k] = v
	}
	if d.TeamLead != nil {
		flat[teamLeadKey] = d.TeamLead
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reads the flattened form.
func (d *StatusDocument) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Specialists = make(map[string]*SpecialistStatus, len(raw))
	for k, v := range raw {
		if k == teamLeadKey {
			var tl TeamLeadStatus
			if err := json.Unmarshal(v, &tl); err != nil {
				return fmt.Errorf("team_lead: %w", err)
			}
			d.TeamLead = &tl
			continue
		}
		var s SpecialistStatus
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		d.Specialists[k] = &s
	}
	return nil
}

// Completion carries the terminal facts recorded by Complete.
type Completion struct {
	Status              models.ResultStatus
	Verdict             models.VerdictType
	Reason              string
	Iterations          int
	TokensUsed          int64
	Cost                float64
	FinalOutput         string
	VerificationMissing bool
}

// StatusStore maintains the per-task specialist side-files of one project.
type StatusStore struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// NewStatusStore creates a status store writing next to the checkpoints.
func NewStatusStore(sessionsRoot, project string) (*StatusStore, error) {
	if project == "" {
		return nil, errors.New("new status store: project is required")
	}
	if err := validateProject(project); err != nil {
		return nil, fmt.Errorf("new status store: %w", err)
	}
	dir := filepath.Join(sessionsRoot, project)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &StatusStore{dir: dir, now: time.Now}, nil
}

// Path returns the side-file location for a task. Callers must pass an ID
// accepted by ValidateTaskID.
func (s *StatusStore) Path(taskID string) string {
	return filepath.Join(s.dir, taskID+".specialists.json")
}

// Get returns the side-file for a task, or an empty document.
func (s *StatusStore) Get(taskID string) (*StatusDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(taskID)
}

// Launch records that a specialist started on a subtask.
func (s *StatusStore) Launch(taskID string, specialist models.SpecialistType, subtaskID string) error {
	return s.mutate(taskID, func(doc *StatusDocument) {
		st := doc.specialist(specialist)
		st.Status = SpecialistLaunched
		st.StartTime = s.now().UTC()
		st.EndTime = nil
		if !contains(st.SubtaskIDs, subtaskID) {
			st.SubtaskIDs = append(st.SubtaskIDs, subtaskID)
		}
	})
}

// RecordIteration appends to the specialist's iteration history, keeping the
// most recent entries only, and updates its running totals.
func (s *StatusStore) RecordIteration(taskID string, specialist models.SpecialistType, e IterationEntry, tokensUsed int64, cost float64) error {
	if e.At.IsZero() {
		e.At = s.now().UTC()
	}
	e.Summary = truncateRunes(e.Summary, finalOutputLimit)
	return s.mutate(taskID, func(doc *StatusDocument) {
		st := doc.specialist(specialist)
		st.Status = SpecialistInProgress
		st.Iterations = e.Iteration
		st.Verdict = e.Verdict
		st.TokensUsed = tokensUsed
		st.Cost = cost
		st.IterationHistory = append(st.IterationHistory, e)
		if n := len(st.IterationHistory); n > historyLimit {
			st.IterationHistory = append([]IterationEntry(nil), st.IterationHistory[n-historyLimit:]...)
		}
	})
}

// Complete records a specialist's terminal state.
func (s *StatusStore) Complete(taskID string, specialist models.SpecialistType, c Completion) error {
	return s.mutate(taskID, func(doc *StatusDocument) {
		st := doc.specialist(specialist)
		end := s.now().UTC()
		st.Status = string(c.Status)
		st.Verdict = string(c.Verdict)
		st.Reason = truncateRunes(c.Reason, finalOutputLimit)
		st.Iterations = c.Iterations
		st.TokensUsed = c.TokensUsed
		st.Cost = c.Cost
		st.EndTime = &end
		st.FinalOutput = truncateRunes(c.FinalOutput, finalOutputLimit)
		st.VerificationMissing = c.VerificationMissing
	})
}

// SetAnalysis stores the team lead's analysis.
func (s *StatusStore) SetAnalysis(taskID string, a *models.TaskAnalysis) error {
	return s.mutate(taskID, func(doc *StatusDocument) {
		doc.TeamLead = &TeamLeadStatus{Analysis: a, UpdatedAt: s.now().UTC()}
	})
}

// AllSettled reports whether every expected specialist reached a terminal status.
func (s *StatusStore) AllSettled(taskID string, expected []models.SpecialistType) (bool, error) {
	pending, err := s.Unsettled(taskID, expected)
	if err != nil {
		return false, err
	}
	return len(pending) == 0, nil
}

// Unsettled returns the expected specialists without a terminal status, in
// the order given.
func (s *StatusStore) Unsettled(taskID string, expected []models.SpecialistType) ([]models.SpecialistType, error) {
	doc, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}
	var pending []models.SpecialistType
	for _, t := range expected {
		st, ok := doc.Specialists[string(t)]
		if !ok || !st.Settled() {
			pending = append(pending, t)
		}
	}
	return pending, nil
}

// Delete removes a task's side-file.
func (s *StatusStore) Delete(taskID string) error {
	if err := ValidateTaskID(taskID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path(taskID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete status file: %w", err)
	}
	return nil
}

func (s *StatusStore) mutate(taskID string, fn func(doc *StatusDocument)) error {
	if err := ValidateTaskID(taskID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(taskID)
	if err != nil {
		return err
	}
	fn(doc)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status file: %w", err)
	}
	if err := writeFileAtomic(s.Path(taskID), data, true); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	return nil
}

func (s *StatusStore) read(taskID string) (*StatusDocument, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return nil, err
	}
	doc := &StatusDocument{Specialists: make(map[string]*SpecialistStatus)}
	data, err := os.ReadFile(s.Path(taskID))
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read status file: %w", err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: status file for %s: %v", ErrCorrupt, taskID, err)
	}
	return doc, nil
}

func (d *StatusDocument) specialist(t models.SpecialistType) *SpecialistStatus {
	if d.Specialists == nil {
		d.Specialists = make(map[string]*SpecialistStatus)
	}
	st, ok := d.Specialists[string(t)]
	if !ok {
		st = &SpecialistStatus{SubtaskIDs: []string{}, IterationHistory: []IterationEntry{}}
		d.Specialists[string(t)] = st
	}
	return st
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
