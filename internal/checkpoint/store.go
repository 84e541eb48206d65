package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/squadron/internal/state"
)

const archiveDir = "archive"

// Store reads and writes checkpoints for one project. All writes go through
// a single mutex, so one Store may be shared by concurrent specialists.
type Store struct {
	dir     string
	project string
	index   state.CheckpointIndex
	logger  *zap.Logger
	now     func() time.Time
	readDir func(string) ([]os.DirEntry, error)

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithIndex makes the store use the state database for sequence numbers and
// latest-checkpoint resolution instead of scanning the directory.
func WithIndex(idx state.CheckpointIndex) Option {
	return func(s *Store) { s.index = idx }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store writing to <sessionsRoot>/<project>.
func NewStore(sessionsRoot, project string, opts ...Option) (*Store, error) {
	if project == "" {
		return nil, errors.New("new checkpoint store: project is required")
	}
	if err := validateProject(project); err != nil {
		return nil, fmt.Errorf("new checkpoint store: %w", err)
	}
	s := &Store{
		dir:     filepath.Join(sessionsRoot, project),
		project: project,
		logger:  zap.NewNop(),
		now:     time.Now,
		readDir: os.ReadDir,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(filepath.Join(s.dir, archiveDir), 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return s, nil
}

// Dir returns the directory active checkpoints are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Project returns the project this store serves.
func (s *Store) Project() string {
	return s.project
}

// Save validates rec and writes it as a new checkpoint. A zero
// CheckpointNumber is assigned the next number; an explicit one must be
// greater than every number already used for the task. The stored record is
// returned; rec itself is not modified.
func (s *Store) Save(rec *Record) (*Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if err := rec.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(rec.clone())
}

// Load returns the latest checkpoint for a task.
func (s *Store) Load(taskID string) (*Record, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(taskID)
}

// Update loads the latest checkpoint (or starts a pending one), applies the
// patch and saves the result as a new checkpoint.
func (s *Store) Update(taskID string, p Patch) (*Record, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLocked(taskID)
	switch {
	case errors.Is(err, ErrNotFound):
		rec = &Record{TaskID: taskID, Project: s.project, Phase: "startup", Status: StatusPending}
	case err != nil:
		return nil, err
	}

	p.apply(rec)
	rec.CheckpointNumber = 0
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return s.saveLocked(rec)
}

// Archive moves the latest checkpoint of a task into the archive directory.
func (s *Store) Archive(taskID string) error {
	if err := ValidateTaskID(taskID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := s.latestFileLocked(taskID)
	if err != nil {
		return err
	}

	dst := filepath.Join(s.dir, archiveDir, filepath.Base(latest.path))
	if err := os.Rename(latest.path, dst); err != nil {
		return fmt.Errorf("archive checkpoint: %w", err)
	}
	if s.index != nil {
		if err := s.index.ArchiveCheckpoint(taskID, s.project, latest.number, dst); err != nil {
			return fmt.Errorf("archive checkpoint: %w", err)
		}
	}
	s.logger.Debug("checkpoint archived", zap.String("task_id", taskID), zap.Int("number", latest.number))
	return nil
}

// ArchiveAll moves every active checkpoint of a task into the archive
// directory, so a later run of the same task starts fresh. It returns how
// many files were moved.
func (s *Store) ArchiveAll(taskID string) (int, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.scan(s.dir, taskID)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, f := range files {
		dst := filepath.Join(s.dir, archiveDir, filepath.Base(f.path))
		if err := os.Rename(f.path, dst); err != nil {
			return moved, fmt.Errorf("archive checkpoint: %w", err)
		}
		if s.index != nil {
			if err := s.index.ArchiveCheckpoint(taskID, s.project, f.number, dst); err != nil {
				return moved, fmt.Errorf("archive checkpoint: %w", err)
			}
		}
		moved++
	}
	return moved, nil
}

// DeleteAll removes every checkpoint of a task, archived ones included, and
// returns how many files were removed.
func (s *Store) DeleteAll(taskID string) (int, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, dir := range []string{s.dir, filepath.Join(s.dir, archiveDir)} {
		files, err := s.scan(dir, taskID)
		if err != nil {
			return removed, err
		}
		for _, f := range files {
			if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return removed, fmt.Errorf("delete checkpoint: %w", err)
			}
			removed++
		}
	}
	if s.index != nil {
		if err := s.index.DeleteCheckpoints(taskID, s.project); err != nil {
			return removed, fmt.Errorf("delete checkpoints: %w", err)
		}
	}
	return removed, nil
}

// Summary describes one checkpoint file without its body.
type Summary struct {
	Number   int
	Path     string
	Archived bool
	Record   *Record
	ParseErr error
	Modified time.Time
}

// List returns every checkpoint of a task, archived ones included, in number order.
func (s *Store) List(taskID string) ([]Summary, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Summary
	for _, archived := range []bool{false, true} {
		dir := s.dir
		if archived {
			dir = filepath.Join(s.dir, archiveDir)
		}
		files, err := s.scan(dir, taskID)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			sum := Summary{Number: f.number, Path: f.path, Archived: archived, Modified: f.modTime}
			sum.Record, sum.ParseErr = readRecord(f.path)
			if sum.Record != nil {
				sum.Record.Body = ""
			}
			out = append(out, sum)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// Tasks returns the IDs of tasks with at least one active checkpoint.
func (s *Store) Tasks() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read session directory: %w", err)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, _, ok := parseFileName(e.Name())
		if ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) saveLocked(rec *Record) (*Record, error) {
	now := s.now().UTC()

	prev, err := s.loadLocked(rec.TaskID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		// A corrupt latest checkpoint must not block progress; its number is
		// still reserved through maxNumberLocked.
		s.logger.Warn("ignoring unreadable checkpoint", zap.String("task_id", rec.TaskID), zap.Error(err))
		prev = nil
	}

	maxNum, err := s.maxNumberLocked(rec.TaskID)
	if err != nil {
		return nil, err
	}
	switch {
	case rec.CheckpointNumber == 0:
		rec.CheckpointNumber = maxNum + 1
	case rec.CheckpointNumber <= maxNum:
		return nil, fmt.Errorf("%w: checkpoint %d for %s, latest is %d", ErrOutOfOrder, rec.CheckpointNumber, rec.TaskID, maxNum)
	}

	sameAttempt := prev != nil && prev.Status.Open()
	if sameAttempt && rec.IterationCount < prev.IterationCount {
		return nil, fmt.Errorf("%w: iteration %d for %s, latest is %d", ErrOutOfOrder, rec.IterationCount, rec.TaskID, prev.IterationCount)
	}
	if rec.ID == "" {
		if sameAttempt {
			rec.ID = prev.ID
		} else {
			rec.ID = NewSessionID(now)
		}
	}
	if rec.CreatedAt.IsZero() {
		if sameAttempt {
			rec.CreatedAt = prev.CreatedAt
		} else {
			rec.CreatedAt = now
		}
	}
	rec.UpdatedAt = now
	rec.Project = s.project

	data, err := encode(rec)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, fileName(rec.TaskID, rec.CheckpointNumber))
	if err := writeFileAtomic(path, data, false); err != nil {
		return nil, fmt.Errorf("write checkpoint: %w", err)
	}

	if s.index != nil {
		err := s.index.RecordCheckpoint(state.CheckpointEntry{
			TaskID:         rec.TaskID,
			Project:        s.project,
			Number:         rec.CheckpointNumber,
			Path:           path,
			SessionID:      rec.ID,
			IterationCount: rec.IterationCount,
			Phase:          rec.Phase,
			Status:         string(rec.Status),
			AgentType:      rec.AgentType,
			CreatedAt:      now,
		})
		if err != nil {
			// Without an index entry the file would be invisible to Load and
			// its number could be handed out again.
			os.Remove(path)
			return nil, fmt.Errorf("index checkpoint: %w", err)
		}
	}

	s.logger.Debug("checkpoint saved",
		zap.String("task_id", rec.TaskID),
		zap.Int("number", rec.CheckpointNumber),
		zap.Int("iteration", rec.IterationCount),
		zap.String("phase", rec.Phase),
		zap.String("status", string(rec.Status)))

	return rec.clone(), nil
}

func (s *Store) loadLocked(taskID string) (*Record, error) {
	latest, err := s.latestFileLocked(taskID)
	if err != nil {
		return nil, err
	}
	rec, err := readRecord(latest.path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(latest.path), err)
	}
	return rec, nil
}

type checkpointFile struct {
	path    string
	number  int
	modTime time.Time
}

func (s *Store) latestFileLocked(taskID string) (*checkpointFile, error) {
	if s.index != nil {
		e, err := s.index.LatestCheckpoint(taskID, s.project)
		if err != nil {
			return nil, fmt.Errorf("query checkpoint index: %w", err)
		}
		if e != nil {
			if _, statErr := os.Stat(e.Path); statErr == nil {
				return &checkpointFile{path: e.Path, number: e.Number}, nil
			}
			s.logger.Warn("indexed checkpoint missing on disk, scanning directory",
				zap.String("task_id", taskID), zap.String("path", e.Path))
		}
	}

	files, err := s.scan(s.dir, taskID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: task %s in project %s", ErrNotFound, taskID, s.project)
	}
	return &files[len(files)-1], nil
}

func (s *Store) maxNumberLocked(taskID string) (int, error) {
	max := 0
	if s.index != nil {
		n, err := s.index.MaxCheckpointNumber(taskID, s.project)
		if err != nil {
			return 0, fmt.Errorf("query checkpoint index: %w", err)
		}
		if n > 0 {
			// The first indexed save already counted any older files.
			return n, nil
		}
	}
	// Files written before the index existed still reserve their numbers.
	for _, dir := range []string{s.dir, filepath.Join(s.dir, archiveDir)} {
		files, err := s.scan(dir, taskID)
		if err != nil {
			return 0, err
		}
		if len(files) > 0 && files[len(files)-1].number > max {
			max = files[len(files)-1].number
		}
	}
	return max, nil
}

// scan lists a task's checkpoint files in dir ordered by number, then
// modification time.
func (s *Store) scan(dir, taskID string) ([]checkpointFile, error) {
	entries, err := s.readDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session directory: %w", err)
	}

	var files []checkpointFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, n, ok := parseFileName(e.Name())
		if !ok || id != taskID {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, checkpointFile{path: filepath.Join(dir, e.Name()), number: n, modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].number != files[j].number {
			return files[i].number < files[j].number
		}
		return files[i].modTime.Before(files[j].modTime)
	})
	return files, nil
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return decode(data)
}

// validateProject accepts any single path element.
func validateProject(project string) error {
	if project == "." || project == ".." || strings.ContainsAny(project, "/\\\x00") {
		return fmt.Errorf("invalid project name %q", project)
	}
	return nil
}

const fileMarker = ".checkpoint-"

// fileName returns <taskID>.checkpoint-<NNNNNN>.md.
func fileName(taskID string, number int) string {
	return fmt.Sprintf("%s%s%06d.md", taskID, fileMarker, number)
}

func parseFileName(name string) (taskID string, number int, ok bool) {
	if !strings.HasSuffix(name, ".md") {
		return "", 0, false
	}
	i := strings.LastIndex(name, fileMarker)
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(name[i+len(fileMarker):], ".md"))
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return name[:i], n, true
}

// NewSessionID returns a session identifier of the form SESSION-<timestamp>.
func NewSessionID(t time.Time) string {
	return "SESSION-" + t.UTC().Format("20060102T150405.000000000Z")
}
