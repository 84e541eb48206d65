package git

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GoGitDetector detects changes in-process with go-git.
type GoGitDetector struct {
	opts Options

	mu        sync.Mutex
	baselines map[string]plumbing.Hash
}

// NewGoGitDetector creates a go-git backed detector.
func NewGoGitDetector(opts Options) *GoGitDetector {
	return &GoGitDetector{opts: opts, baselines: make(map[string]plumbing.Hash)}
}

// Snapshot records HEAD as the baseline for workingDir.
func (d *GoGitDetector) Snapshot(workingDir string) (string, error) {
	repo, err := open(workingDir)
	if err != nil {
		return "", err
	}
	hash, err := headHash(repo)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.baselines[key(workingDir)] = hash
	d.mu.Unlock()

	if hash.IsZero() {
		return "", nil
	}
	return hash.String(), nil
}

// SetBaseline restores a baseline returned by Snapshot. An empty baseline
// means the repository had no commits.
func (d *GoGitDetector) SetBaseline(workingDir, baseline string) error {
	hash := plumbing.ZeroHash
	if baseline != "" {
		if !plumbing.IsHash(baseline) {
			return fmt.Errorf("baseline %q is not a commit hash", baseline)
		}
		repo, err := open(workingDir)
		if err != nil {
			return err
		}
		hash = plumbing.NewHash(baseline)
		if _, err := repo.CommitObject(hash); err != nil {
			return fmt.Errorf("load baseline %s: %w", baseline, err)
		}
	}

	d.mu.Lock()
	d.baselines[key(workingDir)] = hash
	d.mu.Unlock()
	return nil
}

// ChangedFiles returns uncommitted changes plus files touched by commits made
// since the baseline.
func (d *GoGitDetector) ChangedFiles(workingDir string) ([]string, error) {
	repo, err := open(workingDir)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]struct{})

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("worktree status: %w", err)
	}
	for path, fs := range status {
		if fs.Staging != gogit.Unmodified || fs.Worktree != gogit.Unmodified {
			paths[path] = struct{}{}
		}
	}

	d.mu.Lock()
	base, ok := d.baselines[key(workingDir)]
	d.mu.Unlock()
	if ok {
		head, err := headHash(repo)
		if err != nil {
			return nil, err
		}
		if head != base && !head.IsZero() {
			committed, err := diffCommits(repo, base, head)
			if err != nil {
				return nil, err
			}
			for _, p := range committed {
				paths[p] = struct{}{}
			}
		}
	}

	return d.opts.collect(paths), nil
}

func open(workingDir string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(workingDir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", workingDir, err)
	}
	return repo, nil
}

func headHash(repo *gogit.Repository) (plumbing.Hash, error) {
	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash(), nil
}

// diffCommits lists files changed between two commits. A zero base means the
// repository had no commits at snapshot time, so every file in head counts.
func diffCommits(repo *gogit.Repository, base, head plumbing.Hash) ([]string, error) {
	headCommit, err := repo.CommitObject(head)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", head, err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}

	var baseTree *object.Tree
	if !base.IsZero() {
		baseCommit, err := repo.CommitObject(base)
		if err != nil {
			return nil, fmt.Errorf("load commit %s: %w", base, err)
		}
		if baseTree, err = baseCommit.Tree(); err != nil {
			return nil, fmt.Errorf("load tree: %w", err)
		}
	}

	changes, err := object.DiffTree(baseTree, headTree)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}
	var out []string
	for _, c := range changes {
		if c.To.Name != "" {
			out = append(out, c.To.Name)
		}
		if c.From.Name != "" && c.From.Name != c.To.Name {
			out = append(out, c.From.Name)
		}
	}
	return out, nil
}

func key(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

var _ ChangeDetector = (*GoGitDetector)(nil)
