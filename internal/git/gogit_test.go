package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, *gogit.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	return dir, repo
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func commitAll(t *testing.T, repo *gogit.Repository, msg string) {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddWithOptions(&gogit.AddOptions{All: true}))
	_, err = wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func TestGoGitDetector_CleanTree(t *testing.T) {
	dir, repo := initRepo(t)
	writeFile(t, dir, "main.go", "package main\n")
	commitAll(t, repo, "initial")

	d := NewGoGitDetector(Options{})
	base, err := d.Snapshot(dir)
	require.NoError(t, err)
	assert.Len(t, base, 40)

	files, err := d.ChangedFiles(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestGoGitDetector_UncommittedAndCommitted(t *testing.T) {
	dir, repo := initRepo(t)
	writeFile(t, dir, "main.go", "package main\n")
	writeFile(t, dir, "keep.go", "package main\n")
	commitAll(t, repo, "initial")

	d := NewGoGitDetector(Options{Exclude: []string{".squadron"}})
	_, err := d.Snapshot(dir)
	require.NoError(t, err)

	writeFile(t, dir, "lib/util.go", "package lib\n")
	commitAll(t, repo, "add util")

	writeFile(t, dir, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, dir, "new.txt", "hello")
	writeFile(t, dir, ".squadron/sessions/demo/T-1.checkpoint-000001.md", "---")

	files, err := d.ChangedFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/util.go", "main.go", "new.txt"}, files)
}

func TestGoGitDetector_UnbornHead(t *testing.T) {
	dir, repo := initRepo(t)

	d := NewGoGitDetector(Options{})
	base, err := d.Snapshot(dir)
	require.NoError(t, err)
	assert.Empty(t, base)

	writeFile(t, dir, "a.go", "package a\n")
	commitAll(t, repo, "first")

	files, err := d.ChangedFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, files)
}

func TestGoGitDetector_SetBaselineKeepsEarlierCommits(t *testing.T) {
	dir, repo := initRepo(t)
	writeFile(t, dir, "main.go", "package main\n")
	commitAll(t, repo, "initial")

	first := NewGoGitDetector(Options{})
	base, err := first.Snapshot(dir)
	require.NoError(t, err)

	writeFile(t, dir, "fix.go", "package main\n")
	commitAll(t, repo, "fix before interruption")

	// A new process restores the stored baseline instead of snapshotting again.
	resumed := NewGoGitDetector(Options{})
	require.NoError(t, resumed.SetBaseline(dir, base))
	files, err := resumed.ChangedFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"fix.go"}, files)

	fresh := NewGoGitDetector(Options{})
	_, err = fresh.Snapshot(dir)
	require.NoError(t, err)
	files, err = fresh.ChangedFiles(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestGoGitDetector_SetBaselineRejectsUnknownCommit(t *testing.T) {
	dir, repo := initRepo(t)
	writeFile(t, dir, "main.go", "package main\n")
	commitAll(t, repo, "initial")

	d := NewGoGitDetector(Options{})
	assert.Error(t, d.SetBaseline(dir, "not-a-hash"))
	assert.Error(t, d.SetBaseline(dir, "0123456789012345678901234567890123456789"))
	assert.NoError(t, d.SetBaseline(dir, ""))
}

func TestGoGitDetector_NotARepo(t *testing.T) {
	d := NewGoGitDetector(Options{})
	_, err := d.ChangedFiles(t.TempDir())
	assert.Error(t, err)
}

func TestOptionsExcluded(t *testing.T) {
	o := Options{Exclude: []string{".squadron/", "vendor"}}
	assert.True(t, o.excluded(".squadron/state.db"))
	assert.True(t, o.excluded("vendor"))
	assert.False(t, o.excluded("vendored/x.go"))
	assert.False(t, o.excluded("main.go"))
}
