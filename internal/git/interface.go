// Package git reports which files a task has touched in a working tree.
package git

import (
	"sort"
	"strings"
)

// ChangeDetector lists files changed in a working tree since the baseline
// recorded for it.
type ChangeDetector interface {
	// Snapshot records the current HEAD of workingDir as the baseline and
	// returns its identifier. An unborn HEAD yields an empty baseline.
	Snapshot(workingDir string) (string, error)
	// SetBaseline restores a baseline returned by an earlier Snapshot, so a
	// resumed task keeps diffing against the commit it started from.
	SetBaseline(workingDir, baseline string) error
	// ChangedFiles returns repo-relative paths that differ from the baseline,
	// committed or not, sorted and de-duplicated.
	ChangedFiles(workingDir string) ([]string, error)
}

// Options configure a detector.
type Options struct {
	// Exclude lists repo-relative path prefixes that never count as changes,
	// such as the state directory.
	Exclude []string
}

func (o Options) excluded(path string) bool {
	for _, p := range o.Exclude {
		p = strings.TrimSuffix(p, "/")
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// collect filters, de-duplicates and sorts paths.
func (o Options) collect(paths map[string]struct{}) []string {
	out := make([]string, 0, len(paths))
	for p := range paths {
		if p == "" || o.excluded(p) {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
