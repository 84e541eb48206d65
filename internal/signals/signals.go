// Package signals lets an operator stop running specialists by dropping a
// file into the signals directory.
package signals

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// StopFile is the name of the stop signal file.
const StopFile = "stop"

// Watcher tracks the stop signal. It watches the signals directory with
// fsnotify and also checks the file directly, so a missed event is harmless.
type Watcher struct {
	dir    string
	logger *zap.Logger

	mu      sync.RWMutex
	stopped bool
	reason  string

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// New creates the signals directory if needed and starts watching it.
func New(dir string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create signals directory: %w", err)
	}

	w := &Watcher{dir: dir, logger: logger, done: make(chan struct{})}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("signal watcher unavailable, falling back to polling", zap.Error(err))
		return w, nil
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		logger.Warn("cannot watch signals directory, falling back to polling", zap.Error(err))
		return w, nil
	}
	w.watcher = fw

	go w.watch()
	return w, nil
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == StopFile && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.markStopped(w.readReason())
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("signal watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) markStopped(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.logger.Info("stop signal received", zap.String("reason", reason))
	}
	w.stopped = true
	w.reason = reason
}

func (w *Watcher) readReason() string {
	data, err := os.ReadFile(filepath.Join(w.dir, StopFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ShouldStop returns true once a stop signal has been seen.
func (w *Watcher) ShouldStop() bool {
	if _, err := os.Stat(filepath.Join(w.dir, StopFile)); err == nil {
		w.markStopped(w.readReason())
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopped
}

// Reason returns the text written into the stop file, if any.
func (w *Watcher) Reason() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reason
}

// Clear removes the stop file and resets the signal.
func (w *Watcher) Clear() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = false
	w.reason = ""
	if err := os.Remove(filepath.Join(w.dir, StopFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear stop signal: %w", err)
	}
	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}

// SendStop writes the stop file into dir.
func SendStop(dir, reason string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}
	if reason == "" {
		reason = "stopped at " + time.Now().Format(time.RFC3339)
	}
	if err := os.WriteFile(filepath.Join(dir, StopFile), []byte(reason), 0644); err != nil {
		return fmt.Errorf("send stop signal: %w", err)
	}
	return nil
}

// Never is a stop source that never fires.
type Never struct{}

// ShouldStop always returns false.
func (Never) ShouldStop() bool { return false }
