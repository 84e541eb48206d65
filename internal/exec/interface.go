// Package exec runs external commands for providers and verifiers.
package exec

import (
	"context"
	"time"
)

// Command describes one external process invocation.
type Command struct {
	// Dir is the working directory; empty means the current one.
	Dir string
	// Name is the program to run.
	Name string
	// Args are passed to the program.
	Args []string
	// Stdin is written to the process input when non-empty.
	Stdin string
	// Env is appended to the inherited environment.
	Env []string
}

// Result is what a finished command produced.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Combined returns stdout followed by stderr.
func (r *Result) Combined() string {
	if len(r.Stderr) == 0 {
		return string(r.Stdout)
	}
	if len(r.Stdout) == 0 {
		return string(r.Stderr)
	}
	return string(r.Stdout) + "\n" + string(r.Stderr)
}

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command. A non-zero exit is reported through
	// Result.ExitCode with a nil error; err is set only when the process
	// could not be started or the context ended.
	Run(ctx context.Context, cmd Command) (*Result, error)

	// RunShell executes a shell command through "sh -c".
	RunShell(ctx context.Context, workDir string, command string) (*Result, error)

	// LookPath reports whether a program is available on PATH.
	LookPath(name string) (string, error)
}
