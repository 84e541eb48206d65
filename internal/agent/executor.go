// Package agent runs one specialist against one subtask inside an iteration
// budget, checkpointing every iteration.
package agent

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/squadron/internal/specialist"
	"github.com/ShayCichocki/squadron/pkg/models"
)

// Execution statuses reported by executors.
const (
	ExecutionCompleted = "completed"
	ExecutionStopped   = "stopped"
	ExecutionError     = "error"
)

// Attempt is one call into an executor.
type Attempt struct {
	SubTask models.SubTask
	// Iteration is 1-based.
	Iteration int
	// Budget is the specialist's iteration budget.
	Budget int
	// Feedback is what the previous verification said, empty on the first try.
	Feedback string
	// PreviousOutput is the last output, carried across a resume.
	PreviousOutput string
}

// Execution is what an executor produced for one attempt.
type Execution struct {
	Output string
	Status string
	// Evidence lists actions taken, e.g. files written or commands run.
	Evidence []string
	Usage    models.Usage
	// Cost is set when the provider reports spend itself. Zero means the
	// ledger prices Usage.
	Cost float64
}

// Executor runs one attempt of a specialist.
type Executor interface {
	Execute(ctx context.Context, a Attempt) (*Execution, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, a Attempt) (*Execution, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, a Attempt) (*Execution, error) {
	return f(ctx, a)
}

// ProviderFactory builds the executor for a specialist type.
type ProviderFactory interface {
	ForType(t models.SpecialistType) (Executor, error)
}

// Builder constructs an executor for one specialist definition.
type Builder func(def specialist.Definition) Executor

// Factory resolves specialist definitions from a catalog and hands them to a
// builder, so each executor carries its specialist's system prompt.
type Factory struct {
	catalog *specialist.Catalog
	build   Builder
}

// NewFactory creates a factory.
func NewFactory(catalog *specialist.Catalog, build Builder) *Factory {
	return &Factory{catalog: catalog, build: build}
}

// ForType returns the executor for t.
func (f *Factory) ForType(t models.SpecialistType) (Executor, error) {
	def, ok := f.catalog.Get(t)
	if !ok {
		return nil, fmt.Errorf("no specialist definition for %q", t)
	}
	return f.build(def), nil
}
