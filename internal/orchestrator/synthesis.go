package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// Synthesis sources.
const (
	SynthesisTemplate = "template"
	SynthesisProvider = "provider"
)

// maxSynthesisOutput bounds each specialist's output in a synthesis.
const maxSynthesisOutput = 2000

// SynthesisInput is what a synthesizer merges.
type SynthesisInput struct {
	TaskID      string
	Description string
	Analysis    *models.TaskAnalysis
	Results     []models.SpecialistResult
}

// Synthesis is the merged narrative.
type Synthesis struct {
	Text   string       `json:"text"`
	Source string       `json:"source"`
	Usage  models.Usage `json:"usage"`
}

// Synthesizer merges specialist outputs into one narrative.
type Synthesizer interface {
	Synthesize(ctx context.Context, in SynthesisInput) (*Synthesis, error)
}

// TemplateSynthesizer labels and concatenates the outputs.
type TemplateSynthesizer struct{}

// Synthesize never fails.
func (TemplateSynthesizer) Synthesize(_ context.Context, in SynthesisInput) (*Synthesis, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Synthesis for %s\n\n", in.TaskID)
	if first, _, _ := strings.Cut(strings.TrimSpace(in.Description), "\n"); first != "" {
		b.WriteString(first)
		b.WriteString("\n")
	}
	for _, r := range in.Results {
		fmt.Fprintf(&b, "\n## %s: %s", r.SpecialistType, r.Status)
		if r.Verdict != nil {
			fmt.Fprintf(&b, " (%s, %d iterations)", r.Verdict.Type, r.IterationsUsed)
		}
		b.WriteString("\n\n")
		if r.Verdict != nil && r.Verdict.Reason != "" {
			b.WriteString(r.Verdict.Reason)
			b.WriteString("\n\n")
		}
		if out := strings.TrimSpace(r.OutputText()); out != "" {
			b.WriteString(truncate(out, maxSynthesisOutput))
			b.WriteString("\n")
		}
	}
	return &Synthesis{Text: b.String(), Source: SynthesisTemplate}, nil
}

// Completer is the text completion call the provider synthesizer needs.
// api.Runner satisfies it.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, models.Usage, error)
}

const synthesisSystemPrompt = `You are the team lead of a group of AI coding specialists.
Merge the specialists' reports into one concise summary of what was changed, why,
and anything left for a human to check. Do not invent work nobody reported.`

// ProviderSynthesizer asks a completion provider for the narrative and falls
// back to the template on any failure.
type ProviderSynthesizer struct {
	completer Completer
	fallback  TemplateSynthesizer
	logger    *zap.Logger
}

// NewProviderSynthesizer creates a ProviderSynthesizer.
func NewProviderSynthesizer(completer Completer, logger *zap.Logger) *ProviderSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderSynthesizer{completer: completer, logger: logger}
}

// Synthesize never returns an error.
func (s *ProviderSynthesizer) Synthesize(ctx context.Context, in SynthesisInput) (*Synthesis, error) {
	draft, _ := s.fallback.Synthesize(ctx, in)

	text, usage, err := s.completer.Complete(ctx, synthesisSystemPrompt, "Task:\n"+in.Description+"\n\nReports:\n"+draft.Text)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty synthesis")
	}
	if err != nil {
		s.logger.Warn("provider synthesis failed, using template", zap.Error(err))
		draft.Usage = usage
		return draft, nil
	}
	return &Synthesis{Text: text, Source: SynthesisProvider, Usage: usage}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
