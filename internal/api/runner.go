package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/kaptinlin/jsonrepair"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// Runner provides simple text-in/text-out Claude API calls for analysis and
// synthesis, which need no tools.
type Runner struct {
	client *Client
}

// NewRunner creates a new API runner.
func NewRunner(client *Client) *Runner {
	return &Runner{client: client}
}

// Complete executes a prompt with an optional system message and returns the
// text response and token usage.
func (r *Runner) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, models.Usage, error) {
	params := anthropic.MessageNewParams{
		Model:     r.client.Model(),
		MaxTokens: r.client.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := r.client.sdk().Messages.New(ctx, params)
	if err != nil {
		return "", models.Usage{}, fmt.Errorf("API call failed: %w", err)
	}
	return textOf(resp), r.client.usage(resp.Usage), nil
}

// CompleteJSON executes a prompt and decodes the JSON object in the response
// into target. Usage is reported even when decoding fails.
func (r *Runner) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, target any) (models.Usage, error) {
	text, usage, err := r.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return usage, err
	}
	return usage, DecodeJSON(text, target)
}

// DecodeJSON finds the outermost JSON object or array in a model response and
// decodes it, repairing common defects such as trailing commas, single
// quotes and truncated brackets.
func DecodeJSON(response string, target any) error {
	raw := extractJSON(response)
	if raw == "" {
		return fmt.Errorf("no valid JSON found in response: %s", truncate(response, 200))
	}

	if err := json.Unmarshal([]byte(raw), target); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return fmt.Errorf("repair JSON: %w (response: %s)", err, truncate(raw, 200))
	}
	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return fmt.Errorf("parse JSON: %w (response: %s)", err, truncate(raw, 200))
	}
	return nil
}

// extractJSON strips markdown fences and prose around the JSON payload.
// A missing closing bracket is left for the repair step.
func extractJSON(s string) string {
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.Index(rest, "\n"); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = rest
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return strings.TrimSpace(s[start:])
	}
	return s[start : end+1]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
