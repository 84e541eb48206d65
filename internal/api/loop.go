package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/squadron/internal/exec"
	"github.com/ShayCichocki/squadron/pkg/models"
)

// ErrStopped is returned when an operator stop signal ends a loop.
var ErrStopped = errors.New("stop signal received")

// defaultMaxTurns bounds the API calls made within one loop run.
const defaultMaxTurns = 50

// Stopper reports whether the operator asked running work to stop.
type Stopper interface {
	ShouldStop() bool
}

// AgentLoop manages the API call and tool execution cycle for one specialist
// iteration.
type AgentLoop struct {
	client   *Client
	executor *ToolExecutor
	stopper  Stopper
	onStream func(StreamEvent)
	maxTurns int
}

// StreamEvent represents an event during agent execution for streaming to UI.
type StreamEvent struct {
	Type    string // "text", "tool_use", "tool_result", "done", "error"
	Content string
	Tool    string
	Input   json.RawMessage
}

// LoopResult contains the results of an agent loop execution.
type LoopResult struct {
	Output    string
	Usage     models.Usage
	ToolCalls int
	Turns     int
	// Actions lists a short description of every tool call, in order.
	Actions []string
}

// AgentLoopConfig contains configuration for the agent loop.
type AgentLoopConfig struct {
	Client   *Client
	WorkDir  string
	Runner   exec.CommandRunner
	Stopper  Stopper
	MaxTurns int // 0 selects the default
	OnStream func(StreamEvent)
}

// NewAgentLoop creates a new agent loop with the given configuration.
func NewAgentLoop(cfg AgentLoopConfig) *AgentLoop {
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &AgentLoop{
		client:   cfg.Client,
		executor: NewToolExecutor(cfg.WorkDir, cfg.Runner),
		stopper:  cfg.Stopper,
		onStream: cfg.OnStream,
		maxTurns: maxTurns,
	}
}

func (l *AgentLoop) emit(event StreamEvent) {
	if l.onStream != nil {
		l.onStream(event)
	}
}

// Run executes the agent loop with the given prompts until the model ends its
// turn. The result carries the usage accumulated so far even on error.
func (l *AgentLoop) Run(ctx context.Context, systemPrompt, userPrompt string) (*LoopResult, error) {
	result := &LoopResult{Usage: models.Usage{Model: string(l.client.Model())}}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
	}

	for result.Turns < l.maxTurns {
		if l.stopper != nil && l.stopper.ShouldStop() {
			return result, ErrStopped
		}
		result.Turns++

		resp, err := l.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
			Model:     l.client.Model(),
			MaxTokens: l.client.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages:  messages,
			Tools:     ToolDefinitions(),
		})
		if err != nil {
			l.emit(StreamEvent{Type: "error", Content: err.Error()})
			return result, fmt.Errorf("API call failed: %w", err)
		}
		result.Usage = result.Usage.Add(l.client.usage(resp.Usage))

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var text string

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				text += variant.Text
				l.emit(StreamEvent{Type: "text", Content: variant.Text})
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				result.ToolCalls++
				result.Actions = append(result.Actions, FormatToolAction(variant.Name, variant.Input))
				l.emit(StreamEvent{Type: "tool_use", Tool: variant.Name, Input: variant.Input})
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				toolResult := l.executor.Execute(ctx, variant.Name, variant.Input)
				l.emit(StreamEvent{Type: "tool_result", Tool: variant.Name, Content: truncate(toolResult.Content, 500)})
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, toolResult.Content, toolResult.IsError))
			}
		}

		if resp.StopReason != anthropic.StopReasonToolUse || len(toolResultBlocks) == 0 {
			result.Output = text
			l.emit(StreamEvent{Type: "done"})
			return result, nil
		}

		messages = append(messages,
			anthropic.NewAssistantMessage(assistantBlocks...),
			anthropic.NewUserMessage(toolResultBlocks...))
	}

	return result, fmt.Errorf("max turns (%d) reached", l.maxTurns)
}
