package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/amelia-orch/amelia/internal/driver/provider"
	"github.com/amelia-orch/amelia/internal/errs"
	"github.com/amelia-orch/amelia/internal/state"
)

const maxAgenticTurns = 25

// APIDriver implements Driver directly against a provider.ChatModel — no
// subprocess, no container (spec.md §4.2 variant 1). Generate makes one
// call; ExecuteAgentic loops, feeding tool results back to the model until
// it stops requesting tools or maxAgenticTurns is hit.
type APIDriver struct {
	model    provider.ChatModel
	tools    ToolRegistry
	mu       sync.Mutex
	usage    Usage
	sessions map[string]bool
}

// NewAPIDriver wraps a provider.ChatModel. tools may be nil if this driver
// is never used for agentic roles.
func NewAPIDriver(model provider.ChatModel, tools ToolRegistry) *APIDriver {
	return &APIDriver{model: model, tools: tools, sessions: map[string]bool{}}
}

func (d *APIDriver) Generate(ctx context.Context, prompt, system string, schema Schema, session state.DriverSession) (GenerateOutput, error) {
	out, err := d.model.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: system},
		{Role: provider.RoleUser, Content: prompt},
	}, nil)
	if err != nil {
		return GenerateOutput{}, err
	}
	d.addUsage(out.InputTokens, out.OutputTokens)

	result := GenerateOutput{Content: out.Text, Session: session}
	if schema != nil {
		structured, err := validateAgainstSchema(out.Text, schema)
		if err != nil {
			return GenerateOutput{}, &errs.SchemaValidationError{Schema: fmt.Sprintf("%v", schema["title"]), Cause: err}
		}
		result.Structured = structured
	}
	return result, nil
}

func (d *APIDriver) ExecuteAgentic(ctx context.Context, prompt, cwd, instructions string, allowedTools []string, session state.DriverSession, sink func(AgenticMessage)) (state.DriverSession, error) {
	d.mu.Lock()
	d.sessions[session.ConversationID] = true
	d.mu.Unlock()

	specs := d.tools.specs(allowedTools)

	messages := []provider.Message{}
	if instructions != "" {
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: instructions})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: prompt})

	pspecs := make([]provider.ToolSpec, len(specs))
	for i, s := range specs {
		pspecs[i] = provider.ToolSpec{Name: s.Name, Description: s.Description, Schema: s.Schema}
	}

	for turn := 0; turn < maxAgenticTurns; turn++ {
		if ctx.Err() != nil {
			return session, ctx.Err()
		}
		out, err := d.model.Chat(ctx, messages, pspecs)
		if err != nil {
			return session, err
		}
		d.addUsage(out.InputTokens, out.OutputTokens)

		if out.Text != "" {
			sink(AgenticMessage{Kind: AgenticText, Text: out.Text})
		}
		if len(out.ToolCalls) == 0 {
			sink(AgenticMessage{Kind: AgenticResult, Result: out.Text})
			return session, nil
		}

		messages = append(messages, provider.Message{Role: provider.RoleAssistant, Content: out.Text})
		for _, tc := range out.ToolCalls {
			sink(AgenticMessage{Kind: AgenticToolCall, ToolName: tc.Name, ToolArgs: tc.Input})

			t, ok := d.tools[tc.Name]
			if !ok {
				result := map[string]interface{}{"error": fmt.Sprintf("unknown tool %q", tc.Name)}
				sink(AgenticMessage{Kind: AgenticToolResult, ToolName: tc.Name, ToolResult: result})
				messages = append(messages, toolResultMessage(tc.Name, result))
				continue
			}
			result, err := t.Call(ctx, tc.Input)
			if err != nil {
				result = map[string]interface{}{"error": err.Error()}
			}
			sink(AgenticMessage{Kind: AgenticToolResult, ToolName: tc.Name, ToolResult: result})
			messages = append(messages, toolResultMessage(tc.Name, result))
		}
	}

	sink(AgenticMessage{Kind: AgenticResult, Result: "max agentic turns reached"})
	return session, nil
}

func toolResultMessage(name string, result map[string]interface{}) provider.Message {
	b, _ := json.Marshal(result)
	return provider.Message{Role: provider.RoleUser, Content: fmt.Sprintf("tool %s result: %s", name, string(b))}
}

func (d *APIDriver) addUsage(in, out int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.usage.InputTokens += in
	d.usage.OutputTokens += out
}

func (d *APIDriver) GetUsage() Usage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usage
}

// CleanupSession forgets a conversation id recorded by ExecuteAgentic and
// reports whether it was known; there is no subprocess or container
// resource tied to it.
func (d *APIDriver) CleanupSession(_ context.Context, session state.DriverSession) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, had := d.sessions[session.ConversationID]
	delete(d.sessions, session.ConversationID)
	return had, nil
}

// validateAgainstSchema parses content as JSON and checks required top-level
// keys named in schema["required"]. Full JSON-Schema validation is out of
// scope; this mirrors what the agent prompts actually need enforced.
func validateAgainstSchema(content string, schema Schema) (map[string]interface{}, error) {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w", err)
	}
	required, _ := schema["required"].([]string)
	for _, key := range required {
		if _, ok := parsed[key]; !ok {
			return nil, fmt.Errorf("missing required field %q", key)
		}
	}
	return parsed, nil
}
