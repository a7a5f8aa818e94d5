// Package driver provides the uniform LLM transport interface (spec.md
// §4.2): generate/execute_agentic over an in-process API driver, a CLI-tool
// driver, and a sandbox-container driver, all behind the same Driver
// interface so agent logic never knows which transport it is talking to.
package driver

import (
	"context"

	"github.com/amelia-orch/amelia/internal/state"
)

// Message is one turn in a conversation sent to a Driver.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool an agent may invoke during execute_agentic.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a request from the LLM to invoke a named tool.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}

// GenerateOutput is the result of a Generate call. Content always holds the
// raw model text; Structured is set only when a Schema was supplied.
type GenerateOutput struct {
	Content    string
	Structured map[string]interface{}
	Session    state.DriverSession
}

// Schema, when non-nil, is a JSON-Schema-shaped map the driver must make the
// model's output conform to (spec.md §4.2). Validation failure surfaces as
// *errs.SchemaValidationError, distinct from a transport-level
// *errs.TransientProviderError.
type Schema map[string]interface{}

// AgenticKind enumerates the AgenticMessage stream variants (spec.md §4.2).
type AgenticKind string

const (
	AgenticThinking   AgenticKind = "thinking"
	AgenticToolCall   AgenticKind = "tool_call"
	AgenticToolResult AgenticKind = "tool_result"
	AgenticText       AgenticKind = "text"
	AgenticResult     AgenticKind = "result"
)

// AgenticMessage is one frame of the execute_agentic stream. Usage is
// deliberately not a stream variant: per spec.md §9 Open Question (a), usage
// is captured by the driver and exposed via GetUsage, never yielded to
// callers.
type AgenticMessage struct {
	Kind       AgenticKind
	Thinking   string
	ToolName   string
	ToolArgs   map[string]interface{}
	ToolResult map[string]interface{}
	Text       string
	Result     string
}

// Usage accumulates token counts across every call made through one
// driver instance.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Driver is the uniform transport adapter every agent role talks to,
// regardless of whether the call goes to a direct API, a wrapped CLI tool,
// or a sandboxed container (spec.md §4.2).
type Driver interface {
	// Generate sends a single prompt (with optional system prompt and
	// schema) and returns text or, if schema is set, a validated structured
	// value, plus the driver session to carry forward.
	Generate(ctx context.Context, prompt string, system string, schema Schema, session state.DriverSession) (GenerateOutput, error)

	// ExecuteAgentic runs an agentic loop (the agent may call tools,
	// think, and produce a final result) and streams AgenticMessage frames
	// to the supplied sink until the loop terminates.
	ExecuteAgentic(ctx context.Context, prompt string, cwd string, instructions string, allowedTools []string, session state.DriverSession, sink func(AgenticMessage)) (state.DriverSession, error)

	// GetUsage returns the accumulated token usage captured across this
	// driver instance's calls (spec.md §9 Open Question (a)).
	GetUsage() Usage

	// CleanupSession releases any driver-held resources (e.g. a CLI
	// subprocess) tied to a conversation. Returns whether anything was
	// actually cleaned up; stateless drivers (container) always return
	// false.
	CleanupSession(ctx context.Context, session state.DriverSession) (bool, error)
}
