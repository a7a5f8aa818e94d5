// Package provider adapts Amelia's driver.Message/ToolSpec shapes to the
// three real LLM provider SDKs the teacher repository already depended on,
// grounded on graph/model/{anthropic,openai,google}.
package provider

import "context"

// Message mirrors driver.Message without importing the driver package, to
// keep provider adapters free of a dependency on the orchestration layer.
type Message struct {
	Role    string
	Content string
}

// ToolSpec mirrors driver.ToolSpec.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall mirrors driver.ToolCall.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}

// ChatOut is a single-shot completion result.
type ChatOut struct {
	Text         string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// ChatModel is the minimal interface every provider adapter implements.
// Kept separate from driver.Driver because a provider only ever does one
// turn of "generate"; the agentic tool loop lives in internal/driver,
// orchestrating repeated ChatModel calls.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
