package provider

import "testing"

func TestExtractSystemPrompt_ConcatenatesMultipleSystemMessages(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleSystem, Content: "never apologize"},
		{Role: RoleAssistant, Content: "hi"},
	}

	system, rest := extractSystemPrompt(messages)

	if system != "be terse\n\nnever apologize" {
		t.Errorf("expected both system messages concatenated, got %q", system)
	}
	if len(rest) != 2 {
		t.Fatalf("expected system messages stripped from the conversation, got %d left", len(rest))
	}
	if rest[0].Role != RoleUser || rest[1].Role != RoleAssistant {
		t.Errorf("expected user/assistant messages preserved in order, got %+v", rest)
	}
}

func TestExtractSystemPrompt_NoSystemMessagesReturnsEmptyAndOriginal(t *testing.T) {
	messages := []Message{{Role: RoleUser, Content: "hello"}}

	system, rest := extractSystemPrompt(messages)

	if system != "" {
		t.Errorf("expected no system prompt, got %q", system)
	}
	if len(rest) != 1 {
		t.Fatalf("expected the conversation untouched, got %+v", rest)
	}
}

func TestConvertMessages_PreservesOrderAndCount(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello there"},
		{Role: RoleUser, Content: "do the thing"},
	}

	out := convertMessages(messages)

	if len(out) != len(messages) {
		t.Fatalf("expected %d converted messages, got %d", len(messages), len(out))
	}
}

func TestConvertTools_MapsNameAndInputSchema(t *testing.T) {
	tools := []ToolSpec{
		{
			Name:        "read_file",
			Description: "reads a file",
			Schema: map[string]interface{}{
				"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
				"required":   []string{"path"},
			},
		},
	}

	out := convertTools(tools)

	if len(out) != 1 {
		t.Fatalf("expected one converted tool, got %d", len(out))
	}
	if out[0].OfTool == nil {
		t.Fatal("expected OfTool to be set")
	}
	if out[0].OfTool.Name != "read_file" {
		t.Errorf("expected tool name preserved, got %q", out[0].OfTool.Name)
	}
	if len(out[0].OfTool.InputSchema.Required) != 1 || out[0].OfTool.InputSchema.Required[0] != "path" {
		t.Errorf("expected required fields carried through, got %+v", out[0].OfTool.InputSchema.Required)
	}
}

func TestConvertTools_HandlesNilSchema(t *testing.T) {
	out := convertTools([]ToolSpec{{Name: "noop"}})
	if len(out) != 1 || out[0].OfTool.Name != "noop" {
		t.Fatalf("expected a tool with no schema to still convert, got %+v", out)
	}
}

func TestConvertToolInput_PassesThroughMap(t *testing.T) {
	in := map[string]interface{}{"path": "main.go"}
	out := convertToolInput(in)
	if out["path"] != "main.go" {
		t.Errorf("expected map input passed through unchanged, got %v", out)
	}
}

func TestConvertToolInput_WrapsNonMapInput(t *testing.T) {
	out := convertToolInput("just a string")
	if out["_raw"] != "just a string" {
		t.Errorf("expected non-map input wrapped under _raw, got %v", out)
	}
}

func TestConvertToolInput_NilInputReturnsNil(t *testing.T) {
	if out := convertToolInput(nil); out != nil {
		t.Errorf("expected nil input to return nil, got %v", out)
	}
}
