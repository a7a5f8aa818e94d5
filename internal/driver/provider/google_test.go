package provider

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestConvertGoogleMessages_SkipsEmptyContent(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: ""},
		{Role: RoleUser, Content: "do the thing"},
	}

	parts := convertGoogleMessages(messages)

	if len(parts) != 2 {
		t.Fatalf("expected empty-content messages skipped, got %d parts", len(parts))
	}
}

func TestConvertSchemaToGenai_NilSchemaReturnsNil(t *testing.T) {
	if out := convertSchemaToGenai(nil); out != nil {
		t.Errorf("expected nil schema to return nil, got %+v", out)
	}
}

func TestConvertSchemaToGenai_MapsPropertiesAndRequired(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "file path"},
		},
		"required": []string{"path"},
	}

	out := convertSchemaToGenai(schema)

	if out.Type != genai.TypeObject {
		t.Errorf("expected object type, got %v", out.Type)
	}
	prop, ok := out.Properties["path"]
	if !ok {
		t.Fatalf("expected path property to be mapped, got %+v", out.Properties)
	}
	if prop.Type != genai.TypeString || prop.Description != "file path" {
		t.Errorf("expected property type/description preserved, got %+v", prop)
	}
	if len(out.Required) != 1 || out.Required[0] != "path" {
		t.Errorf("expected required fields preserved, got %v", out.Required)
	}
}

func TestConvertSchemaToGenai_RequiredAsInterfaceSlice(t *testing.T) {
	schema := map[string]interface{}{
		"required": []interface{}{"path", "mode"},
	}

	out := convertSchemaToGenai(schema)

	if len(out.Required) != 2 || out.Required[0] != "path" || out.Required[1] != "mode" {
		t.Errorf("expected interface-slice required fields converted to strings, got %v", out.Required)
	}
}

func TestConvertGenaiType_MapsKnownTypes(t *testing.T) {
	cases := map[string]genai.Type{
		"string":  genai.TypeString,
		"number":  genai.TypeNumber,
		"integer": genai.TypeInteger,
		"boolean": genai.TypeBoolean,
		"array":   genai.TypeArray,
		"object":  genai.TypeObject,
		"bogus":   genai.TypeUnspecified,
	}
	for in, want := range cases {
		if got := convertGenaiType(in); got != want {
			t.Errorf("convertGenaiType(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConvertGoogleTools_BuildsFunctionDeclarations(t *testing.T) {
	tools := []ToolSpec{{Name: "search", Description: "search the web"}}

	out := convertGoogleTools(tools)

	if len(out) != 1 || len(out[0].FunctionDeclarations) != 1 {
		t.Fatalf("expected one tool with one function declaration, got %+v", out)
	}
	decl := out[0].FunctionDeclarations[0]
	if decl.Name != "search" || decl.Description != "search the web" {
		t.Errorf("expected name/description preserved, got %+v", decl)
	}
}

func TestConvertGoogleResponse_NoCandidatesReturnsEmpty(t *testing.T) {
	out := convertGoogleResponse(&genai.GenerateContentResponse{})
	if out.Text != "" || out.ToolCalls != nil {
		t.Errorf("expected empty response for no candidates, got %+v", out)
	}
}

func TestConvertGoogleResponse_ExtractsTextAndFunctionCalls(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []genai.Part{
						genai.Text("first line"),
						genai.Text("second line"),
						genai.FunctionCall{Name: "search", Args: map[string]interface{}{"query": "go"}},
					},
				},
			},
		},
		UsageMetadata: &genai.UsageMetadata{
			PromptTokenCount:     7,
			CandidatesTokenCount: 3,
		},
	}

	out := convertGoogleResponse(resp)

	if out.Text != "first line\nsecond line" {
		t.Errorf("expected consecutive text parts joined with newlines, got %q", out.Text)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "search" {
		t.Fatalf("expected one function call named search, got %+v", out.ToolCalls)
	}
	if out.InputTokens != 7 || out.OutputTokens != 3 {
		t.Errorf("expected usage metadata carried through, got in=%d out=%d", out.InputTokens, out.OutputTokens)
	}
}

func TestSafetyFilterError_FormatsReasonAndCategory(t *testing.T) {
	err := &SafetyFilterError{Reason: "blocked", Category: "harassment"}
	want := "google safety filter blocked content: blocked (harassment)"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
