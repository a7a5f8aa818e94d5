package driver

import "testing"

func TestToolRegistry_SpecsOnlyIncludesAllowedAndKnown(t *testing.T) {
	registry := ToolRegistry{"echo": echoTool{}}

	specs := registry.specs([]string{"echo", "unknown"})
	if len(specs) != 1 {
		t.Fatalf("expected exactly one resolved spec, got %d", len(specs))
	}
	if specs[0].Name != "echo" {
		t.Errorf("expected tool name %q, got %q", "echo", specs[0].Name)
	}
	if specs[0].Description != "echoes its input" {
		t.Errorf("expected the tool's description to be carried over, got %q", specs[0].Description)
	}
}

func TestToolRegistry_SpecsEmptyWhenNoneAllowed(t *testing.T) {
	registry := ToolRegistry{"echo": echoTool{}}
	if specs := registry.specs(nil); specs != nil {
		t.Errorf("expected nil specs for no allowed tools, got %v", specs)
	}
}
