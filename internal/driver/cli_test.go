package driver

import (
	"context"
	"testing"

	"github.com/amelia-orch/amelia/internal/errs"
	"github.com/amelia-orch/amelia/internal/state"
)

func TestCLIDriver_GenerateEchoesStdinThroughTheCommand(t *testing.T) {
	d := NewCLIDriver("sh", "-c", "cat")
	out, err := d.Generate(context.Background(), "the prompt text", "", nil, state.DriverSession{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Content != "the prompt text" {
		t.Errorf("expected the command's stdout to be the prompt text, got %q", out.Content)
	}
}

func TestCLIDriver_GenerateWrapsFailureAsTransient(t *testing.T) {
	d := NewCLIDriver("sh", "-c", "exit 1")
	_, err := d.Generate(context.Background(), "hi", "", nil, state.DriverSession{})
	if err == nil {
		t.Fatal("expected a command failure to surface")
	}
	if !errs.IsRetryable(err) {
		t.Error("expected a CLI command failure to be wrapped as a retryable TransientProviderError")
	}
}

func TestCLIDriver_ExecuteAgenticParsesStreamJSONFrames(t *testing.T) {
	d := NewCLIDriver("sh", "-c", `printf '{"kind":"text","text":"hello from cli"}\n'`)

	var frames []AgenticMessage
	_, err := d.ExecuteAgentic(context.Background(), "do it", ".", "", nil, state.DriverSession{}, func(m AgenticMessage) {
		frames = append(frames, m)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || frames[0].Kind != AgenticText || frames[0].Text != "hello from cli" {
		t.Fatalf("expected one parsed text frame, got %+v", frames)
	}
}

func TestCLIDriver_ExecuteAgenticFallsBackToTextOnUnparsableLine(t *testing.T) {
	d := NewCLIDriver("sh", "-c", `printf 'not json at all\n'`)

	var frames []AgenticMessage
	_, err := d.ExecuteAgentic(context.Background(), "do it", ".", "", nil, state.DriverSession{}, func(m AgenticMessage) {
		frames = append(frames, m)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || frames[0].Kind != AgenticText || frames[0].Text != "not json at all" {
		t.Fatalf("expected the unparsable line to fall back to a text frame, got %+v", frames)
	}
}

func TestCLIDriver_CleanupSessionIsANoop(t *testing.T) {
	d := NewCLIDriver("sh", "-c", "true")
	had, err := d.CleanupSession(context.Background(), state.DriverSession{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if had {
		t.Error("expected the CLI driver's CleanupSession to always report false")
	}
}
