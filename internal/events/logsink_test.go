package events

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSink_Notify_RoutesByClassifiedLevel(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	sink.Notify(WorkflowEvent{EventType: "workflow_failed", Message: "boom"})
	sink.Notify(WorkflowEvent{EventType: "node_start", Message: "starting"})
	sink.Notify(WorkflowEvent{EventType: "task_completed", Message: "done"})

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	if entries[0].Level != zap.ErrorLevel {
		t.Errorf("expected workflow_failed logged at error, got %v", entries[0].Level)
	}
	if entries[1].Level != zap.DebugLevel {
		t.Errorf("expected node_start logged at debug, got %v", entries[1].Level)
	}
	if entries[2].Level != zap.InfoLevel {
		t.Errorf("expected task_completed logged at info, got %v", entries[2].Level)
	}
}

func TestLogSink_Notify_NilLoggerIsSafe(t *testing.T) {
	sink := NewLogSink(nil)
	sink.Notify(WorkflowEvent{EventType: "node_start"})
}
