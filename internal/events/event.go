// Package events implements the event bus and subscription manager (C6):
// non-blocking emission, workflow_id-filtered WebSocket fan-out, and
// reconnect backfill against the persistent event log.
package events

// Domain partitions events by the subsystem that produced them (spec.md
// §3.3). Amelia itself only ever emits "workflow"; the other domains are
// reserved for external collaborators sharing the same event log and bus.
type Domain string

const (
	DomainWorkflow   Domain = "workflow"
	DomainBrainstorm Domain = "brainstorm"
	DomainOracle     Domain = "oracle"
	DomainKnowledge  Domain = "knowledge"
)

// Level classifies an event for logging policy only (spec.md §3.3
// "Classification"); it never affects bus delivery or backfill.
type Level string

const (
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
	LevelError Level = "error"
)

// WorkflowEvent is the append-only unit of the event log and the payload
// delivered to every bus subscriber, grounded on the teacher's emit.Event
// (graph/emit/event.go) and widened with the fields spec.md §3.3 names:
// domain, sequence, agent, and a correlation id for cross-domain tracing.
type WorkflowEvent struct {
	ID            string
	Domain        Domain
	WorkflowID    string
	Sequence      int64
	Timestamp     int64 // unix millis; stamped by the caller so tests can supply a fixed value
	Agent         string
	EventType     string
	Level         Level
	Message       string
	Data          map[string]interface{}
	CorrelationID string
}

// Known event_type → Level classifications (spec.md §3.3). Any event_type
// not listed here defaults to LevelInfo. These sets drive logsink.go's zap
// level selection only; they have no bearing on bus or backfill delivery.
var (
	errorEventTypes = map[string]bool{
		"workflow_failed":           true,
		"plan_validation_failed":    true,
		"task_failed":               true,
		"sandbox_error":             true,
		"circuit_breaker_open":      true,
		"schema_validation_failed":  true,
	}
	debugEventTypes = map[string]bool{
		"node_start":       true,
		"node_end":         true,
		"checkpoint_saved": true,
		"driver_call":      true,
	}
)

// Classify returns the logging level for an event_type per the static sets
// above, falling back to LevelInfo for anything not explicitly listed.
func Classify(eventType string) Level {
	if errorEventTypes[eventType] {
		return LevelError
	}
	if debugEventTypes[eventType] {
		return LevelDebug
	}
	return LevelInfo
}
