package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Subscriber receives every emitted WorkflowEvent. Per spec.md §4.6,
// subscribers are contracted to be non-blocking; the Bus itself fans out to
// each one on its own goroutine so a slow or misbehaving subscriber cannot
// stall emission, mirroring the teacher's Emitter contract
// (graph/emit/emitter.go: "Implementations should be non-blocking").
type Subscriber interface {
	Notify(e WorkflowEvent)
}

// EventLog is the subset of internal/persistence.Store the bus needs:
// durable append for the event log, and the two lookups the WebSocket
// backfill protocol (spec.md §4.6 "Reconnect-backfill") requires. Declared
// here, not in internal/persistence, so internal/events never imports the
// storage package.
type EventLog interface {
	Append(ctx context.Context, e WorkflowEvent) error
	Lookup(ctx context.Context, eventID string) (WorkflowEvent, bool, error)
	After(ctx context.Context, workflowID string, sequence int64) ([]WorkflowEvent, error)
}

// Bus assigns each event its id and per-workflow monotonic sequence,
// persists it (if a log is configured), and fans it out to every
// subscriber. Grounded on graph/emit/emitter.go's Emitter contract, widened
// with the workflow_id-scoped sequence counter spec.md §3.3 requires ("the
// pair (workflow_id, sequence) is globally unique").
type Bus struct {
	mu          sync.Mutex
	seq         map[string]int64
	subscribers []Subscriber
	log         EventLog
}

// NewBus builds a Bus. log may be nil, in which case events are fanned out
// to subscribers but never persisted (used in tests and for an
// events-disabled deployment).
func NewBus(log EventLog) *Bus {
	return &Bus{seq: make(map[string]int64), log: log}
}

// Subscribe registers s to receive every future emitted event. It is safe to
// call concurrently with Emit: Subscribe takes the same mutex Emit uses to
// snapshot the subscriber list.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Emit stamps e with a fresh id and the next sequence number for
// e.WorkflowID, appends it to the log (if any), and fans it out to every
// subscriber on its own goroutine. The sequence assignment and log append
// happen inside the same critical section so that per-workflow event log
// writes are serialized and sequence stays monotonic with no gaps (spec.md
// §5 "writes to the event log are serialized per workflow").
func (b *Bus) Emit(ctx context.Context, e WorkflowEvent) (WorkflowEvent, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Level == "" {
		e.Level = Classify(e.EventType)
	}

	b.mu.Lock()
	b.seq[e.WorkflowID]++
	e.Sequence = b.seq[e.WorkflowID]
	if b.log != nil {
		if err := b.log.Append(ctx, e); err != nil {
			b.seq[e.WorkflowID]--
			b.mu.Unlock()
			return e, fmt.Errorf("events: append to log: %w", err)
		}
	}
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, s := range subs {
		go s.Notify(e)
	}
	return e, nil
}
