package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeLog struct {
	mu       sync.Mutex
	appended []WorkflowEvent
	appendErr error
}

func (l *fakeLog) Append(_ context.Context, e WorkflowEvent) error {
	if l.appendErr != nil {
		return l.appendErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appended = append(l.appended, e)
	return nil
}

func (l *fakeLog) Lookup(_ context.Context, eventID string) (WorkflowEvent, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.appended {
		if e.ID == eventID {
			return e, true, nil
		}
	}
	return WorkflowEvent{}, false, nil
}

func (l *fakeLog) After(_ context.Context, workflowID string, sequence int64) ([]WorkflowEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []WorkflowEvent
	for _, e := range l.appended {
		if e.WorkflowID == workflowID && e.Sequence > sequence {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingSubscriber struct {
	mu     sync.Mutex
	events []WorkflowEvent
}

func (s *recordingSubscriber) Notify(e WorkflowEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestBus_Emit_AssignsMonotonicPerWorkflowSequence(t *testing.T) {
	bus := NewBus(nil)

	first, err := bus.Emit(context.Background(), WorkflowEvent{WorkflowID: "wf-1", EventType: "node_start"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := bus.Emit(context.Background(), WorkflowEvent{WorkflowID: "wf-1", EventType: "node_end"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	otherWorkflow, err := bus.Emit(context.Background(), WorkflowEvent{WorkflowID: "wf-2", EventType: "node_start"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Sequence != 1 || second.Sequence != 2 {
		t.Errorf("expected sequences 1,2 for wf-1, got %d,%d", first.Sequence, second.Sequence)
	}
	if otherWorkflow.Sequence != 1 {
		t.Errorf("expected a fresh workflow to start its own sequence at 1, got %d", otherWorkflow.Sequence)
	}
	if first.ID == "" || second.ID == "" {
		t.Error("expected every event to be assigned an id")
	}
}

func TestBus_Emit_PersistsBeforeFanningOut(t *testing.T) {
	log := &fakeLog{}
	bus := NewBus(log)

	if _, err := bus.Emit(context.Background(), WorkflowEvent{WorkflowID: "wf-1", EventType: "node_start"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(log.appended) != 1 {
		t.Fatalf("expected the event appended to the log, got %d entries", len(log.appended))
	}
}

func TestBus_Emit_PropagatesLogAppendError(t *testing.T) {
	log := &fakeLog{appendErr: errors.New("disk full")}
	bus := NewBus(log)

	if _, err := bus.Emit(context.Background(), WorkflowEvent{WorkflowID: "wf-1"}); err == nil {
		t.Fatal("expected the log append error to propagate")
	}
}

func TestBus_Emit_FansOutToEverySubscriber(t *testing.T) {
	bus := NewBus(nil)
	a := &recordingSubscriber{}
	b := &recordingSubscriber{}
	bus.Subscribe(a)
	bus.Subscribe(b)

	if _, err := bus.Emit(context.Background(), WorkflowEvent{WorkflowID: "wf-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a.count() == 1 && b.count() == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected both subscribers notified, got a=%d b=%d", a.count(), b.count())
}

func TestBus_Emit_DefaultsLevelFromClassify(t *testing.T) {
	bus := NewBus(nil)
	e, err := bus.Emit(context.Background(), WorkflowEvent{WorkflowID: "wf-1", EventType: "workflow_failed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Level != LevelError {
		t.Errorf("expected workflow_failed classified as error, got %q", e.Level)
	}
}
