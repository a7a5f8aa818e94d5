package driver

import (
	"context"
	"sync"

	"github.com/amelia-orch/amelia/internal/state"
)

// MockDriver is a deterministic test double for Driver, adapted from the
// teacher's model.MockChatModel: a queue of canned responses, call history
// tracking, and optional error injection, all thread-safe.
type MockDriver struct {
	// GenerateResponses is consumed in order by Generate; the last entry
	// repeats once exhausted.
	GenerateResponses []GenerateOutput
	// AgenticResponses is consumed in order by ExecuteAgentic.
	AgenticResponses [][]AgenticMessage
	// Err, if set, is returned instead of a response.
	Err error

	GenerateCalls []MockGenerateCall
	AgenticCalls  []MockAgenticCall

	mu            sync.Mutex
	genIdx        int
	agenticIdx    int
	usage         Usage
	cleanupCalled []state.DriverSession
}

// MockGenerateCall records one Generate invocation.
type MockGenerateCall struct {
	Prompt string
	System string
	Schema Schema
}

// MockAgenticCall records one ExecuteAgentic invocation.
type MockAgenticCall struct {
	Prompt       string
	Cwd          string
	AllowedTools []string
}

func (m *MockDriver) Generate(_ context.Context, prompt, system string, schema Schema, session state.DriverSession) (GenerateOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GenerateCalls = append(m.GenerateCalls, MockGenerateCall{Prompt: prompt, System: system, Schema: schema})
	m.usage.InputTokens += len(prompt) / 4
	m.usage.OutputTokens += 16

	if m.Err != nil {
		return GenerateOutput{}, m.Err
	}
	if len(m.GenerateResponses) == 0 {
		return GenerateOutput{Session: session}, nil
	}

	idx := m.genIdx
	if idx >= len(m.GenerateResponses) {
		idx = len(m.GenerateResponses) - 1
	} else {
		m.genIdx++
	}
	out := m.GenerateResponses[idx]
	if out.Session.Model == "" {
		out.Session = session
	}
	return out, nil
}

func (m *MockDriver) ExecuteAgentic(ctx context.Context, prompt, cwd, _ string, allowedTools []string, session state.DriverSession, sink func(AgenticMessage)) (state.DriverSession, error) {
	m.mu.Lock()
	m.AgenticCalls = append(m.AgenticCalls, MockAgenticCall{Prompt: prompt, Cwd: cwd, AllowedTools: allowedTools})
	if m.Err != nil {
		err := m.Err
		m.mu.Unlock()
		return session, err
	}
	var frames []AgenticMessage
	if len(m.AgenticResponses) > 0 {
		idx := m.agenticIdx
		if idx >= len(m.AgenticResponses) {
			idx = len(m.AgenticResponses) - 1
		} else {
			m.agenticIdx++
		}
		frames = m.AgenticResponses[idx]
	}
	m.usage.InputTokens += len(prompt) / 4
	m.mu.Unlock()

	for _, f := range frames {
		if ctx.Err() != nil {
			return session, ctx.Err()
		}
		sink(f)
	}
	return session, nil
}

func (m *MockDriver) GetUsage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

func (m *MockDriver) CleanupSession(_ context.Context, session state.DriverSession) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupCalled = append(m.cleanupCalled, session)
	return true, nil
}

// Reset clears call history and response indices so the mock can be reused
// across test cases.
func (m *MockDriver) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateCalls = nil
	m.AgenticCalls = nil
	m.genIdx = 0
	m.agenticIdx = 0
	m.usage = Usage{}
}
