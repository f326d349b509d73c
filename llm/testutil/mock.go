// Package testutil provides test doubles for the llm package.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/c360studio/semlogic/llm"
)

// ErrNoResponse is returned when a MockCompleter runs out of scripted
// responses and has no Fallback.
var ErrNoResponse = errors.New("mock completer: no scripted response left")

// Call is one captured Complete invocation.
type Call struct {
	Prompt    string
	MaxTokens int
	Trace     llm.TraceContext
}

// MockCompleter is a thread-safe llm.Completer that replays scripted
// responses in order and captures every prompt.
//
// Usage:
//
//	mock := &MockCompleter{
//	    Responses: []string{`{"steps": [...]}`, "IF x > 1:\n    PRINT(ok)"},
//	}
//
//	// Stage-keyed responses (reasoning, pseudocode, code, repair):
//	mock := &MockCompleter{
//	    ByStage: map[string][]string{"code": {"def broken(:"}},
//	}
type MockCompleter struct {
	// Responses are returned in sequence when ByStage has no entry for the
	// call's stage.
	Responses []string

	// ByStage scripts responses per stage, keyed by the trace stage.
	ByStage map[string][]string

	// Fallback is returned once scripted responses are exhausted. When
	// empty, ErrNoResponse is returned instead.
	Fallback string

	// Err, if set, is returned from every call.
	Err error

	mu         sync.Mutex
	calls      []Call
	next       int
	stageIndex map[string]int
}

// Complete implements llm.Completer.
func (m *MockCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trace := llm.GetTraceContext(ctx)
	m.calls = append(m.calls, Call{Prompt: prompt, MaxTokens: maxTokens, Trace: trace})

	if m.Err != nil {
		return "", m.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if scripted, ok := m.ByStage[trace.Stage]; ok {
		if m.stageIndex == nil {
			m.stageIndex = make(map[string]int)
		}
		if i := m.stageIndex[trace.Stage]; i < len(scripted) {
			m.stageIndex[trace.Stage] = i + 1
			return scripted[i], nil
		}
	} else if m.next < len(m.Responses) {
		resp := m.Responses[m.next]
		m.next++
		return resp, nil
	}

	if m.Fallback != "" {
		return m.Fallback, nil
	}
	return "", ErrNoResponse
}

// Calls returns a copy of the captured calls.
func (m *MockCompleter) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of times Complete was called.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Stages returns the trace stage of every call, in order.
func (m *MockCompleter) Stages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Trace.Stage
	}
	return out
}

// Reset clears captured calls and rewinds scripted responses.
func (m *MockCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
	m.stageIndex = nil
}
