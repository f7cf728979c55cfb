package llm

import (
	"context"
	"encoding/json"
	"sync"

	"slrforge/internal/fault"
)

// Mock is the test drafter. Responses are canned per schema name and every
// request is recorded. An unstubbed schema fails, which sends the calling
// stage down its deterministic fallback.
type Mock struct {
	mu        sync.Mutex
	responses map[string][]json.RawMessage
	calls     []DraftRequest
	failWith  error
}

func NewMock() *Mock {
	return &Mock{responses: make(map[string][]json.RawMessage)}
}

func (m *Mock) Name() string { return "mock" }

// Stub cans one or more responses for a schema. Responses are consumed in
// order; the last one sticks for any further calls.
func (m *Mock) Stub(schema string, docs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		m.responses[schema] = append(m.responses[schema], json.RawMessage(doc))
	}
}

// Fail makes every subsequent Draft return err. Passing nil clears it.
func (m *Mock) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Calls returns a copy of every request seen so far.
func (m *Mock) Calls() []DraftRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DraftRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Mock) Draft(ctx context.Context, req DraftRequest) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.Timeout(err, "mock draft canceled")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	if m.failWith != nil {
		return nil, m.failWith
	}
	queue := m.responses[req.Schema]
	if len(queue) == 0 {
		return nil, fault.NotFound("no canned response for schema %q", req.Schema)
	}
	doc := queue[0]
	if len(queue) > 1 {
		m.responses[req.Schema] = queue[1:]
	}
	if !json.Valid(doc) {
		return nil, fault.Corrupt(nil, "canned response for schema %q is not JSON", req.Schema)
	}
	return doc, nil
}
