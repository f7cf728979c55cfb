// Package llm drafts structured artifact content. A Drafter takes a framed
// prompt and returns a JSON document; backends cover the hosted APIs plus a
// mock for tests and a disabled mode in which every stage uses its
// deterministic fallback.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"slrforge/internal/config"
	"slrforge/internal/fault"
)

// DraftRequest frames one drafting call.
type DraftRequest struct {
	// System sets the drafter's role for the call.
	System string
	// Prompt is the stage-specific instruction, including any context.
	Prompt string
	// Schema names the JSON shape the caller expects back. The mock backend
	// keys canned responses on it; real backends get the shape from Prompt.
	Schema string
}

// Drafter produces a JSON document satisfying the request. Implementations
// must return either a valid JSON value or an error, never prose.
type Drafter interface {
	Name() string
	Draft(ctx context.Context, req DraftRequest) (json.RawMessage, error)
}

// New returns the drafter selected by cfg.LLM.Provider.
func New(cfg *config.Config) (Drafter, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "gemini":
		return NewGemini(cfg)
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "mock":
		return NewMock(), nil
	case "deterministic":
		return Disabled{}, nil
	default:
		return nil, fault.Validation("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// Disabled is the no-LLM backend. Every Draft fails, which routes each stage
// to its deterministic heuristic.
type Disabled struct{}

func (Disabled) Name() string { return "deterministic" }

func (Disabled) Draft(ctx context.Context, req DraftRequest) (json.RawMessage, error) {
	return nil, fault.Validation("drafting disabled: deterministic mode")
}

// extractJSON pulls the JSON value out of a model response, tolerating code
// fences and surrounding prose.
func extractJSON(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	if fenced := stripFence(s); fenced != "" {
		s = fenced
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, fault.Corrupt(nil, "response contains no JSON value")
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return nil, fault.Corrupt(nil, "response contains an unterminated JSON value")
	}
	candidate := s[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, fault.Corrupt(nil, "response JSON does not parse")
	}
	return json.RawMessage(candidate), nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return ""
	}
	rest := s[3:]
	if i := strings.Index(rest, "\n"); i >= 0 {
		rest = rest[i+1:]
	}
	if i := strings.LastIndex(rest, "```"); i >= 0 {
		return strings.TrimSpace(rest[:i])
	}
	return ""
}
