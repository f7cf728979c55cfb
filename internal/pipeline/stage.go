// Package pipeline composes the HITL review stages: each stage consumes
// approved upstream artifacts, produces a draft for human review, and the
// controller gates every run on those approvals.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"slrforge/internal/artifact"
	"slrforge/internal/config"
	"slrforge/internal/export"
	"slrforge/internal/llm"
	"slrforge/internal/logging"
	"slrforge/internal/search"
)

// Stage names, in pipeline order.
const (
	StageProjectSetup      = "project-setup"
	StageProblemFraming    = "problem-framing"
	StageResearchQuestions = "research-questions"
	StageConceptExpansion  = "search-concept-expansion"
	StageQueryPlan         = "database-query-plan"
	StageQueryExecution    = "query-execution"
	StageScreening         = "screening-criteria"
	StageStrategyExport    = "strategy-export"
)

// StageNames returns every stage name in pipeline order.
func StageNames() []string {
	return []string{
		StageProjectSetup,
		StageProblemFraming,
		StageResearchQuestions,
		StageConceptExpansion,
		StageQueryPlan,
		StageQueryExecution,
		StageScreening,
		StageStrategyExport,
	}
}

// Inputs carries everything a stage run may need. Params are free-form
// stage options ("databases", "max_results", ...).
type Inputs struct {
	ProjectID string
	RawIdea   string
	Params    map[string]string
}

// Param returns a trimmed stage option, or "" when unset.
func (in Inputs) Param(key string) string {
	return strings.TrimSpace(in.Params[key])
}

// StageResult is what every stage run returns. ValidationErrors are fatal
// (Draft is nil when they are set); Warnings are advisory; Prompts suggest
// the reviewer's next actions.
type StageResult struct {
	StageName        string                              `json:"stage_name"`
	Draft            artifact.Artifact                   `json:"draft_artifact,omitempty"`
	Extra            map[artifact.Type]artifact.Artifact `json:"extra_artifacts,omitempty"`
	Metadata         *artifact.ModelMetadata             `json:"metadata,omitempty"`
	Prompts          []string                            `json:"prompts,omitempty"`
	ValidationErrors []string                            `json:"validation_errors,omitempty"`
	Warnings         []string                            `json:"warnings,omitempty"`
}

// Failed reports whether the run produced no draft.
func (r *StageResult) Failed() bool { return len(r.ValidationErrors) > 0 }

// Stage is one named unit of the pipeline.
type Stage interface {
	Name() string
	// Requires lists the artifact types that must be approved before Run.
	Requires() []artifact.Type
	// Produces names the stage's primary draft artifact.
	Produces() artifact.Type
	Run(ctx context.Context, in Inputs) (*StageResult, error)
}

// Services bundles the shared dependencies every stage draws on.
type Services struct {
	Store    *artifact.Store
	Drafter  llm.Drafter
	Executor *search.Executor
	Bundler  *export.Bundler
	Cfg      *config.Config
}

const promptVersion = "v1"

// draftOutcome describes how a drafted payload was produced.
type draftOutcome struct {
	meta     *artifact.ModelMetadata
	warnings []string
}

// draftInto fills payload from the drafter's critique loop, falling back to
// the deterministic heuristic on any drafter failure. fallback must leave
// payload fully populated; check critiques candidate documents between
// rounds.
func (s *Services) draftInto(ctx context.Context, req llm.DraftRequest, payload interface{}, check llm.Checker, fallback func()) draftOutcome {
	meta := &artifact.ModelMetadata{
		ModelName:     s.Drafter.Name(),
		Mode:          modeFor(s.Drafter),
		PromptVersion: promptVersion,
		GeneratedAt:   time.Now().UTC(),
	}
	out := draftOutcome{meta: meta}

	began := time.Now()
	res, err := llm.Critique(ctx, s.Drafter, req, check, s.Cfg.LLM.MaxCritiqueRounds)
	logging.Audit().DraftCall(s.Drafter.Name(), time.Since(began).Milliseconds(), err == nil, errText(err))
	if err == nil {
		err = json.Unmarshal(res.Document, payload)
		if err == nil {
			if len(res.Problems) > 0 {
				meta.Notes = "accepted with outstanding critique: " + strings.Join(res.Problems, "; ")
				out.warnings = append(out.warnings, res.Problems...)
			}
			return out
		}
	}

	logging.Audit().DraftFallback(s.Drafter.Name(), errText(err))
	logging.PipelineDebug("Drafter %s unavailable for %s (%v); using deterministic fallback", s.Drafter.Name(), req.Schema, err)
	fallback()
	meta.ModelName = "heuristic"
	meta.Mode = artifact.ModeDeterministic
	meta.Notes = fmt.Sprintf("drafter unavailable: %v", err)
	out.warnings = append(out.warnings, fmt.Sprintf("%s drafted deterministically (%s backend unavailable)", req.Schema, s.Drafter.Name()))
	return out
}

// deterministicMeta stamps an artifact generated without any LLM call.
// component names the generator ("query-synthesis", "search-executor", ...).
func deterministicMeta(component string) *artifact.ModelMetadata {
	return &artifact.ModelMetadata{
		ModelName:     component,
		Mode:          artifact.ModeDeterministic,
		PromptVersion: promptVersion,
		GeneratedAt:   time.Now().UTC(),
	}
}

func modeFor(d llm.Drafter) string {
	if d.Name() == "mock" {
		return artifact.ModeMock
	}
	return artifact.ModeLLM
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// newHeader starts a draft header for one of the project's artifacts.
func newHeader(projectID string, meta *artifact.ModelMetadata) artifact.Header {
	return artifact.Header{
		ProjectID:     projectID,
		Status:        artifact.StatusDraft,
		ModelMetadata: meta,
	}
}

// approvalPrompt phrases the standard next action after a stage produced a
// draft.
func approvalPrompt(t artifact.Type, next string) string {
	if next == "" {
		return fmt.Sprintf("Review the %s draft, edit as needed, then approve it.", t)
	}
	return fmt.Sprintf("Review the %s draft, edit as needed, then approve it to unlock %s.", t, next)
}
