package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"slrforge/internal/artifact"
	"slrforge/internal/llm"
)

// problemFramingStage sharpens the approved project context into a problem
// statement and a first concept model. The concept model travels as an extra
// artifact so both can be reviewed independently.
type problemFramingStage struct {
	svc *Services
}

func (s *problemFramingStage) Name() string { return StageProblemFraming }

func (s *problemFramingStage) Requires() []artifact.Type {
	return []artifact.Type{artifact.TypeProjectContext}
}

func (s *problemFramingStage) Produces() artifact.Type { return artifact.TypeProblemFraming }

// framingDraft is the generated payload of a ProblemFraming.
type framingDraft struct {
	ProblemStatement string   `json:"problem_statement"`
	Goals            []string `json:"goals"`
	ScopeIn          []string `json:"scope_in"`
	ScopeOut         []string `json:"scope_out"`
	Stakeholders     []string `json:"stakeholders"`
	ResearchGap      string   `json:"research_gap"`
}

func checkFramingDraft(doc json.RawMessage) []string {
	var d framingDraft
	if err := json.Unmarshal(doc, &d); err != nil {
		return []string{"response does not decode into the requested shape: " + err.Error()}
	}
	var problems []string
	if strings.TrimSpace(d.ProblemStatement) == "" {
		problems = append(problems, "problem_statement must not be empty")
	}
	if len(d.Goals) == 0 {
		problems = append(problems, "at least one goal is required")
	}
	return problems
}

// conceptDraft is the generated payload of a ConceptModel.
type conceptDraft struct {
	Concepts  []artifact.Concept         `json:"concepts"`
	Relations []artifact.ConceptRelation `json:"relations"`
}

func checkConceptDraft(doc json.RawMessage) []string {
	var d conceptDraft
	if err := json.Unmarshal(doc, &d); err != nil {
		return []string{"response does not decode into the requested shape: " + err.Error()}
	}
	if len(d.Concepts) == 0 {
		return []string{"at least one concept is required"}
	}
	model := &artifact.ConceptModel{
		Header:    artifact.Header{ProjectID: "draft", Status: artifact.StatusDraft},
		Concepts:  d.Concepts,
		Relations: d.Relations,
	}
	if err := artifact.Validate(model); err != nil {
		return []string{err.Error()}
	}
	return nil
}

func (s *problemFramingStage) Run(ctx context.Context, in Inputs) (*StageResult, error) {
	pc, err := s.svc.Store.LoadProject(in.ProjectID)
	if err != nil {
		return nil, err
	}

	res := &StageResult{StageName: StageProblemFraming}

	var fd framingDraft
	framingOutcome := s.svc.draftInto(ctx,
		llm.DraftRequest{System: drafterSystemPrompt, Prompt: framingPrompt(pc), Schema: "problem_framing"},
		&fd, checkFramingDraft,
		func() { fd = heuristicFraming(pc) },
	)
	framing := &artifact.ProblemFraming{
		Header:           newHeader(in.ProjectID, framingOutcome.meta),
		ProblemStatement: fd.ProblemStatement,
		Goals:            fd.Goals,
		ScopeIn:          fd.ScopeIn,
		ScopeOut:         fd.ScopeOut,
		Stakeholders:     fd.Stakeholders,
		ResearchGap:      fd.ResearchGap,
	}

	var cd conceptDraft
	conceptOutcome := s.svc.draftInto(ctx,
		llm.DraftRequest{System: drafterSystemPrompt, Prompt: conceptPrompt(pc, framing), Schema: "concept_model"},
		&cd, checkConceptDraft,
		func() { cd = heuristicConcepts(pc, framing) },
	)
	model := &artifact.ConceptModel{
		Header:    newHeader(in.ProjectID, conceptOutcome.meta),
		Concepts:  cd.Concepts,
		Relations: cd.Relations,
	}

	// A draft that survives the critique budget can still be structurally
	// broken (duplicate ids, dangling relations). Drafts are never persisted
	// in that state; swap in the heuristic instead.
	if err := artifact.Validate(model); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("drafted concept model was rejected (%v); using deterministic fallback", err))
		cd = heuristicConcepts(pc, framing)
		model = &artifact.ConceptModel{
			Header:    newHeader(in.ProjectID, deterministicMeta("heuristic")),
			Concepts:  cd.Concepts,
			Relations: cd.Relations,
		}
	}

	res.Draft = framing
	res.Extra = map[artifact.Type]artifact.Artifact{artifact.TypeConceptModel: model}
	res.Metadata = framingOutcome.meta
	res.Warnings = append(res.Warnings, framingOutcome.warnings...)
	res.Warnings = append(res.Warnings, conceptOutcome.warnings...)
	res.Prompts = []string{
		approvalPrompt(artifact.TypeProblemFraming, ""),
		approvalPrompt(artifact.TypeConceptModel, StageResearchQuestions),
	}
	return res, nil
}
