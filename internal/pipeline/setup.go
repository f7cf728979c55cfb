package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"slrforge/internal/artifact"
	"slrforge/internal/llm"
)

// projectSetupStage turns a raw research idea into the ProjectContext root
// artifact.
type projectSetupStage struct {
	svc *Services
}

func (s *projectSetupStage) Name() string              { return StageProjectSetup }
func (s *projectSetupStage) Requires() []artifact.Type { return nil }
func (s *projectSetupStage) Produces() artifact.Type   { return artifact.TypeProjectContext }

// contextDraft is the generated payload of a ProjectContext.
type contextDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Discipline  string   `json:"discipline"`
	Keywords    []string `json:"keywords"`
}

func checkContextDraft(doc json.RawMessage) []string {
	var d contextDraft
	if err := json.Unmarshal(doc, &d); err != nil {
		return []string{"response does not decode into the requested shape: " + err.Error()}
	}
	var problems []string
	if strings.TrimSpace(d.Title) == "" {
		problems = append(problems, "title must not be empty")
	}
	if len(d.Title) > 200 {
		problems = append(problems, "title must stay under 200 characters")
	}
	if len(d.Keywords) == 0 {
		problems = append(problems, "at least one keyword is required")
	}
	return problems
}

func (s *projectSetupStage) Run(ctx context.Context, in Inputs) (*StageResult, error) {
	res := &StageResult{StageName: StageProjectSetup}

	idea := strings.TrimSpace(in.RawIdea)
	if idea == "" {
		idea = in.Param("idea")
	}
	if idea == "" {
		// Rerunning setup on an existing project regenerates from its
		// stored description.
		if pc, err := s.svc.Store.LoadProject(in.ProjectID); err == nil {
			idea = pc.Description
		}
	}
	if idea == "" {
		res.ValidationErrors = append(res.ValidationErrors, "a research idea is required to set up a project")
		return res, nil
	}

	var draft contextDraft
	outcome := s.svc.draftInto(ctx,
		llm.DraftRequest{System: drafterSystemPrompt, Prompt: setupPrompt(idea), Schema: "project_context"},
		&draft, checkContextDraft,
		func() { draft = heuristicContext(idea) },
	)

	if strings.TrimSpace(draft.Description) == "" {
		draft.Description = idea
	}
	pc := &artifact.ProjectContext{
		ID:            in.ProjectID,
		Title:         draft.Title,
		Description:   draft.Description,
		Discipline:    draft.Discipline,
		Keywords:      draft.Keywords,
		Status:        artifact.StatusDraft,
		ModelMetadata: outcome.meta,
	}

	res.Draft = pc
	res.Metadata = outcome.meta
	res.Warnings = outcome.warnings
	res.Prompts = []string{approvalPrompt(artifact.TypeProjectContext, StageProblemFraming)}
	return res, nil
}
