package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"slrforge/internal/artifact"
	"slrforge/internal/llm"
)

// conceptExpansionStage expands the approved concept model into search
// blocks: one OR-group of synonymous terms per searchable concept.
type conceptExpansionStage struct {
	svc *Services
}

func (s *conceptExpansionStage) Name() string { return StageConceptExpansion }

func (s *conceptExpansionStage) Requires() []artifact.Type {
	return []artifact.Type{artifact.TypeConceptModel, artifact.TypeResearchQuestionSet}
}

func (s *conceptExpansionStage) Produces() artifact.Type { return artifact.TypeSearchConceptBlocks }

// blocksDraft is the generated payload of a SearchConceptBlocks.
type blocksDraft struct {
	Blocks []artifact.SearchBlock `json:"blocks"`
}

func checkBlocksDraft(doc json.RawMessage) []string {
	var d blocksDraft
	if err := json.Unmarshal(doc, &d); err != nil {
		return []string{"response does not decode into the requested shape: " + err.Error()}
	}
	if len(d.Blocks) == 0 {
		return []string{"at least one search block is required"}
	}
	blocks := &artifact.SearchConceptBlocks{
		Header: artifact.Header{ProjectID: "draft", Status: artifact.StatusDraft},
		Blocks: d.Blocks,
	}
	if err := artifact.Validate(blocks); err != nil {
		return []string{err.Error()}
	}
	return nil
}

func (s *conceptExpansionStage) Run(ctx context.Context, in Inputs) (*StageResult, error) {
	m, err := s.svc.Store.Load(in.ProjectID, artifact.TypeConceptModel)
	if err != nil {
		return nil, err
	}
	model := m.(*artifact.ConceptModel)
	q, err := s.svc.Store.Load(in.ProjectID, artifact.TypeResearchQuestionSet)
	if err != nil {
		return nil, err
	}
	questions := q.(*artifact.ResearchQuestionSet)

	res := &StageResult{StageName: StageConceptExpansion}

	var bd blocksDraft
	outcome := s.svc.draftInto(ctx,
		llm.DraftRequest{System: drafterSystemPrompt, Prompt: expansionPrompt(model, questions), Schema: "search_concept_blocks"},
		&bd, checkBlocksDraft,
		func() { bd = heuristicBlocks(model) },
	)
	blocks := &artifact.SearchConceptBlocks{
		Header: newHeader(in.ProjectID, outcome.meta),
		Blocks: bd.Blocks,
	}

	if err := artifact.Validate(blocks); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("drafted search blocks were rejected (%v); using deterministic fallback", err))
		bd = heuristicBlocks(model)
		outcome.meta = deterministicMeta("heuristic")
		blocks = &artifact.SearchConceptBlocks{
			Header: newHeader(in.ProjectID, outcome.meta),
			Blocks: bd.Blocks,
		}
	}

	res.Draft = blocks
	res.Metadata = outcome.meta
	res.Warnings = append(res.Warnings, outcome.warnings...)
	res.Prompts = []string{approvalPrompt(artifact.TypeSearchConceptBlocks, StageQueryPlan)}
	return res, nil
}
