package pipeline

import (
	"context"

	"slrforge/internal/artifact"
)

// screeningStage derives title/abstract eligibility rules from the approved
// framing and concept model. Pure PICO extraction; no LLM call.
type screeningStage struct {
	svc *Services
}

func (s *screeningStage) Name() string { return StageScreening }

func (s *screeningStage) Requires() []artifact.Type {
	return []artifact.Type{artifact.TypeProblemFraming, artifact.TypeConceptModel}
}

func (s *screeningStage) Produces() artifact.Type { return artifact.TypeScreeningCriteria }

func (s *screeningStage) Run(ctx context.Context, in Inputs) (*StageResult, error) {
	framing, model, err := loadFramingAndModel(s.svc.Store, in.ProjectID)
	if err != nil {
		return nil, err
	}

	inclusion, exclusion := heuristicScreening(framing, model)
	meta := deterministicMeta("screening-rules")

	return &StageResult{
		StageName: StageScreening,
		Draft: &artifact.ScreeningCriteria{
			Header:            newHeader(in.ProjectID, meta),
			InclusionCriteria: inclusion,
			ExclusionCriteria: exclusion,
		},
		Metadata: meta,
		Prompts:  []string{approvalPrompt(artifact.TypeScreeningCriteria, StageStrategyExport)},
	}, nil
}
