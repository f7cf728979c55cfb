package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"slrforge/internal/artifact"
	"slrforge/internal/llm"
)

// researchQuestionsStage derives the question set from the approved framing
// and concept model.
type researchQuestionsStage struct {
	svc *Services
}

func (s *researchQuestionsStage) Name() string { return StageResearchQuestions }

func (s *researchQuestionsStage) Requires() []artifact.Type {
	return []artifact.Type{artifact.TypeProblemFraming, artifact.TypeConceptModel}
}

func (s *researchQuestionsStage) Produces() artifact.Type { return artifact.TypeResearchQuestionSet }

// questionsDraft is the generated payload of a ResearchQuestionSet.
type questionsDraft struct {
	Questions []artifact.ResearchQuestion `json:"questions"`
}

// checkQuestionsDraft validates a drafted question set against the concept
// model its links must resolve in.
func checkQuestionsDraft(model *artifact.ConceptModel) llm.Checker {
	return func(doc json.RawMessage) []string {
		var d questionsDraft
		if err := json.Unmarshal(doc, &d); err != nil {
			return []string{"response does not decode into the requested shape: " + err.Error()}
		}
		if len(d.Questions) == 0 {
			return []string{"at least one research question is required"}
		}
		var problems []string
		for i, q := range d.Questions {
			if strings.TrimSpace(q.Text) == "" {
				problems = append(problems, fmt.Sprintf("question %d has no text", i+1))
			}
			for _, id := range q.LinkedConceptIDs {
				if _, ok := model.ConceptByID(id); !ok {
					problems = append(problems, fmt.Sprintf("question %d links unknown concept %q", i+1, id))
				}
			}
		}
		qs := &artifact.ResearchQuestionSet{
			Header:    artifact.Header{ProjectID: "draft", Status: artifact.StatusDraft},
			Questions: d.Questions,
		}
		if err := artifact.Validate(qs); err != nil {
			problems = append(problems, err.Error())
		}
		return problems
	}
}

func (s *researchQuestionsStage) Run(ctx context.Context, in Inputs) (*StageResult, error) {
	framing, model, err := loadFramingAndModel(s.svc.Store, in.ProjectID)
	if err != nil {
		return nil, err
	}

	res := &StageResult{StageName: StageResearchQuestions}

	var qd questionsDraft
	outcome := s.svc.draftInto(ctx,
		llm.DraftRequest{System: drafterSystemPrompt, Prompt: questionsPrompt(framing, model), Schema: "research_questions"},
		&qd, checkQuestionsDraft(model),
		func() { qd = heuristicQuestions(framing, model) },
	)
	qs := &artifact.ResearchQuestionSet{
		Header:    newHeader(in.ProjectID, outcome.meta),
		Questions: qd.Questions,
	}

	if err := firstError(artifact.Validate(qs), artifact.ValidateQuestionLinks(qs, model)); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("drafted question set was rejected (%v); using deterministic fallback", err))
		qd = heuristicQuestions(framing, model)
		outcome.meta = deterministicMeta("heuristic")
		qs = &artifact.ResearchQuestionSet{
			Header:    newHeader(in.ProjectID, outcome.meta),
			Questions: qd.Questions,
		}
	}

	res.Draft = qs
	res.Metadata = outcome.meta
	res.Warnings = append(res.Warnings, outcome.warnings...)
	res.Prompts = []string{approvalPrompt(artifact.TypeResearchQuestionSet, StageConceptExpansion)}
	return res, nil
}

func loadFramingAndModel(store *artifact.Store, projectID string) (*artifact.ProblemFraming, *artifact.ConceptModel, error) {
	f, err := store.Load(projectID, artifact.TypeProblemFraming)
	if err != nil {
		return nil, nil, err
	}
	m, err := store.Load(projectID, artifact.TypeConceptModel)
	if err != nil {
		return nil, nil, err
	}
	return f.(*artifact.ProblemFraming), m.(*artifact.ConceptModel), nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
