package artifact

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"slrforge/internal/fault"
	"slrforge/internal/query/dialect"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structural tags and the cross-field invariants of a
// single artifact. Cross-artifact checks (question links against the concept
// model) live in ValidateQuestionLinks because they need both values.
func Validate(a Artifact) error {
	if a == nil {
		return fault.Validation("artifact is nil")
	}
	if err := validate.Struct(a); err != nil {
		return fault.Validation("%s: %s", a.Type(), validationSummary(err))
	}

	switch v := a.(type) {
	case *ProjectContext:
		if v.Status != StatusDraft && strings.TrimSpace(v.Title) == "" {
			return fault.Validation("ProjectContext: title must be set once the project leaves draft")
		}
	case *ProblemFraming:
		if v.Status.Approved() && len(v.Goals) == 0 {
			return fault.Validation("ProblemFraming: at least one goal is required for approval")
		}
	case *ConceptModel:
		return validateConceptModel(v)
	case *SearchConceptBlocks:
		return validateSearchBlocks(v)
	case *DatabaseQueryPlan:
		return validateQueryPlan(v)
	case *SearchResults:
		if v.DeduplicatedCount > v.TotalResults {
			return fault.Validation("SearchResults: deduplicated_count %d exceeds total_results %d", v.DeduplicatedCount, v.TotalResults)
		}
	}
	return nil
}

func validateConceptModel(m *ConceptModel) error {
	seen := make(map[string]bool, len(m.Concepts))
	for _, c := range m.Concepts {
		if seen[c.ID] {
			return fault.Validation("ConceptModel: duplicate concept id %q", c.ID)
		}
		seen[c.ID] = true
	}
	for i, r := range m.Relations {
		if !seen[r.SourceID] {
			return fault.Validation("ConceptModel: relation %d references unknown source concept %q", i, r.SourceID)
		}
		if !seen[r.TargetID] {
			return fault.Validation("ConceptModel: relation %d references unknown target concept %q", i, r.TargetID)
		}
	}
	return nil
}

func validateSearchBlocks(b *SearchConceptBlocks) error {
	seen := make(map[string]bool, len(b.Blocks))
	for _, blk := range b.Blocks {
		if seen[blk.ID] {
			return fault.Validation("SearchConceptBlocks: duplicate block id %q", blk.ID)
		}
		seen[blk.ID] = true
		for _, term := range blk.TermsIncluded {
			if strings.TrimSpace(term) == "" {
				return fault.Validation("SearchConceptBlocks: block %q contains a blank included term", blk.Label)
			}
		}
	}
	return nil
}

func validateQueryPlan(p *DatabaseQueryPlan) error {
	for _, q := range p.Queries {
		if !dialect.Known(q.DatabaseName) {
			return fault.Validation("DatabaseQueryPlan: %q is not a recognized database dialect", q.DatabaseName)
		}
	}
	return nil
}

// ValidateQuestionLinks checks that every linked_concept_ids entry in the
// question set names a concept present in the model.
func ValidateQuestionLinks(qs *ResearchQuestionSet, cm *ConceptModel) error {
	if qs == nil || cm == nil {
		return fault.Validation("question link check needs both a question set and a concept model")
	}
	for _, q := range qs.Questions {
		for _, id := range q.LinkedConceptIDs {
			if _, ok := cm.ConceptByID(id); !ok {
				return fault.Validation("question %q links unknown concept %q", q.ID, id)
			}
		}
	}
	return nil
}

// validationSummary flattens validator's field errors into one readable line.
func validationSummary(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
