package export

import (
	"fmt"
	"strings"

	"slrforge/internal/artifact"
)

// ProtocolInputs collects the artifacts that feed the Markdown protocol.
// Nil members simply drop their section, so a partially approved project
// still exports what it has.
type ProtocolInputs struct {
	Project   *artifact.ProjectContext
	Framing   *artifact.ProblemFraming
	Concepts  *artifact.ConceptModel
	Questions *artifact.ResearchQuestionSet
	Blocks    *artifact.SearchConceptBlocks
	Plan      *artifact.DatabaseQueryPlan
	Results   *artifact.SearchResults
	Screening *artifact.ScreeningCriteria
}

// Protocol renders the PRISMA-aligned search strategy protocol: background
// and objectives, research questions, the concept model, one reproducible
// query block per database, a search summary, and eligibility criteria.
func Protocol(in ProtocolInputs) []byte {
	var sb strings.Builder

	title := "Search Strategy Protocol"
	if in.Project != nil && in.Project.Title != "" {
		title = fmt.Sprintf("Search Strategy Protocol: %s", in.Project.Title)
	}
	sb.WriteString("# " + title + "\n\n")

	if in.Project != nil {
		if in.Project.Description != "" {
			sb.WriteString(in.Project.Description + "\n\n")
		}
		if in.Project.Discipline != "" {
			sb.WriteString(fmt.Sprintf("Discipline: %s\n\n", in.Project.Discipline))
		}
	}

	writeBackground(&sb, in.Framing)
	writeQuestions(&sb, in.Questions)
	writeConcepts(&sb, in.Concepts)
	writeSearchBlocks(&sb, in.Blocks)
	writeQueryPlan(&sb, in.Plan)
	writeResultsSummary(&sb, in.Results)
	writeScreening(&sb, in.Screening)

	return []byte(sb.String())
}

func writeBackground(sb *strings.Builder, f *artifact.ProblemFraming) {
	if f == nil {
		return
	}
	sb.WriteString("## Background\n\n")
	if f.ProblemStatement != "" {
		sb.WriteString(f.ProblemStatement + "\n\n")
	}
	if f.ResearchGap != "" {
		sb.WriteString(fmt.Sprintf("**Research gap.** %s\n\n", f.ResearchGap))
	}

	if len(f.Goals) > 0 {
		sb.WriteString("## Objectives\n\n")
		for _, g := range f.Goals {
			sb.WriteString(fmt.Sprintf("- %s\n", g))
		}
		sb.WriteString("\n")
	}

	if len(f.ScopeIn) > 0 || len(f.ScopeOut) > 0 {
		sb.WriteString("## Scope\n\n")
		for _, s := range f.ScopeIn {
			sb.WriteString(fmt.Sprintf("- In scope: %s\n", s))
		}
		for _, s := range f.ScopeOut {
			sb.WriteString(fmt.Sprintf("- Out of scope: %s\n", s))
		}
		sb.WriteString("\n")
	}
}

func writeQuestions(sb *strings.Builder, qs *artifact.ResearchQuestionSet) {
	if qs == nil || len(qs.Questions) == 0 {
		return
	}
	sb.WriteString("## Research Questions\n\n")
	for _, q := range qs.Questions {
		sb.WriteString(fmt.Sprintf("- **%s** (%s, %s): %s\n", q.ID, q.Type, q.Priority, q.Text))
	}
	sb.WriteString("\n")
}

func writeConcepts(sb *strings.Builder, cm *artifact.ConceptModel) {
	if cm == nil || len(cm.Concepts) == 0 {
		return
	}
	sb.WriteString("## Concept Model\n\n")
	for _, c := range cm.Concepts {
		line := fmt.Sprintf("- `%s` **%s** (%s)", c.ID, c.Label, c.Type)
		if c.Description != "" {
			line += ": " + c.Description
		}
		sb.WriteString(line + "\n")
	}
	if len(cm.Relations) > 0 {
		sb.WriteString("\nRelations:\n")
		for _, r := range cm.Relations {
			sb.WriteString(fmt.Sprintf("- %s %s %s\n", r.SourceID, r.RelationType, r.TargetID))
		}
	}
	sb.WriteString("\n")
}

func writeSearchBlocks(sb *strings.Builder, blocks *artifact.SearchConceptBlocks) {
	if blocks == nil || len(blocks.Blocks) == 0 {
		return
	}
	sb.WriteString("## Search Term Blocks\n\n")
	for _, b := range blocks.Blocks {
		sb.WriteString(fmt.Sprintf("- **%s**: %s\n", b.Label, strings.Join(b.TermsIncluded, ", ")))
		if len(b.TermsExcluded) > 0 {
			sb.WriteString(fmt.Sprintf("  - excluded: %s\n", strings.Join(b.TermsExcluded, ", ")))
		}
	}
	sb.WriteString("\n")
}

func writeQueryPlan(sb *strings.Builder, plan *artifact.DatabaseQueryPlan) {
	if plan == nil || len(plan.Queries) == 0 {
		return
	}
	sb.WriteString("## Search Strategy\n\n")
	for _, q := range plan.Queries {
		sb.WriteString(fmt.Sprintf("### %s\n\n", q.DatabaseName))
		sb.WriteString("```\n" + q.BooleanQueryString + "\n```\n\n")
		if a := q.ComplexityAnalysis; a != nil {
			sb.WriteString(fmt.Sprintf("Complexity: %s (%d terms in %d blocks, expected %s)\n\n",
				a.Level, a.TotalTerms, a.NumBlocks, a.ExpectedResults))
		}
		if q.Notes != "" {
			sb.WriteString(q.Notes + "\n\n")
		}
	}
}

func writeResultsSummary(sb *strings.Builder, r *artifact.SearchResults) {
	if r == nil {
		return
	}
	sb.WriteString("## Search Results Summary\n\n")
	sb.WriteString(fmt.Sprintf("- Databases searched: %s\n", strings.Join(r.DatabasesSearched, ", ")))
	sb.WriteString(fmt.Sprintf("- Records identified: %d\n", r.TotalResults))
	sb.WriteString(fmt.Sprintf("- Records after deduplication: %d\n", r.DeduplicatedCount))
	sb.WriteString(fmt.Sprintf("- Duplicates removed: %d (%.1f%%)\n",
		r.DeduplicationStats.DuplicatesRemoved, r.DeduplicationStats.Rate*100))
	sb.WriteString(fmt.Sprintf("- Execution time: %.1fs\n\n", r.ExecutionTimeSeconds))
}

func writeScreening(sb *strings.Builder, sc *artifact.ScreeningCriteria) {
	if sc == nil {
		return
	}
	sb.WriteString("## Eligibility Criteria\n\n")
	if len(sc.InclusionCriteria) > 0 {
		sb.WriteString("Inclusion:\n")
		for _, c := range sc.InclusionCriteria {
			sb.WriteString(fmt.Sprintf("- %s\n", c))
		}
		sb.WriteString("\n")
	}
	if len(sc.ExclusionCriteria) > 0 {
		sb.WriteString("Exclusion:\n")
		for _, c := range sc.ExclusionCriteria {
			sb.WriteString(fmt.Sprintf("- %s\n", c))
		}
		sb.WriteString("\n")
	}
}
