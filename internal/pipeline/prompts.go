package pipeline

import (
	"fmt"
	"strings"

	"slrforge/internal/artifact"
)

// drafterSystemPrompt frames every drafting call. The JSON-only instruction
// matters: the OpenAI backend requests json_object responses, which the API
// rejects unless the conversation mentions JSON.
const drafterSystemPrompt = "You are a research librarian designing a systematic literature review. " +
	"Answer with a single JSON object matching the requested shape exactly. " +
	"No prose, no markdown fences, JSON only."

func setupPrompt(idea string) string {
	return fmt.Sprintf(`A researcher wants to start a systematic review from this idea:

%q

Draft the project context. Respond with JSON of this shape:
{
  "title": "concise review title, at most 120 characters",
  "description": "one-paragraph restatement of the idea",
  "discipline": "primary field, e.g. computer science, medicine",
  "keywords": ["4-8 short indexing keywords"]
}`, idea)
}

func framingPrompt(pc *artifact.ProjectContext) string {
	var sb strings.Builder
	sb.WriteString("Frame the research problem for this review.\n\n")
	writeProjectContext(&sb, pc)
	sb.WriteString(`
Respond with JSON of this shape:
{
  "problem_statement": "2-3 sentences naming the problem the review addresses",
  "goals": ["what the review should achieve, 2-4 entries"],
  "scope_in": ["topics explicitly inside scope"],
  "scope_out": ["topics explicitly outside scope"],
  "stakeholders": ["who benefits from the findings"],
  "research_gap": "the gap in current literature this review fills"
}`)
	return sb.String()
}

func conceptPrompt(pc *artifact.ProjectContext, framing *artifact.ProblemFraming) string {
	var sb strings.Builder
	sb.WriteString("Extract the key concepts of this review and how they relate.\n\n")
	writeProjectContext(&sb, pc)
	sb.WriteString("Problem statement: ")
	sb.WriteString(framing.ProblemStatement)
	sb.WriteString("\n")
	sb.WriteString(`
Concept types follow the PICO vocabulary: population, intervention,
comparison, outcome, method, context, other.

Respond with JSON of this shape:
{
  "concepts": [{"id": "c1", "label": "...", "type": "intervention", "description": "..."}],
  "relations": [{"source_id": "c1", "target_id": "c2", "relation_type": "mitigates"}]
}
Concept ids must be unique; every relation must reference declared ids.`)
	return sb.String()
}

func questionsPrompt(framing *artifact.ProblemFraming, model *artifact.ConceptModel) string {
	var sb strings.Builder
	sb.WriteString("Formulate the research questions this review will answer.\n\n")
	sb.WriteString("Problem statement: ")
	sb.WriteString(framing.ProblemStatement)
	sb.WriteString("\nGoals:\n")
	for _, g := range framing.Goals {
		sb.WriteString("- ")
		sb.WriteString(g)
		sb.WriteString("\n")
	}
	writeConcepts(&sb, model)
	sb.WriteString(`
Question types: descriptive, explanatory, evaluative, design, predictive.
Priorities: must, nice.

Respond with JSON of this shape:
{
  "questions": [{"id": "rq1", "text": "...", "type": "descriptive", "linked_concept_ids": ["c1"], "priority": "must"}]
}
linked_concept_ids may only reference the concept ids listed above.`)
	return sb.String()
}

func expansionPrompt(model *artifact.ConceptModel, questions *artifact.ResearchQuestionSet) string {
	var sb strings.Builder
	sb.WriteString("Expand each searchable concept into a block of synonymous search terms.\n\n")
	writeConcepts(&sb, model)
	sb.WriteString("Research questions:\n")
	for _, q := range questions.Questions {
		sb.WriteString("- ")
		sb.WriteString(q.Text)
		sb.WriteString("\n")
	}
	sb.WriteString(`
Include spelling variants, common abbreviations, and established synonyms.
List terms that would pull in off-topic records under terms_excluded.

Respond with JSON of this shape:
{
  "blocks": [{"id": "b1", "label": "...", "description": "...", "terms_included": ["..."], "terms_excluded": ["..."]}]
}
Every block needs at least one included term.`)
	return sb.String()
}

func writeProjectContext(sb *strings.Builder, pc *artifact.ProjectContext) {
	sb.WriteString("Project: ")
	sb.WriteString(pc.Title)
	sb.WriteString("\n")
	if pc.Description != "" {
		sb.WriteString("Description: ")
		sb.WriteString(pc.Description)
		sb.WriteString("\n")
	}
	if pc.Discipline != "" {
		sb.WriteString("Discipline: ")
		sb.WriteString(pc.Discipline)
		sb.WriteString("\n")
	}
	if len(pc.Keywords) > 0 {
		sb.WriteString("Keywords: ")
		sb.WriteString(strings.Join(pc.Keywords, ", "))
		sb.WriteString("\n")
	}
}

func writeConcepts(sb *strings.Builder, model *artifact.ConceptModel) {
	sb.WriteString("Concepts:\n")
	for _, c := range model.Concepts {
		fmt.Fprintf(sb, "- %s: %s (%s)", c.ID, c.Label, c.Type)
		if c.Description != "" {
			sb.WriteString(" - ")
			sb.WriteString(c.Description)
		}
		sb.WriteString("\n")
	}
}
