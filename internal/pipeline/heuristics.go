package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"slrforge/internal/artifact"
)

// Heuristic drafting, used whenever the LLM drafter is unavailable or its
// output is rejected. Every producer here is deterministic and derives its
// content only from upstream artifacts.

// stopwords are dropped when mining keywords from free text. The list mixes
// common English function words with review-methodology words that describe
// the study rather than its topic.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "for": true, "in": true,
	"on": true, "to": true, "and": true, "or": true, "with": true, "by": true,
	"from": true, "at": true, "into": true, "via": true, "as": true,
	"is": true, "are": true, "be": true, "how": true, "what": true,
	"using": true, "based": true, "towards": true, "toward": true,
	"review": true, "reviews": true, "systematic": true, "literature": true,
	"study": true, "studies": true, "survey": true, "analysis": true,
	"meta": true, "overview": true,
}

// keywordsFromText mines up to max indexing keywords from free text,
// preserving first-seen order.
func keywordsFromText(text string, max int) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		if len(w) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == max {
			break
		}
	}
	return out
}

const maxTitleLength = 80

// heuristicTitle turns the raw idea into a presentable title: collapsed
// whitespace, sentence case, cut at a word boundary.
func heuristicTitle(idea string) string {
	title := strings.Join(strings.Fields(idea), " ")
	if len(title) > maxTitleLength {
		if cut := strings.LastIndex(title[:maxTitleLength], " "); cut > 0 {
			title = title[:cut]
		} else {
			title = title[:maxTitleLength]
		}
	}
	return upperFirst(title)
}

func heuristicContext(idea string) contextDraft {
	return contextDraft{
		Title:       heuristicTitle(idea),
		Description: strings.TrimSpace(idea),
		Keywords:    keywordsFromText(idea, 8),
	}
}

func heuristicFraming(pc *artifact.ProjectContext) framingDraft {
	topic := pc.Title
	if topic == "" {
		topic = pc.Description
	}
	topic = lowerFirst(topic)

	scopeIn := pc.Keywords
	if len(scopeIn) == 0 {
		scopeIn = []string{topic}
	}

	return framingDraft{
		ProblemStatement: fmt.Sprintf(
			"The literature on %s is scattered across venues, methods, and terminology. "+
				"This review maps the primary studies, the approaches they take, and the evidence they report.", topic),
		Goals: []string{
			fmt.Sprintf("Identify the primary studies addressing %s", topic),
			"Classify the approaches and methods they report",
			"Summarize reported outcomes and open challenges",
		},
		ScopeIn:  scopeIn,
		ScopeOut: []string{"publications without peer review", "work unrelated to the stated keywords"},
		Stakeholders: []string{
			"researchers planning follow-up studies",
			"practitioners selecting techniques",
		},
		ResearchGap: fmt.Sprintf("No current synthesis consolidates the evidence on %s.", topic),
	}
}

// Concept classification word lists, matched against lowercased labels.
var (
	populationWords   = []string{"patient", "student", "adult", "child", "user", "population", "cohort", "participant", "clinician"}
	interventionWords = []string{"therapy", "treatment", "intervention", "training", "technique", "mitigation", "algorithm", "framework", "tool", "strategy"}
	outcomeWords      = []string{"outcome", "accuracy", "performance", "quality", "effect", "impact", "error", "bias", "rate"}
	methodWords       = []string{"trial", "experiment", "benchmark", "evaluation", "measurement", "protocol"}
)

func classifyConcept(label string) string {
	l := strings.ToLower(label)
	switch {
	case containsAny(l, populationWords):
		return artifact.ConceptPopulation
	case containsAny(l, interventionWords):
		return artifact.ConceptIntervention
	case containsAny(l, outcomeWords):
		return artifact.ConceptOutcome
	case containsAny(l, methodWords):
		return artifact.ConceptMethod
	default:
		return artifact.ConceptOther
	}
}

const maxHeuristicConcepts = 6

func heuristicConcepts(pc *artifact.ProjectContext, framing *artifact.ProblemFraming) conceptDraft {
	labels := pc.Keywords
	if len(labels) == 0 {
		labels = keywordsFromText(framing.ProblemStatement, maxHeuristicConcepts)
	}
	if len(labels) > maxHeuristicConcepts {
		labels = labels[:maxHeuristicConcepts]
	}

	var draft conceptDraft
	for i, label := range labels {
		draft.Concepts = append(draft.Concepts, artifact.Concept{
			ID:    fmt.Sprintf("c%d", i+1),
			Label: label,
			Type:  classifyConcept(label),
		})
	}
	return draft
}

func heuristicQuestions(framing *artifact.ProblemFraming, model *artifact.ConceptModel) questionsDraft {
	topic := primaryTopic(model)

	firstLinked := make([]string, 0, 4)
	for _, c := range model.Concepts {
		firstLinked = append(firstLinked, c.ID)
		if len(firstLinked) == 4 {
			break
		}
	}

	return questionsDraft{
		Questions: []artifact.ResearchQuestion{
			{
				ID:               "rq1",
				Text:             fmt.Sprintf("What approaches addressing %s have been reported in the literature?", topic),
				Type:             artifact.QuestionDescriptive,
				LinkedConceptIDs: firstLinked,
				Priority:         artifact.PriorityMust,
			},
			{
				ID:       "rq2",
				Text:     "How effective are the reported approaches, and how is their effectiveness measured?",
				Type:     artifact.QuestionEvaluative,
				Priority: artifact.PriorityMust,
			},
			{
				ID:       "rq3",
				Text:     "What gaps and open challenges remain unaddressed by the current literature?",
				Type:     artifact.QuestionExplanatory,
				Priority: artifact.PriorityNice,
			},
		},
	}
}

// primaryTopic picks the concept that best names what the review is about:
// the first intervention, else the first concept, else a generic phrase.
func primaryTopic(model *artifact.ConceptModel) string {
	for _, c := range model.Concepts {
		if c.Type == artifact.ConceptIntervention {
			return strings.ToLower(c.Label)
		}
	}
	if len(model.Concepts) > 0 {
		return strings.ToLower(model.Concepts[0].Label)
	}
	return "the review topic"
}

func heuristicBlocks(model *artifact.ConceptModel) blocksDraft {
	var draft blocksDraft
	for i, c := range model.Concepts {
		draft.Blocks = append(draft.Blocks, artifact.SearchBlock{
			ID:            fmt.Sprintf("b%d", i+1),
			Label:         c.Label,
			Description:   c.Description,
			TermsIncluded: expandTerm(c.Label),
		})
	}
	return draft
}

// expandTerm derives deterministic spelling variants for one concept label:
// the label itself, an acronym for multi-word labels, hyphen/space swaps,
// and a naive plural for single words.
func expandTerm(label string) []string {
	label = strings.Join(strings.Fields(label), " ")
	variants := []string{label}

	if ac := acronym(label); ac != "" {
		variants = append(variants, ac)
	}
	if strings.Contains(label, "-") {
		variants = append(variants, strings.ReplaceAll(label, "-", " "))
	} else if strings.Contains(label, " ") {
		variants = append(variants, strings.ReplaceAll(label, " ", "-"))
	}
	if !strings.Contains(label, " ") && !strings.HasSuffix(strings.ToLower(label), "s") {
		variants = append(variants, label+"s")
	}

	return uniqueFold(variants)
}

// acronym derives an initialism from a multi-word label ("large language
// model" -> "LLM"). Labels that are already one word, or whose initialism
// would be a single letter, produce nothing.
func acronym(label string) string {
	words := strings.Fields(label)
	if len(words) < 2 {
		return ""
	}
	var sb strings.Builder
	for _, w := range words {
		r := []rune(w)[0]
		if !unicode.IsLetter(r) {
			return ""
		}
		sb.WriteRune(unicode.ToUpper(r))
	}
	if sb.Len() < 2 {
		return ""
	}
	return sb.String()
}

func heuristicScreening(framing *artifact.ProblemFraming, model *artifact.ConceptModel) (inclusion, exclusion []string) {
	inclusion = []string{"Peer-reviewed primary studies"}
	for _, c := range model.Concepts {
		label := strings.ToLower(c.Label)
		switch c.Type {
		case artifact.ConceptPopulation:
			inclusion = append(inclusion, fmt.Sprintf("Studies involving %s", label))
		case artifact.ConceptIntervention:
			inclusion = append(inclusion, fmt.Sprintf("Studies evaluating or applying %s", label))
		case artifact.ConceptComparison:
			inclusion = append(inclusion, fmt.Sprintf("Studies comparing against %s", label))
		case artifact.ConceptOutcome:
			inclusion = append(inclusion, fmt.Sprintf("Studies reporting %s", label))
		case artifact.ConceptMethod:
			inclusion = append(inclusion, fmt.Sprintf("Studies using %s", label))
		case artifact.ConceptContext:
			inclusion = append(inclusion, fmt.Sprintf("Studies situated in %s", label))
		}
	}
	for _, s := range framing.ScopeIn {
		inclusion = append(inclusion, "Within scope: "+s)
	}

	exclusion = []string{
		"Editorials, comments, letters, and other non-empirical publications",
		"Duplicate and retracted records",
	}
	for _, s := range framing.ScopeOut {
		exclusion = append(exclusion, "Out of scope: "+s)
	}
	return inclusion, exclusion
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func upperFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// lowerFirst lowercases a leading capital unless the word looks like an
// acronym ("LLM hallucination" keeps its case).
func lowerFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	if len(r) > 1 && unicode.IsUpper(r[0]) && unicode.IsUpper(r[1]) {
		return s
	}
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// uniqueFold dedupes case-insensitively, preserving first-seen order and
// casing.
func uniqueFold(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
