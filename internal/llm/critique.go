package llm

import (
	"context"
	"encoding/json"
	"strings"

	"slrforge/internal/logging"
)

// Checker inspects a drafted document and returns the problems a refinement
// round should fix. An empty result accepts the draft.
type Checker func(doc json.RawMessage) []string

// Result is the outcome of a critique loop.
type Result struct {
	Document json.RawMessage
	// Rounds counts the refinement rounds actually spent.
	Rounds int
	// Problems holds whatever the checker still flags after the last round.
	Problems []string
	// Prompts records every prompt sent, in order, for artifact metadata.
	Prompts []string
}

type loopState int

const (
	stateDraft loopState = iota
	stateCritique
	stateRefine
	stateDone
)

// Critique runs the bounded draft-critique-refine loop. The drafter produces
// a candidate, the checker critiques it, and each batch of problems is fed
// back as a refinement prompt until the checker is satisfied or maxRounds
// refinements are spent. Problems left standing after the last round travel
// in the Result instead of failing the loop; a drafter error at any state
// fails it.
func Critique(ctx context.Context, d Drafter, req DraftRequest, check Checker, maxRounds int) (*Result, error) {
	if maxRounds < 0 {
		maxRounds = 0
	}
	if check == nil {
		check = func(json.RawMessage) []string { return nil }
	}

	res := &Result{}
	var doc json.RawMessage
	var problems []string

	state := stateDraft
	for state != stateDone {
		switch state {
		case stateDraft:
			res.Prompts = append(res.Prompts, req.Prompt)
			var err error
			doc, err = d.Draft(ctx, req)
			if err != nil {
				return nil, err
			}
			state = stateCritique

		case stateCritique:
			problems = check(doc)
			if len(problems) == 0 || res.Rounds >= maxRounds {
				state = stateDone
				break
			}
			state = stateRefine

		case stateRefine:
			res.Rounds++
			logging.DrafterDebug("[critique] round %d: %d problem(s) to fix", res.Rounds, len(problems))
			prompt := refinePrompt(req, doc, problems)
			res.Prompts = append(res.Prompts, prompt)
			next, err := d.Draft(ctx, DraftRequest{System: req.System, Prompt: prompt, Schema: req.Schema})
			if err != nil {
				return nil, err
			}
			doc = next
			state = stateCritique
		}
	}

	if len(problems) > 0 {
		logging.DrafterWarn("[critique] accepting draft with %d outstanding problem(s) after %d round(s)", len(problems), res.Rounds)
	}
	res.Document = doc
	res.Problems = problems
	return res, nil
}

// refinePrompt folds the previous draft and its problems back into the
// original instruction.
func refinePrompt(req DraftRequest, doc json.RawMessage, problems []string) string {
	var sb strings.Builder
	sb.WriteString(req.Prompt)
	sb.WriteString("\n\nYour previous draft:\n```json\n")
	sb.Write(doc)
	sb.WriteString("\n```\n\nThe draft has problems that must be fixed:\n")
	for _, p := range problems {
		sb.WriteString("- ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	sb.WriteString("\nReturn the corrected JSON document. Fix every listed problem and keep everything else unchanged.")
	return sb.String()
}
