package query

import "fmt"

// Level classifies how selective a plan is.
type Level string

const (
	LevelVeryBroad  Level = "very_broad"
	LevelBroad      Level = "broad"
	LevelBalanced   Level = "balanced"
	LevelNarrow     Level = "narrow"
	LevelVeryNarrow Level = "very_narrow"
)

// Analysis is the complexity estimate for one plan.
type Analysis struct {
	Level           Level    `json:"level"`
	TotalTerms      int      `json:"total_terms"`
	NumBlocks       int      `json:"num_blocks"`
	ExpectedResults string   `json:"expected_results"`
	Guidance        string   `json:"guidance"`
	Warnings        []string `json:"warnings,omitempty"`
}

const maxTermLength = 100

// Analyze estimates the complexity of a plan. Pure; identical input yields
// identical output. Boundary cases resolve toward the broader level.
func Analyze(plan Plan) Analysis {
	b := plan.NumBlocks()
	t := plan.TotalTerms()
	avg := 0.0
	if b > 0 {
		avg = float64(t) / float64(b)
	}

	level := classify(b, t, avg)

	return Analysis{
		Level:           level,
		TotalTerms:      t,
		NumBlocks:       b,
		ExpectedResults: expectedResults(level),
		Guidance:        guidance(level),
		Warnings:        structuralWarnings(plan),
	}
}

// AnalyzeCompiled is Analyze plus the dialect-aware length check against
// the compiled query string.
func AnalyzeCompiled(plan Plan, compiled string, maxQueryLength int) Analysis {
	a := Analyze(plan)
	if maxQueryLength > 0 && len(compiled) > maxQueryLength {
		a.Warnings = append(a.Warnings,
			fmt.Sprintf("compiled query is %d characters, exceeding the database limit of %d", len(compiled), maxQueryLength))
	}
	return a
}

func classify(b, t int, avg float64) Level {
	switch {
	case b <= 1 || t < 4:
		return LevelVeryBroad
	case (b == 2 && avg >= 3) || t < 8:
		return LevelBroad
	case b >= 3 && b <= 5 && t >= 8 && t <= 25:
		return LevelBalanced
	case b >= 7 && t > 40:
		return LevelVeryNarrow
	case (b >= 4 && t > 25) || b >= 6:
		return LevelNarrow
	default:
		return LevelBalanced
	}
}

func expectedResults(level Level) string {
	switch level {
	case LevelVeryBroad:
		return "> 10k"
	case LevelBroad:
		return "1k–10k"
	case LevelBalanced:
		return "100–1k"
	case LevelNarrow:
		return "10–100"
	default:
		return "< 10"
	}
}

func guidance(level Level) string {
	switch level {
	case LevelVeryBroad:
		return "Query is very broad and will return an unmanageable result set. Add concept blocks to narrow it."
	case LevelBroad:
		return "Query is broad. Consider adding a concept block or more specific terms."
	case LevelBalanced:
		return "Query balances recall and precision. Suitable for screening."
	case LevelNarrow:
		return "Query is narrow. If recall matters, add synonyms or remove a block."
	default:
		return "Query is very narrow and may miss relevant work. Drop the most restrictive block."
	}
}

func structuralWarnings(plan Plan) []string {
	var warnings []string

	if plan.Exclusion != nil && len(plan.Exclusion.Terms) > 2 {
		warnings = append(warnings,
			fmt.Sprintf("exclusion block has %d terms; broad NOT filters can discard relevant records", len(plan.Exclusion.Terms)))
	}

	for _, b := range plan.Blocks {
		if len(b.Terms) == 0 {
			warnings = append(warnings,
				fmt.Sprintf("block %q has no included terms", b.Label))
		}
		for _, t := range b.Terms {
			if len(t.Text) > maxTermLength {
				warnings = append(warnings,
					fmt.Sprintf("term %q is %d characters long; databases may truncate or reject it", truncate(t.Text, 40), len(t.Text)))
			}
		}
	}
	if plan.Exclusion != nil {
		for _, t := range plan.Exclusion.Terms {
			if len(t.Text) > maxTermLength {
				warnings = append(warnings,
					fmt.Sprintf("term %q is %d characters long; databases may truncate or reject it", truncate(t.Text, 40), len(t.Text)))
			}
		}
	}

	return warnings
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
