package query

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

// planWith builds a plan with the given block sizes.
func planWith(t *testing.T, sizes ...int) Plan {
	t.Helper()
	var blocks []Block
	for i, n := range sizes {
		b := Block{Label: string(rune('A' + i))}
		for j := 0; j < n; j++ {
			b.Terms = append(b.Terms, Term{Text: "term", Field: FieldKeyword})
		}
		blocks = append(blocks, b)
	}
	return Plan{Blocks: blocks}
}

func TestAnalyzeLevels(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int
		want  Level
	}{
		{"one block three terms", []int{3}, LevelVeryBroad},
		{"no blocks", nil, LevelVeryBroad},
		{"two blocks many terms", []int{3, 4}, LevelBroad},
		{"three blocks few terms", []int{2, 2, 3}, LevelBroad},
		{"four blocks fourteen terms", []int{4, 4, 3, 3}, LevelBalanced},
		{"five blocks twentyfive terms", []int{5, 5, 5, 5, 5}, LevelBalanced},
		{"four blocks twentysix terms", []int{7, 7, 6, 6}, LevelNarrow},
		{"six blocks", []int{2, 2, 2, 2, 2, 2}, LevelNarrow},
		{"seven blocks fortyfive terms", []int{7, 7, 7, 6, 6, 6, 6}, LevelVeryNarrow},
		{"seven blocks forty terms stays narrow", []int{6, 6, 6, 6, 6, 5, 5}, LevelNarrow},
		{"three blocks thirty terms leans balanced", []int{10, 10, 10}, LevelBalanced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Analyze(planWith(t, tt.sizes...))
			assert.Equal(t, tt.want, a.Level)
		})
	}
}

func TestAnalyzeBuckets(t *testing.T) {
	assert.Equal(t, "> 10k", Analyze(planWith(t, 3)).ExpectedResults)
	assert.Equal(t, "1k–10k", Analyze(planWith(t, 3, 4)).ExpectedResults)
	assert.Equal(t, "100–1k", Analyze(planWith(t, 4, 4, 3, 3)).ExpectedResults)
	assert.Equal(t, "10–100", Analyze(planWith(t, 2, 2, 2, 2, 2, 2)).ExpectedResults)
	assert.Equal(t, "< 10", Analyze(planWith(t, 7, 7, 7, 6, 6, 6, 6)).ExpectedResults)
}

func TestAnalyzeIsPure(t *testing.T) {
	plan := planWith(t, 4, 4, 3, 3)
	first := Analyze(plan)
	second := Analyze(plan)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Analyze is not deterministic (-first +second):\n%s", diff)
	}
}

func TestAnalyzeCountsMatchPlan(t *testing.T) {
	a := Analyze(planWith(t, 5, 2, 1))
	assert.Equal(t, 3, a.NumBlocks)
	assert.Equal(t, 8, a.TotalTerms)
	assert.NotEmpty(t, a.Guidance)
}

func TestStructuralWarnings(t *testing.T) {
	t.Run("big exclusion block", func(t *testing.T) {
		plan := planWith(t, 4, 4, 3, 3)
		plan.Exclusion = &Block{Label: "not", Terms: []Term{
			{Text: "a"}, {Text: "b"}, {Text: "c"},
		}}
		a := Analyze(plan)
		assert.Len(t, a.Warnings, 1)
		assert.Contains(t, a.Warnings[0], "exclusion block has 3 terms")
	})

	t.Run("exclusion of two terms is fine", func(t *testing.T) {
		plan := planWith(t, 4, 4, 3, 3)
		plan.Exclusion = &Block{Label: "not", Terms: []Term{{Text: "a"}, {Text: "b"}}}
		assert.Empty(t, Analyze(plan).Warnings)
	})

	t.Run("empty block", func(t *testing.T) {
		plan := Plan{Blocks: []Block{{Label: "Outcomes"}}}
		a := Analyze(plan)
		assert.Contains(t, a.Warnings[0], `"Outcomes"`)
	})

	t.Run("overlong term", func(t *testing.T) {
		plan := Plan{Blocks: []Block{{Label: "b", Terms: []Term{
			{Text: strings.Repeat("x", 120)},
		}}}}
		a := Analyze(plan)
		assert.Contains(t, a.Warnings[0], "120 characters")
	})
}

func TestAnalyzeCompiledLengthWarning(t *testing.T) {
	plan := planWith(t, 4, 4, 3, 3)

	withLimit := AnalyzeCompiled(plan, strings.Repeat("q", 150), 100)
	assert.Len(t, withLimit.Warnings, 1)
	assert.Contains(t, withLimit.Warnings[0], "exceeding the database limit of 100")

	unlimited := AnalyzeCompiled(plan, strings.Repeat("q", 150), 0)
	assert.Empty(t, unlimited.Warnings)

	underLimit := AnalyzeCompiled(plan, "short", 100)
	assert.Empty(t, underLimit.Warnings)
}
