package dialect

import "slrforge/internal/query"

// Semantic Scholar's paper search is plain keyword matching: no field tags
// and no NOT operator, so exclusion blocks are dropped with a warning.
func newSemanticScholar() Dialect {
	return base{
		name: "semanticscholar",
		caps: Capabilities{
			SupportsFieldTags:       false,
			SupportsControlledVocab: false,
			PhraseQuoteChar:         `"`,
			MaxQueryLength:          maxGETQueryLength,
		},
		r: rules{
			or:             " OR ",
			and:            " AND ",
			notUnsupported: "semanticscholar does not support NOT; exclusion block omitted from the compiled query",
			term:           semanticScholarTerm,
		},
	}
}

func semanticScholarTerm(clean string, field query.FieldTag, isPhrase bool) (string, []string) {
	var warnings []string
	if field == query.FieldControlledVocab {
		warnings = append(warnings, downgradeWarning("semanticscholar", clean))
	}
	return quoteIfPhrase(clean, isPhrase), warnings
}

func init() { Register(newSemanticScholar()) }
