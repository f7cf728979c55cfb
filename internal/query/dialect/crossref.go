package dialect

import "slrforge/internal/query"

// Crossref's bibliographic query is free text with loose relevance
// matching: no field tags and no NOT operator, so exclusion blocks are
// dropped with a warning.
func newCrossref() Dialect {
	return base{
		name: "crossref",
		caps: Capabilities{
			SupportsFieldTags:       false,
			SupportsControlledVocab: false,
			PhraseQuoteChar:         `"`,
			MaxQueryLength:          maxGETQueryLength,
		},
		r: rules{
			or:             " OR ",
			and:            " AND ",
			notUnsupported: "crossref does not support NOT; exclusion block omitted from the compiled query",
			term:           crossrefTerm,
		},
	}
}

func crossrefTerm(clean string, field query.FieldTag, isPhrase bool) (string, []string) {
	var warnings []string
	if field == query.FieldControlledVocab {
		warnings = append(warnings, downgradeWarning("crossref", clean))
	}
	return quoteIfPhrase(clean, isPhrase), warnings
}

func init() { Register(newCrossref()) }
