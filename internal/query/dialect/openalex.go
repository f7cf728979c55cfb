package dialect

import "slrforge/internal/query"

// OpenAlex full-text search takes plain tokens with uppercase boolean
// operators; there is no field syntax at the term level.
func newOpenAlex() Dialect {
	return base{
		name: "openalex",
		caps: Capabilities{
			SupportsFieldTags:       false,
			SupportsControlledVocab: false,
			PhraseQuoteChar:         `"`,
			MaxQueryLength:          maxGETQueryLength,
		},
		r: rules{
			or:      " OR ",
			and:     " AND ",
			notJoin: " NOT ",
			term:    openAlexTerm,
		},
	}
}

func openAlexTerm(clean string, field query.FieldTag, isPhrase bool) (string, []string) {
	var warnings []string
	if field == query.FieldControlledVocab {
		warnings = append(warnings, downgradeWarning("openalex", clean))
	}
	return quoteIfPhrase(clean, isPhrase), warnings
}

func init() { Register(newOpenAlex()) }
