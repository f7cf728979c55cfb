package dialect

import "slrforge/internal/query"

// Scopus collapses all term-level fields into one TITLE-ABS-KEY envelope
// per block: the OR of a block's terms is wrapped once, not per term.
func newScopus() Dialect {
	return base{
		name: "scopus",
		caps: Capabilities{
			SupportsFieldTags:       false,
			SupportsControlledVocab: false,
			PhraseQuoteChar:         `"`,
		},
		r: rules{
			or:      " OR ",
			and:     " AND ",
			notJoin: " AND NOT ",
			term:    scopusTerm,
			envelope: func(group string) string {
				return "TITLE-ABS-KEY(" + group + ")"
			},
		},
	}
}

func scopusTerm(clean string, field query.FieldTag, isPhrase bool) (string, []string) {
	var warnings []string
	if field == query.FieldControlledVocab {
		warnings = append(warnings, downgradeWarning("scopus", clean))
	}
	return quoteIfPhrase(clean, isPhrase), warnings
}

func init() { Register(newScopus()) }
