package dialect

import "slrforge/internal/query"

// Web of Science uses topic-search envelopes: TS=(...) per block.
func newWebOfScience() Dialect {
	return base{
		name: "wos",
		caps: Capabilities{
			SupportsFieldTags:       false,
			SupportsControlledVocab: false,
			PhraseQuoteChar:         `"`,
		},
		r: rules{
			or:      " OR ",
			and:     " AND ",
			notJoin: " NOT ",
			term:    wosTerm,
			envelope: func(group string) string {
				return "TS=(" + group + ")"
			},
		},
	}
}

func wosTerm(clean string, field query.FieldTag, isPhrase bool) (string, []string) {
	var warnings []string
	if field == query.FieldControlledVocab {
		warnings = append(warnings, downgradeWarning("wos", clean))
	}
	return quoteIfPhrase(clean, isPhrase), warnings
}

func init() { Register(newWebOfScience()) }
