package dialect

import "slrforge/internal/query"

// arXiv's API query language uses field prefixes (all:, ti:, abs:) and the
// ANDNOT operator. Everything here targets all: since arXiv has no combined
// title/abstract field. Queried over GET, so the URL budget applies.
func newArxiv() Dialect {
	return base{
		name: "arxiv",
		caps: Capabilities{
			SupportsFieldTags:       true,
			SupportsControlledVocab: false,
			PhraseQuoteChar:         `"`,
			MaxQueryLength:          maxGETQueryLength,
		},
		r: rules{
			or:      " OR ",
			and:     " AND ",
			notJoin: " ANDNOT ",
			term:    arxivTerm,
		},
	}
}

func arxivTerm(clean string, field query.FieldTag, isPhrase bool) (string, []string) {
	var warnings []string
	if field == query.FieldControlledVocab {
		warnings = append(warnings, downgradeWarning("arxiv", clean))
	}
	return "all:" + quoteIfPhrase(clean, isPhrase), warnings
}

func init() { Register(newArxiv()) }
