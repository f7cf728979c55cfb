package dialect

import "slrforge/internal/query"

// PubMed's search language tags every term with a field bracket. Controlled
// vocabulary maps onto MeSH.
func newPubMed() Dialect {
	return base{
		name: "pubmed",
		caps: Capabilities{
			SupportsFieldTags:       true,
			SupportsControlledVocab: true,
			PhraseQuoteChar:         `"`,
		},
		r: rules{
			or:      " OR ",
			and:     " AND ",
			notJoin: " NOT ",
			term:    pubmedTerm,
		},
	}
}

// pubmedTerm always quotes and always emits exactly one field bracket.
func pubmedTerm(clean string, field query.FieldTag, _ bool) (string, []string) {
	switch field {
	case query.FieldControlledVocab:
		return `"` + clean + `"[MeSH Terms]`, nil
	case query.FieldKeyword:
		return `"` + clean + `"[Title/Abstract]`, nil
	default:
		return `"` + clean + `"[All Fields]`, nil
	}
}

func init() { Register(newPubMed()) }
