package dialect

import "slrforge/internal/query"

// IEEE Xplore command search tags each term with a quoted field name.
// Controlled vocabulary maps onto the INSPEC/IEEE index terms.
func newIEEE() Dialect {
	return base{
		name: "ieee",
		caps: Capabilities{
			SupportsFieldTags:       true,
			SupportsControlledVocab: true,
			PhraseQuoteChar:         `"`,
		},
		r: rules{
			or:      " OR ",
			and:     " AND ",
			notJoin: " NOT ",
			term:    ieeeTerm,
		},
	}
}

func ieeeTerm(clean string, field query.FieldTag, _ bool) (string, []string) {
	switch field {
	case query.FieldControlledVocab:
		return `"Index Terms":"` + clean + `"`, nil
	case query.FieldKeyword:
		return `"Abstract":"` + clean + `"`, nil
	default:
		return `"All Metadata":"` + clean + `"`, nil
	}
}

func init() { Register(newIEEE()) }
