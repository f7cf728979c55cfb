// Package query defines the abstract Boolean query model: blocks of
// synonymous terms OR-ed internally, blocks AND-ed together, with an
// optional exclusion block. Dialects compile a Plan into database-specific
// syntax; the complexity analyzer estimates how selective a Plan is.
package query

import (
	"strings"

	"slrforge/internal/fault"
)

// FieldTag says which database field a term targets.
type FieldTag string

const (
	FieldKeyword         FieldTag = "keyword"          // title/abstract style fields
	FieldControlledVocab FieldTag = "controlled_vocab" // thesaurus terms (MeSH etc.)
	FieldAllFields       FieldTag = "all_fields"
)

// Term is a single search term.
//
// IsPhrase holds exactly when the sanitized text contains whitespace or the
// original text was explicitly phrase-quoted.
type Term struct {
	Text     string   `json:"text"`
	Field    FieldTag `json:"field_tag"`
	IsPhrase bool     `json:"is_phrase"`
}

// NewTerm builds a Term from raw user text: quote characters are stripped,
// whitespace collapsed, and IsPhrase derived.
func NewTerm(text string, field FieldTag) Term {
	quoted := strings.ContainsAny(text, `"“”`)
	clean := Sanitize(text)
	return Term{
		Text:     clean,
		Field:    field,
		IsPhrase: quoted || strings.ContainsRune(clean, ' '),
	}
}

// Sanitize strips quote characters, collapses runs of whitespace to single
// spaces, and trims the ends.
func Sanitize(text string) string {
	clean := strings.NewReplacer(`"`, "", "“", "", "”", "").Replace(text)
	return strings.Join(strings.Fields(clean), " ")
}

// Block is a set of synonymous or related terms treated as one OR-group.
type Block struct {
	Label string `json:"label"`
	Terms []Term `json:"terms"`
}

// Plan is the abstract intermediate representation: Blocks combine with
// AND; Exclusion, when present, is applied with the dialect's NOT form.
type Plan struct {
	Blocks    []Block `json:"blocks"`
	Exclusion *Block  `json:"exclusion,omitempty"`
}

// NumBlocks returns the number of inclusion blocks.
func (p Plan) NumBlocks() int { return len(p.Blocks) }

// TotalTerms returns the number of terms across all inclusion blocks.
func (p Plan) TotalTerms() int {
	n := 0
	for _, b := range p.Blocks {
		n += len(b.Terms)
	}
	return n
}

// Empty reports whether the plan has no inclusion blocks.
func (p Plan) Empty() bool { return len(p.Blocks) == 0 }

// Validate checks that a final plan is compilable: at least one block, and
// no block without terms.
func (p Plan) Validate() error {
	if p.Empty() {
		return fault.Validation("query plan has no concept blocks")
	}
	for i, b := range p.Blocks {
		if len(b.Terms) == 0 {
			return fault.Validation("concept block %q (index %d) has no terms", b.Label, i)
		}
		for _, t := range b.Terms {
			if strings.TrimSpace(t.Text) == "" {
				return fault.Validation("concept block %q contains an empty term", b.Label)
			}
		}
	}
	return nil
}
