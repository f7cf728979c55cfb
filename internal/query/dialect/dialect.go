// Package dialect compiles the abstract query plan into the Boolean syntax
// of one scholarly database. Dialects register themselves into a package
// registry at init; all of them share one compilation skeleton and differ
// only in connectors, term formatting, and block envelopes.
package dialect

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"slrforge/internal/fault"
	"slrforge/internal/query"
)

// Capabilities describes what a database's query language supports.
type Capabilities struct {
	SupportsFieldTags       bool   `json:"supports_field_tags"`
	SupportsControlledVocab bool   `json:"supports_controlled_vocab"`
	PhraseQuoteChar         string `json:"phrase_quote_char"`
	// MaxQueryLength is 0 when the database enforces no practical limit.
	MaxQueryLength int `json:"max_query_length,omitempty"`
}

// Dialect formats query plans for one database.
type Dialect interface {
	Name() string
	// Format compiles the plan, discarding diagnostics.
	Format(plan query.Plan) string
	// Compile compiles the plan and returns advisory warnings (controlled
	// vocabulary downgrades, dropped exclusions, empty plans).
	Compile(plan query.Plan) (string, []string)
	Capabilities() Capabilities
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Dialect)
	aliases    = map[string]string{
		"webofscience": "wos",
	}
)

// Register adds a dialect to the registry. Called from init.
func Register(d Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Name()] = d
}

// Get resolves a database name to its dialect. Names are matched
// case-insensitively and ignore spaces, hyphens, underscores and dots, so
// "Web-of-Science", "web of science" and "wos" all resolve.
func Get(name string) (Dialect, error) {
	key := normalize(name)
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}

	registryMu.RLock()
	defer registryMu.RUnlock()
	if d, ok := registry[key]; ok {
		return d, nil
	}
	return nil, fault.NotFound("unknown database dialect %q (known: %s)", name, strings.Join(namesLocked(), ", "))
}

// Known reports whether name resolves to a registered dialect.
func Known(name string) bool {
	_, err := Get(name)
	return err == nil
}

// Names returns the registered dialect names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '.':
			return -1
		}
		return r
	}, lower)
}

// rules drives the shared compiler. A dialect is one rules value.
type rules struct {
	or  string // intra-block connector
	and string // inter-block connector
	// notJoin connects the inclusion groups to the exclusion group, e.g.
	// " NOT " or " AND NOT ". Empty means the database has no NOT form; the
	// exclusion block is dropped with notUnsupported as the warning.
	notJoin        string
	notUnsupported string
	// term renders one sanitized term. Returned warnings are advisory.
	term func(clean string, field query.FieldTag, isPhrase bool) (string, []string)
	// envelope, when set, wraps each block's OR-join instead of plain
	// parentheses (Scopus TITLE-ABS-KEY, WoS TS=).
	envelope func(group string) string
}

// base implements Dialect for one rules value.
type base struct {
	name string
	caps Capabilities
	r    rules
}

func (b base) Name() string               { return b.name }
func (b base) Capabilities() Capabilities { return b.caps }

func (b base) Format(plan query.Plan) string {
	s, _ := b.Compile(plan)
	return s
}

func (b base) Compile(plan query.Plan) (string, []string) {
	return compile(plan, b.r)
}

func compile(plan query.Plan, r rules) (string, []string) {
	if plan.Empty() {
		return "", []string{"query plan has no concept blocks; compiled query is empty"}
	}

	var warnings []string
	groups := make([]string, 0, len(plan.Blocks))
	for _, block := range plan.Blocks {
		group, ws := compileBlock(block, r)
		warnings = append(warnings, ws...)
		if group != "" {
			groups = append(groups, group)
		}
	}

	out := strings.Join(groups, r.and)

	if plan.Exclusion != nil && len(plan.Exclusion.Terms) > 0 && out != "" {
		if r.notJoin == "" {
			warnings = append(warnings, r.notUnsupported)
		} else {
			group, ws := compileExclusion(*plan.Exclusion, r)
			warnings = append(warnings, ws...)
			if group != "" {
				out += r.notJoin + group
			}
		}
	}

	return out, warnings
}

func compileBlock(block query.Block, r rules) (string, []string) {
	terms, warnings := renderTerms(block.Terms, r)
	if len(terms) == 0 {
		return "", append(warnings, fmt.Sprintf("block %q has no usable terms", block.Label))
	}

	group := strings.Join(terms, r.or)
	if r.envelope != nil {
		return r.envelope(group), warnings
	}
	if len(terms) > 1 {
		group = "(" + group + ")"
	}
	return group, warnings
}

// compileExclusion renders the NOT group. It is always wrapped, either by
// the dialect envelope or by parentheses, so the NOT binds the whole group.
func compileExclusion(block query.Block, r rules) (string, []string) {
	terms, warnings := renderTerms(block.Terms, r)
	if len(terms) == 0 {
		return "", warnings
	}

	group := strings.Join(terms, r.or)
	if r.envelope != nil {
		return r.envelope(group), warnings
	}
	return "(" + group + ")", warnings
}

func renderTerms(terms []query.Term, r rules) ([]string, []string) {
	var warnings []string
	rendered := make([]string, 0, len(terms))
	for _, t := range terms {
		clean := query.Sanitize(t.Text)
		if clean == "" {
			continue
		}
		isPhrase := t.IsPhrase || strings.ContainsRune(clean, ' ')
		s, ws := r.term(clean, t.Field, isPhrase)
		warnings = append(warnings, ws...)
		rendered = append(rendered, s)
	}
	return rendered, warnings
}

// quoteIfPhrase wraps phrases in double quotes and leaves single tokens
// bare.
func quoteIfPhrase(clean string, isPhrase bool) string {
	if isPhrase {
		return `"` + clean + `"`
	}
	return clean
}

// downgradeWarning is the standard controlled-vocabulary downgrade message.
func downgradeWarning(dialectName, term string) string {
	return fmt.Sprintf("%s does not support controlled vocabulary; term %q downgraded to keyword", dialectName, term)
}

// maxGETQueryLength is the practical URL length budget for databases
// queried over HTTP GET.
const maxGETQueryLength = 2000
