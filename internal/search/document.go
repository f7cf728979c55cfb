// Package search executes compiled Boolean queries against scholarly
// database providers and normalizes their responses into Documents.
package search

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Document is the normalized shape of one search result, independent of
// which provider returned it.
type Document struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors,omitempty"`
	Year          int      `json:"year,omitempty"`
	Venue         string   `json:"venue,omitempty"`
	DOI           string   `json:"doi,omitempty"`
	URL           string   `json:"url,omitempty"`
	Abstract      string   `json:"abstract,omitempty"`
	CitationCount int      `json:"citation_count,omitempty"`
	Provider      string   `json:"provider"`
	ArxivID       string   `json:"arxiv_id,omitempty"`
	PubmedID      string   `json:"pubmed_id,omitempty"`
	Fingerprint   string   `json:"fingerprint"`
}

// Fingerprinted returns a copy of d with its dedup fingerprint filled in.
// Providers call this as the last normalization step.
func (d Document) Fingerprinted() Document {
	d.Fingerprint = ComputeFingerprint(d.Title, d.Authors, d.Year)
	return d
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// NormalizeText lowercases, folds diacritics, maps punctuation to spaces and
// collapses runs of whitespace. It is the shared normal form behind both the
// fingerprint and title-level deduplication, so "Machine-Learning" and
// "machine learning" compare equal.
func NormalizeText(s string) string {
	if folded, _, err := transform.String(foldTransformer, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// FirstAuthorSurname extracts the surname of the first author. Both
// "Doe, Jane" and "Jane Doe" forms resolve to "Doe".
func FirstAuthorSurname(authors []string) string {
	if len(authors) == 0 {
		return ""
	}
	name := strings.TrimSpace(authors[0])
	if name == "" {
		return ""
	}
	if i := strings.Index(name, ","); i >= 0 {
		return strings.TrimSpace(name[:i])
	}
	fields := strings.Fields(name)
	return fields[len(fields)-1]
}

// ComputeFingerprint derives the dedup key of last resort from the
// normalized title, first author surname and year.
func ComputeFingerprint(title string, authors []string, year int) string {
	return NormalizeText(title) + "|" + NormalizeText(FirstAuthorSurname(authors)) + "|" + strconv.Itoa(year)
}

// DedupStats summarizes one deduplication pass over collected documents.
type DedupStats struct {
	OriginalCount     int     `json:"original_count"`
	DeduplicatedCount int     `json:"deduplicated_count"`
	DuplicatesRemoved int     `json:"duplicates_removed"`
	Rate              float64 `json:"rate"`
}

// Deduplicator collapses duplicates across provider result streams. The
// executor takes one as a collaborator rather than owning the policy.
type Deduplicator interface {
	Deduplicate(docs []Document) ([]Document, DedupStats)
}
