// Package dedup collapses duplicate documents collected from multiple
// scholarly databases, preserving the first-seen record for each key.
package dedup

import (
	"strings"

	"slrforge/internal/logging"
	"slrforge/internal/search"
)

// minTitleKeyLength keeps stub titles from acting as dedup keys.
const minTitleKeyLength = 10

// Deduper implements first-seen-wins deduplication over a three-level key
// with short-circuit: DOI when present, else the normalized title when long
// enough, else the document fingerprint. Metadata of later duplicates is
// discarded, not merged.
type Deduper struct{}

// New returns a ready Deduper.
func New() Deduper { return Deduper{} }

// Deduplicate returns the unique documents in input order plus pass stats.
// The pass is idempotent: feeding its output back removes nothing.
func (Deduper) Deduplicate(docs []search.Document) ([]search.Document, search.DedupStats) {
	seen := make(map[string]bool, len(docs))
	unique := make([]search.Document, 0, len(docs))
	for _, d := range docs {
		key := dedupKey(d)
		if seen[key] {
			logging.DedupDebug("Dropping duplicate %q (%s)", d.Title, key)
			continue
		}
		seen[key] = true
		unique = append(unique, d)
	}

	stats := search.DedupStats{
		OriginalCount:     len(docs),
		DeduplicatedCount: len(unique),
		DuplicatesRemoved: len(docs) - len(unique),
	}
	if stats.OriginalCount > 0 {
		stats.Rate = float64(stats.DuplicatesRemoved) / float64(stats.OriginalCount)
	}
	if stats.DuplicatesRemoved > 0 {
		logging.Dedup("Removed %d of %d documents as duplicates", stats.DuplicatesRemoved, stats.OriginalCount)
	}
	return unique, stats
}

// dedupKey picks the strongest identity available for a document. Keys are
// namespaced per level so a DOI can never collide with a title.
func dedupKey(d search.Document) string {
	if doi := NormalizeDOI(d.DOI); doi != "" {
		return "doi:" + doi
	}
	if title := search.NormalizeText(d.Title); len(title) >= minTitleKeyLength {
		return "title:" + title
	}
	if d.Fingerprint != "" {
		return "fp:" + d.Fingerprint
	}
	return "fp:" + search.ComputeFingerprint(d.Title, d.Authors, d.Year)
}

// NormalizeDOI lowercases a DOI and strips resolver prefixes so
// "https://doi.org/10.1234/X" and "10.1234/x" compare equal.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(strings.ToLower(doi))
	for _, prefix := range []string{
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
		"doi:",
	} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return strings.TrimSpace(doi)
}
