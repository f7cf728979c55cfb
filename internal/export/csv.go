package export

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"

	"slrforge/internal/fault"
	"slrforge/internal/search"
)

const (
	maxAbstractChars = 500
	maxCSVAuthors    = 10
	maxRISAuthors    = 20
)

var csvHeader = []string{
	"title", "authors", "year", "venue", "doi", "url",
	"abstract", "citation_count", "provider",
}

// CSV renders documents as an RFC 4180 spreadsheet with one header row.
// Abstracts are truncated and author lists capped so rows stay usable in
// screening tools.
func CSV(docs []search.Document) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fault.Internal(err, "writing csv header")
	}
	for _, d := range docs {
		row := []string{
			d.Title,
			joinAuthors(d.Authors, maxCSVAuthors),
			yearString(d.Year),
			d.Venue,
			d.DOI,
			d.URL,
			truncateRunes(d.Abstract, maxAbstractChars),
			strconv.Itoa(d.CitationCount),
			d.Provider,
		}
		if err := w.Write(row); err != nil {
			return nil, fault.Internal(err, "writing csv row for %q", d.Title)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fault.Internal(err, "flushing csv output")
	}
	return buf.Bytes(), nil
}

func joinAuthors(authors []string, limit int) string {
	if len(authors) > limit {
		authors = authors[:limit]
	}
	return strings.Join(authors, "; ")
}

func yearString(year int) string {
	if year <= 0 {
		return ""
	}
	return strconv.Itoa(year)
}

// truncateRunes cuts s to at most max characters without splitting a
// multibyte rune.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
