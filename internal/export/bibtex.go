package export

import (
	"fmt"
	"strings"
	"unicode"

	"slrforge/internal/search"
)

// BibTeX renders documents as a bibliography. Records carrying a DOI or a
// venue become @article entries, everything else @misc. Citation keys follow
// <surname><year>_<index> so they stay unique even when the same author and
// year repeat.
func BibTeX(docs []search.Document) []byte {
	var sb strings.Builder
	for i, d := range docs {
		entryType := "misc"
		if d.DOI != "" || d.Venue != "" {
			entryType = "article"
		}

		sb.WriteString(fmt.Sprintf("@%s{%s,\n", entryType, citationKey(d, i+1)))
		writeBibField(&sb, "title", d.Title)
		if len(d.Authors) > 0 {
			writeBibField(&sb, "author", strings.Join(d.Authors, " and "))
		}
		if d.Year > 0 {
			writeBibField(&sb, "year", yearString(d.Year))
		}
		if entryType == "article" && d.Venue != "" {
			writeBibField(&sb, "journal", d.Venue)
		}
		writeBibField(&sb, "doi", d.DOI)
		writeBibField(&sb, "url", d.URL)
		writeBibField(&sb, "abstract", truncateRunes(d.Abstract, maxAbstractChars))
		writeBibField(&sb, "note", bibNote(d))
		sb.WriteString("}\n\n")
	}
	return []byte(sb.String())
}

func writeBibField(sb *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	sb.WriteString(fmt.Sprintf("  %s = {%s},\n", name, escapeBraces(value)))
}

func escapeBraces(s string) string {
	s = strings.ReplaceAll(s, "{", `\{`)
	return strings.ReplaceAll(s, "}", `\}`)
}

// citationKey builds <FirstAuthorSurname><Year>_<index>. Missing pieces are
// simply left out; the index keeps the key unique regardless.
func citationKey(d search.Document, index int) string {
	var sb strings.Builder
	for _, r := range search.FirstAuthorSurname(d.Authors) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	if d.Year > 0 {
		sb.WriteString(yearString(d.Year))
	}
	return fmt.Sprintf("%s_%d", sb.String(), index)
}

func bibNote(d search.Document) string {
	var parts []string
	if d.ArxivID != "" {
		parts = append(parts, "arXiv:"+d.ArxivID)
	}
	if d.PubmedID != "" {
		parts = append(parts, "PMID:"+d.PubmedID)
	}
	if d.Provider != "" {
		parts = append(parts, "via "+d.Provider)
	}
	return strings.Join(parts, ", ")
}
