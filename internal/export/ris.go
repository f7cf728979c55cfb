package export

import (
	"fmt"
	"strings"

	"slrforge/internal/search"
)

// RIS renders documents in the RIS interchange format understood by
// reference managers. Journal-backed records use TY JOUR, the rest GEN. The
// originating provider is carried as a keyword so reviewers can filter by
// source after import.
func RIS(docs []search.Document) []byte {
	var sb strings.Builder
	for _, d := range docs {
		entryType := "GEN"
		if d.DOI != "" || d.Venue != "" {
			entryType = "JOUR"
		}
		writeRISTag(&sb, "TY", entryType)
		writeRISTag(&sb, "TI", d.Title)

		authors := d.Authors
		if len(authors) > maxRISAuthors {
			authors = authors[:maxRISAuthors]
		}
		for _, a := range authors {
			writeRISTag(&sb, "AU", a)
		}

		writeRISTag(&sb, "PY", yearString(d.Year))
		writeRISTag(&sb, "JO", d.Venue)
		writeRISTag(&sb, "DO", d.DOI)
		writeRISTag(&sb, "UR", d.URL)
		writeRISTag(&sb, "AB", truncateRunes(flattenLines(d.Abstract), maxAbstractChars))
		writeRISTag(&sb, "KW", d.Provider)
		sb.WriteString("ER  - \n\n")
	}
	return []byte(sb.String())
}

func writeRISTag(sb *strings.Builder, tag, value string) {
	if value == "" {
		return
	}
	sb.WriteString(fmt.Sprintf("%s  - %s\n", tag, value))
}

// flattenLines keeps one tag per line; RIS readers treat a bare newline as
// the start of the next tag.
func flattenLines(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
