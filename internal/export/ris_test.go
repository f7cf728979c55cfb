package export

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slrforge/internal/search"
)

type risRecord struct {
	tags map[string][]string
}

func (r risRecord) first(tag string) string {
	vals := r.tags[tag]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func parseRIS(t *testing.T, data []byte) []risRecord {
	t.Helper()
	var records []risRecord
	cur := risRecord{tags: map[string][]string{}}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ER  -") {
			records = append(records, cur)
			cur = risRecord{tags: map[string][]string{}}
			continue
		}
		require.True(t, len(line) > 6 && line[2:6] == "  - ", "malformed RIS line %q", line)
		cur.tags[line[:2]] = append(cur.tags[line[:2]], line[6:])
	}
	return records
}

func TestRISRecordShape(t *testing.T) {
	docs := []search.Document{
		{
			Title:    "Journal Paper",
			Authors:  []string{"Jane Doe", "John Smith"},
			Year:     2021,
			Venue:    "J. Test",
			DOI:      "10.1/a",
			URL:      "https://example.org/a",
			Abstract: "Line one.\nLine two.",
			Provider: "openalex",
		},
		{Title: "Bare Preprint", Year: 2019, Provider: "arxiv"},
	}

	out := string(RIS(docs))
	assert.True(t, strings.HasPrefix(out, "TY  - "), "records open with the type tag")
	assert.Equal(t, 2, strings.Count(out, "ER  - "), "every record is terminated")

	records := parseRIS(t, []byte(out))
	require.Len(t, records, 2)

	r := records[0]
	assert.Equal(t, "JOUR", r.first("TY"))
	assert.Equal(t, "Journal Paper", r.first("TI"))
	assert.Equal(t, []string{"Jane Doe", "John Smith"}, r.tags["AU"])
	assert.Equal(t, "2021", r.first("PY"))
	assert.Equal(t, "J. Test", r.first("JO"))
	assert.Equal(t, "10.1/a", r.first("DO"))
	assert.Equal(t, "https://example.org/a", r.first("UR"))
	assert.Equal(t, "Line one. Line two.", r.first("AB"), "newlines cannot split a tag value")
	assert.Equal(t, "openalex", r.first("KW"), "provider rides along as a keyword")

	assert.Equal(t, "GEN", records[1].first("TY"), "no venue and no DOI means a generic record")
	assert.Empty(t, records[1].tags["JO"])
}

func TestRISCapsAuthorsAtTwenty(t *testing.T) {
	authors := make([]string, 23)
	for i := range authors {
		authors[i] = fmt.Sprintf("Author %02d", i)
	}
	docs := []search.Document{{Title: "Crowded", Authors: authors, Year: 2020, Provider: "p"}}

	records := parseRIS(t, RIS(docs))
	require.Len(t, records, 1)
	assert.Len(t, records[0].tags["AU"], 20)
}

func TestRISRoundTrip(t *testing.T) {
	docs := []search.Document{
		{Title: "Alpha Study", Authors: []string{"Jane Doe", "John Smith"}, Year: 2021, Venue: "V", Provider: "openalex"},
		{Title: "Beta Notes", Authors: []string{"Müller, Eva"}, Year: 2019, Provider: "crossref"},
		{Title: "Gamma Report", Year: 2017, Provider: "arxiv"},
	}

	records := parseRIS(t, RIS(docs))
	require.Len(t, records, len(docs))

	for i, d := range docs {
		r := records[i]
		assert.Equal(t, d.Title, r.first("TI"), "doc %d title", i)

		year := 0
		if py := r.first("PY"); py != "" {
			var err error
			year, err = strconv.Atoi(py)
			require.NoError(t, err)
		}
		assert.Equal(t, d.Year, year, "doc %d year", i)
		assert.Equal(t, d.Authors, r.tags["AU"], "doc %d authors", i)
	}
}
