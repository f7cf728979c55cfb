package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"slrforge/internal/config"
	"slrforge/internal/fault"
)

const crossrefMaxRows = 1000

// Crossref searches the Crossref works endpoint. No API key required.
type Crossref struct {
	BaseURL string
	http    *httpClient
}

func NewCrossref(cfg *config.Config) *Crossref {
	return &Crossref{
		BaseURL: "https://api.crossref.org",
		http:    newHTTPClient("crossref", cfg),
	}
}

func (p *Crossref) Name() string { return "crossref" }

func (p *Crossref) Search(ctx context.Context, query string, maxResults int) ([]Document, error) {
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > crossrefMaxRows {
		maxResults = crossrefMaxRows
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("rows", strconv.Itoa(maxResults))

	body, err := p.http.get(ctx, fmt.Sprintf("%s/works?%s", p.BaseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var resp crossrefResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fault.ProviderErr(p.Name(), false, err, "decoding works response")
	}

	docs := make([]Document, 0, len(resp.Message.Items))
	for _, item := range resp.Message.Items {
		if len(item.Title) == 0 || item.Title[0] == "" {
			continue
		}

		d := Document{
			Title:         item.Title[0],
			Year:          item.year(),
			DOI:           item.DOI,
			URL:           item.URL,
			Abstract:      stripMarkup(item.Abstract),
			CitationCount: item.IsReferencedByCount,
			Provider:      p.Name(),
		}
		if len(item.ContainerTitle) > 0 {
			d.Venue = item.ContainerTitle[0]
		}
		for _, a := range item.Author {
			name := strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family))
			if name != "" {
				d.Authors = append(d.Authors, name)
			}
		}
		docs = append(docs, d.Fingerprinted())
		if len(docs) == maxResults {
			break
		}
	}
	return docs, nil
}

type crossrefResponse struct {
	Message struct {
		Items []crossrefItem `json:"items"`
	} `json:"message"`
}

type crossrefItem struct {
	DOI                 string          `json:"DOI"`
	Title               []string        `json:"title"`
	ContainerTitle      []string        `json:"container-title"`
	Author              []crossrefName  `json:"author"`
	Issued              crossrefDate    `json:"issued"`
	PublishedPrint      crossrefDate    `json:"published-print"`
	URL                 string          `json:"URL"`
	Abstract            string          `json:"abstract"`
	IsReferencedByCount int             `json:"is-referenced-by-count"`
}

type crossrefName struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type crossrefDate struct {
	DateParts [][]int `json:"date-parts"`
}

func (d crossrefDate) year() int {
	if len(d.DateParts) > 0 && len(d.DateParts[0]) > 0 {
		return d.DateParts[0][0]
	}
	return 0
}

func (i crossrefItem) year() int {
	if y := i.Issued.year(); y > 0 {
		return y
	}
	return i.PublishedPrint.year()
}

// stripMarkup removes JATS/XML tags from Crossref abstracts, which arrive
// as fragments like "<jats:p>text</jats:p>".
func stripMarkup(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
