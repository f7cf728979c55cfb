package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"slrforge/internal/config"
	"slrforge/internal/fault"
)

const openAlexMaxPerPage = 200

// OpenAlex searches the OpenAlex works endpoint. No API key required.
type OpenAlex struct {
	BaseURL string
	http    *httpClient
}

func NewOpenAlex(cfg *config.Config) *OpenAlex {
	return &OpenAlex{
		BaseURL: "https://api.openalex.org",
		http:    newHTTPClient("openalex", cfg),
	}
}

func (p *OpenAlex) Name() string { return "openalex" }

func (p *OpenAlex) Search(ctx context.Context, query string, maxResults int) ([]Document, error) {
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > openAlexMaxPerPage {
		maxResults = openAlexMaxPerPage
	}

	params := url.Values{}
	params.Set("search", query)
	params.Set("per-page", strconv.Itoa(maxResults))

	body, err := p.http.get(ctx, fmt.Sprintf("%s/works?%s", p.BaseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var resp openAlexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fault.ProviderErr(p.Name(), false, err, "decoding works response")
	}

	docs := make([]Document, 0, len(resp.Results))
	for _, w := range resp.Results {
		title := w.Title
		if title == "" {
			title = w.DisplayName
		}
		if title == "" {
			continue
		}

		d := Document{
			Title:         title,
			Year:          w.PublicationYear,
			DOI:           w.DOI,
			Abstract:      invertedAbstract(w.AbstractInvertedIndex),
			CitationCount: w.CitedByCount,
			Provider:      p.Name(),
			PubmedID:      trailingSegment(w.IDs.PMID),
		}
		for _, a := range w.Authorships {
			if a.Author.DisplayName != "" {
				d.Authors = append(d.Authors, a.Author.DisplayName)
			}
		}
		if loc := w.PrimaryLocation; loc != nil {
			d.URL = loc.LandingPageURL
			if loc.Source != nil {
				d.Venue = loc.Source.DisplayName
			}
		}
		docs = append(docs, d.Fingerprinted())
		if len(docs) == maxResults {
			break
		}
	}
	return docs, nil
}

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	Title                 string               `json:"title"`
	DisplayName           string               `json:"display_name"`
	DOI                   string               `json:"doi"`
	PublicationYear       int                  `json:"publication_year"`
	CitedByCount          int                  `json:"cited_by_count"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	PrimaryLocation       *openAlexLocation    `json:"primary_location"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	IDs                   openAlexIDs          `json:"ids"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type openAlexLocation struct {
	LandingPageURL string `json:"landing_page_url"`
	Source         *struct {
		DisplayName string `json:"display_name"`
	} `json:"source"`
}

type openAlexIDs struct {
	PMID string `json:"pmid"`
}

// invertedAbstract reconstructs the abstract text from OpenAlex's inverted
// index representation (word -> positions).
func invertedAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	type posWord struct {
		pos  int
		word string
	}
	var words []posWord
	for word, positions := range index {
		for _, pos := range positions {
			words = append(words, posWord{pos, word})
		}
	}
	sort.Slice(words, func(i, j int) bool { return words[i].pos < words[j].pos })

	parts := make([]string, 0, len(words))
	for _, pw := range words {
		parts = append(parts, pw.word)
	}
	return strings.Join(parts, " ")
}

// trailingSegment extracts the final path element of an identifier URL, so
// "https://pubmed.ncbi.nlm.nih.gov/12345" becomes "12345".
func trailingSegment(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u == "" {
		return ""
	}
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
