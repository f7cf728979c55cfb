package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"slrforge/internal/config"
	"slrforge/internal/fault"
)

const semanticScholarMaxLimit = 100

// SemanticScholar searches the Semantic Scholar Graph paper endpoint.
type SemanticScholar struct {
	BaseURL string
	http    *httpClient
}

func NewSemanticScholar(cfg *config.Config) *SemanticScholar {
	return &SemanticScholar{
		BaseURL: "https://api.semanticscholar.org",
		http:    newHTTPClient("semanticscholar", cfg),
	}
}

func (p *SemanticScholar) Name() string { return "semanticscholar" }

func (p *SemanticScholar) Search(ctx context.Context, query string, maxResults int) ([]Document, error) {
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > semanticScholarMaxLimit {
		maxResults = semanticScholarMaxLimit
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(maxResults))
	params.Set("fields", "title,abstract,year,venue,authors,externalIds,citationCount,url")

	body, err := p.http.get(ctx, fmt.Sprintf("%s/graph/v1/paper/search?%s", p.BaseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var resp semanticScholarResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fault.ProviderErr(p.Name(), false, err, "decoding paper search response")
	}

	docs := make([]Document, 0, len(resp.Data))
	for _, paper := range resp.Data {
		if paper.Title == "" {
			continue
		}
		d := Document{
			Title:         paper.Title,
			Year:          paper.Year,
			Venue:         paper.Venue,
			DOI:           paper.ExternalIDs.DOI,
			URL:           paper.URL,
			Abstract:      paper.Abstract,
			CitationCount: paper.CitationCount,
			Provider:      p.Name(),
			ArxivID:       paper.ExternalIDs.ArXiv,
			PubmedID:      paper.ExternalIDs.PubMed,
		}
		for _, a := range paper.Authors {
			if a.Name != "" {
				d.Authors = append(d.Authors, a.Name)
			}
		}
		docs = append(docs, d.Fingerprinted())
		if len(docs) == maxResults {
			break
		}
	}
	return docs, nil
}

type semanticScholarResponse struct {
	Total int                    `json:"total"`
	Data  []semanticScholarPaper `json:"data"`
}

type semanticScholarPaper struct {
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	Year          int    `json:"year"`
	Venue         string `json:"venue"`
	URL           string `json:"url"`
	CitationCount int    `json:"citationCount"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ExternalIDs struct {
		DOI    string `json:"DOI"`
		ArXiv  string `json:"ArXiv"`
		PubMed string `json:"PubMed"`
	} `json:"externalIds"`
}
