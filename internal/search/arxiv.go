package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"slrforge/internal/config"
	"slrforge/internal/fault"
)

const arxivMaxResults = 100

// Arxiv searches the arXiv Atom API. Queries use the "all:" field syntax
// produced by the arxiv dialect.
type Arxiv struct {
	BaseURL string
	http    *httpClient
}

func NewArxiv(cfg *config.Config) *Arxiv {
	return &Arxiv{
		BaseURL: "https://export.arxiv.org",
		http:    newHTTPClient("arxiv", cfg),
	}
}

func (p *Arxiv) Name() string { return "arxiv" }

func (p *Arxiv) Search(ctx context.Context, query string, maxResults int) ([]Document, error) {
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > arxivMaxResults {
		maxResults = arxivMaxResults
	}

	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))

	body, err := p.http.get(ctx, fmt.Sprintf("%s/api/query?%s", p.BaseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fault.ProviderErr(p.Name(), false, err, "decoding atom feed")
	}

	docs := make([]Document, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		title := collapseSpace(entry.Title)
		if title == "" {
			continue
		}

		d := Document{
			Title:    title,
			Year:     atomYear(entry.Published),
			Venue:    collapseSpace(entry.JournalRef),
			DOI:      entry.DOI,
			Abstract: collapseSpace(entry.Summary),
			Provider: p.Name(),
			ArxivID:  arxivIDFrom(entry.ID),
		}
		if d.Venue == "" {
			d.Venue = "arXiv"
		}
		for _, a := range entry.Authors {
			if name := collapseSpace(a.Name); name != "" {
				d.Authors = append(d.Authors, name)
			}
		}
		d.URL = entry.alternateLink()
		if d.URL == "" {
			d.URL = entry.ID
		}
		docs = append(docs, d.Fingerprinted())
		if len(docs) == maxResults {
			break
		}
	}
	return docs, nil
}

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	DOI        string `xml:"doi"`
	JournalRef string `xml:"journal_ref"`
	Links      []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
}

func (e arxivEntry) alternateLink() string {
	for _, l := range e.Links {
		if l.Rel == "alternate" {
			return l.Href
		}
	}
	return ""
}

// arxivIDFrom extracts "2101.00001v2" from "http://arxiv.org/abs/2101.00001v2".
func arxivIDFrom(id string) string {
	if i := strings.LastIndex(id, "/abs/"); i >= 0 {
		return id[i+len("/abs/"):]
	}
	return id
}

func atomYear(published string) int {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(published))
	if err != nil {
		return 0
	}
	return t.Year()
}

// collapseSpace flattens the newline-wrapped text arXiv embeds in titles
// and abstracts.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
