package search

import "context"

// Hit is one retrieved web result. Relevance ordering comes from the
// provider; results are never re-ranked locally.
type Hit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

type Response struct {
	Query   string `json:"query"`
	Results []Hit  `json:"results"`
	Answer  string `json:"answer,omitempty"`
	Mock    bool   `json:"mock,omitempty"`
}

type Options struct {
	Topic          string
	MaxResults     int
	IncludeDomains []string
}

type Provider interface {
	Search(ctx context.Context, query string, opts Options) (*Response, error)
}
