package search

import (
	"context"
	"fmt"
)

// Mock returns deterministic results when no real provider is configured.
// It never fails, so development environments behave like a (very boring)
// search engine rather than an outage.
type Mock struct{}

func (Mock) Search(_ context.Context, query string, _ Options) (*Response, error) {
	return &Response{
		Query: query,
		Results: []Hit{
			{
				Title:   fmt.Sprintf("Agricultural Information: %s", query),
				URL:     "https://example.com/agriculture",
				Content: fmt.Sprintf("Mock search result for: %s.", query),
				Snippet: "Mock agricultural data for development purposes.",
				Score:   0.95,
			},
			{
				Title:   "Algeria Ministry of Agriculture",
				URL:     "https://agriculture.dz",
				Content: "Official agricultural guidance and resources for Algerian farmers.",
				Snippet: "Government agricultural resources and best practices.",
				Score:   0.88,
			},
			{
				Title:   "FAO - Algeria Country Profile",
				URL:     "https://fao.org/algeria",
				Content: "Food and Agriculture Organization resources for Algeria.",
				Snippet: "International agricultural standards and recommendations.",
				Score:   0.82,
			},
		},
		Answer: fmt.Sprintf("Based on available information about %q, here are relevant agricultural insights.", query),
		Mock:   true,
	}, nil
}
