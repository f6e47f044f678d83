package search

import "context"

// Result is one ranked source snippet returned by the search provider.
// Results feed the summarizer and are not retained afterwards.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// Client is a minimal search interface to allow pluggable providers.
type Client interface {
	Search(ctx context.Context, topic string) ([]Result, error)
}
