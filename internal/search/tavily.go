package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultSearchTimeout = 30 * time.Second

// TavilyClient calls the Tavily search REST API.
type TavilyClient struct {
	apiKey     string
	endpoint   string
	maxResults int
	httpClient *http.Client
}

// NewTavilyClient builds a client against the Tavily search endpoint.
func NewTavilyClient(apiKey, endpoint string, maxResults int) (*TavilyClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if endpoint == "" {
		endpoint = "https://api.tavily.com/search"
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &TavilyClient{
		apiKey:     apiKey,
		endpoint:   endpoint,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: defaultSearchTimeout},
	}, nil
}

type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []Result `json:"results"`
}

func (c *TavilyClient) Search(ctx context.Context, topic string) ([]Result, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("nil tavily client")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic required")
	}

	body, err := json.Marshal(tavilyRequest{
		Query:       topic,
		MaxResults:  c.maxResults,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode tavily response: %w", err)
	}
	if len(parsed.Results) > c.maxResults {
		parsed.Results = parsed.Results[:c.maxResults]
	}
	return parsed.Results, nil
}
