// Package research turns interview transcripts into historical context: an
// extractor that mines event anchors from the dialogue, and a researcher that
// runs targeted web searches and distills the findings for the writer.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"saga/pkg/config"
	"saga/pkg/utils"
)

// SearchResult is a single search hit. Content carries the fullest text the
// provider returned (raw page content when available, snippet otherwise).
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// SearchClient is the interface for web search backends. Zero results is a
// valid outcome, not an error.
type SearchClient interface {
	// Name returns a human-readable name for the provider.
	Name() string
	// Search performs a web search and returns up to maxResults results.
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// tavilyMaxResults is the hard cap the Tavily API accepts per request.
const tavilyMaxResults = 10

const defaultTavilyBaseURL = "https://api.tavily.com"

// TavilyClient implements SearchClient against the Tavily search API.
type TavilyClient struct {
	apiKey     string
	baseURL    string
	defaultMax int
	httpClient *http.Client
}

// NewTavilyClient creates a Tavily search client. The config supplies the
// per-query timeout and the default result count used when a caller passes
// maxResults <= 0.
func NewTavilyClient(apiKey string, cfg config.SearchConfig) *TavilyClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	defaultMax := cfg.MaxResults
	if defaultMax <= 0 {
		defaultMax = 5
	}
	return &TavilyClient{
		apiKey:     apiKey,
		baseURL:    defaultTavilyBaseURL,
		defaultMax: defaultMax,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (c *TavilyClient) Name() string {
	return "tavily"
}

// tavilySearchRequest is the Tavily /search request body.
type tavilySearchRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

// tavilySearchItem is a single result in the Tavily response. Content is the
// snippet; RawContent is the extracted page text when requested.
type tavilySearchItem struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	Content    string `json:"content"`
	RawContent string `json:"raw_content"`
}

// tavilySearchResponse is the Tavily /search response body.
type tavilySearchResponse struct {
	Results []tavilySearchItem `json:"results"`
}

// Search performs a web search via the Tavily API. Raw page content is
// requested so research can work from full text instead of snippets.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = c.defaultMax
	}
	if maxResults > tavilyMaxResults {
		maxResults = tavilyMaxResults
	}

	payload, err := json.Marshal(tavilySearchRequest{
		APIKey:            c.apiKey,
		Query:             query,
		MaxResults:        maxResults,
		IncludeRawContent: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, utils.Head(string(body), 200))
	}

	var tavilyResp tavilySearchResponse
	if unmarshalErr := json.Unmarshal(body, &tavilyResp); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", unmarshalErr)
	}

	results := make([]SearchResult, 0, len(tavilyResp.Results))
	for i := range tavilyResp.Results {
		item := &tavilyResp.Results[i]
		content := item.RawContent
		if content == "" {
			content = item.Content
		}
		results = append(results, SearchResult{
			Title:   item.Title,
			URL:     item.URL,
			Content: content,
		})
	}
	return results, nil
}
