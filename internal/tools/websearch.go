package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"relay-chat/internal/agent"
)

const (
	defaultSearchBaseURL          = "https://api.tavily.com"
	defaultSearchTimeout          = 60 * time.Second
	defaultSearchMaxResponseBytes = 256 * 1024
)

// WebSearchTool 通过 Tavily Search API 执行联网搜索。
type WebSearchTool struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

type webSearchArgs struct {
	Query          string `json:"query"`
	SearchDepth    string `json:"search_depth"`
	MaxResults     int    `json:"max_results"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (t *WebSearchTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        "web_search",
		Description: "Search the web and return ranked results with content snippets.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query (required).",
				},
				"search_depth": map[string]any{
					"type":        "string",
					"description": "Search depth, basic or advanced (default: advanced).",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return (default: 5).",
				},
				"timeout_seconds": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Request timeout in seconds (default: %d).", int(defaultSearchTimeout.Seconds())),
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
	}
}

func (t *WebSearchTool) resolvedBaseURL() string {
	base := strings.TrimSpace(t.BaseURL)
	if base == "" {
		return defaultSearchBaseURL
	}
	return strings.TrimRight(base, "/")
}

func (t *WebSearchTool) resolvedHTTPClient() *http.Client {
	if t.HTTPClient != nil {
		return t.HTTPClient
	}
	return &http.Client{Timeout: defaultSearchTimeout}
}

func (t *WebSearchTool) loadAPIKey() (string, error) {
	if key := strings.TrimSpace(t.APIKey); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(os.Getenv("SEARCH_API_KEY")); key != "" {
		return key, nil
	}
	return "", errors.New("search api key is required (set search.api_key or env SEARCH_API_KEY)")
}

func (t *WebSearchTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in webSearchArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("web_search: invalid JSON arguments: %w", err)
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return "", errors.New("query is required")
	}
	searchDepth := strings.TrimSpace(in.SearchDepth)
	if searchDepth == "" {
		searchDepth = "advanced"
	}
	maxResults := in.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	payload := map[string]any{
		"query":        query,
		"search_depth": searchDepth,
		"max_results":  maxResults,
	}

	timeout := time.Duration(in.TimeoutSeconds) * time.Second
	status, body, truncated, err := t.doJSON(ctx, "/search", payload, timeout)
	if err != nil {
		return "", err
	}
	return formatSearchResponse(status, truncated, body), nil
}

func (t *WebSearchTool) doJSON(ctx context.Context, endpoint string, payload map[string]any, timeout time.Duration) (status int, respBody []byte, truncated bool, err error) {
	apiKey, err := t.loadAPIKey()
	if err != nil {
		return 0, nil, false, err
	}

	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, false, fmt.Errorf("marshal request: %w", err)
	}

	url := t.resolvedBaseURL() + endpoint
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.resolvedHTTPClient().Do(req)
	if err != nil {
		return 0, nil, false, err
	}
	defer resp.Body.Close()

	data, truncated, readErr := readLimited(resp.Body, defaultSearchMaxResponseBytes)
	if readErr != nil {
		return resp.StatusCode, data, truncated, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > 2000 {
			snippet = snippet[:2000] + "…"
		}
		return resp.StatusCode, data, truncated, fmt.Errorf("search api error: %s: %s", resp.Status, snippet)
	}

	return resp.StatusCode, data, truncated, nil
}

func readLimited(r io.Reader, maxBytes int) ([]byte, bool, error) {
	if maxBytes <= 0 {
		data, err := io.ReadAll(r)
		return data, false, err
	}

	limited := io.LimitReader(r, int64(maxBytes)+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return data, false, err
	}
	if len(data) > maxBytes {
		return data[:maxBytes], true, nil
	}
	return data, false, nil
}

func formatSearchResponse(status int, truncated bool, body []byte) string {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		raw = "(empty response)"
	}

	formatted := raw
	if !truncated {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
				formatted = string(pretty)
			}
		}
	}

	return fmt.Sprintf(
		"status_code: %d\ntruncated_response: %t\nresponse_bytes: %d\nresponse:\n%s",
		status,
		truncated,
		len(body),
		formatted,
	)
}
