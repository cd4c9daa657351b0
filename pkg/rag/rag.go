// Package rag is the client boundary to the external vector-search
// service. The embedding and similarity machinery lives in that service;
// this package only issues search queries and normalizes failures to the
// gateway error taxonomy so callers handle them like any provider fault.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quillgate/quillgate/pkg/api"
	"github.com/quillgate/quillgate/pkg/retry"
)

const defaultTimeout = 15 * time.Second

// Document is one ranked search result.
type Document struct {
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Config holds settings for the search service client.
type Config struct {
	// BaseURL is the service root. Empty disables the client; Search
	// then returns no documents.
	BaseURL string

	// Timeout bounds one search call. Default: 15s.
	Timeout time.Duration

	// Retry overrides the default backoff policy.
	Retry *retry.Policy
}

// Client queries the vector-search service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      *retry.Policy
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultPolicy()
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      cfg.Retry,
	}
}

// Enabled reports whether a search service is configured.
func (c *Client) Enabled() bool { return c.cfg.BaseURL != "" }

type searchRequest struct {
	Query string `json:"query"`
	N     int    `json:"n_results"`
}

type searchResponse struct {
	Results []Document `json:"results"`
}

// Search returns up to n ranked documents for the query. Transient
// service failures are retried; a disabled client returns no documents
// so generation proceeds without retrieval context.
func (c *Client) Search(ctx context.Context, query string, n int) ([]Document, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if n <= 0 {
		n = 5
	}

	var docs []Document
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		d, err := c.searchOnce(ctx, query, n)
		if err != nil {
			return err
		}
		docs = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *Client) searchOnce(ctx context.Context, query string, n int) ([]Document, error) {
	payload, err := json.Marshal(searchRequest{Query: query, N: n})
	if err != nil {
		return nil, api.NewProtocolError(fmt.Sprintf("failed to marshal search request: %s", err.Error()))
	}

	url := c.cfg.BaseURL + "/search"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, api.NewProtocolError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, api.NewNetworkError(fmt.Sprintf("search service connection error: %s", err.Error()))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		e := api.NewUpstreamError(fmt.Sprintf("search service error (HTTP %d)", httpResp.StatusCode))
		e.HTTPStatus = httpResp.StatusCode
		return nil, e
	}

	var searchResp searchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&searchResp); err != nil {
		return nil, api.NewProtocolError(fmt.Sprintf("failed to parse search response: %s", err.Error()))
	}
	return searchResp.Results, nil
}

// Close releases pooled idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
