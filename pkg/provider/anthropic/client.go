package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quillgate/quillgate/pkg/api"
	"github.com/quillgate/quillgate/pkg/provider"
	"github.com/quillgate/quillgate/pkg/provider/sse"
	"github.com/quillgate/quillgate/pkg/retry"
)

const (
	// apiVersion is the pinned Messages API revision.
	apiVersion = "2023-06-01"

	defaultMessagesPath = "/v1/messages"
	defaultTimeout      = 60 * time.Second
	defaultMaxTokens    = 8192

	statusProbeTimeout = 10 * time.Second
)

// Config holds settings for the Anthropic backend.
type Config struct {
	// BaseURL is the API root. Default: "https://api.anthropic.com".
	BaseURL string

	// APIKey is the x-api-key credential. Empty means not configured.
	APIKey string

	// Model is the model identifier sent with every request.
	Model string

	// Timeout bounds non-streaming requests. Default: 60s.
	Timeout time.Duration

	// Retry overrides the default backoff policy.
	Retry *retry.Policy
}

// Client implements provider.Provider for the Messages API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      *retry.Policy
}

// New creates a Client for the Anthropic backend.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
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

func (c *Client) Name() string { return "anthropic" }

func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true}
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) buildBody(req *provider.Request, stream bool) *messagesRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	return &messagesRequest{
		Model:       c.cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Stream:      stream,
	}
}

func (c *Client) newRequest(ctx context.Context, body *messagesRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, api.NewProtocolError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.cfg.BaseURL + defaultMessagesPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, api.NewProtocolError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	return httpReq, nil
}

// mapHTTPError converts a non-2xx Messages API response into an *api.Error.
func mapHTTPError(resp *http.Response) *api.Error {
	var message string
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(data) > 0 {
		var errResp errorResponse
		if json.Unmarshal(data, &errResp) == nil {
			message = errResp.Error.Message
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "backend rejected credentials"
		}
		return api.NewAuthenticationError(message)
	case resp.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "backend rate limit exceeded"
		}
		return api.NewRateLimitedError(message, parseRetryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode == http.StatusBadRequest:
		if message == "" {
			message = "backend rejected request"
		}
		return api.NewInvalidRequestError("", message)
	default:
		if message == "" {
			message = fmt.Sprintf("backend server error (HTTP %d)", resp.StatusCode)
		}
		e := api.NewUpstreamError(message)
		e.HTTPStatus = resp.StatusCode
		return e
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func mapNetworkError(err error) *api.Error {
	return api.NewNetworkError(fmt.Sprintf("backend connection error: %s", err.Error()))
}

// Generate performs a non-streaming Messages call with retry on
// transient failures.
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if c.cfg.APIKey == "" {
		return nil, api.NewAuthenticationError(`no API key configured for provider "anthropic"`)
	}

	var result *provider.Result
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		r, err := c.generateOnce(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) generateOnce(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	httpReq, err := c.newRequest(ctx, c.buildBody(req, false))
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, mapHTTPError(httpResp)
	}

	var msgResp messagesResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&msgResp); err != nil {
		return nil, api.NewProtocolError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	var text string
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" && len(msgResp.Content) == 0 {
		return nil, api.NewProtocolError("backend response contained no content blocks")
	}

	model := msgResp.Model
	if model == "" {
		model = c.cfg.Model
	}
	return &provider.Result{Text: strings.TrimSpace(text), Model: model}, nil
}

// Stream performs a streaming Messages call. The handshake failure is
// returned before any event; after that, events arrive on the channel in
// wire order and a mid-stream failure is a terminal error event.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	if c.cfg.APIKey == "" {
		return nil, api.NewAuthenticationError(`no API key configured for provider "anthropic"`)
	}

	httpReq, err := c.newRequest(ctx, c.buildBody(req, true))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	// No fixed timeout on streams; the context bounds the lifetime.
	streamClient := &http.Client{Transport: c.httpClient.Transport}

	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, mapHTTPError(httpResp)
	}

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		relay(ctx, httpResp.Body, ch)
	}()
	return ch, nil
}

// relay reads typed Messages events and forwards text deltas in arrival
// order. message_stop ends the stream even when the connection stays open.
func relay(ctx context.Context, body io.Reader, ch chan<- provider.Event) {
	dec := sse.NewDecoder(body)
	seq := 0

	for {
		payload, err := dec.Next()
		if err != nil {
			ev := provider.Event{SkippedFrames: dec.Skipped(), Seq: seq + 1}
			switch err {
			case sse.ErrDone, io.EOF:
				ev.Type = provider.EventDone
			default:
				ev.Type = provider.EventError
				ev.Err = mapNetworkError(err)
			}
			send(ctx, ch, ev)
			return
		}

		var ev streamEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "content_block_delta":
			if ev.Delta == nil || ev.Delta.Type != "text_delta" || ev.Delta.Text == "" {
				continue
			}
			seq++
			if !send(ctx, ch, provider.Event{
				Type:  provider.EventTextDelta,
				Delta: ev.Delta.Text,
				Seq:   seq,
			}) {
				return
			}
		case "message_stop":
			send(ctx, ch, provider.Event{
				Type:          provider.EventDone,
				Seq:           seq + 1,
				SkippedFrames: dec.Skipped(),
			})
			return
		}
	}
}

func send(ctx context.Context, ch chan<- provider.Event, ev provider.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// CheckStatus probes the Messages endpoint with a minimal request. A
// single attempt on a short timeout; no network call without a credential.
func (c *Client) CheckStatus(ctx context.Context) provider.Status {
	if c.cfg.APIKey == "" {
		return provider.StatusNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()

	httpReq, err := c.newRequest(ctx, &messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: 10,
		Messages:  []message{{Role: "user", Content: "Hi"}},
	})
	if err != nil {
		return provider.StatusError
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return provider.StatusError
	}
	defer httpResp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))

	switch {
	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
		return provider.StatusOK
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return provider.StatusInvalidCredential
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return provider.StatusRateLimited
	default:
		return provider.StatusError
	}
}
