package openaichat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quillgate/quillgate/pkg/api"
	"github.com/quillgate/quillgate/pkg/provider"
	"github.com/quillgate/quillgate/pkg/provider/sse"
	"github.com/quillgate/quillgate/pkg/retry"
)

// statusProbeTimeout bounds the CheckStatus request so a wedged backend
// cannot hold a status query open for the full request timeout.
const statusProbeTimeout = 10 * time.Second

// Client implements provider.Provider for OpenAI-compatible Chat
// Completions backends. One Client owns one http.Client whose transport
// pools connections; all calls to the same backend reuse it.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      *retry.Policy

	// TokenSource mints a per-request credential. Nil uses the static
	// APIKey from the config as a bearer token.
	TokenSource func() (string, error)
}

// New creates a Client for the given backend configuration.
func New(cfg Config) *Client {
	cfg.defaults()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retry: cfg.Retry,
	}
}

// Name returns the configured provider identifier.
func (c *Client) Name() string { return c.cfg.Name }

// Capabilities reports native streaming support; all Chat Completions
// backends stream.
func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true}
}

// Close releases pooled idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// configured reports whether a credential is available without touching
// the network.
func (c *Client) configured() bool {
	return c.cfg.APIKey != "" || c.TokenSource != nil
}

// authorize attaches the request credential.
func (c *Client) authorize(req *http.Request) error {
	if c.TokenSource != nil {
		token, err := c.TokenSource()
		if err != nil {
			return api.NewAuthenticationError(fmt.Sprintf("failed to mint token: %s", err.Error()))
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return nil
}

// buildBody translates a provider request into the Chat Completions shape.
func (c *Client) buildBody(req *provider.Request, stream bool) *chatRequest {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := &chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		body.MaxTokens = &mt
	}
	return body
}

// newRequest builds the POST to the completions endpoint with headers
// and credential attached.
func (c *Client) newRequest(ctx context.Context, body *chatRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, api.NewProtocolError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.cfg.BaseURL + c.cfg.CompletionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, api.NewProtocolError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if err := c.authorize(httpReq); err != nil {
		return nil, err
	}
	return httpReq, nil
}

// Generate performs a non-streaming completion. Transient failures are
// retried with backoff per the configured policy.
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if !c.configured() {
		return nil, api.NewAuthenticationError(
			fmt.Sprintf("no API key configured for provider %q", c.cfg.Name))
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
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, api.NewProtocolError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}
	if len(chatResp.Choices) == 0 {
		return nil, api.NewProtocolError("backend response contained no choices")
	}

	model := chatResp.Model
	if model == "" {
		model = c.cfg.Model
	}
	return &provider.Result{
		Text:  chatResp.Choices[0].Message.Content,
		Model: model,
	}, nil
}

// Stream performs a streaming completion. Streams are never retried:
// the handshake error (non-2xx or transport failure) is returned before
// any event is emitted, and after the first delta a failure surfaces as
// a terminal error event.
//
// The HTTP client timeout is not applied: a stream can legitimately
// outlive any fixed timeout. The context controls the request lifetime,
// and the stream client shares the pooled transport.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	if !c.configured() {
		return nil, api.NewAuthenticationError(
			fmt.Sprintf("no API key configured for provider %q", c.cfg.Name))
	}

	httpReq, err := c.newRequest(ctx, c.buildBody(req, true))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	streamClient := &http.Client{Transport: c.httpClient.Transport}

	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, MapHTTPError(httpResp)
	}

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		relayChat(ctx, httpResp.Body, ch)
	}()
	return ch, nil
}

// relayChat reads SSE frames and forwards text deltas in arrival order.
// Frames without content (role announcements, usage frames) are passed
// over without consuming a sequence number.
func relayChat(ctx context.Context, body io.Reader, ch chan<- provider.Event) {
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
				ev.Err = MapNetworkError(err)
			}
			send(ctx, ch, ev)
			return
		}

		var chunk chatChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		seq++
		if !send(ctx, ch, provider.Event{
			Type:  provider.EventTextDelta,
			Delta: chunk.Choices[0].Delta.Content,
			Seq:   seq,
		}) {
			return
		}
	}
}

// send delivers an event unless the consumer has gone away.
func send(ctx context.Context, ch chan<- provider.Event, ev provider.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// CheckStatus probes the backend with a single minimal completion. It is
// never retried and returns StatusNotConfigured without network I/O when
// no credential is present.
func (c *Client) CheckStatus(ctx context.Context) provider.Status {
	if !c.configured() {
		return provider.StatusNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()

	one := 1
	httpReq, err := c.newRequest(ctx, &chatRequest{
		Model:     c.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: "ping"}},
		MaxTokens: &one,
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
