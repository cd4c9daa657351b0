// Package ollama implements provider.Provider for a local Ollama daemon.
// The daemon speaks bare JSON lines rather than SSE: each streaming frame
// is one object with a "response" text fragment and a "done" flag, and
// there is no credential. The status probe hits GET /api/tags, which
// answers without loading a model.
package ollama

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

const (
	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 120 * time.Second

	statusProbeTimeout = 5 * time.Second
)

// Config holds settings for the local daemon.
type Config struct {
	// BaseURL is the daemon root. Default: "http://localhost:11434".
	BaseURL string

	// Model is the model identifier sent with every request.
	Model string

	// Timeout bounds non-streaming requests. Default: 120s; local
	// models on modest hardware can be slow.
	Timeout time.Duration

	// Retry overrides the default backoff policy.
	Retry *retry.Policy
}

// generateRequest is the /api/generate body.
type generateRequest struct {
	Model   string      `json:"model"`
	Prompt  string      `json:"prompt"`
	System  string      `json:"system,omitempty"`
	Stream  bool        `json:"stream"`
	Options *genOptions `json:"options,omitempty"`
}

type genOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

// generateResponse is both the complete non-streaming response and a
// single streaming frame; the daemon reuses the shape.
type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Client implements provider.Provider for the daemon.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      *retry.Policy
}

// New creates a Client for the local daemon.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
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

func (c *Client) Name() string { return "ollama" }

func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true}
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) buildBody(req *provider.Request, stream bool) *generateRequest {
	body := &generateRequest{
		Model:  c.cfg.Model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: stream,
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		body.Options = &genOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}
	return body
}

func (c *Client) newRequest(ctx context.Context, body *generateRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, api.NewProtocolError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.cfg.BaseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, api.NewProtocolError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

// mapHTTPError classifies a non-2xx daemon response. The daemon has no
// credentials, so there is no auth case; a 404 usually means the model
// is not pulled.
func mapHTTPError(resp *http.Response) *api.Error {
	var message string
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(data) > 0 {
		var errResp generateResponse
		if json.Unmarshal(data, &errResp) == nil {
			message = errResp.Error
		}
	}
	if message == "" {
		message = fmt.Sprintf("daemon error (HTTP %d)", resp.StatusCode)
	}
	e := api.NewUpstreamError(message)
	e.HTTPStatus = resp.StatusCode
	return e
}

func mapNetworkError(err error) *api.Error {
	return api.NewNetworkError(fmt.Sprintf("daemon connection error: %s", err.Error()))
}

// Generate performs a non-streaming /api/generate call with retry on
// transient failures.
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Result, error) {
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

	var genResp generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&genResp); err != nil {
		return nil, api.NewProtocolError(fmt.Sprintf("failed to parse daemon response: %s", err.Error()))
	}
	if genResp.Error != "" {
		return nil, api.NewUpstreamError(genResp.Error)
	}

	model := genResp.Model
	if model == "" {
		model = c.cfg.Model
	}
	return &provider.Result{Text: genResp.Response, Model: model}, nil
}

// Stream performs a streaming /api/generate call. Frames arrive as bare
// JSON lines; the frame with done=true terminates the stream.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	httpReq, err := c.newRequest(ctx, c.buildBody(req, true))
	if err != nil {
		return nil, err
	}

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

func relay(ctx context.Context, body io.Reader, ch chan<- provider.Event) {
	dec := sse.NewLineDecoder(body)
	seq := 0

	for {
		payload, err := dec.Next()
		if err != nil {
			ev := provider.Event{SkippedFrames: dec.Skipped(), Seq: seq + 1}
			if err == io.EOF {
				ev.Type = provider.EventDone
			} else {
				ev.Type = provider.EventError
				ev.Err = mapNetworkError(err)
			}
			send(ctx, ch, ev)
			return
		}

		var frame generateResponse
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		if frame.Error != "" {
			send(ctx, ch, provider.Event{
				Type:          provider.EventError,
				Seq:           seq + 1,
				SkippedFrames: dec.Skipped(),
				Err:           api.NewUpstreamError(frame.Error),
			})
			return
		}

		if frame.Response != "" {
			seq++
			if !send(ctx, ch, provider.Event{
				Type:  provider.EventTextDelta,
				Delta: frame.Response,
				Seq:   seq,
			}) {
				return
			}
		}

		if frame.Done {
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

// CheckStatus probes GET /api/tags, which answers without loading a
// model. An unreachable daemon reports not_configured rather than error:
// a missing local daemon is an expected deployment state, not a fault.
func (c *Client) CheckStatus(ctx context.Context) provider.Status {
	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()

	url := c.cfg.BaseURL + "/api/tags"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return provider.StatusError
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return provider.StatusNotConfigured
	}
	defer httpResp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return provider.StatusOK
	}
	return provider.StatusError
}
