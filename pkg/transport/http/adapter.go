package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillgate/quillgate/pkg/api"
	"github.com/quillgate/quillgate/pkg/gateway"
	"github.com/quillgate/quillgate/pkg/observability"
	"github.com/quillgate/quillgate/pkg/prompt"
	"github.com/quillgate/quillgate/pkg/provider"
	"github.com/quillgate/quillgate/pkg/rag"
	"github.com/quillgate/quillgate/pkg/session"
	"github.com/quillgate/quillgate/pkg/transport"
)

// Adapter serves the quillgate generation API over HTTP.
// It routes requests to the gateway and serializes results as JSON or SSE.
type Adapter struct {
	gw       *gateway.Gateway
	sessions session.Store // nil disables session endpoints
	search   *rag.Client   // nil or disabled skips retrieval
	mux      *http.ServeMux
	config   Config
	logger   *slog.Logger
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	RAGResults  int
	MetricsPath string // empty disables the metrics endpoint
	Logger      *slog.Logger
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 1 << 20, // 1 MB: prompts, not uploads
		RAGResults:  5,
		MetricsPath: "/metrics",
	}
}

// NewAdapter creates an HTTP adapter around a gateway. The session store
// and retrieval client are optional; endpoints that need an absent
// collaborator answer 501.
func NewAdapter(gw *gateway.Gateway, sessions session.Store, search *rag.Client, cfg Config) *Adapter {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if cfg.RAGResults <= 0 {
		cfg.RAGResults = DefaultConfig().RAGResults
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		gw:       gw,
		sessions: sessions,
		search:   search,
		mux:      http.NewServeMux(),
		config:   cfg,
		logger:   logger,
	}

	a.mux.HandleFunc("POST /v1/generate", a.handleGenerate)
	a.mux.HandleFunc("POST /v1/generate/stream", a.handleGenerateStream)
	a.mux.HandleFunc("GET /v1/providers", a.handleProviders)
	a.mux.HandleFunc("GET /v1/providers/{name}/status", a.handleProviderStatus)
	a.mux.HandleFunc("GET /v1/sessions/{id}", a.handleGetSession)
	a.mux.HandleFunc("POST /v1/sessions/{id}/context", a.handleAppendContext)
	a.mux.HandleFunc("POST /v1/sessions/{id}/attachments", a.handleAttach)
	a.mux.HandleFunc("DELETE /v1/sessions/{id}", a.handleDeleteSession)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	if cfg.MetricsPath != "" {
		a.mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}

	return a
}

// Handler returns the http.Handler for this adapter, without middleware.
// The Server wraps it with the standard chain; tests can wrap their own.
func (a *Adapter) Handler() http.Handler {
	return a.mux
}

// generateRequest is the wire shape of a generation call. The embedded
// GenerationRequest fields pass through to the gateway; session_id and
// use_rag drive prompt composition at this boundary.
type generateRequest struct {
	api.GenerationRequest
	SessionID string `json:"session_id,omitempty"`
	UseRAG    bool   `json:"use_rag,omitempty"`
}

func (a *Adapter) decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (*generateRequest, bool) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		transport.WriteErrorStatus(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType)
		return nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorStatus(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge)
			return nil, false
		}
		transport.WriteError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return nil, false
	}

	if req.Prompt == "" {
		transport.WriteError(w, api.NewInvalidRequestError("prompt", "prompt must not be empty"))
		return nil, false
	}

	return &req, true
}

// compose assembles the gateway request: session context and retrieved
// documents fold into the prompt text, system stays a separate field.
func (a *Adapter) compose(r *http.Request, req *generateRequest) (*api.GenerationRequest, error) {
	ctx := r.Context()
	in := prompt.Input{Prompt: req.Prompt}

	if req.SessionID != "" {
		if a.sessions == nil {
			return nil, api.NewInvalidRequestError("session_id", "session storage is not configured")
		}
		sess, err := a.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		in.SessionContext = sess.Context
	}

	if req.UseRAG {
		if a.search == nil || !a.search.Enabled() {
			return nil, api.NewInvalidRequestError("use_rag", "retrieval is not configured")
		}
		docs, err := a.search.Search(ctx, req.Prompt, a.config.RAGResults)
		if err != nil {
			// A failed search degrades to generation without references.
			a.logger.Warn("retrieval failed", "error", err,
				"request_id", transport.RequestIDFromContext(ctx))
		} else {
			in.Documents = docs
		}
	}

	out := req.GenerationRequest
	out.Prompt = prompt.Build(in)
	return &out, nil
}

// providerLabel resolves the metric label before the gateway has
// answered: the default provider name when the request names none.
func (a *Adapter) providerLabel(name string) string {
	if name == "" {
		return a.gw.DefaultProvider()
	}
	return name
}

// recordExchange appends the completed prompt/reply pair to the session.
// The reply already reached the client, so a storage failure only logs.
func (a *Adapter) recordExchange(r *http.Request, id, userPrompt, reply string) {
	if id == "" || a.sessions == nil {
		return
	}
	text := "User: " + userPrompt + "\nAssistant: " + reply + "\n"
	if _, err := a.sessions.AppendContext(r.Context(), id, text); err != nil {
		a.logger.Warn("recording exchange failed", "session", id, "error", err)
	}
}

// handleGenerate handles POST /v1/generate.
func (a *Adapter) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	greq, err := a.compose(r, req)
	if err != nil {
		transport.WriteError(w, err)
		return
	}

	label := a.providerLabel(req.Provider)
	start := time.Now()
	res, err := a.gw.Generate(r.Context(), greq)
	if err != nil {
		observability.GenerationsTotal.WithLabelValues(label, string(api.KindOf(err))).Inc()
		transport.WriteError(w, err)
		return
	}

	observability.GenerationsTotal.WithLabelValues(res.Provider, "ok").Inc()
	observability.GenerationLatency.WithLabelValues(res.Provider).Observe(time.Since(start).Seconds())

	a.recordExchange(r, req.SessionID, req.Prompt, res.Text)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// handleGenerateStream handles POST /v1/generate/stream. Fragments are
// relayed as they arrive; an error after the first fragment travels
// in-band as a terminal frame because the status line is already gone.
func (a *Adapter) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	greq, err := a.compose(r, req)
	if err != nil {
		transport.WriteError(w, err)
		return
	}

	label := a.providerLabel(req.Provider)
	ch, err := a.gw.Stream(r.Context(), greq)
	if err != nil {
		observability.GenerationsTotal.WithLabelValues(label, string(api.KindOf(err))).Inc()
		transport.WriteError(w, err)
		return
	}

	sw := newSSEWriter(w)
	var full strings.Builder
	start := time.Now()

	for ev := range ch {
		switch ev.Type {
		case provider.EventTextDelta:
			full.WriteString(ev.Delta)
			if err := sw.WriteDelta(ev.Delta); err != nil {
				// Client gone; returning cancels the request context
				// and the provider relay with it.
				return
			}
		case provider.EventDone:
			observability.GenerationsTotal.WithLabelValues(label, "ok").Inc()
			observability.GenerationLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
			if ev.SkippedFrames > 0 {
				observability.StreamSkippedFramesTotal.WithLabelValues(label).Add(float64(ev.SkippedFrames))
			}
			sw.WriteDone(ev.SkippedFrames)
			a.recordExchange(r, req.SessionID, req.Prompt, full.String())
		case provider.EventError:
			observability.GenerationsTotal.WithLabelValues(label, string(api.KindOf(ev.Err))).Inc()
			if ev.SkippedFrames > 0 {
				observability.StreamSkippedFramesTotal.WithLabelValues(label).Add(float64(ev.SkippedFrames))
			}
			if sw.started() {
				sw.WriteStreamError(ev.Err, ev.SkippedFrames)
			} else {
				transport.WriteError(w, ev.Err)
			}
		}
	}
}

// handleProviders handles GET /v1/providers.
func (a *Adapter) handleProviders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Default   string                 `json:"default"`
		Providers []gateway.ProviderInfo `json:"providers"`
	}{
		Default:   a.gw.DefaultProvider(),
		Providers: a.gw.Info(),
	})
}

// handleProviderStatus handles GET /v1/providers/{name}/status.
func (a *Adapter) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	status, err := a.gw.Status(r.Context(), name)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Provider string          `json:"provider"`
		Status   provider.Status `json:"status"`
	}{Provider: name, Status: status})
}

func (a *Adapter) requireSessions(w http.ResponseWriter) bool {
	if a.sessions == nil {
		transport.WriteErrorStatus(w,
			api.NewInvalidRequestError("", "session storage is not configured"),
			http.StatusNotImplemented)
		return false
	}
	return true
}

// handleGetSession handles GET /v1/sessions/{id}. The store creates an
// empty session on first use, so this never 404s.
func (a *Adapter) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !a.requireSessions(w) {
		return
	}
	sess, err := a.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess)
}

// handleAppendContext handles POST /v1/sessions/{id}/context.
func (a *Adapter) handleAppendContext(w http.ResponseWriter, r *http.Request) {
	if !a.requireSessions(w) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		transport.WriteError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return
	}
	if body.Text == "" {
		transport.WriteError(w, api.NewInvalidRequestError("text", "text must not be empty"))
		return
	}

	sess, err := a.sessions.AppendContext(r.Context(), r.PathValue("id"), body.Text)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess)
}

// handleAttach handles POST /v1/sessions/{id}/attachments.
func (a *Adapter) handleAttach(w http.ResponseWriter, r *http.Request) {
	if !a.requireSessions(w) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	var body struct {
		Attachments []session.Attachment `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		transport.WriteError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return
	}
	if len(body.Attachments) == 0 {
		transport.WriteError(w, api.NewInvalidRequestError("attachments", "attachments must not be empty"))
		return
	}
	for _, att := range body.Attachments {
		if att.Kind != "image" && att.Kind != "document" {
			transport.WriteError(w, api.NewInvalidRequestError("kind", "kind must be image or document"))
			return
		}
	}

	if err := a.sessions.Attach(r.Context(), r.PathValue("id"), body.Attachments...); err != nil {
		transport.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteSession handles DELETE /v1/sessions/{id}.
func (a *Adapter) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !a.requireSessions(w) {
		return
	}
	id := r.PathValue("id")
	if err := a.sessions.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			transport.WriteErrorStatus(w,
				api.NewInvalidRequestError("id", "session "+id+" not found"),
				http.StatusNotFound)
			return
		}
		transport.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealthz handles GET /healthz. It reports process liveness only;
// backend reachability is per-provider via the status endpoint.
func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status    string   `json:"status"`
		Providers []string `json:"providers"`
	}{Status: "ok", Providers: a.gw.Providers()})
}
