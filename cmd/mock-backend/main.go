// Command mock-backend runs deterministic stand-ins for the three wire
// protocols quillgate speaks: OpenAI-style Chat Completions, the
// Anthropic Messages API, and the Ollama generate API. It is used for
// manual testing and the integration suite, so no cloud credential or
// local model is needed.
//
// Failure behavior is scriptable through the prompt text:
//
//	[429]      - always answer 429 with Retry-After: 1
//	[429-once] - answer 429 on the first call, succeed after
//	[500]      - always answer 500
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	b := newBackend()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", b.handleChatCompletions)
	mux.HandleFunc("POST /api/paas/v4/chat/completions", b.handleChatCompletions)
	mux.HandleFunc("POST /v1/messages", b.handleMessages)
	mux.HandleFunc("POST /api/generate", b.handleOllamaGenerate)
	mux.HandleFunc("GET /api/tags", b.handleOllamaTags)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// backend holds the once-markers already consumed, keyed by prompt.
type backend struct {
	mu       sync.Mutex
	consumed map[string]bool
}

func newBackend() *backend {
	return &backend{consumed: make(map[string]bool)}
}

// scripted checks the prompt for failure directives and writes the
// scripted failure when one applies. Returns true when the request was
// answered.
func (b *backend) scripted(w http.ResponseWriter, prompt string) bool {
	switch {
	case strings.Contains(prompt, "[500]"):
		http.Error(w, `{"error":{"message":"scripted server error"}}`, http.StatusInternalServerError)
		return true
	case strings.Contains(prompt, "[429]"):
		w.Header().Set("Retry-After", "1")
		http.Error(w, `{"error":{"message":"scripted rate limit"}}`, http.StatusTooManyRequests)
		return true
	case strings.Contains(prompt, "[429-once]"):
		b.mu.Lock()
		done := b.consumed[prompt]
		b.consumed[prompt] = true
		b.mu.Unlock()
		if !done {
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":{"message":"scripted rate limit"}}`, http.StatusTooManyRequests)
			return true
		}
	}
	return false
}

// reply generates the deterministic answer for a prompt.
func reply(prompt string) string {
	if strings.Contains(strings.ToLower(prompt), "count from 1 to 5") {
		return "1, 2, 3, 4, 5"
	}
	return "Hello, nice day!"
}

// tokens splits a reply into streaming fragments.
func tokens(text string) []string {
	words := strings.SplitAfter(text, " ")
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// --- Chat Completions (openai, zhipu) ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

func (b *backend) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request"}}`, http.StatusBadRequest)
		return
	}

	prompt := lastUserMessage(&req)
	if b.scripted(w, prompt) {
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-model"
	}

	if req.Stream {
		streamChat(w, model, tokens(reply(prompt)))
		return
	}

	resp := map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion",
		"model":  model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply(prompt)},
				"finish_reason": "stop",
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func streamChat(w http.ResponseWriter, model string, toks []string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	for _, tok := range toks {
		chunk := map[string]any{
			"id":     "chatcmpl-mock-stream",
			"object": "chat.completion.chunk",
			"model":  model,
			"choices": []any{
				map[string]any{
					"index":         0,
					"delta":         map[string]any{"content": tok},
					"finish_reason": nil,
				},
			},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	finish := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"delta":         map[string]any{},
				"finish_reason": "stop",
			},
		},
	}
	data, _ := json.Marshal(finish)
	fmt.Fprintf(w, "data: %s\n\n", data)
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// --- Anthropic Messages ---

type messagesRequest struct {
	Model    string        `json:"model"`
	System   string        `json:"system"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

func (b *backend) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("x-api-key") == "" {
		http.Error(w, `{"error":{"message":"missing x-api-key"}}`, http.StatusUnauthorized)
		return
	}

	var req messagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request"}}`, http.StatusBadRequest)
		return
	}

	prompt := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			prompt = req.Messages[i].Content
			break
		}
	}
	if b.scripted(w, prompt) {
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-claude"
	}

	if req.Stream {
		streamMessages(w, tokens(reply(prompt)))
		return
	}

	resp := map[string]any{
		"id":    "msg-mock",
		"type":  "message",
		"model": model,
		"content": []any{
			map[string]any{"type": "text", "text": reply(prompt)},
		},
		"stop_reason": "end_turn",
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func streamMessages(w http.ResponseWriter, toks []string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	for _, tok := range toks {
		ev := map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]any{"type": "text_delta", "text": tok},
		}
		data, _ := json.Marshal(ev)
		fmt.Fprintf(w, "event: content_block_delta\ndata: %s\n\n", data)
		flusher.Flush()
	}

	stop := map[string]any{"type": "message_stop"}
	data, _ := json.Marshal(stop)
	fmt.Fprintf(w, "event: message_stop\ndata: %s\n\n", data)
	flusher.Flush()
}

// --- Ollama ---

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

func (b *backend) handleOllamaGenerate(w http.ResponseWriter, r *http.Request) {
	var req ollamaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}

	if b.scripted(w, req.Prompt) {
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-llama"
	}

	w.Header().Set("Content-Type", "application/x-ndjson")

	if !req.Stream {
		json.NewEncoder(w).Encode(map[string]any{
			"model":    model,
			"response": reply(req.Prompt),
			"done":     true,
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	for _, tok := range tokens(reply(req.Prompt)) {
		json.NewEncoder(w).Encode(map[string]any{
			"model":    model,
			"response": tok,
			"done":     false,
		})
		flusher.Flush()
	}
	json.NewEncoder(w).Encode(map[string]any{
		"model":    model,
		"response": "",
		"done":     true,
	})
	flusher.Flush()
}

func (b *backend) handleOllamaTags(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"models": []any{
			map[string]any{"name": "mock-llama"},
		},
	})
}
