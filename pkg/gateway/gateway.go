package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/quillgate/quillgate/pkg/api"
	"github.com/quillgate/quillgate/pkg/provider"
)

// Factory constructs a provider on first use. Construction may be
// expensive (credential loading, connection setup), which is why it is
// deferred until a request actually needs the backend.
type Factory func() (provider.Provider, error)

// Registration describes one named backend.
type Registration struct {
	// Factory constructs the provider. Required.
	Factory Factory

	// DefaultSystem is the system instruction applied when the caller
	// supplies none.
	DefaultSystem string

	// MaxInFlight caps concurrent calls to this provider. Zero means
	// unbounded.
	MaxInFlight int64

	// Streaming declares whether the backend streams natively. Listing
	// consults this so it never has to construct the provider.
	Streaming bool
}

// entry is one registered backend with its lazily-built singleton.
type entry struct {
	name          string
	factory       Factory
	defaultSystem string
	streaming     bool
	sem           *semaphore.Weighted

	mu       sync.Mutex
	instance provider.Provider
}

// Gateway is the single entry point for generation calls. Safe for
// concurrent use; the registry is read-mostly after startup.
type Gateway struct {
	mu           sync.RWMutex
	entries      map[string]*entry
	defaultName  string
	strictStream bool
	logger       *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithStrictStreaming makes streaming calls to providers without native
// streaming fail with a streaming_unsupported error instead of being
// served through the one-shot shim.
func WithStrictStreaming() Option {
	return func(g *Gateway) { g.strictStream = true }
}

// New creates a Gateway. defaultName is the provider used when a request
// names none; it does not need to be registered yet.
func New(defaultName string, opts ...Option) *Gateway {
	g := &Gateway{
		entries:     make(map[string]*entry),
		defaultName: defaultName,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register adds a named backend. Registering the same name twice is a
// programming error.
func (g *Gateway) Register(name string, reg Registration) error {
	if name == "" {
		return errors.New("gateway: provider name must not be empty")
	}
	if reg.Factory == nil {
		return errors.New("gateway: registration requires a factory")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.entries[name]; exists {
		return errors.New("gateway: provider " + name + " already registered")
	}

	e := &entry{
		name:          name,
		factory:       reg.Factory,
		defaultSystem: reg.DefaultSystem,
		streaming:     reg.Streaming,
	}
	if reg.MaxInFlight > 0 {
		e.sem = semaphore.NewWeighted(reg.MaxInFlight)
	}
	g.entries[name] = e
	return nil
}

// DefaultProvider returns the name used when a request names no provider.
func (g *Gateway) DefaultProvider() string { return g.defaultName }

// Providers returns the registered names, sorted.
func (g *Gateway) Providers() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.entries))
	for name := range g.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderInfo describes one registered backend.
type ProviderInfo struct {
	Name      string `json:"name"`
	Streaming bool   `json:"streaming"`
	Default   bool   `json:"default,omitempty"`
}

// Info returns the registered backends sorted by name. No provider is
// constructed by this call.
func (g *Gateway) Info() []ProviderInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(g.entries))
	for name, e := range g.entries {
		infos = append(infos, ProviderInfo{
			Name:      name,
			Streaming: e.streaming,
			Default:   name == g.defaultName,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// resolve maps a request's provider name (or the default) to its entry.
// No network I/O happens here; an unknown name fails before any
// construction.
func (g *Gateway) resolve(name string) (*entry, error) {
	if name == "" {
		name = g.defaultName
	}

	g.mu.RLock()
	e, ok := g.entries[name]
	g.mu.RUnlock()
	if !ok {
		return nil, api.NewUnknownProviderError(name)
	}
	return e, nil
}

// instance returns the entry's singleton, constructing it on first use.
// Double-checked under the entry mutex so concurrent first use builds
// exactly one instance. A failed construction is not cached; the next
// call retries the factory.
func (e *entry) get() (provider.Provider, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.instance != nil {
		return e.instance, nil
	}
	p, err := e.factory()
	if err != nil {
		return nil, err
	}
	e.instance = p
	return p, nil
}

// resolveSystem applies the caller's system instruction over the
// provider's registered default.
func (e *entry) resolveSystem(callerSystem string) string {
	if callerSystem != "" {
		return callerSystem
	}
	return e.defaultSystem
}

func toProviderRequest(req *api.GenerationRequest, system string) *provider.Request {
	return &provider.Request{
		Prompt:      req.Prompt,
		System:      system,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

// Generate routes a synchronous generation call.
func (g *Gateway) Generate(ctx context.Context, req *api.GenerationRequest) (*api.GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e, err := g.resolve(req.Provider)
	if err != nil {
		return nil, err
	}
	p, err := e.get()
	if err != nil {
		return nil, err
	}

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, api.NewNetworkError("request cancelled while waiting for provider slot")
		}
		defer e.sem.Release(1)
	}

	res, err := p.Generate(ctx, toProviderRequest(req, e.resolveSystem(req.System)))
	if err != nil {
		g.logger.Warn("generation failed",
			"provider", e.name,
			"kind", string(api.KindOf(err)),
			"error", err)
		return nil, err
	}

	return &api.GenerationResult{
		Text:     res.Text,
		Provider: e.name,
		Model:    res.Model,
	}, nil
}

// Stream routes a streaming generation call. Providers without native
// streaming are served through the one-shot shim unless strict streaming
// is enabled. The in-flight slot, when capped, is held until the event
// channel closes.
func (g *Gateway) Stream(ctx context.Context, req *api.GenerationRequest) (<-chan provider.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e, err := g.resolve(req.Provider)
	if err != nil {
		return nil, err
	}
	p, err := e.get()
	if err != nil {
		return nil, err
	}

	if !p.Capabilities().Streaming && g.strictStream {
		return nil, api.NewStreamingUnsupportedError(e.name)
	}

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, api.NewNetworkError("request cancelled while waiting for provider slot")
		}
	}

	preq := toProviderRequest(req, e.resolveSystem(req.System))

	var ch <-chan provider.Event
	if p.Capabilities().Streaming {
		ch, err = p.Stream(ctx, preq)
	} else {
		ch, err = provider.OneShotStream(ctx, p, preq)
	}
	if err != nil {
		if e.sem != nil {
			e.sem.Release(1)
		}
		g.logger.Warn("stream failed to start",
			"provider", e.name,
			"kind", string(api.KindOf(err)),
			"error", err)
		return nil, err
	}

	if e.sem == nil {
		return ch, nil
	}

	// Relay through a forwarding channel so the slot is released when
	// the provider closes its side.
	out := make(chan provider.Event, 16)
	go func() {
		defer close(out)
		defer e.sem.Release(1)
		for ev := range ch {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Status resolves a provider and probes it. The probe itself is a single
// attempt; a provider whose construction fails reports StatusError.
func (g *Gateway) Status(ctx context.Context, name string) (provider.Status, error) {
	e, err := g.resolve(name)
	if err != nil {
		return "", err
	}
	p, err := e.get()
	if err != nil {
		g.logger.Warn("provider construction failed", "provider", e.name, "error", err)
		return provider.StatusError, nil
	}
	return p.CheckStatus(ctx), nil
}

// Close releases every constructed provider. Unconstructed entries are
// skipped; their factories never ran.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for _, e := range g.entries {
		e.mu.Lock()
		if e.instance != nil {
			if err := e.instance.Close(); err != nil {
				errs = append(errs, err)
			}
			e.instance = nil
		}
		e.mu.Unlock()
	}
	return errors.Join(errs...)
}
