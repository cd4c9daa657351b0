// Command server runs the quillgate generation gateway.
//
// Configuration is layered: built-in defaults, then a yaml file
// (-config flag, QUILLGATE_CONFIG, ./config.yaml,
// /etc/quillgate/config.yaml), then QUILLGATE_* environment overrides.
// See pkg/config for the full surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quillgate/quillgate/pkg/auth"
	"github.com/quillgate/quillgate/pkg/auth/apikey"
	authjwt "github.com/quillgate/quillgate/pkg/auth/jwt"
	"github.com/quillgate/quillgate/pkg/config"
	"github.com/quillgate/quillgate/pkg/debug"
	"github.com/quillgate/quillgate/pkg/gateway"
	"github.com/quillgate/quillgate/pkg/observability"
	"github.com/quillgate/quillgate/pkg/provider"
	"github.com/quillgate/quillgate/pkg/provider/anthropic"
	"github.com/quillgate/quillgate/pkg/provider/ollama"
	"github.com/quillgate/quillgate/pkg/provider/openaichat"
	"github.com/quillgate/quillgate/pkg/provider/zhipu"
	"github.com/quillgate/quillgate/pkg/rag"
	"github.com/quillgate/quillgate/pkg/retry"
	"github.com/quillgate/quillgate/pkg/session"
	memstore "github.com/quillgate/quillgate/pkg/session/memory"
	pgstore "github.com/quillgate/quillgate/pkg/session/postgres"
	redisstore "github.com/quillgate/quillgate/pkg/session/redis"
	"github.com/quillgate/quillgate/pkg/transport"
	transporthttp "github.com/quillgate/quillgate/pkg/transport/http"
)

// Model defaults applied when the config names none.
const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-sonnet-20240620"
	defaultOllamaModel    = "deepseek-v3.1:671b-cloud"
)

const sessionGaugeInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	debug.Init(cfg.Observability.Debug, cfg.Observability.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := buildGateway(cfg)
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}
	defer gw.Close()

	store, err := buildSessionStore(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("building session store: %w", err)
	}
	defer store.Close()
	slog.Info("session store ready", "type", cfg.Session.Type)

	var search *rag.Client
	if cfg.RAG.BaseURL != "" {
		search = rag.New(rag.Config{
			BaseURL: cfg.RAG.BaseURL,
			Timeout: cfg.RAG.Timeout,
			Retry:   retryPolicy(cfg.Gateway.Retry, "rag"),
		})
		defer search.Close()
		slog.Info("retrieval enabled", "base_url", cfg.RAG.BaseURL)
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	adapter := transporthttp.NewAdapter(gw, store, search, transporthttp.Config{
		MaxBodySize: transporthttp.DefaultConfig().MaxBodySize,
		RAGResults:  cfg.RAG.Results,
		MetricsPath: metricsPath,
	})

	srv := transporthttp.NewServer(adapter, transporthttp.ServerConfig{
		Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: 30 * time.Second,
		Auth:            buildAuth(cfg.Auth),
	})

	slog.Info("gateway ready",
		"default_provider", cfg.Gateway.DefaultProvider,
		"providers", gw.Providers())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	g.Go(func() error { watchSessions(ctx, store); return nil })
	return g.Wait()
}

// buildAuth assembles the inbound auth middleware, or nil when auth is
// disabled. API keys are checked first; bearer tokens shaped like JWTs
// fall through to the JWT authenticator when one is configured.
func buildAuth(cfg config.AuthConfig) transport.Middleware {
	if !cfg.Enabled {
		return nil
	}

	chain := &auth.Chain{}
	if len(cfg.APIKeys) > 0 {
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys = append(keys, apikey.Key{Key: k.Key, Subject: k.Subject, Scopes: k.Scopes})
		}
		chain.Authenticators = append(chain.Authenticators, apikey.New(keys))
	}
	if cfg.JWT.Secret != "" {
		verifier, err := authjwt.New(authjwt.Config{
			Secret:   cfg.JWT.Secret,
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
		})
		if err != nil {
			// Validate already required a non-empty secret.
			slog.Error("jwt authenticator disabled", "error", err)
		} else {
			chain.Authenticators = append(chain.Authenticators, verifier)
		}
	}

	slog.Info("inbound auth enabled",
		"api_keys", len(cfg.APIKeys), "jwt", cfg.JWT.Secret != "")
	return auth.Middleware(chain, slog.Default(), auth.DefaultBypassPaths)
}

// buildGateway registers every configured provider. Cloud providers
// without a credential are still registered; they report not_configured
// from the status endpoint and fail generation with an authentication
// error.
func buildGateway(cfg *config.Config) (*gateway.Gateway, error) {
	opts := []gateway.Option{}
	if cfg.Gateway.StrictStreaming {
		opts = append(opts, gateway.WithStrictStreaming())
	}
	gw := gateway.New(cfg.Gateway.DefaultProvider, opts...)

	openaiCfg := cfg.Providers.OpenAI
	anthropicCfg := cfg.Providers.Anthropic
	zhipuCfg := cfg.Providers.Zhipu
	ollamaCfg := cfg.Providers.Ollama
	retryCfg := cfg.Gateway.Retry

	registrations := map[string]gateway.Factory{
		"openai": func() (provider.Provider, error) {
			return openaichat.New(openaichat.Config{
				Name:    "openai",
				BaseURL: orDefault(openaiCfg.BaseURL, "https://api.openai.com"),
				APIKey:  openaiCfg.APIKey,
				Model:   orDefault(openaiCfg.Model, defaultOpenAIModel),
				Timeout: openaiCfg.Timeout,
				Retry:   retryPolicy(retryCfg, "openai"),
			}), nil
		},
		"anthropic": func() (provider.Provider, error) {
			return anthropic.New(anthropic.Config{
				BaseURL: anthropicCfg.BaseURL,
				APIKey:  anthropicCfg.APIKey,
				Model:   orDefault(anthropicCfg.Model, defaultAnthropicModel),
				Timeout: anthropicCfg.Timeout,
				Retry:   retryPolicy(retryCfg, "anthropic"),
			}), nil
		},
		"zhipu": func() (provider.Provider, error) {
			return zhipu.New(zhipu.Config{
				BaseURL: zhipuCfg.BaseURL,
				APIKey:  zhipuCfg.APIKey,
				Model:   zhipuCfg.Model,
				Timeout: zhipuCfg.Timeout,
				Retry:   retryPolicy(retryCfg, "zhipu"),
			}), nil
		},
		"ollama": func() (provider.Provider, error) {
			return ollama.New(ollama.Config{
				BaseURL: ollamaCfg.BaseURL,
				Model:   orDefault(ollamaCfg.Model, defaultOllamaModel),
				Timeout: ollamaCfg.Timeout,
				Retry:   retryPolicy(retryCfg, "ollama"),
			}), nil
		},
	}

	systems := map[string]string{
		"openai":    openaiCfg.DefaultSystem,
		"anthropic": anthropicCfg.DefaultSystem,
		"zhipu":     zhipuCfg.DefaultSystem,
		"ollama":    ollamaCfg.DefaultSystem,
	}

	for name, factory := range registrations {
		err := gw.Register(name, gateway.Registration{
			Factory:       factory,
			DefaultSystem: systems[name],
			MaxInFlight:   cfg.Gateway.MaxInFlight,
			Streaming:     true,
		})
		if err != nil {
			return nil, err
		}
	}

	return gw, nil
}

func buildSessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return memstore.New(cfg.MaxSessions, cfg.MaxContextChars), nil
	case "redis":
		return redisstore.New(ctx, redisstore.Config{
			Addr:            cfg.Redis.Addr,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			IdleTTL:         cfg.Redis.IdleTTL,
			MaxContextChars: cfg.MaxContextChars,
		})
	case "postgres":
		return pgstore.New(ctx, pgstore.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MigrateOnStart:  cfg.Postgres.MigrateOnStart,
			MaxContextChars: cfg.MaxContextChars,
		})
	default:
		return nil, fmt.Errorf("unknown session store type %q", cfg.Type)
	}
}

// retryPolicy builds the provider backoff schedule from config and wires
// the retry counter.
func retryPolicy(cfg config.RetryConfig, name string) *retry.Policy {
	p := retry.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		p.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		p.MaxDelay = cfg.MaxDelay
	}
	p.OnRetry = func(attempt int, err error) {
		observability.RetryAttemptsTotal.WithLabelValues(name).Inc()
	}
	return p
}

// watchSessions keeps the sessions gauge current until shutdown.
func watchSessions(ctx context.Context, store session.Store) {
	ticker := time.NewTicker(sessionGaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := store.Count(ctx); err == nil {
				observability.SessionsActive.Set(float64(n))
			}
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
