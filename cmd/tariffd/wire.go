package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/jonwraymond/scenariocache/auth"
	"github.com/jonwraymond/scenariocache/cache"
	"github.com/jonwraymond/scenariocache/config"
	"github.com/jonwraymond/scenariocache/docstore"
	"github.com/jonwraymond/scenariocache/engine"
	"github.com/jonwraymond/scenariocache/health"
	"github.com/jonwraymond/scenariocache/observe"
	"github.com/jonwraymond/scenariocache/observe/exporters"
	"github.com/jonwraymond/scenariocache/resilience"
	"github.com/jonwraymond/scenariocache/server"
)

// memoryBaseURL addresses the in-process store.
const memoryBaseURL = "memory://local"

// storePingSlow marks the store degraded when a ping takes longer.
const storePingSlow = 2 * time.Second

// app is the fully wired service.
type app struct {
	observer observe.Observer
	store    *docstore.Client
	server   *server.Server
}

// Close flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	if a.observer == nil {
		return nil
	}
	return a.observer.Shutdown(ctx)
}

func buildApp(ctx context.Context, c *config.Config, log observe.Logger) (*app, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := c.ResolveSecrets(ctx, c.Resolver()); err != nil {
		return nil, err
	}

	obs, err := observe.NewObserver(ctx, observe.Config{
		ServiceName: c.Observe.ServiceName,
		Version:     version,
		Attributes:  map[string]string{"engine.version": c.Engine.Version},
		Tracing: observe.TracingConfig{
			Enabled:   c.Observe.TracingEnabled,
			Exporter:  c.Observe.TracingExporter,
			SamplePct: c.Observe.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Observe.MetricsEnabled,
			Exporter: c.Observe.MetricsExporter,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "init observability")
	}
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return nil, eris.Wrap(err, "init instrumentation")
	}
	mw = mw.WithLogger(log)

	store := buildStore(c.Store, mw)

	opts := []cache.Option{
		cache.WithMiddleware(mw),
		cache.WithPolicy(cache.Policy{EngineVersion: c.Engine.Version, ComputeTimeout: c.Engine.Timeout}),
	}
	var risk cache.RiskEngine
	if c.Engine.BaseURL != "" {
		ec := engine.NewClient(c.Engine.BaseURL,
			engine.WithToken(c.Engine.Token),
			engine.WithRetry(c.Engine.MaxAttempts, 0),
			engine.WithMiddleware(mw),
		)
		risk = ec
		opts = append(opts, cache.WithMLModel(ec), cache.WithLeaderboard(ec))
	} else {
		log.Warn(ctx, "engine.base_url not set; cache misses will fail")
	}
	coordinator := cache.NewCoordinator(store, risk, opts...)

	agg := health.NewAggregator()
	agg.Register("document_store", health.NewPingChecker("document_store", store, storePingSlow))
	agg.Register("document_store_circuit", health.NewBreakerChecker("document_store_circuit", store.State))

	authenticator, err := buildAuth(ctx, c.Auth)
	if err != nil {
		return nil, err
	}

	var metrics http.Handler
	if c.Observe.MetricsEnabled && c.Observe.MetricsExporter == "prometheus" {
		metrics = exporters.MetricsHandler()
	}

	return &app{
		observer: obs,
		store:    store,
		server: server.New(server.Config{
			Chat:        coordinator,
			Health:      agg,
			Auth:        authenticator,
			Metrics:     metrics,
			CORSOrigins: c.Server.CORSOrigins,
			Logger:      observe.Zap(log),
		}),
	}, nil
}

func buildStore(c config.StoreConfig, mw *observe.Middleware) *docstore.Client {
	dc := docstore.Config{
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
		RetryDelay: c.RetryDelay,
	}
	opts := []docstore.Option{docstore.WithMiddleware(mw)}
	if c.Backend == config.BackendMemory {
		dc.BaseURL = memoryBaseURL
		opts = append(opts, docstore.WithTransport(docstore.NewMemoryTransport()))
	}
	if c.BreakerFailures > 0 {
		opts = append(opts, docstore.WithCircuitBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  c.BreakerFailures,
			ResetTimeout: c.BreakerReset,
		}))
	}
	if c.RateLimit > 0 {
		opts = append(opts, docstore.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:        c.RateLimit,
			Burst:       c.RateBurst,
			WaitOnLimit: true,
		})))
	}
	return docstore.NewClient(dc, opts...)
}

// buildAuth returns nil when no credential is configured.
func buildAuth(_ context.Context, c config.AuthConfig) (auth.Authenticator, error) {
	if !c.Enabled() {
		return nil, nil
	}

	var chain []auth.Authenticator
	if c.JWTSecret != "" {
		chain = append(chain, auth.NewJWTAuthenticator(auth.JWTConfig{
			Secret:   []byte(c.JWTSecret),
			Issuer:   c.JWTIssuer,
			Audience: c.JWTAudience,
		}))
	}
	if len(c.APIKeys) > 0 {
		keys := auth.NewMemoryAPIKeyStore()
		for i, k := range c.APIKeys {
			if k == "" {
				return nil, eris.Errorf("auth.api_keys[%d] is empty", i)
			}
			keys.Add(&auth.APIKeyInfo{
				ID:        keyID(i),
				KeyHash:   auth.HashAPIKey(k),
				Principal: keyID(i),
			})
		}
		chain = append(chain, auth.NewAPIKeyAuthenticator("", keys))
	}
	return auth.NewCompositeAuthenticator(chain...), nil
}

func keyID(i int) string {
	return fmt.Sprintf("api-key-%d", i+1)
}
