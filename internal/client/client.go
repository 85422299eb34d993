// Package client assembles a batching JSON-RPC client from configuration.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"rpcbatch/internal/cache"
	"rpcbatch/internal/config"
	"rpcbatch/internal/metrics"
	"rpcbatch/internal/rpcerr"
	"rpcbatch/internal/scheduler"
	"rpcbatch/internal/transport"
)

// Options configures a Client. Only Config is required.
type Options struct {
	Config *config.Config
	Logger zerolog.Logger
	// Transport overrides the one built from Config, e.g. a Loopback
	Transport transport.Transport
	// Registerer receives the client's collectors; nil disables registration
	Registerer prometheus.Registerer
	// Deferrer overrides the flush trigger built from Config.FlushDelay
	Deferrer scheduler.Deferrer
	// Errors overrides the default error registry
	Errors *rpcerr.Registry
}

// Client issues JSON-RPC calls that are coalesced into batches
type Client struct {
	scheduler *scheduler.Scheduler
	transport transport.Transport
	errors    *rpcerr.Registry
	cache     cache.Cache
	policy    *cache.Policy
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// New creates a Client. For the ws transport it dials the endpoint with ctx.
func New(ctx context.Context, opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger.With().Str("component", "client").Logger()

	tr := opts.Transport
	if tr == nil {
		var err error
		tr, err = newTransport(ctx, cfg, opts.Logger)
		if err != nil {
			return nil, err
		}
	}

	registry := opts.Errors
	if registry == nil {
		registry = rpcerr.DefaultRegistry()
	}

	m := metrics.New(opts.Registerer)

	sched, err := scheduler.New(tr, scheduler.Options{
		FlushDelay:         cfg.GetFlushDelayDuration(),
		MaxFlushWait:       cfg.GetMaxFlushWaitDuration(),
		MaxBatchSize:       cfg.MaxBatchSize,
		MaxInflightBatches: cfg.MaxInflightBatches,
		RequestTimeout:     cfg.GetRequestTimeoutDuration(),
		Deferrer:           opts.Deferrer,
		Errors:             registry,
		Observer:           m,
		Logger:             opts.Logger,
	})
	if err != nil {
		tr.Close()
		return nil, err
	}

	var c cache.Cache = cache.NewNoopCache()
	var policy *cache.Policy
	if cfg.Cache.Enabled {
		mc, err := cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.GetTTLDuration())
		if err != nil {
			sched.Close(ctx)
			tr.Close()
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		c = mc
		policy = cache.NewPolicy(cfg.Cache.Methods)
		logger.Info().
			Int("size", cfg.Cache.Size).
			Int("ttl", cfg.Cache.TTL).
			Strs("methods", cfg.Cache.Methods).
			Msg("cache enabled")
	}

	return &Client{
		scheduler: sched,
		transport: tr,
		errors:    registry,
		cache:     c,
		policy:    policy,
		metrics:   m,
		logger:    logger,
	}, nil
}

func newTransport(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportWS:
		ws, err := transport.NewWS(transport.WSConfig{
			URL:          cfg.Endpoint,
			Headers:      cfg.Headers,
			PingInterval: cfg.GetPingIntervalDuration(),
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		if err := ws.Connect(ctx); err != nil {
			ws.Close()
			return nil, err
		}
		return ws, nil
	default:
		return transport.NewHTTP(transport.HTTPConfig{
			URL:            cfg.Endpoint,
			Headers:        cfg.Headers,
			RequestTimeout: cfg.GetRequestTimeoutDuration(),
			RateLimit:      cfg.RateLimit.BatchesPerSecond,
			Burst:          cfg.RateLimit.Burst,
			Logger:         logger,
		})
	}
}

// Call enqueues method with params and returns its handle.
// Results of cacheable methods are served from the cache when present.
func (c *Client) Call(method string, params interface{}) *scheduler.Call {
	if c.policy == nil || !c.policy.IsCacheable(method) {
		return c.scheduler.Enqueue(method, params)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return scheduler.Rejected(method, fmt.Errorf("failed to marshal params: %w", err))
	}
	if params == nil {
		raw = nil
	}

	key := c.policy.Key(method, raw)
	if data, ok := c.cache.Get(key); ok {
		c.metrics.ObserveCache(true)
		c.logger.Debug().Str("method", method).Msg("cache hit")
		return scheduler.Resolved(method, data)
	}
	c.metrics.ObserveCache(false)

	call := c.scheduler.Enqueue(method, json.RawMessage(raw))
	go func() {
		<-call.Done()
		if result, err := call.Result(); err == nil {
			c.cache.Set(key, result)
		}
	}()
	return call
}

// BeforeRequest registers the hook run before each batch is sent
func (c *Client) BeforeRequest(hook scheduler.BeforeRequestFunc) {
	c.scheduler.BeforeRequest(hook)
}

// Errors returns the registry used to map error codes, open for extension
func (c *Client) Errors() *rpcerr.Registry {
	return c.errors
}

// Flush sends the calls accumulated so far without waiting for the tick
func (c *Client) Flush() {
	c.scheduler.Flush()
}

// Close flushes pending calls, waits for in-flight batches and releases the
// transport and cache
func (c *Client) Close(ctx context.Context) error {
	err := c.scheduler.Close(ctx)
	if cerr := c.transport.Close(); cerr != nil && err == nil {
		err = cerr
	}
	c.cache.Close()
	return err
}
