package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"rpcbatch/internal/jsonrpc"
)

// HTTPConfig configures an HTTP transport
type HTTPConfig struct {
	URL            string
	Headers        map[string]string
	RequestTimeout time.Duration
	// RateLimit is the number of batches per second; 0 disables limiting
	RateLimit float64
	Burst     int
	Logger    zerolog.Logger
}

// HTTP posts each batch as a JSON array to one endpoint
type HTTP struct {
	url        string
	headers    http.Header
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewHTTP creates an HTTP transport
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("HTTP endpoint not configured")
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}

	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &HTTP{
		url:     cfg.URL,
		headers: headers,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		limiter: limiter,
		logger:  cfg.Logger.With().Str("transport", "http").Logger(),
	}, nil
}

// SendBatch sends a batch of JSON-RPC requests via HTTP
func (t *HTTP) SendBatch(ctx context.Context, requests []*jsonrpc.Request) ([]*jsonrpc.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	reqBytes, err := jsonrpc.MarshalBatchRequest(requests)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for k, vs := range t.headers {
		httpReq.Header[k] = vs
	}
	for k, vs := range HeadersFromContext(ctx) {
		httpReq.Header[k] = vs
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	responses, isBatch, err := jsonrpc.ParseBatchResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse batch response: %w", err)
	}
	if !isBatch {
		t.logger.Debug().Int("requests", len(requests)).Msg("server answered batch with a single response")
		if resp := responses[0]; resp.HasError() && resp.ID.IsNull() {
			return nil, fmt.Errorf("batch rejected: %w", resp.Error)
		}
	}

	return responses, nil
}

// Close releases idle connections
func (t *HTTP) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}
