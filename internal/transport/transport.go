// Package transport executes JSON-RPC batch exchanges over HTTP, WebSocket or
// an in-process handler table.
package transport

import (
	"context"
	"errors"
	"net/http"

	"rpcbatch/internal/jsonrpc"
)

// ErrNotConnected is returned when the WebSocket connection is not established
var ErrNotConnected = errors.New("websocket not connected")

// Transport executes one batch exchange. It returns the response envelopes in
// whatever order the server produced them, or fails the batch as a whole.
type Transport interface {
	SendBatch(ctx context.Context, requests []*jsonrpc.Request) ([]*jsonrpc.Response, error)
	Close() error
}

type headerKey struct{}

// WithHeader returns a context carrying an extra header for the HTTP transport.
// Headers accumulate across calls; a later value for the same key wins.
func WithHeader(ctx context.Context, key, value string) context.Context {
	prev, _ := ctx.Value(headerKey{}).(http.Header)
	h := prev.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set(key, value)
	return context.WithValue(ctx, headerKey{}, h)
}

// HeadersFromContext returns the headers attached with WithHeader
func HeadersFromContext(ctx context.Context) http.Header {
	h, _ := ctx.Value(headerKey{}).(http.Header)
	return h
}
