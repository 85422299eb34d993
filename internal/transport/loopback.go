package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"rpcbatch/internal/jsonrpc"
)

// HandlerFunc serves one method of the loopback transport.
// Returning a *jsonrpc.Error answers with that error envelope; any other
// error becomes an internal error.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Loopback answers batches in-process from a handler table
type Loopback struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   zerolog.Logger
}

// NewLoopback creates an empty loopback transport
func NewLoopback(logger zerolog.Logger) *Loopback {
	return &Loopback{
		handlers: make(map[string]HandlerFunc),
		logger:   logger.With().Str("transport", "loopback").Logger(),
	}
}

// Handle registers fn for method, replacing any previous handler
func (t *Loopback) Handle(method string, fn HandlerFunc) {
	t.mu.Lock()
	t.handlers[method] = fn
	t.mu.Unlock()
}

// SendBatch runs every request through its handler, in request order
func (t *Loopback) SendBatch(ctx context.Context, requests []*jsonrpc.Request) ([]*jsonrpc.Response, error) {
	responses := make([]*jsonrpc.Response, 0, len(requests))
	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		responses = append(responses, t.serve(ctx, req))
	}
	return responses, nil
}

func (t *Loopback) serve(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	t.mu.RLock()
	fn, ok := t.handlers[req.Method]
	t.mu.RUnlock()

	if !ok {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrMethodNotFound)
	}

	result, err := fn(ctx, req.Params)
	if err != nil {
		var rpcErr *jsonrpc.Error
		if errors.As(err, &rpcErr) {
			return jsonrpc.NewErrorResponse(req.ID, rpcErr)
		}
		t.logger.Debug().Err(err).Str("method", req.Method).Msg("handler failed")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error()))
	}

	resp, err := jsonrpc.NewResponse(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error()))
	}
	return resp
}

// Close implements Transport
func (t *Loopback) Close() error {
	return nil
}
