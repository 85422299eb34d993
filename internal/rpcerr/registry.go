package rpcerr

import (
	"encoding/json"
	"sync"

	"rpcbatch/internal/jsonrpc"
)

// Constructor builds a typed error from an envelope's message and data
type Constructor func(message string, data json.RawMessage) error

// Registry maps error codes to constructors
type Registry struct {
	constructors map[int]Constructor
	mu           sync.RWMutex
}

// NewRegistry creates an empty registry. Every code maps to UnknownError
// until registered.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[int]Constructor),
	}
}

// DefaultRegistry creates a registry with the standard JSON-RPC codes and the
// application codes preloaded
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, sentinel := range []*Error{
		ErrUnauthorized,
		ErrForbidden,
		ErrParse,
		ErrInvalidRequest,
		ErrMethodNotFound,
		ErrInvalidParams,
		ErrInternal,
	} {
		r.Register(sentinel.Code, sentinel.Name)
	}
	return r
}

// Register maps code to an *Error carrying name. Re-registering a code
// replaces the previous constructor.
func (r *Registry) Register(code int, name string) {
	r.RegisterFunc(code, Named(name, code))
}

// RegisterFunc maps code to a custom constructor
func (r *Registry) RegisterFunc(code int, fn Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[code] = fn
}

// Codes returns all registered codes
func (r *Registry) Codes() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]int, 0, len(r.constructors))
	for code := range r.constructors {
		codes = append(codes, code)
	}
	return codes
}

// Map converts an error envelope to a typed error. A nil envelope maps to nil.
func (r *Registry) Map(env *jsonrpc.Error) error {
	if env == nil {
		return nil
	}

	r.mu.RLock()
	fn, ok := r.constructors[env.Code]
	r.mu.RUnlock()

	if !ok {
		return &Error{
			Name:    UnknownName,
			Code:    env.Code,
			Message: env.Message,
			Data:    env.Data,
		}
	}
	return fn(env.Message, env.Data)
}

// Named returns a constructor producing *Error values with a fixed name and code
func Named(name string, code int) Constructor {
	return func(message string, data json.RawMessage) error {
		return &Error{
			Name:    name,
			Code:    code,
			Message: message,
			Data:    data,
		}
	}
}
