package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"rpcbatch/internal/jsonrpc"
)

// ErrPending is returned by Call.Result while the call is not settled yet
var ErrPending = errors.New("call is still pending")

// State is the settlement state of a Call
type State int

const (
	StatePending State = iota
	StateResolved
	StateRejected
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Call is the caller-facing handle of one enqueued request.
// It settles exactly once; later resolve/reject attempts are ignored.
type Call struct {
	id      int64
	method  string
	request *jsonrpc.Request

	mu     sync.Mutex
	state  State
	result json.RawMessage
	err    error
	done   chan struct{}
}

func newCall(method string, req *jsonrpc.Request) *Call {
	return &Call{
		method:  method,
		request: req,
		done:    make(chan struct{}),
	}
}

// Resolved returns a call that is already settled with result.
// Used for answers that never reach the transport, e.g. cache hits.
func Resolved(method string, result json.RawMessage) *Call {
	c := newCall(method, nil)
	c.resolve(result)
	return c
}

// Rejected returns a call that is already settled with err
func Rejected(method string, err error) *Call {
	c := newCall(method, nil)
	c.reject(err)
	return c
}

// ID returns the request identifier, or 0 if the call was never enqueued
func (c *Call) ID() int64 {
	return c.id
}

// Method returns the remote method name
func (c *Call) Method() string {
	return c.method
}

// Request returns the request envelope, or nil if the call was never enqueued
func (c *Call) Request() *jsonrpc.Request {
	return c.request
}

// State returns the current settlement state
func (c *Call) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done returns a channel closed once the call settles
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result returns the settled outcome without blocking.
// It returns ErrPending if the call has not settled.
func (c *Call) Result() (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateResolved:
		return c.result, nil
	case StateRejected:
		return nil, c.err
	default:
		return nil, ErrPending
	}
}

// Wait blocks until the call settles or ctx is done.
// Giving up on ctx does not withdraw the request.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Decode waits for the call and unmarshals its result into v
func (c *Call) Decode(ctx context.Context, v interface{}) error {
	result, err := c.Wait(ctx)
	if err != nil {
		return err
	}
	if v == nil || len(result) == 0 {
		return nil
	}
	return json.Unmarshal(result, v)
}

func (c *Call) resolve(result json.RawMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePending {
		return false
	}
	c.state = StateResolved
	c.result = result
	close(c.done)
	return true
}

func (c *Call) reject(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePending {
		return false
	}
	c.state = StateRejected
	c.err = err
	close(c.done)
	return true
}
