// Package scheduler coalesces JSON-RPC calls into batches.
//
// Every call enqueued before the pending flush fires joins the same batch:
//
//	s.Enqueue("get", params)    -> id 1 ┐
//	s.Enqueue("delete", params) -> id 2 ┼─ one SendBatch([1 2 3])
//	s.Enqueue("getAll", params) -> id 3 ┘
//
// The response batch is fanned back out by id. A protocol error rejects only
// its own call; a transport failure rejects every call of that batch.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"rpcbatch/internal/jsonrpc"
)

var (
	// ErrEmptyMethod is returned for calls without a method name
	ErrEmptyMethod = errors.New("method is required")
	// ErrNoResponse is returned for calls missing from a successful batch response
	ErrNoResponse = errors.New("no response for request in batch")
	// ErrClosed is returned for calls enqueued after Close
	ErrClosed = errors.New("scheduler closed")
)

// Transport executes one batch exchange
type Transport interface {
	SendBatch(ctx context.Context, requests []*jsonrpc.Request) ([]*jsonrpc.Response, error)
}

// ErrorMapper converts a protocol error envelope into a typed error
type ErrorMapper interface {
	Map(env *jsonrpc.Error) error
}

// Deferrer runs fn once at the next flush opportunity
type Deferrer interface {
	Defer(fn func())
}

// DeferFunc adapts a function to Deferrer
type DeferFunc func(fn func())

// Defer implements Deferrer
func (f DeferFunc) Defer(fn func()) {
	f(fn)
}

// AfterDelay returns a Deferrer backed by time.AfterFunc.
// A zero delay runs fn as soon as the runtime schedules the timer goroutine,
// which may be while the enqueuing goroutine is still running; it does not
// by itself keep a loop of calls in one batch.
func AfterDelay(d time.Duration) Deferrer {
	return DeferFunc(func(fn func()) {
		time.AfterFunc(d, fn)
	})
}

// Batch is the set of calls flushed together
type Batch struct {
	ID       string
	Calls    []*Call
	Requests []*jsonrpc.Request

	prev      <-chan struct{}
	started   chan struct{}
	startOnce sync.Once
}

// markStarted releases the next batch's exchange
func (b *Batch) markStarted() {
	b.startOnce.Do(func() {
		if b.started != nil {
			close(b.started)
		}
	})
}

// Len returns the number of calls in the batch
func (b *Batch) Len() int {
	return len(b.Calls)
}

// BeforeRequestFunc runs before a batch is handed to the transport.
// It may mutate request params or return a derived context; it must not change
// request ids. A non-nil error fails the whole batch.
type BeforeRequestFunc func(ctx context.Context, batch *Batch) (context.Context, error)

// Outcome labels how a call settled
type Outcome string

const (
	OutcomeResolved       Outcome = "resolved"
	OutcomeRejected       Outcome = "rejected"
	OutcomeNoResponse     Outcome = "no_response"
	OutcomeTransportError Outcome = "transport_error"
)

// Observer receives scheduler events, e.g. for metrics
type Observer interface {
	ObserveFlush(size int)
	ObserveExchange(size int, elapsed time.Duration, err error)
	ObserveSettle(method string, outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) ObserveFlush(int)                          {}
func (nopObserver) ObserveExchange(int, time.Duration, error) {}
func (nopObserver) ObserveSettle(string, Outcome)             {}
