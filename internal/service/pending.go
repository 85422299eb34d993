package service

import (
	"context"

	"rpcbatch/internal/scheduler"
)

// Pending is the typed result of one call
type Pending[T any] struct {
	call *scheduler.Call
}

// Call returns the underlying handle
func (p Pending[T]) Call() *scheduler.Call {
	return p.call
}

// Done returns a channel closed once the call settles
func (p Pending[T]) Done() <-chan struct{} {
	return p.call.Done()
}

// Await waits for the call and decodes its result
func (p Pending[T]) Await(ctx context.Context) (T, error) {
	var v T
	err := p.call.Decode(ctx, &v)
	return v, err
}
