package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"rpcbatch/internal/jsonrpc"
	"rpcbatch/internal/rpcerr"
)

const (
	// DefaultMaxInflightBatches bounds concurrent batch exchanges when unset
	DefaultMaxInflightBatches = 16
	// DefaultFlushDelay is the quiet period that ends a tick when unset
	DefaultFlushDelay = time.Millisecond
	// DefaultMaxFlushWait caps how long a tick stays open under a steady stream of calls
	DefaultMaxFlushWait = 100 * time.Millisecond
)

// Options configures a Scheduler.
//
// Without a Deferrer the tick is a flush window: it closes once no call has
// been enqueued for FlushDelay, or MaxFlushWait after its first call. Callers
// that know where their burst ends can close it at once with Flush.
type Options struct {
	FlushDelay         time.Duration // used when Deferrer is nil, 0 means DefaultFlushDelay
	MaxFlushWait       time.Duration // used when Deferrer is nil, 0 means DefaultMaxFlushWait
	MaxBatchSize       int           // 0 means unlimited
	MaxInflightBatches int
	RequestTimeout     time.Duration // per exchange, 0 means none
	Deferrer           Deferrer
	Errors             ErrorMapper
	Observer           Observer
	Logger             zerolog.Logger
}

// Scheduler accumulates calls and flushes them as one batch per tick
type Scheduler struct {
	transport      Transport
	errors         ErrorMapper
	deferrer       Deferrer
	observer       Observer
	pool           *ants.Pool
	maxBatchSize   int
	requestTimeout time.Duration
	logger         zerolog.Logger

	// flush window of the default deferrer, zero with a custom one
	window  time.Duration
	maxWait time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	nextID      int64
	buffer      []*Call
	armed       bool
	armedAt     time.Time
	lastEnqueue time.Time
	closed      bool
	hook        BeforeRequestFunc
	ready       []*Batch
	lastStarted chan struct{}

	// serializes handing ready batches to the pool
	submitMu sync.Mutex
	inflight sync.WaitGroup
}

// New creates a Scheduler bound to transport
func New(transport Transport, opts Options) (*Scheduler, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	logger := opts.Logger.With().Str("component", "scheduler").Logger()

	maxInflight := opts.MaxInflightBatches
	if maxInflight <= 0 {
		maxInflight = DefaultMaxInflightBatches
	}
	pool, err := ants.NewPool(maxInflight, ants.WithPanicHandler(func(r interface{}) {
		logger.Error().Interface("panic", r).Msg("batch worker panic")
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch pool: %w", err)
	}

	var window, maxWait time.Duration
	deferrer := opts.Deferrer
	if deferrer == nil {
		window = opts.FlushDelay
		if window <= 0 {
			window = DefaultFlushDelay
		}
		maxWait = opts.MaxFlushWait
		if maxWait <= 0 {
			maxWait = DefaultMaxFlushWait
		}
		if maxWait < window {
			maxWait = window
		}
		deferrer = AfterDelay(window)
	}
	mapper := opts.Errors
	if mapper == nil {
		mapper = rpcerr.DefaultRegistry()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		transport:      transport,
		errors:         mapper,
		deferrer:       deferrer,
		observer:       observer,
		pool:           pool,
		maxBatchSize:   opts.MaxBatchSize,
		requestTimeout: opts.RequestTimeout,
		logger:         logger,
		window:         window,
		maxWait:        maxWait,
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// BeforeRequest registers the hook run before each dispatch.
// It replaces any previous hook; nil removes it.
func (s *Scheduler) BeforeRequest(hook BeforeRequestFunc) {
	s.mu.Lock()
	s.hook = hook
	s.mu.Unlock()
}

// Enqueue adds a call to the current batch and returns its handle.
// params must marshal to a JSON object or array, or be nil.
func (s *Scheduler) Enqueue(method string, params interface{}) *Call {
	if method == "" {
		return Rejected(method, ErrEmptyMethod)
	}

	req, err := jsonrpc.NewRequest(method, params, jsonrpc.NewIDNull())
	if err != nil {
		return Rejected(method, err)
	}
	call := newCall(method, req)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Rejected(method, ErrClosed)
	}

	s.nextID++
	call.id = s.nextID
	req.ID = jsonrpc.NewIDInt(call.id)
	if s.window > 0 {
		now := time.Now()
		if len(s.buffer) == 0 {
			// a window opens with the first call it holds
			s.armedAt = now
		}
		s.lastEnqueue = now
	}
	s.buffer = append(s.buffer, call)

	full := s.maxBatchSize > 0 && len(s.buffer) >= s.maxBatchSize
	if full {
		s.takeLocked(false)
	}
	arm := !full && !s.armed
	if arm {
		s.armed = true
	}
	s.mu.Unlock()

	if full {
		s.submitReady()
	} else if arm {
		s.deferrer.Defer(s.onTick)
	}

	return call
}

// Pending returns the number of calls waiting for the next flush
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Flush dispatches the accumulated calls now instead of waiting for the tick
func (s *Scheduler) Flush() {
	s.flush(false)
}

func (s *Scheduler) onTick() {
	if wait := s.windowRemaining(); wait > 0 {
		time.AfterFunc(wait, s.onTick)
		return
	}
	s.flush(true)
}

// windowRemaining reports how long the flush window stays open. It is
// non-zero only while calls keep arriving within FlushDelay of each other
// and the tick has been armed for less than MaxFlushWait.
func (s *Scheduler) windowRemaining() time.Duration {
	if s.window <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed || len(s.buffer) == 0 {
		return 0
	}

	now := time.Now()
	quiet := s.lastEnqueue.Add(s.window).Sub(now)
	limit := s.armedAt.Add(s.maxWait).Sub(now)
	if quiet <= 0 || limit <= 0 {
		return 0
	}
	if limit < quiet {
		return limit
	}
	return quiet
}

// takeLocked snapshots and clears the accumulation buffer and queues the
// snapshot for submission. s.mu must be held. A queued batch is counted as in
// flight before the lock is released, so Close waits for it. Only the
// deferred tick disarms; a size-triggered flush leaves the pending tick in
// place so that at most one is ever armed.
func (s *Scheduler) takeLocked(fromTick bool) {
	if fromTick {
		s.armed = false
	}
	calls := s.buffer
	s.buffer = nil
	if len(calls) == 0 {
		return
	}
	s.inflight.Add(1)

	requests := make([]*jsonrpc.Request, len(calls))
	for i, call := range calls {
		requests[i] = call.request
	}

	batch := &Batch{
		ID:       uuid.NewString(),
		Calls:    calls,
		Requests: requests,
		prev:     s.lastStarted,
		started:  make(chan struct{}),
	}
	s.lastStarted = batch.started
	s.ready = append(s.ready, batch)
}

func (s *Scheduler) flush(fromTick bool) {
	s.mu.Lock()
	s.takeLocked(fromTick)
	s.mu.Unlock()

	s.submitReady()
}

// submitReady hands queued batches to the pool in the order they were taken
func (s *Scheduler) submitReady() {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	for {
		s.mu.Lock()
		if len(s.ready) == 0 {
			s.mu.Unlock()
			return
		}
		batch := s.ready[0]
		s.ready[0] = nil
		s.ready = s.ready[1:]
		s.mu.Unlock()

		s.submit(batch)
	}
}

func (s *Scheduler) submit(batch *Batch) {
	s.observer.ObserveFlush(batch.Len())

	err := s.pool.Submit(func() {
		defer s.inflight.Done()
		defer batch.markStarted()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Interface("panic", r).
					Str("batch", batch.ID).
					Msg("batch dispatch panic")
				s.fail(batch, fmt.Errorf("batch dispatch panic: %v", r))
			}
		}()
		s.dispatch(batch)
	})
	if err != nil {
		batch.markStarted()
		s.inflight.Done()
		s.logger.Error().Err(err).Str("batch", batch.ID).Msg("failed to submit batch")
		s.fail(batch, fmt.Errorf("failed to submit batch: %w", err))
	}
}

// dispatch executes the batch and distributes results. The exchange starts
// only after the previous batch's exchange has started.
func (s *Scheduler) dispatch(batch *Batch) {
	ctx := s.ctx
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	if batch.prev != nil {
		select {
		case <-batch.prev:
		case <-ctx.Done():
			s.fail(batch, ctx.Err())
			return
		}
	}

	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hookCtx, err := hook(ctx, batch)
		if err != nil {
			s.logger.Warn().Err(err).Str("batch", batch.ID).Msg("before-request hook failed")
			s.fail(batch, fmt.Errorf("before request: %w", err))
			return
		}
		if hookCtx != nil {
			ctx = hookCtx
		}
	}

	s.logger.Debug().
		Str("batch", batch.ID).
		Int("calls", batch.Len()).
		Int64("firstID", batch.Calls[0].id).
		Msg("executing batch")

	batch.markStarted()
	start := time.Now()
	responses, err := s.transport.SendBatch(ctx, batch.Requests)
	s.observer.ObserveExchange(batch.Len(), time.Since(start), err)

	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("batch", batch.ID).
			Int("calls", batch.Len()).
			Msg("batch exchange failed")
		s.fail(batch, err)
		return
	}

	s.settle(batch, responses)
}

// settle fans a response batch back out to the calls by id
func (s *Scheduler) settle(batch *Batch, responses []*jsonrpc.Response) {
	index := make(map[int64]*Call, len(batch.Calls))
	for _, call := range batch.Calls {
		index[call.id] = call
	}

	resolved, rejected := 0, 0
	for _, resp := range responses {
		if resp == nil {
			continue
		}

		id, ok := resp.ID.Int64()
		call := index[id]
		if !ok || call == nil {
			s.logger.Debug().
				Str("batch", batch.ID).
				Str("id", resp.ID.String()).
				Msg("ignoring response with unknown id")
			continue
		}
		delete(index, id)

		if resp.HasError() {
			mapped := s.errors.Map(resp.Error)
			if mapped == nil {
				mapped = resp.Error
			}
			if call.reject(mapped) {
				s.observer.ObserveSettle(call.method, OutcomeRejected)
				rejected++
			}
			continue
		}

		if call.resolve(resp.Result) {
			s.observer.ObserveSettle(call.method, OutcomeResolved)
			resolved++
		}
	}

	missing := 0
	for _, call := range batch.Calls {
		if _, ok := index[call.id]; !ok {
			continue
		}
		if call.reject(fmt.Errorf("%w: id %d", ErrNoResponse, call.id)) {
			s.observer.ObserveSettle(call.method, OutcomeNoResponse)
			missing++
		}
	}

	event := s.logger.Debug()
	if missing > 0 {
		event = s.logger.Warn()
	}
	event.
		Str("batch", batch.ID).
		Int("resolved", resolved).
		Int("rejected", rejected).
		Int("missing", missing).
		Msg("batch completed")
}

// fail rejects every unsettled call of the batch with err
func (s *Scheduler) fail(batch *Batch, err error) {
	for _, call := range batch.Calls {
		if call.reject(err) {
			s.observer.ObserveSettle(call.method, OutcomeTransportError)
		}
	}
}

// Close flushes buffered calls and waits for in-flight batches.
// Calls enqueued afterwards are rejected with ErrClosed. If ctx expires first,
// in-flight exchanges are cancelled and ctx.Err() is returned.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.takeLocked(false)
	s.mu.Unlock()

	s.submitReady()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.cancel()
	s.pool.Release()
	s.logger.Info().Msg("scheduler closed")
	return err
}
