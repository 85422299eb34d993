package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rpcbatch/internal/jsonrpc"
)

// WSConfig configures a WebSocket transport
type WSConfig struct {
	URL     string
	Headers map[string]string
	// PingInterval enables keepalive pings; the connection is considered lost
	// when no pong arrives within two intervals
	PingInterval time.Duration
	Logger       zerolog.Logger
}

type wsResult struct {
	responses []*jsonrpc.Response
	err       error
}

// wsWaiter collects the responses of one in-flight batch
type wsWaiter struct {
	seq       uint64 // write order on the connection
	remaining map[int64]struct{}
	responses []*jsonrpc.Response
	ch        chan wsResult
}

// WS multiplexes batches over a single WebSocket connection.
// Each batch is written as one text frame; responses are routed back by id.
type WS struct {
	url          string
	headers      map[string]string
	pingInterval time.Duration
	logger       zerolog.Logger

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	pending   map[int64]*wsWaiter
	pendingMu sync.Mutex
	nextSeq   uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWS creates a WebSocket transport. Connect must be called before use.
func NewWS(cfg WSConfig) (*WS, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("WebSocket endpoint not configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WS{
		url:          cfg.URL,
		headers:      cfg.Headers,
		pingInterval: cfg.PingInterval,
		logger:       cfg.Logger.With().Str("transport", "ws").Logger(),
		pending:      make(map[int64]*wsWaiter),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Connect establishes the WebSocket connection and starts the reader goroutine
func (t *WS) Connect(ctx context.Context) error {
	t.connMu.Lock()
	if t.conn != nil {
		t.connMu.Unlock()
		return nil
	}
	t.connMu.Unlock()

	header := make(map[string][]string, len(t.headers))
	for k, v := range t.headers {
		header[k] = []string{v}
	}

	t.logger.Info().Str("url", t.url).Msg("WebSocket connecting")
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.url, header)
	if err != nil {
		return fmt.Errorf("failed to connect WebSocket: %w", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	if t.pingInterval > 0 {
		readTimeout := 2 * t.pingInterval
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
		t.wg.Add(1)
		go t.pingLoop(conn)
	}

	t.logger.Info().Str("url", t.url).Msg("WebSocket connected")
	t.wg.Add(1)
	go t.readLoop(conn)
	return nil
}

// Connected returns true if the WebSocket connection is established
func (t *WS) Connected() bool {
	t.connMu.RLock()
	ok := t.conn != nil
	t.connMu.RUnlock()
	return ok
}

// SendBatch writes the batch as one frame and waits for all of its responses
func (t *WS) SendBatch(ctx context.Context, requests []*jsonrpc.Request) ([]*jsonrpc.Response, error) {
	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	waiter := &wsWaiter{
		remaining: make(map[int64]struct{}, len(requests)),
		ch:        make(chan wsResult, 1),
	}
	for _, req := range requests {
		if id, ok := req.ID.Int64(); ok {
			waiter.remaining[id] = struct{}{}
		}
	}
	if len(waiter.remaining) == 0 {
		return nil, fmt.Errorf("batch has no numeric request ids")
	}

	reqBytes, err := jsonrpc.MarshalBatchRequest(requests)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	t.writeMu.Lock()
	t.pendingMu.Lock()
	t.nextSeq++
	waiter.seq = t.nextSeq
	for id := range waiter.remaining {
		t.pending[id] = waiter
	}
	t.pendingMu.Unlock()
	writeErr := conn.WriteMessage(websocket.TextMessage, reqBytes)
	t.writeMu.Unlock()
	if writeErr != nil {
		t.forget(waiter)
		return nil, fmt.Errorf("failed to send batch: %w", writeErr)
	}

	select {
	case res := <-waiter.ch:
		return res.responses, res.err
	case <-ctx.Done():
		t.forget(waiter)
		return nil, ctx.Err()
	}
}

func (t *WS) forget(waiter *wsWaiter) {
	t.pendingMu.Lock()
	for id := range waiter.remaining {
		if t.pending[id] == waiter {
			delete(t.pending, id)
		}
	}
	t.pendingMu.Unlock()
}

func (t *WS) pingLoop(conn *websocket.Conn) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug().Err(err).Msg("ping write failed")
				return
			}
		}
	}
}

func (t *WS) readLoop(conn *websocket.Conn) {
	defer t.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-t.ctx.Done():
				t.logger.Info().Msg("WebSocket reader stopped (shutdown)")
			default:
				t.logger.Warn().Err(err).Msg("WebSocket connection lost")
			}

			t.connMu.Lock()
			if t.conn == conn {
				t.conn = nil
			}
			t.connMu.Unlock()
			conn.Close()

			t.closeAllPending(fmt.Errorf("%w: %v", ErrNotConnected, err))
			return
		}

		t.dispatchMessage(data)
	}
}

// dispatchMessage routes one frame to the batches waiting for its ids.
// An array frame completes every batch it touches; single objects accumulate
// until the batch has seen all of its ids.
func (t *WS) dispatchMessage(data []byte) {
	responses, isBatch, err := jsonrpc.ParseBatchResponse(data)
	if err != nil {
		t.logger.Warn().Err(err).Int("len", len(data)).Msg("ws message parse error")
		return
	}

	if !isBatch && len(responses) == 1 && responses[0].HasError() && responses[0].ID.IsNull() {
		t.rejectOldest(responses[0].Error)
		return
	}

	var touched []*wsWaiter
	seen := make(map[*wsWaiter]bool)

	t.pendingMu.Lock()
	for _, resp := range responses {
		if resp == nil {
			continue
		}
		id, ok := resp.ID.Int64()
		waiter := t.pending[id]
		if !ok || waiter == nil {
			t.logger.Debug().Str("id", resp.ID.String()).Msg("response for unknown id")
			continue
		}
		delete(t.pending, id)
		delete(waiter.remaining, id)
		waiter.responses = append(waiter.responses, resp)
		if !seen[waiter] {
			seen[waiter] = true
			touched = append(touched, waiter)
		}
	}

	var done []*wsWaiter
	for _, waiter := range touched {
		if !isBatch && len(waiter.remaining) > 0 {
			continue
		}
		for id := range waiter.remaining {
			if t.pending[id] == waiter {
				delete(t.pending, id)
			}
		}
		done = append(done, waiter)
	}
	t.pendingMu.Unlock()

	for _, waiter := range done {
		waiter.ch <- wsResult{responses: waiter.responses}
	}
}

// rejectOldest fails the earliest written batch that has not received any
// response yet. Servers answer a batch they cannot process with a single
// error object carrying a null id.
func (t *WS) rejectOldest(rpcErr *jsonrpc.Error) {
	t.pendingMu.Lock()
	var oldest *wsWaiter
	for _, waiter := range t.pending {
		if len(waiter.responses) > 0 {
			continue
		}
		if oldest == nil || waiter.seq < oldest.seq {
			oldest = waiter
		}
	}
	if oldest != nil {
		for id := range oldest.remaining {
			if t.pending[id] == oldest {
				delete(t.pending, id)
			}
		}
	}
	t.pendingMu.Unlock()

	if oldest == nil {
		t.logger.Debug().Int("code", rpcErr.Code).Str("message", rpcErr.Message).Msg("batch error with no waiting batch")
		return
	}
	oldest.ch <- wsResult{err: fmt.Errorf("batch rejected: %w", rpcErr)}
}

// closeAllPending fails every batch still waiting for responses
func (t *WS) closeAllPending(err error) {
	t.pendingMu.Lock()
	waiters := make(map[*wsWaiter]struct{})
	for _, waiter := range t.pending {
		waiters[waiter] = struct{}{}
	}
	t.pending = make(map[int64]*wsWaiter)
	t.pendingMu.Unlock()

	for waiter := range waiters {
		select {
		case waiter.ch <- wsResult{err: err}:
		default:
		}
	}
}

// Close closes the connection and stops the reader
func (t *WS) Close() error {
	t.cancel()

	t.connMu.Lock()
	conn := t.conn
	t.conn = nil
	t.connMu.Unlock()

	var err error
	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = conn.Close()
	}

	t.wg.Wait()
	t.closeAllPending(ErrNotConnected)
	t.logger.Info().Msg("WebSocket disconnected")
	return err
}
