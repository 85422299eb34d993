package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpcbatch/internal/jsonrpc"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer upgrades and hands every received frame to serve
func wsServer(t *testing.T, serve func(conn *websocket.Conn, data []byte)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			serve(conn, data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func echoFrames(t *testing.T, data []byte) []*jsonrpc.Response {
	requests, _, err := jsonrpc.ParseBatchRequest(data)
	require.NoError(t, err)
	responses := make([]*jsonrpc.Response, len(requests))
	for i, req := range requests {
		resp, err := jsonrpc.NewResponse(req.ID, req.Method)
		require.NoError(t, err)
		responses[i] = resp
	}
	return responses
}

func connectWS(t *testing.T, srv *httptest.Server) *WS {
	t.Helper()
	tr, err := NewWS(WSConfig{URL: wsURL(srv), Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestWS_SendBatch(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn, data []byte) {
		out, _ := jsonrpc.MarshalBatchResponse(echoFrames(t, data))
		conn.WriteMessage(websocket.TextMessage, out)
	})
	tr := connectWS(t, srv)
	assert.True(t, tr.Connected())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	responses, err := tr.SendBatch(ctx, mustRequests(t, "get", "getAll"))
	require.NoError(t, err)
	require.Len(t, responses, 2)

	var method string
	require.NoError(t, json.Unmarshal(responses[1].Result, &method))
	assert.Equal(t, "getAll", method)
}

func TestWS_BatchRejectedWithSingleError(t *testing.T) {
	frames := 0
	srv := wsServer(t, func(conn *websocket.Conn, data []byte) {
		frames++
		if frames == 1 {
			conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"Invalid Request"}}`))
			return
		}
		out, _ := jsonrpc.MarshalBatchResponse(echoFrames(t, data))
		conn.WriteMessage(websocket.TextMessage, out)
	})
	tr := connectWS(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	_, err := tr.SendBatch(ctx, mustRequests(t, "get", "delete"))
	var rpcErr *jsonrpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeInvalidRequest, rpcErr.Code)
	assert.Contains(t, err.Error(), "batch rejected")
	assert.Less(t, time.Since(start), time.Second)

	tr.pendingMu.Lock()
	assert.Empty(t, tr.pending)
	tr.pendingMu.Unlock()

	responses, err := tr.SendBatch(ctx, mustRequests(t, "get"))
	require.NoError(t, err)
	assert.Len(t, responses, 1)
}

func TestWS_SingleFramesAccumulate(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn, data []byte) {
		responses := echoFrames(t, data)
		for i := len(responses) - 1; i >= 0; i-- {
			out, _ := responses[i].Bytes()
			conn.WriteMessage(websocket.TextMessage, out)
		}
	})
	tr := connectWS(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	responses, err := tr.SendBatch(ctx, mustRequests(t, "a", "b", "c"))
	require.NoError(t, err)
	require.Len(t, responses, 3)
	id, _ := responses[0].ID.Int64()
	assert.Equal(t, int64(3), id)
}

func TestWS_ConnectionLossFailsPending(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn, data []byte) {
		conn.Close()
	})
	tr := connectWS(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := tr.SendBatch(ctx, mustRequests(t, "get"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.Eventually(t, func() bool { return !tr.Connected() }, time.Second, 10*time.Millisecond)
	_, err = tr.SendBatch(ctx, mustRequests(t, "get"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWS_ContextCancelled(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn, data []byte) {})
	tr := connectWS(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := tr.SendBatch(ctx, mustRequests(t, "get"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	tr.pendingMu.Lock()
	assert.Empty(t, tr.pending)
	tr.pendingMu.Unlock()
}

func TestWS_NotConnected(t *testing.T) {
	tr, err := NewWS(WSConfig{URL: "ws://127.0.0.1:1", Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = tr.SendBatch(context.Background(), mustRequests(t, "get"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWS_CloseAfterFailedConnect(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr, err := NewWS(WSConfig{URL: wsURL(srv), Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.Error(t, tr.Connect(context.Background()))

	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.ctx.Err(), context.Canceled)
	assert.False(t, tr.Connected())
}
