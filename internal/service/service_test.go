package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpcbatch/internal/client"
	"rpcbatch/internal/jsonrpc"
	"rpcbatch/internal/rpcerr"
	"rpcbatch/internal/scheduler"
	"rpcbatch/internal/transport"
)

type recordedCall struct {
	method string
	params json.RawMessage
}

// recordingCaller captures what each typed method sends
type recordingCaller struct {
	calls []recordedCall
}

func (r *recordingCaller) Call(method string, params interface{}) *scheduler.Call {
	raw, _ := json.Marshal(params)
	r.calls = append(r.calls, recordedCall{method: method, params: raw})
	return scheduler.Resolved(method, json.RawMessage(`null`))
}

func TestClient_PacksNamedParams(t *testing.T) {
	rec := &recordingCaller{}
	c := NewClient(rec)

	c.Create(Data{"k": "v"}, "ann", []byte{1, 2})
	c.Delete(7)
	c.Get("u1", "ann", "lee", 9.5, 1, 2, 3)
	c.GetAll(Members{{ID: "u1"}, {ID: "u2"}})
	c.TestMethod(Data{"a": 1}, []string{"x"})
	c.TestMethod2("ns", "ut", "bob", "rt", "res", "read")

	require.Len(t, rec.calls, 6)

	expected := []recordedCall{
		{MethodCreate, json.RawMessage(`{"newData":{"k":"v"},"name":"ann","data":"AQI="}`)},
		{MethodDelete, json.RawMessage(`{"id":7}`)},
		{MethodGet, json.RawMessage(`{"id":"u1","name":"ann","fname":"lee","price":9.5,"n":1,"b":2,"cc":3}`)},
		{MethodGetAll, json.RawMessage(`{"members":[{"id":"u1"},{"id":"u2"}]}`)},
		{MethodTestMethod, json.RawMessage(`{"data":{"a":1},"ss":["x"]}`)},
		{MethodTestMethod2, json.RawMessage(`{"ns":"ns","utype":"ut","user":"bob","restype":"rt","resource":"res","permission":"read"}`)},
	}
	for i, want := range expected {
		assert.Equal(t, want.method, rec.calls[i].method)
		assert.JSONEq(t, string(want.params), string(rec.calls[i].params))
	}
}

// manualDeferrer collects deferred callbacks until the test fires them
type manualDeferrer struct {
	fns []func()
}

func (d *manualDeferrer) Defer(fn func()) { d.fns = append(d.fns, fn) }

func (d *manualDeferrer) Fire() {
	fns := d.fns
	d.fns = nil
	for _, fn := range fns {
		fn()
	}
}

type countingTransport struct {
	*transport.Loopback
	batches []int
}

func (c *countingTransport) SendBatch(ctx context.Context, requests []*jsonrpc.Request) ([]*jsonrpc.Response, error) {
	c.batches = append(c.batches, len(requests))
	return c.Loopback.SendBatch(ctx, requests)
}

func newServiceClient(t *testing.T) (*Client, *manualDeferrer, *countingTransport) {
	t.Helper()
	lb := transport.NewLoopback(zerolog.Nop())
	Register(lb, NewMemory())
	tr := &countingTransport{Loopback: lb}

	d := &manualDeferrer{}
	cl, err := client.New(context.Background(), client.Options{
		Logger:    zerolog.Nop(),
		Transport: tr,
		Deferrer:  d,
	})
	require.NoError(t, err)
	t.Cleanup(func() { cl.Close(context.Background()) })

	return NewClient(cl), d, tr
}

func await[T any](t *testing.T, p Pending[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := p.Await(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return v, err
}

func TestService_RoundTrip(t *testing.T) {
	svc, d, tr := newServiceClient(t)

	created := []Pending[struct{}]{
		svc.Create(Data{"role": "admin"}, "ann", []byte("img")),
		svc.Create(nil, "bob", nil),
	}
	d.Fire()
	for _, p := range created {
		_, err := await(t, p)
		require.NoError(t, err)
	}

	ann := svc.Get("1", "", "", 0, 0, 0, 0)
	all := svc.GetAll(nil)
	some := svc.GetAll(Members{{ID: "2"}})
	missing := svc.Get("42", "", "", 0, 0, 0, 0)
	d.Fire()

	u, err := await(t, ann)
	require.NoError(t, err)
	assert.Equal(t, "ann", u.Name)
	assert.Equal(t, "admin", u.Data["role"])
	assert.Equal(t, []byte("img"), u.Photo)
	assert.False(t, u.CreatedAt.IsZero())

	users, err := await(t, all)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[1].Name)

	users, err = await(t, some)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "2", users[0].ID)

	_, err = await(t, missing)
	assert.ErrorIs(t, err, rpcerr.ErrInvalidParams)
	var typed *rpcerr.Error
	require.ErrorAs(t, err, &typed)
	var data map[string]string
	require.NoError(t, typed.DecodeData(&data))
	assert.Equal(t, "42", data["id"])

	del := svc.Delete(1)
	d.Fire()
	res, err := await(t, del)
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{A: "1", B: "ann"}, res)

	assert.Equal(t, []int{2, 4, 1}, tr.batches)
}

func TestService_TypedErrors(t *testing.T) {
	svc, d, _ := newServiceClient(t)

	ok := svc.TestMethod2("ns", "ut", "bob", "rt", "res", "read")
	unauthorized := svc.TestMethod2("ns", "ut", "", "rt", "res", "read")
	forbidden := svc.TestMethod2("ns", "ut", "bob", "rt", "res", "")
	d.Fire()

	_, err := await(t, ok)
	require.NoError(t, err)

	_, err = await(t, unauthorized)
	assert.ErrorIs(t, err, rpcerr.ErrUnauthorized)

	_, err = await(t, forbidden)
	assert.ErrorIs(t, err, rpcerr.ErrForbidden)
	assert.NotErrorIs(t, err, rpcerr.ErrUnauthorized)
}

func TestService_TestMethod(t *testing.T) {
	svc, d, _ := newServiceClient(t)

	p := svc.TestMethod(Data{"a": 1, "b": "x", "c": 2, "d": []int{1}}, nil)
	d.Fire()

	states, err := await(t, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, states["keys"]["number"])
	assert.Equal(t, []string{"b"}, states["keys"]["string"])
	assert.Equal(t, []string{"d"}, states["keys"]["array"])
}

func TestService_InvalidParams(t *testing.T) {
	lb := transport.NewLoopback(zerolog.Nop())
	Register(lb, NewMemory())

	req, err := jsonrpc.NewRequest(MethodDelete, map[string]string{"id": "not-a-number"}, jsonrpc.NewIDInt(1))
	require.NoError(t, err)

	responses, err := lb.SendBatch(context.Background(), []*jsonrpc.Request{req})
	require.NoError(t, err)
	require.Len(t, responses, 1)
	require.True(t, responses[0].HasError())
	assert.Equal(t, jsonrpc.CodeInvalidParams, responses[0].Error.Code)
}
