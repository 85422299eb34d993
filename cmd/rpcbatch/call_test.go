package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpcbatch/internal/client"
	"rpcbatch/internal/scheduler"
	"rpcbatch/internal/service"
	"rpcbatch/internal/transport"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams("-")
	require.NoError(t, err)
	assert.Nil(t, params)

	params, err = parseParams(`{"id":"1"}`)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`{"id":"1"}`), params)

	_, err = parseParams(`{id}`)
	assert.Error(t, err)
}

// tickDeferrer holds the flush until the test releases it
type tickDeferrer struct {
	fns []func()
}

func (d *tickDeferrer) Defer(fn func()) { d.fns = append(d.fns, fn) }

func (d *tickDeferrer) Fire() {
	for _, fn := range d.fns {
		fn()
	}
	d.fns = nil
}

func TestPrintResults(t *testing.T) {
	lb := transport.NewLoopback(zerolog.Nop())
	service.Register(lb, service.NewMemory())

	d := &tickDeferrer{}
	c, err := client.New(context.Background(), client.Options{Logger: zerolog.Nop(), Transport: lb, Deferrer: d})
	require.NoError(t, err)
	defer c.Close(context.Background())

	calls := []*scheduler.Call{
		c.Call(service.MethodCreate, json.RawMessage(`{"name":"ann"}`)),
		c.Call(service.MethodGetAll, json.RawMessage(`{}`)),
		c.Call(service.MethodGet, json.RawMessage(`{"id":"9"}`)),
		scheduler.Rejected("bad", errors.New("params are not valid JSON")),
	}
	d.Fire()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out bytes.Buffer
	failed := printResults(ctx, &out, calls)
	assert.Equal(t, 2, failed)

	var lines []callOutput
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var line callOutput
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 4)

	assert.Equal(t, service.MethodCreate, lines[0].Method)
	assert.Nil(t, lines[0].Error)

	var users []service.User
	require.NoError(t, json.Unmarshal(lines[1].Result, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "ann", users[0].Name)

	require.NotNil(t, lines[2].Error)
	assert.Equal(t, "InvalidParamsError", lines[2].Error.Name)

	require.NotNil(t, lines[3].Error)
	assert.Equal(t, "bad", lines[3].Method)
}
