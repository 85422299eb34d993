package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"rpcbatch/internal/jsonrpc"
	"rpcbatch/internal/rpcerr"
)

// Memory is an in-process Interface implementation backed by a map
type Memory struct {
	mu     sync.RWMutex
	nextID uint
	users  map[string]*User
	now    func() time.Time
}

var _ Interface = (*Memory)(nil)

// NewMemory creates an empty store
func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]*User),
		now:   time.Now,
	}
}

func (m *Memory) Create(_ context.Context, newData Data, name string, data []byte) error {
	if name == "" {
		return jsonrpc.NewError(jsonrpc.CodeInvalidParams, "name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := m.now().UTC()
	id := strconv.FormatUint(uint64(m.nextID), 10)
	m.users[id] = &User{
		ID:        id,
		Name:      name,
		Data:      newData,
		Photo:     data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, id uint) (DeleteResult, error) {
	key := strconv.FormatUint(uint64(id), 10)

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[key]
	if !ok {
		return DeleteResult{}, notFound(key)
	}
	delete(m.users, key)
	return DeleteResult{A: u.ID, B: u.Name}, nil
}

func (m *Memory) Get(_ context.Context, id, _, _ string, _ float32, _, _, _ int) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return User{}, notFound(id)
	}
	return *u, nil
}

// GetAll returns the listed users, or every user when members is empty
func (m *Memory) GetAll(_ context.Context, members Members) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*User
	if len(members) == 0 {
		for _, u := range m.users {
			c := *u
			out = append(out, &c)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out, nil
	}

	for _, member := range members {
		u, ok := m.users[member.ID]
		if !ok {
			return nil, notFound(member.ID)
		}
		c := *u
		out = append(out, &c)
	}
	return out, nil
}

// TestMethod groups the keys of data by the JSON type of their values
func (m *Memory) TestMethod(_ context.Context, data Data, _ interface{}) (States, error) {
	states := States{"keys": {}}
	for k, v := range data {
		kind := "null"
		switch v.(type) {
		case string:
			kind = "string"
		case float64:
			kind = "number"
		case bool:
			kind = "bool"
		case []interface{}:
			kind = "array"
		case map[string]interface{}:
			kind = "object"
		}
		states["keys"][kind] = append(states["keys"][kind], k)
	}
	for _, keys := range states["keys"] {
		sort.Strings(keys)
	}
	return states, nil
}

// TestMethod2 checks an access request; it fails with the unauthorized
// code without a user and the forbidden code without a permission
func (m *Memory) TestMethod2(_ context.Context, ns, _, user, _, resource, permission string) error {
	if user == "" {
		return jsonrpc.NewError(rpcerr.CodeUnauthorized, "unauthorized")
	}
	if permission == "" {
		return jsonrpc.NewErrorWithData(rpcerr.CodeForbidden, "permission required", map[string]string{
			"ns":       ns,
			"resource": resource,
		})
	}
	return nil
}

func notFound(id string) error {
	return jsonrpc.NewErrorWithData(jsonrpc.CodeInvalidParams, "user not found", map[string]string{"id": id})
}
