package service

import "rpcbatch/internal/scheduler"

// Caller enqueues one call; implemented by client.Client
type Caller interface {
	Call(method string, params interface{}) *scheduler.Call
}

// Client is the typed surface of the item service
type Client struct {
	caller Caller
}

// NewClient creates a typed client over caller
func NewClient(caller Caller) *Client {
	return &Client{caller: caller}
}

// Create creates a new item
func (c *Client) Create(newData Data, name string, data []byte) Pending[struct{}] {
	return Pending[struct{}]{c.caller.Call(MethodCreate, createParams{
		NewData: newData,
		Name:    name,
		Data:    data,
	})}
}

// Delete removes an item
func (c *Client) Delete(id uint) Pending[DeleteResult] {
	return Pending[DeleteResult]{c.caller.Call(MethodDelete, deleteParams{ID: id})}
}

// Get returns one item
func (c *Client) Get(id, name, fname string, price float32, n, b, cc int) Pending[User] {
	return Pending[User]{c.caller.Call(MethodGet, getParams{
		ID:    id,
		Name:  name,
		FName: fname,
		Price: price,
		N:     n,
		B:     b,
		CC:    cc,
	})}
}

// GetAll returns the items of the given members
func (c *Client) GetAll(members Members) Pending[[]*User] {
	return Pending[[]*User]{c.caller.Call(MethodGetAll, getAllParams{Members: members})}
}

// TestMethod reports the keys of data grouped by JSON type
func (c *Client) TestMethod(data Data, ss interface{}) Pending[States] {
	return Pending[States]{c.caller.Call(MethodTestMethod, testMethodParams{Data: data, SS: ss})}
}

// TestMethod2 checks that user holds permission on resource. It fails with
// rpcerr.ErrUnauthorized without a user and rpcerr.ErrForbidden without a permission.
func (c *Client) TestMethod2(ns, utype, user, restype, resource, permission string) Pending[struct{}] {
	return Pending[struct{}]{c.caller.Call(MethodTestMethod2, testMethod2Params{
		NS:         ns,
		UType:      utype,
		User:       user,
		ResType:    restype,
		Resource:   resource,
		Permission: permission,
	})}
}
