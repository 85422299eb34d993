package service

import (
	"context"
	"encoding/json"

	"rpcbatch/internal/jsonrpc"
	"rpcbatch/internal/transport"
)

// Interface is the server side of the item service
type Interface interface {
	Create(ctx context.Context, newData Data, name string, data []byte) error
	Delete(ctx context.Context, id uint) (DeleteResult, error)
	Get(ctx context.Context, id, name, fname string, price float32, n, b, cc int) (User, error)
	GetAll(ctx context.Context, members Members) ([]*User, error)
	TestMethod(ctx context.Context, data Data, ss interface{}) (States, error)
	TestMethod2(ctx context.Context, ns, utype, user, restype, resource, permission string) error
}

// Register serves svc through the loopback transport
func Register(lb *transport.Loopback, svc Interface) {
	lb.Handle(MethodCreate, func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var p createParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, svc.Create(ctx, p.NewData, p.Name, p.Data)
	})
	lb.Handle(MethodDelete, func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var p deleteParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return svc.Delete(ctx, p.ID)
	})
	lb.Handle(MethodGet, func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var p getParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return svc.Get(ctx, p.ID, p.Name, p.FName, p.Price, p.N, p.B, p.CC)
	})
	lb.Handle(MethodGetAll, func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var p getAllParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return svc.GetAll(ctx, p.Members)
	})
	lb.Handle(MethodTestMethod, func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var p testMethodParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return svc.TestMethod(ctx, p.Data, p.SS)
	})
	lb.Handle(MethodTestMethod2, func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var p testMethod2Params
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, svc.TestMethod2(ctx, p.NS, p.UType, p.User, p.ResType, p.Resource, p.Permission)
	})
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())
	}
	return nil
}
