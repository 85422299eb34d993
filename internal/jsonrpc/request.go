package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Request represents a JSON-RPC request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      ID              `json:"id"`
}

// Validate checks if the request is valid
func (r *Request) Validate() error {
	if r.JSONRPC != Version {
		return fmt.Errorf("invalid jsonrpc version: %s", r.JSONRPC)
	}
	if r.Method == "" {
		return fmt.Errorf("method is required")
	}
	return nil
}

// ParseRequest parses a single JSON-RPC request from bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// ParseBatchRequest parses a batch of JSON-RPC requests
// Returns a slice of requests, or a single request if not a batch
func ParseBatchRequest(data []byte) ([]*Request, bool, error) {
	data = trimWhitespace(data)
	if len(data) == 0 {
		return nil, false, ErrInvalidRequest
	}

	if data[0] == '[' {
		var requests []*Request
		if err := json.Unmarshal(data, &requests); err != nil {
			return nil, true, fmt.Errorf("failed to parse batch request: %w", err)
		}
		if len(requests) == 0 {
			return nil, true, ErrInvalidRequest
		}
		return requests, true, nil
	}

	req, err := ParseRequest(data)
	if err != nil {
		return nil, false, err
	}
	return []*Request{req}, false, nil
}

// NewRequest creates a new JSON-RPC request.
// params must marshal to a JSON object or array; nil or null omits the member.
func NewRequest(method string, params interface{}, id ID) (*Request, error) {
	req := &Request{
		JSONRPC: Version,
		Method:  method,
		ID:      id,
	}

	if params != nil {
		paramsBytes, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		if err := checkStructured(paramsBytes); err != nil {
			return nil, err
		}
		if string(paramsBytes) != "null" {
			req.Params = paramsBytes
		}
	}

	return req, nil
}

// checkStructured rejects params that are not a JSON object or array
func checkStructured(params json.RawMessage) error {
	params = trimWhitespace(params)
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	switch params[0] {
	case '{', '[':
		return nil
	default:
		return errors.New("params must be an object or an array")
	}
}

// MarshalJSON implements custom JSON marshaling
func (r *Request) MarshalJSON() ([]byte, error) {
	type requestAlias Request
	return json.Marshal((*requestAlias)(r))
}

// Bytes returns the request as JSON bytes
func (r *Request) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// MarshalBatchRequest marshals multiple requests as a JSON array
func MarshalBatchRequest(requests []*Request) ([]byte, error) {
	return json.Marshal(requests)
}

// trimWhitespace removes leading whitespace from byte slice
func trimWhitespace(data []byte) []byte {
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return data[i:]
		}
	}
	return data[len(data):]
}
