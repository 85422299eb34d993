package jsonrpc

import (
	"encoding/json"
	"errors"
)

// Response represents a JSON-RPC response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      ID              `json:"id"`
}

// HasError returns true if the response contains an error
func (r *Response) HasError() bool {
	return r.Error != nil
}

// IsSuccess returns true if the response is successful
func (r *Response) IsSuccess() bool {
	return r.Error == nil
}

// NewResponse creates a successful response
func NewResponse(id ID, result interface{}) (*Response, error) {
	resp := &Response{
		JSONRPC: Version,
		ID:      id,
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	resp.Result = resultBytes

	return resp, nil
}

// NewResponseRaw creates a response with raw JSON result
func NewResponseRaw(id ID, result json.RawMessage) *Response {
	return &Response{
		JSONRPC: Version,
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(id ID, err *Error) *Response {
	return &Response{
		JSONRPC: Version,
		Error:   err,
		ID:      id,
	}
}

// ParseResponse parses a JSON-RPC response from bytes
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ParseBatchResponse parses a batch of JSON-RPC responses.
// A single object is accepted too; servers answer with one error object when
// they could not parse the batch at all.
func ParseBatchResponse(data []byte) ([]*Response, bool, error) {
	data = trimWhitespace(data)
	if len(data) == 0 {
		return nil, false, errors.New("empty response body")
	}

	if data[0] == '[' {
		var responses []*Response
		if err := json.Unmarshal(data, &responses); err != nil {
			return nil, true, err
		}
		return responses, true, nil
	}

	resp, err := ParseResponse(data)
	if err != nil {
		return nil, false, err
	}
	return []*Response{resp}, false, nil
}

// Bytes returns the response as JSON bytes
func (r *Response) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// MarshalBatchResponse marshals multiple responses as a JSON array
func MarshalBatchResponse(responses []*Response) ([]byte, error) {
	return json.Marshal(responses)
}
