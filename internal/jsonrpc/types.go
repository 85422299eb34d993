package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC version
const Version = "2.0"

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Server error codes range: -32000 to -32099
	CodeServerError = -32000
)

// ID represents a JSON-RPC request/response ID
// It can be a string, number, or null
type ID struct {
	value interface{}
}

// NewIDString creates an ID from a string
func NewIDString(s string) ID {
	return ID{value: s}
}

// NewIDInt creates an ID from an integer
func NewIDInt(n int64) ID {
	return ID{value: n}
}

// NewIDNull creates a null ID
func NewIDNull() ID {
	return ID{value: nil}
}

// IsNull returns true if the ID is null
func (id ID) IsNull() bool {
	return id.value == nil
}

// Value returns the underlying value
func (id ID) Value() interface{} {
	return id.value
}

// Int64 returns the numeric value of the ID.
// Whole-number JSON values decode as float64, so both forms are accepted.
func (id ID) Int64() (int64, bool) {
	switch v := id.value.(type) {
	case int64:
		return v, true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// String returns a printable form of the ID
func (id ID) String() string {
	if id.value == nil {
		return "null"
	}
	if n, ok := id.Int64(); ok {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%v", id.value)
}

// MarshalJSON implements json.Marshaler
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ID) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &id.value)
}

// Error represents a JSON-RPC error envelope
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// NewError creates a new JSON-RPC error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithData creates a new JSON-RPC error with data
func NewErrorWithData(code int, message string, data interface{}) *Error {
	e := &Error{
		Code:    code,
		Message: message,
	}
	if data != nil {
		if rawData, err := json.Marshal(data); err == nil {
			e.Data = rawData
		}
	}
	return e
}

// Common errors
var (
	ErrParse          = NewError(CodeParseError, "Parse error")
	ErrInvalidRequest = NewError(CodeInvalidRequest, "Invalid Request")
	ErrMethodNotFound = NewError(CodeMethodNotFound, "Method not found")
	ErrInvalidParams  = NewError(CodeInvalidParams, "Invalid params")
	ErrInternal       = NewError(CodeInternalError, "Internal error")
)
