// Package rpcerr maps JSON-RPC error envelopes to typed Go errors.
//
// Each known code has a fixed name baked in; the message and data come from the
// envelope. Unknown codes map to an Error named UnknownError that keeps code,
// message and data unchanged.
package rpcerr

import (
	"encoding/json"
	"fmt"

	"rpcbatch/internal/jsonrpc"
)

// UnknownName is the name given to errors with an unregistered code
const UnknownName = "UnknownError"

// Application error codes
const (
	CodeUnauthorized = -32001
	CodeForbidden    = -32002
)

// Error is a typed protocol error
type Error struct {
	Name    string
	Code    int
	Message string
	Data    json.RawMessage
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

// Is reports whether target is an *Error with the same code and name.
// Sentinels below carry no message, so errors.Is(err, ErrUnauthorized)
// matches any unauthorized error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Name == t.Name
}

// Envelope converts the error back to its wire form
func (e *Error) Envelope() *jsonrpc.Error {
	return &jsonrpc.Error{
		Code:    e.Code,
		Message: e.Message,
		Data:    e.Data,
	}
}

// DecodeData unmarshals the error data into v
func (e *Error) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Sentinels for errors.Is
var (
	ErrUnauthorized   = &Error{Name: "ErrUnauthorizedError", Code: CodeUnauthorized}
	ErrForbidden      = &Error{Name: "ErrForbiddenError", Code: CodeForbidden}
	ErrParse          = &Error{Name: "ParseError", Code: jsonrpc.CodeParseError}
	ErrInvalidRequest = &Error{Name: "InvalidRequestError", Code: jsonrpc.CodeInvalidRequest}
	ErrMethodNotFound = &Error{Name: "MethodNotFoundError", Code: jsonrpc.CodeMethodNotFound}
	ErrInvalidParams  = &Error{Name: "InvalidParamsError", Code: jsonrpc.CodeInvalidParams}
	ErrInternal       = &Error{Name: "InternalError", Code: jsonrpc.CodeInternalError}
)
