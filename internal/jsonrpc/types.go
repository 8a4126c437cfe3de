// ABOUTME: JSON-RPC 2.0 message types for the bridge's tool surface
// ABOUTME: Implements request, response and error structures plus KSC error codes

package jsonrpc

import (
	"encoding/json"
	"fmt"
)

const Version = "2.0"

type Request struct {
	JSONRPC string           `json:"jsonrpc"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
	ID      *json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the caller expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
	ID      *json.RawMessage `json:"id,omitempty"`
}

type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
	ServerError    = -32000
)

// Codes in the implementation-defined server range, one per KSC failure kind.
const (
	KSCTransportError   = -32001
	KSCDecodeError      = -32002
	KSCApplicationError = -32003
	KSCContractError    = -32004
	KSCPollTimeout      = -32005
	SetupRequired       = -32010
)

// NewResult builds a success response, marshaling result.
func NewResult(id *json.RawMessage, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: Version, Result: raw, ID: id}, nil
}

// NewError builds an error response.
func NewError(id *json.RawMessage, e *Error) *Response {
	return &Response{JSONRPC: Version, Error: e, ID: id}
}
