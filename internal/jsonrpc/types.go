// Package jsonrpc talks JSON-RPC 2.0 to external debrief services over a
// child process's standard streams.
//
// Two shapes are supported. SpawnAndRequest starts a fresh process per
// call, writes one request, closes stdin, and treats the whole of stdout as
// the response; it suits stateless operations such as parsing a file.
// ServiceManager keeps one process alive across calls and correlates
// newline-delimited responses to requests by id, so concurrent callers are
// safe.
package jsonrpc

import (
	"encoding/json"
	"errors"
)

// Version is the protocol version carried in every message.
const Version = "2.0"

// Standard and application error codes.
const (
	ParseError       = -32700
	InvalidRequest   = -32600
	MethodNotFound   = -32601
	InvalidParams    = -32602
	InternalError    = -32603
	ApplicationError = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int64          `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is
// set; a JSON null result is kept as the raw bytes "null".
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the error object of a failed response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var (
	errNoResultOrError   = errors.New("response has neither result nor error")
	errBothResultOrError = errors.New("response has both result and error")
)

func (r *Response) validate() error {
	switch {
	case r.Result == nil && r.Error == nil:
		return errNoResultOrError
	case r.Result != nil && r.Error != nil:
		return errBothResultOrError
	}
	return nil
}

// decodeResponse parses data as exactly one JSON-RPC response.
func decodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}
