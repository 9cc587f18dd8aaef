package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout is wrapped by every request that ran out of time.
	ErrTimeout = errors.New("request timeout")
	// ErrServiceExited is returned for requests outstanding when a
	// long-running service process exits.
	ErrServiceExited = errors.New("service process exited")
)

// maxRawInError bounds how much of an unparsable stdout is echoed back.
const maxRawInError = 512

// ClientError is a well-formed error response from the remote process.
type ClientError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

func newClientError(e *Error) *ClientError {
	return &ClientError{Code: e.Code, Message: e.Message, Data: e.Data}
}

// ApplicationErrorData is the structured payload debrief services attach to
// ApplicationError responses. The Python services send their exception
// name in Type (and Line/Column for parse failures); the loader's own
// shape carries ErrorType directly. ApplicationData fills ErrorType from
// Type so callers only look at one field.
type ApplicationErrorData struct {
	ErrorType   string `json:"errorType,omitempty"`
	Type        string `json:"type,omitempty"`
	Details     string `json:"details,omitempty"`
	Recoverable bool   `json:"recoverable"`
	Suggestion  string `json:"suggestion,omitempty"`
	Line        int    `json:"line,omitempty"`
	Column      int    `json:"column,omitempty"`
}

// Application error types reported in ApplicationErrorData.ErrorType.
const (
	ErrTypeFileNotFound     = "FILE_NOT_FOUND"
	ErrTypePermissionDenied = "PERMISSION_DENIED"
	ErrTypeParse            = "PARSE_ERROR"
	ErrTypeStoreNotFound    = "STORE_NOT_FOUND"
	ErrTypePlotNotFound     = "PLOT_NOT_FOUND"
	ErrTypeWrite            = "WRITE_ERROR"
	ErrTypeValidation       = "VALIDATION_ERROR"
)

// serviceErrorTypes maps exception names sent by debrief-io and
// debrief-stac in data.type onto ErrorType values.
var serviceErrorTypes = map[string]string{
	"FileNotFoundError":      ErrTypeFileNotFound,
	"PermissionError":        ErrTypePermissionDenied,
	"ParseError":             ErrTypeParse,
	"UnsupportedFormatError": ErrTypeParse,
	"CatalogNotFoundError":   ErrTypeStoreNotFound,
	"CatalogExistsError":     ErrTypeValidation,
	"PlotNotFoundError":      ErrTypePlotNotFound,
	"ValueError":             ErrTypeValidation,
	"OSError":                ErrTypeWrite,
}

// ApplicationData decodes Data as ApplicationErrorData. It reports false
// when there is no data or it names no error type. Unknown service
// exception names are passed through in ErrorType unchanged.
func (e *ClientError) ApplicationData() (*ApplicationErrorData, bool) {
	if len(e.Data) == 0 {
		return nil, false
	}
	var d ApplicationErrorData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil, false
	}
	if d.ErrorType == "" && d.Type != "" {
		d.ErrorType = d.Type
		if mapped, ok := serviceErrorTypes[d.Type]; ok {
			d.ErrorType = mapped
		}
	}
	if d.ErrorType == "" {
		return nil, false
	}
	return &d, true
}

// AsClientError returns the ClientError in err's chain, if any.
func AsClientError(err error) (*ClientError, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ExitError reports a one-shot process that exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with code %d: %s", e.Code, strings.TrimSpace(e.Stderr))
}

// ParseResponseError reports stdout that was not a single valid response.
type ParseResponseError struct {
	Raw string
	Err error
}

func (e *ParseResponseError) Error() string {
	raw := e.Raw
	if len(raw) > maxRawInError {
		raw = raw[:maxRawInError] + "..."
	}
	return fmt.Sprintf("failed to parse response: %v: %s", e.Err, raw)
}

func (e *ParseResponseError) Unwrap() error { return e.Err }
