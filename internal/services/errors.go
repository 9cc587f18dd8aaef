package services

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"

	"debrief/internal/catalog"
	"debrief/internal/jsonrpc"
	"debrief/internal/prefs"
)

// ErrorCode groups failures for display.
type ErrorCode string

const (
	CodeParse   ErrorCode = "PARSE_ERROR"
	CodeStore   ErrorCode = "STORE_ERROR"
	CodeWrite   ErrorCode = "WRITE_ERROR"
	CodeService ErrorCode = "SERVICE_ERROR"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Failure is a user-facing description of an error.
type Failure struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
	Retryable  bool      `json:"retryable"`
}

// Classify maps an error from this package, jsonrpc, or prefs onto a
// Failure. Service-supplied application data takes precedence over the
// transport classification.
func Classify(err error) Failure {
	f := Failure{Code: CodeUnknown, Message: err.Error(), Retryable: true}

	var (
		parseErr *ParseError
		catErr   *catalog.InvalidCatalogError
		notFound *prefs.StoreNotFoundError
		exitErr  *jsonrpc.ExitError
		respErr  *jsonrpc.ParseResponseError
		stepErr  *StepError
	)

	if errors.As(err, &stepErr) {
		f.Message = stepErr.Err.Error()
	}

	if ce, ok := jsonrpc.AsClientError(err); ok {
		f.Message = ce.Message
		if data, ok := ce.ApplicationData(); ok {
			f.Code = codeForApplicationError(data.ErrorType)
			f.Details = data.Details
			f.Resolution = data.Suggestion
			f.Retryable = data.Recoverable
			if errors.As(err, &parseErr) {
				f.Code = CodeParse
			}
			return f
		}
	}

	switch {
	case errors.As(err, &parseErr):
		f.Code = CodeParse
		f.Message = parseErr.Message
		f.Retryable = false
		if errors.As(err, &exitErr) || errors.Is(err, jsonrpc.ErrTimeout) || serviceMissing(err) {
			f.Code = CodeService
			f.Retryable = true
		}
	case errors.As(err, &catErr), errors.As(err, &notFound):
		f.Code = CodeStore
		f.Retryable = false
	case errors.Is(err, prefs.ErrConfig):
		f.Code = CodeStore
		f.Retryable = false
	case errors.Is(err, jsonrpc.ErrTimeout):
		f.Code = CodeService
		f.Resolution = "The service took too long to respond; try again."
	case errors.Is(err, jsonrpc.ErrServiceExited), errors.As(err, &exitErr), errors.As(err, &respErr):
		f.Code = CodeService
	case serviceMissing(err):
		f.Code = CodeService
		f.Retryable = false
		f.Resolution = "Install the debrief services or set the <NAME>_PATH environment variable."
	case errors.Is(err, context.Canceled):
		f.Retryable = true
	}
	return f
}

// serviceMissing reports a service executable that could not be started.
func serviceMissing(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist)
}

func codeForApplicationError(errorType string) ErrorCode {
	switch errorType {
	case jsonrpc.ErrTypeFileNotFound, jsonrpc.ErrTypeParse:
		return CodeParse
	case jsonrpc.ErrTypeStoreNotFound, jsonrpc.ErrTypePlotNotFound, jsonrpc.ErrTypeValidation:
		return CodeStore
	case jsonrpc.ErrTypeWrite, jsonrpc.ErrTypePermissionDenied:
		return CodeWrite
	default:
		return CodeService
	}
}

// IsRecoverable reports whether retrying err may succeed.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable
}
