package api_common

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// HttpStatusError is an error that allows inner code to drive final HTTP errors. Has two
// tracks for error messages: internal for error information that should be constrained to
// logs, and response which is what can be returned to the caller.
type HttpStatusError struct {
	Status      int
	ResponseMsg string
	InternalErr error
}

func (e *HttpStatusError) Error() string {
	if e.InternalErr != nil {
		return e.InternalErr.Error()
	}
	if e.ResponseMsg != "" {
		return e.ResponseMsg
	}

	if e.Status != 0 {
		return fmt.Sprintf("HTTP %d: %s", e.Status, http.StatusText(e.Status))
	}

	return "Unknown error"
}

func (e *HttpStatusError) ResponseMsgOrDefault() string {
	if e.ResponseMsg != "" {
		return e.ResponseMsg
	}

	return http.StatusText(e.Status)
}

// ErrorResponse is the standardized JSON error format returned from the API. This can be
// used by clients to parse errors returned from the service.
type ErrorResponse struct {
	Error      string `json:"error"`
	StackTrace string `json:"stack_trace,omitempty"`
}

func (e *HttpStatusError) toErrorResponse(cfg Debuggable) *ErrorResponse {
	resp := &ErrorResponse{
		Error: e.ResponseMsgOrDefault(),
	}

	if cfg.IsDebugMode() {
		if e.InternalErr != nil {
			resp.StackTrace = fmt.Sprintf("%+v", e.InternalErr)
		}
	}

	return resp
}

func (e *HttpStatusError) WriteGinResponse(cfg Debuggable, gctx *gin.Context) {
	if e.InternalErr != nil {
		AddGinDebugHeaderError(cfg, gctx, e.InternalErr)
	}

	errorResponse := e.toErrorResponse(cfg)
	gctx.Header("Content-Type", "application/json")
	gctx.PureJSON(e.Status, errorResponse)
}

// AsHttpStatusError converts an error to an HTTP status error. If an HTTP status error is
// wrapped in the passed error, the status etc will be taken from the wrapped error.
func AsHttpStatusError(err error) *HttpStatusError {
	return NewHttpStatusErrorBuilder().
		WithInternalErr(err).
		BuildStatusError()
}

type HttpStatusErrorBuilder interface {
	// WithStatus sets the http status of the error to a specific value
	WithStatus(status int) HttpStatusErrorBuilder

	WithStatusNotFound() HttpStatusErrorBuilder
	WithStatusBadRequest() HttpStatusErrorBuilder
	WithStatusUnauthorized() HttpStatusErrorBuilder
	WithStatusForbidden() HttpStatusErrorBuilder
	WithStatusConflict() HttpStatusErrorBuilder
	WithStatusNotImplemented() HttpStatusErrorBuilder
	WithStatusInternalServerError() HttpStatusErrorBuilder
	WithStatusBadGateway() HttpStatusErrorBuilder

	// DefaultStatus sets the http status of error if it has not already been set to a value other than 500
	DefaultStatus(status int) HttpStatusErrorBuilder

	DefaultStatusNotFound() HttpStatusErrorBuilder
	DefaultStatusBadRequest() HttpStatusErrorBuilder

	WithResponseMsg(msg string) HttpStatusErrorBuilder
	WithResponseMsgf(format string, args ...interface{}) HttpStatusErrorBuilder
	WithInternalErr(err error) HttpStatusErrorBuilder
	WithWrappedInternalErr(err error, msg string) HttpStatusErrorBuilder
	WithWrappedInternalErrf(err error, msg string, args ...interface{}) HttpStatusErrorBuilder
	BuildStatusError() *HttpStatusError
	Build() error
}

type httpStatusErrorBuilder struct {
	err *HttpStatusError
}

func NewHttpStatusErrorBuilder() HttpStatusErrorBuilder {
	return &httpStatusErrorBuilder{
		err: &HttpStatusError{
			Status: http.StatusInternalServerError,
		},
	}
}

func (b *httpStatusErrorBuilder) WithStatus(status int) HttpStatusErrorBuilder {
	b.err.Status = status
	return b
}

func (b *httpStatusErrorBuilder) WithStatusNotFound() HttpStatusErrorBuilder {
	return b.WithStatus(http.StatusNotFound)
}

func (b *httpStatusErrorBuilder) WithStatusBadRequest() HttpStatusErrorBuilder {
	return b.WithStatus(http.StatusBadRequest)
}

func (b *httpStatusErrorBuilder) WithStatusUnauthorized() HttpStatusErrorBuilder {
	return b.WithStatus(http.StatusUnauthorized)
}

func (b *httpStatusErrorBuilder) WithStatusForbidden() HttpStatusErrorBuilder {
	return b.WithStatus(http.StatusForbidden)
}

func (b *httpStatusErrorBuilder) WithStatusConflict() HttpStatusErrorBuilder {
	return b.WithStatus(http.StatusConflict)
}

func (b *httpStatusErrorBuilder) WithStatusNotImplemented() HttpStatusErrorBuilder {
	return b.WithStatus(http.StatusNotImplemented)
}

func (b *httpStatusErrorBuilder) WithStatusInternalServerError() HttpStatusErrorBuilder {
	return b.WithStatus(http.StatusInternalServerError)
}

func (b *httpStatusErrorBuilder) WithStatusBadGateway() HttpStatusErrorBuilder {
	return b.WithStatus(http.StatusBadGateway)
}

func (b *httpStatusErrorBuilder) DefaultStatus(status int) HttpStatusErrorBuilder {
	if b.err.Status == 0 || b.err.Status == http.StatusInternalServerError {
		b.err.Status = status
	}

	return b
}

func (b *httpStatusErrorBuilder) DefaultStatusNotFound() HttpStatusErrorBuilder {
	return b.DefaultStatus(http.StatusNotFound)
}

func (b *httpStatusErrorBuilder) DefaultStatusBadRequest() HttpStatusErrorBuilder {
	return b.DefaultStatus(http.StatusBadRequest)
}

func (b *httpStatusErrorBuilder) WithResponseMsg(msg string) HttpStatusErrorBuilder {
	b.err.ResponseMsg = msg
	return b
}

func (b *httpStatusErrorBuilder) WithResponseMsgf(format string, args ...interface{}) HttpStatusErrorBuilder {
	b.err.ResponseMsg = fmt.Sprintf(format, args...)
	return b
}

func (b *httpStatusErrorBuilder) WithInternalErr(err error) HttpStatusErrorBuilder {
	var errStatusError *HttpStatusError
	if errors.As(err, &errStatusError) {
		if err == errStatusError {
			b.err = errStatusError
		} else {
			b.err.ResponseMsg = errStatusError.ResponseMsg
			b.err.Status = errStatusError.Status
			b.err.InternalErr = err
		}
	} else {
		b.err.InternalErr = err
	}

	return b
}

func (b *httpStatusErrorBuilder) WithWrappedInternalErr(err error, msg string) HttpStatusErrorBuilder {
	var errStatusError *HttpStatusError
	if errors.As(err, &errStatusError) {
		if err == errStatusError {
			b.err = errStatusError
		} else {
			b.err.ResponseMsg = errStatusError.ResponseMsg
			b.err.Status = errStatusError.Status
			b.err.InternalErr = err
		}
		b.err.InternalErr = errors.Wrap(b.err.InternalErr, msg)
	} else {
		b.err.InternalErr = errors.Wrap(err, msg)
	}

	return b
}

func (b *httpStatusErrorBuilder) WithWrappedInternalErrf(err error, msg string, args ...interface{}) HttpStatusErrorBuilder {
	return b.WithWrappedInternalErr(err, fmt.Sprintf(msg, args...))
}

func (b *httpStatusErrorBuilder) BuildStatusError() *HttpStatusError {
	return b.err
}

func (b *httpStatusErrorBuilder) Build() error {
	return b.BuildStatusError()
}

// HttpStatusErrorContains checks if the error is an HttpStatusError containing the passed
// string in either its response message or internal error. Intended for unit tests.
func HttpStatusErrorContains(err error, s string) bool {
	var he *HttpStatusError
	if errors.As(err, &he) {
		if strings.Contains(he.ResponseMsg, s) {
			return true
		}

		if he.InternalErr != nil && strings.Contains(he.InternalErr.Error(), s) {
			return true
		}
	}

	return false
}

// HttpStatusErrorIsStatusCode checks if the error is an HttpStatusError with the passed
// status code. Intended for unit tests.
func HttpStatusErrorIsStatusCode(err error, statusCode int) bool {
	var he *HttpStatusError
	return errors.As(err, &he) && he.Status == statusCode
}
