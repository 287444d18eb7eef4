// Package errors provides the structured error type used across framefarm.
// Errors carry a Code for categorization, the failing Op, context Fields and
// the stack captured at creation.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Code represents an error code for categorization.
type Code string

// Error codes for the platform.
const (
	CodeInternal       Code = "INTERNAL_ERROR"
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeConfig         Code = "CONFIG_ERROR"
	CodeChunkExecution Code = "CHUNK_EXECUTION_ERROR"
	CodeJobFailed      Code = "JOB_FAILED"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeTimeout        Code = "TIMEOUT"
	CodeUnavailable    Code = "UNAVAILABLE"
	CodeBadRequest     Code = "BAD_REQUEST"
	CodeCanceled       Code = "CANCELED"
)

// Error is the structured error every framefarm package returns.
type Error struct {
	Code    Code
	Message string
	// Op names the failing operation, such as "dispatch.invoke".
	Op     string
	Err    error
	Fields map[string]any
	Stack  []Frame
}

// Frame is one entry of a captured stack.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// Error renders as "op: [CODE] message: cause", omitting empty parts.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op + ": ")
	}
	if e.Code != "" {
		fmt.Fprintf(&b, "[%s] ", e.Code)
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, 1)
	}
	e.Fields[key] = value
	return e
}

func (e *Error) WithFields(fields map[string]any) *Error {
	for k, v := range fields {
		e.WithField(k, v)
	}
	return e
}

func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// httpStatus maps codes to response statuses. Unlisted codes are 500.
var httpStatus = map[Code]int{
	CodeValidation:     http.StatusBadRequest,
	CodeBadRequest:     http.StatusBadRequest,
	CodeConfig:         http.StatusBadRequest,
	CodeNotFound:       http.StatusNotFound,
	CodeConflict:       http.StatusConflict,
	CodeCanceled:       499,
	CodeChunkExecution: http.StatusBadGateway,
	CodeJobFailed:      http.StatusBadGateway,
	CodeUnavailable:    http.StatusServiceUnavailable,
	CodeTimeout:        http.StatusGatewayTimeout,
}

// HTTPStatus returns the response status for the error's code.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// StackTrace formats Stack one frame per line.
func (e *Error) StackTrace() string {
	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Stack: captureStack(2)}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Stack: captureStack(2)}
}

// Wrap adds op and message to err. A wrapped *Error keeps its code and
// fields; anything else takes the code GetCode reports for it.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}
	w := &Error{Code: GetCode(err), Message: message, Op: op, Err: err, Stack: captureStack(2)}
	var inner *Error
	if errors.As(err, &inner) {
		w.Fields = inner.Fields
	}
	return w
}

func Wrapf(err error, op string, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	w := Wrap(err, op, fmt.Sprintf(format, args...))
	w.Stack = captureStack(2)
	return w
}

// WrapWithCode wraps err under code, discarding the code it carried.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Op: op, Err: err, Stack: captureStack(2)}
}

func Internal(message string) *Error {
	return New(CodeInternal, message)
}

func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// NotFound reports a missing resource, recording both as fields.
func NotFound(resource string, id string) *Error {
	return Newf(CodeNotFound, "%s not found: %s", resource, id).
		WithFields(map[string]any{"resource": resource, "id": id})
}

func Validation(message string) *Error {
	return New(CodeValidation, message)
}

func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// ValidationField is a validation error about one input field.
func ValidationField(field string, message string) *Error {
	return New(CodeValidation, message).WithField("field", field)
}

// Config is an error in a job profile or the process environment.
func Config(message string) *Error {
	return New(CodeConfig, message)
}

func Configf(format string, args ...any) *Error {
	return Newf(CodeConfig, format, args...)
}

// ConfigKey is a configuration error about one key of a job profile.
func ConfigKey(profile, key, message string) *Error {
	return New(CodeConfig, message).
		WithFields(map[string]any{"profile": profile, "key": key})
}

// ChunkExecution records a failed chunk invocation. A nil cause is allowed
// for invocations that returned an unexpected result rather than an error.
// A timed out cause keeps CodeTimeout.
func ChunkExecution(cause error, chunkID string, message string) *Error {
	code := CodeChunkExecution
	if cause != nil && GetCode(cause) == CodeTimeout {
		code = CodeTimeout
	}
	return &Error{
		Code:    code,
		Message: message,
		Op:      "dispatch.invoke",
		Err:     cause,
		Fields:  map[string]any{"chunk": chunkID},
		Stack:   captureStack(2),
	}
}

func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

// Timeout reports that operation ran out of time.
func Timeout(operation string) *Error {
	return Newf(CodeTimeout, "operation timed out: %s", operation).WithField("operation", operation)
}

// Unavailable reports that a backing service could not be reached.
func Unavailable(service string) *Error {
	return Newf(CodeUnavailable, "service unavailable: %s", service).WithField("service", service)
}

// Coder is implemented by error types outside this package that belong to
// a Code, such as the job level failure of a run.
type Coder interface {
	ErrorCode() Code
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return CodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error.
func GetHTTPStatus(err error) int {
	return (&Error{Code: GetCode(err)}).HTTPStatus()
}

// GetFields extracts fields from an error.
func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) && e.Fields != nil {
		return e.Fields
	}
	return nil
}

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return IsCode(err, CodeValidation)
}

// IsConfig checks if an error is a job configuration error.
func IsConfig(err error) bool {
	return IsCode(err, CodeConfig)
}

// IsChunkExecution checks if an error is a failed chunk invocation,
// including chunks that exceeded their wall-clock budget.
func IsChunkExecution(err error) bool {
	return IsCode(err, CodeChunkExecution) || IsCode(err, CodeTimeout)
}

// IsJobFailed checks if an error reports a failed job.
func IsJobFailed(err error) bool {
	return IsCode(err, CodeJobFailed)
}

// maxFrames bounds the frames kept per error.
const maxFrames = 10

// captureStack records up to maxFrames callers above skip, leaving out the
// runtime's own frames.
func captureStack(skip int) []Frame {
	var pcs [32]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	it := runtime.CallersFrames(pcs[:n])

	var frames []Frame
	for len(frames) < maxFrames {
		f, more := it.Next()
		if !strings.Contains(f.File, "runtime/") {
			frames = append(frames, Frame{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	return frames
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience wrapper for errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
