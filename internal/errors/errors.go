package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code uint32

const (
	// CodeRequestFailed covers REST transport failures: network errors and non-2xx responses.
	CodeRequestFailed Code = iota + 1
	// CodeTransportUnavailable is returned when a send is attempted with no live connection.
	CodeTransportUnavailable
	// CodeMalformedEnvelope marks an unparsable incoming frame.
	CodeMalformedEnvelope
	// CodeInvalidOperation marks a verb rejected by a local precondition,
	// e.g. submitting an answer with no active question.
	CodeInvalidOperation
	CodeNotFound
	CodeAlreadyExists
	CodeUnauthenticated
	CodeInternal
)

var code2str = map[Code]string{
	CodeRequestFailed:        "RequestFailed",
	CodeTransportUnavailable: "TransportUnavailable",
	CodeMalformedEnvelope:    "MalformedEnvelope",
	CodeInvalidOperation:     "InvalidOperation",
	CodeNotFound:             "NotFound",
	CodeAlreadyExists:        "AlreadyExists",
	CodeUnauthenticated:      "Unauthenticated",
	CodeInternal:             "Internal",
}

func (c Code) String() string {
	if s, ok := code2str[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

var status2code = map[int]Code{
	http.StatusNotFound:     CodeNotFound,
	http.StatusConflict:     CodeAlreadyExists,
	http.StatusUnauthorized: CodeUnauthenticated,
}

// FromHTTPStatus maps a non-2xx response status to an error code.
// Statuses without a dedicated code collapse into CodeRequestFailed.
func FromHTTPStatus(status int) Code {
	if c, ok := status2code[status]; ok {
		return c
	}
	return CodeRequestFailed
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: code.String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Convert normalizes any error into an *Error, wrapping unknown errors as CodeInternal.
func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Code == code
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
