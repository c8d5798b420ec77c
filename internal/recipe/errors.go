package recipe

import (
	"errors"
	"fmt"
)

// Kind classifies failures that cross the handler boundary.
type Kind string

const (
	KindUnauthenticated    Kind = "Unauthenticated"
	KindQuotaExceeded      Kind = "QuotaExceeded"
	KindInvalidInput       Kind = "InvalidInput"
	KindNotFound           Kind = "NotFound"
	KindUpstream           Kind = "UpstreamError"
	KindUpstreamParse      Kind = "UpstreamParseError"
	KindPersistenceWarning Kind = "PersistenceWarning"
	KindConfiguration      Kind = "ConfigurationError"
	KindInternal           Kind = "Internal"
)

var (
	// ErrEmptyCompletion is returned by model clients when a successful
	// response carries no usable text.
	ErrEmptyCompletion = errors.New("model response contained no text")
	// ErrNotFound is returned by the store when a recipe does not exist
	// for the caller.
	ErrNotFound = errors.New("recipe not found")
)

// StatusError reports a non-success HTTP status from the model endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("model endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("model endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Error is a classified failure with a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Invalid builds an InvalidInput error.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
