package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures so transports can map them onto responses.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindUpstream      Kind = "upstream"
	KindInternal      Kind = "internal"
)

// Error is a classified failure. Op names the operation that failed; Message is
// safe to show to API callers.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first classified error in err's chain, or
// KindInternal for anything unclassified.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindInternal
}

// PublicMessage returns the caller-safe message carried by err. Internal
// failures never expose their details.
func PublicMessage(err error) string {
	var classified *Error
	if errors.As(err, &classified) && classified.Kind != KindInternal && classified.Message != "" {
		return classified.Message
	}
	return "Internal server error"
}

func ConfigurationError(op, message string) error {
	return &Error{Kind: KindConfiguration, Op: op, Message: message}
}

func ValidationError(op, message string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Message: message, Err: err}
}

func NotFoundError(op, message string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

func UpstreamError(op string, err error) error {
	return &Error{Kind: KindUpstream, Op: op, Message: "Upstream service error", Err: err}
}

func InternalError(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}
