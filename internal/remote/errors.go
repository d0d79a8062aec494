package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuthentication
	KindValidation
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is the single error type that crosses the gateway boundary. Raw
// transport errors never escape unmapped.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// StatusError is raised by the HTTP client for non-2xx responses, before
// mapping into the closed taxonomy.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d %s", e.Code, e.Status)
}

// MapError classifies an arbitrary failure into exactly one Kind.
func MapError(err error) *Error {
	if err == nil {
		return nil
	}

	var mapped *Error
	if errors.As(err, &mapped) {
		return mapped
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == 401 || statusErr.Code == 403:
			return &Error{Kind: KindAuthentication, Message: statusErr.Error(), Cause: err}
		case statusErr.Code == 400 || statusErr.Code == 422:
			return &Error{Kind: KindValidation, Message: statusErr.Error(), Cause: err}
		case statusErr.Code >= 500:
			return &Error{Kind: KindServer, Message: statusErr.Error(), Cause: err}
		}
		return &Error{Kind: KindUnknown, Message: statusErr.Error(), Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Kind: KindNetwork, Message: netErr.Error(), Cause: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &Error{Kind: KindNetwork, Message: urlErr.Error(), Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Message: "request timed out", Cause: err}
	}

	return &Error{Kind: KindUnknown, Message: err.Error(), Cause: err}
}

// WithErrorMapping runs op and guarantees any failure comes back mapped.
func WithErrorMapping(op func() error) error {
	if err := op(); err != nil {
		return MapError(err)
	}
	return nil
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func IsValidation(err error) bool {
	return IsKind(err, KindValidation)
}
