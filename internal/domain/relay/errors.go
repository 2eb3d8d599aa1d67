package relay

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

// ErrorKind classifies why an exchange failed.
type ErrorKind string

const (
	KindInvalidRequest  ErrorKind = "invalid_request"
	KindNotFound        ErrorKind = "not_found"
	KindUpstreamFailure ErrorKind = "upstream_failure"
	KindDeliveryFailure ErrorKind = "delivery_failure"
	KindInternal        ErrorKind = "internal"
)

// Kinds lists every ErrorKind.
var Kinds = []ErrorKind{
	KindInvalidRequest,
	KindNotFound,
	KindUpstreamFailure,
	KindDeliveryFailure,
	KindInternal,
}

// ErrDeliveryFailed is returned by a Sender when a frame cannot reach its connection.
var ErrDeliveryFailed = errors.New("frame delivery failed")

// Error is the tagged failure of one exchange.
type Error struct {
	Kind    ErrorKind
	State   State
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s in %s: %s: %v", e.Kind, e.State, e.Message, e.Err)
	}
	return fmt.Sprintf("%s in %s: %s", e.Kind, e.State, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a tagged exchange error.
func NewError(kind ErrorKind, state State, message string, err error) *Error {
	return &Error{Kind: kind, State: state, Message: message, Err: err}
}

// KindOf extracts the ErrorKind of err, defaulting to KindInternal.
func KindOf(err error) ErrorKind {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return KindInternal
}

// Status maps the kind to the status recorded for the exchange.
func (k ErrorKind) Status() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstreamFailure:
		return http.StatusBadGateway
	case KindDeliveryFailure:
		return http.StatusGone
	case KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// PlatformType maps the kind onto the platform error taxonomy.
func (k ErrorKind) PlatformType() platformerrors.ErrorType {
	switch k {
	case KindInvalidRequest:
		return platformerrors.ErrorTypeValidation
	case KindNotFound:
		return platformerrors.ErrorTypeNotFound
	case KindUpstreamFailure:
		return platformerrors.ErrorTypeExternal
	case KindDeliveryFailure:
		return platformerrors.ErrorTypeGone
	case KindInternal:
		return platformerrors.ErrorTypeInternal
	}
	return platformerrors.ErrorTypeInternal
}

// EmitsFrame reports whether a failure of this kind is surfaced to the client.
// Delivery failures are logged only: the client is already unreachable.
func (k ErrorKind) EmitsFrame() bool {
	switch k {
	case KindInvalidRequest, KindNotFound, KindUpstreamFailure, KindInternal:
		return true
	case KindDeliveryFailure:
		return false
	}
	return true
}

// FrameFor renders the error frame a client receives for err.
func FrameFor(err error) Frame {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		switch relayErr.Kind {
		case KindInvalidRequest, KindNotFound, KindUpstreamFailure:
			return ErrorFrame(relayErr.Message)
		case KindDeliveryFailure, KindInternal:
			return ErrorFrame(defaultFailureMessage)
		}
	}
	return ErrorFrame(defaultFailureMessage)
}

const defaultFailureMessage = "Failed to process message"
