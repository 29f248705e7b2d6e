package consumer

import "fmt"

// Kind identifies one of the taxonomy outcomes a Read Task or Manager
// Facade call can terminate with. IteratorTimeout and CallbackThrew are
// deliberately absent: both are recovered internally (as backoff and as a
// logged swallow, respectively) and never surface as a consumer.Error.
type Kind string

const (
	NotFound          Kind = "not_found"
	AlreadySubscribed Kind = "already_subscribed"
	AlreadyExists     Kind = "already_exists"
	InvalidArgument   Kind = "invalid_argument"
	BrokerInitFailure Kind = "broker_init_failure"
	BrokerIOFailure   Kind = "broker_io_failure"
	ShuttingDown      Kind = "shutting_down"
)

// Error is the taxonomy carrier every error this package returns is, or
// wraps. Cause may be nil for kinds that are not wrapping an underlying
// broker/transport failure (NotFound, AlreadySubscribed, AlreadyExists,
// ShuttingDown). InvalidArgument always wraps the rejected value's
// underlying error (e.g. format.ErrUnsupportedFormat) as Cause.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether e is non-nil and of the given kind. It compares e's
// own Kind only; it does not unwrap, and errors.Is does not call it. Use
// AsError first to reach a wrapped *Error.
func (e *Error) Is(kind Kind) bool {
	return e != nil && e.Kind == kind
}

// NewError constructs a taxonomy error of kind wrapping cause.
func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// AsError reports whether err is (or wraps) a *Error, returning it if so.
func AsError(err error) (*Error, bool) {
	var e *Error
	if err == nil {
		return nil, false
	}
	if ce, ok := err.(*Error); ok {
		return ce, true
	}
	if u, ok := err.(interface{ Unwrap() error }); ok {
		return AsError(u.Unwrap())
	}
	return e, false
}
