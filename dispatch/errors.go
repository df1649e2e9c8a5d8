package dispatch

import "fmt"

// Kind classifies a dispatch failure. Every kind maps to a generic,
// category-appropriate response message; full detail leaves the
// process only when the debug flag is set.
type Kind int

const (
	// KindValidation covers malformed requests, unknown actions and
	// handlers that do not implement the data provider contract.
	KindValidation Kind = iota

	// KindAuthentication covers missing principals and failed security
	// token checks.
	KindAuthentication

	// KindAuthorization covers principals lacking a required
	// capability.
	KindAuthorization

	// KindExecution covers failures during query assembly or
	// execution, and recovered handler panics.
	KindExecution
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// publicMessage is what callers see when debug detail is disabled.
func (k Kind) publicMessage() string {
	switch k {
	case KindValidation:
		return "Invalid request."
	case KindAuthentication:
		return "Authentication required."
	case KindAuthorization:
		return "You are not allowed to perform this action."
	case KindExecution:
		return "The request could not be completed."
	default:
		return "The request could not be completed."
	}
}

// Error is the dispatcher's typed failure. It is always caught at the
// dispatcher boundary and converted into the uniform failure envelope;
// it never escapes to crash the hosting process.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a typed dispatch error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a typed dispatch error around a cause.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
