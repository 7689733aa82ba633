package errors

import "fmt"

// ErrorType classifies errors by who can act on them
type ErrorType string

const (
	// ErrorTypeInternal marks precondition violations: an operation was
	// invoked before the state it requires was established.
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeUser marks failures attributable to user input (wrong
	// credentials, wrong step-up code, unknown driver name).
	ErrorTypeUser ErrorType = "user"
	// ErrorTypeUpstream marks shape violations in upstream responses.
	ErrorTypeUpstream ErrorType = "upstream"
	// ErrorTypeStorage marks persistence failures.
	ErrorTypeStorage ErrorType = "storage"
)

// Error carries a classification, a user-facing message and the underlying cause
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Internal creates a precondition violation error
func Internal(message string) *Error {
	return &Error{Type: ErrorTypeInternal, Message: message}
}

// User creates a user-attributable error
func User(message string) *Error {
	return &Error{Type: ErrorTypeUser, Message: message}
}

// Upstream creates an upstream-shape error wrapping its cause
func Upstream(message string, err error) *Error {
	return &Error{Type: ErrorTypeUpstream, Message: message, Err: err}
}

// Storage creates a persistence error wrapping its cause
func Storage(message string, err error) *Error {
	return &Error{Type: ErrorTypeStorage, Message: message, Err: err}
}

// TypeOf returns the classification of err, or ErrorTypeInternal for
// untyped errors
func TypeOf(err error) ErrorType {
	if e, ok := err.(*Error); ok {
		return e.Type
	}
	return ErrorTypeInternal
}

// IsRecoverable reports whether resubmitting the same operation can succeed.
// User errors are recoverable by prompting again; the rest are not.
func IsRecoverable(err error) bool {
	return TypeOf(err) == ErrorTypeUser
}
