package store

import "fmt"

// InitializationError is raised when the schema cannot be established.
// The store is unusable afterward until re-initialized.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("%s: %v", e.UserMessage(), e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

func (e *InitializationError) UserMessage() string {
	return "the bookmark database could not be initialized"
}

// WriteError is raised when a write transaction fails. The triggering
// transaction is guaranteed to have been rolled back before the error is
// raised, so persisted state is never left partially updated.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %v", e.UserMessage(), e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) UserMessage() string {
	return "the bookmark database rejected the write; nothing was saved"
}

// ReadError is raised when a lookup fails for reasons other than absence
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: %v", e.UserMessage(), e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) UserMessage() string {
	return "the bookmark database could not be read"
}

// CloseError is raised when releasing the underlying connection fails
type CloseError struct {
	Err error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("%s: %v", e.UserMessage(), e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

func (e *CloseError) UserMessage() string {
	return "the bookmark database could not be closed cleanly"
}
