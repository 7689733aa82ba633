// Package events carries the lifecycle signals the session state machine
// emits. Signals are categorical rather than state-machine-internal: a
// presentation layer subscribes and decides how to show them, the core
// never blocks on presentation.
package events

import "sync"

// Kind classifies a lifecycle signal
type Kind string

const (
	// KindActionRequired asks the user to complete a step-up challenge
	KindActionRequired Kind = "action_required"
	// KindInternalError reports a precondition/programmer violation
	KindInternalError Kind = "internal_error"
	// KindUserError reports a failure attributable to user input
	KindUserError Kind = "user_error"
	// KindSuccess reports that an operation completed
	KindSuccess Kind = "success"
)

// Signal is one emitted lifecycle event
type Signal struct {
	Kind    Kind
	Message string
}

// Emitter fans signals out to subscribed handlers. Handlers run
// synchronously in subscription order on the emitting goroutine.
type Emitter struct {
	mu       sync.Mutex
	handlers []func(Signal)
}

// NewEmitter creates an emitter with no subscribers
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a handler for all future signals
func (e *Emitter) Subscribe(handler func(Signal)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

func (e *Emitter) emit(s Signal) {
	e.mu.Lock()
	handlers := make([]func(Signal), len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	for _, h := range handlers {
		h(s)
	}
}

// ActionRequired signals that the user must complete a challenge
func (e *Emitter) ActionRequired(message string) {
	e.emit(Signal{Kind: KindActionRequired, Message: message})
}

// InternalError signals a precondition violation
func (e *Emitter) InternalError(message string) {
	e.emit(Signal{Kind: KindInternalError, Message: message})
}

// UserError signals a user-attributable failure
func (e *Emitter) UserError(message string) {
	e.emit(Signal{Kind: KindUserError, Message: message})
}

// Success signals that an operation completed
func (e *Emitter) Success() {
	e.emit(Signal{Kind: KindSuccess})
}
