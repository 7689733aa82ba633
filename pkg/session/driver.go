package session

import (
	"context"
	"net/url"
	"sort"
	"sync"
)

// Driver launches driven browser sessions. Implementations adapt a
// browser-automation backend (chromium, firefox, a test fake) and are
// registered by name in a Registry.
type Driver interface {
	Launch(ctx context.Context) (BrowserSession, error)
}

// BrowserSession is one browser instance under programmatic control
type BrowserSession interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is one browser page under programmatic control. WaitForRequest
// and WaitForResponse block until the first in-flight exchange whose URL
// contains the given pattern, or until ctx is done.
type Page interface {
	Goto(ctx context.Context, url string) error
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	WaitForRequest(ctx context.Context, urlPattern string) (CapturedRequest, error)
	WaitForResponse(ctx context.Context, urlPattern string) (CapturedResponse, error)
	URL() string
}

// CapturedRequest is an intercepted outgoing request
type CapturedRequest interface {
	Method() string
	URL() string
	Headers() map[string]string
	Query() url.Values
}

// CapturedResponse is an intercepted response
type CapturedResponse interface {
	Status() int
	Body() ([]byte, error)
}

// Registry resolves driver names to drivers. It is injected into the
// state machine rather than shared as process-wide state.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry creates an empty driver registry
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register adds or replaces the driver under the given name
func (r *Registry) Register(name string, driver Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = driver
}

// Resolve returns the driver registered under name
func (r *Registry) Resolve(name string) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	driver, ok := r.drivers[name]
	return driver, ok
}

// Names returns the registered driver names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
