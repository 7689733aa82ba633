package main

import (
	"xbookmarks/pkg/session"
)

// registerDrivers binds the browser drivers available to this build.
// Driver bindings live behind the session.Driver interface so the
// automation backend stays swappable.
//
// TODO: bind a DevTools-protocol driver so attach works out of the box.
func registerDrivers(registry *session.Registry) {
}
