// Package portal implements the D-Bus interface layer (spec §4.C): the
// Request/Session object model, per-portal vtables, and argument
// decoding shared by every hosted interface.
package portal

import (
	"sync"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// ResponseCode is the first element of a portal method's
// (response_code, options) reply tuple (spec §4.C.2).
type ResponseCode uint32

const (
	ResponseSuccess   ResponseCode = 0
	ResponseCancelled ResponseCode = 1
	ResponseEnded     ResponseCode = 2
)

const requestIface = "org.freedesktop.impl.portal.Request"

// Request is a short-lived bus object wrapping one in-flight portal
// method that may be cancelled by the client (spec §3 "Request").
type Request struct {
	Path dbus.ObjectPath
	Bus  *dbus.Conn

	mu        sync.Mutex
	closed    bool
	onClose   func()
	completed bool
}

// NewRequest materializes and exports a Request object at path.
func NewRequest(bus *dbus.Conn, path dbus.ObjectPath) *Request {
	r := &Request{Path: path, Bus: bus}
	if bus != nil {
		_ = bus.Export(r, path, requestIface)
		_ = bus.Export(introspect.NewIntrospectable(&introspect.Node{
			Interfaces: []introspect.Interface{
				introspect.IntrospectData,
				{Name: requestIface, Methods: []introspect.Method{{Name: "Close"}}},
			},
		}), path, "org.freedesktop.DBus.Introspectable")
	}
	return r
}

// OnClose registers a callback invoked the first time the client calls
// the Close method. Destroy marks the request closed without invoking it.
func (r *Request) OnClose(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = fn
}

// Close implements org.freedesktop.impl.portal.Request.Close. Idempotent
// (spec §8 "Request close is idempotent").
func (r *Request) Close() *dbus.Error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cb := r.onClose
	r.mu.Unlock()

	if cb != nil {
		cb()
	}
	if r.Bus != nil {
		_ = r.Bus.Export(nil, r.Path, requestIface)
	}
	logger.Debugf("request: closed %s", r.Path)
	return nil
}

// MarkCompleted records that the method handler replied; a subsequent
// client Close is then a pure no-op cleanup rather than a cancellation.
func (r *Request) MarkCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = true
}

// Cancelled reports whether the client closed the request before the
// handler completed (spec §5 "Cancellation").
func (r *Request) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed && !r.completed
}

// Destroy unexports and marks the request closed without invoking the
// close callback — used when session creation fails after the request
// was already registered (spec §4.C.3).
func (r *Request) Destroy() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	if r.Bus != nil {
		_ = r.Bus.Export(nil, r.Path, requestIface)
	}
}
