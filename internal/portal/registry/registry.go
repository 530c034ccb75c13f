// Package registry implements the Session Registry (spec §4.B): the
// single ordered collection of every live portal session, indexed by
// bus object path.
package registry

import (
	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/godbus/dbus/v5"
)

// Interface identifies which portal owns a session.
type Interface int

const (
	ScreenCast Interface = iota
	RemoteDesktop
	GlobalShortcuts
	InputCapture
)

// Payload is the interface-specific state a Session carries. Exactly one
// concrete payload type exists per Interface value (spec §3).
type Payload interface {
	// Close tears down the payload's resources. Called at most once;
	// Registry guarantees idempotence at the Session level.
	Close()
}

// Session is a portal-scoped conversation, identified by its bus object
// path (spec §3 "Session").
type Session struct {
	Handle    dbus.ObjectPath
	Interface Interface
	AppID     string
	Bus       *dbus.Conn

	refcount int
	payload  Payload
}

// Payload returns the session's attached payload, or nil if none has
// been attached yet (e.g. before ScreenCast.Start succeeds).
func (s *Session) Payload() Payload { return s.payload }

// SetPayload attaches the interface-specific payload. Only one payload
// may ever be attached to a Session (spec §3 invariant).
func (s *Session) SetPayload(p Payload) { s.payload = p }

// Registry owns every active portal session, keyed by handle, plus the
// insertion-ordered list used for broadcast iteration (spec §4.B).
type Registry struct {
	byHandle map[dbus.ObjectPath]*Session
	order    []*Session
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byHandle: make(map[dbus.ObjectPath]*Session)}
}

// Create registers a new Session under handle. Returns an error if the
// handle is already registered (spec §3 invariant: a handle appears at
// most once).
func (r *Registry) Create(handle dbus.ObjectPath, iface Interface, appID string, bus *dbus.Conn) (*Session, error) {
	if _, exists := r.byHandle[handle]; exists {
		return nil, &DuplicateHandleError{Handle: handle}
	}
	s := &Session{Handle: handle, Interface: iface, AppID: appID, Bus: bus}
	r.byHandle[handle] = s
	r.order = append(r.order, s)
	return s, nil
}

// Lookup returns the Session for handle, or (nil, false) if absent.
// A lookup miss is never fatal (spec §4.B) — callers report NotFound.
func (r *Registry) Lookup(handle dbus.ObjectPath) (*Session, bool) {
	s, ok := r.byHandle[handle]
	return s, ok
}

// Destroy removes s from the registry and calls its payload destructor.
// Idempotent: destroying an already-removed session is a no-op (spec §3,
// §8 "Session close is idempotent").
func (r *Registry) Destroy(s *Session) {
	if s == nil {
		return
	}
	if _, ok := r.byHandle[s.Handle]; !ok {
		return
	}
	delete(r.byHandle, s.Handle)
	for i, o := range r.order {
		if o == s {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if s.payload != nil {
		s.payload.Close()
		s.payload = nil
	}
	logger.Debugf("registry: destroyed session %s", s.Handle)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int { return len(r.order) }

// Broadcast iterates a point-in-time snapshot of the registry so that a
// callback which removes sessions mid-iteration (e.g. a Close triggered
// by the signal itself) cannot corrupt iteration (spec §3: "iteration
// must be safe against concurrent removal performed by callbacks fired
// during iteration").
func (r *Registry) Broadcast(fn func(*Session)) {
	snapshot := make([]*Session, len(r.order))
	copy(snapshot, r.order)
	for _, s := range snapshot {
		if _, live := r.byHandle[s.Handle]; !live {
			continue
		}
		fn(s)
	}
}

// ByInterface returns a snapshot of live sessions for a given interface.
func (r *Registry) ByInterface(iface Interface) []*Session {
	var out []*Session
	for _, s := range r.order {
		if s.Interface == iface {
			out = append(out, s)
		}
	}
	return out
}

// DuplicateHandleError reports an attempt to register a handle twice.
type DuplicateHandleError struct {
	Handle dbus.ObjectPath
}

func (e *DuplicateHandleError) Error() string {
	return "session handle already registered: " + string(e.Handle)
}
