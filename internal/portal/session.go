package portal

import (
	"sync"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/registry"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const sessionIface = "org.freedesktop.impl.portal.Session"

// BusSession is the D-Bus-exported org.freedesktop.impl.portal.Session
// object backing a registry.Session. Close-from-either-side semantics
// (spec §1): the client's Close method and the core's peer-disconnect
// handling (PeerVanished) both funnel through destroy.
type BusSession struct {
	*registry.Session

	reg *registry.Registry

	mu           sync.Mutex
	closed       bool
	onDestroy    func(*registry.Session)
	peerVanished bool
}

// NewBusSession creates, registers and exports a new session.
func NewBusSession(reg *registry.Registry, bus *dbus.Conn, handle dbus.ObjectPath, iface registry.Interface, appID string, onDestroy func(*registry.Session)) (*BusSession, error) {
	s, err := reg.Create(handle, iface, appID, bus)
	if err != nil {
		return nil, err
	}
	bs := &BusSession{Session: s, reg: reg, onDestroy: onDestroy}

	if bus != nil {
		_ = bus.Export(bs, handle, sessionIface)
		_ = bus.Export(introspect.NewIntrospectable(&introspect.Node{
			Interfaces: []introspect.Interface{
				introspect.IntrospectData,
				{
					Name:    sessionIface,
					Methods: []introspect.Method{{Name: "Close"}},
					Signals: []introspect.Signal{{Name: "Closed"}},
				},
			},
		}), handle, "org.freedesktop.DBus.Introspectable")
	}
	return bs, nil
}

// Close implements org.freedesktop.impl.portal.Session.Close. Idempotent.
func (s *BusSession) Close() *dbus.Error {
	s.destroy(false)
	return nil
}

// PeerVanished tears the session down when the owning bus connection
// disappears (spec §3 "destroyed ... on bus peer disconnect").
func (s *BusSession) PeerVanished() {
	s.destroy(true)
}

func (s *BusSession) destroy(peerVanished bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.peerVanished = peerVanished
	s.mu.Unlock()

	if s.onDestroy != nil {
		s.onDestroy(s.Session)
	}
	s.reg.Destroy(s.Session)

	if s.Bus != nil {
		_ = s.Bus.Export(nil, s.Handle, sessionIface)
		_ = s.Bus.Emit(s.Handle, sessionIface+".Closed")
	}
	logger.Debugf("session: closed %s (peer_vanished=%v)", s.Handle, peerVanished)
}
