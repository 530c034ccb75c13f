// Package bus owns the session-bus connection and well-known service
// name acquisition shared by every hosted portal interface (spec §6
// "connects to the session bus and acquires the well-known service
// name org.freedesktop.impl.portal.desktop.wlr").
package bus

import (
	"fmt"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/godbus/dbus/v5"
)

const (
	serviceName = "org.freedesktop.impl.portal.desktop.wlr"
	// DesktopPath is the single object path hosting every portal
	// interface (spec §6 "Object path /org/freedesktop/portal/desktop
	// hosts one interface per portal").
	DesktopPath = dbus.ObjectPath("/org/freedesktop/portal/desktop")
)

// Connect dials the session bus, requests the well-known service name,
// and wires peer-disconnect notifications through onNameOwnerChanged,
// which receives the vanished peer's unique name.
func Connect(onNameOwnerChanged func(name string)) (*dbus.Conn, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("bus: connect session bus: %w", err)
	}

	reply, err := conn.RequestName(serviceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: request name %s: %w", serviceName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus: name %s already owned", serviceName)
	}

	if onNameOwnerChanged != nil {
		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface("org.freedesktop.DBus"),
			dbus.WithMatchMember("NameOwnerChanged"),
		); err != nil {
			logger.Warnf("bus: subscribe to NameOwnerChanged: %v", err)
		}
		ch := make(chan *dbus.Signal, 16)
		conn.Signal(ch)
		go func() {
			for sig := range ch {
				if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" {
					continue
				}
				if len(sig.Body) < 1 {
					continue
				}
				if name, ok := sig.Body[0].(string); ok {
					onNameOwnerChanged(name)
				}
			}
		}()
	}

	logger.Infof("bus: acquired name %s", serviceName)
	return conn, nil
}
