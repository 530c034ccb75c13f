package portal

import (
	"context"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/perror"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/registry"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/remotedesktop"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const remoteDesktopIface = "org.freedesktop.impl.portal.RemoteDesktop"

// rdPending is set by SelectDevices and consumed by Start; it is
// a pre-payload stand-in since the real remotedesktop.Session is only
// created once Start negotiates the final device mask.
type rdPending struct {
	devices remotedesktop.DeviceType
}

func (rdPending) Close() {}

// RemoteDesktop implements org.freedesktop.impl.portal.RemoteDesktop
// (spec §4.C "RemoteDesktop").
type RemoteDesktop struct {
	Ctx context.Context
	bus *dbus.Conn
	Reg *registry.Registry
}

// NewRemoteDesktop builds the vtable bound to bus/reg.
func NewRemoteDesktop(bus *dbus.Conn, reg *registry.Registry) *RemoteDesktop {
	return &RemoteDesktop{Ctx: context.Background(), bus: bus, Reg: reg}
}

// Export publishes the RemoteDesktop interface at path.
func (rd *RemoteDesktop) Export(path dbus.ObjectPath) error {
	if err := rd.bus.Export(rd, path, remoteDesktopIface); err != nil {
		return err
	}
	return rd.bus.Export(introspect.NewIntrospectable(&introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: remoteDesktopIface,
				Methods: []introspect.Method{
					{Name: "CreateSession"}, {Name: "SelectDevices"}, {Name: "Start"},
					{Name: "NotifyPointerMotion"}, {Name: "NotifyPointerMotionAbsolute"},
					{Name: "NotifyPointerButton"}, {Name: "NotifyPointerAxis"},
					{Name: "NotifyPointerAxisDiscrete"}, {Name: "NotifyKeyboardKeycode"},
					{Name: "NotifyKeyboardModifiers"}, {Name: "NotifyTouchDown"},
					{Name: "NotifyTouchMotion"}, {Name: "NotifyTouchUp"},
				},
			},
		},
	}), path, "org.freedesktop.DBus.Introspectable")
}

// CreateSession implements RemoteDesktop.CreateSession.
func (rd *RemoteDesktop) CreateSession(handle, sessionHandle dbus.ObjectPath, appID string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	drainOptions(options, nil)
	req := NewRequest(rd.bus, handle)
	_, err := NewBusSession(rd.Reg, rd.bus, sessionHandle, registry.RemoteDesktop, appID, nil)
	if err != nil {
		req.Destroy()
		return 0, nil, perror.ToDBusError(err)
	}
	req.MarkCompleted()
	return uint32(ResponseSuccess), map[string]dbus.Variant{}, nil
}

// SelectDevices implements RemoteDesktop.SelectDevices (spec §4.C
// "opt types: u ∈ {Keyboard=1, Pointer=2, Touch=4}").
func (rd *RemoteDesktop) SelectDevices(handle, sessionHandle dbus.ObjectPath, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	drainOptions(options, map[string]bool{"types": true})
	req := NewRequest(rd.bus, handle)
	sess, ok := rd.Reg.Lookup(sessionHandle)
	if !ok {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.New(perror.KindNotFound, "unknown remote-desktop session"))
	}
	types, _ := optUint32(options, "types")
	sess.SetPayload(rdPending{devices: remotedesktop.DeviceType(types)})
	req.MarkCompleted()
	return uint32(ResponseSuccess), map[string]dbus.Variant{}, nil
}

// Start implements RemoteDesktop.Start, allocating the virtual-input
// session and returning the negotiated device mask (spec §4.C "Start
// returns devices: u").
func (rd *RemoteDesktop) Start(handle, sessionHandle dbus.ObjectPath, parentWindow string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	drainOptions(options, nil)
	req := NewRequest(rd.bus, handle)
	sess, ok := rd.Reg.Lookup(sessionHandle)
	if !ok {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.New(perror.KindNotFound, "unknown remote-desktop session"))
	}
	pending, _ := sess.Payload().(rdPending)

	rdSess, err := remotedesktop.NewSession(rd.Ctx, pending.devices)
	if err != nil {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.Wrap(perror.KindNotSupported, "start remote-desktop session", err))
	}
	sess.SetPayload(rdSess)

	req.MarkCompleted()
	return uint32(ResponseSuccess), map[string]dbus.Variant{
		"devices": dbus.MakeVariant(uint32(rdSess.Devices())),
	}, nil
}

func (rd *RemoteDesktop) session(sessionHandle dbus.ObjectPath) (*remotedesktop.Session, *dbus.Error) {
	sess, ok := rd.Reg.Lookup(sessionHandle)
	if !ok {
		return nil, perror.ToDBusError(perror.New(perror.KindNotFound, "unknown remote-desktop session"))
	}
	rdSess, ok := sess.Payload().(*remotedesktop.Session)
	if !ok {
		return nil, perror.ToDBusError(perror.New(perror.KindInvalidArgs, "remote-desktop session not started"))
	}
	return rdSess, nil
}

// NotifyPointerMotion implements RemoteDesktop.NotifyPointerMotion.
func (rd *RemoteDesktop) NotifyPointerMotion(sessionHandle dbus.ObjectPath, options map[string]dbus.Variant, dx, dy float64) *dbus.Error {
	drainOptions(options, nil)
	sess, derr := rd.session(sessionHandle)
	if derr != nil {
		return derr
	}
	return perror.ToDBusError(sess.NotifyPointerMotion(dx, dy))
}

// NotifyPointerMotionAbsolute implements
// RemoteDesktop.NotifyPointerMotionAbsolute.
func (rd *RemoteDesktop) NotifyPointerMotionAbsolute(sessionHandle dbus.ObjectPath, options map[string]dbus.Variant, x, y uint32) *dbus.Error {
	drainOptions(options, nil)
	sess, derr := rd.session(sessionHandle)
	if derr != nil {
		return derr
	}
	w, _ := optUint32(options, "width")
	h, _ := optUint32(options, "height")
	return perror.ToDBusError(sess.NotifyPointerMotionAbsolute(x, y, w, h))
}

// NotifyPointerButton implements RemoteDesktop.NotifyPointerButton.
func (rd *RemoteDesktop) NotifyPointerButton(sessionHandle dbus.ObjectPath, options map[string]dbus.Variant, button uint32, state uint32) *dbus.Error {
	drainOptions(options, nil)
	sess, derr := rd.session(sessionHandle)
	if derr != nil {
		return derr
	}
	return perror.ToDBusError(sess.NotifyPointerButton(button, state != 0))
}

// NotifyPointerAxis implements RemoteDesktop.NotifyPointerAxis (spec
// §4.C "carries a dictionary of options, notably finish: b on axis").
func (rd *RemoteDesktop) NotifyPointerAxis(sessionHandle dbus.ObjectPath, options map[string]dbus.Variant, dx, dy float64) *dbus.Error {
	finish, _ := optBool(options, "finish")
	drainOptions(options, map[string]bool{"finish": true})
	sess, derr := rd.session(sessionHandle)
	if derr != nil {
		return derr
	}
	if err := sess.NotifyPointerAxis(remotedesktop.AxisHorizontal, dx, finish); err != nil {
		return perror.ToDBusError(err)
	}
	return perror.ToDBusError(sess.NotifyPointerAxis(remotedesktop.AxisVertical, dy, finish))
}

// NotifyPointerAxisDiscrete implements
// RemoteDesktop.NotifyPointerAxisDiscrete.
func (rd *RemoteDesktop) NotifyPointerAxisDiscrete(sessionHandle dbus.ObjectPath, axis uint32, steps int32) *dbus.Error {
	sess, derr := rd.session(sessionHandle)
	if derr != nil {
		return derr
	}
	dir := remotedesktop.AxisVertical
	if axis == 1 {
		dir = remotedesktop.AxisHorizontal
	}
	return perror.ToDBusError(sess.NotifyPointerAxisDiscrete(dir, steps))
}

// NotifyKeyboardKeycode implements RemoteDesktop.NotifyKeyboardKeycode.
func (rd *RemoteDesktop) NotifyKeyboardKeycode(sessionHandle dbus.ObjectPath, options map[string]dbus.Variant, keycode int32, state uint32) *dbus.Error {
	drainOptions(options, nil)
	sess, derr := rd.session(sessionHandle)
	if derr != nil {
		return derr
	}
	return perror.ToDBusError(sess.NotifyKeyboardKeycode(uint32(keycode), state != 0))
}

// NotifyKeyboardModifiers implements RemoteDesktop.NotifyKeyboardModifiers.
func (rd *RemoteDesktop) NotifyKeyboardModifiers(sessionHandle dbus.ObjectPath, depressed, latched, locked, group uint32) *dbus.Error {
	sess, derr := rd.session(sessionHandle)
	if derr != nil {
		return derr
	}
	return perror.ToDBusError(sess.NotifyKeyboardModifiers(depressed, latched, locked, group))
}

// NotifyTouchDown implements RemoteDesktop.NotifyTouchDown.
func (rd *RemoteDesktop) NotifyTouchDown(sessionHandle dbus.ObjectPath, options map[string]dbus.Variant, slot uint32, x, y float64) *dbus.Error {
	drainOptions(options, nil)
	sess, derr := rd.session(sessionHandle)
	if derr != nil {
		return derr
	}
	return perror.ToDBusError(sess.NotifyTouchDown(slot, x, y))
}

// NotifyTouchMotion implements RemoteDesktop.NotifyTouchMotion.
func (rd *RemoteDesktop) NotifyTouchMotion(sessionHandle dbus.ObjectPath, options map[string]dbus.Variant, slot uint32, x, y float64) *dbus.Error {
	drainOptions(options, nil)
	sess, derr := rd.session(sessionHandle)
	if derr != nil {
		return derr
	}
	return perror.ToDBusError(sess.NotifyTouchMotion(slot, x, y))
}

// NotifyTouchUp implements RemoteDesktop.NotifyTouchUp.
func (rd *RemoteDesktop) NotifyTouchUp(sessionHandle dbus.ObjectPath, options map[string]dbus.Variant, slot uint32) *dbus.Error {
	drainOptions(options, nil)
	sess, derr := rd.session(sessionHandle)
	if derr != nil {
		return derr
	}
	return perror.ToDBusError(sess.NotifyTouchUp(slot))
}
