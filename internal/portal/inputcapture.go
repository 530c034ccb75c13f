package portal

import (
	"github.com/bnema/xdg-desktop-portal-wlr/internal/inputcapture"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/perror"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/registry"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/waylandres"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const inputCaptureIface = "org.freedesktop.impl.portal.InputCapture"

// barrierArg is the wire shape of one SetPointerBarriers dictionary
// entry.
type barrierArg struct {
	ID             uint32
	X1, Y1, X2, Y2 int32
}

// InputCapture implements org.freedesktop.impl.portal.InputCapture
// (spec §4.C "InputCapture").
type InputCapture struct {
	bus   *dbus.Conn
	Reg   *registry.Registry
	Mgr   *inputcapture.Manager
	Wlres *waylandres.Manager
}

// NewInputCapture builds the vtable bound to bus/reg/mgr.
func NewInputCapture(bus *dbus.Conn, reg *registry.Registry, mgr *inputcapture.Manager, wlres *waylandres.Manager) *InputCapture {
	return &InputCapture{bus: bus, Reg: reg, Mgr: mgr, Wlres: wlres}
}

// Export publishes the InputCapture interface at path.
func (ic *InputCapture) Export(path dbus.ObjectPath) error {
	if err := ic.bus.Export(ic, path, inputCaptureIface); err != nil {
		return err
	}
	return ic.bus.Export(introspect.NewIntrospectable(&introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: inputCaptureIface,
				Methods: []introspect.Method{
					{Name: "CreateSession"}, {Name: "GetZones"}, {Name: "SetPointerBarriers"},
					{Name: "Enable"}, {Name: "Disable"}, {Name: "Release"}, {Name: "ConnectToEIS"},
				},
				Signals: []introspect.Signal{
					{Name: "Activated"}, {Name: "Deactivated"}, {Name: "Disabled"}, {Name: "ZonesChanged"},
				},
			},
		},
	}), path, "org.freedesktop.DBus.Introspectable")
}

// CreateSession implements InputCapture.CreateSession (spec §4.C
// "CreateSession (negotiated capability mask)").
func (ic *InputCapture) CreateSession(handle, sessionHandle dbus.ObjectPath, appID string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	known := map[string]bool{"capabilities": true}
	drainOptions(options, known)

	req := NewRequest(ic.bus, handle)
	requested, _ := optUint32(options, "capabilities")

	icSess, err := ic.Mgr.CreateSession(sessionHandle, appID, inputcapture.Capability(requested))
	if err != nil {
		req.Destroy()
		return 0, nil, perror.ToDBusError(err)
	}

	bsess, err := NewBusSession(ic.Reg, ic.bus, sessionHandle, registry.InputCapture, appID, func(*registry.Session) {
		ic.Mgr.DestroySession(icSess)
	})
	if err != nil {
		req.Destroy()
		return 0, nil, perror.ToDBusError(err)
	}
	bsess.SetPayload(icSess)

	icSess.OnActivated(func(activationID uint64, x, y float64, barrierID uint32) {
		_ = ic.bus.Emit(sessionHandle, inputCaptureIface+".Activated", sessionHandle, activationID, map[string]dbus.Variant{
			"cursor_position": dbus.MakeVariant([2]float64{x, y}),
			"barrier_id":      dbus.MakeVariant(barrierID),
		})
	})
	icSess.OnDeactivated(func(activationID uint64, x, y float64) {
		_ = ic.bus.Emit(sessionHandle, inputCaptureIface+".Deactivated", sessionHandle, activationID, map[string]dbus.Variant{
			"cursor_position": dbus.MakeVariant([2]float64{x, y}),
		})
	})
	icSess.OnDisabled(func() {
		_ = ic.bus.Emit(sessionHandle, inputCaptureIface+".Disabled", sessionHandle, map[string]dbus.Variant{})
	})
	icSess.OnZonesChanged(func() {
		zones, zoneSetID := ic.Mgr.GetZones(icSess)
		_ = ic.bus.Emit(sessionHandle, inputCaptureIface+".ZonesChanged", sessionHandle, zonesToWire(zones), zoneSetID)
	})

	req.MarkCompleted()
	return uint32(ResponseSuccess), map[string]dbus.Variant{
		"capabilities": dbus.MakeVariant(uint32(icSess.Capability())),
	}, nil
}

func (ic *InputCapture) lookup(sessionHandle dbus.ObjectPath) (*inputcapture.Session, *dbus.Error) {
	sess, ok := ic.Reg.Lookup(sessionHandle)
	if !ok {
		return nil, perror.ToDBusError(perror.New(perror.KindNotFound, "unknown input-capture session"))
	}
	icSess, ok := sess.Payload().(*inputcapture.Session)
	if !ok {
		return nil, perror.ToDBusError(perror.New(perror.KindInvalidArgs, "input-capture session missing payload"))
	}
	return icSess, nil
}

func zonesToWire(zones []inputcapture.Zone) []struct{ X, Y, Width, Height int32 } {
	out := make([]struct{ X, Y, Width, Height int32 }, 0, len(zones))
	for _, z := range zones {
		out = append(out, struct{ X, Y, Width, Height int32 }{z.X, z.Y, z.Width, z.Height})
	}
	return out
}

// GetZones implements InputCapture.GetZones.
func (ic *InputCapture) GetZones(handle, sessionHandle dbus.ObjectPath, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	drainOptions(options, nil)
	req := NewRequest(ic.bus, handle)
	icSess, derr := ic.lookup(sessionHandle)
	if derr != nil {
		req.MarkCompleted()
		return 0, nil, derr
	}
	zones, zoneSetID := ic.Mgr.GetZones(icSess)
	req.MarkCompleted()
	return uint32(ResponseSuccess), map[string]dbus.Variant{
		"zones":    dbus.MakeVariant(zonesToWire(zones)),
		"zone_set": dbus.MakeVariant(zoneSetID),
	}, nil
}

// SetPointerBarriers implements InputCapture.SetPointerBarriers (spec
// §4.C "SetPointerBarriers: any state").
func (ic *InputCapture) SetPointerBarriers(handle, sessionHandle dbus.ObjectPath, options map[string]dbus.Variant, barriers []barrierArg, zoneSetID uint32) (uint32, map[string]dbus.Variant, *dbus.Error) {
	drainOptions(options, nil)
	req := NewRequest(ic.bus, handle)
	icSess, derr := ic.lookup(sessionHandle)
	if derr != nil {
		req.MarkCompleted()
		return 0, nil, derr
	}

	var domain []inputcapture.Barrier
	for _, b := range barriers {
		domain = append(domain, inputcapture.Barrier{ID: b.ID, X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2})
	}

	_, failed, err := ic.Mgr.SetPointerBarriers(icSess, zoneSetID, domain)
	if err != nil {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(err)
	}

	req.MarkCompleted()
	return uint32(ResponseSuccess), map[string]dbus.Variant{
		"failed_barriers": dbus.MakeVariant(failed),
	}, nil
}

// Enable implements InputCapture.Enable.
func (ic *InputCapture) Enable(sessionHandle dbus.ObjectPath) *dbus.Error {
	icSess, derr := ic.lookup(sessionHandle)
	if derr != nil {
		return derr
	}
	return perror.ToDBusError(ic.Mgr.Enable(icSess, ic.Wlres.FirstSeat()))
}

// Disable implements InputCapture.Disable.
func (ic *InputCapture) Disable(sessionHandle dbus.ObjectPath) *dbus.Error {
	icSess, derr := ic.lookup(sessionHandle)
	if derr != nil {
		return derr
	}
	return perror.ToDBusError(ic.Mgr.Disable(icSess))
}

// Release implements InputCapture.Release (spec §4.C "Release (with
// activation_id and optional cursor_position (dd))").
func (ic *InputCapture) Release(sessionHandle dbus.ObjectPath, options map[string]dbus.Variant, activationID uint64) *dbus.Error {
	known := map[string]bool{"cursor_position": true}
	drainOptions(options, known)
	icSess, derr := ic.lookup(sessionHandle)
	if derr != nil {
		return derr
	}
	var x, y *float64
	if v, ok := options["cursor_position"]; ok {
		if pos, ok := v.Value().([2]float64); ok {
			x, y = &pos[0], &pos[1]
		}
	}
	return perror.ToDBusError(ic.Mgr.Release(icSess, x, y))
}

// ConnectToEIS implements InputCapture.ConnectToEIS (spec §4.C
// "ConnectToEIS (returns an fd handle)").
func (ic *InputCapture) ConnectToEIS(sessionHandle dbus.ObjectPath, options map[string]dbus.Variant) (dbus.UnixFD, *dbus.Error) {
	drainOptions(options, nil)
	icSess, derr := ic.lookup(sessionHandle)
	if derr != nil {
		return 0, derr
	}
	fd, err := ic.Mgr.ConnectToEIS(icSess)
	if err != nil {
		return 0, perror.ToDBusError(err)
	}
	return dbus.UnixFD(fd), nil
}
