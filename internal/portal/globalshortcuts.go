package portal

import (
	"github.com/bnema/xdg-desktop-portal-wlr/internal/globalshortcuts"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/perror"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/registry"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const globalShortcutsIface = "org.freedesktop.impl.portal.GlobalShortcuts"

// GlobalShortcuts implements org.freedesktop.impl.portal.GlobalShortcuts
// (spec §4.C "GlobalShortcuts").
type GlobalShortcuts struct {
	bus *dbus.Conn
	Reg *registry.Registry
	Mgr globalshortcuts.Manager
}

// NewGlobalShortcuts builds the vtable bound to bus/reg/mgr.
func NewGlobalShortcuts(bus *dbus.Conn, reg *registry.Registry, mgr globalshortcuts.Manager) *GlobalShortcuts {
	return &GlobalShortcuts{bus: bus, Reg: reg, Mgr: mgr}
}

// Export publishes the GlobalShortcuts interface at path.
func (g *GlobalShortcuts) Export(path dbus.ObjectPath) error {
	if err := g.bus.Export(g, path, globalShortcutsIface); err != nil {
		return err
	}
	return g.bus.Export(introspect.NewIntrospectable(&introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: globalShortcutsIface,
				Methods: []introspect.Method{
					{Name: "CreateSession"}, {Name: "BindShortcuts"}, {Name: "ListShortcuts"},
				},
				Signals: []introspect.Signal{
					{Name: "Activated"}, {Name: "Deactivated"}, {Name: "ShortcutsChanged"},
				},
			},
		},
	}), path, "org.freedesktop.DBus.Introspectable")
}

// shortcutArg is the wire shape of one element of BindShortcuts's
// `a(sa{sv})` argument.
type shortcutArg struct {
	ID      string
	Options map[string]dbus.Variant
}

// CreateSession implements GlobalShortcuts.CreateSession (spec §4.C
// "optionally takes a shortcuts array a(sa{sv})").
func (g *GlobalShortcuts) CreateSession(handle, sessionHandle dbus.ObjectPath, appID string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	known := map[string]bool{"shortcuts": true}
	drainOptions(options, known)

	req := NewRequest(g.bus, handle)
	bsess, err := NewBusSession(g.Reg, g.bus, sessionHandle, registry.GlobalShortcuts, appID, nil)
	if err != nil {
		req.Destroy()
		return 0, nil, perror.ToDBusError(err)
	}

	gsSess := globalshortcuts.NewSession(g.Mgr)
	gsSess.OnActivated(func(id string, ts globalshortcuts.Timestamp) {
		_ = g.bus.Emit(sessionHandle, globalShortcutsIface+".Activated", sessionHandle, id, ts.SecHi, ts.SecLo, ts.Nsec, map[string]dbus.Variant{})
	})
	gsSess.OnDeactivated(func(id string, ts globalshortcuts.Timestamp) {
		_ = g.bus.Emit(sessionHandle, globalShortcutsIface+".Deactivated", sessionHandle, id, ts.SecHi, ts.SecLo, ts.Nsec, map[string]dbus.Variant{})
	})
	gsSess.OnShortcutsChanged(func() {
		_ = g.bus.Emit(sessionHandle, globalShortcutsIface+".ShortcutsChanged", sessionHandle, gsSess.ListShortcuts())
	})
	bsess.SetPayload(gsSess)

	if rawShortcuts, ok := options["shortcuts"]; ok {
		if args, ok := rawShortcuts.Value().([]shortcutArg); ok {
			var toBind []globalshortcuts.Shortcut
			for _, a := range args {
				desc, _ := optString(a.Options, "description")
				toBind = append(toBind, globalshortcuts.Shortcut{ID: a.ID, Description: desc})
			}
			if _, err := gsSess.BindShortcuts(toBind); err != nil {
				req.MarkCompleted()
				return 0, nil, perror.ToDBusError(err)
			}
		}
	}

	req.MarkCompleted()
	return uint32(ResponseSuccess), map[string]dbus.Variant{}, nil
}

// BindShortcuts implements GlobalShortcuts.BindShortcuts (spec §4.C
// "the backend registers each bound shortcut with the compositor's
// global-shortcuts protocol using (name, parent_window, description,
// trigger_hint)").
func (g *GlobalShortcuts) BindShortcuts(handle, sessionHandle dbus.ObjectPath, shortcuts []shortcutArg, parentWindow string) (uint32, map[string]dbus.Variant, *dbus.Error) {
	req := NewRequest(g.bus, handle)
	sess, ok := g.Reg.Lookup(sessionHandle)
	if !ok {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.New(perror.KindNotFound, "unknown global-shortcuts session"))
	}
	gsSess, ok := sess.Payload().(*globalshortcuts.Session)
	if !ok {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.New(perror.KindInvalidArgs, "global-shortcuts session missing payload"))
	}

	var toBind []globalshortcuts.Shortcut
	for _, a := range shortcuts {
		desc, _ := optString(a.Options, "description")
		trigger, _ := optString(a.Options, "trigger_description")
		drainOptions(a.Options, map[string]bool{"description": true, "trigger_description": true})
		toBind = append(toBind, globalshortcuts.Shortcut{
			ID: a.ID, Description: desc, TriggerHint: trigger, ParentWindow: parentWindow,
		})
	}

	bound, err := gsSess.BindShortcuts(toBind)
	if err != nil {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(err)
	}

	result := map[string]dbus.Variant{
		"shortcuts": dbus.MakeVariant(boundToWire(bound)),
	}
	req.MarkCompleted()
	return uint32(ResponseSuccess), result, nil
}

// ListShortcuts implements GlobalShortcuts.ListShortcuts.
func (g *GlobalShortcuts) ListShortcuts(handle, sessionHandle dbus.ObjectPath) (uint32, map[string]dbus.Variant, *dbus.Error) {
	req := NewRequest(g.bus, handle)
	sess, ok := g.Reg.Lookup(sessionHandle)
	if !ok {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.New(perror.KindNotFound, "unknown global-shortcuts session"))
	}
	gsSess, ok := sess.Payload().(*globalshortcuts.Session)
	if !ok {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.New(perror.KindInvalidArgs, "global-shortcuts session missing payload"))
	}

	result := map[string]dbus.Variant{
		"shortcuts": dbus.MakeVariant(boundToWire(gsSess.ListShortcuts())),
	}
	req.MarkCompleted()
	return uint32(ResponseSuccess), result, nil
}

func boundToWire(bound []globalshortcuts.Shortcut) []shortcutArg {
	out := make([]shortcutArg, 0, len(bound))
	for _, b := range bound {
		out = append(out, shortcutArg{
			ID: b.ID,
			Options: map[string]dbus.Variant{
				"description":         dbus.MakeVariant(b.Description),
				"trigger_description": dbus.MakeVariant(b.TriggerHint),
			},
		})
	}
	return out
}
