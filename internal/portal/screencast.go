package portal

import (
	"sync"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/config"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/perror"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/registry"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/screencast"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/screencast/chooser"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/waylandres"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const screenCastIface = "org.freedesktop.impl.portal.ScreenCast"

// OutputLister abstracts the subset of waylandres.Manager a ScreenCast
// vtable needs, so tests can supply a fixed output list.
type OutputLister interface {
	ReadyOutputs() []*waylandres.Output
}

// InstanceStarter builds and starts a screencast.Instance for a chosen
// target, returning the media node id once the stream reports one
// (spec §4.C "Start must block on capture until the media-stream
// node_id is known").
type InstanceStarter interface {
	Start(target screencast.Target, cursorMode uint32) (inst *screencast.Instance, nodeID uint32, x, y, w, h int32, err error)
}

// screencastPayload is the registry.Payload attached to a ScreenCast
// session by SelectSources (spec §2 "ScreencastInstance").
type screencastPayload struct {
	mu sync.Mutex

	multiple     bool
	types        uint32
	cursorMode   uint32
	restoreToken string

	instance *screencast.Instance
	ownerKey string
}

func (p *screencastPayload) Close() {
	p.mu.Lock()
	inst := p.instance
	owner := p.ownerKey
	p.mu.Unlock()
	if inst != nil {
		inst.Unref(owner)
	}
}

// ScreenCast implements org.freedesktop.impl.portal.ScreenCast (spec
// §4.C "ScreenCast").
type ScreenCast struct {
	Bus     *dbus.Conn
	Reg     *registry.Registry
	Outputs OutputLister
	Starter InstanceStarter
	Cfg     *config.ScreencastConfig
}

// Export publishes the ScreenCast interface and its introspection data
// at path.
func (sc *ScreenCast) Export(path dbus.ObjectPath) error {
	if err := sc.Bus.Export(sc, path, screenCastIface); err != nil {
		return err
	}
	return sc.Bus.Export(introspect.NewIntrospectable(&introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: screenCastIface,
				Methods: []introspect.Method{
					{Name: "CreateSession"},
					{Name: "SelectSources"},
					{Name: "Start"},
				},
			},
		},
	}), path, "org.freedesktop.DBus.Introspectable")
}

// CreateSession implements ScreenCast.CreateSession (spec §4.C.3).
func (sc *ScreenCast) CreateSession(handle, sessionHandle dbus.ObjectPath, appID string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	drainOptions(options, nil)

	req := NewRequest(sc.Bus, handle)
	_, err := NewBusSession(sc.Reg, sc.Bus, sessionHandle, registry.ScreenCast, appID, nil)
	if err != nil {
		req.Destroy()
		return 0, nil, perror.ToDBusError(err)
	}
	req.MarkCompleted()
	return uint32(ResponseSuccess), map[string]dbus.Variant{}, nil
}

// SelectSources implements ScreenCast.SelectSources (spec §4.C
// "SelectSources (opt multiple: b, types: u, cursor_mode: u,
// restore_token: s, persist_mode: u)").
func (sc *ScreenCast) SelectSources(handle, sessionHandle dbus.ObjectPath, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	known := map[string]bool{"multiple": true, "types": true, "cursor_mode": true, "restore_token": true, "persist_mode": true}
	drainOptions(options, known)

	req := NewRequest(sc.Bus, handle)
	sess, ok := sc.Reg.Lookup(sessionHandle)
	if !ok {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.New(perror.KindNotFound, "unknown screencast session"))
	}

	p := &screencastPayload{}
	p.multiple, _ = optBool(options, "multiple")
	p.types, _ = optUint32(options, "types")
	p.cursorMode, _ = optUint32(options, "cursor_mode")
	p.restoreToken, _ = optString(options, "restore_token")
	sess.SetPayload(p)

	req.MarkCompleted()
	return uint32(ResponseSuccess), map[string]dbus.Variant{}, nil
}

// Start implements ScreenCast.Start (spec §4.C "Start must block on
// capture until the media-stream node_id is known, then reply").
func (sc *ScreenCast) Start(handle, sessionHandle dbus.ObjectPath, parentWindow string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	drainOptions(options, nil)

	req := NewRequest(sc.Bus, handle)
	sess, ok := sc.Reg.Lookup(sessionHandle)
	if !ok {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.New(perror.KindNotFound, "unknown screencast session"))
	}
	payload, _ := sess.Payload().(*screencastPayload)
	if payload == nil {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.New(perror.KindInvalidArgs, "Start called before SelectSources"))
	}

	target, err := sc.chooseTarget()
	if err != nil {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(err)
	}

	inst, nodeID, x, y, w, h, err := sc.Starter.Start(target, payload.cursorMode)
	if err != nil {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(err)
	}

	payload.mu.Lock()
	payload.instance = inst
	payload.ownerKey = string(sessionHandle)
	payload.mu.Unlock()

	result := map[string]dbus.Variant{
		"streams": dbus.MakeVariant([]struct {
			NodeID   uint32
			Position struct{ X, Y int32 }
			Size     struct{ W, H int32 }
		}{{nodeID, struct{ X, Y int32 }{x, y}, struct{ W, H int32 }{w, h}}}),
	}

	req.MarkCompleted()
	return uint32(ResponseSuccess), result, nil
}

func (sc *ScreenCast) chooseTarget() (screencast.Target, error) {
	var outs []chooser.Output
	for _, o := range sc.Outputs.ReadyOutputs() {
		outs = append(outs, chooser.Output{Name: o.Name, Width: o.Width, Height: o.Height})
	}
	name, err := chooser.Choose(sc.Cfg, outs)
	if err != nil {
		return screencast.Target{}, perror.Wrap(perror.KindNotSupported, "choose screencast target", err)
	}
	logger.Debugf("screencast: chooser selected %q", name)
	return screencast.Target{Kind: screencast.TargetMonitor, Name: name}, nil
}
