// Package waylandres implements the Wayland Resource Manager (spec
// §4.D): one display connection, global binding, and output/seat
// tracking shared by every portal backend.
package waylandres

import (
	"fmt"
	"sync"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/perror"
	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// minVersions are the minimum global versions spec §4.D requires.
var minVersions = map[string]uint32{
	"wl_compositor":                                    4,
	"zwlr_layer_shell_v1":                              1,
	"wl_seat":                                           7,
	"zwp_pointer_constraints_v1":                        1,
	"zwp_keyboard_shortcuts_inhibit_manager_v1":          1,
	"wl_output":                                         3,
	"zxdg_output_manager_v1":                            3,
	"zwlr_screencopy_manager_v1":                        2,
	"zwlr_virtual_pointer_manager_v1":                   1,
	"zwp_virtual_keyboard_manager_v1":                   1,
	"hyprland_global_shortcuts_manager_v1":              1,
}

// requiredForCore are globals without which the Manager itself cannot
// function; per-portal requirements are checked with RequireGlobal.
var requiredForCore = []string{"wl_compositor", "wl_seat", "wl_shm"}

// Output tracks one compositor output (monitor). It becomes Ready only
// after the first `done` following a complete geometry+mode+name set
// (spec §4.D).
type Output struct {
	GlobalName  uint32
	Name        string
	Description string
	X, Y        int32
	Width       int32
	Height      int32
	RefreshMHz  int32
	Scale       int32
	Transform   int32

	hasGeometry bool
	hasMode     bool
	hasName     bool
	Ready       bool

	wlOutput *client.Output
}

// Seat tracks one compositor seat (input device group).
type Seat struct {
	GlobalName  uint32
	Name        string
	HasPointer  bool
	HasKeyboard bool
	HasTouch    bool

	wlSeat *client.Seat
}

// Manager owns the single Wayland display connection and every bound
// global (spec §4.D).
type Manager struct {
	mu sync.RWMutex

	Display  *client.Display
	Registry *client.Registry

	// Bound globals, by protocol interface name. Presence in this map
	// means the global was announced by the compositor; a nil value
	// for an optional global means it is simply unavailable.
	globalNames map[string]uint32
	globalVers  map[string]uint32

	Outputs map[uint32]*Output
	Seats   map[uint32]*Seat

	onOutputDone func(*Output)
}

// New connects to the Wayland display and performs the two blocking
// roundtrips spec §4.D mandates: one to receive the global announcements,
// one to let bound singleton globals (outputs, seats) report their
// initial state.
func New() (*Manager, error) {
	display, err := client.Connect("")
	if err != nil {
		return nil, perror.Wrap(perror.KindFatal, "connect to wayland display", err)
	}

	m := &Manager{
		Display:     display,
		globalNames: make(map[string]uint32),
		globalVers:  make(map[string]uint32),
		Outputs:     make(map[uint32]*Output),
		Seats:       make(map[uint32]*Seat),
	}

	registry, err := display.GetRegistry()
	if err != nil {
		display.Context().Close()
		return nil, perror.Wrap(perror.KindFatal, "get wayland registry", err)
	}
	m.Registry = registry

	registry.SetGlobalHandler(m.handleGlobal)
	registry.SetGlobalRemoveHandler(m.handleGlobalRemove)

	if err := display.Context().RoundTrip(); err != nil {
		return nil, perror.Wrap(perror.KindFatal, "initial wayland roundtrip", err)
	}

	for _, name := range requiredForCore {
		if _, ok := m.globalNames[name]; !ok {
			return nil, perror.New(perror.KindNotSupported, fmt.Sprintf("required wayland global %s not advertised", name))
		}
	}

	// Second roundtrip: let bound singletons (outputs via xdg-output,
	// seat capabilities) deliver their initial event bursts.
	if err := display.Context().RoundTrip(); err != nil {
		return nil, perror.Wrap(perror.KindFatal, "second wayland roundtrip", err)
	}

	return m, nil
}

// NewForTest builds a Manager with the given globals pre-populated and
// no live display connection, for exercising global-gated logic in
// other packages' tests without a compositor.
func NewForTest(globals map[string]uint32) *Manager {
	m := &Manager{
		globalNames: make(map[string]uint32),
		globalVers:  make(map[string]uint32),
		Outputs:     make(map[uint32]*Output),
		Seats:       make(map[uint32]*Seat),
	}
	for iface, version := range globals {
		m.globalNames[iface] = 1
		m.globalVers[iface] = version
	}
	return m
}

// Close destroys the display connection.
func (m *Manager) Close() {
	if m.Display != nil {
		m.Display.Context().Close()
	}
}

func (m *Manager) handleGlobal(ev client.RegistryGlobalEvent) {
	m.mu.Lock()
	m.globalNames[ev.Interface] = ev.Name
	m.globalVers[ev.Interface] = ev.Version
	m.mu.Unlock()

	switch ev.Interface {
	case "wl_output":
		m.bindOutput(ev.Name, ev.Version)
	case "wl_seat":
		m.bindSeat(ev.Name, ev.Version)
	default:
		logger.Debugf("waylandres: global %s v%d (name=%d)", ev.Interface, ev.Version, ev.Name)
	}
}

func (m *Manager) handleGlobalRemove(ev client.RegistryGlobalRemoveEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if out, ok := m.Outputs[ev.Name]; ok {
		logger.Debugf("waylandres: output %s removed", out.Name)
		delete(m.Outputs, ev.Name)
	}
	if _, ok := m.Seats[ev.Name]; ok {
		delete(m.Seats, ev.Name)
	}
}

func (m *Manager) bindOutput(name, version uint32) {
	if version > minVersions["wl_output"] {
		version = minVersions["wl_output"]
	}
	wlOutput := client.NewOutput(m.Display.Context())
	if err := m.Registry.Bind(name, "wl_output", version, wlOutput); err != nil {
		logger.Errorf("waylandres: bind wl_output: %v", err)
		return
	}

	out := &Output{GlobalName: name, wlOutput: wlOutput}
	m.mu.Lock()
	m.Outputs[name] = out
	m.mu.Unlock()

	wlOutput.SetGeometryHandler(func(ev client.OutputGeometryEvent) {
		out.X, out.Y = ev.X, ev.Y
		out.Transform = int32(ev.Transform)
		out.hasGeometry = true
	})
	wlOutput.SetModeHandler(func(ev client.OutputModeEvent) {
		out.Width, out.Height = ev.Width, ev.Height
		out.RefreshMHz = ev.Refresh
		out.hasMode = true
	})
	wlOutput.SetScaleHandler(func(ev client.OutputScaleEvent) {
		out.Scale = ev.Factor
	})
	wlOutput.SetNameHandler(func(ev client.OutputNameEvent) {
		out.Name = ev.Name
		out.hasName = true
	})
	wlOutput.SetDescriptionHandler(func(ev client.OutputDescriptionEvent) {
		out.Description = ev.Description
	})
	wlOutput.SetDoneHandler(func(ev client.OutputDoneEvent) {
		if out.hasGeometry && out.hasMode && out.hasName {
			out.Ready = true
		}
		if m.onOutputDone != nil {
			m.onOutputDone(out)
		}
	})
}

func (m *Manager) bindSeat(name, version uint32) {
	if version > minVersions["wl_seat"] {
		version = minVersions["wl_seat"]
	}
	wlSeat := client.NewSeat(m.Display.Context())
	if err := m.Registry.Bind(name, "wl_seat", version, wlSeat); err != nil {
		logger.Errorf("waylandres: bind wl_seat: %v", err)
		return
	}

	seat := &Seat{GlobalName: name, wlSeat: wlSeat}
	m.mu.Lock()
	m.Seats[name] = seat
	m.mu.Unlock()

	wlSeat.SetCapabilitiesHandler(func(ev client.SeatCapabilitiesEvent) {
		seat.HasPointer = ev.Capabilities&client.SeatCapabilityPointer != 0
		seat.HasKeyboard = ev.Capabilities&client.SeatCapabilityKeyboard != 0
		seat.HasTouch = ev.Capabilities&client.SeatCapabilityTouch != 0
	})
	wlSeat.SetNameHandler(func(ev client.SeatNameEvent) {
		seat.Name = ev.Name
	})
}

// WlSeat returns the bound wl_seat object, for protocols (pointer
// constraints, keyboard-shortcuts-inhibit) that bind against it
// directly.
func (s *Seat) WlSeat() *client.Seat { return s.wlSeat }

// OnOutputDone registers a callback fired on every `done` event of any
// output, whether or not that output is Ready — used by input-capture's
// zone-set bookkeeping (spec §4.F "Output done event").
func (m *Manager) OnOutputDone(fn func(*Output)) {
	m.onOutputDone = fn
}

// HasGlobal reports whether the compositor advertised iface.
func (m *Manager) HasGlobal(iface string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.globalNames[iface]
	return ok
}

// GlobalVersion returns the advertised version of iface, or 0 if absent.
func (m *Manager) GlobalVersion(iface string) uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globalVers[iface]
}

// RequireGlobal fails a portal's initialization with NotSupported when a
// required global is missing (spec §4.D).
func (m *Manager) RequireGlobal(iface string) error {
	if !m.HasGlobal(iface) {
		return perror.New(perror.KindNotSupported, fmt.Sprintf("required wayland global %s not available", iface))
	}
	return nil
}

// FirstSeat returns an arbitrary seat, preferring one with both pointer
// and keyboard capabilities.
func (m *Manager) FirstSeat() *Seat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var fallback *Seat
	for _, s := range m.Seats {
		if fallback == nil {
			fallback = s
		}
		if s.HasPointer && s.HasKeyboard {
			return s
		}
	}
	return fallback
}

// OutputByName returns the Ready output with the given xdg-output name,
// or nil.
func (m *Manager) OutputByName(name string) *Output {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.Outputs {
		if o.Ready && o.Name == name {
			return o
		}
	}
	return nil
}

// ReadyOutputs returns every output that has completed its first `done`
// (spec §4.D).
func (m *Manager) ReadyOutputs() []*Output {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Output
	for _, o := range m.Outputs {
		if o.Ready {
			out = append(out, o)
		}
	}
	return out
}
