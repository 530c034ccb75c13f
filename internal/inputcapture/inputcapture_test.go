package inputcapture

import (
	"testing"

	"github.com/bnema/wayland-virtual-input-go/keyboard_shortcuts_inhibitor"
	"github.com/bnema/wayland-virtual-input-go/pointer_constraints"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/eis"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/waylandres"
	"github.com/rajveermalviya/go-wayland/wayland/client"
	"github.com/stretchr/testify/require"
)

type fakeOverlay struct {
	destroyed  bool
	onEnter    func(x, y float64, barrierID uint32)
	onMotion   func(dx, dy float64)
	onKey      func(keycode uint32, pressed bool)
	onMods     func(depressed, latched, locked, group uint32)
	onKeymap   func(fd int, size uint32)
	onClosed   func()
}

func (f *fakeOverlay) Surface() *client.Surface { return nil }
func (f *fakeOverlay) Pointer() *client.Pointer { return nil }
func (f *fakeOverlay) OnPointerEnter(fn func(x, y float64, barrierID uint32)) { f.onEnter = fn }
func (f *fakeOverlay) OnPointerMotion(fn func(dx, dy float64))                { f.onMotion = fn }
func (f *fakeOverlay) OnKey(fn func(keycode uint32, pressed bool))            { f.onKey = fn }
func (f *fakeOverlay) OnModifiers(fn func(depressed, latched, locked, group uint32)) {
	f.onMods = fn
}
func (f *fakeOverlay) OnKeymap(fn func(fd int, size uint32)) { f.onKeymap = fn }
func (f *fakeOverlay) OnClosed(fn func())                    { f.onClosed = fn }
func (f *fakeOverlay) Destroy() error                         { f.destroyed = true; return nil }

type fakeOverlayFactory struct {
	overlay *fakeOverlay
	err     error
}

func (f *fakeOverlayFactory) CreateOverlay(seat *waylandres.Seat) (OverlaySurface, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.overlay, nil
}

type fakeEISSink struct {
	started   []uint64
	stopped   int
	motions   [][2]float64
	keys      []uint32
	modifiers []uint32
}

func (f *fakeEISSink) Poll() ([]eis.Event, error)                  { return nil, nil }
func (f *fakeEISSink) AcceptClient() error                        { return nil }
func (f *fakeEISSink) BindSeat(seatName string, caps uint32) error { return nil }
func (f *fakeEISSink) DisconnectClient(clientID string) error     { return nil }
func (f *fakeEISSink) StartEmulating(activationID uint64) error {
	f.started = append(f.started, activationID)
	return nil
}
func (f *fakeEISSink) StopEmulating() error { f.stopped++; return nil }
func (f *fakeEISSink) SendPointerMotion(dx, dy float64) error {
	f.motions = append(f.motions, [2]float64{dx, dy})
	return nil
}
func (f *fakeEISSink) SendKey(keycode uint32, pressed bool) error {
	f.keys = append(f.keys, keycode)
	return nil
}
func (f *fakeEISSink) SendModifiers(mods uint32, group uint32) error {
	f.modifiers = append(f.modifiers, mods)
	return nil
}
func (f *fakeEISSink) SendKeymap(fd int, size uint32) error { return nil }
func (f *fakeEISSink) Close() error                         { return nil }

func newTestManager(t *testing.T) (*Manager, *fakeOverlayFactory, *fakeEISSink) {
	return newTestManagerWithGlobals(t, nil)
}

func newTestManagerWithGlobals(t *testing.T, globals map[string]uint32) (*Manager, *fakeOverlayFactory, *fakeEISSink) {
	t.Helper()
	wlres := waylandres.NewForTest(globals)
	overlay := &fakeOverlay{}
	factory := &fakeOverlayFactory{overlay: overlay}
	sink := &fakeEISSink{}

	m := NewManager(wlres, factory, sink, nil, nil)
	m.lockPointer = func(mgr pointer_constraints.PointerConstraintsManager, surface *client.Surface, ptr *client.Pointer) (pointer_constraints.LockedPointer, error) {
		return nil, nil
	}
	m.inhibitShortcuts = func(mgr keyboard_shortcuts_inhibitor.KeyboardShortcutsInhibitorManager, surface *client.Surface, seat *client.Seat) (keyboard_shortcuts_inhibitor.KeyboardShortcutsInhibitor, error) {
		return nil, nil
	}
	return m, factory, sink
}

func TestCreateSessionNegotiatesCapabilities(t *testing.T) {
	m, _, _ := newTestManager(t)

	s, err := m.CreateSession("/session/1", "app.id", CapabilityKeyboard|CapabilityPointer|CapabilityTouch)
	require.NoError(t, err)
	require.Equal(t, CapabilityKeyboard|CapabilityPointer, s.Capability())
	require.Equal(t, StateCreated, s.State())
}

func TestCreateSessionNotSupportedWhenNoOverlap(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.CreateSession("/session/1", "app.id", CapabilityTouch)
	require.Error(t, err)
}

func TestSetPointerBarriersValidatesAndInstalls(t *testing.T) {
	m, _, _ := newTestManager(t)
	s, err := m.CreateSession("/session/1", "app.id", CapabilityPointer)
	require.NoError(t, err)

	valid, failed, err := m.SetPointerBarriers(s, 0, []Barrier{
		{ID: 1, X1: 0, Y1: 0, X2: 0, Y2: 100},
		{ID: 0, X1: 0, Y1: 0, X2: 0, Y2: 100},
		{ID: 2, X1: 5, Y1: 5, X2: 10, Y2: 10},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{1}, valid)
	require.ElementsMatch(t, []uint32{0, 2}, failed)
	require.Equal(t, StateBarriersConfigured, s.State())
}

func TestSetPointerBarriersZoneSetMismatchClearsBarriers(t *testing.T) {
	m, _, _ := newTestManager(t)
	s, err := m.CreateSession("/session/1", "app.id", CapabilityPointer)
	require.NoError(t, err)

	_, _, err = m.SetPointerBarriers(s, 0, []Barrier{{ID: 1, X1: 0, Y1: 0, X2: 0, Y2: 5}})
	require.NoError(t, err)

	_, _, err = m.SetPointerBarriers(s, 7, []Barrier{{ID: 2, X1: 0, Y1: 0, X2: 0, Y2: 5}})
	require.Error(t, err)
	require.Empty(t, s.barriers)
}

func TestEnableFailsBusyWhenAnotherSessionActive(t *testing.T) {
	m, _, _ := newTestManagerWithGlobals(t, map[string]uint32{
		"zwlr_layer_shell_v1":                       1,
		"zwp_pointer_constraints_v1":                 1,
		"zwp_keyboard_shortcuts_inhibit_manager_v1":  1,
	})

	s1, _ := m.CreateSession("/session/1", "app.id", CapabilityPointer)
	s2, _ := m.CreateSession("/session/2", "app.id", CapabilityPointer)

	require.NoError(t, m.Enable(s1, nil))
	err := m.Enable(s2, nil)
	require.Error(t, err)
}

func TestPointerEnterActivatesAndStartsEmulating(t *testing.T) {
	m, factory, sink := newTestManagerWithGlobals(t, map[string]uint32{
		"zwlr_layer_shell_v1":                       1,
		"zwp_pointer_constraints_v1":                 1,
		"zwp_keyboard_shortcuts_inhibit_manager_v1":  1,
	})

	s, _ := m.CreateSession("/session/1", "app.id", CapabilityPointer)
	require.NoError(t, m.Enable(s, nil))

	var gotActID uint64
	var gotX, gotY float64
	s.OnActivated(func(activationID uint64, x, y float64, barrierID uint32) {
		gotActID, gotX, gotY = activationID, x, y
	})

	factory.overlay.onEnter(10, 20, 5)

	require.Equal(t, uint64(1), gotActID)
	require.Equal(t, 10.0, gotX)
	require.Equal(t, 20.0, gotY)
	require.Equal(t, StateCaptured, s.State())
	require.Equal(t, []uint64{1}, sink.started)
}

func TestPointerMotionForwardsDeltasToEIS(t *testing.T) {
	m, factory, sink := newTestManagerWithGlobals(t, map[string]uint32{
		"zwlr_layer_shell_v1":                       1,
		"zwp_pointer_constraints_v1":                 1,
		"zwp_keyboard_shortcuts_inhibit_manager_v1":  1,
	})

	s, _ := m.CreateSession("/session/1", "app.id", CapabilityPointer)
	require.NoError(t, m.Enable(s, nil))
	factory.overlay.onEnter(0, 0, 0)

	factory.overlay.onMotion(3, -4)

	require.Equal(t, [][2]float64{{3, -4}}, sink.motions)
}

func TestReleaseTeardownEmitsDeactivated(t *testing.T) {
	m, factory, sink := newTestManagerWithGlobals(t, map[string]uint32{
		"zwlr_layer_shell_v1":                       1,
		"zwp_pointer_constraints_v1":                 1,
		"zwp_keyboard_shortcuts_inhibit_manager_v1":  1,
	})

	s, _ := m.CreateSession("/session/1", "app.id", CapabilityPointer)
	require.NoError(t, m.Enable(s, nil))
	factory.overlay.onEnter(1, 2, 0)

	var deactivatedX, deactivatedY float64
	s.OnDeactivated(func(activationID uint64, x, y float64) {
		deactivatedX, deactivatedY = x, y
	})

	require.NoError(t, m.Release(s, nil, nil))

	require.True(t, factory.overlay.destroyed)
	require.Equal(t, 1, sink.stopped)
	require.Equal(t, 1.0, deactivatedX)
	require.Equal(t, 2.0, deactivatedY)
	require.Equal(t, StateDisabled, s.State())
	require.Nil(t, m.activeSession)
}

func TestHandleOutputDoneBumpsZoneSetAndBroadcasts(t *testing.T) {
	m, _, _ := newTestManager(t)
	s, _ := m.CreateSession("/session/1", "app.id", CapabilityPointer)

	var notified int
	s.OnZonesChanged(func() { notified++ })

	m.HandleOutputDone(nil)
	require.Equal(t, uint32(1), s.ZoneSetID())
	require.Equal(t, 1, notified)

	m.HandleOutputDone(nil)
	require.Equal(t, uint32(2), s.ZoneSetID())
	require.Equal(t, 2, notified)
}
