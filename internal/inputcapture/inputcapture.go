// Package inputcapture implements the Input-Capture state machine (spec
// §4.F): barrier configuration, the single global active-capture slot,
// the fullscreen layer-surface overlay used to grab pointer/keyboard
// focus, and zone-set bookkeeping driven by output `done` events.
package inputcapture

import (
	"fmt"
	"sync"

	"github.com/bnema/wayland-virtual-input-go/keyboard_shortcuts_inhibitor"
	"github.com/bnema/wayland-virtual-input-go/pointer_constraints"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/eis"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/perror"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/waylandres"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/xkb"
	"github.com/godbus/dbus/v5"
	"github.com/rajveermalviya/go-wayland/wayland/client"
	"golang.org/x/sys/unix"
)

// Capability mirrors the InputCapture capability mask (spec §3
// "InputCaptureSession... requested capability mask (Keyboard=1,
// Pointer=2, Touch=4)").
type Capability uint32

const (
	CapabilityKeyboard Capability = 1 << 0
	CapabilityPointer  Capability = 1 << 1
	CapabilityTouch    Capability = 1 << 2
)

// portalCapabilities are the capability bits this backend can actually
// satisfy. Touch has no barrier-triggering semantics in this pipeline,
// so it is never offered (spec §4.G "Recoverable: missing optional
// features").
const portalCapabilities = CapabilityKeyboard | CapabilityPointer

// State is a session's position in the Input-Capture state machine
// (spec §4.F "Created → BarriersConfigured → Enabled → Captured →
// Released/Disabled").
type State int

const (
	StateCreated State = iota
	StateBarriersConfigured
	StateEnabled
	StateCaptured
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBarriersConfigured:
		return "barriers-configured"
	case StateEnabled:
		return "enabled"
	case StateCaptured:
		return "captured"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Barrier is one pointer barrier line (spec §4.F "SetPointerBarriers:
// parses barrier dictionaries, validates each").
type Barrier struct {
	ID             uint32
	X1, Y1, X2, Y2 int32
}

func (b Barrier) validate() error {
	if b.ID == 0 {
		return fmt.Errorf("barrier id must be nonzero")
	}
	vertical := b.X1 == b.X2
	horizontal := b.Y1 == b.Y2
	if !vertical && !horizontal {
		return fmt.Errorf("barrier is not axis-aligned")
	}
	if vertical && horizontal {
		return fmt.Errorf("barrier has zero length")
	}
	return nil
}

// OverlaySurface is the fullscreen capture surface created on Enable
// (spec §4.F "creates a fullscreen layer-surface on every anchor...
// with size (0,0), commits it"). No zwlr_layer_shell_v1 binding exists
// in this dependency stack, so the surface lifecycle is an external
// collaborator; this package drives it purely through this interface.
type OverlaySurface interface {
	// Surface returns the underlying wl_surface, used to target the
	// pointer lock and shortcuts-inhibitor requests.
	Surface() *client.Surface
	// Pointer returns the seat's pointer object.
	Pointer() *client.Pointer

	OnPointerEnter(func(x, y float64, barrierID uint32))
	OnPointerMotion(func(dx, dy float64))
	OnKey(func(keycode uint32, pressed bool))
	OnModifiers(func(depressed, latched, locked, group uint32))
	OnKeymap(func(fd int, size uint32))
	// OnClosed fires if the compositor destroys the surface out from
	// under us (spec §4.G "layer-surface closed unexpectedly").
	OnClosed(func())

	// Destroy tears down the layer-surface bundle (spec §4.F "destroy
	// the layer-surface bundle in reverse creation order").
	Destroy() error
}

// OverlayFactory creates the overlay surface for a given seat.
type OverlayFactory interface {
	CreateOverlay(seat *waylandres.Seat) (OverlaySurface, error)
}

// lockPointerFunc and inhibitShortcutsFunc are injected so Manager's
// state machine is testable without a live Wayland connection; the
// zero value in NewManager wires the real third-party calls.
type lockPointerFunc func(mgr pointer_constraints.PointerConstraintsManager, surface *client.Surface, ptr *client.Pointer) (pointer_constraints.LockedPointer, error)
type inhibitShortcutsFunc func(mgr keyboard_shortcuts_inhibitor.KeyboardShortcutsInhibitorManager, surface *client.Surface, seat *client.Seat) (keyboard_shortcuts_inhibitor.KeyboardShortcutsInhibitor, error)

// Session is one InputCapture portal session (spec §3
// "InputCaptureSession").
type Session struct {
	mu sync.Mutex

	mgr *Manager

	Handle dbus.ObjectPath
	AppID  string

	capability Capability
	state      State

	zoneSetID uint32
	barriers  map[uint32]Barrier

	activationID uint64
	lastX, lastY float64

	overlay            OverlaySurface
	lockedPointer      pointer_constraints.LockedPointer
	shortcutsInhibitor keyboard_shortcuts_inhibitor.KeyboardShortcutsInhibitor
	xkbState           xkb.State

	eisServerFD int // the end handed to the EIS backend; -1 until ConnectToEIS

	onActivated    func(activationID uint64, x, y float64, barrierID uint32)
	onDeactivated  func(activationID uint64, x, y float64)
	onDisabled     func()
	onZonesChanged func()
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Capability returns the negotiated capability mask.
func (s *Session) Capability() Capability {
	return s.capability
}

// CapabilityMask returns the negotiated capability mask as a plain
// uint32, satisfying eis.Pump's structural lookup of a session's
// negotiated capabilities without an import cycle back into this
// package (spec §4.F "SEAT_BIND: ... capability mask comes from the
// session's negotiated payload").
func (s *Session) CapabilityMask() uint32 {
	return uint32(s.Capability())
}

// Close tears the session down, satisfying registry.Payload. Called by
// the Session Registry on session destruction (spec §3, §8 "Session
// close is idempotent").
func (s *Session) Close() {
	if s.mgr != nil {
		s.mgr.DestroySession(s)
	}
}

// ZoneSetID returns the session's current zone-set id.
func (s *Session) ZoneSetID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoneSetID
}

// OnActivated registers the Activated signal callback.
func (s *Session) OnActivated(fn func(activationID uint64, x, y float64, barrierID uint32)) {
	s.onActivated = fn
}

// OnDeactivated registers the Deactivated signal callback.
func (s *Session) OnDeactivated(fn func(activationID uint64, x, y float64)) {
	s.onDeactivated = fn
}

// OnDisabled registers the Disabled signal callback.
func (s *Session) OnDisabled(fn func()) {
	s.onDisabled = fn
}

// OnZonesChanged registers the ZonesChanged signal callback.
func (s *Session) OnZonesChanged(fn func()) {
	s.onZonesChanged = fn
}

// Manager owns the single global active-capture slot and every live
// InputCapture session (spec §3 "At most one InputCaptureSession is in
// the enabled state process-wide").
type Manager struct {
	mu sync.Mutex

	wlres    *waylandres.Manager
	overlays OverlayFactory
	eisSink  eis.Backend

	constraintsMgr pointer_constraints.PointerConstraintsManager
	inhibitorsMgr  keyboard_shortcuts_inhibitor.KeyboardShortcutsInhibitorManager

	lockPointer      lockPointerFunc
	inhibitShortcuts inhibitShortcutsFunc

	sessions      map[dbus.ObjectPath]*Session
	activeSession *Session
}

// NewManager creates a Manager wired to the real pointer-constraints and
// keyboard-shortcuts-inhibit calls. constraintsMgr/inhibitorsMgr may be
// nil if the corresponding compositor global is unavailable; Enable then
// degrades per spec §4.G rather than hard-failing when Keyboard was not
// requested.
func NewManager(wlres *waylandres.Manager, overlays OverlayFactory, eisSink eis.Backend, constraintsMgr pointer_constraints.PointerConstraintsManager, inhibitorsMgr keyboard_shortcuts_inhibitor.KeyboardShortcutsInhibitorManager) *Manager {
	return &Manager{
		wlres:          wlres,
		overlays:       overlays,
		eisSink:        eisSink,
		constraintsMgr: constraintsMgr,
		inhibitorsMgr:  inhibitorsMgr,
		lockPointer:    pointer_constraints.LockPointerAtCurrentPosition,
		inhibitShortcuts: func(mgr keyboard_shortcuts_inhibitor.KeyboardShortcutsInhibitorManager, surface *client.Surface, seat *client.Seat) (keyboard_shortcuts_inhibitor.KeyboardShortcutsInhibitor, error) {
			return mgr.InhibitShortcuts(surface, seat)
		},
		sessions: make(map[dbus.ObjectPath]*Session),
	}
}

// CreateSession negotiates the capability mask and registers a new
// Session (spec §4.F "CreateSession (Created): negotiates capability
// mask; fails NotSupported if mask ∩ portal capabilities is empty").
func (m *Manager) CreateSession(handle dbus.ObjectPath, appID string, requested Capability) (*Session, error) {
	negotiated := requested & portalCapabilities
	if negotiated == 0 {
		return nil, perror.New(perror.KindNotSupported, "no overlapping input-capture capabilities")
	}

	s := &Session{
		mgr:         m,
		Handle:      handle,
		AppID:       appID,
		capability:  negotiated,
		state:       StateCreated,
		barriers:    make(map[uint32]Barrier),
		eisServerFD: -1,
	}

	m.mu.Lock()
	m.sessions[handle] = s
	m.mu.Unlock()

	return s, nil
}

// Zone is the (x, y, width, height) snapshot of a ready output, the
// reply to GetZones (spec §3 "Zone").
type Zone struct {
	X, Y, Width, Height int32
}

// GetZones returns a snapshot of every ready output alongside the
// session's current zone-set id (spec §4.C "InputCapture: GetZones").
func (m *Manager) GetZones(s *Session) ([]Zone, uint32) {
	var zones []Zone
	for _, o := range m.wlres.ReadyOutputs() {
		zones = append(zones, Zone{X: o.X, Y: o.Y, Width: o.Width, Height: o.Height})
	}
	return zones, s.ZoneSetID()
}

// ConnectToEIS creates the socketpair backing the session's EIS
// connection, keeping the server end for the Backend and handing the
// client end to the caller as an fd to pass back over the bus (spec
// §4.C "ConnectToEIS (returns an fd handle)"). Calling it twice closes
// the previous server end first.
func (m *Manager) ConnectToEIS(s *Session) (int, error) {
	serverFD, clientFD, err := eis.NewSocketPair()
	if err != nil {
		return -1, perror.Wrap(perror.KindFatal, "create eis socketpair", err)
	}

	s.mu.Lock()
	prev := s.eisServerFD
	s.eisServerFD = serverFD
	s.mu.Unlock()
	if prev >= 0 {
		_ = unix.Close(prev)
	}

	return clientFD, nil
}

// SetPointerBarriers installs barriers against zoneSetID, returning the
// ids that validated successfully and the ids that failed (spec §4.F
// "SetPointerBarriers (any state)").
func (m *Manager) SetPointerBarriers(s *Session, zoneSetID uint32, barriers []Barrier) (valid []uint32, failed []uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if zoneSetID != s.zoneSetID {
		s.barriers = make(map[uint32]Barrier)
		return nil, nil, perror.New(perror.KindNotFound, "zone set id does not match current value")
	}

	newBarriers := make(map[uint32]Barrier, len(barriers))
	for _, b := range barriers {
		if verr := b.validate(); verr != nil {
			failed = append(failed, b.ID)
			continue
		}
		newBarriers[b.ID] = b
		valid = append(valid, b.ID)
	}
	s.barriers = newBarriers

	if s.state == StateCreated {
		s.state = StateBarriersConfigured
	}

	return valid, failed, nil
}

// Enable activates s as the single global capture session (spec §4.F
// "Enable (BarriersConfigured)").
func (m *Manager) Enable(s *Session, seat *waylandres.Seat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeSession != nil && m.activeSession != s {
		return perror.New(perror.KindBusy, "another input-capture session is already enabled")
	}
	if err := m.wlres.RequireGlobal("zwlr_layer_shell_v1"); err != nil {
		return err
	}
	if err := m.wlres.RequireGlobal("zwp_pointer_constraints_v1"); err != nil {
		return err
	}
	if s.capability&CapabilityKeyboard != 0 {
		if err := m.wlres.RequireGlobal("zwp_keyboard_shortcuts_inhibit_manager_v1"); err != nil {
			return err
		}
	}

	overlay, err := m.overlays.CreateOverlay(seat)
	if err != nil {
		return perror.Wrap(perror.KindFatal, "create input-capture overlay", err)
	}

	if m.constraintsMgr != nil {
		locked, lerr := m.lockPointer(m.constraintsMgr, overlay.Surface(), overlay.Pointer())
		if lerr != nil {
			logger.Warnf("inputcapture: lock pointer: %v", lerr)
		} else {
			s.lockedPointer = locked
		}
	}

	if s.capability&CapabilityKeyboard != 0 && m.inhibitorsMgr != nil {
		inhibitor, ierr := m.inhibitShortcuts(m.inhibitorsMgr, overlay.Surface(), seat.WlSeat())
		if ierr != nil {
			logger.Warnf("inputcapture: inhibit shortcuts: %v", ierr)
		} else {
			s.shortcutsInhibitor = inhibitor
		}
	}

	overlay.OnPointerEnter(func(x, y float64, barrierID uint32) { m.handlePointerEnter(s, x, y, barrierID) })
	overlay.OnPointerMotion(func(dx, dy float64) { m.handlePointerMotion(s, dx, dy) })
	overlay.OnKey(func(keycode uint32, pressed bool) { m.handleKey(s, keycode, pressed) })
	overlay.OnModifiers(func(depressed, latched, locked, group uint32) { m.handleModifiers(s, depressed, latched, locked, group) })
	overlay.OnKeymap(func(fd int, size uint32) { m.handleKeymap(s, fd, size) })
	overlay.OnClosed(func() { m.handleOverlayClosed(s) })

	s.mu.Lock()
	s.overlay = overlay
	s.state = StateEnabled
	s.mu.Unlock()

	m.activeSession = s
	return nil
}

func (m *Manager) handlePointerEnter(s *Session, x, y float64, barrierID uint32) {
	s.mu.Lock()
	s.lastX, s.lastY = x, y
	s.activationID++
	actID := s.activationID
	s.state = StateCaptured
	cb := s.onActivated
	s.mu.Unlock()

	if cb != nil {
		cb(actID, x, y, barrierID)
	}
	if m.eisSink != nil {
		if err := m.eisSink.StartEmulating(actID); err != nil {
			logger.Warnf("inputcapture: start emulating: %v", err)
		}
	}
}

func (m *Manager) handlePointerMotion(s *Session, dx, dy float64) {
	s.mu.Lock()
	s.lastX += dx
	s.lastY += dy
	s.mu.Unlock()

	if m.eisSink != nil {
		if err := m.eisSink.SendPointerMotion(dx, dy); err != nil {
			logger.Warnf("inputcapture: forward pointer motion: %v", err)
		}
	}
}

func (m *Manager) handleKey(s *Session, keycode uint32, pressed bool) {
	if m.eisSink != nil {
		if err := m.eisSink.SendKey(keycode, pressed); err != nil {
			logger.Warnf("inputcapture: forward key: %v", err)
		}
	}
}

func (m *Manager) handleModifiers(s *Session, depressed, latched, locked, group uint32) {
	if s.xkbState == nil {
		if m.eisSink != nil {
			if err := m.eisSink.SendModifiers(depressed|latched|locked, group); err != nil {
				logger.Warnf("inputcapture: forward modifiers: %v", err)
			}
		}
		return
	}
	mask, effGroup := s.xkbState.UpdateMask(depressed, latched, locked, group)
	if m.eisSink != nil {
		if err := m.eisSink.SendModifiers(mask, effGroup); err != nil {
			logger.Warnf("inputcapture: forward modifiers: %v", err)
		}
	}
}

// handleKeymap compiles fd into an xkb keymap+state (xkb.Compile dups
// fd for its own mmap) and passes fd itself, not a second dup, to EIS
// with the keymap length.
func (m *Manager) handleKeymap(s *Session, fd int, size uint32) {
	state, err := xkb.Compile(fd, size)
	if err != nil {
		logger.Warnf("inputcapture: compile keymap: %v", err)
	} else {
		s.mu.Lock()
		if s.xkbState != nil {
			s.xkbState.Close()
		}
		s.xkbState = state
		s.mu.Unlock()
	}

	if m.eisSink != nil {
		if err := m.eisSink.SendKeymap(fd, size); err != nil {
			logger.Warnf("inputcapture: send keymap to eis: %v", err)
		}
	}
}

func (m *Manager) handleOverlayClosed(s *Session) {
	logger.Warnf("inputcapture: layer-surface closed unexpectedly for session %s", s.Handle)
	_ = m.Disable(s)
}

// Disable tears down s's overlay bundle and clears the active slot
// (spec §4.F "Disable/Release: stop EIS emulation, destroy the
// layer-surface bundle in reverse creation order, clear the active
// slot, emit Deactivated").
func (m *Manager) Disable(s *Session) error {
	return m.teardown(s)
}

// Release is the client-initiated equivalent of Disable, ending the
// current capture burst (spec §4.C "Release (with activation_id and
// optional cursor_position)").
func (m *Manager) Release(s *Session, cursorX, cursorY *float64) error {
	if cursorX != nil && cursorY != nil {
		s.mu.Lock()
		s.lastX, s.lastY = *cursorX, *cursorY
		s.mu.Unlock()
	}
	return m.teardown(s)
}

func (m *Manager) teardown(s *Session) error {
	m.mu.Lock()
	if m.activeSession == s {
		m.activeSession = nil
	}
	m.mu.Unlock()

	if m.eisSink != nil {
		if err := m.eisSink.StopEmulating(); err != nil {
			logger.Warnf("inputcapture: stop emulating: %v", err)
		}
	}

	s.mu.Lock()
	actID := s.activationID
	x, y := s.lastX, s.lastY
	if s.shortcutsInhibitor != nil {
		if err := s.shortcutsInhibitor.Destroy(); err != nil {
			logger.Warnf("inputcapture: destroy shortcuts inhibitor: %v", err)
		}
		s.shortcutsInhibitor = nil
	}
	if s.lockedPointer != nil {
		if err := s.lockedPointer.Destroy(); err != nil {
			logger.Warnf("inputcapture: destroy locked pointer: %v", err)
		}
		s.lockedPointer = nil
	}
	var overlayErr error
	if s.overlay != nil {
		overlayErr = s.overlay.Destroy()
		s.overlay = nil
	}
	if s.xkbState != nil {
		s.xkbState.Close()
		s.xkbState = nil
	}
	if s.eisServerFD >= 0 {
		_ = unix.Close(s.eisServerFD)
		s.eisServerFD = -1
	}
	s.state = StateDisabled
	cb := s.onDeactivated
	s.mu.Unlock()

	if cb != nil {
		cb(actID, x, y)
	}
	if overlayErr != nil {
		return fmt.Errorf("inputcapture: destroy overlay: %w", overlayErr)
	}
	return nil
}

// HandleOutputDone implements the zone-set-id bump on every output
// `done` event: each session's zone-set id is set to 1 if zero, else
// incremented, and its ZonesChanged callback fires. Every session in
// the manager is bumped, whatever its state, not only enabled ones.
func (m *Manager) HandleOutputDone(*waylandres.Output) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		if s.zoneSetID == 0 {
			s.zoneSetID = 1
		} else {
			s.zoneSetID++
		}
		cb := s.onZonesChanged
		s.mu.Unlock()
		if cb != nil {
			cb()
		}
	}
}

// DestroySession removes s from the manager's session table, tearing it
// down first unless it is already disabled, then fires its onDisabled
// callback.
func (m *Manager) DestroySession(s *Session) {
	if s.State() != StateDisabled {
		_ = m.teardown(s)
	}
	m.mu.Lock()
	delete(m.sessions, s.Handle)
	m.mu.Unlock()
	if s.onDisabled != nil {
		s.onDisabled()
	}
}
