// Package eis implements the fd-passing plumbing around the EIS
// (emulated input server) socket (spec §4.C "ConnectToEIS (returns an
// fd handle)") and the event pump that dispatches CLIENT_CONNECT /
// SEAT_BIND / CLIENT_DISCONNECT (spec §4.F "EIS event pump").
//
// libei/libeis emulation itself is consumed only through the Backend
// interface below (spec "Out of scope: libei/libeis emulation"); this
// package owns the socket handoff and dispatch discipline, not the
// wire protocol.
package eis

import (
	"fmt"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/registry"
	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

// EventKind enumerates the EIS events the pump dispatches (spec §4.F
// "EIS event pump").
type EventKind int

const (
	EventClientConnect EventKind = iota
	EventSeatBind
	EventClientDisconnect
)

// Event is one pumped EIS event.
type Event struct {
	Kind EventKind
	// SeatName carries the session object path for EventSeatBind (spec
	// §4.F "the seat name is the session object path").
	SeatName         string
	Capabilities     uint32
	ClientDisconnect string
}

// Backend is the libei/libeis-backed server; the real implementation
// is an external collaborator, this package only drives it.
type Backend interface {
	// Poll drains and returns newly available events without blocking.
	Poll() ([]Event, error)
	// AcceptClient finalizes a CLIENT_CONNECT.
	AcceptClient() error
	// BindSeat creates a virtual device named "Portal Virtual Input"
	// with the given capability bits and resumes it (spec §4.F
	// "SEAT_BIND").
	BindSeat(seatName string, capabilities uint32) error
	// DisconnectClient drops the device reference for a client (spec
	// §4.F "CLIENT_DISCONNECT: drop the device reference... do not
	// destroy the session").
	DisconnectClient(clientID string) error
	// StartEmulating begins forwarding input for activationID (spec
	// §4.F "call EIS start_emulating(activation_id)").
	StartEmulating(activationID uint64) error
	// StopEmulating halts forwarding (spec §4.F "Disable/Release: stop
	// EIS emulation").
	StopEmulating() error
	// SendPointerMotion forwards a relative pointer delta while emulating
	// (spec §4.F "Pointer motion: compute deltas... forward to EIS").
	SendPointerMotion(dx, dy float64) error
	// SendKey forwards a keyboard scancode press/release (spec §4.F
	// "Keyboard key: forward scancode + press/release state").
	SendKey(keycode uint32, pressed bool) error
	// SendModifiers forwards an updated effective modifier mask and
	// layout group (spec §4.F "Keyboard modifiers: update local xkb
	// state, forward modifier mask + group").
	SendModifiers(mods uint32, group uint32) error
	// SendKeymap passes a dup of the compiled keymap fd and its length
	// to the EIS peer (spec §4.F "pass a second dup to EIS with the
	// keymap length").
	SendKeymap(fd int, size uint32) error
	// Close releases the backend's resources.
	Close() error
}

// capabilityMasker is implemented by a session payload that can report
// its negotiated capability mask (inputcapture.Session), structurally
// matched here to avoid an import cycle.
type capabilityMasker interface {
	CapabilityMask() uint32
}

// Pump drives one Backend each event-loop iteration, looking up
// SEAT_BIND's seat name in the Session Registry (spec §4.F).
type Pump struct {
	backend Backend
	reg     *registry.Registry
}

// NewPump creates a Pump over backend, resolving SEAT_BIND sessions
// against reg.
func NewPump(backend Backend, reg *registry.Registry) *Pump {
	return &Pump{backend: backend, reg: reg}
}

// Tick polls the backend once and dispatches every event it returns.
// Intended to be called from the event loop's EIS fd source callback.
func (p *Pump) Tick() error {
	events, err := p.backend.Poll()
	if err != nil {
		return fmt.Errorf("eis: poll: %w", err)
	}
	for _, ev := range events {
		p.dispatch(ev)
	}
	return nil
}

func (p *Pump) dispatch(ev Event) {
	switch ev.Kind {
	case EventClientConnect:
		if err := p.backend.AcceptClient(); err != nil {
			logger.Warnf("eis: accept client: %v", err)
		}

	case EventSeatBind:
		handle := dbus.ObjectPath(ev.SeatName)
		sess, ok := p.reg.Lookup(handle)
		if !ok {
			logger.Warnf("eis: SEAT_BIND for unknown session %s, disconnecting client", ev.SeatName)
			if err := p.backend.DisconnectClient(ev.SeatName); err != nil {
				logger.Warnf("eis: disconnect unknown client: %v", err)
			}
			return
		}
		caps := ev.Capabilities
		if masked, ok := sess.Payload().(capabilityMasker); ok {
			caps &= masked.CapabilityMask()
		}
		if err := p.backend.BindSeat(ev.SeatName, caps); err != nil {
			logger.Warnf("eis: bind seat %s: %v", ev.SeatName, err)
		}

	case EventClientDisconnect:
		if err := p.backend.DisconnectClient(ev.ClientDisconnect); err != nil {
			logger.Warnf("eis: disconnect client: %v", err)
		}
	}
}

// NewSocketPair creates a connected Unix domain socketpair for handing
// one end to the EIS backend and the other to ConnectToEIS's caller
// via SCM_RIGHTS (spec §4.C "ConnectToEIS returns an fd handle").
// Returns (serverFD, clientFD).
func NewSocketPair() (int, int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, -1, fmt.Errorf("eis: socketpair: %w", err)
	}
	return fds[0], fds[1], nil
}

// SendFD passes fd to the peer on sock via SCM_RIGHTS, the same
// ancillary-data handoff used for the keymap and dmabuf fds elsewhere
// in the pipeline.
func SendFD(sock int, fd int) error {
	rights := unix.UnixRights(fd)
	if err := unix.Sendmsg(sock, []byte{0}, rights, nil, 0); err != nil {
		return fmt.Errorf("eis: sendmsg SCM_RIGHTS: %w", err)
	}
	return nil
}
