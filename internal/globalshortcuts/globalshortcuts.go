// Package globalshortcuts implements the GlobalShortcuts portal (spec
// §4.C "GlobalShortcuts"): shortcut registration against the
// compositor's hyprland-global-shortcuts-manager protocol, and the
// Activated/Deactivated/ShortcutsChanged signal fan-out.
package globalshortcuts

import (
	"sync"
	"time"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
)

// Timestamp splits a point in time the way the bus signals carry it
// (spec §4.C "timestamp splits into tv_sec_hi, tv_sec_lo, tv_nsec").
type Timestamp struct {
	SecHi uint32
	SecLo uint32
	Nsec  uint32
}

// NowTimestamp captures the current time in the split representation.
func NowTimestamp() Timestamp {
	now := time.Now()
	sec := uint64(now.Unix())
	return Timestamp{
		SecHi: uint32(sec >> 32),
		SecLo: uint32(sec & 0xffffffff),
		Nsec:  uint32(now.Nanosecond()),
	}
}

// Shortcut is one registered global shortcut.
type Shortcut struct {
	ID           string
	Description  string
	TriggerHint  string
	ParentWindow string

	// protoHandle is the bound hyprland_global_shortcuts_manager_v1
	// object; kept opaque so this package has no hard Wayland client
	// dependency.
	protoHandle interface{ Destroy() error }
}

// Manager is the protocol-facing side of one GlobalShortcuts backend
// connection: it registers shortcuts with the compositor and
// dispatches pressed/released events 1:1 to Activated/Deactivated
// signals (spec §4.C).
type Manager interface {
	// Register binds one shortcut with (name, parent_window,
	// description, trigger_hint) and returns its protocol handle.
	Register(s *Shortcut) (interface{ Destroy() error }, error)
}

// Session tracks the shortcuts bound for one GlobalShortcuts portal
// session.
type Session struct {
	mu sync.Mutex

	mgr       Manager
	shortcuts map[string]*Shortcut

	onActivated       func(id string, ts Timestamp)
	onDeactivated     func(id string, ts Timestamp)
	onShortcutsChanged func()
}

// NewSession creates an empty GlobalShortcuts session bound to mgr.
func NewSession(mgr Manager) *Session {
	return &Session{mgr: mgr, shortcuts: make(map[string]*Shortcut)}
}

// OnActivated/OnDeactivated/OnShortcutsChanged register the signal
// emitters the portal D-Bus layer wires to the actual bus Emit calls.
func (s *Session) OnActivated(fn func(id string, ts Timestamp))       { s.onActivated = fn }
func (s *Session) OnDeactivated(fn func(id string, ts Timestamp))     { s.onDeactivated = fn }
func (s *Session) OnShortcutsChanged(fn func())                       { s.onShortcutsChanged = fn }

// BindShortcuts registers new shortcuts, skipping ids already bound
// (idempotent re-binding, spec §4.G "unknown dict keys: log and
// continue" generalizes to "already-bound ids: log and continue").
func (s *Session) BindShortcuts(shortcuts []Shortcut) ([]Shortcut, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bound []Shortcut
	for i := range shortcuts {
		sc := shortcuts[i]
		if _, exists := s.shortcuts[sc.ID]; exists {
			logger.Debugf("globalshortcuts: %s already bound, skipping", sc.ID)
			continue
		}
		handle, err := s.mgr.Register(&sc)
		if err != nil {
			logger.Warnf("globalshortcuts: register %s: %v", sc.ID, err)
			continue
		}
		sc.protoHandle = handle
		s.shortcuts[sc.ID] = &sc
		bound = append(bound, sc)
	}

	if s.onShortcutsChanged != nil {
		s.onShortcutsChanged()
	}
	return bound, nil
}

// ListShortcuts returns every currently bound shortcut.
func (s *Session) ListShortcuts() []Shortcut {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Shortcut, 0, len(s.shortcuts))
	for _, sc := range s.shortcuts {
		out = append(out, *sc)
	}
	return out
}

// HandlePressed dispatches a compositor pressed() event 1:1 to
// Activated (spec §4.C "the compositor's pressed/released events map
// 1:1 to signals").
func (s *Session) HandlePressed(id string) {
	s.mu.Lock()
	cb := s.onActivated
	_, known := s.shortcuts[id]
	s.mu.Unlock()
	if !known {
		logger.Warnf("globalshortcuts: pressed event for unknown shortcut %s", id)
		return
	}
	if cb != nil {
		cb(id, NowTimestamp())
	}
}

// HandleReleased dispatches a compositor released() event to
// Deactivated.
func (s *Session) HandleReleased(id string) {
	s.mu.Lock()
	cb := s.onDeactivated
	_, known := s.shortcuts[id]
	s.mu.Unlock()
	if !known {
		logger.Warnf("globalshortcuts: released event for unknown shortcut %s", id)
		return
	}
	if cb != nil {
		cb(id, NowTimestamp())
	}
}

// Close destroys every registered shortcut's protocol handle exactly
// once (spec §5 "Resource policy").
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sc := range s.shortcuts {
		if sc.protoHandle != nil {
			if err := sc.protoHandle.Destroy(); err != nil {
				logger.Warnf("globalshortcuts: destroy %s: %v", id, err)
			}
		}
	}
	s.shortcuts = make(map[string]*Shortcut)
}
