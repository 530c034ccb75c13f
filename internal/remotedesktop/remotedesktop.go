// Package remotedesktop implements the RemoteDesktop portal's event
// injection backend (spec §4.C "RemoteDesktop"): virtual pointer and
// keyboard emulation via wayland-virtual-input-go, wired the way the
// teacher's client-injection path drives those managers.
package remotedesktop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/wayland-virtual-input-go/virtual_keyboard"
	"github.com/bnema/wayland-virtual-input-go/virtual_pointer"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
)

// DeviceType mirrors the RemoteDesktop SelectDevices bitmask (spec
// §4.C "types: u ∈ {Keyboard=1, Pointer=2, Touch=4}").
type DeviceType uint32

const (
	DeviceKeyboard DeviceType = 1 << 0
	DevicePointer  DeviceType = 1 << 1
	DeviceTouch    DeviceType = 1 << 2
)

// AxisDirection selects scroll axis.
type AxisDirection int

const (
	AxisVertical AxisDirection = iota
	AxisHorizontal
)

// Session drives one RemoteDesktop portal session's virtual input
// devices. Timestamps on every Notify* call are milliseconds since
// startTime (spec §4.C "Timestamps emitted on the virtual-pointer
// protocol are milliseconds since the session's start time").
type Session struct {
	mu sync.Mutex

	devices   DeviceType
	startTime time.Time

	pointerMgr  *virtual_pointer.VirtualPointerManager
	keyboardMgr *virtual_keyboard.VirtualKeyboardManager
	pointer     *virtual_pointer.VirtualPointer
	keyboard    *virtual_keyboard.VirtualKeyboard
}

// NewSession creates the virtual device managers needed for the
// negotiated device mask. Missing managers degrade gracefully: the
// corresponding Notify* calls become no-ops rather than hard failures,
// matching spec §4.G "Recoverable: missing optional features".
func NewSession(ctx context.Context, devices DeviceType) (*Session, error) {
	s := &Session{devices: devices, startTime: time.Now()}

	if devices&DevicePointer != 0 {
		mgr, err := virtual_pointer.NewVirtualPointerManager(ctx)
		if err != nil {
			logger.Warnf("remotedesktop: virtual pointer manager unavailable: %v", err)
		} else {
			s.pointerMgr = mgr
			ptr, err := mgr.CreatePointer()
			if err != nil {
				logger.Warnf("remotedesktop: create virtual pointer: %v", err)
			} else {
				s.pointer = ptr
			}
		}
	}

	if devices&DeviceKeyboard != 0 {
		mgr, err := virtual_keyboard.NewVirtualKeyboardManager(ctx)
		if err != nil {
			logger.Warnf("remotedesktop: virtual keyboard manager unavailable: %v", err)
		} else {
			s.keyboardMgr = mgr
			kbd, err := mgr.CreateKeyboard()
			if err != nil {
				logger.Warnf("remotedesktop: create virtual keyboard: %v", err)
			} else {
				s.keyboard = kbd
			}
		}
	}

	return s, nil
}

// Devices reports which device classes are actually active (pointer or
// keyboard creation may have failed even though negotiated), for the
// Start reply's devices mask.
func (s *Session) Devices() DeviceType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active DeviceType
	if s.pointer != nil {
		active |= DevicePointer
	}
	if s.keyboard != nil {
		active |= DeviceKeyboard
	}
	return active
}

func (s *Session) ts() time.Duration {
	return time.Since(s.startTime)
}

// NotifyPointerMotion injects relative pointer motion.
func (s *Session) NotifyPointerMotion(dx, dy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pointer == nil {
		return nil
	}
	if err := s.pointer.Motion(s.ts(), dx, dy); err != nil {
		return fmt.Errorf("remotedesktop: pointer motion: %w", err)
	}
	return s.pointer.Frame()
}

// NotifyPointerMotionAbsolute injects absolute pointer motion within a
// width×height coordinate space.
func (s *Session) NotifyPointerMotionAbsolute(x, y uint32, width, height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pointer == nil {
		return nil
	}
	if err := s.pointer.MotionAbsolute(s.ts(), x, y, width, height); err != nil {
		return fmt.Errorf("remotedesktop: pointer motion absolute: %w", err)
	}
	return s.pointer.Frame()
}

// NotifyPointerButton injects a pointer button press/release.
func (s *Session) NotifyPointerButton(button uint32, pressed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pointer == nil {
		return nil
	}
	state := virtual_pointer.ButtonStateReleased
	if pressed {
		state = virtual_pointer.ButtonStatePressed
	}
	if err := s.pointer.Button(s.ts(), button, state); err != nil {
		return fmt.Errorf("remotedesktop: pointer button: %w", err)
	}
	return s.pointer.Frame()
}

// NotifyPointerAxis injects a continuous scroll delta. finish closes
// out the axis source sequence (spec §4.C "notably finish: b on
// axis").
func (s *Session) NotifyPointerAxis(dir AxisDirection, value float64, finish bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pointer == nil {
		return nil
	}
	if err := s.pointer.AxisSource(virtual_pointer.AxisSourceWheel); err != nil {
		return fmt.Errorf("remotedesktop: axis source: %w", err)
	}
	axis := virtual_pointer.AxisVertical
	if dir == AxisHorizontal {
		axis = virtual_pointer.AxisHorizontal
	}
	if err := s.pointer.Axis(s.ts(), axis, value); err != nil {
		return fmt.Errorf("remotedesktop: pointer axis: %w", err)
	}
	return s.pointer.Frame()
}

// NotifyPointerAxisDiscrete injects a discrete (click-stepped) scroll.
func (s *Session) NotifyPointerAxisDiscrete(dir AxisDirection, steps int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pointer == nil {
		return nil
	}
	axis := virtual_pointer.AxisVertical
	if dir == AxisHorizontal {
		axis = virtual_pointer.AxisHorizontal
	}
	if err := s.pointer.AxisDiscrete(s.ts(), axis, float64(steps), steps); err != nil {
		return fmt.Errorf("remotedesktop: pointer axis discrete: %w", err)
	}
	return s.pointer.Frame()
}

// NotifyKeyboardKeycode injects a raw scancode press/release.
func (s *Session) NotifyKeyboardKeycode(keycode uint32, pressed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyboard == nil {
		return nil
	}
	state := virtual_keyboard.KeyStateReleased
	if pressed {
		state = virtual_keyboard.KeyStatePressed
	}
	return s.keyboard.Key(s.ts(), keycode, state)
}

// NotifyKeyboardModifiers forwards an XKB modifier mask update.
func (s *Session) NotifyKeyboardModifiers(depressed, latched, locked, group uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyboard == nil {
		return nil
	}
	return s.keyboard.Modifiers(depressed, latched, locked, group)
}

// NotifyTouchDown/Motion/Up are recoverable no-ops: touch emulation has
// no wayland-virtual-input-go backing in this stack, so the portal
// replies success but does not forward the event (spec §4.G
// "Recoverable: missing optional features").
func (s *Session) NotifyTouchDown(slot uint32, x, y float64) error { return nil }
func (s *Session) NotifyTouchMotion(slot uint32, x, y float64) error { return nil }
func (s *Session) NotifyTouchUp(slot uint32) error { return nil }

// Close releases every virtual device and manager exactly once (spec
// §5 "Resource policy").
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pointer != nil {
		if err := s.pointer.Close(); err != nil {
			logger.Warnf("remotedesktop: close virtual pointer: %v", err)
		}
		s.pointer = nil
	}
	if s.keyboard != nil {
		if err := s.keyboard.Close(); err != nil {
			logger.Warnf("remotedesktop: close virtual keyboard: %v", err)
		}
		s.keyboard = nil
	}
	if s.pointerMgr != nil {
		if err := s.pointerMgr.Close(); err != nil {
			logger.Warnf("remotedesktop: close pointer manager: %v", err)
		}
		s.pointerMgr = nil
	}
	if s.keyboardMgr != nil {
		if err := s.keyboardMgr.Close(); err != nil {
			logger.Warnf("remotedesktop: close keyboard manager: %v", err)
		}
		s.keyboardMgr = nil
	}
}
