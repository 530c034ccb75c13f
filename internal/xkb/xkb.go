// Package xkb compiles a Wayland keymap fd into an XKB keymap+state,
// and tracks modifier changes (spec §4.F "Keymap event: dup the fd,
// mmap it locally, compile into xkb keymap+state").
//
// The xkbcommon binding itself is cgo-only; a !cgo build tag variant
// provides a stub so the package still compiles (degraded: modifier
// translation becomes a no-op) when cgo is disabled.
package xkb

// State holds a compiled keymap and its live modifier/group state for
// one keyboard device.
type State interface {
	// UpdateMask feeds a wl_keyboard modifiers event into xkb_state
	// and returns the resulting effective modifier mask and layout
	// group, forwarded to EIS (spec §4.F "Keyboard modifiers").
	UpdateMask(depressed, latched, locked uint32, group uint32) (mask uint32, effectiveGroup uint32)
	// Close releases the underlying xkb_state and xkb_keymap.
	Close()
}
