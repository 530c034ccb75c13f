//go:build !cgo

package xkb

import "fmt"

// noopState degrades modifier translation to identity passthrough when
// cgo (and therefore xkbcommon) is unavailable.
type noopState struct{}

// Compile refuses to compile a keymap without cgo; callers treat this
// as a recoverable missing-optional-feature per spec §4.G.
func Compile(fd int, size uint32) (State, error) {
	return nil, fmt.Errorf("xkb: xkbcommon unavailable (built without cgo)")
}

func (noopState) UpdateMask(depressed, latched, locked uint32, group uint32) (uint32, uint32) {
	return depressed | latched | locked, group
}

func (noopState) Close() {}
