//go:build cgo

package xkb

/*
#cgo pkg-config: xkbcommon
#include <xkbcommon/xkbcommon.h>
#include <sys/mman.h>
#include <unistd.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

type cgoState struct {
	ctx    *C.struct_xkb_context
	keymap *C.struct_xkb_keymap
	state  *C.struct_xkb_state

	mapAddr unsafe.Pointer
	mapLen  int
}

// Compile mmaps fd (size bytes, format xkb_keymap_format, conventionally
// XKB_KEYMAP_FORMAT_TEXT_V1) and compiles it into an xkb keymap+state
// (spec §4.F "compile into xkb keymap+state"). The caller owns fd and
// may close it after Compile returns; Compile dups what it needs.
func Compile(fd int, size uint32) (State, error) {
	dupFd, err := unix.Dup(fd)
	if err != nil {
		return nil, fmt.Errorf("xkb: dup keymap fd: %w", err)
	}

	addr, err := unix.Mmap(dupFd, 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		unix.Close(dupFd)
		return nil, fmt.Errorf("xkb: mmap keymap: %w", err)
	}
	unix.Close(dupFd)

	ctx := C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS)
	if ctx == nil {
		unix.Munmap(addr)
		return nil, fmt.Errorf("xkb: xkb_context_new failed")
	}

	keymap := C.xkb_keymap_new_from_buffer(
		ctx,
		(*C.char)(unsafe.Pointer(&addr[0])),
		C.size_t(size)-1, // exclude the NUL the compositor includes in size
		C.XKB_KEYMAP_FORMAT_TEXT_V1,
		C.XKB_KEYMAP_COMPILE_NO_FLAGS,
	)
	unix.Munmap(addr)
	if keymap == nil {
		C.xkb_context_unref(ctx)
		return nil, fmt.Errorf("xkb: xkb_keymap_new_from_buffer failed")
	}

	state := C.xkb_state_new(keymap)
	if state == nil {
		C.xkb_keymap_unref(keymap)
		C.xkb_context_unref(ctx)
		return nil, fmt.Errorf("xkb: xkb_state_new failed")
	}

	return &cgoState{ctx: ctx, keymap: keymap, state: state}, nil
}

func (s *cgoState) UpdateMask(depressed, latched, locked uint32, group uint32) (uint32, uint32) {
	C.xkb_state_update_mask(
		s.state,
		C.xkb_mod_mask_t(depressed),
		C.xkb_mod_mask_t(latched),
		C.xkb_mod_mask_t(locked),
		C.xkb_layout_index_t(group),
		C.xkb_layout_index_t(group),
		C.xkb_layout_index_t(group),
	)
	mask := uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_EFFECTIVE))
	effGroup := uint32(C.xkb_state_serialize_layout(s.state, C.XKB_STATE_LAYOUT_EFFECTIVE))
	return mask, effGroup
}

func (s *cgoState) Close() {
	if s.state != nil {
		C.xkb_state_unref(s.state)
		s.state = nil
	}
	if s.keymap != nil {
		C.xkb_keymap_unref(s.keymap)
		s.keymap = nil
	}
	if s.ctx != nil {
		C.xkb_context_unref(s.ctx)
		s.ctx = nil
	}
}
