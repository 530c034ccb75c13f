// Package screencast implements the ScreenCast capture pipeline (spec
// §4.E): buffer constraints negotiation, the buffer pool, damage
// tracking, FPS limiting, and the wiring that drives a capture backend
// into a media stream.
package screencast

import (
	"fmt"
	"math/rand"

	"golang.org/x/sys/unix"
)

// BufferVariant distinguishes the two wire representations a Buffer can
// take (spec §2 "Buffer").
type BufferVariant int

const (
	VariantSHM BufferVariant = iota
	VariantDMABUF
)

// Rect is a damage rectangle in buffer-local coordinates.
type Rect struct {
	X, Y, Width, Height int32
}

// Plane is one memory plane of a DMA-BUF buffer.
type Plane struct {
	FD     int
	Offset uint32
	Stride uint32
	Size   uint32
}

// Buffer is a concrete allocated frame buffer, SHM or DMA-BUF (spec §2
// "Buffer"). Damage accumulates across frames and is cleared only when
// that specific buffer's frame completes (spec §4.E "Damage tracking").
type Buffer struct {
	Variant  BufferVariant
	Width    int32
	Height   int32
	Fourcc   uint32
	Modifier uint64
	Stride   uint32

	Planes []Plane // len 1 for SHM

	Damage []Rect

	// WlBuffer is the bound wl_buffer wire handle; kept as an opaque
	// interface so this package does not hard-depend on the Wayland
	// client library's concrete type.
	WlBuffer interface{ Destroy() error }

	inUse bool
}

// AddDamage appends a damage rectangle, to be emitted on this buffer's
// next submission.
func (b *Buffer) AddDamage(r Rect) {
	b.Damage = append(b.Damage, r)
}

// ClearDamage drops all accumulated damage after a successful `ready`.
func (b *Buffer) ClearDamage() {
	b.Damage = b.Damage[:0]
}

// Close releases every fd and wire object owned by this buffer exactly
// once (spec §5 "Resource policy").
func (b *Buffer) Close() {
	if b.WlBuffer != nil {
		_ = b.WlBuffer.Destroy()
		b.WlBuffer = nil
	}
	for _, p := range b.Planes {
		if p.FD >= 0 {
			unix.Close(p.FD)
		}
	}
	b.Planes = nil
}

const shmNameRetries = 100

// CreateAnonShm opens an anonymous shared-memory fd sized size with
// memfd_create, named /xdpw-shm-XXXXXX (six random hex digits) and with
// the close-on-exec flag set. A memfd is never linked into the
// filesystem, so there is no name collision and nothing to unlink; a
// failed create or ftruncate is retried, up to 100 attempts in all.
func CreateAnonShm(size int64) (int, error) {
	var lastErr error
	for i := 0; i < shmNameRetries; i++ {
		name := fmt.Sprintf("/xdpw-shm-%06x", rand.Intn(1<<24))
		fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
		if err != nil {
			lastErr = err
			continue
		}
		if err := unix.Ftruncate(fd, size); err != nil {
			unix.Close(fd)
			lastErr = err
			continue
		}
		return fd, nil
	}
	return -1, fmt.Errorf("screencast: create anon shm: %w", lastErr)
}

// bytesPerPixel returns the SHM stride multiplier for a handful of
// fourcc codes the pipeline actually negotiates. Unknown formats
// default to 4 (32bpp), the overwhelmingly common case.
func bytesPerPixel(fourcc uint32) uint32 {
	switch fourcc {
	case fourccARGB8888, fourccXRGB8888, fourccABGR8888, fourccXBGR8888:
		return 4
	case fourccRGB888, fourccBGR888:
		return 3
	case fourccRGB565, fourccBGR565:
		return 2
	default:
		return 4
	}
}

// Known DRM fourcc codes, named the way the wire protocol and original
// implementation spell them.
const (
	fourccARGB8888 = 0x34325241
	fourccXRGB8888 = 0x34325258
	fourccABGR8888 = 0x34324241
	fourccXBGR8888 = 0x34324258
	fourccRGB888   = 0x34324752
	fourccBGR888   = 0x34324742
	fourccRGB565   = 0x36314752
	fourccBGR565   = 0x36314742
)

// strideFor computes SHM stride as bytes_per_pixel(fourcc) × width, the
// exact formula spec §4.E "Buffer constraints negotiation" mandates,
// evaluated at `done` time.
func strideFor(fourcc uint32, width int32) uint32 {
	return bytesPerPixel(fourcc) * uint32(width)
}

// ParsePixelFormat resolves the -p/--pixelformat CLI override to a DRM
// fourcc code. Only the two formats the flag accepts are recognized;
// anything else is a usage error.
func ParsePixelFormat(name string) (uint32, error) {
	switch name {
	case "BGRx":
		return fourccXBGR8888, nil
	case "RGBx":
		return fourccXRGB8888, nil
	default:
		return 0, fmt.Errorf("screencast: unknown pixel format %q, want BGRx or RGBx", name)
	}
}
