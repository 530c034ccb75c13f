package screencast

import (
	"fmt"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
)

// ShmPoolAllocator creates a wl_shm_pool-backed buffer for one SHM fd,
// abstracted so this package does not hard-depend on the concrete
// Wayland client binding.
type ShmPoolAllocator interface {
	// NewShmBuffer imports fd (size bytes) and creates a buffer of the
	// given geometry and format.
	NewShmBuffer(fd int, size int64, width, height int32, stride uint32, fourcc uint32) (interface{ Destroy() error }, error)
}

// DmabufAllocator creates a linux-dmabuf-backed buffer.
type DmabufAllocator interface {
	NewDmabufBuffer(planes []Plane, width, height int32, fourcc uint32, modifier uint64) (interface{ Destroy() error }, error)
}

// Pool is the buffer pool for one ScreencastInstance: populated lazily
// as the media framework requests buffers, and invalidated wholesale
// whenever BufferConstraints changes (spec §4.E "Buffer pool").
type Pool struct {
	constraints Constraints
	useDmabuf   bool

	shmAlloc    ShmPoolAllocator
	dmabufAlloc DmabufAllocator

	buffers []*Buffer
}

// NewPool creates an empty pool bound to the given constraints and
// allocators. useDmabuf selects DMA-BUF over SHM when both are
// available (driven by force_mod_linear / backend capability).
func NewPool(c Constraints, useDmabuf bool, shmAlloc ShmPoolAllocator, dmabufAlloc DmabufAllocator) *Pool {
	return &Pool{constraints: c, useDmabuf: useDmabuf, shmAlloc: shmAlloc, dmabufAlloc: dmabufAlloc}
}

// Constraints returns the snapshot this pool was built from.
func (p *Pool) Constraints() Constraints { return p.constraints }

// Invalidate closes every buffer in the pool. Called when constraints
// become dirty, immediately before the pool itself is replaced (spec
// §4.E "the current pool is invalidated").
func (p *Pool) Invalidate() {
	for _, b := range p.buffers {
		b.Close()
	}
	p.buffers = nil
}

// Acquire returns a free buffer, allocating a new one if none is free.
func (p *Pool) Acquire() (*Buffer, error) {
	for _, b := range p.buffers {
		if !b.inUse {
			b.inUse = true
			return b, nil
		}
	}
	b, err := p.allocate()
	if err != nil {
		return nil, err
	}
	b.inUse = true
	p.buffers = append(p.buffers, b)
	return b, nil
}

// Release marks a buffer free for reuse and propagates any damage
// reported on it to every other buffer in the pool, since they have not
// seen that change yet (spec §4.E "Damage tracking").
func (p *Pool) Release(b *Buffer, damage []Rect) {
	b.inUse = false
	if len(damage) == 0 {
		return
	}
	for _, other := range p.buffers {
		if other == b {
			continue
		}
		other.Damage = append(other.Damage, damage...)
	}
}

func (p *Pool) allocate() (*Buffer, error) {
	if p.useDmabuf && p.constraints.HasDmabuf {
		return p.allocateDmabuf()
	}
	if p.constraints.HasShm {
		return p.allocateShm()
	}
	return nil, fmt.Errorf("screencast: no usable buffer format in current constraints")
}

func (p *Pool) allocateShm() (*Buffer, error) {
	fmt0 := p.constraints.ShmFormats[0]
	size := int64(fmt0.Stride) * int64(p.constraints.Height)

	fd, err := CreateAnonShm(size)
	if err != nil {
		return nil, err
	}

	wlBuf, err := p.shmAlloc.NewShmBuffer(fd, size, p.constraints.Width, p.constraints.Height, fmt0.Stride, fmt0.Fourcc)
	if err != nil {
		return nil, err
	}

	logger.Debugf("screencast: allocated shm buffer %dx%d stride=%d fourcc=0x%x", p.constraints.Width, p.constraints.Height, fmt0.Stride, fmt0.Fourcc)

	return &Buffer{
		Variant:  VariantSHM,
		Width:    p.constraints.Width,
		Height:   p.constraints.Height,
		Fourcc:   fmt0.Fourcc,
		Stride:   fmt0.Stride,
		Planes:   []Plane{{FD: fd, Stride: fmt0.Stride, Size: uint32(size)}},
		WlBuffer: wlBuf,
	}, nil
}

func (p *Pool) allocateDmabuf() (*Buffer, error) {
	dmaFmt := p.constraints.DmabufFormats[0]

	// Real plane allocation goes through GBM, which is external to this
	// module (spec "Out of scope: GBM/DRM buffer allocation"); callers
	// supply plane fds already allocated by that collaborator via
	// DmabufAllocator.
	wlBuf, err := p.dmabufAlloc.NewDmabufBuffer(nil, p.constraints.Width, p.constraints.Height, dmaFmt.Fourcc, dmaFmt.Modifier)
	if err != nil {
		return nil, err
	}

	return &Buffer{
		Variant:  VariantDMABUF,
		Width:    p.constraints.Width,
		Height:   p.constraints.Height,
		Fourcc:   dmaFmt.Fourcc,
		Modifier: dmaFmt.Modifier,
		WlBuffer: wlBuf,
	}, nil
}
