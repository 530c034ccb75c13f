package screencast

// ShmFormat is one SHM pixel format the compositor advertises, with the
// per-row stride computed at `done` time (spec §2 "BufferConstraints").
type ShmFormat struct {
	Fourcc uint32
	Stride uint32
}

// DmabufFormat is one (fourcc, modifier) pair the compositor supports
// for linux-dmabuf import.
type DmabufFormat struct {
	Fourcc   uint32
	Modifier uint64
}

// Constraints is an immutable snapshot of the negotiated buffer shape.
// Replacement is atomic: a new Constraints value supersedes the old one
// wholesale, never mutated in place (spec §2 "BufferConstraints").
type Constraints struct {
	Width  int32
	Height int32

	ShmFormats    []ShmFormat
	DmabufFormats []DmabufFormat
	DmabufDevice  uint64 // GBM device dev_t, 0 if unset

	HasShm    bool
	HasDmabuf bool
}

// Equal reports whether two constraint snapshots describe the same
// buffer shape (spec §4.E "on done, the pending set is compared to the
// current set").
func (c Constraints) Equal(o Constraints) bool {
	if c.Width != o.Width || c.Height != o.Height || c.DmabufDevice != o.DmabufDevice {
		return false
	}
	if len(c.ShmFormats) != len(o.ShmFormats) || len(c.DmabufFormats) != len(o.DmabufFormats) {
		return false
	}
	for i := range c.ShmFormats {
		if c.ShmFormats[i] != o.ShmFormats[i] {
			return false
		}
	}
	for i := range c.DmabufFormats {
		if c.DmabufFormats[i] != o.DmabufFormats[i] {
			return false
		}
	}
	return true
}

// pendingConstraints accumulates buffer_size/shm_format/dmabuf_device/
// dmabuf_format events until a terminating `done` (spec §4.E).
type pendingConstraints struct {
	width, height int32
	shmFormats    []uint32 // fourccs; stride computed at done
	dmabufDevice  uint64
	dmabufFormats []DmabufFormat
}

func newPendingConstraints() *pendingConstraints {
	return &pendingConstraints{}
}

func (p *pendingConstraints) onBufferSize(width, height int32) {
	p.width, p.height = width, height
}

func (p *pendingConstraints) onShmFormat(fourcc uint32) {
	p.shmFormats = append(p.shmFormats, fourcc)
}

func (p *pendingConstraints) onDmabufDevice(dev uint64) {
	p.dmabufDevice = dev
}

func (p *pendingConstraints) onDmabufFormat(fourcc uint32, modifier uint64) {
	p.dmabufFormats = append(p.dmabufFormats, DmabufFormat{Fourcc: fourcc, Modifier: modifier})
}

// done finalizes the pending set into a Constraints snapshot, computing
// SHM stride as bytes_per_pixel(fourcc) × width (spec §4.E).
func (p *pendingConstraints) done() Constraints {
	c := Constraints{
		Width:        p.width,
		Height:       p.height,
		DmabufDevice: p.dmabufDevice,
		HasShm:       len(p.shmFormats) > 0,
		HasDmabuf:    len(p.dmabufFormats) > 0,
	}
	for _, f := range p.shmFormats {
		c.ShmFormats = append(c.ShmFormats, ShmFormat{Fourcc: f, Stride: strideFor(f, p.width)})
	}
	c.DmabufFormats = p.dmabufFormats
	return c
}
