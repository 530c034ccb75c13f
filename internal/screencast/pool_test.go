package screencast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeWlBuffer struct{ destroyed bool }

func (f *fakeWlBuffer) Destroy() error { f.destroyed = true; return nil }

type fakeShmAllocator struct{ built int }

func (f *fakeShmAllocator) NewShmBuffer(fd int, size int64, width, height int32, stride uint32, fourcc uint32) (interface{ Destroy() error }, error) {
	f.built++
	return &fakeWlBuffer{}, nil
}

func testConstraints() Constraints {
	return Constraints{
		Width:  64,
		Height: 64,
		ShmFormats: []ShmFormat{
			{Fourcc: fourccXRGB8888, Stride: 64 * 4},
		},
		HasShm: true,
	}
}

func TestPoolAcquireAllocatesThenReuses(t *testing.T) {
	alloc := &fakeShmAllocator{}
	p := NewPool(testConstraints(), false, alloc, nil)

	b1, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 1, alloc.built)

	p.Release(b1, nil)

	b2, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 1, alloc.built) // reused, not reallocated
	require.Same(t, b1, b2)
}

func TestPoolAcquireAllocatesNewWhenAllInUse(t *testing.T) {
	alloc := &fakeShmAllocator{}
	p := NewPool(testConstraints(), false, alloc, nil)

	_, err := p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)

	require.Equal(t, 2, alloc.built)
}

func TestPoolReleasePropagatesDamageToOtherBuffers(t *testing.T) {
	alloc := &fakeShmAllocator{}
	p := NewPool(testConstraints(), false, alloc, nil)

	b1, _ := p.Acquire()
	b2, _ := p.Acquire()
	p.Release(b1, nil)
	p.Release(b2, nil)

	damage := []Rect{{X: 0, Y: 0, Width: 10, Height: 10}}
	p.Release(b1, damage)

	require.Empty(t, b1.Damage) // b1 itself isn't told about its own submission's damage here
	require.Equal(t, damage, b2.Damage)
}

func TestPoolInvalidateClosesAllBuffers(t *testing.T) {
	alloc := &fakeShmAllocator{}
	p := NewPool(testConstraints(), false, alloc, nil)

	b1, _ := p.Acquire()
	wb := b1.WlBuffer.(*fakeWlBuffer)

	p.Invalidate()
	require.True(t, wb.destroyed)
}

func TestPoolAllocateErrorsWithoutUsableFormat(t *testing.T) {
	p := NewPool(Constraints{Width: 10, Height: 10}, false, &fakeShmAllocator{}, nil)
	_, err := p.Acquire()
	require.Error(t, err)
}
