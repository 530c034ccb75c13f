package screencast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstraintsEqualComparesSizeAndFormats(t *testing.T) {
	a := Constraints{Width: 1920, Height: 1080, ShmFormats: []ShmFormat{{Fourcc: fourccXRGB8888, Stride: 7680}}}
	b := Constraints{Width: 1920, Height: 1080, ShmFormats: []ShmFormat{{Fourcc: fourccXRGB8888, Stride: 7680}}}
	require.True(t, a.Equal(b))

	c := Constraints{Width: 1280, Height: 720, ShmFormats: a.ShmFormats}
	require.False(t, a.Equal(c))
}

func TestPendingConstraintsDoneComputesStride(t *testing.T) {
	p := newPendingConstraints()
	p.onBufferSize(1920, 1080)
	p.onShmFormat(fourccXRGB8888)
	c := p.done()

	require.Equal(t, int32(1920), c.Width)
	require.True(t, c.HasShm)
	require.Equal(t, uint32(1920*4), c.ShmFormats[0].Stride)
}

func TestPendingConstraintsDoneTracksDmabuf(t *testing.T) {
	p := newPendingConstraints()
	p.onBufferSize(640, 480)
	p.onDmabufDevice(42)
	p.onDmabufFormat(fourccARGB8888, 0)
	c := p.done()

	require.True(t, c.HasDmabuf)
	require.Equal(t, uint64(42), c.DmabufDevice)
	require.Len(t, c.DmabufFormats, 1)
}
