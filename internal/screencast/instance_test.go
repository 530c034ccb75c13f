package screencast

import (
	"testing"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/eventloop"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/mediastream"
	"github.com/stretchr/testify/require"
)

type fakeCaptureSession struct {
	captureCalls int
	closeCalls   int
	failWith     error
}

func (f *fakeCaptureSession) CaptureFrame(buf *Buffer, damage []Rect) error {
	f.captureCalls++
	return f.failWith
}

func (f *fakeCaptureSession) Close() error {
	f.closeCalls++
	return nil
}

func newTestInstance(t *testing.T) (*Instance, *fakeCaptureSession, *eventloop.Loop) {
	t.Helper()
	loop, err := eventloop.New()
	require.NoError(t, err)
	t.Cleanup(func() { loop.Close() })

	session := &fakeCaptureSession{}
	stream := mediastream.New(nil, nil, nil)
	stream.HandleStateChanged(mediastream.StateStreaming)

	inst := NewInstance(loop, Target{Kind: TargetMonitor, Name: "DP-1"}, 0, BackendScreencopy, session, 0, stream)
	alloc := &fakeShmAllocator{}
	inst.SetPool(NewPool(testConstraints(), false, alloc, nil))

	return inst, session, loop
}

func TestInstanceRefcountStartsAtOne(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	require.Equal(t, 1, inst.Refcount())
}

func TestInstanceUnrefToZeroSchedulesTeardown(t *testing.T) {
	inst, session, loop := newTestInstance(t)

	inst.Unref("/org/freedesktop/portal/desktop/session/1")
	require.True(t, inst.Quit())

	loop.RunDueTimers()
	require.Equal(t, 1, session.closeCalls)
}

func TestInstanceRefThenUnrefKeepsAlive(t *testing.T) {
	inst, _, loop := newTestInstance(t)
	inst.Ref("/session/2")
	require.Equal(t, 2, inst.Refcount())

	inst.Unref("/session/2")
	require.Equal(t, 1, inst.Refcount())
	require.False(t, inst.Quit())

	loop.RunDueTimers()
}

func TestCaptureNextSkippedWhenNotStreaming(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	defer loop.Close()

	session := &fakeCaptureSession{}
	stream := mediastream.New(nil, nil, nil) // default state: unconnected, not streaming

	inst := NewInstance(loop, Target{Kind: TargetMonitor, Name: "DP-1"}, 0, BackendScreencopy, session, 0, stream)
	inst.SetPool(NewPool(testConstraints(), false, &fakeShmAllocator{}, nil))

	inst.CaptureNext()
	require.Equal(t, 0, session.captureCalls)
}

func TestCaptureNextCallsCaptureFrameWhenStreaming(t *testing.T) {
	inst, session, _ := newTestInstance(t)
	inst.CaptureNext()
	require.Equal(t, 1, session.captureCalls)
}

func TestHandleReadyClearsInFlightFrame(t *testing.T) {
	inst, session, _ := newTestInstance(t)
	inst.CaptureNext()
	require.Equal(t, 1, session.captureCalls)

	inst.HandleDamage(Rect{X: 0, Y: 0, Width: 5, Height: 5})
	inst.HandleReady()

	require.Nil(t, inst.current)
}

func TestHandleFrameFailedBufferConstraintsReenqueues(t *testing.T) {
	inst, session, _ := newTestInstance(t)
	inst.CaptureNext()
	require.Equal(t, 1, session.captureCalls)

	inst.HandleFrameFailed(FailBufferConstraints)
	require.Equal(t, 2, session.captureCalls)
}

func TestHandleFrameFailedStoppedSetsQuit(t *testing.T) {
	inst, session, loop := newTestInstance(t)
	inst.CaptureNext()

	inst.HandleFrameFailed(FailStopped)
	require.True(t, inst.Quit())

	loop.RunDueTimers()
	require.Equal(t, 1, session.closeCalls)
}
