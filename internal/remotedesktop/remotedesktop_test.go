package remotedesktop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDevicesReportsOnlyActiveBackends(t *testing.T) {
	s := &Session{} // no pointer/keyboard constructed (no live compositor in tests)
	require.Equal(t, DeviceType(0), s.Devices())
}

func TestNotifyMethodsAreNoOpsWithoutBackend(t *testing.T) {
	s := &Session{startTime: time.Now()}

	require.NoError(t, s.NotifyPointerMotion(1, 1))
	require.NoError(t, s.NotifyPointerMotionAbsolute(10, 10, 1920, 1080))
	require.NoError(t, s.NotifyPointerButton(1, true))
	require.NoError(t, s.NotifyPointerAxis(AxisVertical, 1.0, false))
	require.NoError(t, s.NotifyPointerAxisDiscrete(AxisHorizontal, 1))
	require.NoError(t, s.NotifyKeyboardKeycode(30, true))
	require.NoError(t, s.NotifyKeyboardModifiers(0, 0, 0, 0))
	require.NoError(t, s.NotifyTouchDown(0, 0, 0))
	require.NoError(t, s.NotifyTouchMotion(0, 0, 0))
	require.NoError(t, s.NotifyTouchUp(0))
}

func TestCloseIsSafeOnZeroValueSession(t *testing.T) {
	s := &Session{}
	require.NotPanics(t, func() { s.Close() })
}

func TestDeviceTypeBitmaskValues(t *testing.T) {
	require.Equal(t, DeviceType(1), DeviceKeyboard)
	require.Equal(t, DeviceType(2), DevicePointer)
	require.Equal(t, DeviceType(4), DeviceTouch)
}

func TestTimestampIncreasesMonotonically(t *testing.T) {
	s := &Session{startTime: time.Now()}
	first := s.ts()
	time.Sleep(time.Millisecond)
	second := s.ts()
	require.Greater(t, second, first)
}
