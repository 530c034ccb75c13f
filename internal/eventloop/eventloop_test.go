package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestTimersFireInOrderWithTieBreakByInsertion(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var order []int
	now := time.Now()

	l.AddTimer(now.Add(10*time.Millisecond), func() { order = append(order, 1) })
	l.AddTimer(now.Add(10*time.Millisecond), func() { order = append(order, 2) })
	l.AddTimer(now.Add(5*time.Millisecond), func() {
		order = append(order, 0)
		l.Stop()
	})

	// Manually drive timer firing without blocking on epoll, to keep this
	// test fast and deterministic.
	time.Sleep(12 * time.Millisecond)
	l.runExpiredTimers()

	require.Equal(t, []int{0, 1, 2}, order)
}

func TestCancelTimerFromWithinItself(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	fired := 0
	var h TimerHandle
	h = l.AddTimer(time.Now(), func() {
		fired++
		l.CancelTimer(h) // must not double-free or panic
	})
	_ = h

	l.runExpiredTimers()
	require.Equal(t, 1, fired)
	require.Equal(t, 0, l.timers.Len())
}

func TestRegisterFDAndPipeWakesUp(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	gotData := make(chan struct{}, 1)
	require.NoError(t, l.RegisterFD(fds[0], unix.EPOLLIN, "test-pipe", func(events uint32) {
		buf := make([]byte, 8)
		unix.Read(fds[0], buf)
		gotData <- struct{}{}
		l.Stop()
	}))

	go func() {
		time.Sleep(5 * time.Millisecond)
		unix.Write(fds[1], []byte("hi"))
	}()

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	select {
	case <-gotData:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fd readiness")
	}
	require.NoError(t, <-done)
}

func TestRemoveFDDuringCallback(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	defer unix.Close(fds[1])

	calls := 0
	require.NoError(t, l.RegisterFD(fds[0], unix.EPOLLIN, "self-removing", func(events uint32) {
		calls++
		l.RemoveFD(fds[0])
		unix.Close(fds[0])
		l.Stop()
	}))

	go func() {
		time.Sleep(5 * time.Millisecond)
		unix.Write(fds[1], []byte("x"))
	}()

	require.NoError(t, l.Run())
	require.Equal(t, 1, calls)
}
