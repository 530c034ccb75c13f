// Package eventloop implements the single unified event loop (spec
// §4.A): a single-threaded cooperative reactor multiplexing the fds
// registered with RegisterFD, plus a heap of absolute-time timers
// serviced through the epoll_wait timeout rather than a timer fd.
//
// Fd readiness is detected with epoll, the way the pack's Wayland
// platform code talks to the kernel (golang.org/x/sys/unix), rather than
// through a higher-level polling library — there is exactly one fd set
// to watch and no need for anything past raw epoll.
package eventloop

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"golang.org/x/sys/unix"
)

// Source is one registered fd callback. Callbacks run to completion and
// must never block (spec §4.A, §5).
type Source struct {
	FD       int
	Events   uint32 // unix.EPOLLIN etc.
	Callback func(events uint32)
	name     string
}

// TimerHandle identifies a scheduled timer for cancellation.
type TimerHandle struct{ seq int64 }

type timerEntry struct {
	at    time.Time
	seq   int64
	cb    func()
	index int
}

// timerHeap orders by absolute time, ties broken by insertion order
// (spec §4.A "Timers fire strictly by absolute monotonic time; ties
// broken by insertion order").
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Loop is the single-threaded reactor. Exactly one OS thread ever calls
// Run (spec §5 "Scheduling model").
type Loop struct {
	epfd int

	// sources is registration-ordered so that each wakeup drains sources
	// in the discipline spec §4.A mandates (bus, then display, then
	// media loop, then EIS) as long as callers register them in that
	// order.
	sources []*Source
	byFD    map[int]*Source

	timers  timerHeap
	timerAt map[int64]*timerEntry
	nextSeq int64

	stop bool
}

// New creates an epoll-backed Loop.
func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventloop: epoll_create1: %w", err)
	}
	return &Loop{
		epfd:    epfd,
		byFD:    make(map[int]*Source),
		timerAt: make(map[int64]*timerEntry),
	}, nil
}

// Close releases the epoll fd.
func (l *Loop) Close() error {
	return unix.Close(l.epfd)
}

// RegisterFD adds fd as a new event source. name is used only for
// diagnostics.
func (l *Loop) RegisterFD(fd int, events uint32, name string, cb func(events uint32)) error {
	if _, exists := l.byFD[fd]; exists {
		return fmt.Errorf("eventloop: fd %d already registered", fd)
	}
	src := &Source{FD: fd, Events: events, Callback: cb, name: name}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("eventloop: epoll_ctl add %s: %w", name, err)
	}
	l.byFD[fd] = src
	l.sources = append(l.sources, src)
	return nil
}

// RemoveFD unregisters fd. Safe to call from within that fd's own
// callback.
func (l *Loop) RemoveFD(fd int) {
	src, ok := l.byFD[fd]
	if !ok {
		return
	}
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(l.byFD, fd)
	for i, s := range l.sources {
		if s == src {
			l.sources = append(l.sources[:i], l.sources[i+1:]...)
			break
		}
	}
}

// AddTimer schedules cb to run at the given absolute monotonic time.
func (l *Loop) AddTimer(at time.Time, cb func()) TimerHandle {
	l.nextSeq++
	e := &timerEntry{at: at, seq: l.nextSeq, cb: cb}
	heap.Push(&l.timers, e)
	l.timerAt[e.seq] = e
	return TimerHandle{seq: e.seq}
}

// AddTimerAfter schedules cb to run after d elapses.
func (l *Loop) AddTimerAfter(d time.Duration, cb func()) TimerHandle {
	return l.AddTimer(time.Now().Add(d), cb)
}

// CancelTimer cancels a pending timer. Cancelling from within the
// timer's own callback is permitted and never double-frees (spec §4.A).
func (l *Loop) CancelTimer(h TimerHandle) {
	e, ok := l.timerAt[h.seq]
	if !ok {
		return
	}
	delete(l.timerAt, h.seq)
	if e.index >= 0 && e.index < len(l.timers) && l.timers[e.index] == e {
		heap.Remove(&l.timers, e.index)
	}
}

// Stop requests the loop exit at the top of the next iteration.
func (l *Loop) Stop() { l.stop = true }

// Run blocks, servicing fd readiness and timers, until Stop is called.
// Suspension happens only at the top of each iteration (spec §4.A
// "Suspension points").
func (l *Loop) Run() error {
	const maxEvents = 32
	events := make([]unix.EpollEvent, maxEvents)

	for !l.stop {
		timeout := l.nextTimeout()

		n, err := unix.EpollWait(l.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("eventloop: epoll_wait: %w", err)
		}

		ready := make(map[int]uint32, n)
		for i := 0; i < n; i++ {
			ready[int(events[i].Fd)] = events[i].Events
		}

		// Dispatch in registration order, not epoll return order, so the
		// bus->display->media-loop->EIS discipline holds regardless of
		// kernel readiness ordering.
		for _, src := range append([]*Source(nil), l.sources...) {
			if ev, ok := ready[src.FD]; ok {
				if _, stillRegistered := l.byFD[src.FD]; stillRegistered {
					src.Callback(ev)
				}
			}
		}

		l.runExpiredTimers()
	}
	return nil
}

// RunDueTimers fires every timer whose deadline has passed without
// blocking on epoll. Exposed for callers that drive the loop manually
// in tests.
func (l *Loop) RunDueTimers() {
	l.runExpiredTimers()
}

func (l *Loop) nextTimeout() int {
	if len(l.timers) == 0 {
		return -1 // block indefinitely
	}
	d := time.Until(l.timers[0].at)
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > 1<<31-1 {
		ms = 1<<31 - 1
	}
	return int(ms)
}

func (l *Loop) runExpiredTimers() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].at.After(now) {
		e := heap.Pop(&l.timers).(*timerEntry)
		delete(l.timerAt, e.seq)
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("eventloop: timer callback panic: %v", r)
				}
			}()
			e.cb()
		}()
	}
}
