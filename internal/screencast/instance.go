package screencast

import (
	"fmt"
	"sync"
	"time"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/eventloop"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/mediastream"
)

// FrameDescriptor is the single currently-capturing frame (spec §2
// "FrameDescriptor").
type FrameDescriptor struct {
	Buffer      *Buffer
	Transform   uint32
	PresSec     uint64
	PresNsec    uint32
	Complete    bool
}

// Instance is the runtime capture pipeline attached to a screencast
// session once Start succeeds (spec §2 "ScreencastInstance").
// Reference-counted: each referencing portal session holds a strong
// reference; when the last drops, capture is torn down at the next
// event-loop turn (spec §2, §3 invariant).
type Instance struct {
	mu sync.Mutex

	Target     Target
	CursorMode uint32
	Backend    Backend

	session CaptureSession
	pool    *Pool
	fps     *FPSLimiter
	stream  *mediastream.Stream

	current *FrameDescriptor
	quit    bool
	refcount int

	loop       *eventloop.Loop
	fpsTimer   *eventloop.TimerHandle
	ownerPaths []string // session object paths holding a reference, for signaling lookups
}

// NewInstance builds an Instance bound to one capture target. The
// caller supplies the already-selected backend session (SelectBackend
// having run) and FPS configuration.
func NewInstance(loop *eventloop.Loop, target Target, cursorMode uint32, backend Backend, session CaptureSession, maxFPS float64, stream *mediastream.Stream) *Instance {
	return &Instance{
		loop:       loop,
		Target:     target,
		CursorMode: cursorMode,
		Backend:    backend,
		session:    session,
		fps:        NewFPSLimiter(maxFPS),
		stream:     stream,
		refcount:   1,
	}
}

// Ref increments the reference count; called when another session
// attaches to this instance.
func (i *Instance) Ref(ownerPath string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.refcount++
	i.ownerPaths = append(i.ownerPaths, ownerPath)
}

// Unref drops a reference. When the count reaches zero, quit is set and
// the next event-loop iteration tears the capture subgraph down (spec
// §2 "when the last drops, capture is torn down at the next event-loop
// turn").
func (i *Instance) Unref(ownerPath string) {
	i.mu.Lock()
	for idx, p := range i.ownerPaths {
		if p == ownerPath {
			i.ownerPaths = append(i.ownerPaths[:idx], i.ownerPaths[idx+1:]...)
			break
		}
	}
	i.refcount--
	shouldQuit := i.refcount <= 0
	if shouldQuit {
		i.quit = true
	}
	i.mu.Unlock()

	if shouldQuit {
		i.loop.AddTimerAfter(0, i.teardown)
	}
}

// Refcount reports the current strong-reference count.
func (i *Instance) Refcount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.refcount
}

// SetPool installs the buffer pool, invalidating and replacing any
// prior pool atomically (spec §3 invariant "a new pool supersedes the
// old atomically at the next done boundary").
func (i *Instance) SetPool(p *Pool) {
	i.mu.Lock()
	old := i.pool
	i.pool = p
	i.mu.Unlock()
	if old != nil {
		old.Invalidate()
	}
}

// RebuildStreamParams pushes new media-stream parameters after a
// constraints change (spec §4.E "Media stream").
func (i *Instance) RebuildStreamParams(format uint32) error {
	i.mu.Lock()
	c := i.pool.Constraints()
	maxFPS := i.fps.maxFPS
	i.mu.Unlock()
	return i.stream.Rebuild(mediastream.ParamsFromConstraints(format, c.Width, c.Height, maxFPS))
}

// CaptureNext begins capturing the next frame, respecting the FPS
// limiter by scheduling a timer if the minimum interval has not elapsed
// (spec §4.E "Frame loop" steps 1-2, "FPS limiter").
func (i *Instance) CaptureNext() {
	i.mu.Lock()
	if i.quit {
		i.mu.Unlock()
		return
	}
	if !i.stream.Streaming() {
		i.mu.Unlock()
		return
	}
	delay := i.fps.NextDelay(time.Now())
	i.mu.Unlock()

	if delay > 0 {
		h := i.loop.AddTimerAfter(delay, i.captureNow)
		i.mu.Lock()
		i.fpsTimer = &h
		i.mu.Unlock()
		return
	}
	i.captureNow()
}

func (i *Instance) captureNow() {
	i.mu.Lock()
	if i.quit || i.pool == nil {
		i.mu.Unlock()
		return
	}
	pool := i.pool
	i.mu.Unlock()

	buf, err := pool.Acquire()
	if err != nil {
		logger.Errorf("screencast: acquire buffer: %v", err)
		return
	}

	i.mu.Lock()
	i.current = &FrameDescriptor{Buffer: buf}
	i.mu.Unlock()

	if err := i.session.CaptureFrame(buf, buf.Damage); err != nil {
		logger.Errorf("screencast: capture frame: %v", err)
		i.handleFail(FailUnknown)
	}
}

// HandleTransform records the compositor's transform event for the
// in-flight frame (spec §4.E "Frame loop" step 3).
func (i *Instance) HandleTransform(transform uint32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.current != nil {
		i.current.Transform = transform
	}
}

// HandleDamage accumulates damage on the in-flight frame's buffer and,
// per spec §4.E "Damage tracking", propagates it to every other buffer
// in the pool.
func (i *Instance) HandleDamage(r Rect) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.current == nil {
		return
	}
	i.current.Buffer.AddDamage(r)
	if i.pool != nil {
		for _, b := range i.pool.buffers {
			if b != i.current.Buffer {
				b.AddDamage(r)
			}
		}
	}
}

// HandlePresentationTime records the presentation timestamp for the
// in-flight frame (spec §4.E "Frame loop" step 3).
func (i *Instance) HandlePresentationTime(sec uint64, nsec uint32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.current != nil {
		i.current.PresSec = sec
		i.current.PresNsec = nsec
	}
}

// HandleReady completes the in-flight frame: marks it complete, clears
// the buffer's damage, returns the buffer to the pool, records FPS, and
// schedules the next capture (spec §4.E "Frame loop" steps 4, 6). The
// frame is not passed to the media stream here.
func (i *Instance) HandleReady() {
	i.mu.Lock()
	fd := i.current
	i.current = nil
	pool := i.pool
	i.mu.Unlock()

	if fd == nil {
		return
	}
	fd.Complete = true
	fd.Buffer.ClearDamage()
	if pool != nil {
		pool.Release(fd.Buffer, nil)
	}
	i.fps.RecordFrame(time.Now())
	i.CaptureNext()
}

// HandleFrameFailed dispatches a compositor failed() event per spec
// §4.E "Frame loop" step 5 / §5 "Error taxonomy":
//   - BUFFER_CONSTRAINTS: re-enqueue without submitting.
//   - STOPPED: sets quit.
//   - UNKNOWN: tears the instance down.
func (i *Instance) HandleFrameFailed(reason FrameFailReason) {
	i.handleFail(reason)
}

func (i *Instance) handleFail(reason FrameFailReason) {
	i.mu.Lock()
	fd := i.current
	i.current = nil
	pool := i.pool
	i.mu.Unlock()

	if fd != nil && pool != nil {
		pool.Release(fd.Buffer, nil)
	}

	switch reason {
	case FailBufferConstraints:
		i.CaptureNext()
	case FailStopped:
		i.mu.Lock()
		i.quit = true
		i.mu.Unlock()
		i.loop.AddTimerAfter(0, i.teardown)
	case FailUnknown:
		logger.Errorf("screencast: unknown frame failure, tearing down instance")
		i.loop.AddTimerAfter(0, i.teardown)
	}
}

// teardown destroys Wayland and media-stream resources, in that order
// (spec §2 invariant "the next event-loop iteration tears down Wayland
// and media-stream resources in that order").
func (i *Instance) teardown() {
	i.mu.Lock()
	if i.fpsTimer != nil {
		i.loop.CancelTimer(*i.fpsTimer)
		i.fpsTimer = nil
	}
	pool := i.pool
	session := i.session
	stream := i.stream
	i.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			logger.Warnf("screencast: close capture session: %v", err)
		}
	}
	if pool != nil {
		pool.Invalidate()
	}
	if stream != nil {
		if err := stream.Disconnect(); err != nil {
			logger.Warnf("screencast: disconnect media stream: %v", err)
		}
	}
	logger.Debugf("screencast: instance for %s torn down", describeTarget(i.Target))
}

func describeTarget(t Target) string {
	if t.Kind == TargetWindow {
		return fmt.Sprintf("window %q", t.Name)
	}
	return fmt.Sprintf("output %q", t.Name)
}

// Quit reports whether this instance has been marked for teardown.
func (i *Instance) Quit() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.quit
}
