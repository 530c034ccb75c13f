// Package mediastream abstracts the PipeWire-like media streaming node
// graph (spec "Out of scope: the media-streaming client library").
// The pipeline only needs to rebuild stream parameters and be told when
// the node id is assigned and when streaming starts or stops; the
// concrete transport is supplied by whatever collaborator wires a
// Stream up to the real media framework.
package mediastream

// State mirrors the stream's state_changed callback (spec §4.E "Media
// stream"): frame submission is gated on State == Streaming.
type State int

const (
	StateUnconnected State = iota
	StateConnecting
	StateConfigured
	StateStreaming
	StatePaused
	StateError
)

// Params are rebuilt whenever BufferConstraints changes (spec §4.E).
type Params struct {
	Format   uint32 // mapped from the negotiated fourcc
	Width    int32
	Height   int32
	MaxRate  float64 // configured max_fps; 0 means unlimited
	MinBufs  uint32
	MaxBufs  uint32
}

// Size range and buffer-count range the spec fixes for every stream.
const (
	MinDimension = 1
	MaxDimension = 16384
	MinBuffers   = 1
	MaxBuffers   = 32
)

// Stream is one output-direction media node attached to a
// ScreencastInstance. NodeID is 0 until the framework assigns it
// asynchronously.
type Stream struct {
	NodeID uint32
	state  State

	onStateChanged func(State)
	onNodeID       func(uint32)

	// connect/updateParams/disconnect are supplied by the real
	// transport; left nil they are safe no-ops so this package can be
	// exercised without a live media framework (e.g. in tests).
	connect      func(Params) error
	updateParams func(Params) error
	disconnect   func() error
}

// New creates a Stream. connect is invoked once to bring the node up;
// updateParams on every constraints change; disconnect on teardown. Any
// may be nil.
func New(connect func(Params) error, updateParams func(Params) error, disconnect func() error) *Stream {
	return &Stream{connect: connect, updateParams: updateParams, disconnect: disconnect}
}

// OnStateChanged registers the callback fired when the framework
// reports a state transition.
func (s *Stream) OnStateChanged(fn func(State)) { s.onStateChanged = fn }

// OnNodeID registers the callback fired once, when the framework
// assigns this stream's node id.
func (s *Stream) OnNodeID(fn func(uint32)) { s.onNodeID = fn }

// Connect brings the node up with the given initial parameters.
func (s *Stream) Connect(p Params) error {
	s.setState(StateConnecting)
	if s.connect == nil {
		return nil
	}
	return s.connect(p)
}

// Rebuild pushes new stream parameters derived from fresh
// BufferConstraints (spec §4.E "Stream parameters are rebuilt whenever
// BufferConstraints change").
func (s *Stream) Rebuild(p Params) error {
	if s.updateParams == nil {
		return nil
	}
	return s.updateParams(p)
}

// Disconnect tears the node down.
func (s *Stream) Disconnect() error {
	if s.disconnect == nil {
		s.setState(StateUnconnected)
		return nil
	}
	err := s.disconnect()
	s.setState(StateUnconnected)
	return err
}

// State returns the last reported state.
func (s *Stream) State() State { return s.state }

// Streaming reports whether frame submission is currently gated open
// (spec §4.E "frame submission is gated on stream_state == streaming").
func (s *Stream) Streaming() bool { return s.state == StateStreaming }

// HandleStateChanged is invoked by the transport when the framework
// reports a new state.
func (s *Stream) HandleStateChanged(st State) {
	s.setState(st)
}

// HandleNodeID is invoked by the transport once the framework assigns
// a node id (spec §4.C "Start must block on capture until the
// media-stream node_id is known").
func (s *Stream) HandleNodeID(id uint32) {
	s.NodeID = id
	if s.onNodeID != nil {
		s.onNodeID(id)
	}
}

func (s *Stream) setState(st State) {
	s.state = st
	if s.onStateChanged != nil {
		s.onStateChanged(st)
	}
}

// ParamsFromConstraints maps negotiated buffer geometry to stream
// parameters, fixed ranges per spec §4.E.
func ParamsFromConstraints(format uint32, width, height int32, maxFPS float64) Params {
	return Params{
		Format:  format,
		Width:   width,
		Height:  height,
		MaxRate: maxFPS,
		MinBufs: MinBuffers,
		MaxBufs: MaxBuffers,
	}
}
