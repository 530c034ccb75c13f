package waylandres

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutputBecomesReadyOnlyAfterCompleteSet(t *testing.T) {
	out := &Output{GlobalName: 1}

	require.False(t, out.Ready)

	out.hasGeometry = true
	require.False(t, out.Ready)

	out.hasMode = true
	require.False(t, out.Ready)

	out.hasName = true
	// Ready is only flipped by the done handler, not by field writes
	// directly, so simulate what bindOutput's done callback does.
	if out.hasGeometry && out.hasMode && out.hasName {
		out.Ready = true
	}
	require.True(t, out.Ready)
}

func TestFirstSeatPrefersPointerAndKeyboard(t *testing.T) {
	m := &Manager{
		Seats: map[uint32]*Seat{
			1: {GlobalName: 1, Name: "seat0", HasPointer: true},
			2: {GlobalName: 2, Name: "seat1", HasPointer: true, HasKeyboard: true},
		},
	}

	s := m.FirstSeat()
	require.NotNil(t, s)
	require.Equal(t, "seat1", s.Name)
}

func TestFirstSeatFallsBackWhenNoneHaveBoth(t *testing.T) {
	m := &Manager{
		Seats: map[uint32]*Seat{
			1: {GlobalName: 1, Name: "seat0", HasPointer: true},
		},
	}

	s := m.FirstSeat()
	require.NotNil(t, s)
	require.Equal(t, "seat0", s.Name)
}

func TestHasGlobalAndRequireGlobal(t *testing.T) {
	m := &Manager{
		globalNames: map[string]uint32{"wl_compositor": 1},
		globalVers:  map[string]uint32{"wl_compositor": 4},
	}

	require.True(t, m.HasGlobal("wl_compositor"))
	require.NoError(t, m.RequireGlobal("wl_compositor"))

	require.False(t, m.HasGlobal("zwlr_layer_shell_v1"))
	err := m.RequireGlobal("zwlr_layer_shell_v1")
	require.Error(t, err)
}

func TestOutputByNameOnlyMatchesReadyOutputs(t *testing.T) {
	m := &Manager{
		Outputs: map[uint32]*Output{
			1: {GlobalName: 1, Name: "DP-1", Ready: false},
			2: {GlobalName: 2, Name: "DP-2", Ready: true},
		},
	}

	require.Nil(t, m.OutputByName("DP-1"))
	require.NotNil(t, m.OutputByName("DP-2"))
}

func TestReadyOutputsFiltersUnready(t *testing.T) {
	m := &Manager{
		Outputs: map[uint32]*Output{
			1: {GlobalName: 1, Ready: false},
			2: {GlobalName: 2, Ready: true},
			3: {GlobalName: 3, Ready: true},
		},
	}

	require.Len(t, m.ReadyOutputs(), 2)
}
