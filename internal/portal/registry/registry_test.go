package registry

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
)

type fakePayload struct{ closed int }

func (f *fakePayload) Close() { f.closed++ }

func TestCreateDuplicateHandleFails(t *testing.T) {
	r := New()
	h := dbus.ObjectPath("/org/freedesktop/portal/desktop/session/1")

	_, err := r.Create(h, ScreenCast, "app.Foo", nil)
	require.NoError(t, err)

	_, err = r.Create(h, ScreenCast, "app.Foo", nil)
	require.Error(t, err)
}

func TestLookupMissIsNotFatal(t *testing.T) {
	r := New()
	s, ok := r.Lookup("/nope")
	require.False(t, ok)
	require.Nil(t, s)
}

func TestDestroyIsIdempotent(t *testing.T) {
	r := New()
	h := dbus.ObjectPath("/s/1")
	s, err := r.Create(h, InputCapture, "app.Bar", nil)
	require.NoError(t, err)

	p := &fakePayload{}
	s.SetPayload(p)

	r.Destroy(s)
	require.Equal(t, 1, p.closed)
	require.Equal(t, 0, r.Len())

	// second close / destroy is a no-op, not a double-free
	r.Destroy(s)
	require.Equal(t, 1, p.closed)

	_, ok := r.Lookup(h)
	require.False(t, ok)
}

func TestBroadcastSurvivesConcurrentRemoval(t *testing.T) {
	r := New()
	var sessions []*Session
	for i := 0; i < 4; i++ {
		s, err := r.Create(dbus.ObjectPath(string(rune('a'+i))), ScreenCast, "app", nil)
		require.NoError(t, err)
		sessions = append(sessions, s)
	}

	visited := 0
	r.Broadcast(func(s *Session) {
		visited++
		// removing a later session mid-iteration must not panic; the
		// removed session is skipped rather than visited after destruction.
		if visited == 1 {
			r.Destroy(sessions[2])
		}
	})

	require.Equal(t, 3, visited)
	require.Equal(t, 3, r.Len())
}

func TestByInterfaceFiltersLiveSessions(t *testing.T) {
	r := New()
	_, err := r.Create("/s/sc", ScreenCast, "app", nil)
	require.NoError(t, err)
	_, err = r.Create("/s/ic", InputCapture, "app", nil)
	require.NoError(t, err)

	sc := r.ByInterface(ScreenCast)
	require.Len(t, sc, 1)
	require.Equal(t, dbus.ObjectPath("/s/sc"), sc[0].Handle)
}
