package globalshortcuts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeHandle struct{ destroyed bool }

func (f *fakeHandle) Destroy() error { f.destroyed = true; return nil }

type fakeManager struct {
	fail    bool
	handles map[string]*fakeHandle
}

func newFakeManager() *fakeManager { return &fakeManager{handles: make(map[string]*fakeHandle)} }

func (m *fakeManager) Register(s *Shortcut) (interface{ Destroy() error }, error) {
	if m.fail {
		return nil, fmt.Errorf("register failed")
	}
	h := &fakeHandle{}
	m.handles[s.ID] = h
	return h, nil
}

func TestBindShortcutsRegistersNewOnes(t *testing.T) {
	mgr := newFakeManager()
	s := NewSession(mgr)

	changed := false
	s.OnShortcutsChanged(func() { changed = true })

	bound, err := s.BindShortcuts([]Shortcut{{ID: "screenshot", Description: "take a screenshot"}})
	require.NoError(t, err)
	require.Len(t, bound, 1)
	require.True(t, changed)
	require.Len(t, s.ListShortcuts(), 1)
}

func TestBindShortcutsSkipsAlreadyBound(t *testing.T) {
	mgr := newFakeManager()
	s := NewSession(mgr)

	_, _ = s.BindShortcuts([]Shortcut{{ID: "screenshot"}})
	bound, err := s.BindShortcuts([]Shortcut{{ID: "screenshot"}})
	require.NoError(t, err)
	require.Empty(t, bound)
	require.Len(t, s.ListShortcuts(), 1)
}

func TestHandlePressedIgnoresUnknownShortcut(t *testing.T) {
	mgr := newFakeManager()
	s := NewSession(mgr)

	fired := false
	s.OnActivated(func(id string, ts Timestamp) { fired = true })

	s.HandlePressed("nonexistent")
	require.False(t, fired)
}

func TestHandlePressedAndReleasedFireForKnownShortcut(t *testing.T) {
	mgr := newFakeManager()
	s := NewSession(mgr)
	_, _ = s.BindShortcuts([]Shortcut{{ID: "mute"}})

	var activatedID, deactivatedID string
	s.OnActivated(func(id string, ts Timestamp) { activatedID = id })
	s.OnDeactivated(func(id string, ts Timestamp) { deactivatedID = id })

	s.HandlePressed("mute")
	s.HandleReleased("mute")

	require.Equal(t, "mute", activatedID)
	require.Equal(t, "mute", deactivatedID)
}

func TestCloseDestroysAllHandles(t *testing.T) {
	mgr := newFakeManager()
	s := NewSession(mgr)
	_, _ = s.BindShortcuts([]Shortcut{{ID: "a"}, {ID: "b"}})

	s.Close()

	require.True(t, mgr.handles["a"].destroyed)
	require.True(t, mgr.handles["b"].destroyed)
	require.Empty(t, s.ListShortcuts())
}

func TestNowTimestampSplitsSeconds(t *testing.T) {
	ts := NowTimestamp()
	// sanity: reconstructed seconds should be nonzero for any real clock
	sec := uint64(ts.SecHi)<<32 | uint64(ts.SecLo)
	require.Greater(t, sec, uint64(0))
}
