package eis

import (
	"testing"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/registry"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeBackend struct {
	events       []Event
	accepted     int
	bound        map[string]uint32
	disconnected []string
}

func newFakeBackend(events []Event) *fakeBackend {
	return &fakeBackend{events: events, bound: make(map[string]uint32)}
}

func (f *fakeBackend) Poll() ([]Event, error) {
	evs := f.events
	f.events = nil
	return evs, nil
}
func (f *fakeBackend) AcceptClient() error { f.accepted++; return nil }
func (f *fakeBackend) BindSeat(seatName string, capabilities uint32) error {
	f.bound[seatName] = capabilities
	return nil
}
func (f *fakeBackend) DisconnectClient(clientID string) error {
	f.disconnected = append(f.disconnected, clientID)
	return nil
}
func (f *fakeBackend) StartEmulating(activationID uint64) error        { return nil }
func (f *fakeBackend) StopEmulating() error                            { return nil }
func (f *fakeBackend) SendPointerMotion(dx, dy float64) error          { return nil }
func (f *fakeBackend) SendKey(keycode uint32, pressed bool) error      { return nil }
func (f *fakeBackend) SendModifiers(mods uint32, group uint32) error   { return nil }
func (f *fakeBackend) SendKeymap(fd int, size uint32) error            { return nil }
func (f *fakeBackend) Close() error                                    { return nil }

func TestPumpAcceptsClientConnect(t *testing.T) {
	backend := newFakeBackend([]Event{{Kind: EventClientConnect}})
	pump := NewPump(backend, registry.New())

	require.NoError(t, pump.Tick())
	require.Equal(t, 1, backend.accepted)
}

func TestPumpBindsKnownSeat(t *testing.T) {
	reg := registry.New()
	_, err := reg.Create("/org/freedesktop/portal/desktop/session/1", registry.InputCapture, "app.id", nil)
	require.NoError(t, err)

	backend := newFakeBackend([]Event{{Kind: EventSeatBind, SeatName: "/org/freedesktop/portal/desktop/session/1", Capabilities: 3}})
	pump := NewPump(backend, reg)

	require.NoError(t, pump.Tick())
	require.Equal(t, uint32(3), backend.bound["/org/freedesktop/portal/desktop/session/1"])
}

type fakeCapabilityPayload struct{ mask uint32 }

func (f *fakeCapabilityPayload) Close()                {}
func (f *fakeCapabilityPayload) CapabilityMask() uint32 { return f.mask }

func TestPumpMasksCapabilitiesFromSessionPayload(t *testing.T) {
	reg := registry.New()
	sess, err := reg.Create("/org/freedesktop/portal/desktop/session/1", registry.InputCapture, "app.id", nil)
	require.NoError(t, err)
	sess.SetPayload(&fakeCapabilityPayload{mask: 1})

	backend := newFakeBackend([]Event{{Kind: EventSeatBind, SeatName: "/org/freedesktop/portal/desktop/session/1", Capabilities: 3}})
	pump := NewPump(backend, reg)

	require.NoError(t, pump.Tick())
	require.Equal(t, uint32(1), backend.bound["/org/freedesktop/portal/desktop/session/1"])
}

func TestPumpDisconnectsUnknownSeat(t *testing.T) {
	backend := newFakeBackend([]Event{{Kind: EventSeatBind, SeatName: "/does/not/exist", Capabilities: 1}})
	pump := NewPump(backend, registry.New())

	require.NoError(t, pump.Tick())
	require.Equal(t, []string{"/does/not/exist"}, backend.disconnected)
	require.Empty(t, backend.bound)
}

func TestPumpClientDisconnect(t *testing.T) {
	backend := newFakeBackend([]Event{{Kind: EventClientDisconnect, ClientDisconnect: "client-1"}})
	pump := NewPump(backend, registry.New())

	require.NoError(t, pump.Tick())
	require.Equal(t, []string{"client-1"}, backend.disconnected)
}

func TestNewSocketPairReturnsConnectedFDs(t *testing.T) {
	serverFD, clientFD, err := NewSocketPair()
	require.NoError(t, err)
	require.NotEqual(t, serverFD, clientFD)
	unix.Close(serverFD)
	unix.Close(clientFD)
}
