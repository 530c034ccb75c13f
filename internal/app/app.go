// Package app unifies the process-wide state that the original C
// implementation kept as module globals (input-capture data) into one
// AppState threaded explicitly through every handler (spec §9 "Global
// mutable state"). The logger stays a package-level global in
// internal/logger.
package app

import (
	"fmt"

	"github.com/bnema/wayland-virtual-input-go/keyboard_shortcuts_inhibitor"
	"github.com/bnema/wayland-virtual-input-go/pointer_constraints"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/config"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/eis"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/eventloop"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/globalshortcuts"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/inputcapture"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/bus"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/registry"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/waylandres"
	"github.com/godbus/dbus/v5"
)

// Deps carries the external collaborators this daemon does not
// implement itself: the compositor-specific overlay surface, the EIS
// wire backend, the two wayland-virtual-input-go protocol managers
// input capture locks against, the global-shortcuts compositor
// binding, and the screencast instance starter. None of them have a
// generic, compositor-agnostic implementation in this package (see
// DESIGN.md); cmd/root.go passes a zero Deps, so every collaborator is
// nil there.
type Deps struct {
	Overlays       inputcapture.OverlayFactory
	EISSink        eis.Backend
	ConstraintsMgr pointer_constraints.PointerConstraintsManager
	InhibitorsMgr  keyboard_shortcuts_inhibitor.KeyboardShortcutsInhibitorManager
	Shortcuts      globalshortcuts.Manager
	Starter        portal.InstanceStarter
}

// AppState holds every long-lived collaborator a portal handler needs:
// the event loop, the session bus connection, the Wayland resource
// manager, and the session registry (spec §9).
type AppState struct {
	Config   *config.Config
	Loop     *eventloop.Loop
	Bus      *dbus.Conn
	Wlres    *waylandres.Manager
	Registry *registry.Registry

	ScreenCast      *portal.ScreenCast
	RemoteDesktop   *portal.RemoteDesktop
	GlobalShortcuts *portal.GlobalShortcuts
	InputCapture    *portal.InputCapture
	Screenshot      *portal.Screenshot

	icMgr *inputcapture.Manager
}

// New wires every component together in dependency order: config,
// Wayland resource manager, event loop, session bus, then the five
// portal vtables, the way the teacher's setup package builds its
// server dependency graph top-down.
func New(desktop string, deps Deps) (*AppState, error) {
	if err := config.Init(desktop); err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}
	cfg := config.Get()

	wlres, err := waylandres.New()
	if err != nil {
		return nil, fmt.Errorf("app: wayland resource manager: %w", err)
	}

	loop, err := eventloop.New()
	if err != nil {
		wlres.Close()
		return nil, fmt.Errorf("app: event loop: %w", err)
	}

	reg := registry.New()

	a := &AppState{
		Config:   cfg,
		Loop:     loop,
		Wlres:    wlres,
		Registry: reg,
	}

	conn, err := bus.Connect(a.onNameOwnerChanged)
	if err != nil {
		loop.Close()
		wlres.Close()
		return nil, fmt.Errorf("app: bus connect: %w", err)
	}
	a.Bus = conn

	a.icMgr = inputcapture.NewManager(wlres, deps.Overlays, deps.EISSink, deps.ConstraintsMgr, deps.InhibitorsMgr)
	wlres.OnOutputDone(a.icMgr.HandleOutputDone)

	a.ScreenCast = &portal.ScreenCast{Bus: conn, Reg: reg, Outputs: wlres, Starter: deps.Starter, Cfg: &cfg.Screencast}
	a.RemoteDesktop = portal.NewRemoteDesktop(conn, reg)
	a.GlobalShortcuts = portal.NewGlobalShortcuts(conn, reg, deps.Shortcuts)
	a.InputCapture = portal.NewInputCapture(conn, reg, a.icMgr, wlres)
	a.Screenshot = portal.NewScreenshot(conn)

	exports := []func(dbus.ObjectPath) error{
		a.ScreenCast.Export, a.RemoteDesktop.Export, a.GlobalShortcuts.Export,
		a.InputCapture.Export, a.Screenshot.Export,
	}
	for _, export := range exports {
		if err := export(bus.DesktopPath); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: export portal interface: %w", err)
		}
	}

	logger.Infof("app: ready, hosting portals at %s", bus.DesktopPath)
	return a, nil
}

// Run enters the single-threaded event loop (spec §4.A).
func (a *AppState) Run() error {
	return a.Loop.Run()
}

// Close tears down the bus connection and the Wayland display.
func (a *AppState) Close() {
	if a.Bus != nil {
		a.Bus.Close()
	}
	if a.Wlres != nil {
		a.Wlres.Close()
	}
	if a.Loop != nil {
		a.Loop.Close()
	}
}

// onNameOwnerChanged logs a vanished bus peer. Per-session teardown on
// peer disconnect (spec §3) is exposed as BusSession.PeerVanished; this
// daemon serves every portal from one shared connection rather than
// one per caller, and registry.Session does not record the caller's
// unique name, so this handler cannot match a vanished name to its
// sessions: it only logs, and no session is torn down here.
func (a *AppState) onNameOwnerChanged(name string) {
	logger.Debugf("app: bus peer %s vanished", name)
}
