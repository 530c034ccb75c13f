package portal

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/portal/perror"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const screenshotIface = "org.freedesktop.impl.portal.Screenshot"

// Screenshot implements the auxiliary org.freedesktop.impl.portal.
// Screenshot interface (spec §6 "Screenshot (auxiliary, spawns
// grim/slurp)"), grounded on original_source/screenshot.c's
// fork/exec/read-stdout contract: `slurp` picks a region interactively,
// `grim` captures it to a file.
type Screenshot struct {
	bus *dbus.Conn
}

// NewScreenshot builds the vtable bound to bus.
func NewScreenshot(bus *dbus.Conn) *Screenshot {
	return &Screenshot{bus: bus}
}

// Export publishes the Screenshot interface at path.
func (sh *Screenshot) Export(path dbus.ObjectPath) error {
	if err := sh.bus.Export(sh, path, screenshotIface); err != nil {
		return err
	}
	return sh.bus.Export(introspect.NewIntrospectable(&introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: screenshotIface, Methods: []introspect.Method{{Name: "Screenshot"}}},
		},
	}), path, "org.freedesktop.DBus.Introspectable")
}

// Screenshot implements Screenshot.Screenshot. It runs `slurp` to pick
// a region interactively, then `grim -g <geometry>` to capture it to a
// temp file, returning a file:// uri (spec §6, original_source
// screenshot.c's "TODO" filled in per the child-helper contract used
// elsewhere in this daemon).
func (sh *Screenshot) Screenshot(handle dbus.ObjectPath, parentWindow string, options map[string]dbus.Variant) (uint32, map[string]dbus.Variant, *dbus.Error) {
	drainOptions(options, map[string]bool{"interactive": true, "modal": true})

	req := NewRequest(sh.bus, handle)

	geometry, err := runCapture("slurp")
	if err != nil {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.Wrap(perror.KindNotSupported, "slurp region selection", err))
	}
	geometry = strings.TrimSpace(geometry)

	f, err := os.CreateTemp("", "xdpw-screenshot-*.png")
	if err != nil {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.Wrap(perror.KindFatal, "create screenshot temp file", err))
	}
	path := f.Name()
	f.Close()

	if _, err := runCapture("grim", "-g", geometry, path); err != nil {
		req.MarkCompleted()
		return 0, nil, perror.ToDBusError(perror.Wrap(perror.KindNotSupported, "grim screenshot capture", err))
	}

	req.MarkCompleted()
	return uint32(ResponseSuccess), map[string]dbus.Variant{
		"uri": dbus.MakeVariant("file://" + path),
	}, nil
}

func runCapture(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	out, err := cmd.Output()
	if err != nil {
		logger.Warnf("screenshot: %s %v: %v", name, args, err)
		return "", fmt.Errorf("run %s: %w", name, err)
	}
	return string(out), nil
}
