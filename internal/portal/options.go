package portal

import (
	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
	"github.com/godbus/dbus/v5"
)

// drainOptions logs every key in opts that isn't in known, at DEBUG (the
// carried equivalent of TRACE — charmbracelet/log has no TRACE level;
// see spec §4.C.1 "drains unknown a{sv} options... logging them at
// TRACE"). The whole dictionary is always consumed, even the unknown
// keys, so a malformed call never leaves the bus stream mid-message.
func drainOptions(opts map[string]dbus.Variant, known map[string]bool) {
	for k, v := range opts {
		if !known[k] {
			logger.Debugf("portal: unknown option %q = %v", k, v.Value())
		}
	}
}

func optString(opts map[string]dbus.Variant, key string) (string, bool) {
	v, ok := opts[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

func optUint32(opts map[string]dbus.Variant, key string) (uint32, bool) {
	v, ok := opts[key]
	if !ok {
		return 0, false
	}
	switch n := v.Value().(type) {
	case uint32:
		return n, true
	case int32:
		return uint32(n), true
	default:
		return 0, false
	}
}

func optBool(opts map[string]dbus.Variant, key string) (bool, bool) {
	v, ok := opts[key]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}
