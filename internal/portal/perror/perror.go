// Package perror defines the portal-wide error kinds (spec §7) and the
// translation from a *PortalError to a D-Bus error name at the boundary.
package perror

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Kind enumerates the abstract error kinds spec §7 names.
type Kind int

const (
	KindInvalidArgs Kind = iota
	KindNotFound
	KindNotSupported
	KindBusy
	KindCancelled
	KindCaptureFailed
	KindFatal
)

func (k Kind) busName() string {
	switch k {
	case KindInvalidArgs:
		return "org.freedesktop.portal.Error.InvalidArgument"
	case KindNotFound:
		return "org.freedesktop.portal.Error.NotFound"
	case KindNotSupported:
		return "org.freedesktop.portal.Error.NotSupported"
	case KindBusy:
		return "org.freedesktop.portal.Error.Failed"
	case KindCancelled:
		return "org.freedesktop.portal.Error.Cancelled"
	case KindCaptureFailed:
		return "org.freedesktop.portal.Error.Failed"
	default:
		return "org.freedesktop.portal.Error.Failed"
	}
}

// PortalError is the sum-type error every public core operation returns
// on failure (spec §9 "Error propagation").
type PortalError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *PortalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *PortalError) Unwrap() error { return e.Err }

// New builds a PortalError of the given kind.
func New(kind Kind, msg string) *PortalError {
	return &PortalError{Kind: kind, Msg: msg}
}

// Wrap builds a PortalError of the given kind wrapping an underlying error.
func Wrap(kind Kind, msg string, err error) *PortalError {
	return &PortalError{Kind: kind, Msg: msg, Err: err}
}

// ToDBusError translates err into a *dbus.Error at the bus boundary.
// A nil err returns nil. A non-PortalError is reported as a generic
// Failed error, never a panic: the boundary is the last line of defense.
func ToDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	pe, ok := err.(*PortalError)
	if !ok {
		return dbus.MakeFailedError(err)
	}
	return dbus.NewError(pe.busName(), []interface{}{pe.Error()})
}
