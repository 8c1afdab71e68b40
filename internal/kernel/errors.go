// Package kernel wraps the three kernel networking subsystems a mesh peer
// lives in: the WireGuard peer table, the IPv6 route table and the bridge
// forwarding database. Each adapter is idempotent and independently
// callable; interface names resolve to indices fresh on every call because
// interfaces appear and disappear between calls.
package kernel

import "fmt"

// Subsystem names as they appear in reconciliation results, logs and
// metrics.
const (
	SubsystemWireguard = "Wireguard"
	SubsystemRoute     = "Route"
	SubsystemFDB       = "Bridge FDB"
)

// InterfaceError reports that a named kernel networking interface was not
// found or that the kernel rejected a requested change on it.
type InterfaceError struct {
	Subsystem string
	Interface string
	Err       error
}

func (e *InterfaceError) Error() string {
	return fmt.Sprintf("%s: interface %s: %v", e.Subsystem, e.Interface, e.Err)
}

func (e *InterfaceError) Unwrap() error {
	return e.Err
}

func newInterfaceError(subsystem, iface string, err error) *InterfaceError {
	return &InterfaceError{Subsystem: subsystem, Interface: iface, Err: err}
}
