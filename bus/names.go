// Package bus implements the adapter's D-Bus surface: the object-path
// registry, the method dispatch router, reply/signal construction and the
// tracker that correlates asynchronous replies of outbound calls.
package bus

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	// Service is the well-known name claimed on the bus.
	Service = "org.hcibus"

	BasePath       = "/org/hcibus"
	ManagerPath    = dbus.ObjectPath(BasePath + "/Manager")
	DeviceRootPath = dbus.ObjectPath(BasePath + "/Device")

	ManagerInterface = "org.hcibus.Manager"
	DeviceInterface  = "org.hcibus.Device"

	// ErrorName is the error name carried by failure replies.
	ErrorName = "org.hcibus.Error"

	// The external PIN agent the adapter calls out to during pairing.
	PinAgentService   = "org.hcibus.PinAgent"
	PinAgentPath      = dbus.ObjectPath(BasePath + "/PinAgent")
	PinAgentInterface = "org.hcibus.PinAgent"
	PinRequestMethod  = "PinRequest"
)

// Signals emitted on device paths.
const (
	SigDiscoveryStarted   = "DiscoveryStarted"
	SigDiscoveryCompleted = "DiscoveryCompleted"
	SigRemoteDeviceFound  = "RemoteDeviceFound"
	SigRemoteNameUpdated  = "RemoteNameUpdated"
	SigRemoteNameFailed   = "RemoteNameFailed"
	SigModeChanged        = "ModeChanged"
	SigNameChanged        = "NameChanged"
	SigBondingCreated     = "BondingCreated"
)

// Signals emitted on the manager path.
const (
	SigDeviceAdded   = "DeviceAdded"
	SigDeviceRemoved = "DeviceRemoved"
)

// DevicePath returns the object path of device hci<id>.
func DevicePath(id int) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("%s/hci%d", DeviceRootPath, id))
}
