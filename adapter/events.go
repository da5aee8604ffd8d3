package adapter

import (
	"github.com/godbus/dbus/v5"

	"github.com/hcibus/hcid/bus"
	"github.com/hcibus/hcid/hw"
)

// Canonical scan modes of the bus contract.
const (
	ModeOff          uint8 = 0x00
	ModeConnectable  uint8 = 0x01
	ModeDiscoverable uint8 = 0x02
	// ModeUnknown is the sentinel for unrecognized scan bitmasks.
	ModeUnknown uint8 = 0xff
)

// scanToMode translates the hardware scan-enable bitmask. Total: bare
// inquiry scan and any other combination map to the sentinel.
func scanToMode(scan uint8) uint8 {
	switch scan {
	case hw.ScanDisabled:
		return ModeOff
	case hw.ScanPage:
		return ModeConnectable
	case hw.ScanPage | hw.ScanInquiry:
		return ModeDiscoverable
	default:
		return ModeUnknown
	}
}

// modeToScan is the inverse for the settable modes only.
func modeToScan(mode uint8) (uint8, bool) {
	switch mode {
	case ModeOff:
		return hw.ScanDisabled, true
	case ModeConnectable:
		return hw.ScanPage, true
	case ModeDiscoverable:
		return hw.ScanPage | hw.ScanInquiry, true
	default:
		return 0, false
	}
}

// handleBusMessage is the inbound filter chain: housekeeping signals are
// swallowed, replies feed the pending tracker, method calls go through
// the router and anything the router leaves unhandled gets the standard
// unknown-method error.
func (a *Adapter) handleBusMessage(msg *dbus.Message) {
	switch msg.Type {
	case dbus.TypeSignal:
		iface, member := bus.Interface(msg), bus.Member(msg)
		if iface == "org.freedesktop.DBus" &&
			(member == "NameOwnerChanged" || member == "NameAcquired") {
			return
		}
		// other signals are not ours to handle

	case dbus.TypeMethodReply, dbus.TypeError:
		if !a.pending.HandleReply(msg) {
			a.log.Debugf("unmatched reply serial")
		}

	case dbus.TypeMethodCall:
		if a.router.Route(msg) == bus.ResultHandled {
			return
		}
		reply := bus.NewStandardError(msg,
			"org.freedesktop.DBus.Error.UnknownMethod", "unknown method")
		if err := a.Send(reply); err != nil {
			a.log.Errorf("can't send error reply: %s", err)
		}
	}
}

// handleHWEvent translates one hardware event. Signals resolve their
// device by the local controller address; an unknown address drops the
// event.
func (a *Adapter) handleHWEvent(ev hw.Event) {
	if ev.Kind == hw.EvtKindPinRequested {
		a.requestPIN(ev)
		return
	}

	id, err := a.devs.IDFor(ev.Local)
	if err != nil {
		a.log.Warnf("event for unknown controller %s, dropping", ev.Local)
		return
	}
	path := bus.DevicePath(id)
	ctx, _, ok := a.reg.Lookup(path)
	if !ok || ctx.Role != bus.RoleDevice {
		a.log.Warnf("event for unregistered hci%d, dropping", id)
		return
	}

	switch ev.Kind {
	case hw.EvtKindDiscoveryStarted:
		a.emit(bus.NewSignal(path, bus.DeviceInterface, bus.SigDiscoveryStarted))

	case hw.EvtKindDiscoveryCompleted:
		a.emit(bus.NewSignal(path, bus.DeviceInterface, bus.SigDiscoveryCompleted))

	case hw.EvtKindDiscoveryResult:
		a.emit(bus.NewSignal(path, bus.DeviceInterface, bus.SigRemoteDeviceFound,
			ev.Peer.String(), ev.Class, int32(ev.RSSI)))

	case hw.EvtKindRemoteName:
		if a.names != nil {
			if err := a.names.Put(ev.Local, ev.Peer, ev.Name); err != nil {
				a.log.Warnf("can't cache name of %s: %s", ev.Peer, err)
			}
		}
		a.emit(bus.NewSignal(path, bus.DeviceInterface, bus.SigRemoteNameUpdated,
			ev.Peer.String(), ev.Name))

	case hw.EvtKindRemoteNameFailed:
		a.emit(bus.NewSignal(path, bus.DeviceInterface, bus.SigRemoteNameFailed,
			ev.Peer.String(), ev.Status))

	case hw.EvtKindModeChanged:
		a.modeChanged(ctx, path)

	case hw.EvtKindNameChanged:
		a.nameChanged(ctx, path)

	case hw.EvtKindBondingCompleted:
		a.emit(bus.NewSignal(path, bus.DeviceInterface, bus.SigBondingCreated,
			ev.Peer.String(), ev.Status))
	}
}

// modeChanged re-reads the scan enable, refreshes the cached value and
// announces the canonical mode. Unrecognized bitmasks update the cache
// but emit nothing.
func (a *Adapter) modeChanged(ctx *bus.DeviceContext, path dbus.ObjectPath) {
	b, err := a.cmd.Request(ctx.DeviceID,
		hw.Request{OGF: hw.OGFHostCtl, OCF: hw.OCFReadScanEnable}, a.cmdTimeout)
	if err != nil || len(b) < 2 || b[0] != 0 {
		a.log.Warnf("hci%d: can't read scan enable", ctx.DeviceID)
		return
	}
	ctx.ScanEnable = b[1]
	mode := scanToMode(b[1])
	if mode == ModeUnknown {
		return
	}
	a.emit(bus.NewSignal(path, bus.DeviceInterface, bus.SigModeChanged, mode))
}

// nameChanged re-reads the local name; a failed read announces the
// empty string.
func (a *Adapter) nameChanged(ctx *bus.DeviceContext, path dbus.ObjectPath) {
	name := ""
	b, err := a.cmd.Request(ctx.DeviceID,
		hw.Request{OGF: hw.OGFHostCtl, OCF: hw.OCFReadLocalName}, a.cmdTimeout)
	if err == nil && len(b) > 1 && b[0] == 0 {
		name = cString(b[1:])
	}
	a.emit(bus.NewSignal(path, bus.DeviceInterface, bus.SigNameChanged, name))
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
