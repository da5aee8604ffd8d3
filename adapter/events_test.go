package adapter

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/hcibus/hcid"
	"github.com/hcibus/hcid/bus"
	"github.com/hcibus/hcid/hw"
)

func TestScanModeTranslationTotal(t *testing.T) {
	cases := []struct {
		scan uint8
		mode uint8
	}{
		{hw.ScanDisabled, ModeOff},
		{hw.ScanPage, ModeConnectable},
		{hw.ScanPage | hw.ScanInquiry, ModeDiscoverable},
		{hw.ScanInquiry, ModeUnknown},
		{0x04, ModeUnknown},
		{0xff, ModeUnknown},
	}
	for _, c := range cases {
		if got := scanToMode(c.scan); got != c.mode {
			t.Fatalf("scanToMode(%#x) = %#x, want %#x", c.scan, got, c.mode)
		}
	}
}

func TestDiscoverySignals(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	env.a.handleHWEvent(hw.Event{Kind: hw.EvtKindDiscoveryStarted, Local: localA})
	env.a.handleHWEvent(hw.Event{
		Kind: hw.EvtKindDiscoveryResult, Local: localA,
		Peer: peerA, Class: 0x200404, RSSI: -60,
	})
	env.a.handleHWEvent(hw.Event{Kind: hw.EvtKindDiscoveryCompleted, Local: localA})

	if n := len(env.conn.signals(bus.SigDiscoveryStarted)); n != 1 {
		t.Fatalf("DiscoveryStarted signals = %d", n)
	}
	found := env.conn.signals(bus.SigRemoteDeviceFound)
	if len(found) != 1 {
		t.Fatalf("RemoteDeviceFound signals = %d", len(found))
	}
	sig := found[0]
	if bus.Path(sig) != bus.DevicePath(0) {
		t.Fatalf("signal path = %s", bus.Path(sig))
	}
	if sig.Body[0] != peerA.String() || sig.Body[1] != uint32(0x200404) || sig.Body[2] != int32(-60) {
		t.Fatalf("signal body = %v", sig.Body)
	}
	if n := len(env.conn.signals(bus.SigDiscoveryCompleted)); n != 1 {
		t.Fatalf("DiscoveryCompleted signals = %d", n)
	}
}

func TestEventForUnknownControllerDropped(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	stranger := hcid.BDAddr{9, 9, 9, 9, 9, 9}
	env.a.handleHWEvent(hw.Event{Kind: hw.EvtKindDiscoveryStarted, Local: stranger})

	if n := len(env.conn.signals(bus.SigDiscoveryStarted)); n != 0 {
		t.Fatalf("signal emitted for unknown controller")
	}
}

func TestModeChangedRefreshesCacheAndSignals(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := env.deviceCtx(t, 0)
	env.cmd.replies[hw.Opcode(hw.OGFHostCtl, hw.OCFReadScanEnable)] = []byte{0x00, hw.ScanPage}

	env.a.handleHWEvent(hw.Event{Kind: hw.EvtKindModeChanged, Local: localA})

	if ctx.ScanEnable != hw.ScanPage {
		t.Fatalf("cache = %#x", ctx.ScanEnable)
	}
	sigs := env.conn.signals(bus.SigModeChanged)
	if len(sigs) != 1 {
		t.Fatalf("ModeChanged signals = %d", len(sigs))
	}
	if sigs[0].Body[0] != ModeConnectable {
		t.Fatalf("mode = %v", sigs[0].Body[0])
	}
}

func TestModeChangedSuppressesUnknownBitmask(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := env.deviceCtx(t, 0)
	env.cmd.replies[hw.Opcode(hw.OGFHostCtl, hw.OCFReadScanEnable)] = []byte{0x00, hw.ScanInquiry}

	env.a.handleHWEvent(hw.Event{Kind: hw.EvtKindModeChanged, Local: localA})

	if ctx.ScanEnable != hw.ScanInquiry {
		t.Fatalf("cache = %#x, want refreshed value", ctx.ScanEnable)
	}
	if n := len(env.conn.signals(bus.SigModeChanged)); n != 0 {
		t.Fatalf("signal emitted for unknown bitmask")
	}
}

func TestNameChangedRereadsName(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.cmd.replies[hw.Opcode(hw.OGFHostCtl, hw.OCFReadLocalName)] =
		append([]byte{0x00}, "casira\x00rest"...)

	env.a.handleHWEvent(hw.Event{Kind: hw.EvtKindNameChanged, Local: localA})

	sigs := env.conn.signals(bus.SigNameChanged)
	if len(sigs) != 1 || sigs[0].Body[0] != "casira" {
		t.Fatalf("signals = %+v", sigs)
	}

	// a failed re-read announces the empty string
	env.cmd.errs[hw.Opcode(hw.OGFHostCtl, hw.OCFReadLocalName)] = errors.New("down")
	env.a.handleHWEvent(hw.Event{Kind: hw.EvtKindNameChanged, Local: localA})
	sigs = env.conn.signals(bus.SigNameChanged)
	if len(sigs) != 2 || sigs[1].Body[0] != "" {
		t.Fatalf("signals = %+v", sigs)
	}
}

func TestBondingCreatedSignal(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	env.a.handleHWEvent(hw.Event{
		Kind: hw.EvtKindBondingCompleted, Local: localA, Peer: peerA, Status: 0x05,
	})

	sigs := env.conn.signals(bus.SigBondingCreated)
	if len(sigs) != 1 {
		t.Fatalf("BondingCreated signals = %d", len(sigs))
	}
	if sigs[0].Body[0] != peerA.String() || sigs[0].Body[1] != uint8(0x05) {
		t.Fatalf("signal body = %v", sigs[0].Body)
	}
}

func TestRemoteNameEventFillsCache(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	env.a.handleHWEvent(hw.Event{
		Kind: hw.EvtKindRemoteName, Local: localA, Peer: peerA, Name: "headset",
	})

	if name, ok := env.a.names.Name(localA, peerA); !ok || name != "headset" {
		t.Fatalf("cached name = %q, %v", name, ok)
	}
	sigs := env.conn.signals(bus.SigRemoteNameUpdated)
	if len(sigs) != 1 || sigs[0].Body[1] != "headset" {
		t.Fatalf("signals = %+v", sigs)
	}
}

func TestHousekeepingSignalsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	before := len(env.conn.sent)

	for _, member := range []string{"NameOwnerChanged", "NameAcquired"} {
		sig := &dbus.Message{
			Type: dbus.TypeSignal,
			Headers: map[dbus.HeaderField]dbus.Variant{
				dbus.FieldPath:      dbus.MakeVariant(dbus.ObjectPath("/org/freedesktop/DBus")),
				dbus.FieldInterface: dbus.MakeVariant("org.freedesktop.DBus"),
				dbus.FieldMember:    dbus.MakeVariant(member),
			},
		}
		env.a.handleBusMessage(sig)
	}
	if len(env.conn.sent) != before {
		t.Fatalf("housekeeping signals produced traffic")
	}
}

func TestUnhandledMethodCallGetsStandardError(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	before := len(env.conn.sent)

	// manager path with a foreign interface is left unhandled by the table
	env.a.handleBusMessage(newCall(bus.ManagerPath, "org.freedesktop.DBus.Introspectable", "Introspect", ""))

	if len(env.conn.sent) != before+1 {
		t.Fatalf("replies = %d", len(env.conn.sent)-before)
	}
	reply := env.conn.sent[before]
	if reply.Type != dbus.TypeError {
		t.Fatalf("reply type = %d", reply.Type)
	}
	if name, _ := reply.Headers[dbus.FieldErrorName].Value().(string); name != "org.freedesktop.DBus.Error.UnknownMethod" {
		t.Fatalf("error name = %q", name)
	}
}
