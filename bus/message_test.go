package bus

import (
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/hcibus/hcid/status"
)

func TestNewFailureShape(t *testing.T) {
	req := newCall(DevicePath(0), DeviceInterface, "GetName", "")
	msg := NewFailure(req, status.UnknownMethod)
	if msg == nil {
		t.Fatalf("known code must produce a reply")
	}
	if msg.Type != dbus.TypeError {
		t.Fatalf("failure must be an error message")
	}
	if name := msg.Headers[dbus.FieldErrorName].Value().(string); name != ErrorName {
		t.Fatalf("wrong error name %q", name)
	}
	if msg.Body[0] != "Method not found" || msg.Body[1] != uint32(status.UnknownMethod) {
		t.Fatalf("wrong failure body %v", msg.Body)
	}
	if dest := msg.Headers[dbus.FieldDestination].Value().(string); dest != ":1.42" {
		t.Fatalf("failure must go back to the sender, got %q", dest)
	}
}

func TestNewFailureUnknownCodeSuppressed(t *testing.T) {
	req := newCall(DevicePath(0), DeviceInterface, "GetName", "")
	if msg := NewFailure(req, status.ProtoOffset|0xfe); msg != nil {
		t.Fatalf("unknown code must suppress the reply")
	}
}

func TestSignalSignatureHeader(t *testing.T) {
	msg := NewSignal(DevicePath(1), DeviceInterface, SigRemoteDeviceFound,
		"00:11:22:33:44:55", uint32(0x1f00), int32(-54))
	if got := Signature(msg); got != "sui" {
		t.Fatalf("want signature sui, got %q", got)
	}

	bare := NewSignal(DevicePath(1), DeviceInterface, SigDiscoveryStarted)
	if got := Signature(bare); got != "" {
		t.Fatalf("argless signal must carry no signature header, got %q", got)
	}
}

func TestMethodCallHeaders(t *testing.T) {
	msg := NewMethodCall(PinAgentService, PinAgentPath, PinAgentInterface,
		PinRequestMethod, false, []byte{1, 2, 3, 4, 5, 6})
	if Path(msg) != PinAgentPath || Interface(msg) != PinAgentInterface || Member(msg) != PinRequestMethod {
		t.Fatalf("wrong call headers: %v", msg.Headers)
	}
	if got := Signature(msg); got != "bay" {
		t.Fatalf("want signature bay, got %q", got)
	}
}
