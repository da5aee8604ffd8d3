package bus

import (
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/hcibus/hcid"
	"github.com/hcibus/hcid/status"
)

type recordingSender struct {
	sent []*dbus.Message
}

func (s *recordingSender) Send(msg *dbus.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func newCall(path dbus.ObjectPath, iface, member, sig string, body ...interface{}) *dbus.Message {
	msg := &dbus.Message{
		Type: dbus.TypeMethodCall,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldPath:      dbus.MakeVariant(path),
			dbus.FieldInterface: dbus.MakeVariant(iface),
			dbus.FieldMember:    dbus.MakeVariant(member),
			dbus.FieldSender:    dbus.MakeVariant(":1.42"),
		},
		Body: body,
	}
	if sig != "" {
		msg.Headers[dbus.FieldSignature] = dbus.MakeVariant(dbus.ParseSignatureMust(sig))
	}
	return msg
}

func failureCode(t *testing.T, msg *dbus.Message) status.Code {
	t.Helper()
	if msg.Type != dbus.TypeError {
		t.Fatalf("expected error reply, got type %d", msg.Type)
	}
	if len(msg.Body) != 2 {
		t.Fatalf("failure reply body must carry description and code, got %v", msg.Body)
	}
	code, ok := msg.Body[1].(uint32)
	if !ok {
		t.Fatalf("failure code must be uint32, got %T", msg.Body[1])
	}
	return status.Code(code)
}

func testRouter(t *testing.T, table *ServiceTable) (*Router, *Registry, *recordingSender) {
	t.Helper()
	reg := NewRegistry()
	out := &recordingSender{}
	rt := NewRouter(reg, out, hcid.GetLogger())
	if err := reg.Register(DeviceRootPath, RoleRoot, -1, table, true); err != nil {
		t.Fatalf("register root: %s", err)
	}
	return rt, reg, out
}

func TestRouteRootPathIsUnknownPath(t *testing.T) {
	calls := 0
	table := &ServiceTable{
		Interface: DeviceInterface,
		Mode:      RouteExactSignature,
		Entries: []ServiceEntry{
			{"GetName", func(*DeviceContext, *dbus.Message) *dbus.Message { calls++; return nil }, ""},
		},
	}
	rt, _, out := testRouter(t, table)

	// No concrete device is registered: the fallback root answers and
	// refuses, whatever the member or signature.
	for _, m := range []*dbus.Message{
		newCall(DevicePath(3), DeviceInterface, "GetName", ""),
		newCall(DevicePath(3), DeviceInterface, "NoSuchMethod", "ss", "a", "b"),
	} {
		if res := rt.Route(m); res != ResultHandled {
			t.Fatalf("root path request must be handled")
		}
	}
	if calls != 0 {
		t.Fatalf("no handler may run for the root path")
	}
	for _, sent := range out.sent {
		if failureCode(t, sent) != status.UnknownPath {
			t.Fatalf("want UnknownPath, got %#x", failureCode(t, sent))
		}
	}
}

func TestRouteDeviceExactSignature(t *testing.T) {
	calls := 0
	table := &ServiceTable{
		Interface: DeviceInterface,
		Mode:      RouteExactSignature,
		Entries: []ServiceEntry{
			{"SetName", func(ctx *DeviceContext, msg *dbus.Message) *dbus.Message {
				calls++
				return NewReply(msg)
			}, "s"},
		},
	}
	rt, reg, out := testRouter(t, table)
	if err := reg.Register(DevicePath(0), RoleDevice, 0, table, false); err != nil {
		t.Fatalf("register device: %s", err)
	}

	if res := rt.Route(newCall(DevicePath(0), DeviceInterface, "SetName", "s", "probe")); res != ResultHandled {
		t.Fatalf("exact match must be handled")
	}
	if calls != 1 {
		t.Fatalf("handler must run exactly once, ran %d times", calls)
	}
	if out.sent[0].Type != dbus.TypeMethodReply {
		t.Fatalf("want method reply, got type %d", out.sent[0].Type)
	}

	// Same name, wrong signature: no handler, WrongSignature reply.
	rt.Route(newCall(DevicePath(0), DeviceInterface, "SetName", "y", byte(1)))
	if calls != 1 {
		t.Fatalf("handler must not run on signature mismatch")
	}
	if failureCode(t, out.sent[1]) != status.WrongSignature {
		t.Fatalf("want WrongSignature, got %#x", failureCode(t, out.sent[1]))
	}

	// Unknown member.
	rt.Route(newCall(DevicePath(0), DeviceInterface, "Bogus", ""))
	if failureCode(t, out.sent[2]) != status.UnknownMethod {
		t.Fatalf("want UnknownMethod, got %#x", failureCode(t, out.sent[2]))
	}
}

func TestRouteDeviceKeepsScanningOnSharedName(t *testing.T) {
	var hit string
	mk := func(tag string) Handler {
		return func(ctx *DeviceContext, msg *dbus.Message) *dbus.Message {
			hit = tag
			return NewReply(msg)
		}
	}
	table := &ServiceTable{
		Interface: DeviceInterface,
		Mode:      RouteExactSignature,
		Entries: []ServiceEntry{
			{"Lookup", mk("string"), "s"},
			{"Lookup", mk("byte"), "y"},
		},
	}
	rt, reg, out := testRouter(t, table)
	reg.Register(DevicePath(0), RoleDevice, 0, table, false)

	// The second entry with the same name must still be reachable.
	rt.Route(newCall(DevicePath(0), DeviceInterface, "Lookup", "y", byte(9)))
	if hit != "byte" {
		t.Fatalf("scan must continue past a name match with wrong signature, hit %q", hit)
	}

	// No entry matches the signature: last recorded error wins.
	hit = ""
	rt.Route(newCall(DevicePath(0), DeviceInterface, "Lookup", "u", uint32(1)))
	if hit != "" {
		t.Fatalf("no handler may run, hit %q", hit)
	}
	if failureCode(t, out.sent[len(out.sent)-1]) != status.WrongSignature {
		t.Fatalf("want WrongSignature after exhausted scan")
	}
}

func TestRouteManagerFirstMatchDecides(t *testing.T) {
	var hit string
	mk := func(tag string) Handler {
		return func(ctx *DeviceContext, msg *dbus.Message) *dbus.Message {
			hit = tag
			return NewReply(msg)
		}
	}
	table := &ServiceTable{
		Interface: ManagerInterface,
		Mode:      RouteFirstMatch,
		Entries: []ServiceEntry{
			{"Resolve", mk("empty"), ""},
			{"Resolve", mk("string"), "s"},
		},
	}
	reg := NewRegistry()
	out := &recordingSender{}
	rt := NewRouter(reg, out, hcid.GetLogger())
	reg.Register(ManagerPath, RoleManager, -1, table, false)

	// The first name match decides even though a later entry carries the
	// matching signature.
	res := rt.Route(newCall(ManagerPath, ManagerInterface, "Resolve", "s", "x"))
	if res != ResultHandled {
		t.Fatalf("manager name match must mark the message handled")
	}
	if hit != "" {
		t.Fatalf("no handler may run on first-match signature mismatch, hit %q", hit)
	}
	if failureCode(t, out.sent[0]) != status.WrongSignature {
		t.Fatalf("want WrongSignature, got %#x", failureCode(t, out.sent[0]))
	}

	// Exact match on the first entry invokes it.
	rt.Route(newCall(ManagerPath, ManagerInterface, "Resolve", ""))
	if hit != "empty" {
		t.Fatalf("want first entry invoked, hit %q", hit)
	}
}

func TestRouteManagerForeignInterfaceUnhandled(t *testing.T) {
	table := &ServiceTable{
		Interface: ManagerInterface,
		Mode:      RouteFirstMatch,
		Entries: []ServiceEntry{
			{"DeviceList", func(ctx *DeviceContext, msg *dbus.Message) *dbus.Message {
				return NewReply(msg)
			}, ""},
		},
	}
	reg := NewRegistry()
	out := &recordingSender{}
	rt := NewRouter(reg, out, hcid.GetLogger())
	reg.Register(ManagerPath, RoleManager, -1, table, false)

	res := rt.Route(newCall(ManagerPath, "org.freedesktop.DBus.Introspectable", "Introspect", ""))
	if res != ResultNotHandled {
		t.Fatalf("foreign interface must stay unhandled")
	}
	if len(out.sent) != 0 {
		t.Fatalf("nothing may be sent for an unhandled message")
	}
}

func TestRouteUnknownPathUnhandled(t *testing.T) {
	rt, _, out := testRouter(t, &ServiceTable{Interface: DeviceInterface})
	res := rt.Route(newCall("/somewhere/else", DeviceInterface, "GetName", ""))
	if res != ResultNotHandled {
		t.Fatalf("unregistered path must stay unhandled")
	}
	if len(out.sent) != 0 {
		t.Fatalf("nothing may be sent for an unhandled path")
	}
}
