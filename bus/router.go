package bus

import (
	"github.com/godbus/dbus/v5"

	"github.com/hcibus/hcid"
	"github.com/hcibus/hcid/status"
)

// Handler serves one method. It returns the reply to send, which may be a
// failure message the handler built itself, or nil for no reply.
type Handler func(ctx *DeviceContext, msg *dbus.Message) *dbus.Message

// ServiceEntry is one immutable (name, handler, signature) row.
type ServiceEntry struct {
	Name      string
	Handler   Handler
	Signature string
}

// TableMode selects the routing strategy of a table. The two strategies
// differ on purpose: the device table keeps scanning past a name match with
// the wrong signature in case an exact-signature entry follows, while the
// manager table lets the first name match decide. Both behaviors are part
// of the wire contract and must not be unified.
type TableMode uint8

const (
	// RouteExactSignature: name+signature must match to invoke; a
	// name-only match records WrongSignature and scanning continues.
	// Requests resolved to a RoleRoot context get UnknownPath outright.
	RouteExactSignature TableMode = iota
	// RouteFirstMatch: the interface must equal the table's interface or
	// the message stays unhandled; the first name match decides, invoking
	// on signature match and failing with WrongSignature otherwise.
	RouteFirstMatch
)

// ServiceTable is a static method table bound to registered paths.
type ServiceTable struct {
	Interface string
	Mode      TableMode
	Entries   []ServiceEntry
}

// Result mirrors the transport's handled / not-yet-handled distinction.
type Result uint8

const (
	ResultNotHandled Result = iota
	ResultHandled
)

// Sender puts a message on the connection the request arrived on.
type Sender interface {
	Send(msg *dbus.Message) error
}

// Router dispatches inbound method calls through the registry.
type Router struct {
	reg *Registry
	out Sender
	log hcid.Logger
}

func NewRouter(reg *Registry, out Sender, log hcid.Logger) *Router {
	return &Router{reg: reg, out: out, log: log}
}

// Route resolves the target path and runs the table's strategy. Replies,
// including synthesized failures, go back through the router's sender; a
// send failure is logged and not retried.
func (rt *Router) Route(msg *dbus.Message) Result {
	path := Path(msg)
	ctx, table, ok := rt.reg.Lookup(path)
	if !ok || table == nil {
		return ResultNotHandled
	}

	rt.log.Debugf("method call path:%s member:%s", path, Member(msg))

	var reply *dbus.Message
	var res Result

	switch table.Mode {
	case RouteFirstMatch:
		reply, res = rt.routeFirstMatch(table, ctx, msg)
	default:
		reply, res = rt.routeExactSignature(table, ctx, msg)
	}

	if reply != nil {
		if err := rt.out.Send(reply); err != nil {
			rt.log.Errorf("can't send reply message: %s", err)
		}
	}
	return res
}

func (rt *Router) routeExactSignature(table *ServiceTable, ctx *DeviceContext, msg *dbus.Message) (*dbus.Message, Result) {
	member := Member(msg)
	sig := Signature(msg)

	if ctx.Role == RoleRoot {
		// The device is down (path unregistered) or the path is wrong.
		return NewFailure(msg, status.UnknownPath), ResultHandled
	}

	ecode := status.UnknownMethod
	res := ResultNotHandled

	for i := range table.Entries {
		e := &table.Entries[i]
		if e.Name != member {
			continue
		}

		res = ResultHandled

		if e.Signature == sig {
			return e.Handler(ctx, msg), res
		}
		// Keep scanning: another entry may share the name with a
		// different signature.
		ecode = status.WrongSignature
	}

	return NewFailure(msg, ecode), res
}

func (rt *Router) routeFirstMatch(table *ServiceTable, ctx *DeviceContext, msg *dbus.Message) (*dbus.Message, Result) {
	if Interface(msg) != table.Interface {
		return nil, ResultNotHandled
	}

	member := Member(msg)
	sig := Signature(msg)

	ecode := status.UnknownMethod
	res := ResultNotHandled

	for i := range table.Entries {
		e := &table.Entries[i]
		if e.Name != member {
			continue
		}

		res = ResultHandled

		if e.Signature != sig {
			ecode = status.WrongSignature
			break
		}
		return e.Handler(ctx, msg), res
	}

	return NewFailure(msg, ecode), res
}
