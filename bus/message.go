package bus

import (
	"github.com/godbus/dbus/v5"

	"github.com/hcibus/hcid/status"
)

// Messages are built on godbus's raw Message type so that method names,
// signatures and error bodies stay exactly under the adapter's control;
// the wire encoding itself is godbus's concern.

// NewSignal builds a signal message.
func NewSignal(path dbus.ObjectPath, iface, member string, args ...interface{}) *dbus.Message {
	msg := &dbus.Message{
		Type: dbus.TypeSignal,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldPath:      dbus.MakeVariant(path),
			dbus.FieldInterface: dbus.MakeVariant(iface),
			dbus.FieldMember:    dbus.MakeVariant(member),
		},
		Body: args,
	}
	if len(args) > 0 {
		msg.Headers[dbus.FieldSignature] = dbus.MakeVariant(dbus.SignatureOf(args...))
	}
	return msg
}

// NewMethodCall builds a method call addressed to a named service.
func NewMethodCall(dest string, path dbus.ObjectPath, iface, member string, args ...interface{}) *dbus.Message {
	msg := &dbus.Message{
		Type: dbus.TypeMethodCall,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldDestination: dbus.MakeVariant(dest),
			dbus.FieldPath:        dbus.MakeVariant(path),
			dbus.FieldInterface:   dbus.MakeVariant(iface),
			dbus.FieldMember:      dbus.MakeVariant(member),
		},
		Body: args,
	}
	if len(args) > 0 {
		msg.Headers[dbus.FieldSignature] = dbus.MakeVariant(dbus.SignatureOf(args...))
	}
	return msg
}

// NewReply builds a method return for req.
func NewReply(req *dbus.Message, args ...interface{}) *dbus.Message {
	msg := &dbus.Message{
		Type: dbus.TypeMethodReply,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldReplySerial: dbus.MakeVariant(req.Serial()),
		},
		Body: args,
	}
	if sender, ok := senderOf(req); ok {
		msg.Headers[dbus.FieldDestination] = dbus.MakeVariant(sender)
	}
	if len(args) > 0 {
		msg.Headers[dbus.FieldSignature] = dbus.MakeVariant(dbus.SignatureOf(args...))
	}
	return msg
}

// NewFailure builds an error reply for req carrying the code's description
// and the numeric code itself. It returns nil when the code has no known
// description; such replies are suppressed by the caller.
func NewFailure(req *dbus.Message, code status.Code) *dbus.Message {
	desc := status.Describe(code)
	if desc == "" {
		return nil
	}

	body := []interface{}{desc, uint32(code)}
	msg := &dbus.Message{
		Type: dbus.TypeError,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldReplySerial: dbus.MakeVariant(req.Serial()),
			dbus.FieldErrorName:   dbus.MakeVariant(ErrorName),
			dbus.FieldSignature:   dbus.MakeVariant(dbus.SignatureOf(body...)),
		},
		Body: body,
	}
	if sender, ok := senderOf(req); ok {
		msg.Headers[dbus.FieldDestination] = dbus.MakeVariant(sender)
	}
	return msg
}

// NewStandardError builds an error reply under a caller-chosen error
// name, for bus-level conditions that are not part of the adapter's own
// error space.
func NewStandardError(req *dbus.Message, name, desc string) *dbus.Message {
	body := []interface{}{desc}
	msg := &dbus.Message{
		Type: dbus.TypeError,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldReplySerial: dbus.MakeVariant(req.Serial()),
			dbus.FieldErrorName:   dbus.MakeVariant(name),
			dbus.FieldSignature:   dbus.MakeVariant(dbus.SignatureOf(body...)),
		},
		Body: body,
	}
	if sender, ok := senderOf(req); ok {
		msg.Headers[dbus.FieldDestination] = dbus.MakeVariant(sender)
	}
	return msg
}

func senderOf(msg *dbus.Message) (string, bool) {
	v, ok := msg.Headers[dbus.FieldSender]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

// Path returns the message's object path header.
func Path(msg *dbus.Message) dbus.ObjectPath {
	if v, ok := msg.Headers[dbus.FieldPath]; ok {
		if p, ok := v.Value().(dbus.ObjectPath); ok {
			return p
		}
	}
	return ""
}

// Interface returns the message's interface header.
func Interface(msg *dbus.Message) string {
	return stringHeader(msg, dbus.FieldInterface)
}

// Member returns the message's member header.
func Member(msg *dbus.Message) string {
	return stringHeader(msg, dbus.FieldMember)
}

// Signature returns the message's argument signature, "" when absent.
func Signature(msg *dbus.Message) string {
	if v, ok := msg.Headers[dbus.FieldSignature]; ok {
		if sig, ok := v.Value().(dbus.Signature); ok {
			return sig.String()
		}
	}
	return ""
}

// ReplySerial returns the serial the message replies to.
func ReplySerial(msg *dbus.Message) (uint32, bool) {
	v, ok := msg.Headers[dbus.FieldReplySerial]
	if !ok {
		return 0, false
	}
	s, ok := v.Value().(uint32)
	return s, ok
}

func stringHeader(msg *dbus.Message, field dbus.HeaderField) string {
	if v, ok := msg.Headers[field]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}
