package bus

import (
	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/hcibus/hcid"
)

// Conn is the adapter's view of an acquired bus connection. Inbound
// traffic arrives raw on Messages; Disconnected fires when the transport
// is lost.
type Conn interface {
	// Send puts a message on the connection.
	Send(msg *dbus.Message) error
	// SendCall sends a method call and returns its assigned serial for
	// reply correlation. The reply arrives on Messages.
	SendCall(msg *dbus.Message) (uint32, error)
	Messages() <-chan *dbus.Message
	Disconnected() <-chan struct{}
	Close() error
}

// Dialer acquires a connection and claims the adapter's well-known name.
type Dialer func() (Conn, error)

const intakeDepth = 256

type sysConn struct {
	conn *dbus.Conn
	msgs chan *dbus.Message
}

// SystemDialer dials a private system-bus connection, claims Service and
// switches the connection to raw message intake. Each step's failure tears
// the half-built connection down again.
func SystemDialer(log hcid.Logger) Dialer {
	return func() (Conn, error) {
		conn, err := dbus.SystemBusPrivate()
		if err != nil {
			return nil, errors.Wrap(err, "can't open system bus connection")
		}
		if err := conn.Auth(nil); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "can't authenticate to system bus")
		}
		if err := conn.Hello(); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "can't register on system bus")
		}

		reply, err := conn.RequestName(Service, dbus.NameFlagDoNotQueue)
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "can't request name %s", Service)
		}
		if reply != dbus.RequestNameReplyPrimaryOwner {
			conn.Close()
			return nil, errors.Errorf("name %s already taken (reply %d)", Service, reply)
		}

		// All further inbound traffic, replies included, flows raw
		// through the adapter loop. Name claiming above must stay in
		// front of this switch.
		msgs := make(chan *dbus.Message, intakeDepth)
		conn.Eavesdrop(msgs)

		log.Infof("connected to system bus as %s", Service)
		return &sysConn{conn: conn, msgs: msgs}, nil
	}
}

func (c *sysConn) Send(msg *dbus.Message) error {
	call := c.conn.Send(msg, nil)
	if call != nil && call.Err != nil {
		return errors.Wrap(call.Err, "bus send failed")
	}
	return nil
}

func (c *sysConn) SendCall(msg *dbus.Message) (uint32, error) {
	// The reply comes back through the eavesdrop channel, so the
	// completion godbus tracks here is never delivered; it is reclaimed
	// when the connection closes.
	call := c.conn.Send(msg, make(chan *dbus.Call, 1))
	if call != nil && call.Err != nil {
		return 0, errors.Wrap(call.Err, "bus call send failed")
	}
	return msg.Serial(), nil
}

func (c *sysConn) Messages() <-chan *dbus.Message {
	return c.msgs
}

func (c *sysConn) Disconnected() <-chan struct{} {
	return c.conn.Context().Done()
}

func (c *sysConn) Close() error {
	return c.conn.Close()
}
