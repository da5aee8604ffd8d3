// Package adapter is the daemon core: one event loop owning the bus
// connection, the object-path registry, the per-device contexts and the
// pending PIN negotiation, fed by bus intake, hardware events, the
// reconnect ticker and an internal task queue.
package adapter

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/hcibus/hcid"
	"github.com/hcibus/hcid/bus"
	"github.com/hcibus/hcid/hw"
	"github.com/hcibus/hcid/namecache"
)

const taskQueueDepth = 64

// Options carries the adapter's collaborators and tunables.
type Options struct {
	Dial   bus.Dialer
	Cmd    hw.Commander
	Devs   hw.Devices
	Events <-chan hw.Event
	Names  *namecache.Store
	Logger hcid.Logger

	CommandTimeout  time.Duration
	ReconnectPeriod time.Duration
	PinTimeout      time.Duration
}

// Adapter is the engine state. All fields are owned by the Run loop;
// outside goroutines reach it only through the task queue.
type Adapter struct {
	dial   bus.Dialer
	cmd    hw.Commander
	devs   hw.Devices
	events <-chan hw.Event
	names  *namecache.Store
	log    hcid.Logger

	cmdTimeout  time.Duration
	retryPeriod time.Duration

	conn    bus.Conn
	reg     *bus.Registry
	router  *bus.Router
	pending *bus.Tracker
	tasks   chan func()
	quit    chan struct{}
	retry   *time.Ticker

	deviceTable  *bus.ServiceTable
	managerTable *bus.ServiceTable

	// -1 while no device is registered
	defaultDev int
}

func New(o Options) *Adapter {
	a := &Adapter{
		dial:        o.Dial,
		cmd:         o.Cmd,
		devs:        o.Devs,
		events:      o.Events,
		names:       o.Names,
		log:         o.Logger,
		cmdTimeout:  o.CommandTimeout,
		retryPeriod: o.ReconnectPeriod,
		reg:         bus.NewRegistry(),
		tasks:       make(chan func(), taskQueueDepth),
		quit:        make(chan struct{}),
		defaultDev:  -1,
	}
	a.router = bus.NewRouter(a.reg, a, a.log)
	a.pending = bus.NewTracker(o.PinTimeout, a.tasks, a.quit)
	a.deviceTable = newDeviceTable(a)
	a.managerTable = newManagerTable(a)
	return a
}

// Send implements bus.Sender over the current connection.
func (a *Adapter) Send(msg *dbus.Message) error {
	if a.conn == nil {
		return errors.New("bus disconnected")
	}
	return a.conn.Send(msg)
}

// Do posts fn onto the adapter loop.
func (a *Adapter) Do(fn func()) {
	a.tasks <- fn
}

// Run drives the loop until ctx is done. The first connection attempt
// happens immediately; further attempts follow the reconnect ticker.
func (a *Adapter) Run(ctx context.Context) error {
	a.reconnect()

	for {
		var busMsgs <-chan *dbus.Message
		var disc <-chan struct{}
		if a.conn != nil {
			busMsgs = a.conn.Messages()
			disc = a.conn.Disconnected()
		}
		var tick <-chan time.Time
		if a.retry != nil {
			tick = a.retry.C
		}

		select {
		case <-ctx.Done():
			a.shutdown()
			return ctx.Err()
		case msg, ok := <-busMsgs:
			// godbus closes the intake channel when the connection dies;
			// that is a disconnect, not a message.
			if !ok {
				a.log.Warnf("bus intake closed")
				a.teardown()
				continue
			}
			a.handleBusMessage(msg)
		case <-disc:
			a.log.Warnf("bus connection lost")
			a.teardown()
		case ev := <-a.events:
			a.handleHWEvent(ev)
		case <-tick:
			a.reconnect()
		case task := <-a.tasks:
			task()
		}
	}
}

// connect acquires the bus and installs the root paths. Any failure
// leaves the adapter disconnected.
func (a *Adapter) connect() error {
	conn, err := a.dial()
	if err != nil {
		return err
	}
	if err := a.reg.Register(bus.DeviceRootPath, bus.RoleRoot, -1, a.deviceTable, true); err != nil {
		conn.Close()
		a.reg.Clear()
		return err
	}
	if err := a.reg.Register(bus.ManagerPath, bus.RoleManager, -1, a.managerTable, false); err != nil {
		conn.Close()
		a.reg.Clear()
		return err
	}
	a.conn = conn
	return nil
}

// reconnect runs one full connection attempt. On success the ticker is
// disarmed and every present device is (re)registered from scratch; on
// failure the ticker stays armed.
func (a *Adapter) reconnect() {
	if err := a.connect(); err != nil {
		a.log.Errorf("can't connect to bus: %s", err)
		if a.retry == nil {
			a.retry = time.NewTicker(a.retryPeriod)
		}
		return
	}
	if a.retry != nil {
		a.retry.Stop()
		a.retry = nil
	}

	a.defaultDev = -1
	devs, err := a.devs.List()
	if err != nil {
		a.log.Errorf("can't list devices: %s", err)
		return
	}
	for _, di := range devs {
		if err := a.registerDevice(di.ID); err != nil {
			a.log.Errorf("can't register hci%d: %s", di.ID, err)
		}
	}
}

// teardown drops the connection state. Pending PIN negotiations complete
// with a synthetic failure, which converges them on the negative reply.
func (a *Adapter) teardown() {
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	a.reg.Clear()
	a.defaultDev = -1
	a.pending.CancelAll()
	if a.retry == nil {
		a.retry = time.NewTicker(a.retryPeriod)
	}
}

func (a *Adapter) shutdown() {
	select {
	case <-a.quit:
	default:
		close(a.quit)
	}
	if a.retry != nil {
		a.retry.Stop()
		a.retry = nil
	}
	a.pending.CancelAll()
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	a.reg.Clear()
}

// registerDevice installs the device path and primes its scan-enable
// cache from hardware, defaulting to page+inquiry when the query fails.
func (a *Adapter) registerDevice(id int) error {
	path := bus.DevicePath(id)
	if err := a.reg.Register(path, bus.RoleDevice, id, a.deviceTable, false); err != nil {
		return err
	}

	scan := hw.ScanPage | hw.ScanInquiry
	b, err := a.cmd.Request(id, hw.Request{OGF: hw.OGFHostCtl, OCF: hw.OCFReadScanEnable}, a.cmdTimeout)
	if err != nil || len(b) < 2 || b[0] != 0 {
		a.log.Warnf("hci%d: can't read scan enable, assuming page|inquiry", id)
	} else {
		scan = b[1]
	}
	if ctx, _, ok := a.reg.Lookup(path); ok {
		ctx.ScanEnable = scan
	}

	if a.defaultDev < 0 {
		a.defaultDev = id
	}
	a.emit(bus.NewSignal(bus.ManagerPath, bus.ManagerInterface, bus.SigDeviceAdded, string(path)))
	return nil
}

// unregisterDevice removes the device path. When the default device
// goes away the pointer moves to the first available device, or none.
func (a *Adapter) unregisterDevice(id int) error {
	path := bus.DevicePath(id)
	a.emit(bus.NewSignal(bus.ManagerPath, bus.ManagerInterface, bus.SigDeviceRemoved, string(path)))
	err := a.reg.Unregister(path)
	if a.defaultDev == id {
		next, rerr := a.devs.Route()
		if rerr != nil {
			next = -1
		}
		a.defaultDev = next
	}
	return err
}

// AddDevice posts a device registration onto the loop, for hardware
// attach notifications.
func (a *Adapter) AddDevice(id int) {
	a.Do(func() {
		if a.conn == nil {
			return
		}
		if err := a.registerDevice(id); err != nil {
			a.log.Errorf("can't register hci%d: %s", id, err)
		}
	})
}

// RemoveDevice posts a device removal onto the loop.
func (a *Adapter) RemoveDevice(id int) {
	a.Do(func() {
		if a.conn == nil {
			return
		}
		if err := a.unregisterDevice(id); err != nil {
			a.log.Errorf("can't unregister hci%d: %s", id, err)
		}
	})
}

// emit sends a signal on the current connection; delivery is best
// effort.
func (a *Adapter) emit(msg *dbus.Message) {
	if a.conn == nil {
		return
	}
	if err := a.conn.Send(msg); err != nil {
		a.log.Errorf("can't send signal: %s", err)
	}
}
