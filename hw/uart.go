package hw

import (
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"

	"github.com/hcibus/hcid"
)

// UARTCommander talks H4 over a serial port. The port carries a single
// controller, so the device id is ignored. The port opens lazily on the
// first command and stays open; round trips serialize on one mutex
// since replies are not tagged to a requester.
type UARTCommander struct {
	path string
	log  hcid.Logger

	mu   sync.Mutex
	port io.ReadWriteCloser
}

func NewUARTCommander(path string, log hcid.Logger) *UARTCommander {
	return &UARTCommander{path: path, log: log}
}

func (c *UARTCommander) open() (io.ReadWriteCloser, error) {
	if c.port != nil {
		return c.port, nil
	}
	sp, err := serial.Open(serial.OpenOptions{
		PortName:              c.path,
		BaudRate:              115200,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %s", c.path)
	}
	c.port = sp
	return sp, nil
}

func (c *UARTCommander) Request(id int, r Request, timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sp, err := c.open()
	if err != nil {
		return nil, err
	}
	b, err := roundTrip(sp, r, timeout)
	if err != nil {
		// resync on the next open
		sp.Close()
		c.port = nil
	}
	return b, err
}

func (c *UARTCommander) Command(id int, ogf, ocf uint16, param []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sp, err := c.open()
	if err != nil {
		return err
	}
	if _, err := sp.Write(commandPacket(ogf, ocf, param)); err != nil {
		sp.Close()
		c.port = nil
		return errors.Wrap(err, "send command")
	}
	return nil
}

// UARTDevices presents the single controller behind a serial port as
// device 0. Link state is out of reach over H4, so connection queries
// always miss.
type UARTDevices struct {
	Cmd     *UARTCommander
	Timeout time.Duration
}

func (d UARTDevices) Info(id int) (DeviceInfo, error) {
	if id != 0 {
		return DeviceInfo{}, errors.Wrapf(syscall.ENODEV, "no hci%d on uart", id)
	}
	b, err := d.Cmd.Request(0, Request{OGF: OGFInfoParams, OCF: OCFReadBDAddr}, d.Timeout)
	if err != nil {
		return DeviceInfo{}, err
	}
	if len(b) < 7 || b[0] != 0 {
		return DeviceInfo{}, errors.Wrap(syscall.EIO, "can't read controller address")
	}
	return DeviceInfo{
		ID:      0,
		Name:    "hci0",
		Addr:    hcid.BDAddrFromWire(b[1:7]),
		BusType: 3, // UART
		Flags:   1<<DevFlagUp | 1<<DevFlagRunning,
	}, nil
}

func (d UARTDevices) List() ([]DeviceInfo, error) {
	di, err := d.Info(0)
	if err != nil {
		return nil, err
	}
	return []DeviceInfo{di}, nil
}

func (d UARTDevices) Route() (int, error) { return 0, nil }

func (d UARTDevices) IDFor(local hcid.BDAddr) (int, error) {
	di, err := d.Info(0)
	if err != nil {
		return -1, err
	}
	if di.Addr != local {
		return -1, errors.Wrapf(syscall.ENODEV, "no device with address %s", local)
	}
	return 0, nil
}

func (d UARTDevices) ConnDevice(peer hcid.BDAddr) (int, error) {
	return -1, errors.Wrap(syscall.ENOTCONN, "connection state unavailable on uart")
}

func (d UARTDevices) ConnInfo(id int, peer hcid.BDAddr) (ConnInfo, error) {
	return ConnInfo{}, errors.Wrap(syscall.ENOTCONN, "connection state unavailable on uart")
}

func (c *UARTCommander) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}
