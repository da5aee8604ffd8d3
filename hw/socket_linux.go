//go:build linux
// +build linux

package hw

import (
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/hcibus/hcid"
)

const (
	readTimeoutMs  = 100
	unixPollErrors = int16(unix.POLLHUP | unix.POLLNVAL | unix.POLLERR)
	unixPollDataIn = int16(unix.POLLIN)

	// SOL_HCI socket options.
	solHCI       = 0
	hciFilterOpt = 2
)

// hciFilter is struct hci_filter: packet type mask, 64-bit event mask
// and an opcode, all little endian.
func hciFilter(events ...uint8) []byte {
	f := make([]byte, 14)
	binary.LittleEndian.PutUint32(f[0:], 1<<uint(pktTypeEvent))
	if len(events) == 0 {
		binary.LittleEndian.PutUint32(f[4:], 0xffffffff)
		binary.LittleEndian.PutUint32(f[8:], 0xffffffff)
		return f
	}
	var mask uint64
	for _, e := range events {
		mask |= 1 << uint(e)
	}
	binary.LittleEndian.PutUint32(f[4:], uint32(mask))
	binary.LittleEndian.PutUint32(f[8:], uint32(mask>>32))
	return f
}

// devSocket is a raw HCI socket bound to one device.
type devSocket struct {
	fd   int
	rmu  sync.Mutex
	wmu  sync.Mutex
	cmu  sync.Mutex
	done chan struct{}
}

// openDev binds a raw socket to device id with the given event filter.
func openDev(id int, filter []byte) (*devSocket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, errors.Wrap(err, "can't create hci socket")
	}
	if err := unix.SetsockoptString(fd, solHCI, hciFilterOpt, string(filter)); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "can't set hci filter")
	}
	sa := unix.SockaddrHCI{Dev: uint16(id), Channel: unix.HCI_CHANNEL_RAW}
	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "can't bind hci%d", id)
	}
	return &devSocket{fd: fd, done: make(chan struct{})}, nil
}

func (s *devSocket) Read(p []byte) (int, error) {
	if !s.isOpen() {
		return 0, io.EOF
	}

	s.rmu.Lock()
	defer s.rmu.Unlock()
	pfds := []unix.PollFd{{Fd: int32(s.fd), Events: unixPollDataIn}}
	unix.Poll(pfds, readTimeoutMs)
	evts := pfds[0].Revents

	switch {
	case evts&unixPollErrors != 0:
		return 0, io.EOF
	case evts&unixPollDataIn == 0:
		// no data yet
		return 0, nil
	}

	n, err := unix.Read(s.fd, p)
	if !s.isOpen() {
		return 0, io.EOF
	}
	return n, errors.Wrap(err, "can't read hci socket")
}

func (s *devSocket) Write(p []byte) (int, error) {
	if !s.isOpen() {
		return 0, io.EOF
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	n, err := unix.Write(s.fd, p)
	return n, errors.Wrap(err, "can't write hci socket")
}

func (s *devSocket) Close() error {
	s.cmu.Lock()
	defer s.cmu.Unlock()
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
		s.rmu.Lock()
		err := unix.Close(s.fd)
		s.rmu.Unlock()
		return errors.Wrap(err, "can't close hci socket")
	}
}

func (s *devSocket) isOpen() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// SocketCommander runs command round trips over per-request raw sockets.
type SocketCommander struct {
	log hcid.Logger
}

func NewSocketCommander(log hcid.Logger) *SocketCommander {
	return &SocketCommander{log: log}
}

func (c *SocketCommander) Request(id int, r Request, timeout time.Duration) ([]byte, error) {
	evt := r.Event
	if evt == 0 {
		evt = EvtCmdComplete
	}
	s, err := openDev(id, hciFilter(EvtCmdStatus, EvtCmdComplete, evt))
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return roundTrip(s, r, timeout)
}

func (c *SocketCommander) Command(id int, ogf, ocf uint16, param []byte) error {
	s, err := openDev(id, hciFilter(EvtCmdStatus))
	if err != nil {
		return err
	}
	defer s.Close()
	_, err = s.Write(commandPacket(ogf, ocf, param))
	return err
}

func ioR(t, nr, size uintptr) uintptr {
	return (2 << 30) | (t << 8) | nr | (size << 16)
}

func ioctl(fd, op, arg uintptr) error {
	if _, _, ep := unix.Syscall(unix.SYS_IOCTL, fd, op, arg); ep != 0 {
		return ep
	}
	return nil
}

const (
	ioctlSize     = 4
	hciMaxDevices = 16
	hciMaxConns   = 16
	typHCI        = 72 // 'H'
)

var (
	hciGetDeviceList = ioR(typHCI, 210, ioctlSize) // HCIGETDEVLIST
	hciGetDeviceInfo = ioR(typHCI, 211, ioctlSize) // HCIGETDEVINFO
	hciGetConnList   = ioR(typHCI, 212, ioctlSize) // HCIGETCONNLIST
)

// controlSocket opens an unbound raw socket for ioctls.
func controlSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return -1, errors.Wrap(err, "can't create hci socket")
	}
	return fd, nil
}
