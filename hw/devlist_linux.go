//go:build linux
// +build linux

package hw

import (
	"bytes"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/hcibus/hcid"
)

type devListRequest struct {
	devNum     uint16
	devRequest [hciMaxDevices]struct {
		id  uint16
		opt uint32
	}
}

// hciDevInfo mirrors struct hci_dev_info.
type hciDevInfo struct {
	ID         uint16
	Name       [8]byte
	Bdaddr     [6]byte
	Flags      uint32
	Type       uint8
	Features   [8]byte
	PktType    uint32
	LinkPolicy uint32
	LinkMode   uint32
	ACLMtu     uint16
	ACLPkts    uint16
	SCOMtu     uint16
	SCOPkts    uint16
	Stat       [10]uint32
}

// hciConnInfo mirrors struct hci_conn_info.
type hciConnInfo struct {
	Handle   uint16
	Bdaddr   [6]byte
	Type     uint8
	Out      uint8
	State    uint16
	LinkMode uint32
}

type connListRequest struct {
	devID   uint16
	connNum uint16
	conns   [hciMaxConns]hciConnInfo
}

// SysDevices enumerates controllers through the HCI control ioctls.
type SysDevices struct{}

func (SysDevices) List() ([]DeviceInfo, error) {
	fd, err := controlSocket()
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	req := devListRequest{devNum: hciMaxDevices}
	if err := ioctl(uintptr(fd), hciGetDeviceList, uintptr(unsafe.Pointer(&req))); err != nil {
		return nil, errors.Wrap(err, "can't get device list")
	}
	devs := make([]DeviceInfo, 0, req.devNum)
	for i := 0; i < int(req.devNum); i++ {
		di, err := devInfo(fd, int(req.devRequest[i].id))
		if err != nil {
			continue
		}
		devs = append(devs, di)
	}
	return devs, nil
}

func (SysDevices) Info(id int) (DeviceInfo, error) {
	fd, err := controlSocket()
	if err != nil {
		return DeviceInfo{}, err
	}
	defer unix.Close(fd)
	return devInfo(fd, id)
}

func (d SysDevices) Route() (int, error) {
	devs, err := d.List()
	if err != nil {
		return -1, err
	}
	for _, di := range devs {
		if di.Flags&(1<<DevFlagUp) != 0 {
			return di.ID, nil
		}
	}
	return -1, errors.Wrap(syscall.ENODEV, "no device up")
}

func (d SysDevices) IDFor(local hcid.BDAddr) (int, error) {
	devs, err := d.List()
	if err != nil {
		return -1, err
	}
	for _, di := range devs {
		if di.Addr == local {
			return di.ID, nil
		}
	}
	return -1, errors.Wrapf(syscall.ENODEV, "no device with address %s", local)
}

func (d SysDevices) ConnDevice(peer hcid.BDAddr) (int, error) {
	devs, err := d.List()
	if err != nil {
		return -1, err
	}
	for _, di := range devs {
		if di.Flags&(1<<DevFlagUp) == 0 {
			continue
		}
		if _, err := d.ConnInfo(di.ID, peer); err == nil {
			return di.ID, nil
		}
	}
	return -1, errors.Wrapf(syscall.ENOTCONN, "no connection to %s", peer)
}

func (SysDevices) ConnInfo(id int, peer hcid.BDAddr) (ConnInfo, error) {
	fd, err := controlSocket()
	if err != nil {
		return ConnInfo{}, err
	}
	defer unix.Close(fd)

	req := connListRequest{devID: uint16(id), connNum: hciMaxConns}
	if err := ioctl(uintptr(fd), hciGetConnList, uintptr(unsafe.Pointer(&req))); err != nil {
		return ConnInfo{}, errors.Wrapf(err, "can't get connection list of hci%d", id)
	}
	for i := 0; i < int(req.connNum); i++ {
		ci := req.conns[i]
		if hcid.BDAddrFromWire(ci.Bdaddr[:]) == peer {
			return ConnInfo{Handle: ci.Handle, Initiator: ci.Out != 0}, nil
		}
	}
	return ConnInfo{}, errors.Wrapf(syscall.ENOTCONN, "hci%d has no connection to %s", id, peer)
}

// connPeerByHandle resolves an ACL handle to the peer address, or zero
// if the link is already gone.
func connPeerByHandle(id int, handle uint16) hcid.BDAddr {
	fd, err := controlSocket()
	if err != nil {
		return hcid.BDAddr{}
	}
	defer unix.Close(fd)

	req := connListRequest{devID: uint16(id), connNum: hciMaxConns}
	if err := ioctl(uintptr(fd), hciGetConnList, uintptr(unsafe.Pointer(&req))); err != nil {
		return hcid.BDAddr{}
	}
	for i := 0; i < int(req.connNum); i++ {
		if req.conns[i].Handle == handle {
			return hcid.BDAddrFromWire(req.conns[i].Bdaddr[:])
		}
	}
	return hcid.BDAddr{}
}

func devInfo(fd, id int) (DeviceInfo, error) {
	di := hciDevInfo{ID: uint16(id)}
	if err := ioctl(uintptr(fd), hciGetDeviceInfo, uintptr(unsafe.Pointer(&di))); err != nil {
		return DeviceInfo{}, errors.Wrapf(err, "can't get info of hci%d", id)
	}
	name := di.Name[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return DeviceInfo{
		ID:      int(di.ID),
		Name:    string(name),
		Addr:    hcid.BDAddrFromWire(di.Bdaddr[:]),
		BusType: di.Type,
		Flags:   di.Flags,
	}, nil
}
