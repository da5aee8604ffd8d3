package adapter

import (
	"encoding/binary"
	"fmt"
	"syscall"

	"github.com/godbus/dbus/v5"

	"github.com/hcibus/hcid"
	"github.com/hcibus/hcid/bus"
	"github.com/hcibus/hcid/hw"
	"github.com/hcibus/hcid/status"
)

// query runs one command round trip and strips the leading status byte.
// The second return is a ready failure reply, nil on success.
func (a *Adapter) query(msg *dbus.Message, id int, ogf, ocf uint16, param []byte, want int) ([]byte, *dbus.Message) {
	b, err := a.cmd.Request(id, hw.Request{OGF: ogf, OCF: ocf, Param: param}, a.cmdTimeout)
	if err != nil {
		return nil, bus.NewFailure(msg, status.FromError(err))
	}
	if len(b) < 1 {
		return nil, bus.NewFailure(msg, status.System(syscall.EIO))
	}
	if b[0] != 0 {
		return nil, bus.NewFailure(msg, status.FromHCI(b[0]))
	}
	if len(b) < 1+want {
		return nil, bus.NewFailure(msg, status.System(syscall.EIO))
	}
	return b[1:], nil
}

func (a *Adapter) notImplemented(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	return bus.NewFailure(msg, status.NotImplemented)
}

func stringArg(msg *dbus.Message, i int) (string, bool) {
	if i >= len(msg.Body) {
		return "", false
	}
	s, ok := msg.Body[i].(string)
	return s, ok
}

func byteArg(msg *dbus.Message, i int) (uint8, bool) {
	if i >= len(msg.Body) {
		return 0, false
	}
	b, ok := msg.Body[i].(byte)
	return b, ok
}

func peerArg(msg *dbus.Message) (hcid.BDAddr, *dbus.Message) {
	s, ok := stringArg(msg, 0)
	if !ok {
		return hcid.BDAddr{}, bus.NewFailure(msg, status.WrongParam)
	}
	peer, err := hcid.ParseBDAddr(s)
	if err != nil {
		return hcid.BDAddr{}, bus.NewFailure(msg, status.WrongParam)
	}
	return peer, nil
}

func newDeviceTable(a *Adapter) *bus.ServiceTable {
	return &bus.ServiceTable{
		Interface: bus.DeviceInterface,
		Mode:      bus.RouteExactSignature,
		Entries: []bus.ServiceEntry{
			{Name: "GetAddress", Handler: a.handleGetAddress, Signature: ""},
			{Name: "GetAlias", Handler: a.notImplemented, Signature: "s"},
			{Name: "GetCompany", Handler: a.handleGetCompany, Signature: ""},
			{Name: "GetDiscoverableTimeout", Handler: a.notImplemented, Signature: ""},
			{Name: "GetFeatures", Handler: a.notImplemented, Signature: ""},
			{Name: "GetManufacturer", Handler: a.handleGetManufacturer, Signature: ""},
			{Name: "GetMode", Handler: a.handleGetMode, Signature: ""},
			{Name: "GetName", Handler: a.handleGetName, Signature: ""},
			{Name: "GetRevision", Handler: a.handleGetRevision, Signature: ""},
			{Name: "GetVersion", Handler: a.handleGetVersion, Signature: ""},

			{Name: "IsConnectable", Handler: a.handleIsConnectable, Signature: ""},
			{Name: "IsDiscoverable", Handler: a.handleIsDiscoverable, Signature: ""},

			{Name: "SetAlias", Handler: a.notImplemented, Signature: "ss"},
			{Name: "SetClass", Handler: a.notImplemented, Signature: "u"},
			{Name: "SetDiscoverableTimeout", Handler: a.notImplemented, Signature: "u"},
			{Name: "SetMode", Handler: a.handleSetMode, Signature: "y"},
			{Name: "SetName", Handler: a.handleSetName, Signature: "s"},

			{Name: "DiscoverDevices", Handler: a.handleDiscoverDevices, Signature: ""},
			{Name: "DiscoverDevicesCache", Handler: a.notImplemented, Signature: ""},
			{Name: "CancelDiscovery", Handler: a.handleCancelDiscovery, Signature: ""},
			{Name: "DiscoverService", Handler: a.notImplemented, Signature: "s"},

			{Name: "LastSeen", Handler: a.notImplemented, Signature: "s"},
			{Name: "LastUsed", Handler: a.notImplemented, Signature: "s"},

			{Name: "RemoteAlias", Handler: a.notImplemented, Signature: "s"},
			{Name: "RemoteName", Handler: a.handleRemoteName, Signature: "s"},
			{Name: "RemoteVersion", Handler: a.notImplemented, Signature: "s"},

			{Name: "CreateBonding", Handler: a.handleCreateBonding, Signature: "s"},
			{Name: "ListBondings", Handler: a.notImplemented, Signature: ""},
			{Name: "HasBonding", Handler: a.notImplemented, Signature: "s"},
			{Name: "RemoveBonding", Handler: a.notImplemented, Signature: "s"},

			{Name: "PinCodeLength", Handler: a.notImplemented, Signature: "s"},
			{Name: "EncryptionKeySize", Handler: a.notImplemented, Signature: "s"},
		},
	}
}

func newManagerTable(a *Adapter) *bus.ServiceTable {
	return &bus.ServiceTable{
		Interface: bus.ManagerInterface,
		Mode:      bus.RouteFirstMatch,
		Entries: []bus.ServiceEntry{
			{Name: "DeviceList", Handler: a.handleDeviceList, Signature: ""},
			{Name: "DefaultDevice", Handler: a.handleDefaultDevice, Signature: ""},
		},
	}
}

func (a *Adapter) handleGetAddress(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	b, fail := a.query(msg, ctx.DeviceID, hw.OGFInfoParams, hw.OCFReadBDAddr, nil, 6)
	if fail != nil {
		return fail
	}
	return bus.NewReply(msg, hcid.BDAddrFromWire(b[:6]).String())
}

// localVersion fetches the Read_Local_Version_Information block:
// hci_ver(1) hci_rev(2) lmp_ver(1) manufacturer(2) lmp_subver(2).
func (a *Adapter) localVersion(ctx *bus.DeviceContext, msg *dbus.Message) ([]byte, *dbus.Message) {
	return a.query(msg, ctx.DeviceID, hw.OGFInfoParams, hw.OCFReadLocalVersion, nil, 8)
}

func (a *Adapter) handleGetCompany(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	b, fail := a.localVersion(ctx, msg)
	if fail != nil {
		return fail
	}
	return bus.NewReply(msg, hw.CompanyString(binary.LittleEndian.Uint16(b[4:])))
}

func (a *Adapter) handleGetManufacturer(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	b, fail := a.localVersion(ctx, msg)
	if fail != nil {
		return fail
	}
	return bus.NewReply(msg, hw.CompanyString(binary.LittleEndian.Uint16(b[4:])))
}

func (a *Adapter) handleGetRevision(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	b, fail := a.localVersion(ctx, msg)
	if fail != nil {
		return fail
	}
	return bus.NewReply(msg, fmt.Sprintf("Build %d", binary.LittleEndian.Uint16(b[1:])))
}

func (a *Adapter) handleGetVersion(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	b, fail := a.localVersion(ctx, msg)
	if fail != nil {
		return fail
	}
	return bus.NewReply(msg, fmt.Sprintf("Bluetooth %s", hw.VersionString(b[3])))
}

// handleGetMode answers from the cached scan enable, no hardware round
// trip.
func (a *Adapter) handleGetMode(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	return bus.NewReply(msg, scanToMode(ctx.ScanEnable))
}

func (a *Adapter) handleIsConnectable(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	return bus.NewReply(msg, ctx.ScanEnable&hw.ScanPage != 0)
}

func (a *Adapter) handleIsDiscoverable(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	return bus.NewReply(msg, ctx.ScanEnable&hw.ScanInquiry != 0)
}

func (a *Adapter) handleGetName(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	b, fail := a.query(msg, ctx.DeviceID, hw.OGFHostCtl, hw.OCFReadLocalName, nil, 1)
	if fail != nil {
		return fail
	}
	return bus.NewReply(msg, cString(b))
}

// handleSetMode writes the scan enable for the requested mode. The write
// is skipped when the cached value already matches; the cache itself is
// refreshed by the resulting mode-change event, not here.
func (a *Adapter) handleSetMode(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	mode, ok := byteArg(msg, 0)
	if !ok {
		return bus.NewFailure(msg, status.WrongParam)
	}
	scan, ok := modeToScan(mode)
	if !ok {
		return bus.NewFailure(msg, status.WrongParam)
	}
	if scan == ctx.ScanEnable {
		return bus.NewReply(msg)
	}
	_, fail := a.query(msg, ctx.DeviceID, hw.OGFHostCtl, hw.OCFWriteScanEnable, []byte{scan}, 0)
	if fail != nil {
		return fail
	}
	return bus.NewReply(msg)
}

func (a *Adapter) handleSetName(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	name, ok := stringArg(msg, 0)
	if !ok || name == "" {
		return bus.NewFailure(msg, status.WrongParam)
	}
	param := make([]byte, hw.MaxNameLen)
	copy(param, name)
	_, fail := a.query(msg, ctx.DeviceID, hw.OGFHostCtl, hw.OCFChangeLocalName, param, 0)
	if fail != nil {
		return fail
	}
	return bus.NewReply(msg)
}

func (a *Adapter) handleDiscoverDevices(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	b, err := a.cmd.Request(ctx.DeviceID, hw.Request{
		OGF:   hw.OGFLinkCtl,
		OCF:   hw.OCFInquiry,
		Param: hw.InquiryParam(8, 0),
		Event: hw.EvtCmdStatus,
	}, a.cmdTimeout)
	if err != nil {
		return bus.NewFailure(msg, status.FromError(err))
	}
	if len(b) < 1 {
		return bus.NewFailure(msg, status.System(syscall.EIO))
	}
	if b[0] != 0 {
		return bus.NewFailure(msg, status.FromHCI(b[0]))
	}
	return bus.NewReply(msg)
}

func (a *Adapter) handleCancelDiscovery(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	_, fail := a.query(msg, ctx.DeviceID, hw.OGFLinkCtl, hw.OCFInquiryCancel, nil, 0)
	if fail != nil {
		return fail
	}
	return bus.NewReply(msg)
}

// handleRemoteName answers from the name cache when possible, otherwise
// kicks off a Remote_Name_Request; the resolution arrives later as a
// signal either way.
func (a *Adapter) handleRemoteName(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	peer, fail := peerArg(msg)
	if fail != nil {
		return fail
	}

	if a.names != nil {
		if local, ok := a.localAddr(ctx.DeviceID); ok {
			if name, ok := a.names.Name(local, peer); ok {
				a.emit(bus.NewSignal(bus.DevicePath(ctx.DeviceID), bus.DeviceInterface,
					bus.SigRemoteNameUpdated, peer.String(), name))
				return bus.NewReply(msg)
			}
		}
	}

	// bdaddr(6) pscan_rep_mode(1) pscan_mode(1) clock_offset(2)
	param := make([]byte, 10)
	copy(param, peer.Wire())
	if err := a.cmd.Command(ctx.DeviceID, hw.OGFLinkCtl, hw.OCFRemoteNameRequest, param); err != nil {
		return bus.NewFailure(msg, status.FromError(err))
	}
	return bus.NewReply(msg)
}

// handleCreateBonding authenticates an existing link to the peer; with
// no link on this device the request fails with ConnNotFound.
func (a *Adapter) handleCreateBonding(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	peer, fail := peerArg(msg)
	if fail != nil {
		return fail
	}
	ci, err := a.devs.ConnInfo(ctx.DeviceID, peer)
	if err != nil {
		return bus.NewFailure(msg, status.ConnNotFound)
	}

	param := make([]byte, 2)
	binary.LittleEndian.PutUint16(param, ci.Handle)
	if err := a.cmd.Command(ctx.DeviceID, hw.OGFLinkCtl, hw.OCFAuthRequested, param); err != nil {
		return bus.NewFailure(msg, status.FromError(err))
	}
	return bus.NewReply(msg)
}

func (a *Adapter) localAddr(id int) (hcid.BDAddr, bool) {
	di, err := a.devs.Info(id)
	if err != nil {
		return hcid.BDAddr{}, false
	}
	return di.Addr, true
}

// deviceListEntry shapes one DeviceList row: (path, address, bus type,
// UP/DOWN, capability flags).
type deviceListEntry struct {
	Path         string
	Address      string
	Bus          string
	Flag         string
	Capabilities []string
}

func (a *Adapter) handleDeviceList(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	devs, err := a.devs.List()
	if err != nil {
		return bus.NewFailure(msg, status.FromError(err))
	}

	entries := make([]deviceListEntry, 0, len(devs))
	for _, di := range devs {
		flag := "DOWN"
		if hw.IsUp(di.Flags) {
			flag = "UP"
		}
		entries = append(entries, deviceListEntry{
			Path:         string(bus.DevicePath(di.ID)),
			Address:      di.Addr.String(),
			Bus:          hw.BusTypeString(di.BusType),
			Flag:         flag,
			Capabilities: hw.FlagNames(di.Flags),
		})
	}
	return bus.NewReply(msg, entries)
}

func (a *Adapter) handleDefaultDevice(ctx *bus.DeviceContext, msg *dbus.Message) *dbus.Message {
	if a.defaultDev < 0 {
		return bus.NewFailure(msg, status.System(syscall.ENODEV))
	}
	return bus.NewReply(msg, string(bus.DevicePath(a.defaultDev)))
}
