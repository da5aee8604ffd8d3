// Package hw is the boundary to the Bluetooth controller: synchronous
// command round trips, device enumeration and the asynchronous event
// stream. The adapter core only sees the interfaces defined here; the
// real implementations drive raw HCI sockets or an H4 UART.
package hw

import (
	"time"

	"github.com/hcibus/hcid"
)

// HCI packet types.
const (
	pktTypeCommand uint8 = 0x01
	pktTypeACLData uint8 = 0x02
	pktTypeEvent   uint8 = 0x04
)

// Opcode groups.
const (
	OGFLinkCtl    uint16 = 0x01
	OGFHostCtl    uint16 = 0x03
	OGFInfoParams uint16 = 0x04
)

// Link control commands.
const (
	OCFInquiry           uint16 = 0x0001
	OCFInquiryCancel     uint16 = 0x0002
	OCFAuthRequested     uint16 = 0x0011
	OCFRemoteNameRequest uint16 = 0x0019
	OCFPinCodeReply      uint16 = 0x000d
	OCFPinCodeNegReply   uint16 = 0x000e
)

// Host control commands.
const (
	OCFChangeLocalName uint16 = 0x0013
	OCFReadLocalName   uint16 = 0x0014
	OCFReadScanEnable  uint16 = 0x0019
	OCFWriteScanEnable uint16 = 0x001a
)

// Informational commands.
const (
	OCFReadLocalVersion uint16 = 0x0001
	OCFReadBDAddr       uint16 = 0x0009
)

// Event codes.
const (
	EvtInquiryComplete       uint8 = 0x01
	EvtInquiryResult         uint8 = 0x02
	EvtAuthComplete          uint8 = 0x06
	EvtRemoteNameReqComplete uint8 = 0x07
	EvtCmdComplete           uint8 = 0x0e
	EvtCmdStatus             uint8 = 0x0f
	EvtPinCodeRequest        uint8 = 0x16
	EvtInquiryResultWithRSSI uint8 = 0x22
)

// Page/inquiry scan enable bits.
const (
	ScanDisabled uint8 = 0x00
	ScanInquiry  uint8 = 0x01
	ScanPage     uint8 = 0x02
)

// Kernel hci_dev_info flag bits.
const (
	DevFlagUp      = 0
	DevFlagInit    = 1
	DevFlagRunning = 2
	DevFlagPScan   = 3
	DevFlagIScan   = 4
	DevFlagAuth    = 5
	DevFlagEncrypt = 6
	DevFlagInquiry = 7
	DevFlagRaw     = 8
	DevFlagSecMgr  = 9
)

// MaxPinLen is the PIN code field size of PIN_Code_Reply.
const MaxPinLen = 16

// MaxNameLen is the local name field size.
const MaxNameLen = 248

// GIAC, the general inquiry access code.
const InquiryLAP uint32 = 0x9e8b33

// Opcode packs an (ogf, ocf) pair.
func Opcode(ogf, ocf uint16) uint16 {
	return ocf | ogf<<10
}

// Request describes one synchronous command round trip. Event names the
// completion event to wait for; zero means Command Complete for the same
// opcode. The returned bytes are the event parameters, status first where
// the event carries one.
type Request struct {
	OGF   uint16
	OCF   uint16
	Param []byte
	Event uint8
}

// Commander issues commands to a controller identified by device id.
type Commander interface {
	// Request performs a synchronous round trip bounded by timeout.
	Request(id int, r Request, timeout time.Duration) ([]byte, error)
	// Command sends a command without waiting for any completion.
	Command(id int, ogf, ocf uint16, param []byte) error
}

// DeviceInfo describes one present controller.
type DeviceInfo struct {
	ID      int
	Name    string
	Addr    hcid.BDAddr
	BusType uint8
	Flags   uint32
}

// ConnInfo describes an established link on a controller.
type ConnInfo struct {
	Handle    uint16
	Initiator bool
}

// Devices enumerates controllers and their link state.
type Devices interface {
	List() ([]DeviceInfo, error)
	Info(id int) (DeviceInfo, error)
	// Route returns the first usable device id.
	Route() (int, error)
	// IDFor resolves a local controller address to its device id.
	IDFor(local hcid.BDAddr) (int, error)
	// ConnDevice returns the device id holding an ACL link to peer.
	ConnDevice(peer hcid.BDAddr) (int, error)
	// ConnInfo describes the link between id and peer.
	ConnInfo(id int, peer hcid.BDAddr) (ConnInfo, error)
}

// EventKind enumerates the controller events the adapter consumes.
type EventKind uint8

const (
	EvtKindDiscoveryStarted EventKind = iota
	EvtKindDiscoveryCompleted
	EvtKindDiscoveryResult
	EvtKindRemoteName
	EvtKindRemoteNameFailed
	EvtKindModeChanged
	EvtKindNameChanged
	EvtKindBondingCompleted
	EvtKindPinRequested
)

// Event is one hardware-originated notification.
type Event struct {
	Kind     EventKind
	DeviceID int
	Local    hcid.BDAddr
	Peer     hcid.BDAddr
	Handle   uint16
	Class    uint32
	RSSI     int8
	Status   uint8
	Name     string
}

// PinCodeReplyParam builds the PIN_Code_Reply parameters. The copy is
// length-counted: the replied string's byte length, capped at MaxPinLen,
// decides how many bytes go out.
func PinCodeReplyParam(peer hcid.BDAddr, pin string) []byte {
	p := make([]byte, 6+1+MaxPinLen)
	copy(p[0:6], peer.Wire())
	n := copy(p[7:], pin)
	p[6] = uint8(n)
	return p
}

// PinCodeNegReplyParam builds the PIN_Code_Negative_Reply parameters.
func PinCodeNegReplyParam(peer hcid.BDAddr) []byte {
	return peer.Wire()
}

// InquiryParam builds the Inquiry parameters: GIAC, length in 1.28s
// units, unlimited responses.
func InquiryParam(length, numRsp uint8) []byte {
	return []byte{
		uint8(InquiryLAP & 0xff), uint8((InquiryLAP >> 8) & 0xff), uint8((InquiryLAP >> 16) & 0xff),
		length, numRsp,
	}
}
