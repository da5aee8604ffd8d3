package hw

import (
	"bytes"
	"encoding/binary"

	"github.com/hcibus/hcid"
)

// decodeEvent translates one raw HCI event into zero or more Events.
// Unknown or malformed events decode to nothing.
func decodeEvent(id int, local hcid.BDAddr, evt uint8, p []byte) []Event {
	base := Event{DeviceID: id, Local: local}

	switch evt {
	case EvtCmdStatus:
		if len(p) < 4 {
			return nil
		}
		if binary.LittleEndian.Uint16(p[2:]) != Opcode(OGFLinkCtl, OCFInquiry) || p[0] != 0 {
			return nil
		}
		e := base
		e.Kind = EvtKindDiscoveryStarted
		return []Event{e}

	case EvtInquiryComplete:
		if len(p) < 1 {
			return nil
		}
		e := base
		e.Kind = EvtKindDiscoveryCompleted
		e.Status = p[0]
		return []Event{e}

	case EvtInquiryResult:
		if len(p) < 1 {
			return nil
		}
		var out []Event
		// bdaddr(6) pscan_rep(1) pscan_period(1) pscan_mode(1) class(3) clock(2)
		for i, rest := 0, p[1:]; i < int(p[0]) && len(rest) >= 14; i, rest = i+1, rest[14:] {
			e := base
			e.Kind = EvtKindDiscoveryResult
			e.Peer = hcid.BDAddrFromWire(rest[0:6])
			e.Class = uint32(rest[9]) | uint32(rest[10])<<8 | uint32(rest[11])<<16
			out = append(out, e)
		}
		return out

	case EvtInquiryResultWithRSSI:
		if len(p) < 1 {
			return nil
		}
		var out []Event
		// bdaddr(6) pscan_rep(1) pscan_period(1) class(3) clock(2) rssi(1)
		for i, rest := 0, p[1:]; i < int(p[0]) && len(rest) >= 14; i, rest = i+1, rest[14:] {
			e := base
			e.Kind = EvtKindDiscoveryResult
			e.Peer = hcid.BDAddrFromWire(rest[0:6])
			e.Class = uint32(rest[8]) | uint32(rest[9])<<8 | uint32(rest[10])<<16
			e.RSSI = int8(rest[13])
			out = append(out, e)
		}
		return out

	case EvtRemoteNameReqComplete:
		if len(p) < 7 {
			return nil
		}
		e := base
		e.Status = p[0]
		e.Peer = hcid.BDAddrFromWire(p[1:7])
		if e.Status != 0 {
			e.Kind = EvtKindRemoteNameFailed
			return []Event{e}
		}
		e.Kind = EvtKindRemoteName
		name := p[7:]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		e.Name = string(name)
		return []Event{e}

	case EvtAuthComplete:
		if len(p) < 3 {
			return nil
		}
		e := base
		e.Kind = EvtKindBondingCompleted
		e.Status = p[0]
		e.Handle = binary.LittleEndian.Uint16(p[1:])
		return []Event{e}

	case EvtPinCodeRequest:
		if len(p) < 6 {
			return nil
		}
		e := base
		e.Kind = EvtKindPinRequested
		e.Peer = hcid.BDAddrFromWire(p[0:6])
		return []Event{e}

	case EvtCmdComplete:
		if len(p) < 3 {
			return nil
		}
		e := base
		switch binary.LittleEndian.Uint16(p[1:]) {
		case Opcode(OGFHostCtl, OCFWriteScanEnable):
			e.Kind = EvtKindModeChanged
		case Opcode(OGFHostCtl, OCFChangeLocalName):
			e.Kind = EvtKindNameChanged
		default:
			return nil
		}
		if len(p) >= 4 {
			e.Status = p[3]
		}
		return []Event{e}
	}
	return nil
}
