package hw

import (
	"bytes"
	"syscall"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/hcibus/hcid"
)

// scriptRW replays canned packets, one per Read, and records writes.
type scriptRW struct {
	wrote [][]byte
	reads [][]byte
}

func (s *scriptRW) Write(p []byte) (int, error) {
	b := make([]byte, len(p))
	copy(b, p)
	s.wrote = append(s.wrote, b)
	return len(p), nil
}

func (s *scriptRW) Read(p []byte) (int, error) {
	if len(s.reads) == 0 {
		return 0, nil
	}
	n := copy(p, s.reads[0])
	s.reads = s.reads[1:]
	return n, nil
}

func eventPacket(evt uint8, p ...byte) []byte {
	return append([]byte{pktTypeEvent, evt, uint8(len(p))}, p...)
}

func cmdCompletePacket(ogf, ocf uint16, ret ...byte) []byte {
	op := Opcode(ogf, ocf)
	p := append([]byte{1, uint8(op), uint8(op >> 8)}, ret...)
	return eventPacket(EvtCmdComplete, p...)
}

func TestRoundTripCommandComplete(t *testing.T) {
	rw := &scriptRW{reads: [][]byte{
		cmdCompletePacket(OGFHostCtl, OCFReadScanEnable, 0x00, ScanPage|ScanInquiry),
	}}
	b, err := roundTrip(rw, Request{OGF: OGFHostCtl, OCF: OCFReadScanEnable}, time.Second)
	if err != nil {
		t.Fatalf("roundTrip: %s", err)
	}
	if !bytes.Equal(b, []byte{0x00, ScanPage | ScanInquiry}) {
		t.Fatalf("got return params %x", b)
	}
	if len(rw.wrote) != 1 {
		t.Fatalf("wrote %d packets, want 1", len(rw.wrote))
	}
	want := commandPacket(OGFHostCtl, OCFReadScanEnable, nil)
	if !bytes.Equal(rw.wrote[0], want) {
		t.Fatalf("sent %x, want %x", rw.wrote[0], want)
	}
}

func TestRoundTripSkipsForeignOpcodes(t *testing.T) {
	rw := &scriptRW{reads: [][]byte{
		cmdCompletePacket(OGFHostCtl, OCFWriteScanEnable, 0x00),
		cmdCompletePacket(OGFHostCtl, OCFReadLocalName, 0x00, 'a', 0x00),
	}}
	b, err := roundTrip(rw, Request{OGF: OGFHostCtl, OCF: OCFReadLocalName}, time.Second)
	if err != nil {
		t.Fatalf("roundTrip: %s", err)
	}
	if b[0] != 0 || b[1] != 'a' {
		t.Fatalf("got return params %x", b)
	}
}

func TestRoundTripCommandStatusExpected(t *testing.T) {
	op := Opcode(OGFLinkCtl, OCFInquiry)
	rw := &scriptRW{reads: [][]byte{
		eventPacket(EvtCmdStatus, 0x00, 1, uint8(op), uint8(op>>8)),
	}}
	b, err := roundTrip(rw, Request{
		OGF: OGFLinkCtl, OCF: OCFInquiry,
		Param: InquiryParam(8, 0),
		Event: EvtCmdStatus,
	}, time.Second)
	if err != nil {
		t.Fatalf("roundTrip: %s", err)
	}
	if b[0] != 0 {
		t.Fatalf("got status 0x%02x", b[0])
	}
}

func TestRoundTripCommandStatusFailure(t *testing.T) {
	op := Opcode(OGFLinkCtl, OCFRemoteNameRequest)
	rw := &scriptRW{reads: [][]byte{
		eventPacket(EvtCmdStatus, 0x0c, 1, uint8(op), uint8(op>>8)),
	}}
	_, err := roundTrip(rw, Request{
		OGF: OGFLinkCtl, OCF: OCFRemoteNameRequest,
		Event: EvtRemoteNameReqComplete,
	}, time.Second)
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Cause(err) != syscall.EIO {
		t.Fatalf("cause = %v, want EIO", errors.Cause(err))
	}
}

func TestRoundTripTimeout(t *testing.T) {
	rw := &scriptRW{}
	_, err := roundTrip(rw, Request{OGF: OGFInfoParams, OCF: OCFReadBDAddr}, 10*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout")
	}
	if errors.Cause(err) != syscall.ETIMEDOUT {
		t.Fatalf("cause = %v, want ETIMEDOUT", errors.Cause(err))
	}
}

func TestPinCodeReplyParam(t *testing.T) {
	peer := hcid.BDAddr{0x13, 0x71, 0xda, 0x7d, 0x1a, 0x00}
	p := PinCodeReplyParam(peer, "1234")
	if len(p) != 23 {
		t.Fatalf("param length %d, want 23", len(p))
	}
	if !bytes.Equal(p[0:6], peer[:]) {
		t.Fatalf("peer bytes %x", p[0:6])
	}
	if p[6] != 4 || !bytes.Equal(p[7:11], []byte("1234")) {
		t.Fatalf("pin field %d %x", p[6], p[7:])
	}

	long := PinCodeReplyParam(peer, "01234567890123456789")
	if long[6] != MaxPinLen {
		t.Fatalf("length field %d, want %d", long[6], MaxPinLen)
	}
	if !bytes.Equal(long[7:], []byte("0123456789012345")) {
		t.Fatalf("pin bytes %x", long[7:])
	}
}

func TestInquiryParam(t *testing.T) {
	p := InquiryParam(8, 0)
	// GIAC little endian, then length and num_rsp
	want := []byte{0x33, 0x8b, 0x9e, 8, 0}
	if !bytes.Equal(p, want) {
		t.Fatalf("inquiry param %x, want %x", p, want)
	}
}
