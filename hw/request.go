package hw

import (
	"encoding/binary"
	"io"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

const maxEventSize = 260

// commandPacket frames an H4 command packet.
func commandPacket(ogf, ocf uint16, param []byte) []byte {
	pkt := make([]byte, 4+len(param))
	pkt[0] = pktTypeCommand
	binary.LittleEndian.PutUint16(pkt[1:], Opcode(ogf, ocf))
	pkt[3] = uint8(len(param))
	copy(pkt[4:], param)
	return pkt
}

// roundTrip writes one command and reads event packets until the
// completion for r arrives or the deadline passes. The reader may
// return (0, nil) when nothing is pending; the loop polls on.
func roundTrip(rw io.ReadWriter, r Request, timeout time.Duration) ([]byte, error) {
	opcode := Opcode(r.OGF, r.OCF)
	if _, err := rw.Write(commandPacket(r.OGF, r.OCF, r.Param)); err != nil {
		return nil, errors.Wrap(err, "send command")
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, maxEventSize)
	for time.Now().Before(deadline) {
		n, err := rw.Read(buf)
		if err != nil {
			return nil, errors.Wrap(err, "read event")
		}
		if n < 3 || buf[0] != pktTypeEvent {
			continue
		}
		evt, plen := buf[1], int(buf[2])
		if n < 3+plen {
			continue
		}
		p := make([]byte, plen)
		copy(p, buf[3:3+plen])

		switch evt {
		case EvtCmdStatus:
			if plen < 4 || binary.LittleEndian.Uint16(p[2:]) != opcode {
				continue
			}
			if r.Event == EvtCmdStatus {
				return p, nil
			}
			if p[0] != 0 {
				return nil, errors.Wrapf(syscall.EIO, "command status 0x%02x", p[0])
			}
		case EvtCmdComplete:
			if plen < 3 || binary.LittleEndian.Uint16(p[1:]) != opcode {
				continue
			}
			if r.Event == 0 || r.Event == EvtCmdComplete {
				return p[3:], nil
			}
		default:
			if evt == r.Event {
				return p, nil
			}
		}
	}
	return nil, errors.Wrapf(syscall.ETIMEDOUT, "command 0x%04x", opcode)
}
