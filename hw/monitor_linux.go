//go:build linux
// +build linux

package hw

import (
	"io"

	"github.com/hcibus/hcid"
)

// Monitor watches one controller's event stream and feeds the shared
// adapter channel until closed.
type Monitor struct {
	id    int
	local hcid.BDAddr
	sock  *devSocket
	done  chan struct{}
	log   hcid.Logger
}

// OpenMonitor binds an event-only socket to device id and starts the
// read loop. Bonding completions get their peer resolved from the
// kernel's connection list before delivery.
func OpenMonitor(id int, local hcid.BDAddr, out chan<- Event, log hcid.Logger) (*Monitor, error) {
	filter := hciFilter(
		EvtInquiryComplete, EvtInquiryResult, EvtInquiryResultWithRSSI,
		EvtRemoteNameReqComplete, EvtAuthComplete, EvtPinCodeRequest,
		EvtCmdComplete, EvtCmdStatus,
	)
	s, err := openDev(id, filter)
	if err != nil {
		return nil, err
	}
	m := &Monitor{
		id:    id,
		local: local,
		sock:  s,
		done:  make(chan struct{}),
		log:   log.ChildLogger(map[string]interface{}{"hci": id}),
	}
	go m.loop(out)
	return m, nil
}

func (m *Monitor) Close() error {
	select {
	case <-m.done:
		return nil
	default:
		close(m.done)
	}
	return m.sock.Close()
}

func (m *Monitor) loop(out chan<- Event) {
	buf := make([]byte, maxEventSize)
	for {
		n, err := m.sock.Read(buf)
		if err != nil {
			if err != io.EOF {
				m.log.Errorf("hci%d: monitor read: %s", m.id, err)
			}
			return
		}
		if n < 3 || buf[0] != pktTypeEvent {
			continue
		}
		evt, plen := buf[1], int(buf[2])
		if n < 3+plen {
			continue
		}
		for _, e := range decodeEvent(m.id, m.local, evt, buf[3:3+plen]) {
			if e.Kind == EvtKindBondingCompleted && e.Peer.IsZero() {
				// resolved right after AUTH_COMPLETE, while the link exists
				e.Peer = connPeerByHandle(m.id, e.Handle)
				if e.Peer.IsZero() {
					continue
				}
			}
			select {
			case out <- e:
			case <-m.done:
				return
			}
		}
	}
}
