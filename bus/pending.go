package bus

import (
	"time"

	"github.com/godbus/dbus/v5"
)

// ReplyFunc consumes the outcome of an outbound call. The reply is nil on
// timeout, send failure and connection teardown; otherwise it is the raw
// method return or error message.
type ReplyFunc func(reply *dbus.Message)

type pendingCall struct {
	cb    ReplyFunc
	timer *time.Timer
}

// Tracker correlates outbound method calls with their asynchronous
// replies by serial. Every tracked call completes exactly once: through
// HandleReply, through its timeout, or through CancelAll on teardown.
// The tracker is owned by the adapter loop; timeouts are posted onto the
// loop's task queue rather than fired inline.
type Tracker struct {
	timeout time.Duration
	tasks   chan<- func()
	done    <-chan struct{}
	calls   map[uint32]*pendingCall
}

// NewTracker builds a tracker posting timeouts onto tasks. done releases
// timer goroutines once the owning loop is gone; CancelAll then reclaims
// their calls.
func NewTracker(timeout time.Duration, tasks chan<- func(), done <-chan struct{}) *Tracker {
	return &Tracker{
		timeout: timeout,
		tasks:   tasks,
		done:    done,
		calls:   make(map[uint32]*pendingCall),
	}
}

// Track registers a call by serial and arms its reply timeout. The
// timeout task blocks until the loop takes it; a saturated queue delays
// the expiry but never loses it.
func (t *Tracker) Track(serial uint32, cb ReplyFunc) {
	pc := &pendingCall{cb: cb}
	pc.timer = time.AfterFunc(t.timeout, func() {
		task := func() { t.expire(serial) }
		select {
		case t.tasks <- task:
		case <-t.done:
		}
	})
	t.calls[serial] = pc
}

// HandleReply completes the call the message replies to. It reports
// whether the message matched a tracked call.
func (t *Tracker) HandleReply(msg *dbus.Message) bool {
	serial, ok := ReplySerial(msg)
	if !ok {
		return false
	}
	pc, ok := t.calls[serial]
	if !ok {
		return false
	}
	t.complete(serial, pc, msg)
	return true
}

// CancelAll completes every tracked call with a nil reply.
func (t *Tracker) CancelAll() {
	for serial, pc := range t.calls {
		t.complete(serial, pc, nil)
	}
}

// Len reports the number of in-flight calls.
func (t *Tracker) Len() int {
	return len(t.calls)
}

func (t *Tracker) expire(serial uint32) {
	pc, ok := t.calls[serial]
	if !ok {
		return
	}
	t.complete(serial, pc, nil)
}

func (t *Tracker) complete(serial uint32, pc *pendingCall, msg *dbus.Message) {
	pc.timer.Stop()
	delete(t.calls, serial)
	pc.cb(msg)
}
