package adapter

import (
	"github.com/godbus/dbus/v5"

	"github.com/hcibus/hcid"
	"github.com/hcibus/hcid/bus"
	"github.com/hcibus/hcid/hw"
)

// requestPIN drives one pairing event: ask the PIN agent, answer the
// controller. Exactly one outbound call per event; every failure path
// converges on the negative reply so the link can fall back on its own.
func (a *Adapter) requestPIN(ev hw.Event) {
	id, peer := ev.DeviceID, ev.Peer

	if a.conn == nil {
		a.reconnect()
	}
	if a.conn == nil {
		a.log.Warnf("hci%d: no bus connection, rejecting PIN request from %s", id, peer)
		a.negativePinReply(id, peer)
		return
	}

	initiator := false
	if ci, err := a.devs.ConnInfo(id, peer); err == nil {
		initiator = ci.Initiator
	}

	call := bus.NewMethodCall(bus.PinAgentService, bus.PinAgentPath,
		bus.PinAgentInterface, bus.PinRequestMethod, initiator, peer.Wire())
	serial, err := a.conn.SendCall(call)
	if err != nil {
		a.log.Errorf("hci%d: can't call PIN agent: %s", id, err)
		a.negativePinReply(id, peer)
		return
	}

	a.pending.Track(serial, func(reply *dbus.Message) {
		a.finishPIN(id, peer, reply)
	})
}

// finishPIN consumes the agent's answer. Only a method return whose
// first argument is a string yields a positive reply; a timeout, an
// error reply or any other body shape rejects the pairing.
func (a *Adapter) finishPIN(id int, peer hcid.BDAddr, reply *dbus.Message) {
	if reply == nil || reply.Type != dbus.TypeMethodReply {
		a.negativePinReply(id, peer)
		return
	}
	pin, ok := "", false
	if len(reply.Body) > 0 {
		pin, ok = reply.Body[0].(string)
	}
	if !ok {
		a.negativePinReply(id, peer)
		return
	}
	if err := a.cmd.Command(id, hw.OGFLinkCtl, hw.OCFPinCodeReply,
		hw.PinCodeReplyParam(peer, pin)); err != nil {
		a.log.Errorf("hci%d: can't send PIN reply: %s", id, err)
	}
}

func (a *Adapter) negativePinReply(id int, peer hcid.BDAddr) {
	if err := a.cmd.Command(id, hw.OGFLinkCtl, hw.OCFPinCodeNegReply,
		hw.PinCodeNegReplyParam(peer)); err != nil {
		a.log.Errorf("hci%d: can't send negative PIN reply: %s", id, err)
	}
}
