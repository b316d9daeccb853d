package nwp

import (
	"encoding/binary"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/nwp.go/pkg/nwp/event"
	"github.com/robotalks/nwp.go/pkg/nwp/pool"
	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
	"github.com/robotalks/nwp.go/pkg/nwp/wire"
)

// rxState tracks the command waiting for its reply. A nil rxState means
// the message is received outside command context.
type rxState struct {
	expect    uint16
	rxDescLen int
	reply     *Reply
	done      bool
	received  int
	err       error
}

// receive reads and routes one message. The caller holds the global lock.
// The interrupt is unmasked once the message is fully consumed.
func (d *Driver) receive(rx *rxState) error {
	hdr, err := d.codec.ReadHeader()
	if err != nil {
		if err == wire.ErrDesync {
			d.fatal(FatalSyncLoss, 0, uint32(d.config.SyncTimeout/time.Millisecond))
		} else {
			glog.Errorf("nwp: read header: %v", err)
			d.fatal(FatalDriverAbort, 0, 0)
		}
		return ErrAborted
	}
	if rx != nil {
		rx.received++
	}
	d.flow.Refresh(hdr.Response)
	d.mu.Lock()
	d.devStatus = hdr.Response.DevStatus
	d.mu.Unlock()
	class := protocol.Classify(hdr.Opcode)
	glog.V(4).Infof("nwp: RX %04x %s len=%d credits=%d", hdr.Opcode, class, hdr.Len, hdr.Response.TxPoolCnt)

	switch class {
	case protocol.ClassCmdResp:
		err = d.receiveReply(hdr, rx)
	case protocol.ClassDummy:
		err = d.codec.Discard(hdr)
	case protocol.ClassCreditUpdate:
		err = d.receiveCredits(hdr)
	case protocol.ClassActionReply, protocol.ClassDataReply:
		err = d.receiveAction(hdr)
	default:
		err = d.receiveEvent(hdr, rx)
	}
	if err != nil {
		if err != ErrAborted {
			glog.Errorf("nwp: receive %04x: %v", hdr.Opcode, err)
			d.fatal(FatalDriverAbort, uint32(hdr.Opcode), uint32(hdr.Len))
		}
		return ErrAborted
	}
	d.transport.UnmaskInterrupt()
	return nil
}

func (d *Driver) receiveReply(hdr protocol.Header, rx *rxState) error {
	if rx == nil || hdr.Opcode != rx.expect {
		glog.Warningf("nwp: dropped unexpected reply %04x", hdr.Opcode)
		return d.codec.Discard(hdr)
	}
	reply := rx.reply
	if cap(reply.Desc) < rx.rxDescLen {
		reply.Desc = make([]byte, rx.rxDescLen)
	}
	reply.Desc = reply.Desc[:rx.rxDescLen]
	n, err := d.codec.ReadBody(hdr, reply.Desc, reply.Payload)
	if err != nil {
		return err
	}
	if n < len(reply.Payload) {
		reply.Payload = reply.Payload[:n]
	}
	reply.Opcode, reply.PayloadLen, reply.Response = hdr.Opcode, n, hdr.Response
	rx.done = true
	return nil
}

// readBody splits the body into a descriptor of descLen bytes and the
// payload.
func (d *Driver) readBody(hdr protocol.Header, descLen int) (desc, payload []byte, err error) {
	if protocol.Align(descLen) > int(hdr.Len) {
		return nil, nil, wire.ErrBadLength
	}
	desc = make([]byte, descLen)
	payload = make([]byte, int(hdr.Len)-protocol.Align(descLen))
	_, err = d.codec.ReadBody(hdr, desc, payload)
	return
}

func (d *Driver) receiveCredits(hdr protocol.Header) error {
	desc, _, err := d.readBody(hdr, protocol.DescLen(hdr.Opcode))
	if err != nil {
		return err
	}
	d.flow.Complete(binary.LittleEndian.Uint16(desc[2:4]))
	return nil
}

func (d *Driver) receiveAction(hdr protocol.Header) error {
	action, _ := protocol.LookupAction(hdr.Opcode)
	desc, payload, err := d.readBody(hdr, action.DescLen)
	if err != nil {
		return err
	}
	key := pool.Key{Action: action.Kind, Socket: protocol.NoSocket}
	if action.BySocket {
		if int(desc[0]) >= protocol.MaxSockets {
			glog.Errorf("nwp: %04x carries bad socket %d", hdr.Opcode, desc[0])
			d.fatal(FatalDriverAbort, uint32(hdr.Opcode), uint32(desc[0]))
			return ErrAborted
		}
		key.Socket = desc[0]
	}
	if !d.pool.Deliver(key, append(desc, payload...), nil) {
		glog.Warningf("nwp: no waiter for %s, reply dropped", key)
	}
	return nil
}

func (d *Driver) receiveEvent(hdr protocol.Header, rx *rxState) error {
	descLen := protocol.DescLen(hdr.Opcode)
	if descLen < 0 {
		glog.Warningf("nwp: dropped unknown opcode %04x", hdr.Opcode)
		return d.codec.Discard(hdr)
	}
	desc, payload, err := d.readBody(hdr, descLen)
	if err != nil {
		return err
	}
	ev, err := event.New(hdr.Opcode, desc, payload)
	if err != nil {
		return err
	}
	if err := d.intercept(ev); err != nil {
		return err
	}
	if !d.deferred.Push(ev) {
		glog.Warningf("nwp: deferred queue full, dropped %s", ev)
		if rx != nil {
			rx.err = ErrNoFreeBuffers
		}
	}
	return nil
}

// intercept applies events the driver itself depends on, before they are
// queued for handlers.
func (d *Driver) intercept(ev *event.Event) error {
	switch ev.Opcode {
	case protocol.OpDeviceInitComplete:
		if status := protocol.DescStatus(ev.Desc); status < 0 {
			glog.Warningf("nwp: init complete with status %d", status)
		}
		d.started()
	case protocol.OpDeviceAbort:
		d.fatal(FatalDeviceAbort, ev.Uint32(0), ev.Uint32(1))
		return ErrAborted
	case protocol.OpWlanProvisioningStatus:
		d.setProvisioning(ev.Desc[0] != 0)
	case protocol.OpSocketTxFailed:
		if sd, ok := ev.Socket(); ok && int(sd) < protocol.MaxSockets {
			glog.V(2).Infof("nwp: send failed on sd%d, status %d", sd, protocol.DescStatus(ev.Desc))
			d.flow.MarkTxFailed(sd)
		}
	}
	return nil
}
