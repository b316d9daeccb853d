package nwp

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/nwp.go/pkg/nwp/pool"
	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
)

// Request is a host command.
type Request struct {
	Opcode   uint16
	Desc     []byte
	Payload1 []byte
	Payload2 []byte
}

// Reply receives the response to a command.
type Reply struct {
	Opcode uint16
	// Desc is resized to the reply descriptor length.
	Desc []byte
	// Payload receives at most len(Payload) bytes, the rest is drained.
	Payload []byte
	// PayloadLen is the payload length announced by the device.
	PayloadLen int
	Response   protocol.ResponseHeader
}

// Status returns the status carried by the reply descriptor.
func (r *Reply) Status() int16 {
	return protocol.DescStatus(r.Desc)
}

// Do sends a command and waits for its reply. Commands without a reply
// return once written. A negative device status is returned as
// *StatusError with reply filled.
func (d *Driver) Do(ctx context.Context, req *Request, reply *Reply) error {
	ctl, ok := protocol.LookupCmd(req.Opcode)
	if !ok {
		return ErrUnknownOpcode
	}
	if err := d.checkEntry(req.Opcode); err != nil {
		return err
	}
	lock, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	err = d.exec(ctx, ctl, req, reply)
	d.release(lock)
	return err
}

func (d *Driver) exec(ctx context.Context, ctl protocol.CmdCtrl, req *Request, reply *Reply) error {
	if reply == nil {
		reply = &Reply{}
	}
	d.beginCmd()
	defer d.endCmd()
	if err := d.write(req); err != nil {
		return err
	}
	if ctl.NoReply {
		return nil
	}

	d.mu.Lock()
	fatalCh := d.fatalCh
	d.mu.Unlock()
	timeout := d.config.cmdTimeout(ctl.Long)
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	rx := &rxState{
		expect:    protocol.ReplyOf(ctl.Opcode),
		rxDescLen: ctl.RxDescLen,
		reply:     reply,
	}
	for !rx.done {
		select {
		case <-d.cmdSync:
		case <-timer:
			code := FatalNoCmdAck
			if rx.received > 0 {
				code = FatalCmdTimeout
			}
			d.fatal(code, uint32(ctl.Opcode), uint32(timeout/time.Millisecond))
			return ErrAborted
		case <-fatalCh:
			return ErrAborted
		case <-ctx.Done():
			glog.Warningf("nwp: command %04x canceled, its reply will be dropped", ctl.Opcode)
			return ctx.Err()
		}
		if !d.takeIRQ() {
			continue
		}
		if err := d.receive(rx); err != nil {
			return err
		}
	}
	if rx.err != nil {
		return rx.err
	}
	if status := reply.Status(); status < 0 {
		return &StatusError{Opcode: ctl.Opcode, Status: status}
	}
	return nil
}

// write sends one envelope. Writes are serialized independently of the
// global lock so Stop can bypass it.
func (d *Driver) write(req *Request) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	hdr := protocol.Header{GenericHeader: protocol.GenericHeader{Opcode: req.Opcode}}
	if err := d.codec.WriteEnvelope(hdr, req.Desc, req.Payload1, req.Payload2); err != nil {
		glog.Errorf("nwp: write %04x failed: %v", req.Opcode, err)
		d.fatal(FatalDriverAbort, uint32(req.Opcode), 0)
		return ErrAborted
	}
	return nil
}

// DoAsync sends a command and waits for the async reply correlated by
// action and socket. Socket actions need a valid socket id, the others
// protocol.NoSocket. The returned bytes are the descriptor followed by the
// payload of the async message.
func (d *Driver) DoAsync(ctx context.Context, action protocol.ActionKind, sd uint8, req *Request, reply *Reply) ([]byte, error) {
	act, ok := protocol.ActionOf(action)
	if !ok {
		return nil, ErrUnknownAction
	}
	if act.BySocket != (sd != protocol.NoSocket) || (act.BySocket && int(sd) >= protocol.MaxSockets) {
		return nil, ErrBadSocket
	}
	if err := d.checkEntry(req.Opcode); err != nil {
		return nil, err
	}
	h, err := d.pool.Acquire(ctx, pool.Key{Action: action, Socket: sd})
	if err != nil {
		return nil, d.poolErr(err)
	}
	defer d.pool.Release(h)
	if err := d.Do(ctx, req, reply); err != nil {
		return nil, err
	}
	result, err := d.waitAsync(ctx, h, d.config.AsyncTimeout)
	if err == pool.ErrTimeout {
		d.fatal(FatalCmdTimeout, uint32(req.Opcode), uint32(d.config.AsyncTimeout/time.Millisecond))
		return nil, ErrAborted
	}
	return result, err
}

// waitAsync waits for the async reply of slot h. In event handler context
// no other task receives messages, so the wait services interrupts itself.
func (d *Driver) waitAsync(ctx context.Context, h pool.Handle, timeout time.Duration) ([]byte, error) {
	if !pool.IsNoWait(ctx) {
		result, err := d.pool.Wait(ctx, h, timeout)
		if err == pool.ErrTimeout {
			return nil, err
		}
		if err != nil {
			return nil, d.poolErr(err)
		}
		return result, nil
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	for {
		select {
		case <-d.pool.Ready(h):
			result, err := d.pool.Result(h)
			if err != nil {
				return nil, d.poolErr(err)
			}
			return result, nil
		case <-d.spawnCh:
			if err := d.serviceIRQ(ctx); err != nil {
				return nil, err
			}
		case <-timer:
			return nil, pool.ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
