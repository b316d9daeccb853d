package nwp

import (
	"context"
	"encoding/binary"

	"github.com/robotalks/nwp.go/pkg/nwp/flow"
	"github.com/robotalks/nwp.go/pkg/nwp/pool"
	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
	"github.com/robotalks/nwp.go/pkg/nwp/wire"
)

// MaxDataLen is the largest payload of one send or recv.
const MaxDataLen = 0xffff - 16

func socketDesc(sd uint8, n int) []byte {
	desc := make([]byte, 4)
	desc[0] = sd
	binary.LittleEndian.PutUint16(desc[2:4], uint16(n))
	return desc
}

func checkSocket(sd uint8) error {
	if int(sd) >= protocol.MaxSockets {
		return ErrBadSocket
	}
	return nil
}

// Send writes data on socket sd once enough flow-control credit is
// available. On a non-blocking socket without credit it returns
// ErrWouldBlock and nothing is sent.
func (d *Driver) Send(ctx context.Context, sd uint8, data []byte) (int, error) {
	return d.send(ctx, sd, nil, data)
}

// SendTo is Send with a destination address sent ahead of the data.
func (d *Driver) SendTo(ctx context.Context, sd uint8, addr, data []byte) (int, error) {
	return d.send(ctx, sd, addr, data)
}

func (d *Driver) send(ctx context.Context, sd uint8, addr, data []byte) (int, error) {
	if err := checkSocket(sd); err != nil {
		return 0, err
	}
	if len(addr)+len(data) > MaxDataLen {
		return 0, wire.ErrTooLarge
	}
	if err := d.checkEntry(protocol.OpSocketSend); err != nil {
		return 0, err
	}
	if _, err := d.flow.Admit(ctx, sd, len(data)); err != nil {
		if err == flow.ErrAborted {
			return 0, d.poolErr(pool.ErrAborted)
		}
		return 0, err
	}
	req := &Request{Opcode: protocol.OpSocketSend, Desc: socketDesc(sd, len(data)), Payload1: addr, Payload2: data}
	if err := d.Do(ctx, req, nil); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Recv receives at most len(buf) bytes from socket sd. On a non-blocking
// socket the data is expected to be ready, ErrWouldBlock is returned if it
// doesn't arrive within Config.NonBlockingRecvTimeout.
func (d *Driver) Recv(ctx context.Context, sd uint8, buf []byte) (int, error) {
	n, _, err := d.recv(ctx, protocol.ActionRecv, protocol.OpSocketRecv, sd, buf)
	return n, err
}

// RecvFrom is Recv also returning the source address.
func (d *Driver) RecvFrom(ctx context.Context, sd uint8, buf []byte) (int, []byte, error) {
	return d.recv(ctx, protocol.ActionRecvFrom, protocol.OpSocketRecvFrom, sd, buf)
}

func (d *Driver) recv(ctx context.Context, kind protocol.ActionKind, op uint16, sd uint8, buf []byte) (int, []byte, error) {
	if err := checkSocket(sd); err != nil {
		return 0, nil, err
	}
	if len(buf) > MaxDataLen {
		buf = buf[:MaxDataLen]
	}
	if err := d.checkEntry(op); err != nil {
		return 0, nil, err
	}
	h, err := d.pool.Acquire(ctx, pool.Key{Action: kind, Socket: sd})
	if err != nil {
		return 0, nil, d.poolErr(err)
	}
	defer d.pool.Release(h)
	if err := d.Do(ctx, &Request{Opcode: op, Desc: socketDesc(sd, len(buf))}, nil); err != nil {
		return 0, nil, err
	}

	nonBlocking := d.flow.NonBlocking(sd)
	timeout := d.config.AsyncTimeout
	if nonBlocking {
		timeout = d.config.NonBlockingRecvTimeout
	}
	result, err := d.waitAsync(ctx, h, timeout)
	if err == pool.ErrTimeout {
		if nonBlocking {
			return 0, nil, ErrWouldBlock
		}
		d.fatal(FatalCmdTimeout, uint32(op), uint32(timeout.Milliseconds()))
		return 0, nil, ErrAborted
	}
	if err != nil {
		return 0, nil, err
	}

	action, _ := protocol.ActionOf(kind)
	desc, payload := result[:action.DescLen], result[action.DescLen:]
	if status := protocol.DescStatus(desc); status < 0 {
		return 0, nil, &StatusError{Opcode: op, Status: status}
	}
	var addr []byte
	if action.DescLen > 4 {
		addr = append([]byte(nil), desc[4:]...)
	}
	return copy(buf, payload), addr, nil
}

// CloseSocket closes sd and clears the host side socket state, including
// the send failure latch.
func (d *Driver) CloseSocket(ctx context.Context, sd uint8) error {
	if err := checkSocket(sd); err != nil {
		return err
	}
	defer d.flow.Clear(sd)
	return d.Do(ctx, &Request{Opcode: protocol.OpSocketClose, Desc: socketDesc(sd, 0)}, nil)
}
