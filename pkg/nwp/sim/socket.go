package sim

import (
	"encoding/binary"

	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
)

// SetNonBlocking marks sd as non-blocking in the reported bitmask.
func (d *Device) SetNonBlocking(sd uint8, nonBlocking bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if nonBlocking {
		d.nonBlocking |= 1 << sd
	} else {
		d.nonBlocking &^= 1 << sd
	}
}

// Credits returns the credits the device currently has.
func (d *Device) Credits() uint8 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.credits
}

// Sent returns all bytes the host sent on sd.
func (d *Device) Sent(sd uint8) []byte {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]byte(nil), d.sent[sd]...)
}

func (d *Device) creditsFor(n int) uint8 {
	unit := int(d.options.MinPayloadUnit)
	if unit == 0 {
		unit = 1
	}
	return uint8((n + unit - 1) / unit)
}

func (d *Device) receiveData(cmd *Command) error {
	sd := cmd.Socket()
	size := cmd.Len()
	if size > len(cmd.Payload) {
		size = len(cmd.Payload)
	}
	// a send-to carries the address ahead of the data
	data := cmd.Payload[len(cmd.Payload)-size:]
	d.lock.Lock()
	d.sent[sd] = append(d.sent[sd], data...)
	used := d.creditsFor(size)
	if used > d.credits {
		used = d.credits
	}
	d.credits -= used
	manual := d.options.ManualCredits
	d.lock.Unlock()
	if manual {
		return nil
	}
	return d.CompleteTx(sd, used)
}

// CompleteTx returns n credits to the host with a tx completed event.
func (d *Device) CompleteTx(sd uint8, n uint8) error {
	d.lock.Lock()
	d.credits += n
	d.lock.Unlock()
	desc := make([]byte, 4)
	desc[0] = sd
	binary.LittleEndian.PutUint16(desc[2:4], uint16(n))
	return d.Emit(protocol.OpSocketTxCompleted, desc, nil)
}

// FailTx latches the send failure of sd and notifies the host.
func (d *Device) FailTx(sd uint8, status int16) error {
	d.lock.Lock()
	d.txFailure |= 1 << sd
	d.lock.Unlock()
	return d.Emit(protocol.OpSocketTxFailed, StatusDesc(sd, status), nil)
}

// PushData queues data to be received by the host on sd. A pending recv
// is answered at once.
func (d *Device) PushData(sd uint8, data []byte) error {
	d.lock.Lock()
	cmd := d.recvWaiting[sd]
	if cmd == nil {
		d.inbox[sd] = append(d.inbox[sd], append([]byte(nil), data...))
		d.lock.Unlock()
		return nil
	}
	delete(d.recvWaiting, sd)
	d.lock.Unlock()
	return d.deliverData(cmd, data)
}

func (d *Device) requestData(cmd *Command) error {
	sd := cmd.Socket()
	d.lock.Lock()
	queue := d.inbox[sd]
	if len(queue) == 0 {
		d.recvWaiting[sd] = cmd
		d.lock.Unlock()
		return nil
	}
	data := queue[0]
	d.inbox[sd] = queue[1:]
	d.lock.Unlock()
	return d.deliverData(cmd, data)
}

func (d *Device) deliverData(cmd *Command, data []byte) error {
	if limit := cmd.Len(); len(data) > limit {
		data = data[:limit]
	}
	sd := cmd.Socket()
	if cmd.Opcode == protocol.OpSocketRecvFrom {
		desc := make([]byte, 12)
		protocol.PutDescWord(desc, sd, int16(len(data)))
		copy(desc[4:], []byte{2, 0, 0x1f, 0x90, 127, 0, 0, 1})
		return d.Emit(protocol.OpSocketRecvFromAsyncResponse, desc, data)
	}
	return d.Emit(protocol.OpSocketRecvAsyncResponse, StatusDesc(sd, int16(len(data))), data)
}
