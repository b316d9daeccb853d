// Package sim simulates the NWP side of the link. It speaks the device
// role of the framing codec, reports flow-control credits and answers
// commands with scripted responders.
package sim

import (
	"context"
	"encoding/binary"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/nwp.go/pkg/framework"
	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
	"github.com/robotalks/nwp.go/pkg/nwp/wire"
)

// Command is a host command received by the device.
type Command struct {
	Opcode  uint16
	Desc    []byte
	Payload []byte
}

// Socket returns the socket id of socket commands.
func (c *Command) Socket() uint8 {
	if len(c.Desc) == 0 {
		return 0
	}
	return c.Desc[0]
}

// Len returns the length field of socket commands.
func (c *Command) Len() int {
	if len(c.Desc) < 4 {
		return 0
	}
	return int(binary.LittleEndian.Uint16(c.Desc[2:4]))
}

// Responder handles a command. Returning an error stops Serve.
type Responder interface {
	Respond(*Device, *Command) error
}

// RespondFunc is the func form of Responder.
type RespondFunc func(*Device, *Command) error

// Respond implements Responder.
func (f RespondFunc) Respond(dev *Device, cmd *Command) error {
	return f(dev, cmd)
}

// Options configures a Device.
type Options struct {
	Credits        uint8
	MinPayloadUnit uint16
	// ManualCredits disables returning credits right after each send.
	ManualCredits bool
	LongSync      bool
}

// DefaultOptions returns the default device options.
func DefaultOptions() Options {
	return Options{Credits: 8, MinPayloadUnit: 256}
}

// Device is a simulated NWP.
type Device struct {
	options Options
	codec   *wire.Codec
	rw      io.ReadWriter

	responders map[uint16]Responder
	commands   chan *Command

	credits     uint8
	devStatus   uint8
	nonBlocking uint16
	txFailure   uint16
	inbox       map[uint8][][]byte
	recvWaiting map[uint8]*Command
	sent        map[uint8][]byte
	lock        sync.Mutex
	writeMu     sync.Mutex
}

// New creates a Device on the device end of the link.
func New(rw io.ReadWriter, options Options) *Device {
	codec := wire.NewCodec(rw, wire.RoleDevice)
	codec.LongSync = options.LongSync
	d := &Device{
		options:     options,
		codec:       codec,
		rw:          rw,
		responders:  make(map[uint16]Responder),
		commands:    make(chan *Command, 64),
		credits:     options.Credits,
		inbox:       make(map[uint8][][]byte),
		recvWaiting: make(map[uint8]*Command),
		sent:        make(map[uint8][]byte),
	}
	return d
}

// Handle overrides the built-in behavior for opcode.
func (d *Device) Handle(op uint16, r Responder) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.responders[op] = r
}

// HandleFunc is Handle with a func.
func (d *Device) HandleFunc(op uint16, fn func(*Device, *Command) error) {
	d.Handle(op, RespondFunc(fn))
}

// Commands delivers every received command, after it has been handled.
// Commands are dropped when nobody reads them.
func (d *Device) Commands() <-chan *Command {
	return d.commands
}

// Boot resets the link sequence and announces init complete.
func (d *Device) Boot() error {
	d.writeMu.Lock()
	d.codec.Reset()
	d.writeMu.Unlock()
	d.lock.Lock()
	d.devStatus = protocol.DevStatusStarted
	d.credits = d.options.Credits
	d.lock.Unlock()
	return d.Emit(protocol.OpDeviceInitComplete, StatusDesc(0, 0), nil)
}

// Serve reads and handles host commands until ctx is done or the link
// fails.
func (d *Device) Serve(ctx context.Context) error {
	fn := func() error {
		for {
			cmd, err := d.readCommand()
			if err != nil {
				return err
			}
			if err := d.dispatch(cmd); err != nil {
				return err
			}
			select {
			case d.commands <- cmd:
			default:
			}
		}
	}
	if closer, ok := d.rw.(io.Closer); ok {
		return framework.RunWithContextCloser(ctx, closer, fn)
	}
	return framework.RunWithContext(ctx, fn)
}

func (d *Device) readCommand() (*Command, error) {
	hdr, err := d.codec.ReadHeader()
	if err != nil {
		return nil, err
	}
	descLen := 0
	if ctl, ok := protocol.LookupCmd(hdr.Opcode); ok {
		descLen = ctl.TxDescLen
	}
	if protocol.Align(descLen) > int(hdr.Len) {
		return nil, wire.ErrBadLength
	}
	cmd := &Command{
		Opcode:  hdr.Opcode,
		Desc:    make([]byte, descLen),
		Payload: make([]byte, int(hdr.Len)-protocol.Align(descLen)),
	}
	if _, err = d.codec.ReadBody(hdr, cmd.Desc, cmd.Payload); err != nil {
		return nil, err
	}
	glog.V(4).Infof("sim: command %04x desc=%d payload=%d", cmd.Opcode, len(cmd.Desc), len(cmd.Payload))
	return cmd, nil
}

func (d *Device) dispatch(cmd *Command) error {
	d.lock.Lock()
	r := d.responders[cmd.Opcode]
	d.lock.Unlock()
	if r != nil {
		return r.Respond(d, cmd)
	}
	return d.respondDefault(cmd)
}

func (d *Device) respondDefault(cmd *Command) error {
	switch cmd.Opcode {
	case protocol.OpDeviceStop:
		d.lock.Lock()
		d.devStatus = 0
		d.lock.Unlock()
		return d.Emit(protocol.OpDeviceStopAsyncResponse, StatusDesc(0, 0), nil)
	case protocol.OpSocketSend:
		return d.receiveData(cmd)
	case protocol.OpSocketRecv, protocol.OpSocketRecvFrom:
		return d.requestData(cmd)
	case protocol.OpSocketClose:
		d.lock.Lock()
		sd := cmd.Socket()
		d.txFailure &^= 1 << sd
		delete(d.inbox, sd)
		delete(d.recvWaiting, sd)
		d.lock.Unlock()
	}
	return d.Reply(cmd, StatusDesc(cmd.Socket(), 0), nil)
}

// Reply sends the reply to cmd unless the command doesn't expect one.
func (d *Device) Reply(cmd *Command, desc, payload []byte) error {
	ctl, ok := protocol.LookupCmd(cmd.Opcode)
	if !ok || ctl.NoReply {
		return nil
	}
	return d.Emit(protocol.ReplyOf(cmd.Opcode), desc, payload)
}

// Emit sends a message to the host. Every message carries the current
// credit snapshot.
func (d *Device) Emit(op uint16, desc, payload []byte) error {
	d.lock.Lock()
	resp := protocol.ResponseHeader{
		TxPoolCnt:         d.credits,
		DevStatus:         d.devStatus,
		MinPayloadUnit:    d.options.MinPayloadUnit,
		SocketTxFailure:   d.txFailure,
		SocketNonBlocking: d.nonBlocking,
	}
	d.lock.Unlock()
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	hdr := protocol.Header{GenericHeader: protocol.GenericHeader{Opcode: op}, Response: resp}
	return d.codec.WriteEnvelope(hdr, desc, payload, nil)
}

// WriteRaw writes bytes as is, used to corrupt the stream.
func (d *Device) WriteRaw(p []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := d.rw.Write(p)
	return err
}

// StatusDesc builds the common first descriptor word.
func StatusDesc(sd uint8, status int16) []byte {
	desc := make([]byte, 4)
	protocol.PutDescWord(desc, sd, status)
	return desc
}

// Abort emits the device abort event.
func (d *Device) Abort(abortType, data uint32) error {
	desc := make([]byte, 8)
	binary.LittleEndian.PutUint32(desc[0:4], abortType)
	binary.LittleEndian.PutUint32(desc[4:8], data)
	return d.Emit(protocol.OpDeviceAbort, desc, nil)
}

// SetProvisioning emits the provisioning status event.
func (d *Device) SetProvisioning(active bool) error {
	desc := make([]byte, 4)
	d.lock.Lock()
	if active {
		desc[0] = 1
		d.devStatus |= protocol.DevStatusProvisioning
	} else {
		d.devStatus &^= protocol.DevStatusProvisioning
	}
	d.lock.Unlock()
	return d.Emit(protocol.OpWlanProvisioningStatus, desc, nil)
}
