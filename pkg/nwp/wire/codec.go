package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
)

var (
	// ErrDesync indicates the sync pattern was not found in time.
	ErrDesync = errors.New("sync pattern not found")
	// ErrBadLength indicates a length inconsistent with the descriptor.
	ErrBadLength = errors.New("malformed message length")
	// ErrTooLarge indicates the message doesn't fit in the length field.
	ErrTooLarge = errors.New("message too large")
)

// Role selects which side of the link a Codec plays.
type Role int

const (
	// RoleHost writes host sync patterns and reads NWP messages.
	RoleHost Role = iota
	// RoleDevice is the mirror used by the simulator.
	RoleDevice
)

// Codec frames messages over a byte stream.
// One reader and one writer may use it concurrently, otherwise callers
// serialize access.
type Codec struct {
	ReadWriter io.ReadWriter
	Role       Role
	// LongSync selects the 8-byte host sync pattern.
	LongSync bool
	// SyncTimeout bounds sync recovery, 0 waits forever.
	SyncTimeout time.Duration
	// Now is the timestamp source. Without it sync recovery is unbounded.
	Now func() time.Time

	rxSeq   uint8
	txSeq   uint8
	scratch [protocol.Alignment]byte
}

// NewCodec creates a Codec.
func NewCodec(rw io.ReadWriter, role Role) *Codec {
	return &Codec{ReadWriter: rw, Role: role, Now: time.Now}
}

// Reset resets the rolling sequence numbers.
func (c *Codec) Reset() {
	c.rxSeq, c.txSeq = 0, 0
}

// WriteEnvelope writes one message. hdr.Len is computed from descriptor
// and payloads. Response is only written in device role.
func (c *Codec) WriteEnvelope(hdr protocol.Header, desc, payload1, payload2 []byte) error {
	length := protocol.Align(len(desc)) + len(payload1) + len(payload2)
	if length > 0xffff {
		return ErrTooLarge
	}
	hdr.Len = uint16(length)

	var head [protocol.LongSyncSize + protocol.GenericHeaderSize + protocol.ResponseHeaderSize]byte
	n := 0
	if c.Role == RoleHost {
		binary.LittleEndian.PutUint32(head[0:4], protocol.H2NSyncWord)
		n = protocol.SyncWordSize
		if c.LongSync {
			binary.LittleEndian.PutUint32(head[4:8], protocol.H2NSyncLongWord2)
			n = protocol.LongSyncSize
		}
		hdr.GenericHeader.Put(head[n:])
		n += protocol.GenericHeaderSize
	} else {
		binary.LittleEndian.PutUint32(head[0:4], protocol.N2HSync(c.txSeq))
		c.txSeq++
		hdr.GenericHeader.Put(head[4:])
		hdr.Response.Put(head[8:])
		n = protocol.SyncWordSize + protocol.GenericHeaderSize + protocol.ResponseHeaderSize
	}
	if err := c.write(head[:n]); err != nil {
		return err
	}
	if err := c.writeAligned(desc); err != nil {
		return err
	}
	if glog.V(5) {
		glog.Infof("wire: TX op=%04x len=%d desc=%d p1=%d p2=%d", hdr.Opcode, hdr.Len, len(desc), len(payload1), len(payload2))
	}
	return c.writePayloads(payload1, payload2)
}

// writePayloads concatenates two payloads keeping every write 4-byte
// aligned. An unaligned boundary is stitched with a bridge word made of the
// tail of payload1 and the head of payload2.
func (c *Codec) writePayloads(payload1, payload2 []byte) error {
	if len(payload2) == 0 {
		return c.writeAligned(payload1)
	}
	if len(payload1) == 0 {
		return c.writeAligned(payload2)
	}
	head := len(payload1) &^ (protocol.Alignment - 1)
	if err := c.write(payload1[:head]); err != nil {
		return err
	}
	rem := len(payload1) - head
	if rem == 0 {
		return c.writeAligned(payload2)
	}
	var bridge [protocol.Alignment]byte
	copy(bridge[:], payload1[head:])
	n := copy(bridge[rem:], payload2)
	if err := c.write(bridge[:]); err != nil {
		return err
	}
	return c.writeAligned(payload2[n:])
}

func (c *Codec) writeAligned(p []byte) error {
	head := len(p) &^ (protocol.Alignment - 1)
	if err := c.write(p[:head]); err != nil {
		return err
	}
	if head == len(p) {
		return nil
	}
	var pad [protocol.Alignment]byte
	copy(pad[:], p[head:])
	return c.write(pad[:])
}

func (c *Codec) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	_, err := c.ReadWriter.Write(p)
	return err
}

// ReadHeader locates the next sync pattern and reads the headers following
// it. Garbage before the pattern and one duplicated pattern are skipped.
func (c *Codec) ReadHeader() (hdr protocol.Header, err error) {
	var deadline time.Time
	if c.SyncTimeout > 0 && c.Now != nil {
		deadline = c.Now().Add(c.SyncTimeout)
	}
	expired := func() bool {
		return !deadline.IsZero() && c.Now().After(deadline)
	}

	var buf [2 * protocol.SyncWordSize]byte
	if err = c.read(buf[:]); err != nil {
		return
	}
	// idle line or repeated words
	for word(buf[0:]) == word(buf[4:]) {
		if err = c.read(buf[4:]); err != nil {
			return
		}
		if expired() {
			glog.Warningf("wire: sync lost on idle line %08x", word(buf[0:]))
			return hdr, ErrDesync
		}
	}

	skipped := 0
	for !c.matchSync(word(buf[0:])) {
		shift := protocol.SyncWordSize
		for s := 1; s < protocol.SyncWordSize; s++ {
			if c.matchSync(word(buf[s:])) {
				shift = s
				break
			}
		}
		copy(buf[:], buf[shift:])
		if err = c.read(buf[len(buf)-shift:]); err != nil {
			return
		}
		skipped += shift
		if expired() {
			glog.Warningf("wire: sync lost after skipping %d bytes", skipped)
			return hdr, ErrDesync
		}
	}
	if skipped > 0 {
		glog.V(3).Infof("wire: skipped %d bytes before sync", skipped)
	}

	if c.Role == RoleDevice && c.LongSync {
		if word(buf[4:]) != protocol.H2NSyncLongWord2 {
			return hdr, ErrDesync
		}
		if err = c.read(buf[4:]); err != nil {
			return
		}
	}
	// duplicated sync emitted by hardware
	for c.matchSync(word(buf[4:])) {
		if err = c.read(buf[4:]); err != nil {
			return
		}
	}
	hdr.GenericHeader = protocol.DecodeGenericHeader(buf[4:])

	if c.Role == RoleHost {
		c.rxSeq++
		var resp [protocol.ResponseHeaderSize]byte
		if err = c.read(resp[:]); err != nil {
			return
		}
		hdr.Response = protocol.DecodeResponseHeader(resp[:])
	}
	if glog.V(5) {
		glog.Infof("wire: RX op=%04x len=%d pool=%d", hdr.Opcode, hdr.Len, hdr.Response.TxPoolCnt)
	}
	return
}

func (c *Codec) matchSync(w uint32) bool {
	if c.Role == RoleHost {
		return protocol.MatchN2HSync(w, c.rxSeq)
	}
	return w&protocol.SyncStuckBitsMask == protocol.H2NSyncWord&protocol.SyncStuckBitsMask
}

// ReadBody reads the descriptor into desc (exactly len(desc) bytes expected)
// and up to len(payload) payload bytes. Payload beyond the buffer and all
// padding are drained. It returns the payload length announced by the
// message.
func (c *Codec) ReadBody(hdr protocol.Header, desc, payload []byte) (payloadLen int, err error) {
	payloadLen = int(hdr.Len) - protocol.Align(len(desc))
	if payloadLen < 0 {
		return 0, ErrBadLength
	}
	if err = c.readAligned(desc, len(desc)); err != nil {
		return
	}
	if len(payload) > payloadLen {
		payload = payload[:payloadLen]
	}
	err = c.readAligned(payload, payloadLen)
	return
}

// Discard drains the whole body of a message.
func (c *Codec) Discard(hdr protocol.Header) error {
	return c.readAligned(nil, int(hdr.Len))
}

// readAligned reads align4(total) bytes, the first len(dst) go to dst.
func (c *Codec) readAligned(dst []byte, total int) error {
	head := len(dst) &^ (protocol.Alignment - 1)
	if err := c.read(dst[:head]); err != nil {
		return err
	}
	for off := head; off < protocol.Align(total); off += protocol.Alignment {
		if err := c.read(c.scratch[:]); err != nil {
			return err
		}
		if off < len(dst) {
			copy(dst[off:], c.scratch[:])
		}
	}
	return nil
}

func (c *Codec) read(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	_, err := io.ReadFull(c.ReadWriter, p)
	return err
}

func word(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
