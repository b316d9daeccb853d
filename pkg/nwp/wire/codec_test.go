package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
)

func seqBytes(n int, start byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func TestEnvelopeRoundTrip(t *testing.T) {
	testCases := []struct {
		name     string
		desc     []byte
		payload1 []byte
		payload2 []byte
	}{
		{"descriptor only", seqBytes(8, 1), nil, nil},
		{"unaligned descriptor", seqBytes(6, 1), nil, nil},
		{"payload1 only", seqBytes(4, 1), seqBytes(7, 0x10), nil},
		{"payload2 only", seqBytes(4, 1), nil, seqBytes(9, 0x20)},
		{"dual unaligned", seqBytes(4, 1), seqBytes(5, 0x10), seqBytes(3, 0x20)},
		{"dual aligned", seqBytes(4, 1), seqBytes(8, 0x10), seqBytes(4, 0x20)},
		{"tiny payload2", nil, seqBytes(6, 0x10), seqBytes(1, 0x20)},
		{"empty", nil, nil, nil},
	}
	for _, longSync := range []bool{false, true} {
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				var buf bytes.Buffer
				host := NewCodec(&buf, RoleHost)
				host.LongSync = longSync
				hdr := protocol.Header{GenericHeader: protocol.GenericHeader{Opcode: protocol.OpSocketSend}}
				require.NoError(t, host.WriteEnvelope(hdr, tc.desc, tc.payload1, tc.payload2))
				require.Zero(t, buf.Len()%protocol.Alignment)

				device := NewCodec(&buf, RoleDevice)
				device.LongSync = longSync
				got, err := device.ReadHeader()
				require.NoError(t, err)
				require.Equal(t, protocol.OpSocketSend, got.Opcode)
				expectedPayload := append(append([]byte{}, tc.payload1...), tc.payload2...)
				require.Equal(t, protocol.Align(len(tc.desc))+len(expectedPayload), int(got.Len))

				desc := make([]byte, protocol.Align(len(tc.desc)))
				payload := make([]byte, 64)
				n, err := device.ReadBody(got, desc, payload)
				require.NoError(t, err)
				require.Equal(t, len(expectedPayload), n)
				require.Equal(t, tc.desc, desc[:len(tc.desc)])
				if n > 0 {
					require.Equal(t, expectedPayload, payload[:n])
				}
				require.Zero(t, buf.Len())
			})
		}
	}
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	device := NewCodec(&buf, RoleDevice)
	host := NewCodec(&buf, RoleHost)
	resp := protocol.ResponseHeader{TxPoolCnt: 5, DevStatus: 1, MinPayloadUnit: 64, SocketTxFailure: 0x4, SocketNonBlocking: 0x8}
	for i := 0; i < 6; i++ {
		hdr := protocol.Header{GenericHeader: protocol.GenericHeader{Opcode: protocol.ReplyOf(protocol.OpDeviceGet)}, Response: resp}
		require.NoError(t, device.WriteEnvelope(hdr, seqBytes(4, byte(i)), seqBytes(3, 0x30), nil))
		got, err := host.ReadHeader()
		require.NoError(t, err)
		require.Equal(t, hdr.Opcode, got.Opcode)
		require.Equal(t, resp, got.Response)
		desc := make([]byte, 4)
		payload := make([]byte, 2)
		n, err := host.ReadBody(got, desc, payload)
		require.NoError(t, err)
		require.Equal(t, 3, n)
		require.Equal(t, seqBytes(4, byte(i)), desc)
		require.Equal(t, seqBytes(2, 0x30), payload)
	}
	require.Zero(t, buf.Len())
}

func TestSyncRecovery(t *testing.T) {
	message := func(seq uint8) []byte {
		var buf bytes.Buffer
		device := NewCodec(&buf, RoleDevice)
		device.txSeq = seq
		hdr := protocol.Header{GenericHeader: protocol.GenericHeader{Opcode: protocol.OpWlanConnectEvent}}
		require.NoError(t, device.WriteEnvelope(hdr, []byte{1, 2, 3, 4}, nil, nil))
		return buf.Bytes()
	}
	garbage := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
	for n := 0; n <= len(garbage); n++ {
		for _, doubled := range []bool{false, true} {
			msg := message(0)
			var stream []byte
			stream = append(stream, garbage[:n]...)
			if doubled {
				stream = append(stream, msg[:protocol.SyncWordSize]...)
			}
			stream = append(stream, msg...)
			host := NewCodec(bytes.NewBuffer(stream), RoleHost)
			hdr, err := host.ReadHeader()
			require.NoErrorf(t, err, "garbage=%d doubled=%v", n, doubled)
			require.Equal(t, protocol.OpWlanConnectEvent, hdr.Opcode)
			require.Equal(t, uint16(4), hdr.Len)
			desc := make([]byte, 4)
			_, err = host.ReadBody(hdr, desc, nil)
			require.NoError(t, err)
			require.Equal(t, []byte{1, 2, 3, 4}, desc)
		}
	}
}

func TestSyncSequenceMismatch(t *testing.T) {
	var buf bytes.Buffer
	device := NewCodec(&buf, RoleDevice)
	device.txSeq = 2
	hdr := protocol.Header{GenericHeader: protocol.GenericHeader{Opcode: protocol.OpWlanConnectEvent}}
	require.NoError(t, device.WriteEnvelope(hdr, []byte{1, 2, 3, 4}, nil, nil))
	host := NewCodec(&buf, RoleHost)
	_, err := host.ReadHeader()
	require.Equal(t, io.EOF, err)
}

func TestSyncStuckBits(t *testing.T) {
	w := protocol.N2HSync(1) &^ 0x80008080
	require.True(t, protocol.MatchN2HSync(w, 1))
	require.False(t, protocol.MatchN2HSync(w, 2))
	require.True(t, protocol.MatchN2HSync(protocol.N2HSyncWord, 3))
	require.False(t, protocol.MatchN2HSync(0x12345678, 0))
}

type clockReader struct {
	now  time.Time
	step time.Duration
	next byte
	// idle repeats next forever
	idle bool
}

func (c *clockReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = c.next
		if !c.idle {
			c.next++
		}
	}
	return len(p), nil
}

func (c *clockReader) Write(p []byte) (int, error) { return len(p), nil }

func (c *clockReader) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func TestSyncTimeout(t *testing.T) {
	src := &clockReader{now: time.Unix(0, 0), step: 10 * time.Millisecond}
	host := NewCodec(src, RoleHost)
	host.Now = src.Now
	host.SyncTimeout = 50 * time.Millisecond
	_, err := host.ReadHeader()
	require.Equal(t, ErrDesync, err)
}

func TestSyncTimeoutIdleLine(t *testing.T) {
	for _, fill := range []byte{0xff, 0x00} {
		src := &clockReader{now: time.Unix(0, 0), step: 10 * time.Millisecond, next: fill, idle: true}
		host := NewCodec(src, RoleHost)
		host.Now = src.Now
		host.SyncTimeout = 50 * time.Millisecond
		_, err := host.ReadHeader()
		require.Equal(t, ErrDesync, err, "fill %#x", fill)
	}
}

func TestReadBodyBadLength(t *testing.T) {
	var buf bytes.Buffer
	host := NewCodec(&buf, RoleHost)
	hdr := protocol.Header{GenericHeader: protocol.GenericHeader{Opcode: protocol.OpDeviceGet, Len: 2}}
	_, err := host.ReadBody(hdr, make([]byte, 4), nil)
	require.Equal(t, ErrBadLength, err)
}

func TestBridgeBytes(t *testing.T) {
	var buf bytes.Buffer
	host := NewCodec(&buf, RoleHost)
	hdr := protocol.Header{GenericHeader: protocol.GenericHeader{Opcode: protocol.OpSocketSend}}
	require.NoError(t, host.WriteEnvelope(hdr, nil, []byte{1, 2, 3, 4, 5}, []byte{6, 7, 8}))
	out := buf.Bytes()
	require.Equal(t, protocol.H2NSyncWord, binary.LittleEndian.Uint32(out[0:4]))
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, out[8:])
}
