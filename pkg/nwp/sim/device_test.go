package sim

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
	"github.com/robotalks/nwp.go/pkg/nwp/wire"
)

type hostEnd struct {
	codec *wire.Codec
}

func (h *hostEnd) send(t *testing.T, op uint16, desc, payload []byte) {
	hdr := protocol.Header{GenericHeader: protocol.GenericHeader{Opcode: op}}
	require.NoError(t, h.codec.WriteEnvelope(hdr, desc, payload, nil))
}

func (h *hostEnd) recv(t *testing.T) (protocol.Header, []byte, []byte) {
	hdr, err := h.codec.ReadHeader()
	require.NoError(t, err)
	descLen := protocol.DescLen(hdr.Opcode)
	if descLen < 0 {
		descLen = 0
	}
	desc := make([]byte, descLen)
	payload := make([]byte, int(hdr.Len)-protocol.Align(descLen))
	_, err = h.codec.ReadBody(hdr, desc, payload)
	require.NoError(t, err)
	return hdr, desc, payload
}

func startDevice(t *testing.T, options Options) (*Device, *hostEnd) {
	hostConn, devConn := net.Pipe()
	dev := New(devConn, options)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		hostConn.Close()
	})
	go dev.Serve(ctx)
	host := &hostEnd{codec: wire.NewCodec(hostConn, wire.RoleHost)}
	go dev.Boot()
	hdr, _, _ := host.recv(t)
	require.Equal(t, protocol.OpDeviceInitComplete, hdr.Opcode)
	require.Equal(t, options.Credits, hdr.Response.TxPoolCnt)
	return dev, host
}

func TestDefaultReply(t *testing.T) {
	_, host := startDevice(t, DefaultOptions())
	host.send(t, protocol.OpSocketCreate, []byte{2, 0, 0, 0}, nil)
	hdr, desc, _ := host.recv(t)
	require.Equal(t, protocol.ReplyOf(protocol.OpSocketCreate), hdr.Opcode)
	require.Equal(t, int16(0), protocol.DescStatus(desc))
	require.Equal(t, uint16(256), hdr.Response.MinPayloadUnit)
}

func TestSendConsumesCredits(t *testing.T) {
	dev, host := startDevice(t, Options{Credits: 4, MinPayloadUnit: 4, ManualCredits: true})
	data := []byte("0123456789")
	desc := StatusDesc(1, int16(len(data)))
	host.send(t, protocol.OpSocketSend, desc, data)
	require.Eventually(t, func() bool { return bytes.Equal(data, dev.Sent(1)) }, time.Second, time.Millisecond)
	require.Equal(t, uint8(1), dev.Credits())

	go dev.CompleteTx(1, 3)
	hdr, desc, _ := host.recv(t)
	require.Equal(t, protocol.OpSocketTxCompleted, hdr.Opcode)
	require.Equal(t, uint8(4), hdr.Response.TxPoolCnt)
	require.Equal(t, uint8(1), desc[0])
}

func TestRecvWaitsForData(t *testing.T) {
	dev, host := startDevice(t, DefaultOptions())
	host.send(t, protocol.OpSocketRecv, StatusDesc(5, 4), nil)
	cmd := <-dev.Commands()
	require.Equal(t, protocol.OpSocketRecv, cmd.Opcode)
	go dev.PushData(5, []byte("abcdef"))
	hdr, desc, payload := host.recv(t)
	require.Equal(t, protocol.OpSocketRecvAsyncResponse, hdr.Opcode)
	require.Equal(t, uint8(5), desc[0])
	require.Equal(t, int16(4), protocol.DescStatus(desc))
	require.Equal(t, []byte("abcd"), payload)
}

func TestStopResponse(t *testing.T) {
	_, host := startDevice(t, DefaultOptions())
	host.send(t, protocol.OpDeviceStop, make([]byte, 4), nil)
	hdr, _, _ := host.recv(t)
	require.Equal(t, protocol.OpDeviceStopAsyncResponse, hdr.Opcode)
	require.Zero(t, hdr.Response.DevStatus&protocol.DevStatusStarted)
}
