package event

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		op   uint16
		kind Kind
	}{
		{protocol.OpDeviceInitComplete, KindDevice},
		{protocol.OpDeviceAbort, KindDevice},
		{protocol.OpWlanConnectEvent, KindWlan},
		{protocol.OpSocketTxFailed, KindSocket},
		{protocol.OpNetAppIPAcquired, KindNetApp},
		{protocol.OpNetAppRequest, KindNetApp},
		{protocol.OpNetUtilEvent, KindNetUtil},
		{0x4001, KindNone},
		{0xF001, KindNone},
	}
	for _, tc := range testCases {
		require.Equalf(t, tc.kind, KindOf(tc.op), "op %04x", tc.op)
	}
}

func TestDispatch(t *testing.T) {
	var got []Kind
	record := HandleEventFunc(func(ctx context.Context, ev *Event) {
		got = append(got, ev.Kind)
	})
	h := &Handlers{Device: record, Socket: record, NetUtil: record}
	ctx := context.Background()
	for _, op := range []uint16{
		protocol.OpDeviceGeneralError,
		protocol.OpWlanConnectEvent,
		protocol.OpSocketTxFailed,
		protocol.OpNetUtilEvent,
	} {
		ev, err := New(op, make([]byte, 4), nil)
		require.NoError(t, err)
		h.Dispatch(ctx, ev)
	}
	require.Equal(t, []Kind{KindDevice, KindSocket, KindNetUtil}, got)
}

func TestEventAccessors(t *testing.T) {
	ev, err := New(protocol.OpSocketTxFailed, []byte{3, 0, 0, 0, 0xfe, 0xff, 0xff, 0xff}, nil)
	require.NoError(t, err)
	require.Equal(t, protocol.EventTxFailed, ev.ID)
	sd, ok := ev.Socket()
	require.True(t, ok)
	require.Equal(t, uint8(3), sd)
	require.Equal(t, uint32(0xfffffffe), ev.Uint32(1))
	require.Zero(t, ev.Uint32(2))

	ev, err = New(protocol.OpWlanConnectEvent, []byte{3, 0, 0, 0}, nil)
	require.NoError(t, err)
	_, ok = ev.Socket()
	require.False(t, ok)
}

func TestNetAppRequest(t *testing.T) {
	desc := make([]byte, protocol.OpNetAppRequestHeaderLength)
	desc[0], desc[1] = 2, 1
	binary.LittleEndian.PutUint16(desc[2:], 0x1234)
	binary.LittleEndian.PutUint16(desc[4:], 3)
	binary.LittleEndian.PutUint16(desc[6:], 4)
	ev, err := New(protocol.OpNetAppRequest, desc, []byte("abcdefg"))
	require.NoError(t, err)
	require.NotNil(t, ev.Request)
	require.Equal(t, uint8(2), ev.Request.AppID)
	require.Equal(t, uint8(1), ev.Request.Type)
	require.Equal(t, uint16(0x1234), ev.Request.Handle)
	require.Equal(t, []byte("abc"), ev.Request.Metadata)
	require.Equal(t, []byte("defg"), ev.Request.Payload)

	_, err = New(protocol.OpNetAppRequest, desc, []byte("abc"))
	require.Equal(t, ErrMalformed, err)
	_, err = New(protocol.OpNetAppRequest, desc[:4], nil)
	require.Equal(t, ErrMalformed, err)
}

func TestQueue(t *testing.T) {
	q := NewQueue(3)
	for i := 0; i < 3; i++ {
		require.True(t, q.Push(&Event{Opcode: uint16(i)}))
	}
	require.False(t, q.Push(&Event{Opcode: 9}))
	require.Equal(t, 1, q.Dropped())
	select {
	case <-q.Ready():
	default:
		t.Fatal("ready not signaled")
	}

	ev, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(0), ev.Opcode)
	require.True(t, q.Push(&Event{Opcode: 3}))
	var order []uint16
	for {
		ev, ok := q.Pop()
		if !ok {
			break
		}
		order = append(order, ev.Opcode)
	}
	require.Equal(t, []uint16{1, 2, 3}, order)
	require.Zero(t, q.Len())

	q.Push(&Event{})
	q.Reset()
	_, ok = q.Pop()
	require.False(t, ok)
}
