package msgs

import (
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	cmd := &CommandRecord{ID: 7, Opcode: 0x3420, Desc: []byte{1, 2, 3, 4}, Payload1: []byte("host"), Async: true, Action: 4, Socket: 0xff}
	data, err := Encode(cmd)
	require.NoError(t, err)
	rec, err := Decode(data)
	require.NoError(t, err)
	require.True(t, proto.Equal(cmd, rec))

	fatal := &FatalRecord{HostID: "h1", Code: 3, Param1: 0x466, Param2: 10000}
	data, err = Encode(fatal)
	require.NoError(t, err)
	var typed Typed
	require.NoError(t, proto.Unmarshal(data, &typed))
	require.True(t, typed.IsEvent())
	rec, err = Decode(data)
	require.NoError(t, err)
	require.Equal(t, fatal, rec)
}

func TestDecodeUnknownType(t *testing.T) {
	data, err := proto.Marshal(&Typed{TypeId: 0x1234})
	require.NoError(t, err)
	_, err = Decode(data)
	require.Equal(t, &ErrUnknownType{TypeID: 0x1234}, err)
}
