package mqtt

import (
	"context"
	"sync"
	"testing"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/nwp.go/pkg/bridge/msgs"
	"github.com/robotalks/nwp.go/pkg/nwp"
	"github.com/robotalks/nwp.go/pkg/nwp/event"
	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
)

type published struct {
	topic string
	rec   msgs.Record
}

type fakePublisher struct {
	lock sync.Mutex
	msgs []published
}

func (p *fakePublisher) Pub(topic string, payload []byte) paho.Token {
	rec, err := msgs.Decode(payload)
	if err != nil {
		panic(err)
	}
	p.lock.Lock()
	p.msgs = append(p.msgs, published{topic: topic, rec: rec})
	p.lock.Unlock()
	return &paho.DummyToken{}
}

type fakeExecutor struct {
	status int16
	async  []byte
	action protocol.ActionKind
	sd     uint8
}

func (e *fakeExecutor) Do(ctx context.Context, req *nwp.Request, reply *nwp.Reply) error {
	reply.Opcode = protocol.ReplyOf(req.Opcode)
	reply.Desc = make([]byte, 4)
	protocol.PutDescWord(reply.Desc, req.Desc[0], e.status)
	reply.PayloadLen = copy(reply.Payload, "pong")
	if e.status < 0 {
		return &nwp.StatusError{Opcode: req.Opcode, Status: e.status}
	}
	return nil
}

func (e *fakeExecutor) DoAsync(ctx context.Context, action protocol.ActionKind, sd uint8, req *nwp.Request, reply *nwp.Reply) ([]byte, error) {
	e.action, e.sd = action, sd
	if err := e.Do(ctx, req, reply); err != nil {
		return nil, err
	}
	return e.async, nil
}

func TestMatchTopic(t *testing.T) {
	require.True(t, MatchTopic("h1/event", "h1/event"))
	require.True(t, MatchTopic("h1/event", "+/event"))
	require.True(t, MatchTopic("h1/event", "#"))
	require.True(t, MatchTopic("h1/event/x", "h1/#"))
	require.False(t, MatchTopic("h1/event", "h2/event"))
	require.False(t, MatchTopic("h1/event/x", "+/event"))
	require.False(t, MatchTopic("h1", "h1/event"))
}

func TestClientOptionsFromURL(t *testing.T) {
	opts, prefix, err := ClientOptionsFromURL("mqtt://u:p@broker:1883/nwp/?client-id=c1")
	require.NoError(t, err)
	require.Equal(t, "nwp/", prefix)
	require.Equal(t, "tcp://broker:1883", opts.Servers[0].String())
	require.Equal(t, "u", opts.Username)
	require.Equal(t, "p", opts.Password)
	require.Equal(t, "c1", opts.ClientID)
}

func TestWrapPublishesEvents(t *testing.T) {
	pub := &fakePublisher{}
	b := &Bridge{HostID: "h1", Publisher: pub}
	var handled []*event.Event
	hs := event.Handlers{Socket: event.HandleEventFunc(func(_ context.Context, ev *event.Event) {
		handled = append(handled, ev)
	})}
	b.Install(&hs)

	ev, err := event.New(protocol.OpSocketTxFailed, []byte{3, 0, 0xf2, 0xff}, nil)
	require.NoError(t, err)
	require.True(t, hs.Dispatch(context.Background(), ev))
	require.Len(t, handled, 1)

	ev, err = event.New(protocol.OpWlanConnectEvent, make([]byte, 4), []byte("ssid"))
	require.NoError(t, err)
	require.True(t, hs.Dispatch(context.Background(), ev))

	require.Len(t, pub.msgs, 2)
	require.Equal(t, "h1/event", pub.msgs[0].topic)
	rec := pub.msgs[0].rec.(*msgs.EventRecord)
	require.Equal(t, uint32(protocol.OpSocketTxFailed), rec.Opcode)
	require.Equal(t, "h1", rec.HostID)
	require.Equal(t, []byte{3, 0, 0xf2, 0xff}, rec.Desc)
	require.Equal(t, []byte("ssid"), pub.msgs[1].rec.(*msgs.EventRecord).Payload)
}

func TestHandleFatal(t *testing.T) {
	pub := &fakePublisher{}
	b := &Bridge{HostID: "h1", Publisher: pub}
	b.HandleFatal(&nwp.FatalError{Code: nwp.FatalCmdTimeout, Param1: 0x4435, Param2: 50})
	require.Len(t, pub.msgs, 1)
	require.Equal(t, "h1/fatal", pub.msgs[0].topic)
	rec := pub.msgs[0].rec.(*msgs.FatalRecord)
	require.Equal(t, uint32(nwp.FatalCmdTimeout), rec.Code)
	require.Equal(t, uint32(0x4435), rec.Param1)
	require.Equal(t, uint32(50), rec.Param2)
	require.NotEmpty(t, rec.Message)
}

func TestExecute(t *testing.T) {
	exec := &fakeExecutor{}
	b := &Bridge{HostID: "h1", Executor: exec}
	ctx := context.Background()

	rep := b.Execute(ctx, &msgs.CommandRecord{ID: 1, Opcode: uint32(protocol.OpDeviceGet), Desc: make([]byte, 4)})
	require.Empty(t, rep.Error)
	require.Equal(t, uint64(1), rep.ID)
	require.Equal(t, uint32(protocol.ReplyOf(protocol.OpDeviceGet)), rep.Opcode)
	require.Equal(t, []byte("pong"), rep.Payload)

	exec.status = -14
	rep = b.Execute(ctx, &msgs.CommandRecord{ID: 2, Opcode: uint32(protocol.OpDeviceGet), Desc: make([]byte, 4)})
	require.NotEmpty(t, rep.Error)
	require.Equal(t, int32(-14), rep.Status)

	exec.status, exec.async = 0, []byte{1, 2, 3}
	rep = b.Execute(ctx, &msgs.CommandRecord{
		ID: 3, Opcode: uint32(protocol.OpSocketRecv), Desc: []byte{5, 0, 0, 0},
		Async: true, Action: uint32(protocol.ActionRecv), Socket: 5,
	})
	require.Empty(t, rep.Error)
	require.Equal(t, []byte{1, 2, 3}, rep.Async)
	require.Equal(t, protocol.ActionRecv, exec.action)
	require.Equal(t, uint8(5), exec.sd)
}

func TestReplyRecordOfError(t *testing.T) {
	rep := ReplyRecordOf(9, &nwp.Reply{}, nil, nwp.ErrAborted)
	require.Equal(t, uint64(9), rep.ID)
	require.Equal(t, nwp.ErrAborted.Error(), rep.Error)
	require.Zero(t, rep.Opcode)
}
