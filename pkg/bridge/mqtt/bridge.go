package mqtt

import (
	"context"
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/nwp.go/pkg/bridge/msgs"
	"github.com/robotalks/nwp.go/pkg/nwp"
	"github.com/robotalks/nwp.go/pkg/nwp/event"
	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
)

const publishTimeout = time.Second

// Topic suffixes under <prefix><host-id>/.
const (
	TopicEvent   = "event"
	TopicFatal   = "fatal"
	TopicCommand = "cmd"
	TopicReply   = "reply"
)

// Publisher publishes raw payloads.
type Publisher interface {
	Pub(topic string, payload []byte) paho.Token
}

// Executor runs commands against the NWP, implemented by *nwp.Driver.
type Executor interface {
	Do(ctx context.Context, req *nwp.Request, reply *nwp.Reply) error
	DoAsync(ctx context.Context, action protocol.ActionKind, sd uint8, req *nwp.Request, reply *nwp.Reply) ([]byte, error)
}

// Bridge publishes NWP events and fatal errors and executes remote commands.
type Bridge struct {
	HostID    string
	Publisher Publisher
	Executor  Executor
	Queue     *Queue

	wg sync.WaitGroup
}

// New creates a Bridge on queue q for driver exec.
func New(q *Queue, hostID string, exec Executor) *Bridge {
	return &Bridge{HostID: hostID, Publisher: q, Executor: exec, Queue: q}
}

// Topic returns the full topic name of suffix for this host.
func (b *Bridge) Topic(suffix string) string {
	return b.HostID + "/" + suffix
}

// Publish encodes and publishes a record.
func (b *Bridge) Publish(suffix string, rec msgs.Record) error {
	data, err := msgs.Encode(rec)
	if err != nil {
		return err
	}
	token := b.Publisher.Pub(b.Topic(suffix), data)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timeout")
	}
	return token.Error()
}

// Wrap returns a handler publishing every event before passing it to h,
// which may be nil.
func (b *Bridge) Wrap(h event.Handler) event.Handler {
	return event.HandleEventFunc(func(ctx context.Context, ev *event.Event) {
		if err := b.Publish(TopicEvent, EventRecordOf(b.HostID, ev)); err != nil {
			glog.Warningf("bridge: publish event %s failed: %v", ev, err)
		}
		if h != nil {
			h.HandleEvent(ctx, ev)
		}
	})
}

// Install wraps all handlers in place.
func (b *Bridge) Install(hs *event.Handlers) {
	hs.Device = b.Wrap(hs.Device)
	hs.Wlan = b.Wrap(hs.Wlan)
	hs.Socket = b.Wrap(hs.Socket)
	hs.NetApp = b.Wrap(hs.NetApp)
	hs.NetUtil = b.Wrap(hs.NetUtil)
}

// HandleFatal implements nwp.FatalObserver.
func (b *Bridge) HandleFatal(ferr *nwp.FatalError) {
	if err := b.Publish(TopicFatal, FatalRecordOf(b.HostID, ferr)); err != nil {
		glog.Warningf("bridge: publish fatal failed: %v", err)
	}
}

// Execute runs a remote command and builds its reply.
func (b *Bridge) Execute(ctx context.Context, cmd *msgs.CommandRecord) *msgs.ReplyRecord {
	req := &nwp.Request{
		Opcode:   uint16(cmd.Opcode),
		Desc:     cmd.Desc,
		Payload1: cmd.Payload1,
		Payload2: cmd.Payload2,
	}
	reply := &nwp.Reply{Payload: make([]byte, nwp.MaxDataLen)}
	var async []byte
	var err error
	if cmd.Async {
		async, err = b.Executor.DoAsync(ctx, protocol.ActionKind(cmd.Action), uint8(cmd.Socket), req, reply)
	} else {
		err = b.Executor.Do(ctx, req, reply)
	}
	return ReplyRecordOf(cmd.ID, reply, async, err)
}

// Run connects the queue and serves remote commands until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.Queue.Sub(b.Topic(TopicCommand), func(_ string, payload []byte) {
		b.handleCommand(ctx, payload)
	})
	if token := b.Queue.Connect(); token.Wait() && token.Error() != nil {
		sub.Close()
		return token.Error()
	}
	<-ctx.Done()
	sub.Close()
	b.wg.Wait()
	b.Queue.Close()
	return nil
}

func (b *Bridge) handleCommand(ctx context.Context, payload []byte) {
	rec, err := msgs.Decode(payload)
	if err != nil {
		glog.Warningf("bridge: bad command: %v", err)
		return
	}
	cmd, ok := rec.(*msgs.CommandRecord)
	if !ok {
		glog.Warningf("bridge: unexpected record %T on command topic", rec)
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.Publish(TopicReply, b.Execute(ctx, cmd)); err != nil {
			glog.Warningf("bridge: publish reply %d failed: %v", cmd.ID, err)
		}
	}()
}
