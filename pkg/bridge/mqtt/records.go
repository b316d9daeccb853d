package mqtt

import (
	"errors"
	"time"

	"github.com/robotalks/nwp.go/pkg/bridge/msgs"
	"github.com/robotalks/nwp.go/pkg/nwp"
	"github.com/robotalks/nwp.go/pkg/nwp/event"
)

// EventRecordOf converts an event.
func EventRecordOf(hostID string, ev *event.Event) *msgs.EventRecord {
	return &msgs.EventRecord{
		HostID:    hostID,
		Opcode:    uint32(ev.Opcode),
		EventID:   uint32(ev.ID),
		Kind:      ev.Kind.String(),
		Desc:      ev.Desc,
		Payload:   ev.Payload,
		Timestamp: time.Now().UnixNano(),
	}
}

// FatalRecordOf converts a fatal error.
func FatalRecordOf(hostID string, ferr *nwp.FatalError) *msgs.FatalRecord {
	return &msgs.FatalRecord{
		HostID:    hostID,
		Code:      uint32(ferr.Code),
		Param1:    ferr.Param1,
		Param2:    ferr.Param2,
		Message:   ferr.Error(),
		Timestamp: time.Now().UnixNano(),
	}
}

// ReplyRecordOf converts the result of a command. A status error keeps
// the reply content.
func ReplyRecordOf(id uint64, reply *nwp.Reply, async []byte, err error) *msgs.ReplyRecord {
	rec := &msgs.ReplyRecord{ID: id}
	var serr *nwp.StatusError
	if err != nil && !errors.As(err, &serr) {
		rec.Error = err.Error()
		return rec
	}
	if err != nil {
		rec.Error = err.Error()
	}
	rec.Opcode = uint32(reply.Opcode)
	rec.Status = int32(reply.Status())
	rec.Desc = reply.Desc
	n := reply.PayloadLen
	if n > len(reply.Payload) {
		n = len(reply.Payload)
	}
	rec.Payload = reply.Payload[:n]
	rec.Async = async
	return rec
}
