// Package event classifies unsolicited NWP messages and routes them to
// per-silo handlers.
package event

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
)

// ErrMalformed indicates an event whose descriptor doesn't match its framing.
var ErrMalformed = errors.New("malformed event")

// Kind is the handler family an event is routed to.
type Kind int

// Handler kinds.
const (
	KindNone Kind = iota
	KindDevice
	KindWlan
	KindSocket
	KindNetApp
	KindNetUtil
)

var kindNames = [...]string{"none", "device", "wlan", "socket", "netapp", "netutil"}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

var siloKinds = [...]Kind{
	protocol.SiloDevice:  KindDevice,
	protocol.SiloWlan:    KindWlan,
	protocol.SiloSocket:  KindSocket,
	protocol.SiloNetApp:  KindNetApp,
	protocol.SiloFS:      KindNone,
	protocol.SiloNetCfg:  KindNone,
	protocol.SiloNetUtil: KindNetUtil,
}

// KindOf maps an async opcode to its handler family.
func KindOf(op uint16) Kind {
	silo := protocol.SiloOf(op)
	if int(silo) < len(siloKinds) {
		return siloKinds[silo]
	}
	return KindNone
}

// Event is an async message received from the NWP.
type Event struct {
	ID      protocol.EventID
	Opcode  uint16
	Kind    Kind
	Desc    []byte
	Payload []byte
	// Request is set for NetApp requests.
	Request *NetAppRequest
}

// New builds an Event from a received message. Descriptor and payload are
// retained, not copied.
func New(op uint16, desc, payload []byte) (*Event, error) {
	ev := &Event{
		ID:      protocol.EventIDOf(op),
		Opcode:  op,
		Kind:    KindOf(op),
		Desc:    desc,
		Payload: payload,
	}
	if op == protocol.OpNetAppRequest {
		req, err := parseNetAppRequest(desc, payload)
		if err != nil {
			return nil, err
		}
		ev.Request = req
	}
	return ev, nil
}

// String implements fmt.Stringer.
func (e *Event) String() string {
	return fmt.Sprintf("event %04x(%s) desc=%d payload=%d", e.Opcode, e.Kind, len(e.Desc), len(e.Payload))
}

// Socket returns the socket id carried by socket events.
func (e *Event) Socket() (uint8, bool) {
	if e.Kind != KindSocket || len(e.Desc) == 0 {
		return protocol.NoSocket, false
	}
	return e.Desc[0], true
}

// Uint32 reads the little endian word at word index i of the descriptor.
func (e *Event) Uint32(i int) uint32 {
	off := i * 4
	if off+4 > len(e.Desc) {
		return 0
	}
	return binary.LittleEndian.Uint32(e.Desc[off:])
}

// NetAppRequest is a request from an NWP hosted application. Its
// descriptor carries the split of the body into metadata and payload.
type NetAppRequest struct {
	AppID    uint8
	Type     uint8
	Handle   uint16
	Metadata []byte
	Payload  []byte
}

func parseNetAppRequest(desc, body []byte) (*NetAppRequest, error) {
	if len(desc) < protocol.OpNetAppRequestHeaderLength {
		return nil, ErrMalformed
	}
	metaLen := int(binary.LittleEndian.Uint16(desc[4:6]))
	payloadLen := int(binary.LittleEndian.Uint16(desc[6:8]))
	if metaLen+payloadLen > len(body) {
		return nil, ErrMalformed
	}
	return &NetAppRequest{
		AppID:    desc[0],
		Type:     desc[1],
		Handle:   binary.LittleEndian.Uint16(desc[2:4]),
		Metadata: body[:metaLen],
		Payload:  body[metaLen : metaLen+payloadLen],
	}, nil
}

// Handler handles events of one family.
type Handler interface {
	HandleEvent(context.Context, *Event)
}

// HandleEventFunc is the func form of Handler.
type HandleEventFunc func(context.Context, *Event)

// HandleEvent implements Handler.
func (f HandleEventFunc) HandleEvent(ctx context.Context, ev *Event) {
	f(ctx, ev)
}

// Handlers is the per-family handler table. nil handlers drop events.
type Handlers struct {
	Device  Handler
	Wlan    Handler
	Socket  Handler
	NetApp  Handler
	NetUtil Handler
}

// Dispatch invokes the handler of the event's family. It reports whether
// a handler was found.
func (h *Handlers) Dispatch(ctx context.Context, ev *Event) bool {
	var handler Handler
	switch ev.Kind {
	case KindDevice:
		handler = h.Device
	case KindWlan:
		handler = h.Wlan
	case KindSocket:
		handler = h.Socket
	case KindNetApp:
		handler = h.NetApp
	case KindNetUtil:
		handler = h.NetUtil
	}
	if handler == nil {
		glog.V(3).Infof("unhandled %s", ev)
		return false
	}
	handler.HandleEvent(ctx, ev)
	return true
}
