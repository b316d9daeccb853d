package msgs

import (
	"fmt"

	"github.com/golang/protobuf/proto"
)

// TypeID masks
const (
	TypeIDMaskKind  uint32 = 0x80000000
	TypeIDMaskReply uint32 = 0x00008000
)

// Record kinds
const (
	TypeIDKindCommand uint32 = 0x00000000
	TypeIDKindEvent   uint32 = 0x80000000
)

// Record type ids
const (
	GroupNWP uint32 = 0x00100000

	CommandRecordTypeID uint32 = TypeIDKindCommand | GroupNWP | 0x0001
	ReplyRecordTypeID   uint32 = CommandRecordTypeID | TypeIDMaskReply
	EventRecordTypeID   uint32 = TypeIDKindEvent | GroupNWP | 0x0001
	FatalRecordTypeID   uint32 = TypeIDKindEvent | GroupNWP | 0x0002
)

// Record is a message carried by the bridge.
type Record interface {
	proto.Message
	TypeID() uint32
}

// ErrUnknownType indicates unknown type id.
type ErrUnknownType struct {
	TypeID uint32
}

// Error implements error.
func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown type: %x", e.TypeID)
}

var recordTypes = map[uint32]func() Record{
	CommandRecordTypeID: func() Record { return &CommandRecord{} },
	ReplyRecordTypeID:   func() Record { return &ReplyRecord{} },
	EventRecordTypeID:   func() Record { return &EventRecord{} },
	FatalRecordTypeID:   func() Record { return &FatalRecord{} },
}

// Typed wraps a record with its type id.
type Typed struct {
	TypeId  uint32 `protobuf:"varint,1,opt,name=type_id,proto3" json:"type_id,omitempty"`
	Message []byte `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Typed) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Typed) Reset() { *m = Typed{} }

// String implements proto.Message.
func (m *Typed) String() string { return proto.CompactTextString(m) }

// IsEvent determines if the record is an event.
func (m *Typed) IsEvent() bool {
	return m.TypeId&TypeIDMaskKind == TypeIDKindEvent
}

// Encode serializes a record with its type.
func Encode(rec Record) ([]byte, error) {
	data, err := proto.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(&Typed{TypeId: rec.TypeID(), Message: data})
}

// Decode decodes bytes produced by Encode.
func Decode(data []byte) (Record, error) {
	var typed Typed
	if err := proto.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	newRec, ok := recordTypes[typed.TypeId]
	if !ok {
		return nil, &ErrUnknownType{TypeID: typed.TypeId}
	}
	rec := newRec()
	if err := proto.Unmarshal(typed.Message, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
