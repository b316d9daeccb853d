// Package msgs defines the records exchanged by the NWP bridge.
package msgs

import (
	"github.com/golang/protobuf/proto"
)

// EventRecord publishes an async event received from the NWP.
type EventRecord struct {
	HostID    string `protobuf:"bytes,1,opt,name=host_id,proto3" json:"host_id,omitempty"`
	Opcode    uint32 `protobuf:"varint,2,opt,name=opcode,proto3" json:"opcode,omitempty"`
	EventID   uint32 `protobuf:"varint,3,opt,name=event_id,proto3" json:"event_id,omitempty"`
	Kind      string `protobuf:"bytes,4,opt,name=kind,proto3" json:"kind,omitempty"`
	Desc      []byte `protobuf:"bytes,5,opt,name=desc,proto3" json:"desc,omitempty"`
	Payload   []byte `protobuf:"bytes,6,opt,name=payload,proto3" json:"payload,omitempty"`
	Timestamp int64  `protobuf:"varint,7,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// TypeID implements Record.
func (m *EventRecord) TypeID() uint32 { return EventRecordTypeID }

// ProtoMessage implements proto.Message.
func (m *EventRecord) ProtoMessage() {}

// Reset implements proto.Message.
func (m *EventRecord) Reset() { *m = EventRecord{} }

// String implements proto.Message.
func (m *EventRecord) String() string { return proto.CompactTextString(m) }

// FatalRecord publishes the fatal error latching restart required.
type FatalRecord struct {
	HostID    string `protobuf:"bytes,1,opt,name=host_id,proto3" json:"host_id,omitempty"`
	Code      uint32 `protobuf:"varint,2,opt,name=code,proto3" json:"code,omitempty"`
	Param1    uint32 `protobuf:"varint,3,opt,name=param1,proto3" json:"param1,omitempty"`
	Param2    uint32 `protobuf:"varint,4,opt,name=param2,proto3" json:"param2,omitempty"`
	Message   string `protobuf:"bytes,5,opt,name=message,proto3" json:"message,omitempty"`
	Timestamp int64  `protobuf:"varint,6,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// TypeID implements Record.
func (m *FatalRecord) TypeID() uint32 { return FatalRecordTypeID }

// ProtoMessage implements proto.Message.
func (m *FatalRecord) ProtoMessage() {}

// Reset implements proto.Message.
func (m *FatalRecord) Reset() { *m = FatalRecord{} }

// String implements proto.Message.
func (m *FatalRecord) String() string { return proto.CompactTextString(m) }

// CommandRecord is a command submitted remotely. With Async set, the reply
// waits for the async message correlated by Action and Socket.
type CommandRecord struct {
	ID       uint64 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Opcode   uint32 `protobuf:"varint,2,opt,name=opcode,proto3" json:"opcode,omitempty"`
	Desc     []byte `protobuf:"bytes,3,opt,name=desc,proto3" json:"desc,omitempty"`
	Payload1 []byte `protobuf:"bytes,4,opt,name=payload1,proto3" json:"payload1,omitempty"`
	Payload2 []byte `protobuf:"bytes,5,opt,name=payload2,proto3" json:"payload2,omitempty"`
	Async    bool   `protobuf:"varint,6,opt,name=async,proto3" json:"async,omitempty"`
	Action   uint32 `protobuf:"varint,7,opt,name=action,proto3" json:"action,omitempty"`
	Socket   uint32 `protobuf:"varint,8,opt,name=socket,proto3" json:"socket,omitempty"`
}

// TypeID implements Record.
func (m *CommandRecord) TypeID() uint32 { return CommandRecordTypeID }

// ProtoMessage implements proto.Message.
func (m *CommandRecord) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandRecord) Reset() { *m = CommandRecord{} }

// String implements proto.Message.
func (m *CommandRecord) String() string { return proto.CompactTextString(m) }

// ReplyRecord answers a CommandRecord with the same ID.
type ReplyRecord struct {
	ID      uint64 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Opcode  uint32 `protobuf:"varint,2,opt,name=opcode,proto3" json:"opcode,omitempty"`
	Status  int32  `protobuf:"varint,3,opt,name=status,proto3" json:"status,omitempty"`
	Desc    []byte `protobuf:"bytes,4,opt,name=desc,proto3" json:"desc,omitempty"`
	Payload []byte `protobuf:"bytes,5,opt,name=payload,proto3" json:"payload,omitempty"`
	Async   []byte `protobuf:"bytes,6,opt,name=async,proto3" json:"async,omitempty"`
	Error   string `protobuf:"bytes,7,opt,name=error,proto3" json:"error,omitempty"`
}

// TypeID implements Record.
func (m *ReplyRecord) TypeID() uint32 { return ReplyRecordTypeID }

// ProtoMessage implements proto.Message.
func (m *ReplyRecord) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ReplyRecord) Reset() { *m = ReplyRecord{} }

// String implements proto.Message.
func (m *ReplyRecord) String() string { return proto.CompactTextString(m) }
