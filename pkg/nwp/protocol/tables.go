package protocol

// MsgClass is the routing class of a received message.
type MsgClass int

// Message classes.
const (
	ClassCmdResp MsgClass = iota
	ClassAsyncEvent
	ClassActionReply
	ClassDataReply
	ClassCreditUpdate
	ClassDummy
)

var classNames = [...]string{"cmd-resp", "async-event", "action-reply", "data-reply", "credit-update", "dummy"}

// String implements fmt.Stringer.
func (c MsgClass) String() string {
	if c >= 0 && int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// ActionKind identifies a logical operation waiting for an async reply.
type ActionKind uint8

// Action kinds.
const (
	ActionNone ActionKind = iota
	ActionAccept
	ActionConnect
	ActionSelect
	ActionGetHostByName
	ActionPing
	ActionStartStop
	ActionRecv
	ActionRecvFrom
	ActionNetAppRequest
)

var actionNames = [...]string{"none", "accept", "connect", "select", "gethostbyname", "ping", "startstop", "recv", "recvfrom", "netapp-request"}

// String implements fmt.Stringer.
func (a ActionKind) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "action?"
}

// CmdCtrl describes a host command.
type CmdCtrl struct {
	Opcode    uint16
	TxDescLen int
	RxDescLen int
	// Long selects the long reply timeout (multi-chunk/filesystem opcodes).
	Long bool
	// NoReply commands are only written, the NWP does not reply.
	NoReply bool
}

// Action maps an async opcode to a correlation slot.
type Action struct {
	Kind   ActionKind
	Opcode uint16
	// DescLen is the descriptor length of the async message.
	DescLen int
	// BySocket indicates the first descriptor byte carries the socket id.
	BySocket bool
}

// EventID is the public identifier of an async event.
type EventID uint16

// Event ids.
const (
	EventUnknown EventID = iota
	EventInitComplete
	EventAbort
	EventGeneralError
	EventWlanConnect
	EventWlanDisconnect
	EventProvisioningStatus
	EventTxFailed
	EventTxCompleted
	EventIPAcquired
	EventNetAppRequest
	EventNetUtil
)

var commands = map[uint16]CmdCtrl{}

func addCmds(ctls ...CmdCtrl) {
	for _, ctl := range ctls {
		if ctl.Opcode&OpcodeCmdFlag == 0 {
			panic("not a command opcode")
		}
		commands[ctl.Opcode] = ctl
	}
}

func init() {
	addCmds(
		CmdCtrl{Opcode: OpDeviceGet, TxDescLen: 4, RxDescLen: 4},
		CmdCtrl{Opcode: OpDeviceSet, TxDescLen: 4, RxDescLen: 4},
		CmdCtrl{Opcode: OpDeviceStop, TxDescLen: 4, NoReply: true},
		CmdCtrl{Opcode: OpWlanConnect, TxDescLen: 8, RxDescLen: 4},
		CmdCtrl{Opcode: OpWlanDisconnect, RxDescLen: 4},
		CmdCtrl{Opcode: OpWlanProvisioning, TxDescLen: 4, RxDescLen: 4},
		CmdCtrl{Opcode: OpSocketCreate, TxDescLen: 4, RxDescLen: 4},
		CmdCtrl{Opcode: OpSocketClose, TxDescLen: 4, RxDescLen: 4},
		CmdCtrl{Opcode: OpSocketConnect, TxDescLen: 8, RxDescLen: 4},
		CmdCtrl{Opcode: OpSocketAccept, TxDescLen: 4, RxDescLen: 4},
		CmdCtrl{Opcode: OpSocketSelect, TxDescLen: 8, RxDescLen: 4},
		CmdCtrl{Opcode: OpSocketRecv, TxDescLen: 4, NoReply: true},
		CmdCtrl{Opcode: OpSocketRecvFrom, TxDescLen: 4, NoReply: true},
		CmdCtrl{Opcode: OpSocketSend, TxDescLen: 4, NoReply: true},
		CmdCtrl{Opcode: OpNetAppPing, TxDescLen: 8, RxDescLen: 4},
		CmdCtrl{Opcode: OpNetAppGetHostByName, TxDescLen: 4, RxDescLen: 4},
		CmdCtrl{Opcode: OpNetAppResponse, TxDescLen: 8, NoReply: true},
		CmdCtrl{Opcode: OpFSOpen, TxDescLen: 8, RxDescLen: 4, Long: true},
		CmdCtrl{Opcode: OpFSClose, TxDescLen: 4, RxDescLen: 4, Long: true},
		CmdCtrl{Opcode: OpFSRead, TxDescLen: 8, RxDescLen: 4, Long: true},
		CmdCtrl{Opcode: OpFSWrite, TxDescLen: 8, RxDescLen: 4, Long: true},
		CmdCtrl{Opcode: OpNetCfgSet, TxDescLen: 4, RxDescLen: 4},
		CmdCtrl{Opcode: OpNetCfgGet, TxDescLen: 4, RxDescLen: 4},
		CmdCtrl{Opcode: OpNetUtilCmd, TxDescLen: 4, RxDescLen: 4},
	)
}

// LookupCmd finds the command control block for opcode.
func LookupCmd(op uint16) (CmdCtrl, bool) {
	ctl, ok := commands[op&^OpcodeSyncFlag]
	return ctl, ok
}

var actions = []Action{
	{Kind: ActionAccept, Opcode: OpSocketAcceptAsyncResponse, DescLen: 8, BySocket: true},
	{Kind: ActionConnect, Opcode: OpSocketConnectAsyncResponse, DescLen: 4, BySocket: true},
	{Kind: ActionSelect, Opcode: OpSocketSelectAsyncResponse, DescLen: 8},
	{Kind: ActionGetHostByName, Opcode: OpNetAppGetHostByNameAsync, DescLen: 8},
	{Kind: ActionPing, Opcode: OpNetAppPingReport, DescLen: 20},
	{Kind: ActionStartStop, Opcode: OpDeviceStopAsyncResponse, DescLen: 4},
	{Kind: ActionRecv, Opcode: OpSocketRecvAsyncResponse, DescLen: 4, BySocket: true},
	{Kind: ActionRecvFrom, Opcode: OpSocketRecvFromAsyncResponse, DescLen: 12, BySocket: true},
}

// LookupAction finds the action correlated with an async opcode.
func LookupAction(op uint16) (Action, bool) {
	for _, a := range actions {
		if a.Opcode == op {
			return a, true
		}
	}
	return Action{}, false
}

// ActionOf finds the action entry by kind.
func ActionOf(kind ActionKind) (Action, bool) {
	for _, a := range actions {
		if a.Kind == kind {
			return a, true
		}
	}
	return Action{}, false
}

type eventEntry struct {
	id      EventID
	descLen int
}

var events = map[uint16]eventEntry{
	OpDeviceInitComplete:     {EventInitComplete, 4},
	OpDeviceAbort:            {EventAbort, 8},
	OpDeviceGeneralError:     {EventGeneralError, 4},
	OpWlanConnectEvent:       {EventWlanConnect, 4},
	OpWlanDisconnectEvent:    {EventWlanDisconnect, 4},
	OpWlanProvisioningStatus: {EventProvisioningStatus, 4},
	OpSocketTxFailed:         {EventTxFailed, 4},
	OpSocketTxCompleted:      {EventTxCompleted, 4},
	OpNetAppIPAcquired:       {EventIPAcquired, 12},
	OpNetAppRequest:          {EventNetAppRequest, OpNetAppRequestHeaderLength},
	OpNetUtilEvent:           {EventNetUtil, 4},
}

// EventIDOf translates an async opcode into its event id.
func EventIDOf(op uint16) EventID {
	return events[op].id
}

// DescLen returns the descriptor length of a received message. For unknown
// opcodes the whole body is treated as descriptor (-1).
func DescLen(op uint16) int {
	if IsReply(op) {
		if ctl, ok := LookupCmd(op); ok {
			return ctl.RxDescLen
		}
		return -1
	}
	if a, ok := LookupAction(op); ok {
		return a.DescLen
	}
	if e, ok := events[op]; ok {
		return e.descLen
	}
	return -1
}

// Classify decides the routing class of a received opcode.
func Classify(op uint16) MsgClass {
	switch {
	case IsReply(op):
		return ClassCmdResp
	case op == OpDeviceDummy:
		return ClassDummy
	case op == OpSocketTxCompleted:
		return ClassCreditUpdate
	case op == OpSocketRecvAsyncResponse || op == OpSocketRecvFromAsyncResponse:
		return ClassDataReply
	}
	if _, ok := LookupAction(op); ok {
		return ClassActionReply
	}
	return ClassAsyncEvent
}
