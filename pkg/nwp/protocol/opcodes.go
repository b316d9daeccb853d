package protocol

import "fmt"

// Opcode bit layout.
const (
	OpcodeSiloMask  uint16 = 0xF000
	OpcodeSiloShift        = 12
	// OpcodeSyncFlag marks a reply to a host command.
	OpcodeSyncFlag uint16 = 0x0800
	// OpcodeCmdFlag marks a host command.
	OpcodeCmdFlag uint16 = 0x0400
	OpcodeIDMask  uint16 = 0x03FF
)

// Silo is the subsystem grouping of an opcode.
type Silo uint8

// Silos
const (
	SiloDevice  Silo = 0x0
	SiloWlan    Silo = 0x1
	SiloSocket  Silo = 0x2
	SiloNetApp  Silo = 0x3
	SiloFS      Silo = 0x4
	SiloNetCfg  Silo = 0x5
	SiloNetUtil Silo = 0x6
)

var siloNames = map[Silo]string{
	SiloDevice:  "device",
	SiloWlan:    "wlan",
	SiloSocket:  "socket",
	SiloNetApp:  "netapp",
	SiloFS:      "fs",
	SiloNetCfg:  "netcfg",
	SiloNetUtil: "netutil",
}

// String implements fmt.Stringer.
func (s Silo) String() string {
	if name, ok := siloNames[s]; ok {
		return name
	}
	return fmt.Sprintf("silo(%d)", uint8(s))
}

// SiloOf extracts the silo from an opcode.
func SiloOf(op uint16) Silo {
	return Silo((op & OpcodeSiloMask) >> OpcodeSiloShift)
}

// IsReply indicates op is a reply to a host command.
func IsReply(op uint16) bool {
	return op&OpcodeSyncFlag != 0
}

// ReplyOf gets the reply opcode of a command.
func ReplyOf(op uint16) uint16 {
	return op | OpcodeSyncFlag
}

// Device silo.
const (
	OpDeviceInitComplete      uint16 = 0x0008
	OpDeviceAbort             uint16 = 0x000C
	OpDeviceGeneralError      uint16 = 0x0011
	OpDeviceDummy             uint16 = 0x0063
	OpDeviceStopAsyncResponse uint16 = 0x0073
	OpDeviceGet               uint16 = 0x0466
	OpDeviceSet               uint16 = 0x0467
	OpDeviceStop              uint16 = 0x0473
)

// WLAN silo.
const (
	OpWlanConnectEvent       uint16 = 0x1001
	OpWlanDisconnectEvent    uint16 = 0x1002
	OpWlanProvisioningStatus uint16 = 0x1010
	OpWlanConnect            uint16 = 0x1401
	OpWlanDisconnect         uint16 = 0x1402
	OpWlanProvisioning       uint16 = 0x1410
)

// Socket silo.
const (
	OpSocketConnectAsyncResponse  uint16 = 0x2003
	OpSocketAcceptAsyncResponse   uint16 = 0x2004
	OpSocketSelectAsyncResponse   uint16 = 0x2007
	OpSocketRecvAsyncResponse     uint16 = 0x200A
	OpSocketRecvFromAsyncResponse uint16 = 0x200B
	OpSocketTxFailed              uint16 = 0x200E
	OpSocketTxCompleted           uint16 = 0x2010
	OpSocketCreate                uint16 = 0x2401
	OpSocketClose                 uint16 = 0x2402
	OpSocketConnect               uint16 = 0x2403
	OpSocketAccept                uint16 = 0x2404
	OpSocketSelect                uint16 = 0x2407
	OpSocketRecv                  uint16 = 0x240A
	OpSocketRecvFrom              uint16 = 0x240B
	OpSocketSend                  uint16 = 0x240C
)

// NetApp silo.
const (
	OpNetAppPingReport          uint16 = 0x3007
	OpNetAppGetHostByNameAsync  uint16 = 0x3020
	OpNetAppIPAcquired          uint16 = 0x3025
	OpNetAppRequest             uint16 = 0x3050
	OpNetAppPing                uint16 = 0x3407
	OpNetAppGetHostByName       uint16 = 0x3420
	OpNetAppResponse            uint16 = 0x3451
	OpNetAppRequestHeaderLength        = 8
)

// FS silo.
const (
	OpFSOpen  uint16 = 0x4401
	OpFSClose uint16 = 0x4402
	OpFSRead  uint16 = 0x4403
	OpFSWrite uint16 = 0x4404
)

// NetCfg silo.
const (
	OpNetCfgSet uint16 = 0x5401
	OpNetCfgGet uint16 = 0x5402
)

// NetUtil silo.
const (
	OpNetUtilEvent uint16 = 0x6001
	OpNetUtilCmd   uint16 = 0x6401
)

// Socket ids.
const (
	MaxSockets = 16
	// NoSocket is the correlation sentinel for actions not bound to a socket.
	NoSocket uint8 = 0xFF
)

// Device status bits reported in ResponseHeader.DevStatus.
const (
	DevStatusStarted      uint8 = 0x01
	DevStatusProvisioning uint8 = 0x02
)
