package nwp

import (
	"errors"
	"fmt"

	"github.com/robotalks/nwp.go/pkg/nwp/flow"
	"github.com/robotalks/nwp.go/pkg/nwp/pool"
)

var (
	// ErrAborted is returned once the restart required latch is set and
	// to every caller released by the fatal error broadcast.
	ErrAborted = errors.New("aborted, restart required")
	// ErrNotStarted indicates the device has not completed initialization.
	ErrNotStarted = errors.New("device not started")
	// ErrStopping indicates the driver is being stopped.
	ErrStopping = errors.New("driver stopping")
	// ErrProvisioningActive rejects commands while provisioning holds the device.
	ErrProvisioningActive = errors.New("provisioning active")
	// ErrUnknownOpcode indicates a command not in the command table.
	ErrUnknownOpcode = errors.New("unknown command opcode")
	// ErrNoFreeBuffers indicates an async event was dropped while the call
	// was in progress.
	ErrNoFreeBuffers = errors.New("no free buffers")
	// ErrBadSocket indicates a socket id out of range.
	ErrBadSocket = errors.New("bad socket id")
	// ErrUnknownAction indicates an action kind without async reply.
	ErrUnknownAction = errors.New("unknown async action")
	// ErrInitTimeout indicates the device didn't report init complete.
	ErrInitTimeout = errors.New("init complete timeout")

	// ErrPoolEmpty indicates no correlation slot is available.
	ErrPoolEmpty = pool.ErrPoolEmpty
	// ErrWouldBlock indicates a non-blocking socket can't proceed.
	ErrWouldBlock = flow.ErrWouldBlock
)

// FatalCode identifies the cause of a fatal error.
type FatalCode int

// Fatal codes.
const (
	FatalDeviceAbort FatalCode = iota + 1
	FatalDriverAbort
	FatalSyncLoss
	FatalNoCmdAck
	FatalCmdTimeout
)

var fatalCodeNames = map[FatalCode]string{
	FatalDeviceAbort: "device-abort",
	FatalDriverAbort: "driver-abort",
	FatalSyncLoss:    "sync-loss",
	FatalNoCmdAck:    "no-cmd-ack",
	FatalCmdTimeout:  "cmd-timeout",
}

// String implements fmt.Stringer.
func (c FatalCode) String() string {
	if name, ok := fatalCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("fatal(%d)", int(c))
}

// FatalError is broadcast to fatal observers when the driver gives up.
// Param1 is usually the offending opcode, Param2 the timeout in
// milliseconds or the device abort data.
type FatalError struct {
	Code   FatalCode
	Param1 uint32
	Param2 uint32
}

// Error implements error.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal %s (%#x, %d)", e.Code, e.Param1, e.Param2)
}

// StatusError is a negative status reported by the device.
type StatusError struct {
	Opcode uint16
	Status int16
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("opcode %04x: status %d", e.Opcode, e.Status)
}

// IsAborted tells whether err means the driver needs a restart.
func IsAborted(err error) bool {
	var ferr *FatalError
	return errors.Is(err, ErrAborted) || errors.As(err, &ferr)
}
