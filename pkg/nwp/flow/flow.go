// Package flow implements credit based admission of bulk socket data.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
)

var (
	// ErrWouldBlock is returned for a non-blocking socket without credit.
	ErrWouldBlock = errors.New("would block")
	// ErrAborted is returned to credit waiters after Abort.
	ErrAborted = errors.New("flow control aborted")
)

// TxFailedError indicates a previous send on the socket failed.
// The socket refuses writes until it is closed.
type TxFailedError struct {
	Socket uint8
}

// Error implements error.
func (e *TxFailedError) Error() string {
	return fmt.Sprintf("socket %d: previous send failed", e.Socket)
}

// Control is the flow-control block.
type Control struct {
	// Reserved is the credit floor kept for non-data traffic.
	Reserved uint16

	credits     uint16
	reported    uint16
	minUnit     uint16
	nonBlocking uint16
	txFailure   uint16
	aborted     bool
	creditCh    chan struct{}
	lock        sync.Mutex
}

// New creates a Control with the reserved credit floor.
func New(reserved uint16) *Control {
	return &Control{Reserved: reserved, creditCh: make(chan struct{})}
}

// Reset clears all state, including abort.
func (c *Control) Reset() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.credits, c.reported, c.minUnit = 0, 0, 0
	c.nonBlocking, c.txFailure = 0, 0
	c.aborted = false
	c.broadcastLocked()
}

// Refresh takes the credit snapshot carried by every received header.
func (c *Control) Refresh(resp protocol.ResponseHeader) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.credits = uint16(resp.TxPoolCnt)
	c.reported = c.credits
	if resp.MinPayloadUnit != 0 {
		c.minUnit = resp.MinPayloadUnit
	}
	c.nonBlocking = resp.SocketNonBlocking
	c.txFailure |= resp.SocketTxFailure
	c.broadcastLocked()
}

// Complete credits n buffers back, capped at the value last reported.
func (c *Control) Complete(n uint16) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if room := c.reported - c.credits; n > room {
		n = room
	}
	c.credits += n
	glog.V(4).Infof("flow: +%d credits, now %d", n, c.credits)
	c.broadcastLocked()
}

// CreditsNeeded computes ceil(size/minPayloadUnit).
func (c *Control) CreditsNeeded(size int) uint16 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.neededLocked(size)
}

func (c *Control) neededLocked(size int) uint16 {
	if size <= 0 {
		return 0
	}
	unit := int(c.minUnit)
	if unit == 0 {
		unit = 1
	}
	n := (size + unit - 1) / unit
	if n > 0xffff {
		n = 0xffff
	}
	return uint16(n)
}

// Admit debits the credits required to send size bytes on socket sd.
// A non-blocking socket gets ErrWouldBlock and nothing is debited, a
// blocking socket waits for credit until ctx is done.
func (c *Control) Admit(ctx context.Context, sd uint8, size int) (uint16, error) {
	for {
		c.lock.Lock()
		if c.aborted {
			c.lock.Unlock()
			return 0, ErrAborted
		}
		if c.txFailure&socketBit(sd) != 0 {
			c.lock.Unlock()
			return 0, &TxFailedError{Socket: sd}
		}
		needed := c.neededLocked(size)
		if uint32(c.credits) > uint32(c.Reserved)+uint32(needed) {
			c.credits -= needed
			c.lock.Unlock()
			return needed, nil
		}
		if c.nonBlocking&socketBit(sd) != 0 {
			c.lock.Unlock()
			return 0, ErrWouldBlock
		}
		ch := c.creditCh
		c.lock.Unlock()
		glog.V(4).Infof("flow: sd%d waiting for %d credits", sd, needed)
		select {
		case <-ch:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Abort fails every current and future credit wait until Reset.
func (c *Control) Abort() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.aborted = true
	c.broadcastLocked()
}

// MarkTxFailed latches the send failure of socket sd.
func (c *Control) MarkTxFailed(sd uint8) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.txFailure |= socketBit(sd)
}

// Clear drops the socket state when it is closed.
func (c *Control) Clear(sd uint8) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.txFailure &^= socketBit(sd)
	c.nonBlocking &^= socketBit(sd)
}

// NonBlocking tells whether sd was reported as non-blocking.
func (c *Control) NonBlocking(sd uint8) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.nonBlocking&socketBit(sd) != 0
}

// Credits returns the current and last reported credit counts.
func (c *Control) Credits() (current, reported uint16) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.credits, c.reported
}

func (c *Control) broadcastLocked() {
	close(c.creditCh)
	c.creditCh = make(chan struct{})
}

func socketBit(sd uint8) uint16 {
	if int(sd) >= protocol.MaxSockets {
		return 0
	}
	return 1 << sd
}
