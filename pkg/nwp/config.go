package nwp

import "time"

// Config tunes the driver.
type Config struct {
	// LongSync selects the 8-byte host sync pattern.
	LongSync bool
	// SyncTimeout bounds sync recovery, 0 waits forever.
	SyncTimeout time.Duration
	// InitTimeout bounds the wait for init complete in Start.
	InitTimeout time.Duration
	// CmdTimeout bounds the wait for a command reply.
	CmdTimeout time.Duration
	// LongCmdTimeout is used for multi-chunk (filesystem) commands.
	LongCmdTimeout time.Duration
	// AsyncTimeout is the ceiling for correlated async replies, 0 waits
	// until the call is canceled or aborted.
	AsyncTimeout time.Duration
	// NonBlockingRecvTimeout bounds recv on non-blocking sockets.
	NonBlockingRecvTimeout time.Duration
	// PoolSize is the number of correlation slots.
	PoolSize int
	// DeferredQueueSize is the number of events buffered in command context.
	DeferredQueueSize int
	// ReservedCredits is the credit floor never used by data.
	ReservedCredits uint16
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		SyncTimeout:            2 * time.Second,
		InitTimeout:            5 * time.Second,
		CmdTimeout:             10 * time.Second,
		LongCmdTimeout:         65 * time.Second,
		AsyncTimeout:           0,
		NonBlockingRecvTimeout: 100 * time.Millisecond,
		PoolSize:               10,
		DeferredQueueSize:      8,
		ReservedCredits:        1,
	}
}

func (c Config) cmdTimeout(long bool) time.Duration {
	if long {
		return c.LongCmdTimeout
	}
	return c.CmdTimeout
}
