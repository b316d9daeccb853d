package nwp

import "io"

// Transport is the byte link to the NWP.
type Transport interface {
	io.ReadWriter
	MaskInterrupt()
	UnmaskInterrupt()
}

// InterruptSource is implemented by transports raising interrupts
// themselves. The driver registers Interrupt on Start.
type InterruptSource interface {
	SetInterruptHandler(func())
}
