// Package protocol defines the host/NWP wire constants, headers and the
// static opcode routing tables.
package protocol

// The host talks to the network co-processor (NWP) over a byte transport
// (SPI or UART). Every message starts with a sync pattern so the receiver
// can find message boundaries in a continuous stream, followed by a
// generic header (opcode, length). Messages from the NWP additionally carry
// a response-specific header reporting flow-control credits and device
// status. Descriptor and payload follow, each 4-byte aligned.
//
// Producer: NWP firmware
// Consumer: host driver
