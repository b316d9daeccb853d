package protocol

import "encoding/binary"

// Sync patterns.
const (
	// H2NSyncWord is the first (and in short form the only) word of the
	// host to NWP sync pattern.
	H2NSyncWord uint32 = 0xBBDDEEFF
	// H2NSyncLongWord2 is the second word of the long host to NWP pattern:
	// 0x4321 followed by bytes 0x34, 0x12.
	H2NSyncLongWord2 uint32 = 0x12344321

	// N2HSyncWord is the NWP to host sync word.
	N2HSyncWord uint32 = 0xABCDDCBA
	// N2HSyncSeqBits carries the 2-bit rolling sequence number.
	N2HSyncSeqBits uint32 = 0x00000003
	// N2HSyncSeqExists is set when the sequence bits are valid.
	N2HSyncSeqExists uint32 = 0x00000004
	// N2HSyncPatternMask excludes the sequence bits from the base compare.
	N2HSyncPatternMask uint32 = 0xFFFFFFF8
	// SyncStuckBitsMask masks bits 7, 15 and 31 known to be unreliable on
	// some SPI implementations.
	SyncStuckBitsMask uint32 = 0x7FFF7F7F
)

// Sizes.
const (
	SyncWordSize       = 4
	LongSyncSize       = 8
	GenericHeaderSize  = 4
	ResponseHeaderSize = 8
	Alignment          = 4
)

// Align rounds n up to a multiple of 4.
func Align(n int) int {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// MatchN2HSync checks whether word is the NWP sync pattern for the expected
// sequence number.
func MatchN2HSync(word uint32, seq uint8) bool {
	masked := word & SyncStuckBitsMask
	if masked&N2HSyncPatternMask != N2HSyncWord&SyncStuckBitsMask&N2HSyncPatternMask {
		return false
	}
	if word&N2HSyncSeqExists == 0 {
		return true
	}
	return word&N2HSyncSeqBits == uint32(seq)&N2HSyncSeqBits
}

// N2HSync builds the NWP sync word carrying seq.
func N2HSync(seq uint8) uint32 {
	return (N2HSyncWord & N2HSyncPatternMask) | N2HSyncSeqExists | (uint32(seq) & N2HSyncSeqBits)
}

// GenericHeader is the header common to both directions.
type GenericHeader struct {
	Opcode uint16
	// Len covers descriptor and payload, excluding headers.
	Len uint16
}

// Put encodes the header into b (at least 4 bytes).
func (h GenericHeader) Put(b []byte) {
	_ = b[3]
	binary.LittleEndian.PutUint16(b[0:2], h.Opcode)
	binary.LittleEndian.PutUint16(b[2:4], h.Len)
}

// DecodeGenericHeader decodes a generic header from b.
func DecodeGenericHeader(b []byte) GenericHeader {
	_ = b[3]
	return GenericHeader{
		Opcode: binary.LittleEndian.Uint16(b[0:2]),
		Len:    binary.LittleEndian.Uint16(b[2:4]),
	}
}

// ResponseHeader is carried by every NWP to host message.
type ResponseHeader struct {
	TxPoolCnt         uint8
	DevStatus         uint8
	MinPayloadUnit    uint16
	SocketTxFailure   uint16
	SocketNonBlocking uint16
}

// Put encodes the response header into b (at least 8 bytes).
func (h ResponseHeader) Put(b []byte) {
	_ = b[7]
	b[0], b[1] = h.TxPoolCnt, h.DevStatus
	binary.LittleEndian.PutUint16(b[2:4], h.MinPayloadUnit)
	binary.LittleEndian.PutUint16(b[4:6], h.SocketTxFailure)
	binary.LittleEndian.PutUint16(b[6:8], h.SocketNonBlocking)
}

// DecodeResponseHeader decodes a response header from b.
func DecodeResponseHeader(b []byte) ResponseHeader {
	_ = b[7]
	return ResponseHeader{
		TxPoolCnt:         b[0],
		DevStatus:         b[1],
		MinPayloadUnit:    binary.LittleEndian.Uint16(b[2:4]),
		SocketTxFailure:   binary.LittleEndian.Uint16(b[4:6]),
		SocketNonBlocking: binary.LittleEndian.Uint16(b[6:8]),
	}
}

// Header is a fully parsed message header.
type Header struct {
	GenericHeader
	// Response is only valid for messages read in host role.
	Response ResponseHeader
}

// Descriptors of replies and socket messages share a first word: socket
// id (0 when not applicable) in byte 0 and a signed status in bytes 2-3.
// Negative status values are errors.

// DescStatus extracts the status from the first descriptor word.
func DescStatus(desc []byte) int16 {
	if len(desc) < 4 {
		return 0
	}
	return int16(binary.LittleEndian.Uint16(desc[2:4]))
}

// PutDescWord encodes the first descriptor word.
func PutDescWord(b []byte, sd uint8, status int16) {
	_ = b[3]
	b[0], b[1] = sd, 0
	binary.LittleEndian.PutUint16(b[2:4], uint16(status))
}
