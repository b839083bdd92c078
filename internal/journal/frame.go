// Package journal implements the Frame Protocol and the memory-mapped,
// lock-free, single-producer/many-consumer ring it transports over.
//
// Layout is pinned to an explicit byte-for-byte structure — not Go struct
// layout — because Go gives no guarantee equivalent to a C compiler's
// struct packing pragmas across platforms. Every fixed-layout type below is
// encoded/decoded through explicit little-endian field access rather than
// being read directly off the mapped memory as a Go struct, the same
// discipline the source fixed-layout shared-memory structs use (explicit
// offsets, explicit padding, one field at a time).
package journal

import (
	"encoding/binary"
	"time"
)

// Magic identifies a journal file as belonging to this protocol.
const Magic uint32 = 0x4A524E4C // "JRNL"

// Version gates incompatible layout changes between processes sharing a
// journal file.
const Version uint32 = 1

const (
	// PageHeaderSize is the fixed size, in bytes, of the Page Header.
	PageHeaderSize = 64
	// FrameHeaderSize is the fixed size, in bytes, of every Frame Header.
	FrameHeaderSize = 32
	// frameAlignment is the alignment invariant every frame start must
	// satisfy.
	frameAlignment = 8
)

// Payload type tags carried in the Frame Header. TypeWrapSentinel marks the
// end-of-physical-buffer marker a writer leaves behind when it wraps.
const (
	TypeWrapSentinel uint32 = 0
	TypeTicker       uint32 = 1
	TypeTrade        uint32 = 2
	TypeOrderBook    uint32 = 3
	TypeKline        uint32 = 4
	TypeFundingRate  uint32 = 5
	TypeOrder        uint32 = 6
	TypePosition     uint32 = 7
	TypeAccount      uint32 = 8
)

// MaxPayloadSize returns the fixed maximum payload size for a given frame
// type, so the writer can compute reservation sizes arithmetically without
// inspecting the payload.
func MaxPayloadSize(typeTag uint32) int {
	switch typeTag {
	case TypeTicker:
		return 128
	case TypeTrade:
		return 128
	case TypeOrderBook:
		return 1024
	case TypeKline:
		return 128
	case TypeFundingRate:
		return 160
	case TypeOrder:
		return 256
	case TypePosition:
		return 128
	case TypeAccount:
		return 96
	default:
		return 0
	}
}

// alignUp rounds n up to the next multiple of frameAlignment.
func alignUp(n int) int {
	if n%frameAlignment == 0 {
		return n
	}
	return n + (frameAlignment - n%frameAlignment)
}

// PageHeader is the 64-byte, cache-line-aligned header at offset 0 of a
// journal file. WriteCursor and ReadHint are accessed with atomic
// acquire/release semantics directly against the mapped bytes; they are
// never read through this struct on the hot path — EncodePageHeader and
// DecodePageHeader exist only for initialization and diagnostics.
type PageHeader struct {
	Magic       uint32
	Version     uint32
	PageSize    uint64
	WriteCursor int64 // atomic: monotonically increasing total bytes published
	ReadHint    int64 // atomic, advisory only: slowest known reader position
	CreatedAt   int64 // unix nanoseconds
}

// EncodePageHeader writes h into the first PageHeaderSize bytes of buf.
func EncodePageHeader(buf []byte, h PageHeader) {
	_ = buf[:PageHeaderSize]
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.PageSize)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.WriteCursor))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.ReadHint))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.CreatedAt))
	for i := 40; i < PageHeaderSize; i++ {
		buf[i] = 0
	}
}

// DecodePageHeader reads a PageHeader from the first PageHeaderSize bytes
// of buf. It does not use atomic loads; callers on the hot path must use
// the Writer/Reader cursor accessors instead.
func DecodePageHeader(buf []byte) PageHeader {
	_ = buf[:PageHeaderSize]
	return PageHeader{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint32(buf[4:8]),
		PageSize:    binary.LittleEndian.Uint64(buf[8:16]),
		WriteCursor: int64(binary.LittleEndian.Uint64(buf[16:24])),
		ReadHint:    int64(binary.LittleEndian.Uint64(buf[24:32])),
		CreatedAt:   int64(binary.LittleEndian.Uint64(buf[32:40])),
	}
}

// FrameHeader is the 32-byte header immediately preceding every frame's
// payload.
type FrameHeader struct {
	Length         uint32 // payload length, excluding this header
	TypeTag        uint32
	SourceID       uint32
	Sequence       uint64 // monotonic per-writer sequence number
	TimestampNanos uint64
}

// EncodeFrameHeader writes h into the first FrameHeaderSize bytes of buf.
func EncodeFrameHeader(buf []byte, h FrameHeader) {
	_ = buf[:FrameHeaderSize]
	binary.LittleEndian.PutUint32(buf[0:4], h.Length)
	binary.LittleEndian.PutUint32(buf[4:8], h.TypeTag)
	binary.LittleEndian.PutUint32(buf[8:12], h.SourceID)
	binary.LittleEndian.PutUint64(buf[12:20], h.Sequence)
	binary.LittleEndian.PutUint64(buf[20:28], h.TimestampNanos)
	for i := 28; i < FrameHeaderSize; i++ {
		buf[i] = 0
	}
}

// DecodeFrameHeader reads a FrameHeader from the first FrameHeaderSize
// bytes of buf.
func DecodeFrameHeader(buf []byte) FrameHeader {
	_ = buf[:FrameHeaderSize]
	return FrameHeader{
		Length:         binary.LittleEndian.Uint32(buf[0:4]),
		TypeTag:        binary.LittleEndian.Uint32(buf[4:8]),
		SourceID:       binary.LittleEndian.Uint32(buf[8:12]),
		Sequence:       binary.LittleEndian.Uint64(buf[12:20]),
		TimestampNanos: binary.LittleEndian.Uint64(buf[20:28]),
	}
}

// NowNanos returns the current wall-clock time as the nanosecond timestamp
// carried in every Frame Header.
func NowNanos() uint64 {
	return uint64(time.Now().UnixNano())
}

// putFixedString writes s into dst, truncating or null-padding to len(dst),
// matching the Frame Protocol's fixed-length null-padded char arrays.
func putFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getFixedString(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}
