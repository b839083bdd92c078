package journal

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/ai-agentic-browser/eventbus/internal/busfault"
	"golang.org/x/sys/unix"
)

// DefaultSize is the default journal file size.
const DefaultSize = 128 * 1024 * 1024

// Writer is the single-producer append log over a memory-mapped file.
// Operations are called from exactly one goroutine (the Bridge); the
// Writer itself does not enforce this — single-writer ownership is
// guaranteed by construction, not by a runtime check.
type Writer struct {
	file     *os.File
	data     []byte // the full mmap'd region, header at [0:PageHeaderSize]
	capacity int64   // data region capacity: len(data) - PageHeaderSize
	sourceID uint32
	seq      uint64
}

// Open creates (or truncates and initializes) a journal file of the given
// size at path and maps it for writing. size must exceed PageHeaderSize;
// a frame that does not fit the remaining data region is rejected by Write
// with FrameTooLarge.
func Open(path string, size int64, sourceID uint32) (*Writer, error) {
	if size <= PageHeaderSize {
		return nil, busfault.New(busfault.FatalIo, "journal.Open", "size too small for page header")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, busfault.Wrap(busfault.FatalIo, "journal.Open", "open file", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, busfault.Wrap(busfault.FatalIo, "journal.Open", "truncate", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, busfault.Wrap(busfault.FatalIo, "journal.Open", "mmap", err)
	}
	_ = unix.Madvise(data, unix.MADV_WILLNEED)

	w := &Writer{
		file:     f,
		data:     data,
		capacity: size - PageHeaderSize,
		sourceID: sourceID,
	}
	EncodePageHeader(data, PageHeader{
		Magic:    Magic,
		Version:  Version,
		PageSize: uint64(size),
	})
	return w, nil
}

func (w *Writer) cursorPtr() *int64 {
	return (*int64)(unsafe.Pointer(&w.data[16]))
}

func (w *Writer) readHintPtr() *int64 {
	return (*int64)(unsafe.Pointer(&w.data[24]))
}

// Cursor returns the current published write cursor (acquire semantics not
// required for the writer's own reads since it is the sole writer).
func (w *Writer) Cursor() int64 {
	return atomic.LoadInt64(w.cursorPtr())
}

// Write reserves sizeof(FrameHeader) + aligned(len(payload)) bytes at the
// current cursor, writes the payload then the header, then publishes with
// a release store to the atomic cursor. Any reader that observes the new
// cursor value with an acquire load is guaranteed to see a complete,
// well-formed frame.
func (w *Writer) Write(typeTag uint32, payload []byte) error {
	maxSize := MaxPayloadSize(typeTag)
	if maxSize > 0 && len(payload) > maxSize {
		return busfault.New(busfault.FrameTooLarge, "journal.Write",
			fmt.Sprintf("payload %d exceeds max %d for type %d", len(payload), maxSize, typeTag))
	}
	frameLen := alignUp(FrameHeaderSize + len(payload))
	if int64(frameLen) > w.capacity {
		return busfault.New(busfault.FrameTooLarge, "journal.Write", "frame exceeds journal capacity")
	}

	cur := atomic.LoadInt64(w.cursorPtr())
	physOffset := cur % w.capacity

	// If there isn't even room for a frame header before the physical end
	// of the buffer, there is no room to leave a discoverable sentinel
	// either; both writer and reader apply the same rule and treat the
	// remainder as implicitly consumed padding.
	remaining := w.capacity - physOffset
	if remaining < FrameHeaderSize {
		cur += remaining
		physOffset = 0
		remaining = w.capacity
	}

	if int64(frameLen) > remaining {
		// Not enough room before the physical wrap for this frame, but
		// enough for a sentinel header. Stamp it and advance to the next
		// wrap boundary.
		w.writeFrameHeader(w.dataOffset(physOffset), FrameHeader{
			Length:         uint32(remaining - FrameHeaderSize),
			TypeTag:        TypeWrapSentinel,
			SourceID:       w.sourceID,
			Sequence:       atomic.AddUint64(&w.seq, 1),
			TimestampNanos: NowNanos(),
		})
		cur += remaining
		physOffset = 0
	}

	dataOff := w.dataOffset(physOffset)
	copy(w.data[dataOff+FrameHeaderSize:], payload)
	w.writeFrameHeader(dataOff, FrameHeader{
		Length:         uint32(len(payload)),
		TypeTag:        typeTag,
		SourceID:       w.sourceID,
		Sequence:       atomic.AddUint64(&w.seq, 1),
		TimestampNanos: NowNanos(),
	})

	atomic.StoreInt64(w.cursorPtr(), cur+int64(frameLen)) // release publish
	return nil
}

func (w *Writer) dataOffset(physOffset int64) int64 {
	return PageHeaderSize + physOffset
}

func (w *Writer) writeFrameHeader(dataOff int64, h FrameHeader) {
	EncodeFrameHeader(w.data[dataOff:dataOff+FrameHeaderSize], h)
}

// AdvanceReadHint updates the advisory (non-enforced) slowest-reader
// position, used only for operator diagnostics.
func (w *Writer) AdvanceReadHint(pos int64) {
	atomic.StoreInt64(w.readHintPtr(), pos)
}

// Close flushes and unmaps the journal file.
func (w *Writer) Close() error {
	if err := unix.Msync(w.data, unix.MS_SYNC); err != nil {
		return busfault.Wrap(busfault.FatalIo, "journal.Close", "msync", err)
	}
	if err := unix.Munmap(w.data); err != nil {
		return busfault.Wrap(busfault.FatalIo, "journal.Close", "munmap", err)
	}
	return w.file.Close()
}
