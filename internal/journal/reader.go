package journal

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/ai-agentic-browser/eventbus/internal/busfault"
	"golang.org/x/sys/unix"
)

// ReaderConfig tunes the adaptive idle strategy.
type ReaderConfig struct {
	BusySpinCount int           // default 1000
	IdleSleep     time.Duration // default 1µs
}

func (c ReaderConfig) withDefaults() ReaderConfig {
	if c.BusySpinCount <= 0 {
		c.BusySpinCount = 1000
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = time.Microsecond
	}
	return c
}

// FrameHandler processes one decoded frame. A returned error is discarded;
// it never stops the reader (mirrors the engine's listener error isolation).
type FrameHandler func(h FrameHeader, payload []byte) error

// Reader holds a private local cursor over a memory-mapped journal file. It
// never blocks the writer; if it falls behind far enough that the writer
// wraps past it, it detects the gap via a sequence-number jump and reports
// JournalLag.
type Reader struct {
	file  *os.File
	data  []byte
	capacity int64

	cfg ReaderConfig

	local       int64
	expectedSeq uint64
	haveSeq     bool
}

// OpenReader maps path read-only (from the reader's perspective — the
// underlying mapping must remain read/write-shared for the writer's
// mutations to become visible) and returns a Reader starting at the
// beginning of the data region.
func OpenReader(path string, cfg ReaderConfig) (*Reader, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, busfault.Wrap(busfault.FatalIo, "journal.OpenReader", "open file", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, busfault.Wrap(busfault.FatalIo, "journal.OpenReader", "stat", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, busfault.Wrap(busfault.FatalIo, "journal.OpenReader", "mmap", err)
	}
	hdr := DecodePageHeader(data)
	if hdr.Magic != Magic {
		unix.Munmap(data)
		f.Close()
		return nil, busfault.New(busfault.FatalIo, "journal.OpenReader", "bad magic: not a journal file")
	}
	return &Reader{
		file:     f,
		data:     data,
		capacity: int64(st.Size()) - PageHeaderSize,
		cfg:      cfg.withDefaults(),
	}, nil
}

func (r *Reader) cursorPtr() *int64 {
	return (*int64)(unsafe.Pointer(&r.data[16]))
}

func (r *Reader) remoteCursor() int64 {
	return atomic.LoadInt64(r.cursorPtr()) // acquire
}

func (r *Reader) dataOffset(physOffset int64) int64 {
	return PageHeaderSize + physOffset
}

// Poll performs one non-blocking sweep of all frames currently published
// but not yet consumed, invoking handler for each. It returns the number of
// frames processed. A JournalLag error is returned (processing continues
// for the remaining frames already collected in this sweep) if the writer
// is found to have wrapped past this reader.
func (r *Reader) Poll(handler FrameHandler) (int, error) {
	remote := r.remoteCursor()
	n := 0
	var lagErr error

	for r.local < remote {
		physOffset := r.local % r.capacity
		remaining := r.capacity - physOffset

		if remaining < FrameHeaderSize {
			r.local += remaining
			continue
		}

		dataOff := r.dataOffset(physOffset)
		h := DecodeFrameHeader(r.data[dataOff : dataOff+FrameHeaderSize])
		frameLen := int64(alignUp(FrameHeaderSize + int(h.Length)))

		// Invariant: frame length + header <= remote - local.
		if r.local+frameLen > remote {
			// The writer has not finished publishing this frame yet, or
			// metadata is corrupt; stop this sweep and retry later.
			break
		}

		// The writer gives the wrap sentinel its own sequence number, so it
		// takes part in the gap check before being skipped.
		if r.haveSeq && h.Sequence != r.expectedSeq {
			lagErr = busfault.New(busfault.JournalLag, "journal.Poll",
				fmt.Sprintf("expected sequence %d, observed %d (overrun %d frames)",
					r.expectedSeq, h.Sequence, int64(h.Sequence)-int64(r.expectedSeq)))
		}
		r.expectedSeq = h.Sequence + 1
		r.haveSeq = true

		if h.TypeTag == TypeWrapSentinel {
			r.local += frameLen
			continue
		}

		payload := r.data[dataOff+FrameHeaderSize : dataOff+FrameHeaderSize+int64(h.Length)]
		_ = handler(h, payload)

		r.local += frameLen
		n++
	}
	return n, lagErr
}

// Run polls continuously until ctx is cancelled, applying the adaptive
// idle strategy: busy-spin up to BusySpinCount iterations, then sleep for
// IdleSleep, whenever no frames were available.
func (r *Reader) Run(ctx context.Context, handler FrameHandler, onLag func(error)) {
	spins := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := r.Poll(handler)
		if err != nil && onLag != nil {
			onLag(err)
		}
		if n > 0 {
			spins = 0
			continue
		}
		if spins < r.cfg.BusySpinCount {
			spins++
			continue
		}
		time.Sleep(r.cfg.IdleSleep)
	}
}

// Local returns the reader's current local cursor, for tests and metrics.
func (r *Reader) Local() int64 { return r.local }

// Close unmaps and closes the reader's file handle. Multiple readers may
// hold independent mappings of the same file; closing one does not affect
// others.
func (r *Reader) Close() error {
	if err := unix.Munmap(r.data); err != nil {
		return busfault.Wrap(busfault.FatalIo, "journal.Close", "munmap", err)
	}
	return r.file.Close()
}
