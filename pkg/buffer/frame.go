package buffer

import (
	"sync/atomic"

	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// Frame caches one page of one blob file and tracks its pin state.
// The frame's bytes are valid only while its pin count is nonzero.
type Frame struct {
	file     *storage.BlobFile // File the cached page belongs to; nil for free frames.
	pageNo   storage.PageID    // Page the frame currently holds.
	pinCount atomic.Int64      // The number of active references to this frame.
	dirty    bool              // Whether the frame's data must be written back to disk.
	data     []byte            // The actual PageSize bytes, directio-aligned.
}

// File returns the blob file whose page this frame holds.
func (frame *Frame) File() *storage.BlobFile {
	return frame.file
}

// PageNo returns the page number this frame holds.
func (frame *Frame) PageNo() storage.PageID {
	return frame.pageNo
}

// Data returns the frame's page bytes. Callers may mutate them, but must
// report mutations by unpinning the frame dirty.
func (frame *Frame) Data() []byte {
	return frame.data
}

// IsDirty reports whether the frame holds changes not yet written to disk.
func (frame *Frame) IsDirty() bool {
	return frame.dirty
}

// PinCount returns the frame's current pin count.
func (frame *Frame) PinCount() int64 {
	return frame.pinCount.Load()
}

// get increments the pin count, indicating another reference to this frame.
func (frame *Frame) get() {
	frame.pinCount.Add(1)
}

// put decrements the pin count, indicating a reference was released.
func (frame *Frame) put() int64 {
	return frame.pinCount.Add(-1)
}
