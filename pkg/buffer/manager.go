// Package buffer implements the pin-counted buffer manager that maps
// (file, page number) pairs to in-memory frames.
package buffer

import (
	"errors"
	"sync"

	"github.com/ncw/directio"

	"github.com/sahibgoa/b-tree-index-manager/pkg/config"
	"github.com/sahibgoa/b-tree-index-manager/pkg/list"
	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

var (
	// Error for when there are no free or evictable frames left.
	ErrRanOutOfFrames = errors.New("no available frames")

	// Error for unpinning a page that is not pinned in the buffer.
	ErrPageNotPinned = errors.New("page is not pinned")
)

// frameKey identifies a cached page: one page of one open blob file.
type frameKey struct {
	file   *storage.BlobFile
	pageNo storage.PageID
}

// Manager is a buffer manager over a fixed pool of page frames. Frames are
// handed out pinned by AllocPage and ReadPage; every successful call must be
// paired with an UnpinPage. Frames whose pin count has dropped to zero stay
// cached but become candidates for eviction.
type Manager struct {
	freeList     *list.List[*Frame] // Pre-allocated frames not holding any page.
	unpinnedList *list.List[*Frame] // Cached frames with no active references, in eviction order.
	pinnedList   *list.List[*Frame] // Frames currently in use.
	// The frame table, mapping (file, page number) to the link holding that
	// page's frame in whichever list it is in.
	frameTable map[frameKey]*list.Link[*Frame]
	mtx        sync.Mutex
}

// NewManager constructs a Manager with config.MaxPagesInBuffer frames carved
// out of one directio-aligned allocation.
func NewManager() *Manager {
	mgr := &Manager{
		freeList:     list.NewList[*Frame](),
		unpinnedList: list.NewList[*Frame](),
		pinnedList:   list.NewList[*Frame](),
		frameTable:   make(map[frameKey]*list.Link[*Frame]),
	}
	block := directio.AlignedBlock(int(storage.PageSize) * config.MaxPagesInBuffer)
	for i := 0; i < config.MaxPagesInBuffer; i++ {
		frame := &Frame{data: block[i*int(storage.PageSize) : (i+1)*int(storage.PageSize)]}
		mgr.freeList.PushTail(frame)
	}
	return mgr
}

// victimFrame returns a frame from the free list, or evicts the oldest
// unpinned frame. The mtx must be held on entry.
func (mgr *Manager) victimFrame() (*Frame, error) {
	if freeLink := mgr.freeList.PeekHead(); freeLink != nil {
		freeLink.PopSelf()
		return freeLink.GetValue(), nil
	}
	if unpinLink := mgr.unpinnedList.PeekHead(); unpinLink != nil {
		unpinLink.PopSelf()
		frame := unpinLink.GetValue()
		key := frameKey{frame.file, frame.pageNo}
		if err := mgr.flushFrame(frame); err != nil {
			mgr.frameTable[key] = mgr.unpinnedList.PushTail(frame)
			return nil, err
		}
		delete(mgr.frameTable, key)
		return frame, nil
	}
	return nil, ErrRanOutOfFrames
}

// AllocPage allocates a fresh page in the given file and returns it pinned.
// The new frame starts zeroed and dirty so the page reaches disk even if the
// caller never writes to it.
func (mgr *Manager) AllocPage(file *storage.BlobFile) (storage.PageID, *Frame, error) {
	mgr.mtx.Lock()
	defer mgr.mtx.Unlock()
	frame, err := mgr.victimFrame()
	if err != nil {
		return storage.InvalidPageID, nil, err
	}
	pageNo := file.AllocatePage()
	frame.file = file
	frame.pageNo = pageNo
	frame.dirty = true
	frame.pinCount.Store(1)
	for i := range frame.data {
		frame.data[i] = 0
	}
	mgr.frameTable[frameKey{file, pageNo}] = mgr.pinnedList.PushTail(frame)
	return pageNo, frame, nil
}

// ReadPage returns the frame holding the given page, pinned, reading it from
// disk if it is not already cached.
func (mgr *Manager) ReadPage(file *storage.BlobFile, pageNo storage.PageID) (*Frame, error) {
	mgr.mtx.Lock()
	defer mgr.mtx.Unlock()
	key := frameKey{file, pageNo}
	if link, ok := mgr.frameTable[key]; ok {
		frame := link.GetValue()
		// Move the frame to the pinned list if needed.
		if link.GetList() == mgr.unpinnedList {
			link.PopSelf()
			mgr.frameTable[key] = mgr.pinnedList.PushTail(frame)
		}
		frame.get()
		return frame, nil
	}
	frame, err := mgr.victimFrame()
	if err != nil {
		return nil, err
	}
	frame.file = file
	frame.pageNo = pageNo
	frame.dirty = false
	frame.pinCount.Store(1)
	if err = file.ReadPage(pageNo, frame.data); err != nil {
		frame.file = nil
		mgr.freeList.PushTail(frame)
		return nil, err
	}
	mgr.frameTable[key] = mgr.pinnedList.PushTail(frame)
	return frame, nil
}

// UnpinPage releases one reference to the given page, marking the frame
// dirty if the caller modified its bytes. Unpinning a page that is absent
// from the buffer or has no active references fails with ErrPageNotPinned.
func (mgr *Manager) UnpinPage(file *storage.BlobFile, pageNo storage.PageID, dirty bool) error {
	mgr.mtx.Lock()
	defer mgr.mtx.Unlock()
	key := frameKey{file, pageNo}
	link, ok := mgr.frameTable[key]
	if !ok {
		return ErrPageNotPinned
	}
	frame := link.GetValue()
	if frame.PinCount() <= 0 {
		return ErrPageNotPinned
	}
	if dirty {
		frame.dirty = true
	}
	if frame.put() == 0 {
		link.PopSelf()
		mgr.frameTable[key] = mgr.unpinnedList.PushTail(frame)
	}
	return nil
}

// flushFrame writes a frame's bytes to disk if it is dirty.
func (mgr *Manager) flushFrame(frame *Frame) error {
	if !frame.dirty {
		return nil
	}
	if err := frame.file.WritePage(frame.pageNo, frame.data); err != nil {
		return err
	}
	frame.dirty = false
	return nil
}

// FlushFile writes every dirty cached page of the given file to disk.
// Pinned pages are flushed too; their frames stay resident.
func (mgr *Manager) FlushFile(file *storage.BlobFile) (err error) {
	mgr.mtx.Lock()
	defer mgr.mtx.Unlock()
	flush := func(link *list.Link[*Frame]) {
		frame := link.GetValue()
		if frame.file == file {
			if flushErr := mgr.flushFrame(frame); err == nil {
				err = flushErr
			}
		}
	}
	mgr.pinnedList.Map(flush)
	mgr.unpinnedList.Map(flush)
	return err
}

// EvictFile drops every cached page of the given file from the buffer,
// flushing dirty frames first. Fails if any of the file's pages are still
// pinned. Used when closing a file so a later reopen rereads from disk.
func (mgr *Manager) EvictFile(file *storage.BlobFile) error {
	mgr.mtx.Lock()
	defer mgr.mtx.Unlock()
	for key, link := range mgr.frameTable {
		if key.file != file {
			continue
		}
		frame := link.GetValue()
		if frame.PinCount() > 0 {
			return errors.New("pages are still pinned on evict")
		}
		if err := mgr.flushFrame(frame); err != nil {
			return err
		}
		link.PopSelf()
		delete(mgr.frameTable, key)
		frame.file = nil
		mgr.freeList.PushTail(frame)
	}
	return nil
}

// PinnedCount returns the number of active references across all of the
// given file's cached pages.
func (mgr *Manager) PinnedCount(file *storage.BlobFile) (count int64) {
	mgr.mtx.Lock()
	defer mgr.mtx.Unlock()
	for key, link := range mgr.frameTable {
		if key.file == file {
			count += link.GetValue().PinCount()
		}
	}
	return count
}
