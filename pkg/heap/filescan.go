package heap

import (
	"github.com/sahibgoa/b-tree-index-manager/pkg/entry"
	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// FileScan iterates over every record of a heap file in storage order,
// yielding RecordIDs. The scan pins at most one page at a time, and only
// for the duration of each call.
type FileScan struct {
	hf        *HeapFile
	curPageNo storage.PageID // Data page the scan is positioned on.
	curSlot   int64          // Slot of the most recently returned record; -1 before the first.
	curRID    entry.RecordID // RecordID returned by the last ScanNext.
	started   bool
}

// NewFileScan returns a scan positioned before the first record of hf.
func NewFileScan(hf *HeapFile) *FileScan {
	return &FileScan{hf: hf, curPageNo: headerPageNum + 1, curSlot: -1}
}

// ScanNext advances to the next record and returns its RecordID, or
// ErrEndOfFile once the relation is exhausted.
func (fs *FileScan) ScanNext() (entry.RecordID, error) {
	for {
		if int64(fs.curPageNo) > fs.hf.file.NumPages() {
			return entry.RecordID{}, ErrEndOfFile
		}
		frame, err := fs.hf.bufMgr.ReadPage(fs.hf.file, fs.curPageNo)
		if err != nil {
			return entry.RecordID{}, err
		}
		numRecords := int64(getUint16(frame.Data(), numRecordsOffset))
		if err = fs.hf.bufMgr.UnpinPage(fs.hf.file, fs.curPageNo, false); err != nil {
			return entry.RecordID{}, err
		}
		if fs.curSlot+1 < numRecords {
			fs.curSlot++
			fs.curRID = entry.NewRecordID(fs.curPageNo, uint16(fs.curSlot))
			fs.started = true
			return fs.curRID, nil
		}
		fs.curPageNo++
		fs.curSlot = -1
	}
}

// GetRecord returns the raw bytes of the record most recently returned by
// ScanNext.
func (fs *FileScan) GetRecord() ([]byte, error) {
	if !fs.started {
		return nil, ErrEndOfFile
	}
	return fs.hf.GetRecord(fs.curRID)
}
