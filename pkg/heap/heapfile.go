// Package heap implements the relation file: a paged file of fixed-width
// records, plus the scanner that index construction bulk-loads from.
package heap

import (
	"errors"
	"fmt"

	"github.com/sahibgoa/b-tree-index-manager/pkg/buffer"
	"github.com/sahibgoa/b-tree-index-manager/pkg/entry"
	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// Header page layout (page 1).
const (
	recordSizeOffset int64 = 0
	recordSizeSize   int64 = 4
)

// Data page layout: a record count followed by dense fixed-width records.
const (
	numRecordsOffset int64 = 0
	numRecordsSize   int64 = 2
	dataPageHeader   int64 = numRecordsOffset + numRecordsSize
)

// The header page occupies this fixed position in every heap file.
const headerPageNum storage.PageID = 1

var (
	// Error for opening a heap file whose header is unusable.
	ErrBadHeapHeader = errors.New("heap file header is invalid")

	// Error returned by FileScan once every record has been scanned.
	ErrEndOfFile = errors.New("end of heap file")
)

// HeapFile is a relation file holding fixed-width records. Records are
// identified by (page, slot) RecordIDs and are never moved once inserted.
type HeapFile struct {
	bufMgr     *buffer.Manager
	file       *storage.BlobFile
	recordSize int64
	lastPageNo storage.PageID // Data page that receives the next insert; 0 if none yet.
}

// recordsPerPage returns how many records fit on one data page.
func (hf *HeapFile) recordsPerPage() int64 {
	return (storage.PageSize - dataPageHeader) / hf.recordSize
}

// Create creates a new heap file at the given path holding records of
// exactly recordSize bytes.
func Create(filePath string, recordSize int64, bufMgr *buffer.Manager) (*HeapFile, error) {
	if recordSize <= 0 || recordSize > storage.PageSize-dataPageHeader {
		return nil, fmt.Errorf("unusable record size %d", recordSize)
	}
	file, err := storage.Create(filePath)
	if err != nil {
		return nil, err
	}
	hf := &HeapFile{bufMgr: bufMgr, file: file, recordSize: recordSize}
	pageNo, frame, err := bufMgr.AllocPage(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	if pageNo != headerPageNum {
		bufMgr.UnpinPage(file, pageNo, false)
		file.Close()
		return nil, ErrBadHeapHeader
	}
	putUint32(frame.Data(), recordSizeOffset, uint32(recordSize))
	if err = bufMgr.UnpinPage(file, pageNo, true); err != nil {
		file.Close()
		return nil, err
	}
	return hf, nil
}

// Open opens an existing heap file at the given path, reading the record
// size from its header page.
func Open(filePath string, bufMgr *buffer.Manager) (*HeapFile, error) {
	file, err := storage.Open(filePath)
	if err != nil {
		return nil, err
	}
	frame, err := bufMgr.ReadPage(file, headerPageNum)
	if err != nil {
		file.Close()
		return nil, err
	}
	recordSize := int64(getUint32(frame.Data(), recordSizeOffset))
	bufMgr.UnpinPage(file, headerPageNum, false)
	if recordSize <= 0 || recordSize > storage.PageSize-dataPageHeader {
		file.Close()
		return nil, ErrBadHeapHeader
	}
	hf := &HeapFile{bufMgr: bufMgr, file: file, recordSize: recordSize}
	if n := file.NumPages(); n > int64(headerPageNum) {
		hf.lastPageNo = storage.PageID(n)
	}
	return hf, nil
}

// Name returns the file path backing this heap file.
func (hf *HeapFile) Name() string {
	return hf.file.Name()
}

// File returns the underlying blob file.
func (hf *HeapFile) File() *storage.BlobFile {
	return hf.file
}

// RecordSize returns the fixed width of this file's records.
func (hf *HeapFile) RecordSize() int64 {
	return hf.recordSize
}

// InsertRecord appends one record, returning the RecordID it was placed at.
// The record must be exactly RecordSize bytes.
func (hf *HeapFile) InsertRecord(record []byte) (entry.RecordID, error) {
	if int64(len(record)) != hf.recordSize {
		return entry.RecordID{}, fmt.Errorf("record is %d bytes, want %d", len(record), hf.recordSize)
	}
	// Try the current last data page first.
	if hf.lastPageNo != storage.InvalidPageID {
		frame, err := hf.bufMgr.ReadPage(hf.file, hf.lastPageNo)
		if err != nil {
			return entry.RecordID{}, err
		}
		slot := int64(getUint16(frame.Data(), numRecordsOffset))
		if slot < hf.recordsPerPage() {
			copy(frame.Data()[dataPageHeader+slot*hf.recordSize:], record)
			putUint16(frame.Data(), numRecordsOffset, uint16(slot+1))
			if err = hf.bufMgr.UnpinPage(hf.file, hf.lastPageNo, true); err != nil {
				return entry.RecordID{}, err
			}
			return entry.NewRecordID(hf.lastPageNo, uint16(slot)), nil
		}
		if err = hf.bufMgr.UnpinPage(hf.file, hf.lastPageNo, false); err != nil {
			return entry.RecordID{}, err
		}
	}
	// Last page missing or full; start a fresh one.
	pageNo, frame, err := hf.bufMgr.AllocPage(hf.file)
	if err != nil {
		return entry.RecordID{}, err
	}
	copy(frame.Data()[dataPageHeader:], record)
	putUint16(frame.Data(), numRecordsOffset, 1)
	if err = hf.bufMgr.UnpinPage(hf.file, pageNo, true); err != nil {
		return entry.RecordID{}, err
	}
	hf.lastPageNo = pageNo
	return entry.NewRecordID(pageNo, 0), nil
}

// GetRecord returns a copy of the record at the given RecordID.
func (hf *HeapFile) GetRecord(rid entry.RecordID) ([]byte, error) {
	if rid.PageNo <= headerPageNum || int64(rid.PageNo) > hf.file.NumPages() {
		return nil, fmt.Errorf("record page %d is not a data page", rid.PageNo)
	}
	frame, err := hf.bufMgr.ReadPage(hf.file, rid.PageNo)
	if err != nil {
		return nil, err
	}
	defer hf.bufMgr.UnpinPage(hf.file, rid.PageNo, false)
	if int64(rid.SlotNo) >= int64(getUint16(frame.Data(), numRecordsOffset)) {
		return nil, fmt.Errorf("record slot %d is past the end of page %d", rid.SlotNo, rid.PageNo)
	}
	start := dataPageHeader + int64(rid.SlotNo)*hf.recordSize
	record := make([]byte, hf.recordSize)
	copy(record, frame.Data()[start:start+hf.recordSize])
	return record, nil
}

// Close flushes the heap file's pages, drops them from the buffer, and
// closes the file handle.
func (hf *HeapFile) Close() error {
	if err := hf.bufMgr.EvictFile(hf.file); err != nil {
		return err
	}
	return hf.file.Close()
}
