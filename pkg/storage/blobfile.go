// Package storage implements the paged blob file that backs index and
// relation files on disk.
package storage

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ncw/directio"
)

// PageSize is the size of an individual page (ie the maximum number of bytes
// that a page can hold) - defaults to 4kb.
const PageSize int64 = directio.BlockSize

// PageID names one page within a blob file. Pages are numbered from 1;
// InvalidPageID (0) denotes "no page".
type PageID uint32

// InvalidPageID is the reserved "none" page identifier.
const InvalidPageID PageID = 0

var (
	// Error for creating a blob file that already exists on disk.
	ErrFileExists = errors.New("blob file already exists")

	// Error for opening a blob file that does not exist on disk.
	ErrFileNotFound = errors.New("blob file not found")

	// Error for reading or writing a page number outside the file.
	ErrInvalidPageID = errors.New("invalid page id")
)

// BlobFile is a file made up of fixed-size pages addressed by PageID.
// Page p lives at byte offset (p-1)*PageSize.
type BlobFile struct {
	file     *os.File
	numPages int64      // Number of allocated pages (on disk and pending flush).
	mtx      sync.Mutex // Protects numPages across concurrent allocations.
}

// Create creates a new, empty blob file at the given path. Fails with
// ErrFileExists if a file is already present there.
func Create(filePath string) (*BlobFile, error) {
	// Create the necessary prerequisite directories.
	if idx := strings.LastIndex(filePath, "/"); idx != -1 {
		if err := os.MkdirAll(filePath[:idx], 0775); err != nil {
			return nil, err
		}
	}
	file, err := directio.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrFileExists
		}
		return nil, err
	}
	return &BlobFile{file: file}, nil
}

// Open opens an existing blob file at the given path. Fails with
// ErrFileNotFound if no file is present, or an error if the file's
// contents are not aligned to PageSize.
func Open(filePath string) (*BlobFile, error) {
	file, err := directio.OpenFile(filePath, os.O_RDWR, 0666)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size()%PageSize != 0 {
		file.Close()
		return nil, errors.New("blob file has been corrupted")
	}
	return &BlobFile{file: file, numPages: info.Size() / PageSize}, nil
}

// Name returns the file path used to open this blob file.
func (f *BlobFile) Name() string {
	return f.file.Name()
}

// NumPages returns the number of allocated pages.
func (f *BlobFile) NumPages() int64 {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.numPages
}

// AllocatePage reserves the next page number in the file. The page's
// bytes reach disk when its frame is flushed.
func (f *BlobFile) AllocatePage() PageID {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.numPages++
	return PageID(f.numPages)
}

// ReadPage fills data (which must be PageSize bytes and directio-aligned)
// with the contents of the given page.
func (f *BlobFile) ReadPage(pageNo PageID, data []byte) error {
	if pageNo == InvalidPageID || int64(pageNo) > f.NumPages() {
		return ErrInvalidPageID
	}
	n, err := f.file.ReadAt(data, int64(pageNo-1)*PageSize)
	if err == io.EOF {
		// Allocated but never flushed; the page reads back as zeroes.
		for i := n; i < len(data); i++ {
			data[i] = 0
		}
		return nil
	}
	return err
}

// WritePage writes data (PageSize bytes) to the given page's offset.
func (f *BlobFile) WritePage(pageNo PageID, data []byte) error {
	if pageNo == InvalidPageID || int64(pageNo) > f.NumPages() {
		return ErrInvalidPageID
	}
	_, err := f.file.WriteAt(data, int64(pageNo-1)*PageSize)
	return err
}

// Close closes the backing file handle.
func (f *BlobFile) Close() error {
	return f.file.Close()
}
