package storage_test

import (
	"errors"
	"os"
	"testing"

	"github.com/ncw/directio"

	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// getTempPath reserves a scratch path with no file behind it.
func getTempPath(t *testing.T) string {
	tmpfile, err := os.CreateTemp("", "*.db")
	if err != nil {
		t.Fatal(err)
	}
	_ = tmpfile.Close()
	_ = os.Remove(tmpfile.Name())
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })
	return tmpfile.Name()
}

// Create is exclusive; Open requires an existing file.
func TestCreateAndOpen(t *testing.T) {
	t.Parallel()
	path := getTempPath(t)

	if _, err := storage.Open(path); !errors.Is(err, storage.ErrFileNotFound) {
		t.Errorf("Open of a missing file returned %v, want ErrFileNotFound", err)
	}
	file, err := storage.Create(path)
	if err != nil {
		t.Fatal("Failed to create blob file:", err)
	}
	if _, err = storage.Create(path); !errors.Is(err, storage.ErrFileExists) {
		t.Errorf("Second create returned %v, want ErrFileExists", err)
	}
	if err = file.Close(); err != nil {
		t.Fatal("Failed to close blob file:", err)
	}
	reopened, err := storage.Open(path)
	if err != nil {
		t.Fatal("Failed to open existing blob file:", err)
	}
	reopened.Close()
}

// Pages written at their offsets read back intact, and pages allocated but
// never written read back zeroed.
func TestPageRoundTrip(t *testing.T) {
	t.Parallel()
	file, err := storage.Create(getTempPath(t))
	if err != nil {
		t.Fatal("Failed to create blob file:", err)
	}
	defer file.Close()

	first := file.AllocatePage()
	second := file.AllocatePage()
	if first != 1 || second != 2 {
		t.Fatalf("Allocated pages (%d, %d), want (1, 2)", first, second)
	}

	block := directio.AlignedBlock(int(storage.PageSize))
	copy(block, []byte("page two payload"))
	if err = file.WritePage(second, block); err != nil {
		t.Fatal("Failed to write page:", err)
	}

	readBlock := directio.AlignedBlock(int(storage.PageSize))
	if err = file.ReadPage(second, readBlock); err != nil {
		t.Fatal("Failed to read page:", err)
	}
	if string(readBlock[:16]) != "page two payload" {
		t.Errorf("Page two read back %q", readBlock[:16])
	}
	// Page one was allocated but never written.
	if err = file.ReadPage(first, readBlock); err != nil {
		t.Fatal("Failed to read unwritten page:", err)
	}
	for i, b := range readBlock {
		if b != 0 {
			t.Fatalf("Unwritten page has nonzero byte at %d", i)
		}
	}

	// Out-of-range page numbers are rejected.
	if err = file.ReadPage(storage.InvalidPageID, readBlock); !errors.Is(err, storage.ErrInvalidPageID) {
		t.Errorf("Read of page 0 returned %v, want ErrInvalidPageID", err)
	}
	if err = file.WritePage(3, block); !errors.Is(err, storage.ErrInvalidPageID) {
		t.Errorf("Write past the end returned %v, want ErrInvalidPageID", err)
	}
}
