package btree_test

import (
	"os"
	"testing"

	"github.com/ncw/directio"
	"github.com/otiai10/copy"

	"github.com/sahibgoa/b-tree-index-manager/pkg/btree"
	"github.com/sahibgoa/b-tree-index-manager/pkg/entry"
	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// collectScan runs one full scan with the given bounds and returns every
// emitted rid, failing the test on anything but clean exhaustion.
func collectScan(t *testing.T, index *btree.BTreeIndex, low int32, lowOp btree.Operator, high int32, highOp btree.Operator) []entry.RecordID {
	t.Helper()
	if err := index.StartScan(low, lowOp, high, highOp); err != nil {
		t.Fatal("Failed to start scan:", err)
	}
	var rids []entry.RecordID
	for {
		rid, err := index.ScanNext()
		if err == btree.ErrIndexScanCompleted {
			break
		}
		if err != nil {
			t.Fatal("Scan failed mid-stream:", err)
		}
		rids = append(rids, rid)
	}
	if err := index.EndScan(); err != nil {
		t.Fatal("Failed to end scan:", err)
	}
	return rids
}

// checkRids verifies that got and want hold the same rids as multisets.
func checkRids(t *testing.T, got, want []entry.RecordID) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("Scan emitted %d rids, want %d", len(got), len(want))
		return
	}
	counts := make(map[entry.RecordID]int)
	for _, rid := range want {
		counts[rid]++
	}
	for _, rid := range got {
		counts[rid]--
		if counts[rid] < 0 {
			t.Errorf("Scan emitted unexpected rid (%d, %d)", rid.PageNo, rid.SlotNo)
			return
		}
	}
}

// copyFile duplicates a closed index file under another name.
func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	if err := copy.Copy(src, dst); err != nil {
		t.Fatal("Failed to copy index file:", err)
	}
	t.Cleanup(func() { _ = os.Remove(dst) })
}

// corruptHeaderByte flips one byte inside the header page of a closed
// index file, invalidating its checksum.
func corruptHeaderByte(t *testing.T, path string) {
	t.Helper()
	file, err := directio.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		t.Fatal("Failed to open index file:", err)
	}
	defer file.Close()
	block := directio.AlignedBlock(int(storage.PageSize))
	if _, err = file.ReadAt(block, 0); err != nil {
		t.Fatal("Failed to read header page:", err)
	}
	block[1] ^= 0xff
	if _, err = file.WriteAt(block, 0); err != nil {
		t.Fatal("Failed to write header page:", err)
	}
}
