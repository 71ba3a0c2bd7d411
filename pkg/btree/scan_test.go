package btree_test

import (
	"testing"

	"github.com/sahibgoa/b-tree-index-manager/pkg/btree"
	"github.com/sahibgoa/b-tree-index-manager/pkg/entry"
)

func TestBTreeScan(t *testing.T) {
	t.Run("SingleMatch", testScanSingleMatch)
	t.Run("HalfOpenBounds", testScanHalfOpenBounds)
	t.Run("FullRange", testScanFullRange)
	t.Run("ReverseLoad", testScanReverseLoad)
	t.Run("Duplicates", testScanDuplicates)
	t.Run("EmptyRange", testScanEmptyRange)
	t.Run("EmptyTree", testScanEmptyTree)
	t.Run("Restart", testScanRestart)
	t.Run("Validation", testScanValidation)
	t.Run("StateMachine", testScanStateMachine)
}

// Insert keys [10, 20, 30]; a scan over [GTE 15, LTE 25] yields exactly
// the rid of 20.
func testScanSingleMatch(t *testing.T) {
	bufMgr, _, index, rids := setupIndex(t, []int32{10, 20, 30})
	defer index.Close()
	got := collectScan(t, index, 15, btree.GTE, 25, btree.LTE)
	checkRids(t, got, rids[20])
	checkAtRest(t, bufMgr, index)
}

// GT/LT exclude equal keys; GTE/LTE include them.
func testScanHalfOpenBounds(t *testing.T) {
	_, _, index, rids := setupIndex(t, ascending(1000))
	defer index.Close()

	got := collectScan(t, index, 499, btree.GT, 502, btree.LT)
	want := append(append([]entry.RecordID{}, rids[500]...), rids[501]...)
	checkRids(t, got, want)

	got = collectScan(t, index, 499, btree.GTE, 502, btree.LTE)
	want = append(append([]entry.RecordID{}, rids[499]...), rids[500]...)
	want = append(append(want, rids[501]...), rids[502]...)
	checkRids(t, got, want)
}

// A full-range scan returns every inserted rid with keys non-decreasing.
func testScanFullRange(t *testing.T) {
	_, _, index, rids := setupIndex(t, ascending(1000))
	defer index.Close()
	got := collectScan(t, index, 0, btree.GTE, 999, btree.LTE)
	if len(got) != 1000 {
		t.Fatalf("Full-range scan emitted %d rids, want 1000", len(got))
	}
	// Keys ascend with insertion order here, so rids must come back in
	// exactly insertion order.
	for key := int32(0); key < 1000; key++ {
		if got[key] != rids[key][0] {
			t.Fatalf("Scan position %d emitted (%d, %d), want the rid of key %d",
				key, got[key].PageNo, got[key].SlotNo, key)
		}
	}
}

// A reverse-order bulk load still scans in ascending key order.
func testScanReverseLoad(t *testing.T) {
	_, _, index, rids := setupIndex(t, descending(1000))
	defer index.Close()
	got := collectScan(t, index, 0, btree.GTE, 999, btree.LTE)
	if len(got) != 1000 {
		t.Fatalf("Full-range scan emitted %d rids, want 1000", len(got))
	}
	for key := int32(0); key < 1000; key++ {
		if got[key] != rids[key][0] {
			t.Fatalf("Scan position %d holds the wrong rid after a reverse load", key)
		}
	}
}

// Insert five duplicates of one key: the inclusive point scan yields all
// five rids, the exclusive one yields none.
func testScanDuplicates(t *testing.T) {
	bufMgr, _, index, rids := setupIndex(t, []int32{5, 5, 5, 5, 5})
	defer index.Close()

	got := collectScan(t, index, 5, btree.GTE, 5, btree.LTE)
	checkRids(t, got, rids[5])

	got = collectScan(t, index, 5, btree.GT, 5, btree.LTE)
	if len(got) != 0 {
		t.Errorf("Exclusive lower bound emitted %d rids, want 0", len(got))
	}
	checkAtRest(t, bufMgr, index)
}

// A range that contains no keys emits nothing; the first ScanNext reports
// completion.
func testScanEmptyRange(t *testing.T) {
	_, _, index, _ := setupIndex(t, []int32{10, 20, 30})
	defer index.Close()
	if err := index.StartScan(11, btree.GTE, 19, btree.LTE); err != nil {
		t.Fatal("Failed to start scan:", err)
	}
	if _, err := index.ScanNext(); err != btree.ErrIndexScanCompleted {
		t.Errorf("ScanNext over an empty range returned %v, want ErrIndexScanCompleted", err)
	}
	if err := index.EndScan(); err != nil {
		t.Error("Failed to end exhausted scan:", err)
	}
}

// Scanning a tree that was never inserted into completes immediately.
func testScanEmptyTree(t *testing.T) {
	bufMgr, _, index, _ := setupIndex(t, nil)
	defer index.Close()
	if err := index.StartScan(0, btree.GTE, 100, btree.LTE); err != nil {
		t.Fatal("Failed to start scan:", err)
	}
	if _, err := index.ScanNext(); err != btree.ErrIndexScanCompleted {
		t.Errorf("ScanNext over an empty tree returned %v, want ErrIndexScanCompleted", err)
	}
	if err := index.EndScan(); err != nil {
		t.Error("Failed to end exhausted scan:", err)
	}
	checkAtRest(t, bufMgr, index)
}

// Starting a scan while one executes restarts cleanly.
func testScanRestart(t *testing.T) {
	bufMgr, _, index, rids := setupIndex(t, ascending(100))
	defer index.Close()
	if err := index.StartScan(0, btree.GTE, 99, btree.LTE); err != nil {
		t.Fatal("Failed to start scan:", err)
	}
	if _, err := index.ScanNext(); err != nil {
		t.Fatal("Failed to advance scan:", err)
	}
	// Restart mid-stream with different bounds.
	got := collectScan(t, index, 50, btree.GTE, 50, btree.LTE)
	checkRids(t, got, rids[50])
	checkAtRest(t, bufMgr, index)
}

// Bad operators and inverted ranges are rejected up front.
func testScanValidation(t *testing.T) {
	_, _, index, _ := setupIndex(t, ascending(10))
	defer index.Close()

	if err := index.StartScan(0, btree.LT, 5, btree.LTE); err != btree.ErrBadOpcodes {
		t.Errorf("StartScan with lowOp=LT returned %v, want ErrBadOpcodes", err)
	}
	if err := index.StartScan(0, btree.GTE, 5, btree.GT); err != btree.ErrBadOpcodes {
		t.Errorf("StartScan with highOp=GT returned %v, want ErrBadOpcodes", err)
	}
	if err := index.StartScan(10, btree.GTE, 5, btree.LTE); err != btree.ErrBadScanRange {
		t.Errorf("StartScan with low > high returned %v, want ErrBadScanRange", err)
	}
}

// ScanNext and EndScan outside a scan fail with ErrScanNotInitialized.
func testScanStateMachine(t *testing.T) {
	bufMgr, _, index, rids := setupIndex(t, ascending(10))
	defer index.Close()

	if _, err := index.ScanNext(); err != btree.ErrScanNotInitialized {
		t.Errorf("ScanNext before any scan returned %v, want ErrScanNotInitialized", err)
	}
	if err := index.EndScan(); err != btree.ErrScanNotInitialized {
		t.Errorf("EndScan before any scan returned %v, want ErrScanNotInitialized", err)
	}

	// A failed StartScan leaves the machine Idle.
	if err := index.StartScan(9, btree.GTE, 0, btree.LTE); err != btree.ErrBadScanRange {
		t.Fatalf("StartScan with inverted range returned %v, want ErrBadScanRange", err)
	}
	if _, err := index.ScanNext(); err != btree.ErrScanNotInitialized {
		t.Errorf("ScanNext after failed StartScan returned %v, want ErrScanNotInitialized", err)
	}

	// And a completed one stays usable until EndScan.
	got := collectScan(t, index, 0, btree.GTE, 9, btree.LTE)
	want := make([]entry.RecordID, 0, 10)
	for key := int32(0); key < 10; key++ {
		want = append(want, rids[key]...)
	}
	checkRids(t, got, want)
	checkAtRest(t, bufMgr, index)
}
