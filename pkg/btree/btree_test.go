package btree_test

import (
	"encoding/binary"
	"math/rand"
	"os"
	"testing"

	"github.com/sahibgoa/b-tree-index-manager/pkg/btree"
	"github.com/sahibgoa/b-tree-index-manager/pkg/buffer"
	"github.com/sahibgoa/b-tree-index-manager/pkg/entry"
	"github.com/sahibgoa/b-tree-index-manager/pkg/heap"
)

// =====================================================================
// HELPERS
// =====================================================================

const testRecordSize int64 = 16

// getTempFile reserves a scratch file path for a relation, cleaning up the
// relation file and any index files built next to it when the test ends.
func getTempFile(t *testing.T) string {
	tmpfile, err := os.CreateTemp("", "*.rel")
	if err != nil {
		t.Fatal(err)
	}
	_ = tmpfile.Close()
	// The blob file layer wants to create files exclusively.
	_ = os.Remove(tmpfile.Name())

	t.Cleanup(func() {
		_ = os.Remove(tmpfile.Name())
		for offset := int32(0); int64(offset) < testRecordSize; offset++ {
			_ = os.Remove(btree.IndexName(tmpfile.Name(), offset))
		}
	})
	return tmpfile.Name()
}

// makeRecord builds one fixed-width record with key serialized at offset.
func makeRecord(key int32, offset int32) []byte {
	record := make([]byte, testRecordSize)
	binary.LittleEndian.PutUint32(record[offset:offset+4], uint32(key))
	return record
}

// setupRelation creates a relation file holding one record per key, with
// the key at the given byte offset. Returns the rid each key landed at.
func setupRelation(t *testing.T, bufMgr *buffer.Manager, keys []int32, offset int32) (*heap.HeapFile, map[int32][]entry.RecordID) {
	relation, err := heap.Create(getTempFile(t), testRecordSize, bufMgr)
	if err != nil {
		t.Fatal("Failed to create relation:", err)
	}
	rids := make(map[int32][]entry.RecordID)
	for _, key := range keys {
		rid, err := relation.InsertRecord(makeRecord(key, offset))
		if err != nil {
			t.Fatal("Failed to insert record:", err)
		}
		rids[key] = append(rids[key], rid)
	}
	return relation, rids
}

// buildIndex constructs (bulk-loading) the index over the relation's key
// attribute, failing the test on error.
func buildIndex(t *testing.T, relation *heap.HeapFile, bufMgr *buffer.Manager, offset int32) *btree.BTreeIndex {
	index, indexName, err := btree.Construct(relation, bufMgr, offset, btree.IntegerAttr)
	if err != nil {
		t.Fatal("Failed to construct index:", err)
	}
	if want := btree.IndexName(relation.Name(), offset); indexName != want {
		t.Errorf("Index name is %q, want %q", indexName, want)
	}
	return index
}

// setupIndex creates a relation over keys and bulk-loads its index.
func setupIndex(t *testing.T, keys []int32) (*buffer.Manager, *heap.HeapFile, *btree.BTreeIndex, map[int32][]entry.RecordID) {
	t.Parallel()
	bufMgr := buffer.NewManager()
	relation, rids := setupRelation(t, bufMgr, keys, 0)
	t.Cleanup(func() { relation.Close() })
	index := buildIndex(t, relation, bufMgr, 0)
	return bufMgr, relation, index, rids
}

// checkAtRest fails the test if the index file still has pinned pages.
func checkAtRest(t *testing.T, bufMgr *buffer.Manager, index *btree.BTreeIndex) {
	t.Helper()
	if count := bufMgr.PinnedCount(index.File()); count != 0 {
		t.Errorf("Index file has %d pinned references at rest, want 0", count)
	}
}

// ascending returns the keys [0, n).
func ascending(n int32) []int32 {
	keys := make([]int32, n)
	for i := range keys {
		keys[i] = int32(i)
	}
	return keys
}

// descending returns the keys (n, 0].
func descending(n int32) []int32 {
	keys := make([]int32, n)
	for i := range keys {
		keys[i] = n - 1 - int32(i)
	}
	return keys
}

// =====================================================================
// TESTS
// =====================================================================

func TestBTreeBuild(t *testing.T) {
	t.Run("Ascending", testBuildAscending)
	t.Run("Descending", testBuildDescending)
	t.Run("Random", testBuildRandom)
	t.Run("Duplicates", testBuildDuplicates)
	t.Run("Empty", testBuildEmpty)
	t.Run("NonzeroOffset", testBuildNonzeroOffset)
	t.Run("RootGrowth", testRootGrowth)
}

// stageBuild bulk-loads an index over the given keys and checks the
// structural invariants and the at-rest pin count.
func stageBuild(keys []int32) func(t *testing.T) {
	return func(t *testing.T) {
		bufMgr, _, index, _ := setupIndex(t, keys)
		defer index.Close()
		if err := btree.Verify(index); err != nil {
			t.Error("Structural invariant violated:", err)
		}
		checkAtRest(t, bufMgr, index)
	}
}

func testBuildAscending(t *testing.T) {
	stageBuild(ascending(1000))(t)
}

func testBuildDescending(t *testing.T) {
	stageBuild(descending(1000))(t)
}

func testBuildRandom(t *testing.T) {
	keys := make([]int32, 2000)
	for i := range keys {
		keys[i] = rand.Int31n(1 << 16)
	}
	stageBuild(keys)(t)
}

func testBuildDuplicates(t *testing.T) {
	keys := make([]int32, 1000)
	for i := range keys {
		keys[i] = int32(i % 7)
	}
	stageBuild(keys)(t)
}

func testBuildEmpty(t *testing.T) {
	stageBuild(nil)(t)
}

// Builds an index whose key does not sit at the start of the record.
func testBuildNonzeroOffset(t *testing.T) {
	t.Parallel()
	bufMgr := buffer.NewManager()
	relation, rids := setupRelation(t, bufMgr, ascending(500), 4)
	defer relation.Close()
	index := buildIndex(t, relation, bufMgr, 4)
	defer index.Close()
	if err := btree.Verify(index); err != nil {
		t.Error("Structural invariant violated:", err)
	}
	// Spot-check that the stored keys came from the right offset.
	got := collectScan(t, index, 100, btree.GTE, 100, btree.LTE)
	checkRids(t, got, rids[100])
	checkAtRest(t, bufMgr, index)
}

// Inserts enough ascending keys to force the root to split and grow.
func testRootGrowth(t *testing.T) {
	if testing.Short() {
		t.Skip("root growth needs a five-figure bulk load")
	}
	t.Parallel()
	bufMgr := buffer.NewManager()
	relation, _ := setupRelation(t, bufMgr, nil, 0)
	defer relation.Close()
	index := buildIndex(t, relation, bufMgr, 0)
	defer index.Close()

	// Each ascending leaf split leaves (KeysPerLeaf+1)/2 keys behind and
	// adds one separator to the root, so this many inserts fill the root
	// and split it.
	numInserts := int32(btree.KeysPerNonLeaf)*int32((btree.KeysPerLeaf+1)/2) + int32(btree.KeysPerLeaf)
	oldRoot := index.RootPageNum()
	for i := int32(0); i < numInserts; i++ {
		if err := index.Insert(i, entry.NewRecordID(2, uint16(i%1000))); err != nil {
			t.Fatal("Failed to insert:", err)
		}
	}
	if index.RootPageNum() == oldRoot {
		t.Fatalf("Root never grew after %d ascending inserts", numInserts)
	}
	if err := btree.Verify(index); err != nil {
		t.Error("Structural invariant violated after root growth:", err)
	}
	// Count every entry through a full-range scan.
	count := len(collectScan(t, index, 0, btree.GTE, numInserts, btree.LTE))
	if count != int(numInserts) {
		t.Errorf("Full-range scan found %d entries, want %d", count, numInserts)
	}
	checkAtRest(t, bufMgr, index)
}

func TestBTreeOpen(t *testing.T) {
	t.Run("Reopen", testReopen)
	t.Run("BadIndexInfo", testBadIndexInfo)
	t.Run("CorruptHeader", testCorruptHeader)
	t.Run("UnsupportedType", testUnsupportedType)
}

// Closes a built index and reopens it, which should trigger reading its
// pages back from disk with metadata intact.
func testReopen(t *testing.T) {
	bufMgr, relation, index, rids := setupIndex(t, ascending(1000))
	if err := index.Close(); err != nil {
		t.Fatal("Failed to close index:", err)
	}

	reopened := buildIndex(t, relation, bufMgr, 0)
	defer reopened.Close()
	if err := btree.Verify(reopened); err != nil {
		t.Error("Structural invariant violated after reopen:", err)
	}
	got := collectScan(t, reopened, 500, btree.GTE, 500, btree.LTE)
	checkRids(t, got, rids[500])
}

// Opening an index file built with different parameters must fail with
// ErrBadIndexInfo. The built index file is copied to the name the caller's
// parameters resolve to, so only the stored header disagrees.
func testBadIndexInfo(t *testing.T) {
	bufMgr, relation, index, _ := setupIndex(t, ascending(100))
	if err := index.Close(); err != nil {
		t.Fatal("Failed to close index:", err)
	}

	copyFile(t, btree.IndexName(relation.Name(), 0), btree.IndexName(relation.Name(), 4))
	_, _, err := btree.Construct(relation, bufMgr, 4, btree.IntegerAttr)
	if err != btree.ErrBadIndexInfo {
		t.Errorf("Construct with mismatched offset returned %v, want ErrBadIndexInfo", err)
	}
}

// A header whose bytes no longer match its checksum must be rejected.
func testCorruptHeader(t *testing.T) {
	_, relation, index, _ := setupIndex(t, ascending(100))
	if err := index.Close(); err != nil {
		t.Fatal("Failed to close index:", err)
	}

	corruptHeaderByte(t, btree.IndexName(relation.Name(), 0))
	bufMgr := buffer.NewManager()
	_, _, err := btree.Construct(relation, bufMgr, 0, btree.IntegerAttr)
	if err != btree.ErrBadIndexInfo {
		t.Errorf("Construct over a corrupted header returned %v, want ErrBadIndexInfo", err)
	}
}

func testUnsupportedType(t *testing.T) {
	t.Parallel()
	bufMgr := buffer.NewManager()
	relation, _ := setupRelation(t, bufMgr, nil, 0)
	defer relation.Close()
	_, _, err := btree.Construct(relation, bufMgr, 0, btree.StringAttr)
	if err != btree.ErrUnsupportedAttrType {
		t.Errorf("Construct with a string attribute returned %v, want ErrUnsupportedAttrType", err)
	}
}
