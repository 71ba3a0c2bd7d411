// Package btree implements a disk-backed B+ tree secondary index over a
// single integer attribute of a relation file. The tree lives in one blob
// file managed through a pin-counted buffer manager; every page access is
// bracketed by a pin/unpin pair scoped to a single operation.
package btree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sahibgoa/b-tree-index-manager/pkg/buffer"
	"github.com/sahibgoa/b-tree-index-manager/pkg/entry"
	"github.com/sahibgoa/b-tree-index-manager/pkg/heap"
	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// BTreeIndex is a secondary index that uses a B+Tree as its underlying data
// structure. The root is a non-leaf node from inception, even while the
// tree is empty. One index supports a single writer or a single scanner at
// a time; it holds no pinned pages between operations except the current
// leaf of an executing scan.
type BTreeIndex struct {
	bufMgr         *buffer.Manager
	file           *storage.BlobFile
	indexName      string
	relationName   string
	attrByteOffset int32
	attrType       AttrType
	rootPageNum    storage.PageID

	// Scan state; valid only while scanExecuting.
	scanExecuting  bool
	nextEntry      int64
	currentPageNum storage.PageID
	currentFrame   *buffer.Frame
	lowValInt      int32
	highValInt     int32
	lowOp          Operator
	highOp         Operator
}

// pinnedPage pairs a descent-path page with its dirty flag so unpinning can
// be driven from the path stack on every exit.
type pinnedPage struct {
	pageNo storage.PageID
	frame  *buffer.Frame
	dirty  bool
}

// IndexName returns the index file name for the given relation and
// attribute byte offset.
func IndexName(relationName string, attrByteOffset int32) string {
	return fmt.Sprintf("%s.%d", relationName, attrByteOffset)
}

// Construct opens the secondary index over the given relation's attribute
// at attrByteOffset, creating and bulk-loading it if the index file does
// not exist yet. Returns the index and the name of its backing file.
//
// On open of an existing file, the stored metadata must match the caller's
// parameters; a mismatch (or a header whose checksum does not match its
// fields) fails with ErrBadIndexInfo. An error reading the header page is
// returned as is.
func Construct(relation *heap.HeapFile, bufMgr *buffer.Manager, attrByteOffset int32, attrType AttrType) (*BTreeIndex, string, error) {
	if attrType != IntegerAttr {
		return nil, "", ErrUnsupportedAttrType
	}
	if attrByteOffset < 0 || int64(attrByteOffset)+int64(keySize) > relation.RecordSize() {
		return nil, "", fmt.Errorf("attribute offset %d does not fit a %d byte record", attrByteOffset, relation.RecordSize())
	}
	relationName := relation.Name()
	indexName := IndexName(relationName, attrByteOffset)
	index := &BTreeIndex{
		bufMgr:         bufMgr,
		indexName:      indexName,
		relationName:   relationName,
		attrByteOffset: attrByteOffset,
		attrType:       attrType,
	}

	file, err := storage.Create(indexName)
	if err == nil {
		index.file = file
		if err = index.initialize(relation); err != nil {
			bufMgr.EvictFile(file)
			file.Close()
			return nil, "", err
		}
		return index, indexName, nil
	}
	if !errors.Is(err, storage.ErrFileExists) {
		return nil, "", err
	}

	if file, err = storage.Open(indexName); err != nil {
		return nil, "", err
	}
	index.file = file
	if err = index.validate(); err != nil {
		bufMgr.EvictFile(file)
		file.Close()
		return nil, "", err
	}
	return index, indexName, nil
}

// initialize lays out a fresh index file (header page plus an empty
// non-leaf root) and bulk-loads it by scanning the relation once.
func (index *BTreeIndex) initialize(relation *heap.HeapFile) error {
	headerPN, headerFrame, err := index.bufMgr.AllocPage(index.file)
	if err != nil {
		return err
	}
	if headerPN != headerPageNum {
		index.bufMgr.UnpinPage(index.file, headerPN, false)
		return fmt.Errorf("header page allocated at %d, want %d", headerPN, headerPageNum)
	}
	rootPN, rootFrame, err := index.bufMgr.AllocPage(index.file)
	if err != nil {
		index.bufMgr.UnpinPage(index.file, headerPN, false)
		return err
	}
	index.rootPageNum = rootPN

	writeMeta(headerFrame, indexMeta{
		relationName:   index.relationName,
		attrByteOffset: index.attrByteOffset,
		attrType:       index.attrType,
		rootPageNo:     rootPN,
	})
	// The empty root starts as a non-leaf whose children will be leaves.
	initNonLeaf(rootFrame, 1)

	// Scan the relation and insert an entry for every tuple. End-of-file
	// is the normal terminator of construction.
	loadErr := index.bulkLoad(relation)

	// Both pages are still pinned from their allocation. If the root grew
	// during the bulk load, growRoot rewrote the header through its own
	// pin, so the header frame already holds the current root. A
	// PageNotPinned result is tolerated as for any speculative unpin.
	if err := index.bufMgr.UnpinPage(index.file, headerPN, true); err != nil && !errors.Is(err, buffer.ErrPageNotPinned) && loadErr == nil {
		loadErr = err
	}
	if err := index.bufMgr.UnpinPage(index.file, rootPN, true); err != nil && !errors.Is(err, buffer.ErrPageNotPinned) && loadErr == nil {
		loadErr = err
	}
	return loadErr
}

// bulkLoad drives the relation scanner to completion, inserting one entry
// per tuple.
func (index *BTreeIndex) bulkLoad(relation *heap.HeapFile) error {
	scan := heap.NewFileScan(relation)
	for {
		rid, err := scan.ScanNext()
		if errors.Is(err, heap.ErrEndOfFile) {
			return nil
		}
		if err != nil {
			return err
		}
		record, err := scan.GetRecord()
		if err != nil {
			return err
		}
		key := int32(binary.LittleEndian.Uint32(record[index.attrByteOffset : index.attrByteOffset+4]))
		if err = index.Insert(key, rid); err != nil {
			return err
		}
	}
}

// validate reads the header page of an existing index file and checks the
// stored metadata against the construction parameters.
func (index *BTreeIndex) validate() error {
	frame, err := index.bufMgr.ReadPage(index.file, headerPageNum)
	if err != nil {
		return err
	}
	meta, ok := readMeta(frame)
	if unpinErr := index.bufMgr.UnpinPage(index.file, headerPageNum, false); unpinErr != nil && !errors.Is(unpinErr, buffer.ErrPageNotPinned) {
		return unpinErr
	}
	if !ok || !meta.matches(index.relationName, index.attrByteOffset, index.attrType) {
		return ErrBadIndexInfo
	}
	index.rootPageNum = meta.rootPageNo
	return nil
}

// GetName returns the base file name of the file backing this index.
func (index *BTreeIndex) GetName() string {
	return filepath.Base(index.indexName)
}

// File returns the blob file backing this index.
func (index *BTreeIndex) File() *storage.BlobFile {
	return index.file
}

// RootPageNum returns the page number of the current root node.
func (index *BTreeIndex) RootPageNum() storage.PageID {
	return index.rootPageNum
}

// Close terminates any executing scan, flushes the index file, drops its
// pages from the buffer, and closes the file handle.
func (index *BTreeIndex) Close() error {
	if index.scanExecuting {
		if err := index.EndScan(); err != nil {
			return err
		}
	}
	if err := index.bufMgr.EvictFile(index.file); err != nil {
		return err
	}
	return index.file.Close()
}

/////////////////////////////////////////////////////////////////////////////
/////////////////////////////// Insertion engine ////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Insert adds one (key, rid) entry to the index. Duplicate keys are
// permitted; keys must be non-negative (the on-disk sentinel occupies -1).
// On return the tree satisfies its structural invariants and every page
// pinned by the operation has been unpinned.
func (index *BTreeIndex) Insert(key int32, rid entry.RecordID) error {
	if key < 0 {
		return fmt.Errorf("key %d is negative; the key sentinel reserves negative values", key)
	}

	// The descent path. Each visited non-leaf stays pinned until the
	// operation finishes so splits can propagate upward; the deferred
	// release unpins every remaining element on all exits.
	var path []*pinnedPage
	defer func() {
		for i := len(path) - 1; i >= 0; i-- {
			index.bufMgr.UnpinPage(index.file, path[i].pageNo, path[i].dirty)
		}
	}()

	// Descend from the root to the leaf that should receive the entry.
	cur := index.rootPageNum
	var leaf *pinnedPage
	for {
		frame, err := index.bufMgr.ReadPage(index.file, cur)
		if err != nil {
			return err
		}
		pp := &pinnedPage{pageNo: cur, frame: frame}
		path = append(path, pp)
		node := nonLeafNode{frame}

		// A root with no keys means the tree holds no entries yet; populate
		// it in place with its first separator and leaf pair.
		if cur == index.rootPageNum && node.keyAt(0) == EmptyKey {
			pp.dirty = true
			return index.populateRoot(node, key, rid)
		}

		child := node.pageNoAt(node.searchKey(key))
		if node.level() == 1 {
			leafFrame, err := index.bufMgr.ReadPage(index.file, child)
			if err != nil {
				return err
			}
			leaf = &pinnedPage{pageNo: child, frame: leafFrame}
			break
		}
		cur = child
	}

	// Insert into the leaf, splitting if it is full.
	target := leafNode{leaf.frame}
	if !target.isFull() {
		target.insertEntry(key, rid)
		return index.bufMgr.UnpinPage(index.file, leaf.pageNo, true)
	}
	splitKey, newPageNo, err := index.splitLeaf(target, key, rid)
	if unpinErr := index.bufMgr.UnpinPage(index.file, leaf.pageNo, true); err == nil {
		err = unpinErr
	}
	if err != nil {
		return err
	}

	// Propagate the split upward: each parent receives the promoted key and
	// the new right child, splitting in turn while full.
	for i := len(path) - 1; i >= 0; i-- {
		parent := path[i]
		node := nonLeafNode{parent.frame}
		parent.dirty = true
		if !node.isFull() {
			node.insertChild(splitKey, newPageNo)
			return nil
		}
		if splitKey, newPageNo, err = index.splitNonLeaf(node, splitKey, newPageNo); err != nil {
			return err
		}
	}

	// The path is exhausted with a promotion still pending: grow a new root.
	return index.growRoot(splitKey, newPageNo)
}

// populateRoot installs the first entry into an empty tree: two fresh
// leaves under the root, with the entry in the right one.
func (index *BTreeIndex) populateRoot(root nonLeafNode, key int32, rid entry.RecordID) error {
	leftPN, leftFrame, err := index.bufMgr.AllocPage(index.file)
	if err != nil {
		return err
	}
	rightPN, rightFrame, err := index.bufMgr.AllocPage(index.file)
	if err != nil {
		index.bufMgr.UnpinPage(index.file, leftPN, false)
		return err
	}
	left := initLeaf(leftFrame)
	left.setRightSib(rightPN)
	right := initLeaf(rightFrame)
	right.setKeyAt(0, key)
	right.setRIDAt(0, rid)

	root.setKeyAt(0, key)
	root.setPageNoAt(0, leftPN)
	root.setPageNoAt(1, rightPN)

	if err = index.bufMgr.UnpinPage(index.file, leftPN, true); err != nil {
		index.bufMgr.UnpinPage(index.file, rightPN, true)
		return err
	}
	return index.bufMgr.UnpinPage(index.file, rightPN, true)
}

// splitLeaf splits a full leaf around its midpoint, routes (key, rid) into
// whichever half preserves order, and links the new leaf into the chain.
// Returns the separator to promote (the new leaf's first key) and the new
// leaf's page number.
func (index *BTreeIndex) splitLeaf(node leafNode, key int32, rid entry.RecordID) (int32, storage.PageID, error) {
	newPN, newFrame, err := index.bufMgr.AllocPage(index.file)
	if err != nil {
		return EmptyKey, storage.InvalidPageID, err
	}
	newLeaf := initLeaf(newFrame)

	// Split around the midpoint, but never inside a run of equal keys: the
	// promoted separator is the new leaf's first key, and every key left
	// behind must stay strictly below it or scans descending right of the
	// separator would miss equal keys stranded on the left.
	mid := (KeysPerLeaf + 1) / 2
	for mid > 0 && node.keyAt(mid-1) == node.keyAt(mid) {
		mid--
	}
	if mid == 0 {
		mid = (KeysPerLeaf + 1) / 2
		for mid < KeysPerLeaf && node.keyAt(mid) == node.keyAt(mid-1) {
			mid++
		}
		if mid == KeysPerLeaf {
			// The leaf is one giant run of a single key; fall back to the
			// midpoint and accept that the run spans both halves.
			mid = (KeysPerLeaf + 1) / 2
		}
	}
	for i := mid; i < KeysPerLeaf; i++ {
		newLeaf.setKeyAt(i-mid, node.keyAt(i))
		newLeaf.setRIDAt(i-mid, node.ridAt(i))
		node.setKeyAt(i, EmptyKey)
	}

	if key >= newLeaf.keyAt(0) {
		newLeaf.insertEntry(key, rid)
	} else {
		node.insertEntry(key, rid)
	}

	// The new leaf inherits the old right sibling; the old leaf now points
	// at the new one.
	newLeaf.setRightSib(node.rightSib())
	node.setRightSib(newPN)

	splitKey := newLeaf.keyAt(0)
	return splitKey, newPN, index.bufMgr.UnpinPage(index.file, newPN, true)
}

// splitNonLeaf splits a full non-leaf around the midpoint of the virtual
// sequence formed by inserting (key, pageNo) in order. The midpoint key is
// promoted and appears in neither half. Returns the promoted key and the
// new node's page number.
func (index *BTreeIndex) splitNonLeaf(node nonLeafNode, key int32, pageNo storage.PageID) (int32, storage.PageID, error) {
	// Merge the incoming pair into virtual arrays of KeysPerNonLeaf+1 keys
	// and one more child pointer; the leftmost pointer stays in place.
	keys := make([]int32, 0, KeysPerNonLeaf+1)
	pages := make([]storage.PageID, 0, KeysPerNonLeaf+2)
	pages = append(pages, node.pageNoAt(0))
	inserted := false
	for i := int64(0); i < KeysPerNonLeaf; i++ {
		if !inserted && key < node.keyAt(i) {
			keys = append(keys, key)
			pages = append(pages, pageNo)
			inserted = true
		}
		keys = append(keys, node.keyAt(i))
		pages = append(pages, node.pageNoAt(i+1))
	}
	if !inserted {
		keys = append(keys, key)
		pages = append(pages, pageNo)
	}

	newPN, newFrame, err := index.bufMgr.AllocPage(index.file)
	if err != nil {
		return EmptyKey, storage.InvalidPageID, err
	}
	newNode := initNonLeaf(newFrame, node.level())

	mid := (KeysPerNonLeaf + 1) / 2
	promoted := keys[mid]

	// The original keeps keys [0, mid) with children [0, mid]; everything
	// right of the promoted key moves into the new node.
	for i := int64(0); i < KeysPerNonLeaf; i++ {
		if i < mid {
			node.setKeyAt(i, keys[i])
		} else {
			node.setKeyAt(i, EmptyKey)
		}
	}
	for i := int64(1); i <= KeysPerNonLeaf; i++ {
		if i <= mid {
			node.setPageNoAt(i, pages[i])
		} else {
			node.setPageNoAt(i, storage.InvalidPageID)
		}
	}
	for i := mid + 1; i < int64(len(keys)); i++ {
		newNode.setKeyAt(i-mid-1, keys[i])
	}
	for i := mid + 1; i < int64(len(pages)); i++ {
		newNode.setPageNoAt(i-mid-1, pages[i])
	}

	return promoted, newPN, index.bufMgr.UnpinPage(index.file, newPN, true)
}

// growRoot allocates a new root above the old one after a split has
// propagated off the top of the path, and records the new root in the
// header page. The old root is always a non-leaf, so the new root's
// children are non-leaves.
func (index *BTreeIndex) growRoot(key int32, pageNo storage.PageID) error {
	rootPN, rootFrame, err := index.bufMgr.AllocPage(index.file)
	if err != nil {
		return err
	}
	root := initNonLeaf(rootFrame, 0)
	root.setKeyAt(0, key)
	root.setPageNoAt(0, index.rootPageNum)
	root.setPageNoAt(1, pageNo)
	if err = index.bufMgr.UnpinPage(index.file, rootPN, true); err != nil {
		return err
	}
	index.rootPageNum = rootPN
	return index.writeRootToHeader()
}

// writeRootToHeader rewrites the header page's root pointer and checksum.
func (index *BTreeIndex) writeRootToHeader() error {
	frame, err := index.bufMgr.ReadPage(index.file, headerPageNum)
	if err != nil {
		return err
	}
	meta, _ := readMeta(frame)
	meta.rootPageNo = index.rootPageNum
	writeMeta(frame, meta)
	return index.bufMgr.UnpinPage(index.file, headerPageNum, true)
}
