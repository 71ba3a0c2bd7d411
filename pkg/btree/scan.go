package btree

import (
	"errors"

	"github.com/sahibgoa/b-tree-index-manager/pkg/buffer"
	"github.com/sahibgoa/b-tree-index-manager/pkg/entry"
	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// The scan engine is a two-state machine: Idle (no scan) and Scanning,
// during which at most one leaf page stays pinned at currentPageNum and
// nextEntry names the next slot to examine. No leaf is pinned once the
// scan has walked off the end of the leaf chain, or when the tree is empty. Scans are read-only and yield
// matching record ids in non-decreasing key order.

// satisfiesLow reports whether key meets the scan's lower bound.
func (index *BTreeIndex) satisfiesLow(key int32) bool {
	if index.lowOp == GT {
		return key > index.lowValInt
	}
	return key >= index.lowValInt
}

// StartScan begins a range scan over [lowVal, highVal] with half-open
// semantics chosen by the operators: lowOp must be GT or GTE and highOp
// must be LT or LTE, otherwise ErrBadOpcodes. lowVal must not exceed
// highVal, otherwise ErrBadScanRange. Starting a scan while one is
// executing ends the current scan first.
func (index *BTreeIndex) StartScan(lowVal int32, lowOp Operator, highVal int32, highOp Operator) error {
	if index.scanExecuting {
		if err := index.EndScan(); err != nil {
			return err
		}
	}
	if (lowOp != GT && lowOp != GTE) || (highOp != LT && highOp != LTE) {
		return ErrBadOpcodes
	}
	if lowVal > highVal {
		return ErrBadScanRange
	}
	index.lowValInt = lowVal
	index.highValInt = highVal
	index.lowOp = lowOp
	index.highOp = highOp

	// Descend to the leaf where qualifying entries begin, unpinning each
	// parent as soon as its child is chosen.
	cur := index.rootPageNum
	var leafPN storage.PageID
	for {
		frame, err := index.bufMgr.ReadPage(index.file, cur)
		if err != nil {
			return err
		}
		node := nonLeafNode{frame}
		i := int64(0)
		for i < KeysPerNonLeaf && node.keyAt(i) != EmptyKey && lowVal >= node.keyAt(i) {
			i++
		}
		child := node.pageNoAt(i)
		level := node.level()
		if err = index.bufMgr.UnpinPage(index.file, cur, false); err != nil {
			return err
		}
		if child == storage.InvalidPageID {
			// The tree holds no entries; the first ScanNext reports
			// completion.
			index.scanExecuting = true
			index.currentPageNum = storage.InvalidPageID
			index.currentFrame = nil
			index.nextEntry = 0
			return nil
		}
		if level == 1 {
			leafPN = child
			break
		}
		cur = child
	}

	frame, err := index.bufMgr.ReadPage(index.file, leafPN)
	if err != nil {
		return err
	}
	index.currentPageNum = leafPN
	index.currentFrame = frame
	index.scanExecuting = true

	// Position nextEntry on the first slot meeting the lower bound. If no
	// slot on this leaf qualifies, park past the end so ScanNext's chain
	// walk advances to the right sibling.
	leaf := leafNode{frame}
	index.nextEntry = KeysPerLeaf
	for i := int64(0); i < KeysPerLeaf; i++ {
		key := leaf.keyAt(i)
		if key == EmptyKey {
			break
		}
		if index.satisfiesLow(key) {
			index.nextEntry = i
			break
		}
	}
	return nil
}

// ScanNext returns the record id of the next entry whose key satisfies both
// bounds, in ascending key order. Fails with ErrScanNotInitialized outside
// a scan and with ErrIndexScanCompleted once matches are exhausted; the
// latter is the normal end-of-stream signal.
func (index *BTreeIndex) ScanNext() (entry.RecordID, error) {
	if !index.scanExecuting {
		return entry.RecordID{}, ErrScanNotInitialized
	}
	for {
		if index.currentPageNum == storage.InvalidPageID {
			return entry.RecordID{}, ErrIndexScanCompleted
		}
		leaf := leafNode{index.currentFrame}

		// Past the used slots of this leaf: move to the right sibling.
		if index.nextEntry == KeysPerLeaf || leaf.keyAt(index.nextEntry) == EmptyKey {
			rightSib := leaf.rightSib()
			if err := index.unpinCurrentLeaf(); err != nil {
				return entry.RecordID{}, err
			}
			if rightSib == storage.InvalidPageID {
				return entry.RecordID{}, ErrIndexScanCompleted
			}
			frame, err := index.bufMgr.ReadPage(index.file, rightSib)
			if err != nil {
				return entry.RecordID{}, err
			}
			index.currentPageNum = rightSib
			index.currentFrame = frame
			index.nextEntry = 0
			continue
		}

		key := leaf.keyAt(index.nextEntry)
		// Keys below the lower bound predate the range (or duplicate around
		// its boundary); skip them.
		if !index.satisfiesLow(key) {
			index.nextEntry++
			continue
		}
		// The first key past the upper bound ends the scan; the current
		// leaf stays pinned until EndScan.
		if (index.highOp == LT && key >= index.highValInt) || (index.highOp == LTE && key > index.highValInt) {
			return entry.RecordID{}, ErrIndexScanCompleted
		}
		rid := leaf.ridAt(index.nextEntry)
		index.nextEntry++
		return rid, nil
	}
}

// EndScan terminates the executing scan, unpinning the current leaf. Fails
// with ErrScanNotInitialized if no scan is executing.
func (index *BTreeIndex) EndScan() error {
	if !index.scanExecuting {
		return ErrScanNotInitialized
	}
	index.scanExecuting = false
	// The leaf may already have been released when the scan exhausted the
	// chain; that unpin is speculative.
	err := index.unpinCurrentLeaf()
	if err != nil && errors.Is(err, buffer.ErrPageNotPinned) {
		err = nil
	}
	return err
}

// unpinCurrentLeaf releases the scan's pinned leaf, if any, and clears the
// current-page state.
func (index *BTreeIndex) unpinCurrentLeaf() error {
	if index.currentPageNum == storage.InvalidPageID {
		return nil
	}
	pageNo := index.currentPageNum
	index.currentPageNum = storage.InvalidPageID
	index.currentFrame = nil
	return index.bufMgr.UnpinPage(index.file, pageNo, false)
}
