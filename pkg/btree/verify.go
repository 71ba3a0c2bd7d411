package btree

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// Verify checks the index's structural invariants: strictly ascending
// non-leaf keys with correct subtree bounds, non-decreasing leaf keys,
// uniform leaf depth, and a right-sibling chain that visits every
// reachable leaf exactly once in key order before terminating.
func Verify(index *BTreeIndex) error {
	walk := &treeWalk{index: index}
	if err := walk.checkNonLeaf(index.rootPageNum, math.MinInt64, math.MaxInt64, 0); err != nil {
		return err
	}
	return walk.checkLeafChain()
}

// treeWalk accumulates the leaves met by an in-order traversal so the
// sibling chain can be checked against them.
type treeWalk struct {
	index     *BTreeIndex
	leaves    []storage.PageID
	leafDepth int64 // Depth of the first leaf reached; all others must match.
}

// checkNonLeaf verifies one non-leaf node whose subtree must hold keys in
// [low, high), then recurses into its children.
func (walk *treeWalk) checkNonLeaf(pageNo storage.PageID, low, high int64, depth int64) error {
	frame, err := walk.index.bufMgr.ReadPage(walk.index.file, pageNo)
	if err != nil {
		return err
	}
	defer walk.index.bufMgr.UnpinPage(walk.index.file, pageNo, false)
	node := nonLeafNode{frame}

	count := node.numKeys()
	if count == 0 {
		if pageNo != walk.index.rootPageNum {
			return fmt.Errorf("non-leaf %d has no keys", pageNo)
		}
		// An empty root: the tree holds no entries.
		return nil
	}
	for i := int64(0); i < count; i++ {
		key := int64(node.keyAt(i))
		if i > 0 && key <= int64(node.keyAt(i-1)) {
			return fmt.Errorf("non-leaf %d keys are not strictly ascending at slot %d", pageNo, i)
		}
		if key < low || key >= high {
			return fmt.Errorf("non-leaf %d key %d escapes its subtree bounds [%d, %d)", pageNo, key, low, high)
		}
	}
	for i := count; i < KeysPerNonLeaf; i++ {
		if node.keyAt(i) != EmptyKey {
			return fmt.Errorf("non-leaf %d has a hole before slot %d", pageNo, i)
		}
	}

	// Child i holds keys below key i; the last child holds the rest.
	for i := int64(0); i <= count; i++ {
		childLow, childHigh := low, high
		if i > 0 {
			childLow = int64(node.keyAt(i - 1))
		}
		if i < count {
			childHigh = int64(node.keyAt(i))
		}
		child := node.pageNoAt(i)
		if child == storage.InvalidPageID {
			return fmt.Errorf("non-leaf %d child %d is unset", pageNo, i)
		}
		if node.level() == 1 {
			err = walk.checkLeaf(child, childLow, childHigh, depth+1)
		} else {
			err = walk.checkNonLeaf(child, childLow, childHigh, depth+1)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// checkLeaf verifies one leaf's key ordering and bounds and records it for
// the chain check.
func (walk *treeWalk) checkLeaf(pageNo storage.PageID, low, high int64, depth int64) error {
	frame, err := walk.index.bufMgr.ReadPage(walk.index.file, pageNo)
	if err != nil {
		return err
	}
	defer walk.index.bufMgr.UnpinPage(walk.index.file, pageNo, false)
	leaf := leafNode{frame}

	if len(walk.leaves) == 0 {
		walk.leafDepth = depth
	} else if depth != walk.leafDepth {
		return fmt.Errorf("leaf %d sits at depth %d, want %d", pageNo, depth, walk.leafDepth)
	}
	walk.leaves = append(walk.leaves, pageNo)

	count := leaf.numKeys()
	for i := int64(0); i < count; i++ {
		key := int64(leaf.keyAt(i))
		if i > 0 && key < int64(leaf.keyAt(i-1)) {
			return fmt.Errorf("leaf %d keys decrease at slot %d", pageNo, i)
		}
		if key < low || key >= high {
			return fmt.Errorf("leaf %d key %d escapes its bounds [%d, %d)", pageNo, key, low, high)
		}
	}
	for i := count; i < KeysPerLeaf; i++ {
		if leaf.keyAt(i) != EmptyKey {
			return fmt.Errorf("leaf %d has a hole before slot %d", pageNo, i)
		}
	}
	return nil
}

// checkLeafChain follows rightSibPageNo from the leftmost leaf and checks
// that the chain visits exactly the leaves the traversal found, in order,
// with no repeats, terminating at 0.
func (walk *treeWalk) checkLeafChain() error {
	if len(walk.leaves) == 0 {
		return nil
	}
	visited := bitset.New(uint(walk.index.file.NumPages()) + 1)
	cur := walk.leaves[0]
	for i := 0; ; i++ {
		if i >= len(walk.leaves) {
			return fmt.Errorf("leaf chain is longer than the %d reachable leaves", len(walk.leaves))
		}
		if cur != walk.leaves[i] {
			return fmt.Errorf("leaf chain visits %d at position %d, want %d", cur, i, walk.leaves[i])
		}
		if visited.Test(uint(cur)) {
			return fmt.Errorf("leaf chain revisits %d", cur)
		}
		visited.Set(uint(cur))

		frame, err := walk.index.bufMgr.ReadPage(walk.index.file, cur)
		if err != nil {
			return err
		}
		next := leafNode{frame}.rightSib()
		if err = walk.index.bufMgr.UnpinPage(walk.index.file, cur, false); err != nil {
			return err
		}
		if next == storage.InvalidPageID {
			if i != len(walk.leaves)-1 {
				return fmt.Errorf("leaf chain ends after %d of %d leaves", i+1, len(walk.leaves))
			}
			return nil
		}
		cur = next
	}
}
