package btree

import (
	"fmt"
	"io"

	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// Print will pretty-print all nodes in the B+Tree. Whether a page is a
// leaf or a non-leaf is contextual, so printing always starts at the root.
func (index *BTreeIndex) Print(w io.Writer) {
	index.printNonLeaf(w, index.rootPageNum, "", "")
}

func (index *BTreeIndex) printNonLeaf(w io.Writer, pageNo storage.PageID, firstPrefix string, prefix string) {
	frame, err := index.bufMgr.ReadPage(index.file, pageNo)
	if err != nil {
		return
	}
	defer index.bufMgr.UnpinPage(index.file, pageNo, false)
	node := nonLeafNode{frame}

	var isRoot string
	if pageNo == index.rootPageNum {
		isRoot = " (root)"
	}
	count := node.numKeys()
	fmt.Fprintf(w, "%v[%v] NonLeaf%v level: %v size: %v\n",
		firstPrefix, pageNo, isRoot, node.level(), count)
	if count == 0 {
		return
	}
	nextFirstPrefix := prefix + " |--> "
	nextPrefix := prefix + " |    "
	for i := int64(0); i <= count; i++ {
		fmt.Fprintf(w, "%v\n", nextPrefix)
		child := node.pageNoAt(i)
		if node.level() == 1 {
			index.printLeaf(w, child, nextFirstPrefix, nextPrefix)
		} else {
			index.printNonLeaf(w, child, nextFirstPrefix, nextPrefix)
		}
		if i != count {
			fmt.Fprintf(w, "\n%v[KEY] %v\n", nextPrefix, node.keyAt(i))
		}
	}
}

func (index *BTreeIndex) printLeaf(w io.Writer, pageNo storage.PageID, firstPrefix string, prefix string) {
	frame, err := index.bufMgr.ReadPage(index.file, pageNo)
	if err != nil {
		return
	}
	defer index.bufMgr.UnpinPage(index.file, pageNo, false)
	leaf := leafNode{frame}

	fmt.Fprintf(w, "%v[%v] Leaf size: %v\n", firstPrefix, pageNo, leaf.numKeys())
	for i := int64(0); i < leaf.numKeys(); i++ {
		rid := leaf.ridAt(i)
		fmt.Fprintf(w, "%v |--> (%v, (%v, %v))\n", prefix, leaf.keyAt(i), rid.PageNo, rid.SlotNo)
	}
	if sib := leaf.rightSib(); sib != storage.InvalidPageID {
		fmt.Fprintf(w, "%v |--+\n", prefix)
		fmt.Fprintf(w, "%v    | right sibling @ [%v]\n", prefix, sib)
		fmt.Fprintf(w, "%v    v\n", prefix)
	}
}
