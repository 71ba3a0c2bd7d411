package btree

import (
	"encoding/binary"

	"github.com/sahibgoa/b-tree-index-manager/pkg/buffer"
	"github.com/sahibgoa/b-tree-index-manager/pkg/entry"
	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// Node views are thin wrappers over a pinned frame's bytes. They are valid
// only while the backing page stays pinned, and they never outlive the
// operation that pinned it. Whether a page holds a leaf or a non-leaf is
// contextual, established by descent from the root.

// Little-endian accessors over raw page bytes.

func getInt32(data []byte, offset int64) int32 {
	return int32(binary.LittleEndian.Uint32(data[offset : offset+4]))
}

func putInt32(data []byte, offset int64, v int32) {
	binary.LittleEndian.PutUint32(data[offset:offset+4], uint32(v))
}

func getUint64(data []byte, offset int64) uint64 {
	return binary.LittleEndian.Uint64(data[offset : offset+8])
}

func putUint64(data []byte, offset int64, v uint64) {
	binary.LittleEndian.PutUint64(data[offset:offset+8], v)
}

func getPageNo(data []byte, offset int64) storage.PageID {
	return storage.PageID(binary.LittleEndian.Uint32(data[offset : offset+4]))
}

func putPageNo(data []byte, offset int64, pn storage.PageID) {
	binary.LittleEndian.PutUint32(data[offset:offset+4], uint32(pn))
}

/////////////////////////////////////////////////////////////////////////////
//////////////////////////////// Non-leaf nodes /////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// nonLeafNode views a pinned page as a non-leaf node.
type nonLeafNode struct {
	frame *buffer.Frame
}

// initNonLeaf formats a freshly allocated page as an empty non-leaf node
// at the given level (1 means its children are leaves).
func initNonLeaf(frame *buffer.Frame, level int32) nonLeafNode {
	node := nonLeafNode{frame}
	node.setLevel(level)
	for i := int64(0); i < KeysPerNonLeaf; i++ {
		node.setKeyAt(i, EmptyKey)
		node.setPageNoAt(i, storage.InvalidPageID)
	}
	node.setPageNoAt(KeysPerNonLeaf, storage.InvalidPageID)
	return node
}

func (node nonLeafNode) level() int32 {
	return getInt32(node.frame.Data(), nonLeafLevelOffset)
}

func (node nonLeafNode) setLevel(level int32) {
	putInt32(node.frame.Data(), nonLeafLevelOffset, level)
}

func (node nonLeafNode) keyAt(index int64) int32 {
	return getInt32(node.frame.Data(), nonLeafKeysOffset+index*keySize)
}

func (node nonLeafNode) setKeyAt(index int64, key int32) {
	putInt32(node.frame.Data(), nonLeafKeysOffset+index*keySize, key)
}

func (node nonLeafNode) pageNoAt(index int64) storage.PageID {
	return getPageNo(node.frame.Data(), nonLeafPageNoOffset+index*pageNoSize)
}

func (node nonLeafNode) setPageNoAt(index int64, pageNo storage.PageID) {
	putPageNo(node.frame.Data(), nonLeafPageNoOffset+index*pageNoSize, pageNo)
}

// numKeys returns the index of the first unused key slot.
func (node nonLeafNode) numKeys() int64 {
	for i := int64(0); i < KeysPerNonLeaf; i++ {
		if node.keyAt(i) == EmptyKey {
			return i
		}
	}
	return KeysPerNonLeaf
}

// isFull reports whether the node has no room for another key.
func (node nonLeafNode) isFull() bool {
	return node.keyAt(KeysPerNonLeaf-1) != EmptyKey
}

// searchKey returns the index of the child subtree that should contain the
// given key: the slot of the first unused or strictly greater key, so a key
// equal to a separator descends into the right subtree, where the subtree
// invariant places it.
func (node nonLeafNode) searchKey(key int32) int64 {
	i := int64(0)
	for i < KeysPerNonLeaf && node.keyAt(i) != EmptyKey && key >= node.keyAt(i) {
		i++
	}
	return i
}

// insertChild inserts (key, pageNo) into a node that has room, shifting the
// suffix of keys and children one slot right so pageNo sits immediately to
// the right of key.
func (node nonLeafNode) insertChild(key int32, pageNo storage.PageID) {
	count := node.numKeys()
	idx := int64(0)
	for idx < count && key >= node.keyAt(idx) {
		idx++
	}
	for i := count; i > idx; i-- {
		node.setKeyAt(i, node.keyAt(i-1))
		node.setPageNoAt(i+1, node.pageNoAt(i))
	}
	node.setKeyAt(idx, key)
	node.setPageNoAt(idx+1, pageNo)
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// Leaf nodes ///////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// leafNode views a pinned page as a leaf node.
type leafNode struct {
	frame *buffer.Frame
}

// initLeaf formats a freshly allocated page as an empty leaf with no right
// sibling.
func initLeaf(frame *buffer.Frame) leafNode {
	node := leafNode{frame}
	node.setRightSib(storage.InvalidPageID)
	for i := int64(0); i < KeysPerLeaf; i++ {
		node.setKeyAt(i, EmptyKey)
	}
	return node
}

func (node leafNode) rightSib() storage.PageID {
	return getPageNo(node.frame.Data(), leafRightSibOffset)
}

func (node leafNode) setRightSib(pageNo storage.PageID) {
	putPageNo(node.frame.Data(), leafRightSibOffset, pageNo)
}

func (node leafNode) keyAt(index int64) int32 {
	return getInt32(node.frame.Data(), leafKeysOffset+index*keySize)
}

func (node leafNode) setKeyAt(index int64, key int32) {
	putInt32(node.frame.Data(), leafKeysOffset+index*keySize, key)
}

func (node leafNode) ridAt(index int64) entry.RecordID {
	start := leafRIDsOffset + index*entry.RecordIDSize
	return entry.UnmarshalRecordID(node.frame.Data()[start : start+entry.RecordIDSize])
}

func (node leafNode) setRIDAt(index int64, rid entry.RecordID) {
	start := leafRIDsOffset + index*entry.RecordIDSize
	rid.Marshal(node.frame.Data()[start : start+entry.RecordIDSize])
}

// numKeys returns the index of the first unused key slot.
func (node leafNode) numKeys() int64 {
	for i := int64(0); i < KeysPerLeaf; i++ {
		if node.keyAt(i) == EmptyKey {
			return i
		}
	}
	return KeysPerLeaf
}

// isFull reports whether the leaf has no room for another entry.
func (node leafNode) isFull() bool {
	return node.keyAt(KeysPerLeaf-1) != EmptyKey
}

// insertEntry inserts (key, rid) into a leaf that has room, shifting the
// suffix of entries one slot right to keep keys non-decreasing.
func (node leafNode) insertEntry(key int32, rid entry.RecordID) {
	count := node.numKeys()
	idx := int64(0)
	for idx < count && node.keyAt(idx) < key {
		idx++
	}
	for i := count; i > idx; i-- {
		node.setKeyAt(i, node.keyAt(i-1))
		node.setRIDAt(i, node.ridAt(i-1))
	}
	node.setKeyAt(idx, key)
	node.setRIDAt(idx, rid)
}
